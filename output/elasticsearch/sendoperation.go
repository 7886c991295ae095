package elasticsearch

import (
	"bytes"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"
	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/eslog-forwarder/bulkmodel"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/logger"
)

// sendResult is what the send goroutine hands back to the processing loop
type sendResult struct {
	statusCode int
	body       []byte
	err        error
}

// SendOperation owns one in-flight bulk request: the serialized payload, the events included in
// it and the asynchronous send life cycle. Operations are created at configuration load, one
// more than the concurrency level so a request can be prepared while others are on the line, and
// reused indefinitely.
//
// States: free (no events) -> filled (events buffered) -> pending (request on the line) -> back
// to free when every event is acknowledged, or filled again when events remain after a partial
// failure. Only the processing loop mutates an operation; the send goroutine communicates
// exclusively through the done channel.
type SendOperation struct {
	logger     logger.Logger
	serializer *eventSerializer
	allocator  *base.EventAllocator
	pool       *bulkmodel.ObjectPool
	metrics    *pipelineMetrics

	maxSizeBytes  int
	maxMessages   int
	authorization string

	payload []byte
	events  []*base.LogEvent
	full    bool

	endpoint  *Endpoint
	inflight  bool
	completed bool
	result    sendResult
	done      chan sendResult
	notify    chan<- struct{} // shared wake channel of the processing loop, capacity 1

	gzipWriter  *gzip.Writer
	compressBuf bytes.Buffer
	responseBuf bytes.Buffer
}

func newSendOperation(parentLogger logger.Logger, cfg Config, serializer *eventSerializer,
	allocator *base.EventAllocator, pool *bulkmodel.ObjectPool, metrics *pipelineMetrics,
	notify chan<- struct{}) *SendOperation {

	operation := &SendOperation{
		logger:        parentLogger.WithField(defs.LabelPart, "operation"),
		serializer:    serializer,
		allocator:     allocator,
		pool:          pool,
		metrics:       metrics,
		maxSizeBytes:  cfg.MaxSizeBytes,
		maxMessages:   cfg.MaxMessages,
		authorization: cfg.AuthorizationHeader(),
		payload:       make([]byte, 0, 16*1024),
		events:        make([]*base.LogEvent, 0, 128),
		done:          make(chan sendResult, 1),
		notify:        notify,
	}
	if cfg.Compression {
		operation.gzipWriter, _ = gzip.NewWriterLevel(&operation.compressBuf, gzip.BestSpeed)
	}
	return operation
}

// AddEvent serializes one event into the payload and reports whether it was consumed.
//
// A false return means the operation is full and the caller still owns the event; the payload
// has been rolled back to the last complete line. An event whose serialized form alone exceeds
// the size cap is logged, released and dropped with a true return: it could never be sent and
// keeping it would block the operation forever.
func (operation *SendOperation) AddEvent(event *base.LogEvent) bool {
	if operation.full {
		return false
	}
	if operation.maxMessages > 0 && len(operation.events) >= operation.maxMessages {
		operation.full = true
		return false
	}
	mark := len(operation.payload)
	operation.payload = operation.serializer.AppendEvent(operation.payload, event)
	if operation.maxSizeBytes > 0 && len(operation.payload) > operation.maxSizeBytes {
		operation.payload = operation.payload[:mark]
		if len(operation.events) == 0 {
			operation.logger.Errorf("discarding event larger than the request size cap %d: logger=%s length=%d",
				operation.maxSizeBytes, event.Logger, len(event.Message))
			operation.metrics.discardedOversized.Inc()
			operation.allocator.Release(event)
			return true
		}
		operation.full = true
		return false
	}
	operation.events = append(operation.events, event)
	return true
}

// HasEvents reports whether any events are buffered for sending
func (operation *SendOperation) HasEvents() bool {
	return len(operation.events) > 0
}

// EventCount returns the numbers of buffered events
func (operation *SendOperation) EventCount() int {
	return len(operation.events)
}

// IsFull reports whether the operation stopped accepting events
func (operation *SendOperation) IsFull() bool {
	return operation.full
}

// Endpoint returns the endpoint assigned by the last StartSending
func (operation *SendOperation) Endpoint() *Endpoint {
	return operation.endpoint
}

// StartSending issues the bulk request asynchronously against the given endpoint.
//
// A false return means the request could not even be constructed; the payload and events are
// untouched and the endpoint should be treated as failed.
func (operation *SendOperation) StartSending(client *http.Client, endpoint *Endpoint) bool {
	body := operation.payload
	contentEncoding := ""
	if operation.gzipWriter != nil {
		operation.compressBuf.Reset()
		operation.gzipWriter.Reset(&operation.compressBuf)
		if _, err := operation.gzipWriter.Write(operation.payload); err == nil {
			if err := operation.gzipWriter.Close(); err == nil {
				body = operation.compressBuf.Bytes()
				contentEncoding = "gzip"
			}
		}
	}

	request, err := http.NewRequest(http.MethodPost, endpoint.BulkURL, bytes.NewReader(body))
	if err != nil {
		operation.logger.Errorf("failed to build request for %s: %s", endpoint.BulkURL, err.Error())
		return false
	}
	request.Header.Set("Content-Type", "application/x-ndjson")
	if contentEncoding != "" {
		request.Header.Set("Content-Encoding", contentEncoding)
	}
	if operation.authorization != "" {
		request.Header.Set("Authorization", operation.authorization)
	}

	operation.endpoint = endpoint
	operation.inflight = true
	operation.completed = false
	operation.metrics.requestsTotal.Inc()

	go func() {
		operation.done <- operation.performRequest(client, request)
		select {
		case operation.notify <- struct{}{}:
		default:
		}
	}()
	return true
}

// performRequest runs on the send goroutine; it must not touch any state the processing loop
// reads before the result is delivered, except the response buffer guarded by that delivery.
func (operation *SendOperation) performRequest(client *http.Client, request *http.Request) sendResult {
	response, err := client.Do(request)
	if err != nil {
		return sendResult{err: err}
	}
	defer response.Body.Close()
	operation.responseBuf.Reset()
	if _, err := io.Copy(&operation.responseBuf, response.Body); err != nil {
		return sendResult{err: err}
	}
	return sendResult{statusCode: response.StatusCode, body: operation.responseBuf.Bytes()}
}

// HasCompletedSending polls without blocking whether the in-flight request has finished
func (operation *SendOperation) HasCompletedSending() bool {
	if operation.completed {
		return true
	}
	if !operation.inflight {
		return false
	}
	select {
	case operation.result = <-operation.done:
		operation.completed = true
		return true
	default:
		return false
	}
}

// ProcessSendCompleted interprets the finished request and reports whether the endpoint behaved
// operationally.
//
// On HTTP 200 the per-item outcomes decide each event's fate: succeeded events are released,
// retryable ones (item status 429) kept for the next attempt, anything else discarded. The
// payload is then rebuilt to contain only the remainder. On transport errors, non-200 statuses
// and malformed responses the whole batch stays intact for retry against another endpoint.
func (operation *SendOperation) ProcessSendCompleted() bool {
	operation.inflight = false
	operation.completed = false
	result := operation.result

	if result.err != nil {
		operation.logger.Warnf("bulk request to %s failed: %s", operation.endpoint.BaseURL, result.err.Error())
		operation.metrics.requestErrorsTotal.Inc()
		return false
	}
	if result.statusCode != http.StatusOK {
		operation.logger.Warnf("bulk request to %s rejected: status %d", operation.endpoint.BaseURL, result.statusCode)
		operation.metrics.requestErrorsTotal.Inc()
		return false
	}

	response, parseErr := bulkmodel.ParseBulkResponse(operation.pool, result.body)
	if parseErr != nil {
		operation.logger.Errorf("malformed bulk response from %s: %s", operation.endpoint.BaseURL, parseErr.Error())
		operation.metrics.responseParseErrors.Inc()
		return false
	}
	defer response.Release()

	if response.ItemCount() != len(operation.events) {
		operation.logger.Errorf("bulk response from %s carries %d items for %d events, retrying batch",
			operation.endpoint.BaseURL, response.ItemCount(), len(operation.events))
		operation.metrics.responseParseErrors.Inc()
		return false
	}

	// walk items in reverse index order: removal by index must not invalidate lower indices
	retried := 0
	for index := response.ItemCount() - 1; index >= 0; index-- {
		item := response.Item(index)
		switch {
		case item.IsSuccess():
			operation.metrics.sentEventsTotal.Inc()
			operation.allocator.Release(operation.events[index])
			operation.removeEventAt(index)
		case item.IsRetryable():
			operation.logger.Warnf("item %d throttled with status %d, will retry", index, item.Status)
			retried++
		default:
			operation.logItemFailure(index, item)
			operation.metrics.discardedRejected.Inc()
			operation.allocator.Release(operation.events[index])
			operation.removeEventAt(index)
		}
	}
	if retried > 0 {
		operation.metrics.retriedEventsTotal.Add(uint64(retried))
	}
	operation.rebuildPayload()
	return true
}

func (operation *SendOperation) logItemFailure(index int, item *bulkmodel.BulkItem) {
	if item.Err != nil {
		operation.logger.Errorf("item %d rejected with status %d: type=%s reason=%s index=%s",
			index, item.Status, item.Err.Type.Value(), item.Err.Reason.Value(), item.Err.Index.Value())
		return
	}
	operation.logger.Errorf("item %d rejected with status %d", index, item.Status)
}

func (operation *SendOperation) removeEventAt(index int) {
	copy(operation.events[index:], operation.events[index+1:])
	operation.events[len(operation.events)-1] = nil
	operation.events = operation.events[:len(operation.events)-1]
}

// rebuildPayload reserializes the remaining events after partial success
func (operation *SendOperation) rebuildPayload() {
	operation.payload = operation.payload[:0]
	operation.full = false
	for _, event := range operation.events {
		operation.payload = operation.serializer.AppendEvent(operation.payload, event)
	}
}

// ReturnEventsTo pushes all buffered events back to the head of the queue in original order,
// leaving the operation free. Used before a configuration reload invalidates the serializer.
func (operation *SendOperation) ReturnEventsTo(queue *base.EventQueue) {
	for index := len(operation.events) - 1; index >= 0; index-- {
		queue.PushFront(operation.events[index])
		operation.events[index] = nil
	}
	operation.events = operation.events[:0]
	operation.payload = operation.payload[:0]
	operation.full = false
	operation.endpoint = nil
}

// Reset releases any remaining events and clears all state for reuse, returning the number of
// events dropped.
//
// If a send is still on the line, Reset waits for it first: network resources in flight must
// never be abandoned.
func (operation *SendOperation) Reset() int {
	if operation.inflight && !operation.completed {
		operation.result = <-operation.done
		operation.completed = true
	}
	operation.inflight = false
	operation.completed = false
	dropped := len(operation.events)
	for index, event := range operation.events {
		operation.allocator.Release(event)
		operation.events[index] = nil
	}
	operation.events = operation.events[:0]
	operation.payload = operation.payload[:0]
	operation.full = false
	operation.endpoint = nil
	return dropped
}
