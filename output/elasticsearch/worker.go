package elasticsearch

import (
	"net/http"
	"time"

	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/eslog-forwarder/bulkmodel"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// bulkWorker runs the sending side of the pipeline on a single goroutine: it drains the event
// queue into operations, launches them concurrently against the best endpoint and interprets the
// outcomes. All operation and endpoint state is owned by this goroutine; the only concurrency is
// the send goroutines, which report back through the shared wake channel.
type bulkWorker struct {
	logger    logger.Logger
	queue     *base.EventQueue
	allocator *base.EventAllocator
	metrics   *pipelineMetrics

	config     Config
	client     *http.Client
	serializer *eventSerializer
	endpoints  *endpointRegistry
	pool       *bulkmodel.ObjectPool
	opWake     chan struct{}

	filling   *SendOperation   // operation being filled from the queue, nil when none
	scheduled []*SendOperation // filled operations waiting for an endpoint slot
	pending   []*SendOperation // operations with a request on the line
	free      []*SendOperation

	reloadCh chan base.Settings // capacity 1, armed by RequestReload
	host     string

	stopRequest   channels.Awaitable
	stopped       *channels.SignalAwaitable
	onStateChange func(operational bool)
}

func newBulkWorker(parentLogger logger.Logger, cfg Config, queue *base.EventQueue,
	allocator *base.EventAllocator, metrics *pipelineMetrics, host string,
	stopRequest channels.Awaitable) *bulkWorker {

	worker := &bulkWorker{
		logger:      parentLogger.WithField(defs.LabelPart, "worker"),
		queue:       queue,
		allocator:   allocator,
		metrics:     metrics,
		host:        host,
		reloadCh:    make(chan base.Settings, 1),
		opWake:      make(chan struct{}, 1),
		stopRequest: stopRequest,
		stopped:     channels.NewSignalAwaitable(),
	}
	worker.applyConfig(cfg, 0)
	return worker
}

// applyConfig installs a configuration, rebuilding everything derived from it. Only callable
// when no operation holds events.
func (worker *bulkWorker) applyConfig(cfg Config, startTick uint64) {
	worker.config = cfg
	worker.client = &http.Client{Timeout: cfg.Timeout}
	worker.serializer = newEventSerializer(cfg, worker.host, startTick)
	worker.endpoints = newEndpointRegistry(worker.logger, cfg.Endpoints)
	worker.pool = bulkmodel.NewObjectPool()

	worker.filling = nil
	worker.scheduled = worker.scheduled[:0]
	worker.pending = worker.pending[:0]
	worker.free = worker.free[:0]
	for i := 0; i < cfg.Concurrency+1; i++ {
		worker.free = append(worker.free, newSendOperation(worker.logger, cfg, worker.serializer,
			worker.allocator, worker.pool, worker.metrics, worker.opWake))
	}
	worker.queue.SetCapacity(cfg.QueueCapacity)
	worker.metrics.operationalEndpoints.Set(int64(worker.endpoints.CountOperational()))
}

// RequestReload arms a pending hot reload; the worker picks it up once no requests are on the
// line. Back-to-back requests collapse into one.
func (worker *bulkWorker) RequestReload(settings base.Settings) {
	select {
	case worker.reloadCh <- settings:
	default:
	}
	select {
	case worker.opWake <- struct{}{}:
	default:
	}
}

// Stopped returns the awaitable signaled when the worker goroutine has exited
func (worker *bulkWorker) Stopped() channels.Awaitable {
	return worker.stopped
}

// Launch starts the worker goroutine
func (worker *bulkWorker) Launch() {
	go worker.run()
}

func (worker *bulkWorker) run() {
	worker.logger.Infof("started with %d endpoint(s), concurrency %d",
		len(worker.config.Endpoints), worker.config.Concurrency)
	defer worker.stopped.Signal()

	var overrunDeadline time.Time

	for {
		worker.reapCompleted()
		worker.maybeReload()
		worker.fillOperations()
		worker.launchScheduled()
		worker.updateGauges()

		stopping := worker.stopRequest.Peek()
		if stopping {
			if overrunDeadline.IsZero() {
				overrunDeadline = time.Now().Add(defs.ShutdownOverrunTimeout)
				worker.logger.Infof("draining %d queued and %d staged event(s) before exit",
					worker.queue.Length(), worker.stagedEventCount())
			}
			if worker.drainFinished() {
				break
			}
		}

		worker.waitForWork(stopping, overrunDeadline)
	}

	worker.shutdown()
}

// reapCompleted processes finished requests in reverse submission order so that retried
// operations are prepended to the schedule and keep their place in line.
func (worker *bulkWorker) reapCompleted() {
	for index := len(worker.pending) - 1; index >= 0; index-- {
		operation := worker.pending[index]
		if !operation.HasCompletedSending() {
			continue
		}
		worker.pending = append(worker.pending[:index], worker.pending[index+1:]...)

		endpoint := operation.Endpoint()
		if operation.ProcessSendCompleted() {
			worker.endpoints.SetOperational(endpoint, true)
		} else {
			worker.endpoints.SetOperational(endpoint, false)
			worker.metrics.failoversTotal.Inc()
		}

		if operation.HasEvents() {
			worker.scheduled = append([]*SendOperation{operation}, worker.scheduled...)
		} else {
			worker.free = append(worker.free, operation)
		}
	}
	worker.metrics.operationalEndpoints.Set(int64(worker.endpoints.CountOperational()))
}

// maybeReload applies a pending configuration change, but only from a quiescent state: events
// staged in operations are first pushed back to the queue front so nothing is serialized with a
// stale index name or organization.
func (worker *bulkWorker) maybeReload() {
	if len(worker.reloadCh) == 0 || len(worker.pending) > 0 {
		return
	}
	settings := <-worker.reloadCh
	if worker.filling != nil {
		worker.filling.ReturnEventsTo(worker.queue)
		worker.free = append(worker.free, worker.filling)
		worker.filling = nil
	}
	for index := len(worker.scheduled) - 1; index >= 0; index-- {
		worker.scheduled[index].ReturnEventsTo(worker.queue)
		worker.free = append(worker.free, worker.scheduled[index])
	}
	worker.scheduled = worker.scheduled[:0]

	newConfig, err := LoadConfig(settings, worker.logger)
	if err != nil {
		worker.logger.Errorf("keeping previous configuration, reload failed: %s", err.Error())
		worker.metrics.reloadFailuresTotal.Inc()
		return
	}
	nextTick := worker.serializer.NextTick()
	worker.applyConfig(newConfig, nextTick)
	worker.metrics.reloadsTotal.Inc()
	worker.logger.Infof("configuration reloaded: %d endpoint(s), index %s",
		len(newConfig.Endpoints), newConfig.IndexName)
}

// fillOperations moves queued events into the filling operation and schedules it when full.
// A partially filled operation is also scheduled if nothing else is in progress, so small
// trickles of events do not wait for a full batch.
func (worker *bulkWorker) fillOperations() {
	for {
		if worker.filling == nil {
			if len(worker.free) == 0 {
				return
			}
			worker.filling = worker.free[len(worker.free)-1]
			worker.free = worker.free[:len(worker.free)-1]
		}

		event := worker.queue.Dequeue()
		if event == nil {
			break
		}
		if !worker.filling.AddEvent(event) {
			worker.queue.PushFront(event)
			worker.scheduled = append(worker.scheduled, worker.filling)
			worker.filling = nil
			continue
		}
	}

	if worker.filling != nil && worker.filling.HasEvents() &&
		len(worker.scheduled) == 0 && len(worker.pending) == 0 {
		worker.scheduled = append(worker.scheduled, worker.filling)
		worker.filling = nil
	}
}

// launchScheduled starts requests while concurrency slots and an operational endpoint exist.
// A probing endpoint gets exactly one request at a time: there is no point flooding a host that
// recently failed, and a single probe decides its fate.
func (worker *bulkWorker) launchScheduled() {
	for len(worker.scheduled) > 0 && len(worker.pending) < worker.config.Concurrency {
		endpoint := worker.pickEndpoint()
		if endpoint == nil {
			return
		}
		if endpoint.Probing && len(worker.pending) > 0 {
			return
		}

		operation := worker.scheduled[0]
		if !operation.StartSending(worker.client, endpoint) {
			worker.endpoints.SetOperational(endpoint, false)
			worker.metrics.failoversTotal.Inc()
			continue
		}
		worker.scheduled = worker.scheduled[1:]
		worker.pending = append(worker.pending, operation)

		if endpoint.Probing {
			return
		}
	}
}

// pickEndpoint returns the preferred endpoint, honoring the retry cooldown of failed ones
func (worker *bulkWorker) pickEndpoint() *Endpoint {
	endpoint := worker.endpoints.Current()
	if endpoint == nil {
		return nil
	}
	if endpoint.Operational {
		return endpoint
	}
	if worker.endpoints.CooldownRemaining(time.Now()) > 0 {
		return nil
	}
	return endpoint
}

func (worker *bulkWorker) stagedEventCount() int {
	count := 0
	if worker.filling != nil {
		count += worker.filling.EventCount()
	}
	for _, operation := range worker.scheduled {
		count += operation.EventCount()
	}
	for _, operation := range worker.pending {
		count += operation.EventCount()
	}
	return count
}

// drainFinished decides whether shutdown draining is complete. Draining continues past the
// overrun window as long as some endpoint has never been tried or is still operational; once
// every endpoint has been tried and failed there is nowhere left to send.
func (worker *bulkWorker) drainFinished() bool {
	if worker.queue.Length() == 0 && worker.stagedEventCount() == 0 && len(worker.pending) == 0 {
		return true
	}
	if !worker.endpoints.IsAnyOperational() && !worker.endpoints.AnyUntried() {
		worker.logger.Errorf("abandoning drain, every endpoint failed")
		return true
	}
	return false
}

// waitForWork blocks until new events arrive, a request completes, stop is requested or a timer
// expires (endpoint cooldown or the shutdown overrun deadline)
func (worker *bulkWorker) waitForWork(stopping bool, overrunDeadline time.Time) {
	timeout := time.Duration(-1)
	if cooldown := worker.endpoints.CooldownRemaining(time.Now()); cooldown > 0 &&
		(len(worker.scheduled) > 0 || worker.queue.Length() > 0) {
		timeout = cooldown
	}
	if stopping {
		remaining := time.Until(overrunDeadline)
		if remaining < 0 {
			remaining = defs.IntakeBlockRetryInterval
		}
		if timeout < 0 || remaining < timeout {
			timeout = remaining
		}
	}

	var timerCh <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerCh = timer.C
	}

	// once stopping, the stop channel stays ready and must not keep waking the loop
	stopCh := worker.stopRequest.Channel()
	if stopping {
		stopCh = nil
	}

	select {
	case <-worker.queue.WakeChannel():
	case <-worker.opWake:
	case <-stopCh:
	case <-timerCh:
	}
}

func (worker *bulkWorker) updateGauges() {
	worker.metrics.queuedEvents.Set(int64(worker.queue.Length()))
	worker.metrics.pendingOperations.Set(int64(len(worker.pending)))
	if worker.onStateChange != nil {
		worker.onStateChange(worker.endpoints.IsAnyOperational() || worker.endpoints.AnyUntried())
	}
}

// shutdown discards whatever could not be delivered within the drain window
func (worker *bulkWorker) shutdown() {
	dropped := 0
	if worker.filling != nil {
		dropped += worker.filling.Reset()
		worker.filling = nil
	}
	for _, operation := range worker.scheduled {
		dropped += operation.Reset()
	}
	worker.scheduled = worker.scheduled[:0]
	for _, operation := range worker.pending {
		dropped += operation.Reset()
	}
	worker.pending = worker.pending[:0]

	worker.queue.DrainReleasing(func(event *base.LogEvent) {
		worker.allocator.Release(event)
		dropped++
	})
	if dropped > 0 {
		worker.metrics.discardedShutdown.Add(uint64(dropped))
		worker.logger.Warnf("discarded %d undelivered event(s) at shutdown", dropped)
	}
	worker.logger.Infof("stopped")
}
