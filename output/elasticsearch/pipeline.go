package elasticsearch

import (
	"os"
	"sync/atomic"

	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// Pipeline is the forwarding pipeline from event intake to Elasticsearch bulk requests.
//
// Enqueue may be called from any goroutine; everything downstream of the queue runs on the
// worker goroutine. The pipeline subscribes to settings changes and reloads itself in place.
type Pipeline struct {
	logger      logger.Logger
	queue       *base.EventQueue
	worker      *bulkWorker
	metrics     pipelineMetrics
	settings    base.Settings
	stopRequest *channels.SignalAwaitable
	operational atomic.Bool
}

// NewPipeline assembles a pipeline from loaded settings. The returned pipeline is inert until
// Launch is called.
func NewPipeline(parentLogger logger.Logger, settings base.Settings,
	allocator *base.EventAllocator, metricCreator promreg.MetricCreator) (*Pipeline, error) {

	plogger := parentLogger.WithField(defs.LabelComponent, "ElasticsearchPipeline")
	cfg, err := LoadConfig(settings, plogger)
	if err != nil {
		return nil, err
	}

	host, herr := os.Hostname()
	if herr != nil {
		plogger.Warnf("failed to resolve hostname: %s", herr.Error())
		host = "localhost"
	}

	metrics := newPipelineMetrics(metricCreator)
	policy := base.QueueFullDiscard
	if cfg.BlockOnFull {
		policy = base.QueueFullBlock
	}
	stopRequest := channels.NewSignalAwaitable()
	queue := base.NewEventQueue(cfg.QueueCapacity, policy, stopRequest)

	pipeline := &Pipeline{
		logger:      plogger,
		queue:       queue,
		metrics:     metrics,
		settings:    settings,
		stopRequest: stopRequest,
	}
	pipeline.worker = newBulkWorker(plogger, cfg, queue, allocator, &pipeline.metrics, host, stopRequest)
	pipeline.operational.Store(true)
	pipeline.worker.onStateChange = pipeline.operational.Store
	return pipeline, nil
}

// Launch starts the worker goroutine and subscribes to settings changes
func (pipeline *Pipeline) Launch() {
	pipeline.settings.OnChange(func() {
		pipeline.logger.Infof("settings changed, requesting reload")
		pipeline.worker.RequestReload(pipeline.settings)
	})
	pipeline.worker.Launch()
}

// Enqueue hands one event to the pipeline. The caller's reference is untouched; the queue takes
// its own. A false return means the event was not accepted (queue full under discard policy, or
// shutdown in progress).
func (pipeline *Pipeline) Enqueue(event *base.LogEvent) bool {
	if pipeline.queue.Enqueue(event) {
		pipeline.metrics.acceptedEventsTotal.Inc()
		return true
	}
	pipeline.metrics.rejectedEventsTotal.Inc()
	return false
}

// IsOperational reports whether at least one endpoint is believed able to accept requests.
// The value trails the worker's view and is meant for health endpoints, not flow control.
func (pipeline *Pipeline) IsOperational() bool {
	return pipeline.operational.Load()
}

// Stop requests shutdown and returns the awaitable signaled when draining has finished
func (pipeline *Pipeline) Stop() channels.Awaitable {
	pipeline.stopRequest.Signal()
	return pipeline.worker.Stopped()
}

// Stopped returns the awaitable signaled when the worker goroutine has exited
func (pipeline *Pipeline) Stopped() channels.Awaitable {
	return pipeline.worker.Stopped()
}
