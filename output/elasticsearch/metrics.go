package elasticsearch

import (
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

// pipelineMetrics defines the metrics of the bulk-ingest pipeline stage
type pipelineMetrics struct {
	queuedEvents         promext.RWGauge // current numbers of events in the intake queue
	pendingOperations    promext.RWGauge // current numbers of requests on the line
	operationalEndpoints promext.RWGauge
	acceptedEventsTotal  promext.RWCounter
	rejectedEventsTotal  promext.RWCounter // events turned away at intake due to a full queue
	sentEventsTotal      promext.RWCounter
	retriedEventsTotal   promext.RWCounter // events kept for resending after item-level 429
	discardedOversized   promext.RWCounter
	discardedRejected    promext.RWCounter // events rejected per-item by the server
	discardedShutdown    promext.RWCounter
	requestsTotal        promext.RWCounter
	requestErrorsTotal   promext.RWCounter // transport errors and non-200 responses
	responseParseErrors  promext.RWCounter
	failoversTotal       promext.RWCounter
	reloadsTotal         promext.RWCounter
	reloadFailuresTotal  promext.RWCounter
}

func newPipelineMetrics(metricCreator promreg.MetricCreator) pipelineMetrics {
	outputMetricCreator := metricCreator.AddOrGetPrefix("output_", []string{"output"}, []string{"elasticsearch"})
	discardedEvents := outputMetricCreator.AddOrGetCounterVec("discarded_events_total", "Numbers of discarded events", []string{"reason"}, nil)
	reloads := outputMetricCreator.AddOrGetCounterVec("reloads_total", "Numbers of configuration reloads", []string{"status"}, nil)

	metrics := pipelineMetrics{
		queuedEvents:         outputMetricCreator.AddOrGetGauge("queued_events", "Numbers of currently queued events", nil, nil),
		pendingOperations:    outputMetricCreator.AddOrGetGauge("pending_operations", "Numbers of bulk requests currently on the line", nil, nil),
		operationalEndpoints: outputMetricCreator.AddOrGetGauge("operational_endpoints", "Numbers of endpoints currently marked operational", nil, nil),
		acceptedEventsTotal:  outputMetricCreator.AddOrGetCounter("accepted_events_total", "Numbers of events accepted into the intake queue", nil, nil),
		rejectedEventsTotal:  outputMetricCreator.AddOrGetCounter("rejected_events_total", "Numbers of events rejected at intake due to a full queue", nil, nil),
		sentEventsTotal:      outputMetricCreator.AddOrGetCounter("sent_events_total", "Numbers of events acknowledged by the server", nil, nil),
		retriedEventsTotal:   outputMetricCreator.AddOrGetCounter("retried_events_total", "Numbers of event resends after retryable item failures", nil, nil),
		discardedOversized:   discardedEvents.WithLabelValues("oversized"),
		discardedRejected:    discardedEvents.WithLabelValues("rejected"),
		discardedShutdown:    discardedEvents.WithLabelValues("shutdown"),
		requestsTotal:        outputMetricCreator.AddOrGetCounter("requests_total", "Numbers of bulk requests issued", nil, nil),
		requestErrorsTotal:   outputMetricCreator.AddOrGetCounter("request_errors_total", "Numbers of failed bulk requests (transport errors and non-200 statuses)", nil, nil),
		responseParseErrors:  outputMetricCreator.AddOrGetCounter("response_parse_errors_total", "Numbers of malformed bulk responses", nil, nil),
		failoversTotal:       outputMetricCreator.AddOrGetCounter("failovers_total", "Numbers of endpoints marked non-operational", nil, nil),
		reloadsTotal:         reloads.WithLabelValues("success"),
		reloadFailuresTotal:  reloads.WithLabelValues("failure"),
	}
	// reset gauges in case metricCreator is reused
	metrics.queuedEvents.Set(0)
	metrics.pendingOperations.Set(0)
	metrics.operationalEndpoints.Set(0)
	return metrics
}
