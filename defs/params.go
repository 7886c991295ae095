package defs

import (
	"time"

	"github.com/c2h5oh/datasize"
)

var (
	// IntakeQueueDefaultCapacity defines how many log events may wait in the intake queue before
	// the configured overflow policy kicks in
	IntakeQueueDefaultCapacity = 50000

	// IntakeBlockRetryInterval defines how long a producer sleeps between attempts when the
	// intake queue is full and the blocking overflow policy is configured
	IntakeBlockRetryInterval = 10 * time.Millisecond

	// RequestConcurrencyDefault is the default numbers of bulk requests allowed on the line at once
	RequestConcurrencyDefault = 5

	// RequestMaxSizeDefault is the default cap on the payload of one bulk request
	RequestMaxSizeDefault = 5 * int(datasize.MB)

	// RequestMaxSizeMin and RequestMaxSizeMax bound the configurable payload cap; values outside
	// the range are clamped, not rejected
	RequestMaxSizeMin = 10 * int(datasize.KB)
	RequestMaxSizeMax = 100 * int(datasize.MB)

	// RequestTimeout is the timeout of one bulk HTTP request including response reading
	RequestTimeout = 60 * time.Second

	// EndpointRetryCooldown defines how long to hold off bulk requests after the preferred
	// endpoint has failed, before the next attempt
	EndpointRetryCooldown = 30 * time.Second

	// ShutdownOverrunTimeout bounds each wait during shutdown draining. Draining itself runs
	// until the queue is empty or every endpoint has been tried and none is operational.
	ShutdownOverrunTimeout = 30 * time.Second
)

// For testing and experiments
const (
	TestReadTimeout = 5 * time.Second
)

// EnableTestMode turns on test mode with very short timeouts and minimal retry delay
func EnableTestMode() {
	IntakeBlockRetryInterval = 1 * time.Millisecond
	RequestTimeout = 3 * time.Second
	EndpointRetryCooldown = 100 * time.Millisecond
	ShutdownOverrunTimeout = 2 * time.Second
}
