package elasticsearch

import (
	"strings"
	"time"

	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/logger"
	"golang.org/x/exp/slices"
)

// Endpoint is one configured remote ingest URL with independent health tracking.
//
// All fields are mutated only by the processing loop after a send attempt completes. The whole
// set is recreated on configuration reload.
type Endpoint struct {
	BaseURL     string
	BulkURL     string
	Operational bool
	Probing     bool      // just recovered from failure, in-flight requests limited to one
	Tried       bool      // whether a request has ever been attempted
	LastError   time.Time // zero if the endpoint never failed
}

func newEndpoint(baseURL string) *Endpoint {
	return &Endpoint{
		BaseURL:     baseURL,
		BulkURL:     strings.TrimRight(baseURL, "/") + "/_bulk",
		Operational: true,
	}
}

// endpointRegistry keeps the endpoint list ordered best-first: the front entry is the next one
// to try. Owned exclusively by the processing loop, no locking.
type endpointRegistry struct {
	logger    logger.Logger
	endpoints []*Endpoint
}

func newEndpointRegistry(parentLogger logger.Logger, baseURLs []string) *endpointRegistry {
	endpoints := make([]*Endpoint, len(baseURLs))
	for i, baseURL := range baseURLs {
		endpoints[i] = newEndpoint(baseURL)
	}
	return &endpointRegistry{
		logger:    parentLogger.WithField(defs.LabelPart, "endpoints"),
		endpoints: endpoints,
	}
}

// Current returns the most promising endpoint, or nil if none are configured
func (registry *endpointRegistry) Current() *Endpoint {
	if len(registry.endpoints) == 0 {
		return nil
	}
	return registry.endpoints[0]
}

// SetOperational records the outcome of a send attempt.
//
// A succeeding endpoint moves to the front and leaves probing; a failing one is stamped with the
// failure time, enters probing for its next recovery and moves to the back so the next loop
// iteration tries the new front entry.
func (registry *endpointRegistry) SetOperational(endpoint *Endpoint, operational bool) {
	endpoint.Tried = true
	if operational {
		endpoint.Operational = true
		endpoint.Probing = false
		endpoint.LastError = time.Time{}
		registry.moveToFront(endpoint)
		return
	}
	endpoint.Operational = false
	endpoint.Probing = true
	endpoint.LastError = time.Now()
	registry.logger.Warnf("endpoint %s marked non-operational", endpoint.BaseURL)
	registry.moveToBack(endpoint)
}

// IsAnyOperational reports the pipeline's externally visible health flag
func (registry *endpointRegistry) IsAnyOperational() bool {
	for _, endpoint := range registry.endpoints {
		if endpoint.Operational {
			return true
		}
	}
	return false
}

// AnyUntried reports whether some endpoint has never been attempted
func (registry *endpointRegistry) AnyUntried() bool {
	for _, endpoint := range registry.endpoints {
		if !endpoint.Tried {
			return true
		}
	}
	return false
}

// CountOperational returns the numbers of endpoints currently marked operational
func (registry *endpointRegistry) CountOperational() int {
	count := 0
	for _, endpoint := range registry.endpoints {
		if endpoint.Operational {
			count++
		}
	}
	return count
}

// CooldownRemaining returns how long to hold off before retrying the front endpoint, zero if it
// may be tried immediately. An endpoint that has never failed has no cooldown.
func (registry *endpointRegistry) CooldownRemaining(now time.Time) time.Duration {
	endpoint := registry.Current()
	if endpoint == nil || endpoint.LastError.IsZero() {
		return 0
	}
	remaining := defs.EndpointRetryCooldown - now.Sub(endpoint.LastError)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (registry *endpointRegistry) moveToFront(endpoint *Endpoint) {
	index := slices.Index(registry.endpoints, endpoint)
	if index <= 0 {
		return
	}
	registry.endpoints = slices.Delete(registry.endpoints, index, index+1)
	registry.endpoints = slices.Insert(registry.endpoints, 0, endpoint)
}

func (registry *endpointRegistry) moveToBack(endpoint *Endpoint) {
	index := slices.Index(registry.endpoints, endpoint)
	if index < 0 || index == len(registry.endpoints)-1 {
		return
	}
	registry.endpoints = slices.Delete(registry.endpoints, index, index+1)
	registry.endpoints = append(registry.endpoints, endpoint)
}
