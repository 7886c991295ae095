package base

import (
	"sync/atomic"
	"time"

	"github.com/relex/eslog-forwarder/util"
	"github.com/relex/gotils/logger"
)

// EventAllocator allocates empty log events and recycles released ones
//
// It owns the only path by which an event's reference count may reach zero; callers other than
// the producer must resolve every held event through Release exactly once.
type EventAllocator struct {
	eventPool *util.Pool[*LogEvent]
	process   ProcessInfo
}

// NewEventAllocator creates an EventAllocator stamping all events with the given process identity
func NewEventAllocator(process ProcessInfo) *EventAllocator {
	return &EventAllocator{
		eventPool: util.NewPool(func() *LogEvent {
			return &LogEvent{}
		}),
		process: process,
	}
}

// NewEvent creates a new event with reference count one, owned by the caller
func (alloc *EventAllocator) NewEvent(timestamp time.Time, level LogLevel, loggerName string, message string, tags []string) *LogEvent {
	event := alloc.eventPool.Get()
	event.Timestamp = timestamp
	event.Level = level
	event.Logger = loggerName
	event.Message = message
	event.Tags = tags
	event.Process = alloc.process
	event.refCount = 1
	return event
}

// Release resolves one reference to the event and recycles it when the count reaches zero
func (alloc *EventAllocator) Release(event *LogEvent) {
	newCount := atomic.AddInt32(&event.refCount, -1)
	if newCount < 0 {
		logger.Panic("negative reference count in event: ", event)
	}
	if newCount > 0 {
		return
	}
	event.Timestamp = time.Time{}
	event.Logger = ""
	event.Message = ""
	event.Tags = nil
	alloc.eventPool.Put(event)
}
