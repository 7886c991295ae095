package base

import (
	"sync"

	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/channels"
)

// QueueFullPolicy selects what Enqueue does when the queue is at capacity
type QueueFullPolicy int

const (
	// QueueFullDiscard rejects the incoming event immediately; its reference count is untouched
	QueueFullDiscard QueueFullPolicy = iota
	// QueueFullBlock retries with a short sleep until space frees or shutdown is signaled
	QueueFullBlock
)

// EventQueue is the bounded FIFO intake queue decoupling producers from the processing loop.
//
// It is the only structure touched by both producer goroutines and the processing loop; every
// operation runs under one mutex. Enqueue adds a reference to accepted events; dequeued events
// keep that reference until the processing loop resolves their fate.
type EventQueue struct {
	mutex       sync.Mutex
	buf         []*LogEvent // ring buffer; len(buf) may exceed capacity temporarily, see PushFront
	head        int
	count       int
	capacity    int // the configured bound enforced by Enqueue
	policy      QueueFullPolicy
	wakeChan    chan struct{} // capacity 1, token present while new events may be waiting
	stopRequest channels.Awaitable
}

// NewEventQueue creates an EventQueue of the given capacity.
//
// stopRequest aborts blocked producers when the blocking overflow policy is configured.
func NewEventQueue(capacity int, policy QueueFullPolicy, stopRequest channels.Awaitable) *EventQueue {
	if capacity <= 0 {
		capacity = defs.IntakeQueueDefaultCapacity
	}
	return &EventQueue{
		buf:         make([]*LogEvent, capacity),
		head:        0,
		count:       0,
		capacity:    capacity,
		policy:      policy,
		wakeChan:    make(chan struct{}, 1),
		stopRequest: stopRequest,
	}
}

// Enqueue offers an event to the queue and reports whether it was accepted.
//
// An accepted event gains one reference owned by the pipeline. A rejected event is not retained
// and its reference count is unchanged.
func (queue *EventQueue) Enqueue(event *LogEvent) bool {
	for {
		queue.mutex.Lock()
		if queue.count < queue.capacity {
			event.AddRef()
			queue.buf[(queue.head+queue.count)%len(queue.buf)] = event
			queue.count++
			queue.mutex.Unlock()
			queue.signalWake()
			return true
		}
		queue.mutex.Unlock()

		if queue.policy == QueueFullDiscard {
			return false
		}
		if queue.stopRequest.Wait(defs.IntakeBlockRetryInterval) {
			return false
		}
	}
}

// Dequeue pops the oldest event or returns nil if the queue is empty.
//
// The event's pipeline reference is transferred to the caller, not released.
func (queue *EventQueue) Dequeue() *LogEvent {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	if queue.count == 0 {
		return nil
	}
	event := queue.buf[queue.head]
	queue.buf[queue.head] = nil
	queue.head = (queue.head + 1) % len(queue.buf)
	queue.count--
	if len(queue.buf) > queue.capacity && queue.count <= queue.capacity {
		queue.resizeLocked(queue.capacity)
	}
	return event
}

// PushFront returns an event to the head of the queue, preserving FIFO order for events the
// processing loop dequeued but could not fit into the current send operation.
//
// The ring grows past the configured capacity if necessary: the event already holds a pipeline
// reference and silently dropping it here would break the release accounting. Enqueue keeps
// enforcing the configured bound and Dequeue shrinks the ring back once it drains below it.
func (queue *EventQueue) PushFront(event *LogEvent) {
	queue.mutex.Lock()
	if queue.count == len(queue.buf) {
		queue.resizeLocked(len(queue.buf) + 1)
	}
	queue.head = (queue.head - 1 + len(queue.buf)) % len(queue.buf)
	queue.buf[queue.head] = event
	queue.count++
	queue.mutex.Unlock()
	queue.signalWake()
}

// Length returns the current numbers of queued events
func (queue *EventQueue) Length() int {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	return queue.count
}

// SetCapacity applies a new capacity from reloaded configuration.
//
// Queued events are always kept; shrinking below the current length takes effect gradually as
// events are drained.
func (queue *EventQueue) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = defs.IntakeQueueDefaultCapacity
	}
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	queue.capacity = capacity
	if capacity < queue.count {
		capacity = queue.count // Dequeue shrinks the ring once enough events drain
	}
	if capacity != len(queue.buf) {
		queue.resizeLocked(capacity)
	}
}

// WakeChannel returns the channel signaled whenever events are added, holding at most one token
func (queue *EventQueue) WakeChannel() <-chan struct{} {
	return queue.wakeChan
}

func (queue *EventQueue) signalWake() {
	select {
	case queue.wakeChan <- struct{}{}:
	default:
	}
}

func (queue *EventQueue) resizeLocked(capacity int) {
	newBuf := make([]*LogEvent, capacity)
	for i := 0; i < queue.count; i++ {
		newBuf[i] = queue.buf[(queue.head+i)%len(queue.buf)]
	}
	queue.buf = newBuf
	queue.head = 0
}

// DrainReleasing empties the queue, resolving each leftover event through release, and returns
// the numbers of discarded events. Used when shutdown overruns its window.
func (queue *EventQueue) DrainReleasing(release func(*LogEvent)) int {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()
	discarded := queue.count
	for i := 0; i < queue.count; i++ {
		index := (queue.head + i) % len(queue.buf)
		release(queue.buf[index])
		queue.buf[index] = nil
	}
	queue.head = 0
	queue.count = 0
	if len(queue.buf) != queue.capacity {
		queue.buf = make([]*LogEvent, queue.capacity)
	}
	return discarded
}
