package run

import (
	"strings"
	"testing"

	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/stretchr/testify/assert"
)

type capturedEvent struct {
	Level   base.LogLevel
	Logger  string
	Message string
}

// captureSink records enqueued events, rejecting once full
type captureSink struct {
	events   []capturedEvent
	capacity int
}

func (sink *captureSink) Enqueue(event *base.LogEvent) bool {
	if len(sink.events) >= sink.capacity {
		return false
	}
	sink.events = append(sink.events, capturedEvent{
		Level:   event.Level,
		Logger:  event.Logger,
		Message: event.Message,
	})
	return true
}

func TestLineProducer(t *testing.T) {
	input := strings.Join([]string{
		"plain message",
		"error|nginx|upstream timed out",
		"bogus|app|odd level still goes through",
		"half|pipes only",
		"",
		"last",
	}, "\n")

	allocator := base.NewEventAllocator(base.ProcessInfo{Name: "test"})
	sink := &captureSink{capacity: 5}
	producer := NewLineProducer(logger.WithField("test", t.Name()), strings.NewReader(input),
		allocator, sink, promreg.NewMetricFactory("testproducer_", nil, nil))

	producer.Launch()
	assert.True(t, producer.Stopped().Wait(defs.TestReadTimeout))

	assert.Equal(t, []capturedEvent{
		{base.LevelInfo, "stdin", "plain message"},
		{base.LevelError, "nginx", "upstream timed out"},
		{base.LevelInfo, "app", "odd level still goes through"},
		{base.LevelInfo, "stdin", "half|pipes only"},
		{base.LevelInfo, "stdin", "last"},
	}, sink.events)
	assert.Equal(t, uint64(5), producer.linesTotal.Get())
	assert.Equal(t, uint64(0), producer.rejectedTotal.Get())
}

func TestLineProducerRejection(t *testing.T) {
	allocator := base.NewEventAllocator(base.ProcessInfo{Name: "test"})
	sink := &captureSink{capacity: 1}
	producer := NewLineProducer(logger.WithField("test", t.Name()), strings.NewReader("one\ntwo\nthree\n"),
		allocator, sink, promreg.NewMetricFactory("testproducer2_", nil, nil))

	producer.Launch()
	assert.True(t, producer.Stopped().Wait(defs.TestReadTimeout))

	assert.Len(t, sink.events, 1)
	assert.Equal(t, uint64(3), producer.linesTotal.Get())
	assert.Equal(t, uint64(2), producer.rejectedTotal.Get())
}
