package run

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
)

// EventSink accepts log events for forwarding; implemented by the Elasticsearch pipeline
type EventSink interface {
	Enqueue(event *base.LogEvent) bool
}

// LineProducer reads newline-delimited log lines and feeds them to the sink as events.
//
// A line is either a plain message, or "level|logger|message" to carry explicit metadata.
// Unknown level names fall back to Info rather than failing the line.
type LineProducer struct {
	logger        logger.Logger
	reader        io.Reader
	allocator     *base.EventAllocator
	sink          EventSink
	linesTotal    promext.RWCounter
	rejectedTotal promext.RWCounter
	stopped       *channels.SignalAwaitable
}

// NewLineProducer creates a producer reading from the given stream, typically stdin
func NewLineProducer(parentLogger logger.Logger, reader io.Reader, allocator *base.EventAllocator,
	sink EventSink, metricCreator promreg.MetricCreator) *LineProducer {

	inputMetricCreator := metricCreator.AddOrGetPrefix("input_", []string{"input"}, []string{"stdin"})
	return &LineProducer{
		logger:        parentLogger.WithField(defs.LabelComponent, "LineProducer"),
		reader:        reader,
		allocator:     allocator,
		sink:          sink,
		linesTotal:    inputMetricCreator.AddOrGetCounter("lines_total", "Numbers of lines read", nil, nil),
		rejectedTotal: inputMetricCreator.AddOrGetCounter("rejected_lines_total", "Numbers of lines rejected by the pipeline", nil, nil),
		stopped:       channels.NewSignalAwaitable(),
	}
}

// Launch starts reading in background until EOF or a read error
func (producer *LineProducer) Launch() {
	go producer.run()
}

// Stopped returns the awaitable signaled when the input stream has ended
func (producer *LineProducer) Stopped() channels.Awaitable {
	return producer.stopped
}

func (producer *LineProducer) run() {
	defer producer.stopped.Signal()

	scanner := bufio.NewScanner(producer.reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		producer.linesTotal.Inc()

		level, loggerName, message := splitLine(line)
		event := producer.allocator.NewEvent(time.Now(), level, loggerName, message, nil)
		if !producer.sink.Enqueue(event) {
			producer.rejectedTotal.Inc()
		}
		producer.allocator.Release(event)
	}
	if err := scanner.Err(); err != nil {
		producer.logger.Errorf("input stream failed: %s", err.Error())
	} else {
		producer.logger.Infof("input stream ended")
	}
}

func splitLine(line string) (base.LogLevel, string, string) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return base.LevelInfo, "stdin", line
	}
	return base.ParseLogLevel(parts[0]), parts[1], parts[2]
}
