package elasticsearch

import (
	"strconv"
	"time"

	"github.com/relex/eslog-forwarder/base"
)

// docSchemaVersion marks the document layout for downstream consumers; bump on breaking changes
const docSchemaVersion = "1"

// eventSerializer renders log events as bulk request lines: one action header plus one document
// per event, newline delimited.
//
// Hand-built JSON in the manner of fastmsgpack: the document layout is fixed and only leaf
// strings need escaping, so a generic marshaller would spend most of its time on reflection.
// Owned exclusively by the processing loop; recreated on configuration reload.
type eventSerializer struct {
	headerLine       []byte // {"create":{"_index":...}} plus newline, identical for every event
	host             string
	organizationID   string
	organizationName string
	nextTick         uint64 // monotonic per-host counter stamped into documents
}

func newEventSerializer(cfg Config, host string, startTick uint64) *eventSerializer {
	headerLine := append([]byte(`{"create":{"_index":`), strconv.AppendQuote(nil, cfg.IndexName)...)
	headerLine = append(headerLine, '}', '}', '\n')
	return &eventSerializer{
		headerLine:       headerLine,
		host:             host,
		organizationID:   cfg.OrganizationID,
		organizationName: cfg.OrganizationName,
		nextTick:         startTick,
	}
}

// NextTick returns the tick value the next document would carry, for carrying over on reload
func (serializer *eventSerializer) NextTick() uint64 {
	return serializer.nextTick
}

// AppendEvent appends the action header line and the document line of one event to buf.
// The caller is responsible for rolling back on overflow by truncating to the prior length.
func (serializer *eventSerializer) AppendEvent(buf []byte, event *base.LogEvent) []byte {
	buf = append(buf, serializer.headerLine...)

	tick := serializer.nextTick
	serializer.nextTick++

	buf = append(buf, `{"timestamp":"`...)
	buf = event.Timestamp.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","severity":`...)
	buf = strconv.AppendInt(buf, int64(event.Level), 10)
	buf = append(buf, `,"timezone":"`...)
	buf = event.Timestamp.AppendFormat(buf, "-07:00")
	buf = append(buf, `","host":`...)
	buf = strconv.AppendQuote(buf, serializer.host)
	buf = append(buf, `,"tick":`...)
	buf = strconv.AppendUint(buf, tick, 10)
	buf = append(buf, `,"level":`...)
	buf = strconv.AppendQuote(buf, event.Level.String())
	buf = append(buf, `,"logger":`...)
	buf = strconv.AppendQuote(buf, event.Logger)
	buf = append(buf, `,"message":`...)
	buf = strconv.AppendQuote(buf, event.Message)
	if serializer.organizationID != "" {
		buf = append(buf, `,"organizationid":`...)
		buf = strconv.AppendQuote(buf, serializer.organizationID)
	}
	if serializer.organizationName != "" {
		buf = append(buf, `,"organizationname":`...)
		buf = strconv.AppendQuote(buf, serializer.organizationName)
	}
	buf = append(buf, `,"processname":`...)
	buf = strconv.AppendQuote(buf, event.Process.Name)
	buf = append(buf, `,"processid":`...)
	buf = strconv.AppendInt(buf, int64(event.Process.ID), 10)
	buf = append(buf, `,"processtitle":`...)
	buf = strconv.AppendQuote(buf, event.Process.Title)
	if len(event.Tags) > 0 {
		buf = append(buf, `,"tags":[`...)
		for i, tag := range event.Tags {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = strconv.AppendQuote(buf, tag)
		}
		buf = append(buf, ']')
	}
	buf = append(buf, `,"schema":"`...)
	buf = append(buf, docSchemaVersion...)
	buf = append(buf, '"', '}', '\n')
	return buf
}
