package base

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventAllocatorReleaseAccounting(t *testing.T) {
	alloc := NewEventAllocator(ProcessInfo{Name: "app", ID: 42, Title: "app --serve"})

	event := alloc.NewEvent(time.Now(), LevelWarning, "core", "watch out", []string{"a", "b"})
	assert.Equal(t, int32(1), event.refCount)
	assert.Equal(t, "app", event.Process.Name)

	event.AddRef()
	assert.Equal(t, int32(2), event.refCount)

	alloc.Release(event)
	assert.Equal(t, "watch out", event.Message, "fields must survive while references remain")

	alloc.Release(event)
	assert.Equal(t, "", event.Message, "fields are cleared when the last reference is resolved")
	assert.Nil(t, event.Tags)
}

func TestEventAllocatorRecycling(t *testing.T) {
	alloc := NewEventAllocator(ProcessInfo{Name: "app", ID: 1})

	event := alloc.NewEvent(time.Now(), LevelInfo, "core", "one", nil)
	alloc.Release(event)

	recycled := alloc.NewEvent(time.Now(), LevelError, "core", "two", nil)
	assert.Equal(t, int32(1), recycled.refCount)
	assert.Equal(t, "two", recycled.Message)
}

func TestLogLevelNames(t *testing.T) {
	assert.Equal(t, "Trace", LevelTrace.String())
	assert.Equal(t, "Fatal", LevelFatal.String())
	assert.Equal(t, "Info", LogLevel(99).String())
	assert.Equal(t, 9, int(LevelFatal))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelWarning, ParseLogLevel("warning"))
	assert.Equal(t, LevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLogLevel("unheard-of"))
	assert.Equal(t, LevelInfo, ParseLogLevel(""))
}
