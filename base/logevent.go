package base

import (
	"strings"
	"sync/atomic"
	"time"
)

// LogLevel is the severity of a log event, 0-9 from least to most severe
type LogLevel int

// The fixed level table. The numeric values are part of the output document schema and must not change.
const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelVerbose
	LevelInfo
	LevelNotice
	LevelWarning
	LevelError
	LevelCritical
	LevelAlert
	LevelFatal
)

var logLevelNames = [...]string{
	"Trace",
	"Debug",
	"Verbose",
	"Info",
	"Notice",
	"Warning",
	"Error",
	"Critical",
	"Alert",
	"Fatal",
}

// String returns the level name used in output documents. Out-of-range levels map to Info.
func (level LogLevel) String() string {
	if level < LevelTrace || level > LevelFatal {
		return logLevelNames[LevelInfo]
	}
	return logLevelNames[level]
}

// ParseLogLevel maps a case-insensitive level name to its LogLevel; unknown names map to Info
func ParseLogLevel(name string) LogLevel {
	for level, levelName := range logLevelNames {
		if strings.EqualFold(name, levelName) {
			return LogLevel(level)
		}
	}
	return LevelInfo
}

// ProcessInfo identifies the producing process, computed once at startup and shared by all events
type ProcessInfo struct {
	Name  string
	ID    int
	Title string
}

// LogEvent is one log record accepted into the pipeline.
//
// An event is shared between the producer and the pipeline via the reference count: the pipeline
// increments it on intake and decrements exactly once when the event's fate is resolved, whether
// sent, permanently failed or discarded. Fields are immutable for as long as any reference is held.
//
// An event is held in exactly one place at any time: the intake queue or the pending list of one
// send operation, never both.
type LogEvent struct {
	Timestamp time.Time // wall-clock time with full precision, the timezone is preserved for output
	Level     LogLevel
	Logger    string // name of the writer that produced the event
	Message   string
	Tags      []string // optional, nil for none
	Process   ProcessInfo

	refCount int32 // atomic; +1 for new, -1 for release (back to pool)
}

// AddRef increments the reference count. Safe to call from any goroutine.
func (event *LogEvent) AddRef() {
	atomic.AddInt32(&event.refCount, 1)
}
