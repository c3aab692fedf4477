package sim

import (
	"time"

	"github.com/google/uuid"
)

// DefaultLogCapacity is the number of entries the dashboard keeps.
const DefaultLogCapacity = 50

// LogSink is a bounded newest-first log. It is not safe for concurrent use;
// the simulator serializes access through its own lock.
type LogSink struct {
	entries  []LogEntry
	capacity int
	now      func() time.Time
}

// NewLogSink creates an empty sink holding at most capacity entries.
func NewLogSink(capacity int, now func() time.Time) *LogSink {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &LogSink{capacity: capacity, now: now}
}

// Record prepends a new entry and drops the oldest beyond capacity.
func (l *LogSink) Record(message string, severity Severity) LogEntry {
	if severity == "" {
		severity = SeverityInfo
	}
	t := l.now()
	entry := LogEntry{
		ID:        uuid.NewString(),
		Time:      t,
		Timestamp: t.Local().Format("15:04:05"),
		Message:   message,
		Severity:  severity,
	}

	if len(l.entries) < l.capacity {
		l.entries = append(l.entries, LogEntry{})
	}
	copy(l.entries[1:], l.entries)
	l.entries[0] = entry
	return entry
}

// Entries returns a copy of the log, newest first.
func (l *LogSink) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries held.
func (l *LogSink) Len() int {
	return len(l.entries)
}
