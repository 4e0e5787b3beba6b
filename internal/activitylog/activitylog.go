// Package activitylog is the human-readable log shown next to the
// telemetry readout: raw frames, connection steps and errors.
package activitylog

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLimit is the number of entries kept when no limit is given.
const DefaultLimit = 100

// ClearedMessage is appended after Clear.
const ClearedMessage = "Log cleared."

// Entry is one log line.
type Entry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	IsError bool      `json:"is_error"`
}

// Log keeps the most recent entries and mirrors each one to a logrus
// logger. It is not safe for concurrent use; the session loop owns it.
type Log struct {
	limit   int
	entries []Entry
	logger  *logrus.Logger
	now     func() time.Time
}

// New creates a log keeping at most limit entries.
// A limit <= 0 selects DefaultLimit. A nil logger is replaced by a new one.
func New(limit int, logger *logrus.Logger) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Log{
		limit:   limit,
		entries: make([]Entry, 0, limit),
		logger:  logger,
		now:     time.Now,
	}
}

// Add appends an informational entry.
func (l *Log) Add(msg string) {
	l.append(msg, false)
}

// Addf appends a formatted informational entry.
func (l *Log) Addf(format string, args ...any) {
	l.append(fmt.Sprintf(format, args...), false)
}

// AddError appends an entry flagged as an error.
func (l *Log) AddError(msg string) {
	l.append(msg, true)
}

// Errorf appends a formatted error entry.
func (l *Log) Errorf(format string, args ...any) {
	l.append(fmt.Sprintf(format, args...), true)
}

func (l *Log) append(msg string, isError bool) {
	e := Entry{At: l.now(), Message: msg, IsError: isError}

	if len(l.entries) >= l.limit {
		n := len(l.entries) - l.limit + 1
		copy(l.entries, l.entries[n:])
		l.entries = l.entries[:len(l.entries)-n]
	}
	l.entries = append(l.entries, e)

	fields := logrus.Fields{"source": "activity"}
	if isError {
		l.logger.WithFields(fields).Error(msg)
	} else {
		l.logger.WithFields(fields).Info(msg)
	}
}

// Entries returns a copy of the entries, oldest first.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Limit returns the maximum number of entries.
func (l *Log) Limit() int {
	return l.limit
}

// Clear removes every entry and records that the log was cleared.
func (l *Log) Clear() {
	l.entries = l.entries[:0]
	l.Add(ClearedMessage)
}
