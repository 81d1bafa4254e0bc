// Package types contains shared data structures used across the application.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp is a point in time in milliseconds since the Unix epoch.
type Timestamp int64

// TimestampOf converts t to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time returns the Timestamp as a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts))
}

// Sub returns the duration ts-u.
func (ts Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(ts-u) * time.Millisecond
}

// Class is a set of coarse activity classes a source can be subscribed to.
type Class uint8

const (
	ClassButtonPress Class = 1 << iota
	ClassKeyPress
	ClassMotion

	ClassAll = ClassButtonPress | ClassKeyPress | ClassMotion
)

// Has reports whether c contains every class in other.
func (c Class) Has(other Class) bool {
	return c&other == other
}

func (c Class) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c&ClassButtonPress != 0 {
		parts = append(parts, "button")
	}
	if c&ClassKeyPress != 0 {
		parts = append(parts, "key")
	}
	if c&ClassMotion != 0 {
		parts = append(parts, "motion")
	}
	return strings.Join(parts, "|")
}

// Event is a single activity notification.
type Event struct {
	Class Class
	At    time.Time
}

// RecordLayout is the calendar layout used in idle records (DD/MM/YYYY HH:MM:SS).
const RecordLayout = "02/01/2006 15:04:05"

// Record is one idle-log entry.
type Record struct {
	// DetectedAt is when the sampler noticed the threshold had been crossed.
	DetectedAt time.Time
	// LastActivity is the activity clock value the episode started from.
	LastActivity Timestamp
	// Location used for formatting; nil means UTC.
	Location *time.Location
}

// String renders the record as a newline-terminated log line.
func (r Record) String() string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("idle threshold reached: %s\n", r.DetectedAt.In(loc).Format(RecordLayout))
}
