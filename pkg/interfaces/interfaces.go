// Package interfaces defines the core interfaces used throughout the application.
package interfaces

import (
	"context"

	"github.com/Veraticus/idlewatch/pkg/types"
)

// Source delivers activity notifications from the operating system.
type Source interface {
	// Subscribe registers interest in the given activity classes.
	Subscribe(classes types.Class) error
	// Next blocks until the next activity notification arrives.
	Next(ctx context.Context) (types.Event, error)
	Close() error
}

// Sink durably appends idle records.
type Sink interface {
	Append(record types.Record) error
}

// ActivityClock is the shared last-activity timestamp.
type ActivityClock interface {
	Update(ts types.Timestamp)
	Read() types.Timestamp
}
