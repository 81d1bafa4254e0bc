// Package idle implements the activity clock shared between the event
// listener and the idle sampler.
package idle

import (
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// Clock holds the timestamp of the most recently observed activity.
// The listener is its only writer and the sampler its only reader.
type Clock struct {
	mu   sync.RWMutex
	last types.Timestamp
}

var _ interfaces.ActivityClock = (*Clock)(nil)

// NewClock creates a clock initialised to start, normally the process start time.
func NewClock(start time.Time) *Clock {
	return &Clock{
		last: types.TimestampOf(start),
	}
}

// Update overwrites the last activity time with ts.
func (c *Clock) Update(ts types.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = ts
}

// Read returns the last activity time.
func (c *Clock) Read() types.Timestamp {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.last
}

// Idle returns how long it has been since the last activity, as seen at now.
func (c *Clock) Idle(now time.Time) time.Duration {
	return types.TimestampOf(now).Sub(c.Read())
}
