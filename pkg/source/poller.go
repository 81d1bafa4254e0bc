package source

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// IdleReader reports how long the user has been idle according to the system.
type IdleReader interface {
	Name() string
	IdleTime(ctx context.Context) (time.Duration, error)
}

// cmdExecutor runs a command and returns its standard output.
type cmdExecutor func(ctx context.Context, name string, args ...string) ([]byte, error)

// defaultCmdExecutor executes a command and returns its output.
func defaultCmdExecutor(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// readerAvailable probes reader once.
func readerAvailable(reader IdleReader) (bool, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	idle, err := reader.IdleTime(ctx)
	if err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("%s reports %v idle", reader.Name(), idle)
}

// pollSlack absorbs the jitter between the reader sampling its idle counter
// and the poller stamping the reading, plus reader rounding.
const pollSlack = 50 * time.Millisecond

// Poller turns an IdleReader into an activity source. Each reading gives a
// last-input instant (read time minus idle time); a notification is
// delivered whenever that instant moves later, meaning input happened since
// the previous poll. Polled sources cannot tell activity classes apart.
type Poller struct {
	reader   IdleReader
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	classes types.Class
	// lastInput is the latest input instant derived so far (read time
	// minus idle time); primed is false until the first reading.
	lastInput time.Time
	primed    bool

	closed    chan struct{}
	closeOnce sync.Once
}

var _ interfaces.Source = (*Poller)(nil)

// NewPoller creates a poller reading reader every interval.
func NewPoller(reader IdleReader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		reader:   reader,
		interval: interval,
		now:      time.Now,
		closed:   make(chan struct{}),
	}
}

// Subscribe records the requested classes. Any non-empty set is accepted.
func (p *Poller) Subscribe(classes types.Class) error {
	if classes == 0 {
		return fmt.Errorf("%s: empty activity class set", p.reader.Name())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.classes = classes
	return nil
}

// Next polls until a reading shows input since the previous notification. A failed reading is returned as an
// error; the poller does not retry.
func (p *Poller) Next(ctx context.Context) (types.Event, error) {
	p.mu.Lock()
	classes := p.classes
	p.mu.Unlock()
	if classes == 0 {
		return types.Event{}, ErrNotSubscribed
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		idle, err := p.reader.IdleTime(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return types.Event{}, ctx.Err()
			}
			return types.Event{}, fmt.Errorf("%s: %w", p.reader.Name(), err)
		}

		lastInput := p.now().Add(-idle)
		if p.observe(lastInput) {
			return types.Event{Class: classes, At: lastInput}, nil
		}

		select {
		case <-ctx.Done():
			return types.Event{}, ctx.Err()
		case <-p.closed:
			return types.Event{}, ErrClosed
		case <-ticker.C:
		}
	}
}

// observe reports whether lastInput is later than the reference by more than
// pollSlack. The reference only moves on activity, so jitter never
// accumulates and input spread over several short polls still adds up.
func (p *Poller) observe(lastInput time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.primed {
		p.lastInput = lastInput
		p.primed = true
		return false
	}
	if !lastInput.After(p.lastInput.Add(pollSlack)) {
		return false
	}
	p.lastInput = lastInput
	return true
}

// Close stops the poller and releases the reader.
func (p *Poller) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		if c, ok := p.reader.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
