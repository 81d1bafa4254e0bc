package idle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// Listener copies activity notifications from a Source into the Clock.
type Listener struct {
	source interfaces.Source
	clock  interfaces.ActivityClock
	now    func() time.Time
	logger *slog.Logger
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerNow overrides the listener's time source.
func WithListenerNow(now func() time.Time) ListenerOption {
	return func(l *Listener) {
		l.now = now
	}
}

// WithListenerLogger sets the logger used for debug output.
func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// NewListener creates a listener feeding clock from source.
func NewListener(source interfaces.Source, clock interfaces.ActivityClock, opts ...ListenerOption) *Listener {
	l := &Listener{
		source: source,
		clock:  clock,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run subscribes to every activity class and updates the clock on each
// notification. It only returns on a source failure or when ctx is done;
// every error is fatal to the caller.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.source.Subscribe(types.ClassAll); err != nil {
		return fmt.Errorf("subscribe to event source: %w", err)
	}

	for {
		ev, err := l.source.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}
			return fmt.Errorf("event source: %w", err)
		}

		now := l.now()
		l.clock.Update(types.TimestampOf(now))
		l.logger.Debug("idle.activity", "class", ev.Class.String())
	}
}
