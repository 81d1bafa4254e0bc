package idle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// minSampleInterval keeps a zero sample interval from spinning a CPU.
const minSampleInterval = time.Millisecond

// Sampler periodically checks the Clock and records each idle episode once.
type Sampler struct {
	clock     interfaces.ActivityClock
	sink      interfaces.Sink
	threshold time.Duration
	interval  time.Duration
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger

	// lastReported is the clock value that last produced a record.
	// Only the sampler goroutine touches it.
	lastReported types.Timestamp
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithNow overrides the sampler's time source.
func WithNow(now func() time.Time) SamplerOption {
	return func(s *Sampler) {
		s.now = now
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) SamplerOption {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// WithLocation sets the time zone records are formatted in.
func WithLocation(loc *time.Location) SamplerOption {
	return func(s *Sampler) {
		s.location = loc
	}
}

// NewSampler creates a sampler that appends to sink once the clock has been
// idle for longer than threshold, checking every interval.
func NewSampler(clock interfaces.ActivityClock, sink interfaces.Sink, threshold, interval time.Duration, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		clock:     clock,
		sink:      sink,
		threshold: threshold,
		interval:  interval,
		location:  time.UTC,
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check performs a single sample at now. It reports whether a record was
// appended. A sink error is returned unchanged and must be treated as fatal.
func (s *Sampler) Check(now time.Time) (bool, error) {
	last := s.clock.Read()
	idleFor := types.TimestampOf(now).Sub(last)

	s.logger.Debug("idle.sample", "idle_for", idleFor, "threshold", s.threshold)

	// The clock value is the episode key: it only changes on new activity,
	// so one idle stretch yields at most one record.
	if last == s.lastReported || idleFor <= s.threshold {
		return false, nil
	}

	s.lastReported = last
	record := types.Record{
		DetectedAt:   now,
		LastActivity: last,
		Location:     s.location,
	}
	if err := s.sink.Append(record); err != nil {
		return false, fmt.Errorf("append idle record: %w", err)
	}

	s.logger.Info("idle.episode", "idle_for", idleFor, "last_activity", last.Time())
	return true, nil
}

// LastReported returns the clock value of the most recently recorded episode,
// or zero if nothing has been recorded yet.
func (s *Sampler) LastReported() types.Timestamp {
	return s.lastReported
}

// Run sleeps for the sample interval and then checks, until ctx is done or
// the sink fails.
func (s *Sampler) Run(ctx context.Context) error {
	interval := s.interval
	if interval < minSampleInterval {
		interval = minSampleInterval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.Check(s.now()); err != nil {
			return err
		}
		timer.Reset(interval)
	}
}
