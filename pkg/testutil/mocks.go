package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/types"
)

// ErrSourceClosed is returned by MockSource.Next after Close.
var ErrSourceClosed = errors.New("mock source closed")

// MockSink is a thread-safe mock implementation of interfaces.Sink for testing
type MockSink struct {
	mu       sync.Mutex
	records  []types.Record
	attempts []types.Record // Track all append attempts
	err      error
	appended chan types.Record
}

// NewMockSink creates a new mock sink
func NewMockSink() *MockSink {
	return &MockSink{
		appended: make(chan types.Record, 64),
	}
}

// Append implements the Sink interface
func (m *MockSink) Append(r types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = append(m.attempts, r)
	if m.err != nil {
		return m.err
	}

	m.records = append(m.records, r)
	select {
	case m.appended <- r:
	default:
	}
	return nil
}

// Appended returns a channel that receives each successfully appended record
func (m *MockSink) Appended() <-chan types.Record {
	return m.appended
}

// GetRecords returns a copy of successfully appended records
func (m *MockSink) GetRecords() []types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]types.Record, len(m.records))
	copy(result, m.records)
	return result
}

// GetAttempts returns a copy of all append attempts (including failures)
func (m *MockSink) GetAttempts() []types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]types.Record, len(m.attempts))
	copy(result, m.attempts)
	return result
}

// SetError sets the error to return on Append calls
func (m *MockSink) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// MockSource is a mock implementation of interfaces.Source driven by Emit and Fail
type MockSource struct {
	mu           sync.Mutex
	events       chan types.Event
	errs         chan error
	closed       chan struct{}
	closeOnce    sync.Once
	subscribed   types.Class
	subscribeErr error
}

// NewMockSource creates a new mock source
func NewMockSource() *MockSource {
	return &MockSource{
		events: make(chan types.Event, 64),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// Subscribe implements the Source interface
func (m *MockSource) Subscribe(classes types.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscribed = classes
	return nil
}

// Next implements the Source interface
func (m *MockSource) Next(ctx context.Context) (types.Event, error) {
	select {
	case ev := <-m.events:
		return ev, nil
	case err := <-m.errs:
		return types.Event{}, err
	case <-m.closed:
		return types.Event{}, ErrSourceClosed
	case <-ctx.Done():
		return types.Event{}, ctx.Err()
	}
}

// Close implements the Source interface
func (m *MockSource) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// Emit queues an activity notification
func (m *MockSource) Emit(class types.Class) {
	m.events <- types.Event{Class: class, At: time.Now()}
}

// Fail makes the next call to Next return err
func (m *MockSource) Fail(err error) {
	m.errs <- err
}

// SetSubscribeError sets the error Subscribe returns
func (m *MockSource) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

// Subscribed returns the classes passed to the last successful Subscribe
func (m *MockSource) Subscribed() types.Class {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribed
}

// Pending returns how many emitted events have not been consumed yet
func (m *MockSource) Pending() int {
	return len(m.events)
}

// FakeClock is a manually advanced time source
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a fake clock starting at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake time forward by d
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the fake time to t
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
