// Package source provides input event sources that report user activity.
//
// Each source implements interfaces.Source. Device-backed sources (evdev,
// terminal) deliver one notification per input event; polled sources
// (mutter, xprintidle, tmux, ioreg) read the system idle time and deliver a
// notification whenever it drops.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

var (
	// ErrUnknown is returned for a source name that does not exist.
	ErrUnknown = errors.New("unknown input source")
	// ErrUnavailable is returned when a source cannot run on this system.
	ErrUnavailable = errors.New("input source unavailable")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("input source closed")
	// ErrNotSubscribed is returned by Next before Subscribe.
	ErrNotSubscribed = errors.New("input source not subscribed")
)

// Auto selects the first available platform default.
const Auto = "auto"

// DefaultPollInterval is how often polled sources read the system idle time.
const DefaultPollInterval = time.Second

// Options configures source construction.
type Options struct {
	// Devices are glob patterns for evdev device nodes.
	Devices []string
	// TTY is the terminal the terminal source reads from.
	TTY string
	// PollInterval applies to polled sources.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// DefaultDevices is the evdev device glob used when none is configured.
var DefaultDevices = []string{"/dev/input/event*"}

// DefaultTTY is the terminal used when none is configured.
const DefaultTTY = "/dev/tty"

func (o Options) withDefaults() Options {
	if len(o.Devices) == 0 {
		o.Devices = DefaultDevices
	}
	if o.TTY == "" {
		o.TTY = DefaultTTY
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Names lists every source name New accepts.
func Names() []string {
	return []string{Auto, "evdev", "terminal", "mutter", "xprintidle", "tmux", "ioreg"}
}

// New creates the named source. The returned source is not yet subscribed.
func New(name string, opts Options) (interfaces.Source, error) {
	opts = opts.withDefaults()

	switch name {
	case Auto, "":
		for _, candidate := range platformDefaults() {
			if ok, reason := Available(candidate, opts); ok {
				opts.Logger.Debug("source.selected", "source", candidate, "reason", reason)
				return New(candidate, opts)
			}
		}
		return nil, fmt.Errorf("%w: none of %v usable", ErrUnavailable, platformDefaults())
	case "evdev":
		return newEvdev(opts)
	case "terminal":
		return newTerminal(opts)
	case "mutter":
		reader, err := NewMutterReader()
		if err != nil {
			return nil, err
		}
		return NewPoller(reader, opts.PollInterval), nil
	case "xprintidle":
		return NewPoller(NewXprintidleReader(), opts.PollInterval), nil
	case "tmux":
		return NewPoller(NewTmuxReader(""), opts.PollInterval), nil
	case "ioreg":
		return NewPoller(NewIoregReader(), opts.PollInterval), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
}

// Available reports whether the named source can run here, with a reason.
func Available(name string, opts Options) (bool, string) {
	opts = opts.withDefaults()

	switch name {
	case Auto, "":
		for _, candidate := range platformDefaults() {
			if ok, _ := Available(candidate, opts); ok {
				return true, "selects " + candidate
			}
		}
		return false, "no platform source available"
	case "evdev":
		return evdevAvailable(opts)
	case "terminal":
		return terminalAvailable(opts)
	case "mutter":
		reader, err := NewMutterReader()
		if err != nil {
			return false, err.Error()
		}
		defer func() { _ = reader.Close() }()
		return readerAvailable(reader)
	case "xprintidle":
		return readerAvailable(NewXprintidleReader())
	case "tmux":
		return NewTmuxReader("").Available()
	case "ioreg":
		return readerAvailable(NewIoregReader())
	default:
		return false, ErrUnknown.Error()
	}
}
