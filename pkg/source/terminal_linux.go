//go:build linux

package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// Terminal reports key presses typed on a TTY. Canonical mode is switched
// off so every key press is delivered without waiting for a newline; the
// original settings are restored on Close.
type Terminal struct {
	path string

	mu        sync.Mutex
	file      *os.File
	saved     *unix.Termios
	started   bool
	events    chan types.Event
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ interfaces.Source = (*Terminal)(nil)

func newTerminal(opts Options) (interfaces.Source, error) {
	return NewTerminal(opts.TTY), nil
}

// NewTerminal creates a terminal source reading from path.
func NewTerminal(path string) *Terminal {
	if path == "" {
		path = DefaultTTY
	}
	return &Terminal{
		path:   path,
		events: make(chan types.Event, 1),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// terminalAvailable reports whether the configured TTY is a terminal we can open.
func terminalAvailable(opts Options) (bool, string) {
	f, err := os.OpenFile(opts.TTY, os.O_RDONLY|unix.O_NOCTTY, 0)
	if err != nil {
		return false, err.Error()
	}
	defer func() { _ = f.Close() }()

	if err := withFd(f, func(fd int) error {
		_, err := unix.IoctlGetTermios(fd, unix.TCGETS)
		return err
	}); err != nil {
		return false, opts.TTY + " is not a terminal"
	}
	return true, "terminal " + opts.TTY
}

// Subscribe opens the terminal and starts reading. Only key presses can be
// observed on a terminal, so the class set must include them.
func (t *Terminal) Subscribe(classes types.Class) error {
	if !classes.Has(types.ClassKeyPress) {
		return fmt.Errorf("terminal: only key presses are observable, got %v", classes)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}

	f, err := os.OpenFile(t.path, os.O_RDONLY|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("%w: terminal: %v", ErrUnavailable, err)
	}

	var saved *unix.Termios
	if err := withFd(f, func(fd int) error {
		saved, err = unix.IoctlGetTermios(fd, unix.TCGETS)
		return err
	}); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: terminal: %s is not a terminal: %v", ErrUnavailable, t.path, err)
	}

	raw := *saved
	raw.Lflag &^= unix.ICANON
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := withFd(f, func(fd int) error {
		return unix.IoctlSetTermios(fd, unix.TCSETS, &raw)
	}); err != nil {
		_ = f.Close()
		return fmt.Errorf("terminal: set non-canonical mode: %w", err)
	}

	t.file = f
	t.saved = saved
	t.started = true

	t.wg.Add(1)
	go t.readLoop(f)
	return nil
}

func (t *Terminal) readLoop(f *os.File) {
	defer t.wg.Done()

	buf := make([]byte, 256)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			select {
			case t.events <- types.Event{Class: types.ClassKeyPress, At: time.Now()}:
			default:
			}
		}
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
			}
			select {
			case <-t.closed:
			case t.errs <- fmt.Errorf("terminal %s: %w", t.path, err):
			}
			return
		}
	}
}

// Next blocks until a key is pressed on the terminal.
func (t *Terminal) Next(ctx context.Context) (types.Event, error) {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return types.Event{}, ErrNotSubscribed
	}

	select {
	case ev := <-t.events:
		return ev, nil
	case err := <-t.errs:
		return types.Event{}, err
	case <-t.closed:
		return types.Event{}, ErrClosed
	case <-ctx.Done():
		return types.Event{}, ctx.Err()
	}
}

// Close restores the terminal settings and closes it.
func (t *Terminal) Close() error {
	var errs []error
	t.closeOnce.Do(func() {
		close(t.closed)

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.file == nil {
			return
		}
		if t.saved != nil {
			if err := withFd(t.file, func(fd int) error {
				return unix.IoctlSetTermios(fd, unix.TCSETS, t.saved)
			}); err != nil {
				errs = append(errs, fmt.Errorf("restore terminal: %w", err))
			}
		}
		if err := t.file.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	t.wg.Wait()
	return errors.Join(errs...)
}

// withFd runs fn on the raw descriptor. File.Fd would switch the file to
// blocking mode, after which Close no longer interrupts a pending Read.
func withFd(f *os.File, fn func(fd int) error) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var fnErr error
	if err := rc.Control(func(fd uintptr) {
		fnErr = fn(int(fd))
	}); err != nil {
		return err
	}
	return fnErr
}
