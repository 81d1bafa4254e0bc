//go:build linux

package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// Linux input event types and codes (linux/input-event-codes.h).
const (
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	btnMisc       = 0x100
	btnGamepadEnd = 0x160

	keyPress = 1
)

// timevalSize is the size of the timestamp that opens each input_event.
const timevalSize = int(unsafe.Sizeof(unix.Timeval{}))

// inputEventSize is sizeof(struct input_event): a timeval followed by
// type (u16), code (u16) and value (s32).
const inputEventSize = timevalSize + 8

// classify maps a raw input event to an activity class. Absolute axes only
// count as motion when absMotion is set; see absCountsAsMotion.
func classify(typ, code uint16, value int32, absMotion bool) (types.Class, bool) {
	switch typ {
	case evKey:
		if value != keyPress {
			// Releases and autorepeat are not new activity.
			return 0, false
		}
		if code >= btnMisc && code < btnGamepadEnd {
			return types.ClassButtonPress, true
		}
		return types.ClassKeyPress, true
	case evRel:
		return types.ClassMotion, true
	case evAbs:
		if !absMotion {
			return 0, false
		}
		return types.ClassMotion, true
	default:
		return 0, false
	}
}

// evMax is the highest event type (EV_MAX).
const evMax = 0x1f

// eviocgbitTypes is EVIOCGBIT(0, 4): read the supported event type bitmap,
// using the generic _IOC(_IOC_READ, 'E', 0x20, 4) layout.
const eviocgbitTypes = 2<<30 | ((evMax+8)/8)<<16 | 'E'<<8 | 0x20

// absCountsAsMotion reports whether absolute axis events from a device with
// the given event type bitmap are user motion. Touchpads, touchscreens,
// tablets and joysticks also report EV_KEY; sensors such as accelerometers
// report EV_ABS alone and stream it constantly.
func absCountsAsMotion(typeBits []byte) bool {
	if len(typeBits) == 0 {
		return true
	}
	return typeBits[evKey/8]&(1<<(evKey%8)) != 0
}

// deviceTypeBits queries the supported event types of an evdev node. It
// returns nil for anything that does not answer the ioctl.
func deviceTypeBits(f *os.File) []byte {
	bits := make([]byte, (evMax+8)/8)
	err := withFd(f, func(fd int) error {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), eviocgbitTypes, uintptr(unsafe.Pointer(&bits[0])))
		if errno != 0 {
			return errno
		}
		return nil
	})
	if err != nil {
		return nil
	}
	return bits
}

// decodeInputEvent extracts type, code and value from one raw record.
func decodeInputEvent(buf []byte) (uint16, uint16, int32) {
	rest := buf[timevalSize:]
	typ := binary.NativeEndian.Uint16(rest[0:2])
	code := binary.NativeEndian.Uint16(rest[2:4])
	value := int32(binary.NativeEndian.Uint32(rest[4:8]))
	return typ, code, value
}

// DefaultReplugGrace is how long evdev waits for a replacement device after
// the last one disappears before failing.
const DefaultReplugGrace = 3 * time.Second

// Evdev reads activity from every matching /dev/input event device and
// attaches devices that appear later.
type Evdev struct {
	patterns []string
	logger   *slog.Logger
	// grace is how long the source waits for a device to reappear after
	// the last one is lost.
	grace time.Duration

	mu      sync.Mutex
	classes types.Class
	devices map[string]*os.File
	watcher *fsnotify.Watcher

	events    chan types.Event
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ interfaces.Source = (*Evdev)(nil)

func newEvdev(opts Options) (interfaces.Source, error) {
	return NewEvdev(opts.Devices, opts.Logger), nil
}

// NewEvdev creates an evdev source for the given device globs.
func NewEvdev(patterns []string, logger *slog.Logger) *Evdev {
	if len(patterns) == 0 {
		patterns = DefaultDevices
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Evdev{
		patterns: patterns,
		logger:   logger,
		grace:    DefaultReplugGrace,
		devices:  make(map[string]*os.File),
		events:   make(chan types.Event, 64),
		errs:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

// evdevAvailable reports whether at least one device can be opened.
func evdevAvailable(opts Options) (bool, string) {
	paths, err := globAll(opts.Devices)
	if err != nil {
		return false, err.Error()
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err == nil {
			_ = f.Close()
			return true, "readable device " + path
		}
	}
	if len(paths) == 0 {
		return false, "no input devices found"
	}
	return false, "cannot read input devices (need to be in 'input' group or run as root)"
}

// Subscribe opens all matching devices and starts reading them.
func (e *Evdev) Subscribe(classes types.Class) error {
	if classes == 0 {
		return errors.New("evdev: empty activity class set")
	}

	paths, err := globAll(e.patterns)
	if err != nil {
		return fmt.Errorf("evdev: %w", err)
	}

	e.mu.Lock()
	e.classes = classes
	e.mu.Unlock()

	var lastErr error
	for _, path := range paths {
		if err := e.attach(path); err != nil {
			lastErr = err
		}
	}

	e.mu.Lock()
	opened := len(e.devices)
	e.mu.Unlock()
	if opened == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("no device matches %v", e.patterns)
		}
		return fmt.Errorf("%w: evdev: %v", ErrUnavailable, lastErr)
	}

	e.watchHotplug()
	return nil
}

// attach opens path and starts a reader for it. Already attached paths are ignored.
func (e *Evdev) attach(path string) error {
	e.mu.Lock()
	if _, ok := e.devices[path]; ok {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	absMotion := absCountsAsMotion(deviceTypeBits(f))

	e.mu.Lock()
	select {
	case <-e.closed:
		e.mu.Unlock()
		_ = f.Close()
		return ErrClosed
	default:
	}
	// Subscribe and the hotplug watcher can race on the same path.
	if _, ok := e.devices[path]; ok {
		e.mu.Unlock()
		_ = f.Close()
		return nil
	}
	e.devices[path] = f
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Debug("source.device.added", "path", path, "abs_motion", absMotion)
	go e.readLoop(path, f, absMotion)
	return nil
}

// watchHotplug attaches devices created after Subscribe. Without fsnotify
// the source keeps running on the devices it already has.
func (e *Evdev) watchHotplug() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.logger.Warn("source.hotplug.disabled", "error", err)
		return
	}

	dirs := make(map[string]bool)
	for _, pattern := range e.patterns {
		dirs[filepath.Dir(pattern)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			e.logger.Warn("source.hotplug.disabled", "dir", dir, "error", err)
		}
	}

	e.mu.Lock()
	e.watcher = watcher
	e.mu.Unlock()

	e.wg.Add(1)
	go e.watchLoop(watcher)
}

func (e *Evdev) watchLoop(watcher *fsnotify.Watcher) {
	defer e.wg.Done()

	for {
		select {
		case <-e.closed:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) || !e.matches(event.Name) {
				continue
			}
			// udev fixes up permissions shortly after the node appears.
			for attempt := 0; attempt < 5; attempt++ {
				err := e.attach(event.Name)
				if err == nil || errors.Is(err, ErrClosed) {
					break
				}
				select {
				case <-e.closed:
					return
				case <-time.After(100 * time.Millisecond):
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warn("source.hotplug.error", "error", err)
		}
	}
}

func (e *Evdev) matches(path string) bool {
	for _, pattern := range e.patterns {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// readLoop reads fixed-size input_event records until the device fails.
func (e *Evdev) readLoop(path string, f *os.File, absMotion bool) {
	defer e.wg.Done()

	buf := make([]byte, inputEventSize*64)
	for {
		n, err := f.Read(buf)
		if err != nil {
			e.detach(path, err)
			return
		}

		e.mu.Lock()
		classes := e.classes
		e.mu.Unlock()

		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			typ, code, value := decodeInputEvent(buf[off : off+inputEventSize])
			class, ok := classify(typ, code, value, absMotion)
			if !ok || !classes.Has(class) {
				continue
			}
			select {
			case e.events <- types.Event{Class: class, At: time.Now()}:
			default:
				// A notification is already pending; bursts collapse.
			}
		}
	}
}

// detach forgets a device after a read error. Losing the last device is
// fatal unless another one is attached within the grace period.
func (e *Evdev) detach(path string, cause error) {
	e.mu.Lock()
	if f, ok := e.devices[path]; ok {
		_ = f.Close()
		delete(e.devices, path)
	}
	remaining := len(e.devices)
	e.mu.Unlock()

	select {
	case <-e.closed:
		return
	default:
	}

	e.logger.Warn("source.device.removed", "path", path, "error", cause)
	if remaining == 0 {
		e.logger.Warn("source.device.waiting", "grace", e.grace)
		// Called from readLoop, which still holds its own wg count.
		e.wg.Add(1)
		go e.awaitReplug(path, cause)
	}
}

// awaitReplug fails the source if no device is attached once the grace
// period ends.
func (e *Evdev) awaitReplug(path string, cause error) {
	defer e.wg.Done()

	timer := time.NewTimer(e.grace)
	defer timer.Stop()

	select {
	case <-e.closed:
		return
	case <-timer.C:
	}

	e.mu.Lock()
	remaining := len(e.devices)
	e.mu.Unlock()
	if remaining > 0 {
		return
	}

	select {
	case e.errs <- fmt.Errorf("evdev: all input devices gone, last error on %s: %w", path, cause):
	default:
	}
}

// Next blocks until an input event arrives.
func (e *Evdev) Next(ctx context.Context) (types.Event, error) {
	e.mu.Lock()
	subscribed := e.classes != 0
	e.mu.Unlock()
	if !subscribed {
		return types.Event{}, ErrNotSubscribed
	}

	select {
	case ev := <-e.events:
		return ev, nil
	case err := <-e.errs:
		return types.Event{}, err
	case <-e.closed:
		return types.Event{}, ErrClosed
	case <-ctx.Done():
		return types.Event{}, ctx.Err()
	}
}

// Devices returns the currently attached device paths.
func (e *Evdev) Devices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	paths := make([]string, 0, len(e.devices))
	for path := range e.devices {
		paths = append(paths, path)
	}
	return paths
}

// Close stops the watcher and closes every device.
func (e *Evdev) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)

		e.mu.Lock()
		if e.watcher != nil {
			_ = e.watcher.Close()
		}
		for path, f := range e.devices {
			_ = f.Close()
			delete(e.devices, path)
		}
		e.mu.Unlock()
	})
	e.wg.Wait()
	return nil
}

// globAll expands every pattern, deduplicating matches.
func globAll(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad device pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, nil
}
