//go:build unix

package sink

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// withLock holds an exclusive advisory lock on f while fn runs.
func withLock(f *os.File, fn func() error) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}

	var lockErr error
	if err := rc.Control(func(fd uintptr) {
		lockErr = unix.Flock(int(fd), unix.LOCK_EX)
	}); err != nil {
		return err
	}
	if lockErr != nil {
		return fmt.Errorf("lock: %w", lockErr)
	}

	defer func() {
		_ = rc.Control(func(fd uintptr) {
			_ = unix.Flock(int(fd), unix.LOCK_UN)
		})
	}()
	return fn()
}
