//go:build !linux

package source

import (
	"fmt"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

func newEvdev(Options) (interfaces.Source, error) {
	return nil, fmt.Errorf("%w: evdev is Linux only", ErrUnavailable)
}

func evdevAvailable(Options) (bool, string) {
	return false, "evdev is Linux only"
}
