//go:build !linux

package source

import (
	"fmt"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

func newTerminal(Options) (interfaces.Source, error) {
	return nil, fmt.Errorf("%w: terminal source is Linux only", ErrUnavailable)
}

func terminalAvailable(Options) (bool, string) {
	return false, "terminal source is Linux only"
}
