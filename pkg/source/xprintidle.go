package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// XprintidleReader reads the X11 idle time via the xprintidle utility.
type XprintidleReader struct {
	cmdExecutor cmdExecutor
}

// NewXprintidleReader creates a new xprintidle idle reader.
func NewXprintidleReader() *XprintidleReader {
	return &XprintidleReader{
		cmdExecutor: defaultCmdExecutor,
	}
}

// Name implements IdleReader.
func (d *XprintidleReader) Name() string {
	return "xprintidle"
}

// IdleTime runs xprintidle, which prints idle milliseconds.
func (d *XprintidleReader) IdleTime(ctx context.Context) (time.Duration, error) {
	output, err := d.cmdExecutor(ctx, "xprintidle")
	if err != nil {
		return 0, fmt.Errorf("xprintidle: %w", err)
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(string(output)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse idle milliseconds: %w", err)
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond, nil
}
