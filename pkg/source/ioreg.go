package source

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IoregReader reads the macOS HID idle time using ioreg.
type IoregReader struct {
	cmdExecutor cmdExecutor
}

// NewIoregReader creates a new ioreg idle reader.
func NewIoregReader() *IoregReader {
	return &IoregReader{
		cmdExecutor: defaultCmdExecutor,
	}
}

// Name implements IdleReader.
func (d *IoregReader) Name() string {
	return "ioreg"
}

// IdleTime retrieves the system idle time using ioreg.
func (d *IoregReader) IdleTime(ctx context.Context) (time.Duration, error) {
	output, err := d.cmdExecutor(ctx, "ioreg", "-c", "IOHIDSystem", "-d", "4")
	if err != nil {
		return 0, fmt.Errorf("failed to execute ioreg: %w", err)
	}

	idleNanos, err := parseHIDIdleTime(output)
	if err != nil {
		return 0, fmt.Errorf("failed to parse HIDIdleTime: %w", err)
	}

	return time.Duration(idleNanos), nil
}

// parseHIDIdleTime parses the HIDIdleTime from ioreg output.
// Format: "HIDIdleTime" = 123456789
func parseHIDIdleTime(output []byte) (int64, error) {
	for _, line := range bytes.Split(output, []byte("\n")) {
		lineStr := string(bytes.TrimSpace(line))
		if !strings.Contains(lineStr, "HIDIdleTime") {
			continue
		}

		parts := strings.Split(lineStr, "=")
		if len(parts) != 2 {
			continue
		}

		valueStr := strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[1]), "\""))
		value, err := strconv.ParseInt(valueStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse idle time value: %w", err)
		}
		return value, nil
	}

	return 0, fmt.Errorf("HIDIdleTime not found in ioreg output")
}
