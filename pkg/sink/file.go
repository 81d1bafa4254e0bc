// Package sink appends idle records to durable or echo destinations.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// FileSink appends records to a text file opened once in create-or-append mode.
type FileSink struct {
	path string

	mu   sync.Mutex
	file *os.File
}

var _ interfaces.Sink = (*FileSink)(nil)

// OpenFile opens path for appending, creating it if needed. A path that
// cannot be opened is a startup error.
func OpenFile(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("open log file: empty path")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileSink{path: path, file: f}, nil
}

// Path returns the file the sink appends to.
func (s *FileSink) Path() string {
	return s.path
}

// Append writes one record under an exclusive file lock so processes
// sharing the log never interleave partial lines.
func (s *FileSink) Append(record types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("append to %s: %w", s.path, os.ErrClosed)
	}

	line := record.String()
	err := withLock(s.file, func() error {
		n, err := io.WriteString(s.file, line)
		if err != nil {
			return err
		}
		if n != len(line) {
			return io.ErrShortWrite
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	return nil
}

// Close closes the underlying file. Further appends fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
