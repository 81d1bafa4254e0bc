package sink

import (
	"io"
	"sync"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// WriterSink echoes records to a writer, typically stdout.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

var _ interfaces.Sink = (*WriterSink)(nil)

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Append writes the record text.
func (s *WriterSink) Append(record types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := io.WriteString(s.w, record.String())
	return err
}
