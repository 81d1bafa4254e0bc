package sink

import (
	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/types"
)

// Multi appends each record to every sink in order and stops at the first failure.
type Multi []interfaces.Sink

var _ interfaces.Sink = Multi(nil)

// Append implements interfaces.Sink.
func (m Multi) Append(record types.Record) error {
	for _, s := range m {
		if err := s.Append(record); err != nil {
			return err
		}
	}
	return nil
}
