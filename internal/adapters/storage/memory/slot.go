package memory

import (
	"context"
	"sync"
)

// Slot keeps the serialized store in process memory.
type Slot struct {
	mu     sync.RWMutex
	data   []byte
	writes int

	// FailWrites makes Write return the error, for tests.
	FailWrites error
}

func NewSlot() *Slot {
	return &Slot{}
}

// NewSlotWithData returns a slot pre-filled with data.
func NewSlotWithData(data []byte) *Slot {
	return &Slot{data: append([]byte(nil), data...)}
}

func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

func (s *Slot) Write(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.data = append([]byte(nil), data...)
	s.writes++
	return nil
}

// Writes returns how many successful writes the slot received.
func (s *Slot) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
