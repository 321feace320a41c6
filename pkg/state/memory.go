package state

import (
	"context"
	"sync"
)

var _ Store = &Memory{}

// Memory keeps the state in process memory. It provides no guarantee across processes.
type Memory struct {
	mutex   sync.Mutex
	current ClockState
	found   bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Update(ctx context.Context, update UpdateFunc) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	next, err := update(m.current, m.found)
	if err != nil {
		return err
	}

	m.current = next
	m.found = true

	return nil
}

func (m *Memory) Load() (ClockState, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.current, m.found
}
