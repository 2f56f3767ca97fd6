package mocks

import (
	"context"
	"sync"
)

// VectorLinks is a mock implementation of ports.VectorLinks.
type VectorLinks struct {
	mu      sync.Mutex
	Err     error
	Deleted []string
	Calls   int
}

// DeleteVectors records the requested IDs.
func (m *VectorLinks) DeleteVectors(_ context.Context, vectorIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return m.Err
	}
	m.Deleted = append(m.Deleted, vectorIDs...)
	return nil
}
