package ledger

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process ledger. Entries are lost when the process exits.
type Memory struct {
	mu    sync.RWMutex
	set   map[string]struct{}
	order []string
}

// NewMemory returns an empty in-memory ledger.
func NewMemory(fileIDs ...string) *Memory {
	m := &Memory{set: make(map[string]struct{})}
	for _, id := range fileIDs {
		m.add(id)
	}
	return m
}

func (m *Memory) add(fileID string) {
	if _, ok := m.set[fileID]; ok {
		return
	}
	m.set[fileID] = struct{}{}
	m.order = append(m.order, fileID)
}

func (m *Memory) IsScanned(_ context.Context, fileID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[fileID]
	return ok, nil
}

func (m *Memory) MarkScanned(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(fileID)
	return nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order), nil
}

func (m *Memory) Close() error { return nil }
