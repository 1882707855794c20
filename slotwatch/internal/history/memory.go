package history

import (
	"context"
	"sync"
)

// Memory is the in-process Ledger. It keeps at most capacity checks.
type Memory struct {
	mu       sync.Mutex
	size     int
	checks   []Check // oldest first
	notified map[string]string
}

// NewMemory creates a Memory ledger. capacity <= 0 means 100.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory{size: capacity, notified: make(map[string]string)}
}

func (m *Memory) RecordCheck(_ context.Context, c Check) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, c)
	if over := len(m.checks) - m.size; over > 0 {
		m.checks = append([]Check(nil), m.checks[over:]...)
	}
	return nil
}

func (m *Memory) RecentChecks(_ context.Context, limit int) ([]Check, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Check{}
	for i := len(m.checks) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.checks[i])
	}
	return out, nil
}

func (m *Memory) LastNotified(_ context.Context, month string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.notified[month]
	return d, ok, nil
}

func (m *Memory) MarkNotified(_ context.Context, month, dates string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[month] = dates
	return nil
}

func (m *Memory) Forget(_ context.Context, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notified, month)
	return nil
}

func (m *Memory) Close() error { return nil }
