package connectiondao

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process registry with the same contract as DAO. Console
// mode and tests use it; all reads are consistent.
type Memory struct {
	mu    sync.RWMutex
	items map[Key]Connection
}

func NewMemory() *Memory {
	return &Memory{items: map[Key]Connection{}}
}

func (m *Memory) Put(_ context.Context, conn Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[conn.Key()] = conn
	return nil
}

func (m *Memory) QueryByClient(_ context.Context, clientID string) ([]Connection, error) {
	return m.filter(func(c Connection) bool { return c.ClientID == clientID }), nil
}

func (m *Memory) QueryByConnection(_ context.Context, connectionID string) ([]Connection, error) {
	return m.filter(func(c Connection) bool { return c.ConnectionID == connectionID }), nil
}

func (m *Memory) ScanAll(_ context.Context) ([]Connection, error) {
	return m.filter(func(Connection) bool { return true }), nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *Memory) BatchDelete(_ context.Context, keys []Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// filter returns matches ordered by clientId then connectionId, the order a
// DynamoDB query on the primary key returns them in.
func (m *Memory) filter(match func(Connection) bool) []Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conns []Connection
	for _, c := range m.items {
		if match(c) {
			conns = append(conns, c)
		}
	}
	sort.Slice(conns, func(i, j int) bool {
		a, b := conns[i], conns[j]
		if a.ClientID != b.ClientID {
			return a.ClientID < b.ClientID
		}
		return a.ConnectionID < b.ConnectionID
	})
	return conns
}
