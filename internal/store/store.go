package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Store loads and saves board records by id.
type Store interface {
	// Load returns ErrNotFound when no record has the id.
	Load(ctx context.Context, id string) (Record, error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Memory keeps encoded records in a map. It is used when no database is
// configured and in tests.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte), now: time.Now}
}

func (m *Memory) Load(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return Decode(data)
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	rec.UpdatedAt = m.now().UTC()
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = data
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }
