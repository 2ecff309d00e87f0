package session

import (
	"context"
	"sync"
	"time"
)

// Record is the resumable state of one shard.
type Record struct {
	ShardID   int
	SessionID string
	Seq       int64
	UpdatedAt time.Time
}

// Store loads and saves session records.
type Store interface {
	// Load returns the record for shardID; ok is false if none is stored.
	Load(ctx context.Context, shardID int) (rec Record, ok bool, err error)
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, shardID int) error
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	records map[int]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[int]Record)}
}

func (m *Memory) Load(_ context.Context, shardID int) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[shardID]
	return rec, ok, nil
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	m.records[rec.ShardID] = rec
	return nil
}

func (m *Memory) Delete(_ context.Context, shardID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, shardID)
	return nil
}

var _ Store = (*Memory)(nil)
