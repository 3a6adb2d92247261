package index

import (
	"context"
	"sync"
	"time"
)

// Backend persists index snapshots between restarts.
type Backend interface {
	// Name identifies the backend in logs ("memory", "badger").
	Name() string

	// Load returns the last saved entries and their build time. An empty
	// backend returns no entries and a zero time.
	Load(ctx context.Context) ([]Entry, time.Time, error)

	// Save replaces the stored entries with entries.
	Save(ctx context.Context, entries []Entry, builtAt time.Time) error

	// Put inserts or replaces one entry.
	Put(ctx context.Context, e Entry) error

	Close() error
}

// MemoryBackend keeps the last saved listing in process memory. Nothing
// survives a restart.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]Entry
	builtAt time.Time
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Load(ctx context.Context) ([]Entry, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, m.builtAt, nil
}

func (m *MemoryBackend) Save(ctx context.Context, entries []Entry, builtAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]Entry, len(entries))
	for _, e := range entries {
		m.entries[e.Path] = e
	}
	m.builtAt = builtAt
	return nil
}

func (m *MemoryBackend) Put(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[e.Path] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
