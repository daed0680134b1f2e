package cache

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

const DefaultTTL = 5 * time.Minute

// Memory is an in-memory Store. Entries whose age reached the TTL are reported as missing
// but stay in the map until they are replaced, deleted or cleared.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[Key]Entry
}

// NewMemory returns a new store. A ttl <= 0 uses DefaultTTL.
// When now is nil, time.Now is used.
func NewMemory(ttl time.Duration, now func() time.Time) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{
		ttl:     ttl,
		now:     now,
		entries: make(map[Key]Entry),
	}
}

func (m *Memory) TTL() time.Duration {
	return m.ttl
}

func (m *Memory) Lookup(key Key) (Entry, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.isExpired(e) {
		return Entry{}, ErrNotFound
	}
	return Entry{Data: slices.Clone(e.Data), Timestamp: e.Timestamp}, nil
}

func (m *Memory) Put(key Key, entry Entry) {
	entry.Data = slices.Clone(entry.Data)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}
	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
}

func (m *Memory) Delete(key Key) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory) Clear() {
	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
}

// Snapshot returns stats for all live entries, ordered by key.
func (m *Memory) Snapshot() []Stat {
	now := m.now()
	m.mu.RLock()
	stats := make([]Stat, 0, len(m.entries))
	for k, e := range m.entries {
		if m.isExpired(e) {
			continue
		}
		age := now.Sub(e.Timestamp)
		stats = append(stats, Stat{
			Key:       k,
			Timestamp: e.Timestamp,
			Age:       age,
			ExpiresIn: m.ttl - age,
		})
	}
	m.mu.RUnlock()
	slices.SortFunc(stats, func(a, b Stat) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return stats
}

func (m *Memory) isExpired(e Entry) bool {
	if e.Timestamp.IsZero() {
		return true
	}
	return m.now().Sub(e.Timestamp) >= m.ttl
}
