package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painel-alugueis/painel/internal/cache"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestMemory(t *testing.T) {
	t.Run("returns stored entry within ttl", func(t *testing.T) {
		// given
		clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
		m := cache.NewMemory(5*time.Minute, clock.Now)
		m.Put(cache.KeyProprietarios, cache.Entry{Data: []byte(`[{"id":1}]`)})
		clock.Advance(time.Minute)
		// when
		e, err := m.Lookup(cache.KeyProprietarios)
		// then
		require.NoError(t, err)
		assert.JSONEq(t, `[{"id":1}]`, string(e.Data))
		assert.Equal(t, clock.t.Add(-time.Minute), e.Timestamp)
	})
	t.Run("reports missing key", func(t *testing.T) {
		m := cache.NewMemory(0, nil)
		_, err := m.Lookup(cache.KeyImoveis)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})
	t.Run("treats entry at ttl as expired", func(t *testing.T) {
		// given
		clock := &fakeClock{t: time.Unix(0, 0)}
		m := cache.NewMemory(5*time.Minute, clock.Now)
		m.Put(cache.KeyAlugueis, cache.Entry{Data: []byte(`[]`)})
		// when
		clock.Advance(5 * time.Minute)
		_, err := m.Lookup(cache.KeyAlugueis)
		// then
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})
	t.Run("returns a copy of the data", func(t *testing.T) {
		m := cache.NewMemory(0, nil)
		m.Put(cache.KeyImoveis, cache.Entry{Data: []byte(`[1]`)})
		e, err := m.Lookup(cache.KeyImoveis)
		require.NoError(t, err)
		e.Data[1] = '2'
		e2, err := m.Lookup(cache.KeyImoveis)
		require.NoError(t, err)
		assert.Equal(t, `[1]`, string(e2.Data))
	})
	t.Run("can delete entry", func(t *testing.T) {
		m := cache.NewMemory(0, nil)
		m.Put(cache.KeyImoveis, cache.Entry{Data: []byte(`[]`)})
		m.Delete(cache.KeyImoveis)
		_, err := m.Lookup(cache.KeyImoveis)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})
	t.Run("deleting missing entry is a no-op", func(t *testing.T) {
		m := cache.NewMemory(0, nil)
		m.Delete(cache.KeyImoveis)
		assert.Empty(t, m.Snapshot())
	})
	t.Run("can clear all entries", func(t *testing.T) {
		m := cache.NewMemory(0, nil)
		for _, k := range cache.Keys() {
			m.Put(k, cache.Entry{Data: []byte(`[]`)})
		}
		m.Clear()
		for _, k := range cache.Keys() {
			_, err := m.Lookup(k)
			assert.ErrorIs(t, err, cache.ErrNotFound)
		}
	})
	t.Run("uses default ttl", func(t *testing.T) {
		m := cache.NewMemory(0, nil)
		assert.Equal(t, cache.DefaultTTL, m.TTL())
	})
}

func TestMemorySnapshot(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := cache.NewMemory(5*time.Minute, clock.Now)
	m.Put(cache.KeyProprietarios, cache.Entry{Data: []byte(`[]`)})
	clock.Advance(2 * time.Minute)
	m.Put(cache.KeyAlugueis, cache.Entry{Data: []byte(`[]`)})
	m.Put(cache.KeyImoveis, cache.Entry{Data: []byte(`[]`), Timestamp: clock.t.Add(-10 * time.Minute)})
	clock.Advance(time.Minute)

	got := m.Snapshot()

	require.Len(t, got, 2)
	assert.Equal(t, cache.KeyAlugueis, got[0].Key)
	assert.Equal(t, time.Minute, got[0].Age)
	assert.Equal(t, 4*time.Minute, got[0].ExpiresIn)
	assert.Equal(t, cache.KeyProprietarios, got[1].Key)
	assert.Equal(t, 3*time.Minute, got[1].Age)
}

func TestParseKey(t *testing.T) {
	for _, k := range cache.Keys() {
		got, err := cache.ParseKey(string(k))
		if assert.NoError(t, err) {
			assert.Equal(t, k, got)
		}
	}
	_, err := cache.ParseKey("usuarios")
	assert.ErrorIs(t, err, cache.ErrUnknownKey)
}
