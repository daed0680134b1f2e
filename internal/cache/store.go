package cache

import (
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("cache entry not found")
	ErrUnknownKey = errors.New("unknown resource key")
)

// Key names one of the resource collections the frontend reads.
type Key string

const (
	KeyProprietarios Key = "proprietarios"
	KeyImoveis       Key = "imoveis"
	KeyAlugueis      Key = "alugueis"
)

// Keys returns all known resource keys.
func Keys() []Key {
	return []Key{KeyProprietarios, KeyImoveis, KeyAlugueis}
}

func ParseKey(s string) (Key, error) {
	switch k := Key(s); k {
	case KeyProprietarios, KeyImoveis, KeyAlugueis:
		return k, nil
	default:
		return "", ErrUnknownKey
	}
}

// Entry is a cached backend payload. Entries are replaced wholesale, never mutated in place.
type Entry struct {
	Data      []byte
	Timestamp time.Time
}

type Stat struct {
	Key       Key
	Timestamp time.Time
	Age       time.Duration
	ExpiresIn time.Duration
}

type Store interface {
	// Lookup returns ErrNotFound when the key is absent or its entry expired.
	Lookup(key Key) (Entry, error)
	Put(key Key, entry Entry)
	Delete(key Key)
	Clear()
	Snapshot() []Stat
}
