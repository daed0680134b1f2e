// Package dataservice provides cached access to the collections of the rental backend.
//
// Reads are served from a TTL cache when possible. Concurrent misses for the same key share
// one backend call. Every successful mutation invalidates the cached collection of its resource,
// so the next read always goes to the backend.
package dataservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/painel-alugueis/painel/internal/audit"
	"github.com/painel-alugueis/painel/internal/bus"
	"github.com/painel-alugueis/painel/internal/cache"
	"github.com/painel-alugueis/painel/internal/model"
)

// Backend is the HTTP capability the service needs from the backend client.
type Backend interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Post(ctx context.Context, path string, body any) ([]byte, error)
	Put(ctx context.Context, path string, body any) ([]byte, error)
	Delete(ctx context.Context, path string) ([]byte, error)
}

type Status string

const (
	StatusHit     Status = "HIT"
	StatusMiss    Status = "MISS"
	StatusRefresh Status = "REFRESH"
)

type Result struct {
	Data   []byte
	Status Status
}

type resource struct {
	listPath   string
	createPath string
	validate   func([]byte) error
}

var resources = map[cache.Key]resource{
	cache.KeyProprietarios: {
		listPath:   "/api/proprietarios",
		createPath: "/api/proprietarios",
		validate:   decodes[model.Proprietario],
	},
	cache.KeyImoveis: {
		listPath:   "/api/imoveis",
		createPath: "/api/imoveis",
		validate:   decodes[model.Imovel],
	},
	cache.KeyAlugueis: {
		listPath:   "/api/alugueis",
		createPath: "/api/alugueis/criar",
		validate:   decodes[model.Aluguel],
	},
}

type Options struct {
	// Bus broadcasts invalidations to other replicas. Defaults to bus.Nop.
	Bus bus.Bus
	// Audit records successful mutations. Defaults to audit.Nop.
	Audit audit.Recorder
}

type Service struct {
	backend Backend
	store   cache.Store
	bus     bus.Bus
	audit   audit.Recorder
	sfg     singleflight.Group

	// mu orders stores of fetched entries against invalidations.
	mu  sync.Mutex
	gen map[cache.Key]uint64
}

func New(backend Backend, store cache.Store, opts Options) *Service {
	s := &Service{
		backend: backend,
		store:   store,
		bus:     opts.Bus,
		audit:   opts.Audit,
		gen:     make(map[cache.Key]uint64),
	}
	if s.bus == nil {
		s.bus = bus.Nop{}
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	return s
}

// Get returns the collection for key, from cache when it is fresh and forceRefresh is false.
// Backend errors are returned unchanged and never cached.
func (s *Service) Get(ctx context.Context, key cache.Key, forceRefresh bool) ([]byte, error) {
	r, err := s.Fetch(ctx, key, forceRefresh)
	if err != nil {
		return nil, err
	}
	return r.Data, nil
}

// Fetch works like Get and also reports whether the cache was used.
func (s *Service) Fetch(ctx context.Context, key cache.Key, forceRefresh bool) (Result, error) {
	res, ok := resources[key]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", cache.ErrUnknownKey, key)
	}
	if !forceRefresh {
		if e, err := s.store.Lookup(key); err == nil {
			slog.Debug("cache hit", "key", key)
			return Result{Data: e.Data, Status: StatusHit}, nil
		}
	}
	gen := s.generation(key)
	if forceRefresh {
		e, err := s.fill(ctx, key, res, gen)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: e.Data, Status: StatusRefresh}, nil
	}

	flight := fmt.Sprintf("%s#%d", key, gen)
	ch := s.sfg.DoChan(flight, func() (any, error) {
		return s.fill(context.WithoutCancel(ctx), key, res, gen)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		e := r.Val.(cache.Entry)
		return Result{Data: slices.Clone(e.Data), Status: StatusMiss}, nil
	}
}

// fill fetches a collection and stores it unless the key was invalidated since gen was taken.
func (s *Service) fill(ctx context.Context, key cache.Key, res resource, gen uint64) (cache.Entry, error) {
	slog.Debug("fetching collection", "key", key, "path", res.listPath)
	data, err := s.backend.Get(ctx, res.listPath)
	if err != nil {
		return cache.Entry{}, err
	}
	if err := res.validate(data); err != nil {
		return cache.Entry{}, err
	}
	e := cache.Entry{Data: data}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[key] != gen {
		slog.Debug("discarding fetch older than invalidation", "key", key)
		return e, nil
	}
	s.store.Put(key, e)
	return e, nil
}

func (s *Service) generation(key cache.Key) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[key]
}

// Invalidate removes the cached entry for key. It is a no-op when there is none.
func (s *Service) Invalidate(key cache.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[key]++
	s.store.Delete(key)
}

// Clear removes all cached entries.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range cache.Keys() {
		s.gen[k]++
	}
	s.store.Clear()
}

// Purge invalidates key locally and on all other replicas.
func (s *Service) Purge(ctx context.Context, key cache.Key) error {
	return s.PurgeBefore(ctx, key, time.Time{})
}

// PurgeBefore works like Purge but keeps entries fetched after before, on every replica.
// A zero before purges unconditionally.
func (s *Service) PurgeBefore(ctx context.Context, key cache.Key, before time.Time) error {
	if _, ok := resources[key]; !ok {
		return fmt.Errorf("%w: %q", cache.ErrUnknownKey, key)
	}
	s.invalidateBefore(key, before)
	return s.bus.Publish(ctx, bus.Message{Key: string(key), Before: unixNano(before)})
}

// PurgeAll clears the cache locally and on all other replicas.
func (s *Service) PurgeAll(ctx context.Context) error {
	return s.PurgeAllBefore(ctx, time.Time{})
}

// PurgeAllBefore works like PurgeAll but keeps entries fetched after before, on every replica.
func (s *Service) PurgeAllBefore(ctx context.Context, before time.Time) error {
	s.clearBefore(before)
	return s.bus.Publish(ctx, bus.Message{Key: bus.ClearAll, Before: unixNano(before)})
}

// Listen applies invalidations published by other replicas until the subscription is closed.
func (s *Service) Listen(ctx context.Context) (bus.Subscription, error) {
	return s.bus.Subscribe(ctx, func(m bus.Message) {
		before := m.BeforeTime()
		if m.Key == bus.ClearAll {
			slog.Info("remote cache clear", "before", before)
			s.clearBefore(before)
			return
		}
		key, err := cache.ParseKey(m.Key)
		if err != nil {
			slog.Warn("Ignoring remote invalidation", "key", m.Key, "error", err)
			return
		}
		slog.Info("remote cache invalidation", "key", key, "before", before)
		s.invalidateBefore(key, before)
	})
}

// invalidateBefore removes the entry for key unless it was fetched after before.
func (s *Service) invalidateBefore(key cache.Key, before time.Time) {
	if before.IsZero() {
		s.Invalidate(key)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, err := s.store.Lookup(key); err == nil && e.Timestamp.After(before) {
		slog.Debug("keeping entry newer than purge time", "key", key, "updatedAt", e.Timestamp, "before", before)
		return
	}
	s.gen[key]++
	s.store.Delete(key)
}

func (s *Service) clearBefore(before time.Time) {
	if before.IsZero() {
		s.Clear()
		return
	}
	for _, k := range cache.Keys() {
		s.invalidateBefore(k, before)
	}
}

func (s *Service) Stats() []cache.Stat {
	return s.store.Snapshot()
}

// Create sanitizes and validates in, posts it and invalidates the collection on success.
func (s *Service) Create(ctx context.Context, key cache.Key, in model.Input) ([]byte, error) {
	res, ok := resources[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", cache.ErrUnknownKey, key)
	}
	if err := prepare(in); err != nil {
		return nil, err
	}
	out, err := s.backend.Post(ctx, res.createPath, in)
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, key, audit.OpCreate, "", in, out)
	return out, nil
}

func (s *Service) Update(ctx context.Context, key cache.Key, id string, in model.Input) ([]byte, error) {
	res, ok := resources[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", cache.ErrUnknownKey, key)
	}
	p, err := itemPath(res, id)
	if err != nil {
		return nil, err
	}
	if err := prepare(in); err != nil {
		return nil, err
	}
	out, err := s.backend.Put(ctx, p, in)
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, key, audit.OpUpdate, id, in, out)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, key cache.Key, id string) ([]byte, error) {
	res, ok := resources[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", cache.ErrUnknownKey, key)
	}
	p, err := itemPath(res, id)
	if err != nil {
		return nil, err
	}
	out, err := s.backend.Delete(ctx, p)
	if err != nil {
		return nil, err
	}
	s.mutated(ctx, key, audit.OpDelete, id, nil, out)
	return out, nil
}

// mutated invalidates key after a successful mutation.
// Broadcast and audit failures are logged only, since the backend already applied the change.
func (s *Service) mutated(ctx context.Context, key cache.Key, op, id string, in any, out []byte) {
	s.Invalidate(key)
	if err := s.bus.Publish(ctx, bus.Message{Key: string(key)}); err != nil {
		slog.Warn("Failed to broadcast invalidation", "key", key, "error", err)
	}
	ev := audit.Event{Key: string(key), Operation: op, ID: id}
	if in != nil {
		if b, err := json.Marshal(in); err == nil {
			ev.Request = b
		}
	}
	if json.Valid(out) {
		ev.Response = out
	}
	if err := s.audit.Record(ctx, ev); err != nil {
		slog.Warn("Failed to record audit event", "key", key, "operation", op, "error", err)
	}
}

func prepare(in model.Input) error {
	if in == nil {
		return fmt.Errorf("%w: missing body", model.ErrInvalid)
	}
	in.Sanitize()
	return in.Validate()
}

func itemPath(res resource, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: id is required", model.ErrInvalid)
	}
	return res.listPath + "/" + url.PathEscape(id), nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodes[T any](data []byte) error {
	_, err := model.DecodeList[T](data)
	return err
}
