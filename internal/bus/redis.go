// Package bus broadcasts cache invalidations between gateway replicas.
package bus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClearAll is published instead of a key when all entries were removed.
const ClearAll = "*"

type Message struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	// Before is a unix time in nanoseconds. When set, entries fetched after it are kept.
	Before int64 `json:"before,omitempty"`
}

// BeforeTime returns Before as a time, or the zero time when unset.
func (m Message) BeforeTime() time.Time {
	if m.Before == 0 {
		return time.Time{}
	}
	return time.Unix(0, m.Before)
}

type Bus interface {
	// Publish broadcasts m. The origin is filled in by the bus.
	Publish(ctx context.Context, m Message) error
	// Subscribe calls handle for every invalidation published by another replica
	// until the returned subscription is closed.
	Subscribe(ctx context.Context, handle func(m Message)) (Subscription, error)
}

type Subscription interface {
	Close() error
}

type Redis struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedis(client *redis.Client, channel string) (*Redis, error) {
	origin, err := newToken()
	if err != nil {
		return nil, err
	}
	return &Redis{client: client, channel: channel, origin: origin}, nil
}

func (b *Redis) Origin() string {
	return b.origin
}

func (b *Redis) Publish(ctx context.Context, m Message) error {
	m.Origin = b.origin
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *Redis) Subscribe(ctx context.Context, handle func(m Message)) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	s := &redisSubscription{ps: ps, done: make(chan struct{})}
	ch := ps.Channel()
	go func() {
		defer close(s.done)
		for msg := range ch {
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				slog.Warn("Ignoring malformed invalidation", "channel", msg.Channel, "error", err)
				continue
			}
			if m.Origin == b.origin || m.Key == "" {
				continue
			}
			handle(m)
		}
	}()
	return s, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

// Close stops the subscription and waits for the dispatch loop to finish.
func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}

// Nop is used when no Redis is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error {
	return nil
}

func (Nop) Subscribe(context.Context, func(Message)) (Subscription, error) {
	return nopSubscription{}, nil
}

type nopSubscription struct{}

func (nopSubscription) Close() error {
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
