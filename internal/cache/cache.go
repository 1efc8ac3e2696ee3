// Package cache is a keyed TTL store for client-side reads. Entries carry
// the time they were written and, optionally, the user they belong to.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is how long an entry stays fresh.
const DefaultTTL = 5 * time.Minute

// ErrNotFound is returned by a Backend for an absent key.
var ErrNotFound = errors.New("cache: key not found")

// Entry is a cached value with its write time and owner. An empty Owner
// marks a global entry visible to every user.
type Entry[T any] struct {
	Value     T         `json:"value"`
	Owner     string    `json:"owner,omitempty"`
	WrittenAt time.Time `json:"writtenAt"`
}

// IsFresh reports whether now - entry.WrittenAt <= ttl.
func IsFresh[T any](entry Entry[T], ttl time.Duration, now time.Time) bool {
	return now.Sub(entry.WrittenAt) <= ttl
}

// Backend persists raw entries.
type Backend interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Store reads and writes typed entries through a Backend.
type Store[T any] struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Store.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewStore returns a Store over backend.
func NewStore[T any](backend Backend, opts ...Option) *Store[T] {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{backend: backend, ttl: o.ttl, now: o.now}
}

// Get returns the value under key. It misses when the entry is absent,
// stale, or tagged with an owner other than owner. Stale entries are left
// in place until overwritten.
func (s *Store[T]) Get(key, owner string) (T, bool) {
	var zero T
	raw, err := s.backend.Get(key)
	if err != nil {
		return zero, false
	}
	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		return zero, false
	}
	if entry.Owner != "" && entry.Owner != owner {
		return zero, false
	}
	if !IsFresh(entry, s.ttl, s.now()) {
		return zero, false
	}
	return entry.Value, true
}

// Set stores value under key, replacing any previous entry and its timestamp.
func (s *Store[T]) Set(key, owner string, value T) error {
	raw, err := json.Marshal(Entry[T]{Value: value, Owner: owner, WrittenAt: s.now()})
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := s.backend.Set(key, raw); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

// Invalidate removes key. Removing an absent key is not an error.
func (s *Store[T]) Invalidate(key string) error {
	if err := s.backend.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}
