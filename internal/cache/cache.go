// Package cache holds short-lived query results in memory.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Observer is told about every lookup, with result "hit" or "miss".
type Observer func(collection, result string)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a thread-safe TTL map. Expired entries are dropped when read and
// swept from the whole map on writes, at most once per TTL. Concurrent loads
// of the same key are collapsed into one call.
type Store[V any] struct {
	name    string
	ttl     time.Duration
	observe Observer
	now     func() time.Time

	mu        sync.RWMutex
	entries   map[string]entry[V]
	lastSweep time.Time
	// gen is bumped by Invalidate so a load that started earlier neither
	// writes a stale value back nor is shared with later callers.
	gen uint64

	group singleflight.Group
}

func New[V any](name string, ttl time.Duration, observe Observer) *Store[V] {
	if observe == nil {
		observe = func(string, string) {}
	}
	return &Store[V]{
		name:    name,
		ttl:     ttl,
		observe: observe,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the cached value, dropping it if it has expired.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if ok && s.now().After(e.expiresAt) {
		s.mu.Lock()
		// A Set may have replaced the entry since the read lock was released.
		e, ok = s.entries[key]
		if ok && s.now().After(e.expiresAt) {
			delete(s.entries, key)
			ok = false
		}
		s.mu.Unlock()
	}

	if !ok {
		s.observe(s.name, "miss")
		var zero V
		return zero, false
	}
	s.observe(s.name, "hit")
	return e.value, true
}

func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value)
}

// put stores value and sweeps expired entries. Caller holds mu.
func (s *Store[V]) put(key string, value V) {
	now := s.now()
	if now.Sub(s.lastSweep) >= s.ttl {
		for k, e := range s.entries {
			if now.After(e.expiresAt) {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}
	s.entries[key] = entry[V]{value: value, expiresAt: now.Add(s.ttl)}
}

// Load returns the cached value or calls fn once for all concurrent callers
// asking for the same key. Errors are not cached.
//
// fn runs detached from the cancellation of whichever caller started it, so
// one caller giving up does not fail the others. Each caller still returns
// as soon as its own ctx is done.
func (s *Store[V]) Load(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		v, err := fn(loadCtx)
		if err != nil {
			return v, err
		}
		s.mu.Lock()
		if s.gen == gen {
			s.put(key, v)
		}
		s.mu.Unlock()
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Invalidate drops every entry. Called after any write to the collection.
func (s *Store[V]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry[V])
	s.gen++
}

func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
