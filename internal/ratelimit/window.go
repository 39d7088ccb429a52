// Package ratelimit provides a true sliding-window rate limiter keyed by
// (client identity, action). A burst at a window boundary cannot double the
// effective limit the way a fixed-reset bucket allows.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Store counts actions within the trailing window ending at now. Allow
// admits and records the action when the count is below limit, otherwise
// rejects without recording.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error)
}

const (
	shardCount = 32
	// Sweep a shard's idle keys every sweepEvery operations on that shard.
	// Correctness never depends on sweep timing; this only bounds memory.
	sweepEvery = 256
)

type windowEntry struct {
	stamps []time.Time
	window time.Duration
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	ops     int
}

// MemoryStore is the process-local Store. Keys are sharded across
// independently locked maps so hot keys on different shards never contend.
// Limits reset on restart, which is acceptable for a single-instance
// deployment; use the Redis store for a fleet.
type MemoryStore struct {
	shards [shardCount]*shard
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*windowEntry)}
	}
	return s
}

func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.ops++
	if sh.ops%sweepEvery == 0 {
		sh.sweep(now)
	}

	entry := sh.entries[key]
	if entry == nil {
		entry = &windowEntry{window: window}
		sh.entries[key] = entry
	}
	entry.window = window
	entry.prune(now)

	if len(entry.stamps) >= limit {
		return false, nil
	}
	entry.stamps = append(entry.stamps, now)
	return true, nil
}

// Count returns the live count for a key without recording anything.
func (s *MemoryStore) Count(key string, now time.Time) int {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entry := sh.entries[key]
	if entry == nil {
		return 0
	}
	entry.prune(now)
	return len(entry.stamps)
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (e *windowEntry) prune(now time.Time) {
	cutoff := now.Add(-e.window)
	i := 0
	for ; i < len(e.stamps); i++ {
		if e.stamps[i].After(cutoff) {
			break
		}
	}
	e.stamps = e.stamps[i:]
}

// sweep drops keys with no activity inside their own window. Called with
// the shard lock held.
func (sh *shard) sweep(now time.Time) {
	for key, entry := range sh.entries {
		if len(entry.stamps) == 0 {
			delete(sh.entries, key)
			continue
		}
		newest := entry.stamps[len(entry.stamps)-1]
		if now.Sub(newest) > entry.window {
			delete(sh.entries, key)
		}
	}
}

// Key builds the composite limiter key for a client action.
func Key(clientAddr, action string) string {
	return clientAddr + ":" + action
}
