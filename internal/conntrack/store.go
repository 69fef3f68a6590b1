// File: internal/conntrack/store.go
// Package conntrack
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe set of live connections keyed by session id.

package conntrack

import (
	"hash/fnv"
	"sync"
)

// Set holds owning handles to live connections.
type Set[V any] struct {
	shards []*shard[V]
	mask   uint32
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[uint32]V
}

// New constructs a set with shardCount shards, rounded up to a power of two.
func New[V any](shardCount int) *Set[V] {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard[V], m)
	for i := range shards {
		shards[i] = &shard[V]{items: make(map[uint32]V)}
	}
	return &Set[V]{shards: shards, mask: m - 1}
}

func (s *Set[V]) shard(id uint32) *shard[V] {
	return s.shards[hash(id)&s.mask]
}

// Add stores v under id. It reports false if id is already present.
func (s *Set[V]) Add(id uint32, v V) bool {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.items[id]; ok {
		return false
	}
	sh.items[id] = v
	return true
}

// Get fetches the handle for id.
func (s *Set[V]) Get(id uint32) (V, bool) {
	sh := s.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.items[id]
	return v, ok
}

// Remove deletes id and reports whether it was present.
func (s *Set[V]) Remove(id uint32) bool {
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.items[id]; !ok {
		return false
	}
	delete(sh.items, id)
	return true
}

// Len counts live entries.
func (s *Set[V]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot copies the current handles. Handles remove themselves from the
// set on teardown, so callers iterate a copy rather than under shard locks.
func (s *Set[V]) Snapshot() []V {
	var out []V
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, v := range sh.items {
			out = append(out, v)
		}
		sh.mu.RUnlock()
	}
	return out
}

// hash spreads sequential ids across shards.
func hash(id uint32) uint32 {
	h := fnv.New32a()
	b := [4]byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)}
	h.Write(b[:])
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
