// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"
	"sync/atomic"
)

// SyncPool is a typed sync.Pool that counts how often it had to create
// a fresh object.
type SyncPool[T any] struct {
	pool   sync.Pool
	allocs atomic.Uint64
}

// NewSyncPool creates a pool filled on demand by creator.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	sp := &SyncPool[T]{}
	sp.pool.New = func() any {
		sp.allocs.Add(1)
		return creator()
	}
	return sp
}

func (sp *SyncPool[T]) Get() T { return sp.pool.Get().(T) }

func (sp *SyncPool[T]) Put(obj T) { sp.pool.Put(obj) }

// Allocs returns the number of objects created so far.
func (sp *SyncPool[T]) Allocs() uint64 { return sp.allocs.Load() }
