// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/momentics/agentwire/api"
)

const (
	minClassShift = 9  // 512 B
	maxClassShift = 24 // 16 MiB
)

// BytePool hands out scratch byte slices from power-of-two size classes.
type BytePool struct {
	classes [maxClassShift - minClassShift + 1]*SyncPool[*[]byte]

	gets atomic.Uint64
}

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	b := &BytePool{}
	for i := range b.classes {
		size := 1 << (minClassShift + i)
		b.classes[i] = NewSyncPool(func() *[]byte {
			buf := make([]byte, size)
			return &buf
		})
	}
	return b
}

// MaxSize is the largest request the pool can serve.
func (b *BytePool) MaxSize() int { return 1 << maxClassShift }

func classOf(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	return bits.Len(uint(n-1)) - minClassShift
}

// Get returns a slice of length n. Requests outside (0, MaxSize] fail
// with an allocation error.
func (b *BytePool) Get(n int) ([]byte, error) {
	if n <= 0 || n > b.MaxSize() {
		return nil, api.NewError(api.KindAllocation, "pool get", fmt.Errorf("size %d out of range", n))
	}
	b.gets.Add(1)
	buf := b.classes[classOf(n)].Get()
	return (*buf)[:n], nil
}

// Put returns a slice obtained from Get. Foreign slices are dropped.
func (b *BytePool) Put(buf []byte) {
	c := cap(buf)
	if c < 1<<minClassShift || c > b.MaxSize() || c&(c-1) != 0 {
		return
	}
	buf = buf[:c]
	b.classes[classOf(c)].Put(&buf)
}

// Stats reports total Get calls and how many needed a fresh allocation.
func (b *BytePool) Stats() (gets, misses uint64) {
	for _, c := range b.classes {
		misses += c.Allocs()
	}
	return b.gets.Load(), misses
}

// Default is the process-wide scratch pool.
var Default = NewBytePool()
