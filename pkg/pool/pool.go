// Package pool provides scratch buffer pooling for the row-group writer.
//
// Compressed payloads and encoded column headers are staged in buffers that
// live only for one WriteAt; BufferPool recycles them across row groups so a
// long write does not churn the heap.
//
//	buffers := pool.NewBufferPool()
//	buf := buffers.Get(lz4.CompressBlockBound(len(src)))
//	defer buffers.Put(buf)
package pool

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	// MinClass is the capacity of the smallest pooled buffer. It holds one
	// 48-byte column header per column for tables of up to 85 columns.
	MinClass = 4 << 10
	// MaxClass is the capacity of the largest pooled buffer. Larger requests
	// are allocated directly and dropped on Put.
	MaxClass = 64 << 20
)

// Pool is a typed wrapper around sync.Pool that runs reset before an object
// is reused.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

// New returns a pool allocating with alloc. reset may be nil.
func New[T any](alloc func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any { return alloc() }
	return p
}

// Get returns a pooled object or a freshly allocated one.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put resets obj and makes it available to Get.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}

// BufferStats counts BufferPool traffic.
type BufferStats struct {
	Gets      int64 // requests served by Get
	Allocs    int64 // pooled classes that had to allocate
	Oversized int64 // requests above MaxClass
}

// BufferPool hands out byte slices from power-of-two size classes between
// MinClass and MaxClass.
type BufferPool struct {
	classes []*Pool[*[]byte]

	gets      atomic.Int64
	allocs    atomic.Int64
	oversized atomic.Int64
}

// NewBufferPool returns an empty buffer pool.
func NewBufferPool() *BufferPool {
	n := classIndex(MaxClass) + 1
	bp := &BufferPool{classes: make([]*Pool[*[]byte], n)}
	for i := range bp.classes {
		size := MinClass << i
		bp.classes[i] = New(func() *[]byte {
			bp.allocs.Add(1)
			b := make([]byte, size)
			return &b
		}, nil)
	}
	return bp
}

// classIndex returns the class whose capacity is the smallest power of two
// at least size, or -1 when size exceeds MaxClass.
func classIndex(size int) int {
	if size <= MinClass {
		return 0
	}
	if size > MaxClass {
		return -1
	}
	return bits.Len(uint(size-1)) - bits.Len(uint(MinClass-1))
}

// Get returns a buffer whose length is size. Its capacity may be larger.
func (p *BufferPool) Get(size int) []byte {
	p.gets.Add(1)
	i := classIndex(size)
	if i < 0 {
		p.oversized.Add(1)
		return make([]byte, size)
	}
	return (*p.classes[i].Get())[:size]
}

// Put returns buf for reuse. Buffers whose capacity is not exactly a class
// size, such as those grown by append, are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	c := cap(buf)
	if c < MinClass || c > MaxClass || c&(c-1) != 0 {
		return
	}
	buf = buf[:c]
	p.classes[classIndex(c)].Put(&buf)
}

// Stats returns a snapshot of the pool counters.
func (p *BufferPool) Stats() BufferStats {
	return BufferStats{
		Gets:      p.gets.Load(),
		Allocs:    p.allocs.Load(),
		Oversized: p.oversized.Load(),
	}
}
