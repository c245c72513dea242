package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolReset(t *testing.T) {
	resets := 0
	p := New(
		func() *[]int { s := make([]int, 0, 4); return &s },
		func(s *[]int) { *s = (*s)[:0]; resets++ },
	)

	obj := p.Get()
	*obj = append(*obj, 1, 2, 3)
	p.Put(obj)

	assert.Equal(t, 1, resets)
}

func TestClassIndex(t *testing.T) {
	assert.Equal(t, 0, classIndex(0))
	assert.Equal(t, 0, classIndex(MinClass))
	assert.Equal(t, 1, classIndex(MinClass+1))
	assert.Equal(t, 2, classIndex(4*MinClass))
	assert.Equal(t, 14, classIndex(MaxClass))
	assert.Equal(t, -1, classIndex(MaxClass+1))
}

func TestBufferPoolClasses(t *testing.T) {
	bp := NewBufferPool()

	tests := []struct {
		name    string
		size    int
		wantCap int
	}{
		{name: "headers", size: 3 * 48, wantCap: MinClass},
		{name: "exact class", size: 16 << 10, wantCap: 16 << 10},
		{name: "between classes", size: 9000, wantCap: 16 << 10},
		{name: "oversized", size: MaxClass + 1, wantCap: MaxClass + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bp.Get(tt.size)
			require.Len(t, buf, tt.size)
			assert.Equal(t, tt.wantCap, cap(buf))
			bp.Put(buf)
		})
	}

	stats := bp.Stats()
	assert.Equal(t, int64(4), stats.Gets)
	assert.Equal(t, int64(1), stats.Oversized)
}

func TestBufferPoolDropsGrownBuffers(t *testing.T) {
	bp := NewBufferPool()
	buf := bp.Get(10)
	buf = append(buf, make([]byte, MinClass)...)
	assert.NotPanics(t, func() { bp.Put(buf) })
}
