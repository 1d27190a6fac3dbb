package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildcall/callmatch-go/internal/errors"
)

func TestChunkRingRejectsNonPowerOfTwo(t *testing.T) {
	_, err := NewChunkRing(100, 512)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestChunkRingOverflow(t *testing.T) {
	ring, err := NewChunkRing(4, 512)
	require.NoError(t, err)

	chunk := make([]float32, 512)
	for i := range 4 {
		assert.True(t, ring.Enqueue(chunk), "enqueue %d should fit", i)
	}
	for range 96 {
		assert.False(t, ring.Enqueue(chunk), "full ring must reject")
	}

	// Drain one, a new submission succeeds.
	dst := make([]float32, 512)
	n, ok := ring.Dequeue(dst)
	require.True(t, ok)
	assert.Equal(t, 512, n)
	assert.True(t, ring.Enqueue(chunk))
}

func TestChunkRingPreservesOrderAndData(t *testing.T) {
	ring, err := NewChunkRing(8, 4)
	require.NoError(t, err)

	for i := range 5 {
		require.True(t, ring.Enqueue([]float32{float32(i), float32(i), float32(i)}))
	}

	dst := make([]float32, 4)
	for i := range 5 {
		n, ok := ring.Dequeue(dst)
		require.True(t, ok)
		assert.Equal(t, 3, n)
		assert.Equal(t, float32(i), dst[0])
	}
	_, ok := ring.Dequeue(dst)
	assert.False(t, ok, "ring should be empty")
}

func TestChunkRingSPSC(t *testing.T) {
	ring, err := NewChunkRing(16, 8)
	require.NoError(t, err)

	const total = 10000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		sent := 0
		for sent < total {
			if ring.Enqueue([]float32{float32(sent)}) {
				sent++
			}
		}
	}()

	received := make([]float32, 0, total)
	go func() {
		defer wg.Done()
		dst := make([]float32, 8)
		for len(received) < total {
			if n, ok := ring.Dequeue(dst); ok {
				if n == 1 {
					received = append(received, dst[0])
				}
			}
		}
	}()

	wg.Wait()
	require.Len(t, received, total)
	for i, v := range received {
		require.Equal(t, float32(i), v, "chunk %d out of order", i)
	}
}

func TestChunkRingNotify(t *testing.T) {
	ring, err := NewChunkRing(4, 8)
	require.NoError(t, err)

	select {
	case <-ring.Notify():
		t.Fatal("notify should be empty before enqueue")
	default:
	}

	ring.Enqueue([]float32{1})
	select {
	case <-ring.Notify():
	default:
		t.Fatal("notify should fire after enqueue")
	}
}

func TestFloat32PoolExhaustion(t *testing.T) {
	pool, err := NewFloat32Pool(512, 2, 4)
	require.NoError(t, err)

	var bufs [][]float32
	for range 4 {
		buf, err := pool.Acquire()
		require.NoError(t, err)
		bufs = append(bufs, buf)
	}

	_, err = pool.Acquire()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))

	pool.Release(bufs[0])
	buf, err := pool.Acquire()
	require.NoError(t, err)
	assert.Len(t, buf, 512)

	stats := pool.Stats()
	assert.Equal(t, int64(4), stats.Allocated)
	assert.Equal(t, int64(4), stats.InUse)
}
