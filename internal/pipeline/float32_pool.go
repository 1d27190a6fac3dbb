package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/wildcall/callmatch-go/internal/errors"
)

// Float32Pool hands out fixed-size float32 buffers. The common acquire and
// release paths go through a buffered channel and take no lock; growing the
// pool beyond its preallocated set takes a mutex and is bounded by maxBuffers.
type Float32Pool struct {
	free       chan []float32
	bufferSize int
	maxBuffers int

	growMu    sync.Mutex
	allocated atomic.Int64
	inUse     atomic.Int64
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	Allocated int64
	InUse     int64
}

// NewFloat32Pool preallocates initial buffers of bufferSize samples each and
// allows growth up to maxBuffers.
func NewFloat32Pool(bufferSize, initial, maxBuffers int) (*Float32Pool, error) {
	if bufferSize <= 0 || initial < 0 || maxBuffers < initial {
		return nil, errors.Newf("invalid pool sizing: size=%d initial=%d max=%d", bufferSize, initial, maxBuffers).
			Component(componentPipeline).
			Category(errors.CategoryValidation).
			Build()
	}
	p := &Float32Pool{
		free:       make(chan []float32, maxBuffers),
		bufferSize: bufferSize,
		maxBuffers: maxBuffers,
	}
	for range initial {
		p.free <- make([]float32, bufferSize)
	}
	p.allocated.Store(int64(initial))
	return p, nil
}

// Acquire returns a buffer of the pool's size. When the freelist is empty the
// pool grows until maxBuffers, after which ResourceExhausted is returned.
func (p *Float32Pool) Acquire() ([]float32, error) {
	select {
	case buf := <-p.free:
		p.inUse.Add(1)
		return buf, nil
	default:
	}

	p.growMu.Lock()
	defer p.growMu.Unlock()

	// Re-check under the lock in case a release raced in.
	select {
	case buf := <-p.free:
		p.inUse.Add(1)
		return buf, nil
	default:
	}

	if p.allocated.Load() >= int64(p.maxBuffers) {
		return nil, errors.Newf("buffer pool exhausted at %d buffers", p.maxBuffers).
			Component(componentPipeline).
			Category(errors.CategoryLimit).
			Context("max_buffers", p.maxBuffers).
			Build()
	}
	p.allocated.Add(1)
	p.inUse.Add(1)
	return make([]float32, p.bufferSize), nil
}

// Release returns a buffer to the pool. Buffers of the wrong size are
// dropped; a right-sized buffer from another pool is accepted.
func (p *Float32Pool) Release(buf []float32) {
	if len(buf) != p.bufferSize {
		return
	}
	p.inUse.Add(-1)
	select {
	case p.free <- buf:
	default:
		// Freelist full; let the buffer be collected.
		p.allocated.Add(-1)
	}
}

// Stats returns a usage snapshot.
func (p *Float32Pool) Stats() PoolStats {
	return PoolStats{
		Allocated: p.allocated.Load(),
		InUse:     p.inUse.Load(),
	}
}
