package pipeline

import (
	"sync/atomic"

	"github.com/wildcall/callmatch-go/internal/errors"
)

// ChunkRing is a single-producer single-consumer ring of fixed-capacity
// float32 chunks. Capacity is a power of two. The producer never blocks:
// when the ring is full, Enqueue reports overflow and writes nothing.
//
// All slot storage is allocated at construction; enqueue copies into the
// slot and dequeue copies out, so neither side retains ring memory.
type ChunkRing struct {
	slots    [][]float32 // fixed backing arrays, len == chunkSize each
	lengths  []int32     // valid sample count per slot
	mask     uint64
	capacity int

	head atomic.Uint64 // next slot to dequeue
	tail atomic.Uint64 // next slot to enqueue

	notify chan struct{} // pulsed after enqueue so a parked consumer wakes
}

// NewChunkRing allocates a ring of capacity chunks, each holding up to
// chunkSize samples.
func NewChunkRing(capacity, chunkSize int) (*ChunkRing, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, errors.Newf("ring capacity %d is not a positive power of two", capacity).
			Component(componentPipeline).
			Category(errors.CategoryValidation).
			Context("capacity", capacity).
			Build()
	}
	r := &ChunkRing{
		slots:    make([][]float32, capacity),
		lengths:  make([]int32, capacity),
		mask:     uint64(capacity - 1),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
	for i := range r.slots {
		r.slots[i] = make([]float32, chunkSize)
	}
	return r, nil
}

// Capacity returns the slot count.
func (r *ChunkRing) Capacity() int { return r.capacity }

// Len returns the number of occupied slots.
func (r *ChunkRing) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Free returns the number of empty slots.
func (r *ChunkRing) Free() int {
	return r.capacity - r.Len()
}

// Enqueue copies samples into the next free slot. len(samples) must not
// exceed the chunk size. Returns false when the ring is full.
func (r *ChunkRing) Enqueue(samples []float32) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(r.capacity) {
		return false
	}
	slot := r.slots[tail&r.mask]
	n := copy(slot, samples)
	r.lengths[tail&r.mask] = int32(n)
	r.tail.Store(tail + 1)

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return true
}

// Dequeue copies the oldest chunk into dst and returns the sample count.
// Returns 0, false when the ring is empty.
func (r *ChunkRing) Dequeue(dst []float32) (int, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return 0, false
	}
	idx := head & r.mask
	n := int(r.lengths[idx])
	copy(dst[:n], r.slots[idx][:n])
	r.head.Store(head + 1)
	return n, true
}

// Notify returns the channel pulsed after each enqueue. The engine's workers
// are dispatched through its own work channel and do not wait on it.
func (r *ChunkRing) Notify() <-chan struct{} { return r.notify }

// Drain discards all queued chunks.
func (r *ChunkRing) Drain() {
	r.head.Store(r.tail.Load())
}
