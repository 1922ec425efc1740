package ds

import (
	"fmt"
	"math"
	"sync/atomic"
)

// lockSentinel marks a slot whose value has not been published yet.
const lockSentinel = math.MaxUint64

// ConcurrentCircularVector chains prefix sums across concurrently produced
// chunks. Each producer claims an entry with Next, computes its chunk, and
// calls FetchAndUpdate to read the running sum published by the previous
// entry and publish its own. Producers spin until the previous entry is set,
// so the capacity must exceed the number of cooperating producers.
type ConcurrentCircularVector struct {
	counter atomic.Uint64
	buffer  []atomic.Uint64
}

// NewConcurrentCircularVector creates a vector for up to size cooperating
// producers. The ring holds size+1 slots, which keeps the capacity strictly
// above the producer count; size must be at least 1.
func NewConcurrentCircularVector(size int) (*ConcurrentCircularVector, error) {
	if size < 1 {
		return nil, fmt.Errorf("concurrent circular vector requires at least one producer slot, got %d", size)
	}
	v := &ConcurrentCircularVector{buffer: make([]atomic.Uint64, size+1)}
	for i := 0; i < len(v.buffer)-1; i++ {
		v.buffer[i].Store(lockSentinel)
	}
	return v, nil
}

// Next claims the next entry to write to.
func (v *ConcurrentCircularVector) Next() int {
	return int(v.counter.Add(1) - 1)
}

// FetchAndUpdate blocks until the previous entry is published, then stores
// its value plus delta into the claimed entry and returns the previous value.
func (v *ConcurrentCircularVector) FetchAndUpdate(entry int, delta uint64) uint64 {
	size := len(v.buffer)
	pos := entry % size
	prev := pos - 1
	if prev < 0 {
		prev = size - 1
	}

	var value uint64
	for {
		value = v.buffer[prev].Load()
		if value != lockSentinel {
			break
		}
	}

	v.buffer[prev].Store(lockSentinel)
	v.buffer[pos].Store(value + delta)
	return value
}
