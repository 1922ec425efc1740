package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForCoversRangeDisjointly(t *testing.T) {
	n := 1000
	hits := make([]int32, n)
	For(n, 4, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	})
	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, h)
		}
	}
}

func TestForWorkerChunks(t *testing.T) {
	n := 10
	workers := 3
	chunks := NumChunks(n, workers)
	seen := make([]int32, chunks)

	ForWorker(n, workers, func(worker, start, end int) {
		atomic.AddInt32(&seen[worker], int32(end-start))
	})

	var total int32
	for _, s := range seen {
		total += s
	}
	if int(total) != n {
		t.Errorf("chunks cover %d indices, want %d", total, n)
	}
}

func TestForEmptyRange(t *testing.T) {
	called := false
	For(0, 4, func(start, end int) { called = true })
	if called {
		t.Errorf("fn must not run for an empty range")
	}
}
