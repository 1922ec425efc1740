package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers clamps the configured worker count to a usable value.
func Workers(configured int) int {
	if configured <= 0 {
		return runtime.NumCPU()
	}
	return configured
}

// For splits [0, n) into contiguous chunks and runs fn on each chunk from a
// bounded pool of workers. fn must not touch state outside its index range
// except through atomics.
func For(n, workers int, fn func(start, end int)) {
	workers = Workers(workers)
	if n <= 0 {
		return
	}
	if workers == 1 || n == 1 {
		fn(0, n)
		return
	}
	if workers > n {
		workers = n
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	g.Wait()
}

// ForWorker is For with the worker's chunk index passed to fn, so callers
// can address per-worker scratch state without allocation in the loop body.
func ForWorker(n, workers int, fn func(worker, start, end int)) {
	workers = Workers(workers)
	if n <= 0 {
		return
	}
	if workers > n {
		workers = n
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	worker := 0
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		worker, start, end := worker, start, end
		g.Go(func() error {
			fn(worker, start, end)
			return nil
		})
		worker++
	}
	g.Wait()
}

// NumChunks reports how many chunks ForWorker will create for n and workers.
func NumChunks(n, workers int) int {
	workers = Workers(workers)
	if n <= 0 {
		return 0
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	return (n + chunk - 1) / chunk
}
