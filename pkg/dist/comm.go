// Package dist runs the partitioner's distributed algorithms over
// message-passing ranks. Ranks are goroutines sharing a World; every
// algorithmic phase is a bulk-synchronous superstep of local compute
// followed by a collective or neighborhood exchange.
package dist

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// World is the shared state of a rank group: a cyclic barrier and the
// exchange slots the collectives publish into.
type World struct {
	size  int
	bar   *cyclicBarrier
	slots [][]any // slots[from][to]
}

// NewWorld creates a world for size ranks.
func NewWorld(size int) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("rank count must be positive, got %d", size)
	}
	slots := make([][]any, size)
	for i := range slots {
		slots[i] = make([]any, size)
	}
	return &World{
		size:  size,
		bar:   newCyclicBarrier(size),
		slots: slots,
	}, nil
}

// Run spawns one goroutine per rank and waits for all of them.
func (w *World) Run(fn func(c *Comm) error) error {
	var g errgroup.Group
	for rank := 0; rank < w.size; rank++ {
		c := &Comm{world: w, rank: rank}
		g.Go(func() error { return fn(c) })
	}
	return g.Wait()
}

// Comm is one rank's handle on the world.
type Comm struct {
	world *World
	rank  int
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.world.size }

// Barrier blocks until every rank arrives.
func (c *Comm) Barrier() { c.world.bar.await() }

// publish stores a payload for one destination rank. Reads become valid
// after the next barrier.
func (c *Comm) publish(dest int, payload any) {
	c.world.slots[c.rank][dest] = payload
}

func (c *Comm) take(src int) any {
	v := c.world.slots[src][c.rank]
	c.world.slots[src][c.rank] = nil
	return v
}

// SparseAllToAll sends out[dest] to every rank and returns the payloads
// received, indexed by source rank. Nil entries carry no message.
func SparseAllToAll[T any](c *Comm, out [][]T) [][]T {
	for dest := 0; dest < c.Size(); dest++ {
		if len(out[dest]) > 0 {
			c.publish(dest, out[dest])
		}
	}
	c.Barrier()

	in := make([][]T, c.Size())
	for src := 0; src < c.Size(); src++ {
		if v := c.take(src); v != nil {
			in[src] = v.([]T)
		}
	}
	c.Barrier()
	return in
}

// AllGather shares one payload per rank with every rank.
func AllGather[T any](c *Comm, local T) []T {
	for dest := 0; dest < c.Size(); dest++ {
		c.publish(dest, local)
	}
	c.Barrier()

	all := make([]T, c.Size())
	for src := 0; src < c.Size(); src++ {
		all[src] = c.take(src).(T)
	}
	c.Barrier()
	return all
}

// AllreduceSumInt64 sums vec element-wise across all ranks.
func (c *Comm) AllreduceSumInt64(vec []int64) []int64 {
	all := AllGather(c, append([]int64(nil), vec...))
	sum := make([]int64, len(vec))
	for _, contribution := range all {
		for i, v := range contribution {
			sum[i] += v
		}
	}
	return sum
}

// Broadcast distributes root's payload to every rank.
func Broadcast[T any](c *Comm, root int, local T) T {
	if c.rank == root {
		for dest := 0; dest < c.Size(); dest++ {
			c.publish(dest, local)
		}
	}
	c.Barrier()
	v := c.take(root).(T)
	c.Barrier()
	return v
}

// cyclicBarrier is a reusable counting barrier.
type cyclicBarrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	count      int
	generation int
}

func newCyclicBarrier(parties int) *cyclicBarrier {
	b := &cyclicBarrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *cyclicBarrier) await() {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	b.count++
	if b.count == b.parties {
		b.count = 0
		b.generation++
		b.cond.Broadcast()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
}
