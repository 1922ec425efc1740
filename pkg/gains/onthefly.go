package gains

import (
	"fmt"
	"sync"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// OnTheFly recomputes connections from adjacency on every query. It trades
// time for the n*k memory of the dense cache; the API is identical.
type OnTheFly struct {
	k    int
	p    *partition.Partition
	maps sync.Pool
}

// NewOnTheFly creates a cache for graphs partitioned into at most k blocks.
func NewOnTheFly(k int) *OnTheFly {
	c := &OnTheFly{k: k}
	c.maps.New = func() any { return ds.NewRatingMap(k) }
	return c
}

func (c *OnTheFly) Initialize(p *partition.Partition) { c.p = p }

func (c *OnTheFly) Conn(u, b int) int64 {
	g := c.p.Graph()
	var conn int64
	g.Neighbors(u, func(e, v int) bool {
		if c.p.Block(v) == b {
			conn += g.EdgeWeight(e)
		}
		return true
	})
	return conn
}

func (c *OnTheFly) Gain(u, from, to int) int64 {
	g := c.p.Graph()
	var connFrom, connTo int64
	g.Neighbors(u, func(e, v int) bool {
		switch c.p.Block(v) {
		case from:
			connFrom += g.EdgeWeight(e)
		case to:
			connTo += g.EdgeWeight(e)
		}
		return true
	})
	return connTo - connFrom
}

// Move is a no-op; nothing is cached.
func (c *OnTheFly) Move(u, from, to int) {}

func (c *OnTheFly) IsBorderNode(u int) bool {
	g := c.p.Graph()
	border := false
	bu := c.p.Block(u)
	g.Neighbors(u, func(e, v int) bool {
		if c.p.Block(v) != bu {
			border = true
			return false
		}
		return true
	})
	return border
}

// Gains calls fn once per adjacent foreign block with the exact gain of
// moving u there, grouping edge weights in a pooled rating map.
func (c *OnTheFly) Gains(u int, fn func(b int, gain int64)) {
	g := c.p.Graph()
	from := c.p.Block(u)

	rm := c.maps.Get().(*ds.RatingMap)
	rm.Clear()
	g.Neighbors(u, func(e, v int) bool {
		rm.Add(c.p.Block(v), g.EdgeWeight(e))
		return true
	})

	connFrom := rm.Get(from)
	rm.Entries(func(b int, conn int64) {
		if b != from {
			fn(b, conn-connFrom)
		}
	})
	c.maps.Put(rm)
}

// Validate checks the partition's block weights only; there is no cached
// state to compare.
func (c *OnTheFly) Validate(p *partition.Partition) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("on-the-fly gain cache: %w", err)
	}
	return nil
}
