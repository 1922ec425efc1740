package dist

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
	"github.com/gilchrisn/graph-partition-service/pkg/refinement"
)

// Jet is the distributed JET refiner. Each iteration runs the supersteps
// find moves | exchange candidates | filter | execute | sync labels |
// allreduce deltas, then rebalances and snapshots the best cut. A barrier
// closes every phase.
type Jet struct {
	params refinement.Params
	logger zerolog.Logger

	balancer *Balancer

	locked  []uint8
	gains   []int64
	targets []int
	deltas  []int64

	bestBlocks  []int
	bestWeights []int64
	bestCutSeen int64

	penaltyFactor float64
}

// NewJet constructs the refiner with its embedded distributed balancer.
func NewJet(params refinement.Params, logger zerolog.Logger) *Jet {
	return &Jet{
		params:   params,
		logger:   logger,
		balancer: NewBalancer(params, logger),
	}
}

// Initialize sizes the per-node state for the partition's graph.
func (r *Jet) Initialize(c *Comm, p *Partition) {
	g := p.Graph()
	r.locked = make([]uint8, g.NLocal())
	r.gains = make([]int64, g.TotalN())
	r.targets = make([]int, g.TotalN())
	r.deltas = make([]int64, p.K())
	for u := 0; u < g.TotalN(); u++ {
		r.targets[u] = p.Block(u)
	}

	globalN := g.GlobalN()
	if globalN <= 2*p.K()*r.params.ContractionLimit {
		r.penaltyFactor = r.params.JetCoarsePenalty
	} else {
		r.penaltyFactor = r.params.JetFinePenalty
	}
	c.Barrier()
}

// Refine runs JET iterations until the caps are hit, then rolls back to the
// best snapshot. Returns whether the cut improved.
func (r *Jet) Refine(c *Comm, p *Partition, ctx *partition.Context) (bool, error) {
	maxIterations := r.params.JetMaxIterations
	if maxIterations == 0 {
		maxIterations = math.MaxInt
	}
	maxFruitless := r.params.JetMaxFruitless
	if maxFruitless == 0 {
		maxFruitless = math.MaxInt
	}

	initialCut := p.EdgeCut(c)
	r.snapshot(p, initialCut)
	bestCut := initialCut

	iteration := 0
	fruitless := 0
	for {
		r.findMoves(p)
		c.Barrier()
		r.exchangeCandidates(c, p)
		r.filterMoves(p)
		c.Barrier()
		r.executeMoves(p)
		c.Barrier()
		p.SyncGhostLabels(c, func(u int) bool { return r.locked[u] != 0 })
		r.applyBlockWeightDeltas(c, p)

		if err := r.balancer.Refine(c, p, ctx); err != nil {
			return false, err
		}

		cut := p.EdgeCut(c)
		if cut < r.bestCutSeen {
			r.snapshot(p, cut)
		}

		iteration++
		fruitless++
		if float64(bestCut)-float64(cut) > (1.0-r.params.JetFruitlessThreshold)*float64(bestCut) {
			bestCut = cut
			fruitless = 0
		}
		if c.Rank() == 0 {
			r.logger.Debug().
				Int("iteration", iteration).
				Int64("cut", cut).
				Int64("best_cut", r.bestCutSeen).
				Int("fruitless", fruitless).
				Msg("Distributed Jet iteration")
		}

		if iteration >= maxIterations || fruitless >= maxFruitless {
			break
		}
	}

	r.rollback(c, p)
	return r.bestCutSeen < initialCut, nil
}

func (r *Jet) snapshot(p *Partition, cut int64) {
	r.bestBlocks = append(r.bestBlocks[:0], p.blocks...)
	r.bestWeights = append(r.bestWeights[:0], p.blockWeights...)
	r.bestCutSeen = cut
}

func (r *Jet) rollback(c *Comm, p *Partition) {
	copy(p.blocks, r.bestBlocks)
	copy(p.blockWeights, r.bestWeights)
	c.Barrier()
}

// findMoves records the best move candidate of every unlocked owned node.
func (r *Jet) findMoves(p *Partition) {
	g := p.Graph()
	rm := ds.NewRatingMap(p.K())

	for u := 0; u < g.NLocal(); u++ {
		from := p.Block(u)
		if r.locked[u] != 0 {
			r.gains[u] = 0
			r.targets[u] = from
			continue
		}

		rm.Clear()
		g.Neighbors(u, func(e, v int) bool {
			rm.Add(p.Block(v), g.EdgeWeight(e))
			return true
		})
		intDegree := rm.Get(from)

		best := from
		var extDegree int64
		rm.Entries(func(b int, conn int64) {
			if b == from || conn == 0 {
				return
			}
			if best == from || conn > extDegree || (conn == extDegree && b < best) {
				best = b
				extDegree = conn
			}
		})

		gain := extDegree - intDegree
		if best != from &&
			(extDegree > intDegree || gain >= -int64(math.Floor(r.penaltyFactor*float64(intDegree)))) {
			r.gains[u] = gain
			r.targets[u] = best
		} else {
			r.gains[u] = 0
			r.targets[u] = from
		}
	}
}

type moveCandidate struct {
	Node   int64
	Gain   int64
	Target int32
}

// exchangeCandidates resets the ghost candidate slots and exchanges the
// (gain, target) of every owned candidate with the ranks holding it as a
// ghost.
func (r *Jet) exchangeCandidates(c *Comm, p *Partition) {
	g := p.Graph()
	for ghost := g.NLocal(); ghost < g.TotalN(); ghost++ {
		r.gains[ghost] = 0
		r.targets[ghost] = p.Block(ghost)
	}

	out := make([][]moveCandidate, c.Size())
	seen := make([]int, c.Size())
	for i := range seen {
		seen[i] = -1
	}
	for u := 0; u < g.NLocal(); u++ {
		if r.targets[u] == p.Block(u) {
			continue
		}
		for i := range seen {
			seen[i] = -1
		}
		g.Neighbors(u, func(e, v int) bool {
			if !g.IsOwned(v) {
				owner := g.GhostOwner(v)
				if seen[owner] != u {
					seen[owner] = u
					out[owner] = append(out[owner], moveCandidate{
						Node:   g.GlobalID(u),
						Gain:   r.gains[u],
						Target: int32(r.targets[u]),
					})
				}
			}
			return true
		})
	}

	in := SparseAllToAll(c, out)
	for _, msgs := range in {
		for _, msg := range msgs {
			if local, ok := g.LocalID(msg.Node); ok {
				r.gains[local] = msg.Gain
				r.targets[local] = int(msg.Target)
			}
		}
	}
}

// filterMoves locks a candidate iff its gain stays nonnegative when every
// neighbor with lexicographically larger (gain, global id) priority is
// projected onto its own target.
func (r *Jet) filterMoves(p *Partition) {
	g := p.Graph()
	for u := 0; u < g.NLocal(); u++ {
		r.locked[u] = 0

		from := p.Block(u)
		to := r.targets[u]
		if from == to {
			continue
		}
		gainU := r.gains[u]
		globalU := g.GlobalID(u)

		var projected int64
		g.Neighbors(u, func(e, v int) bool {
			w := g.EdgeWeight(e)
			blockV := p.Block(v)
			if r.gains[v] > gainU || (r.gains[v] == gainU && g.GlobalID(v) < globalU) {
				blockV = r.targets[v]
			}
			if blockV == to {
				projected += w
			} else if blockV == from {
				projected -= w
			}
			return true
		})

		if projected >= 0 {
			r.locked[u] = 1
		}
	}
}

func (r *Jet) executeMoves(p *Partition) {
	g := p.Graph()
	for u := 0; u < g.NLocal(); u++ {
		if r.locked[u] == 0 {
			continue
		}
		from := p.Block(u)
		to := r.targets[u]
		p.SetBlockRaw(u, to)

		w := g.NodeWeight(u)
		r.deltas[from] -= w
		r.deltas[to] += w
	}
}

func (r *Jet) applyBlockWeightDeltas(c *Comm, p *Partition) {
	global := c.AllreduceSumInt64(r.deltas)
	for b := range r.deltas {
		p.AddBlockWeight(b, global[b])
		r.deltas[b] = 0
	}
	c.Barrier()
}
