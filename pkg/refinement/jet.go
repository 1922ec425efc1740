package refinement

import (
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/parallel"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// Jet is the JET refiner (Gilbert et al., "Jet: Multilevel Graph
// Partitioning on GPUs"). Each iteration runs bulk-synchronous phases over
// all nodes: find move candidates, filter them under the assumption that
// higher-gain neighbors move first, execute the survivors, apply the block
// weight deltas, rebalance, and snapshot the best cut seen.
type Jet struct {
	params   Params
	logger   zerolog.Logger
	balancer *Balancer

	snapshooter   Snapshooter
	locked        []uint8
	gains         []int64
	targets       []int
	deltas        []int64
	penaltyFactor float64
}

// NewJet constructs the refiner with its embedded balancer.
func NewJet(params Params, logger zerolog.Logger) *Jet {
	return &Jet{
		params:   params,
		logger:   logger,
		balancer: NewBalancer(params, logger),
	}
}

func (r *Jet) Initialize(p *partition.Partition) {
	n := p.Graph().N()
	r.locked = make([]uint8, n)
	r.gains = make([]int64, n)
	r.targets = make([]int, n)
	r.deltas = make([]int64, p.K())
	parallel.For(n, r.params.Workers, func(start, end int) {
		for u := start; u < end; u++ {
			r.targets[u] = p.Block(u)
		}
	})

	if n <= 2*p.K()*r.params.ContractionLimit {
		r.penaltyFactor = r.params.JetCoarsePenalty
	} else {
		r.penaltyFactor = r.params.JetFinePenalty
	}
}

func (r *Jet) Refine(p *partition.Partition, ctx *partition.Context) (bool, error) {
	maxIterations := r.params.JetMaxIterations
	if maxIterations == 0 {
		maxIterations = math.MaxInt
	}
	maxFruitless := r.params.JetMaxFruitless
	if maxFruitless == 0 {
		maxFruitless = math.MaxInt
	}

	initialCut := partition.EdgeCut(p)
	r.snapshooter.Init(p, initialCut)
	bestCut := initialCut

	iteration := 0
	fruitless := 0
	for {
		r.findMoves(p)
		r.filterMoves(p)
		r.executeMoves(p)
		r.applyBlockWeightDeltas(p)

		if _, err := r.balancer.Refine(p, ctx); err != nil {
			return false, err
		}

		cut := partition.EdgeCut(p)
		r.snapshooter.Update(p, cut)

		iteration++
		fruitless++
		if float64(bestCut)-float64(cut) > (1.0-r.params.JetFruitlessThreshold)*float64(bestCut) {
			bestCut = cut
			fruitless = 0
		}
		r.logger.Debug().
			Int("iteration", iteration).
			Int64("cut", cut).
			Int64("best_cut", r.snapshooter.BestCut()).
			Int("fruitless", fruitless).
			Msg("Jet iteration")

		if iteration >= maxIterations || fruitless >= maxFruitless {
			break
		}
	}

	r.snapshooter.Rollback(p)
	return r.snapshooter.BestCut() < initialCut, nil
}

// findMoves records, for every unlocked node, the strongest foreign block
// and the gain of moving there; the candidate survives only when it is cheap
// enough relative to the node's internal degree.
func (r *Jet) findMoves(p *partition.Partition) {
	g := p.Graph()
	chunks := parallel.NumChunks(g.N(), r.params.Workers)
	maps := make([]*ds.RatingMap, chunks)

	parallel.ForWorker(g.N(), r.params.Workers, func(worker, start, end int) {
		rm := maps[worker]
		if rm == nil {
			rm = ds.NewRatingMap(p.K())
			maps[worker] = rm
		}
		for u := start; u < end; u++ {
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
	})
}

// filterMoves locks a candidate for execution iff its projected gain stays
// nonnegative when every neighbor with lexicographically larger (gain, id)
// priority is assumed to move first.
func (r *Jet) filterMoves(p *partition.Partition) {
	g := p.Graph()
	parallel.For(g.N(), r.params.Workers, func(start, end int) {
		for u := start; u < end; u++ {
			r.locked[u] = 0

			from := p.Block(u)
			to := r.targets[u]
			if from == to {
				continue
			}
			gainU := r.gains[u]

			var projected int64
			g.Neighbors(u, func(e, v int) bool {
				w := g.EdgeWeight(e)
				blockV := p.Block(v)
				if r.gains[v] > gainU || (r.gains[v] == gainU && v < u) {
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
	})
}

// executeMoves commits every locked candidate and accumulates per-block
// weight deltas with relaxed atomics.
func (r *Jet) executeMoves(p *partition.Partition) {
	g := p.Graph()
	parallel.For(g.N(), r.params.Workers, func(start, end int) {
		for u := start; u < end; u++ {
			if r.locked[u] == 0 {
				continue
			}
			from := p.Block(u)
			to := r.targets[u]
			p.SetBlockRaw(u, to)

			w := g.NodeWeight(u)
			atomic.AddInt64(&r.deltas[from], -w)
			atomic.AddInt64(&r.deltas[to], w)
		}
	})
}

func (r *Jet) applyBlockWeightDeltas(p *partition.Partition) {
	for b := range r.deltas {
		p.AddBlockWeight(b, r.deltas[b])
		r.deltas[b] = 0
	}
}
