package refinement

import (
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/parallel"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// LabelPropagation moves each node to the neighboring block with the highest
// gain, subject to the hard block weight cap. A pass proposes targets for
// all nodes in parallel against a frozen label snapshot, then commits in a
// seeded random order; a run stops when a pass moves nothing or the
// iteration cap is reached. Extreme hubs are excluded by the degree caps.
type LabelPropagation struct {
	params Params
	logger zerolog.Logger
	rng    *rand.Rand
}

// NewLabelPropagation constructs the refiner.
func NewLabelPropagation(params Params, logger zerolog.Logger) *LabelPropagation {
	return &LabelPropagation{
		params: params,
		logger: logger,
		rng:    rand.New(rand.NewSource(params.Seed)),
	}
}

func (r *LabelPropagation) Initialize(p *partition.Partition) {}

func (r *LabelPropagation) Refine(p *partition.Partition, ctx *partition.Context) (bool, error) {
	g := p.Graph()
	n := g.N()
	proposals := make([]int, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	improved := false
	for iter := 0; iter < r.params.LPMaxIterations; iter++ {
		chunks := parallel.NumChunks(n, r.params.Workers)
		maps := make([]*ds.RatingMap, chunks)
		seeds := make([]int64, chunks)
		for i := range seeds {
			seeds[i] = r.rng.Int63()
		}
		parallel.ForWorker(n, r.params.Workers, func(worker, start, end int) {
			rm := maps[worker]
			if rm == nil {
				rm = ds.NewRatingMap(p.K())
				maps[worker] = rm
			}
			local := rand.New(rand.NewSource(seeds[worker]))
			for u := start; u < end; u++ {
				proposals[u] = r.propose(p, ctx, u, rm, local)
			}
		})

		r.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		moves := 0
		for _, u := range order {
			to := proposals[u]
			from := p.Block(u)
			if to == from {
				continue
			}
			w := g.NodeWeight(u)
			if p.BlockWeight(to)+w > ctx.MaxBlockWeight(to) {
				continue
			}
			p.SetBlock(u, to)
			moves++
		}

		r.logger.Debug().Int("iteration", iter).Int("moves", moves).Msg("Label propagation pass")
		if moves > 0 {
			improved = true
		} else {
			break
		}
	}
	return improved, nil
}

// propose picks the best target block of u. Ties prefer the block with less
// overload, then the current block, then a coin flip.
func (r *LabelPropagation) propose(p *partition.Partition, ctx *partition.Context, u int, rm *ds.RatingMap, rng *rand.Rand) int {
	g := p.Graph()
	from := p.Block(u)
	if r.params.LPMaxDegree > 0 && g.Degree(u) > r.params.LPMaxDegree {
		return from
	}

	w := g.NodeWeight(u)
	rm.Clear()
	visited := 0
	g.Neighbors(u, func(e, v int) bool {
		rm.Add(p.Block(v), g.EdgeWeight(e))
		visited++
		return r.params.LPMaxNeighbors <= 0 || visited < r.params.LPMaxNeighbors
	})

	bestBlock := from
	bestGain := int64(0)
	bestOverload := p.BlockWeight(from) - ctx.MaxBlockWeight(from)
	connFrom := rm.Get(from)

	rm.Entries(func(b int, conn int64) {
		if b == from {
			return
		}
		if p.BlockWeight(b)+w > ctx.MaxBlockWeight(b) {
			return
		}
		gain := conn - connFrom
		overload := p.BlockWeight(b) + w - ctx.MaxBlockWeight(b)
		better := gain > bestGain ||
			(gain == bestGain && overload < bestOverload) ||
			(gain == bestGain && overload == bestOverload && bestBlock != from && rng.Intn(2) == 0)
		if better && gain >= 0 {
			bestBlock = b
			bestGain = gain
			bestOverload = overload
		}
	})
	return bestBlock
}
