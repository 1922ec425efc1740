package refinement

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// Balancer migrates weight out of overloaded blocks until every block
// satisfies its cap or no further improvement is possible. Candidate moves
// are connected move sets grown around seeds in overloaded blocks, executed
// in order of relative gain as long as they reduce overload without
// creating new overload.
type Balancer struct {
	params Params
	logger zerolog.Logger
}

// NewBalancer constructs the balancer.
func NewBalancer(params Params, logger zerolog.Logger) *Balancer {
	return &Balancer{params: params, logger: logger}
}

func (b *Balancer) Initialize(p *partition.Partition) {}

func (b *Balancer) Refine(p *partition.Partition, ctx *partition.Context) (bool, error) {
	if partition.IsFeasible(p, ctx) {
		return false, nil
	}

	improved := false
	maxSetWeight := b.initialMaxSetWeight(ctx)

	for round := 0; round < b.params.BalancerMaxRounds; round++ {
		overload := partition.TotalOverload(p, ctx)
		if overload == 0 {
			break
		}

		sets := BuildMoveSets(p, ctx, maxSetWeight)
		applied := b.applyMoveSets(p, ctx, sets)
		b.logger.Debug().
			Int("round", round).
			Int64("overload", overload).
			Int("move_sets", sets.NumSets()).
			Int("applied", applied).
			Msg("Balancer round")

		if applied == 0 {
			// Sets too coarse or all blocked; fall back to single nodes.
			if b.moveIndividualNodes(p, ctx) == 0 {
				break
			}
		}
		improved = true
		maxSetWeight *= 2
	}
	return improved, nil
}

func (b *Balancer) initialMaxSetWeight(ctx *partition.Context) int64 {
	w := int64(b.params.MoveSetWeightFactor * float64(ctx.MaxBlockWeight(0)))
	if w < 1 {
		w = 1
	}
	return w
}

type setCandidate struct {
	set     int
	gain    int64
	weight  int64
	relGain float64
}

// applyMoveSets executes candidate sets in descending relative gain order,
// skipping sets whose source is no longer overloaded or whose target cannot
// take the weight.
func (b *Balancer) applyMoveSets(p *partition.Partition, ctx *partition.Context, sets *MoveSets) int {
	candidates := make([]setCandidate, 0, sets.NumSets())
	for s := 0; s < sets.NumSets(); s++ {
		gain := setGain(p, sets, s)
		weight := sets.Weight(p, s)
		candidates = append(candidates, setCandidate{
			set:     s,
			gain:    gain,
			weight:  weight,
			relGain: relativeGain(gain, weight),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].relGain != candidates[j].relGain {
			return candidates[i].relGain > candidates[j].relGain
		}
		return candidates[i].set < candidates[j].set
	})

	applied := 0
	for _, c := range candidates {
		source := sets.Sources[c.set]
		target := sets.Targets[c.set]
		if partition.BlockOverload(p, ctx, source) == 0 {
			continue
		}
		if p.BlockWeight(target)+c.weight > ctx.MaxBlockWeight(target) {
			continue
		}
		for _, u := range sets.Set(c.set) {
			p.SetBlock(u, target)
		}
		applied++
	}
	return applied
}

// setGain is the cut change of migrating the whole set to its target:
// external connections to the target minus external connections kept in the
// source block.
func setGain(p *partition.Partition, sets *MoveSets, s int) int64 {
	g := p.Graph()
	source := sets.Sources[s]
	target := sets.Targets[s]
	var toTarget, toSource int64
	for _, u := range sets.Set(s) {
		g.Neighbors(u, func(e, v int) bool {
			if sets.NodeToSet[v] == s {
				return true
			}
			switch p.Block(v) {
			case target:
				toTarget += g.EdgeWeight(e)
			case source:
				toSource += g.EdgeWeight(e)
			}
			return true
		})
	}
	return toTarget - toSource
}

// relativeGain ranks heavy sets higher when the gain is nonnegative and
// lighter sets higher when weight must be paid for.
func relativeGain(gain, weight int64) float64 {
	if weight == 0 {
		return 0
	}
	if gain >= 0 {
		return float64(gain) * float64(weight)
	}
	return float64(gain) / float64(weight)
}

// moveIndividualNodes is the last-resort pass: pull single nodes out of
// overloaded blocks in order of least cut damage.
func (b *Balancer) moveIndividualNodes(p *partition.Partition, ctx *partition.Context) int {
	g := p.Graph()
	rm := ds.NewRatingMap(p.K())
	moves := 0

	for u := 0; u < g.N(); u++ {
		from := p.Block(u)
		if partition.BlockOverload(p, ctx, from) == 0 {
			continue
		}
		w := g.NodeWeight(u)

		rm.Clear()
		g.Neighbors(u, func(e, v int) bool {
			rm.Add(p.Block(v), g.EdgeWeight(e))
			return true
		})
		connFrom := rm.Get(from)

		best := -1
		var bestGain int64
		for block := 0; block < p.K(); block++ {
			if block == from || p.BlockWeight(block)+w > ctx.MaxBlockWeight(block) {
				continue
			}
			gain := rm.Get(block) - connFrom
			if best == -1 || gain > bestGain {
				best = block
				bestGain = gain
			}
		}
		if best >= 0 {
			p.SetBlock(u, best)
			moves++
			if partition.TotalOverload(p, ctx) == 0 {
				return moves
			}
		}
	}
	return moves
}
