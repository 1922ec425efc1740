package dist

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
	"github.com/gilchrisn/graph-partition-service/pkg/refinement"
)

// candidatesPerBlock bounds how many move candidates one rank nominates per
// overloaded block and round.
const candidatesPerBlock = 8

// Balancer is the distributed balancing refiner: every rank nominates move
// candidates out of overloaded blocks, the candidates are reduced into a
// conflict-free subset that lowers total overload without creating new
// overload, and the winning moves are applied everywhere.
type Balancer struct {
	params refinement.Params
	logger zerolog.Logger
}

// NewBalancer constructs the balancer.
func NewBalancer(params refinement.Params, logger zerolog.Logger) *Balancer {
	return &Balancer{params: params, logger: logger}
}

type moveCandidateMsg struct {
	Node    int64
	From    int32
	To      int32
	Weight  int64
	RelGain float64
}

func (b *Balancer) Refine(c *Comm, p *Partition, ctx *partition.Context) error {
	for round := 0; round < b.params.BalancerMaxRounds; round++ {
		if p.TotalOverload(ctx) == 0 {
			return nil
		}

		local := b.pickMoveCandidates(p, ctx)
		gathered := AllGather(c, local)
		var all []moveCandidateMsg
		for _, part := range gathered {
			all = append(all, part...)
		}

		// Every rank runs the same deterministic reduction, so no further
		// agreement round is needed.
		moves := reduceMoveCandidates(all, p, ctx)
		if len(moves) == 0 {
			return nil
		}
		b.performMoves(c, p, moves)

		if c.Rank() == 0 {
			b.logger.Debug().
				Int("round", round).
				Int("candidates", len(all)).
				Int("moves", len(moves)).
				Int64("overload", p.TotalOverload(ctx)).
				Msg("Distributed balancer round")
		}
	}
	return nil
}

// pickMoveCandidates nominates, per overloaded block, the owned border
// nodes with the highest relative gain.
func (b *Balancer) pickMoveCandidates(p *Partition, ctx *partition.Context) []moveCandidateMsg {
	g := p.Graph()
	rm := ds.NewRatingMap(p.K())
	perBlock := make(map[int][]moveCandidateMsg)

	for u := 0; u < g.NLocal(); u++ {
		from := p.Block(u)
		if p.BlockWeight(from) <= ctx.MaxBlockWeight(from) {
			continue
		}
		w := g.NodeWeight(u)

		rm.Clear()
		g.Neighbors(u, func(e, v int) bool {
			rm.Add(p.Block(v), g.EdgeWeight(e))
			return true
		})
		connFrom := rm.Get(from)

		to := -1
		var gain int64
		for block := 0; block < p.K(); block++ {
			if block == from || p.BlockWeight(block)+w > ctx.MaxBlockWeight(block) {
				continue
			}
			candidate := rm.Get(block) - connFrom
			if to == -1 || candidate > gain {
				to = block
				gain = candidate
			}
		}
		if to < 0 {
			continue
		}

		perBlock[from] = append(perBlock[from], moveCandidateMsg{
			Node:    g.GlobalID(u),
			From:    int32(from),
			To:      int32(to),
			Weight:  w,
			RelGain: relativeGain(gain, w),
		})
	}

	var picked []moveCandidateMsg
	for _, candidates := range perBlock {
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].RelGain != candidates[j].RelGain {
				return candidates[i].RelGain > candidates[j].RelGain
			}
			return candidates[i].Node < candidates[j].Node
		})
		if len(candidates) > candidatesPerBlock {
			candidates = candidates[:candidatesPerBlock]
		}
		picked = append(picked, candidates...)
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].Node < picked[j].Node })
	return picked
}

// reduceMoveCandidates simulates candidates in descending relative gain
// order and keeps those that reduce overload without overloading the target.
func reduceMoveCandidates(all []moveCandidateMsg, p *Partition, ctx *partition.Context) []moveCandidateMsg {
	sort.Slice(all, func(i, j int) bool {
		if all[i].RelGain != all[j].RelGain {
			return all[i].RelGain > all[j].RelGain
		}
		return all[i].Node < all[j].Node
	})

	weights := append([]int64(nil), p.blockWeights...)
	var accepted []moveCandidateMsg
	for _, cand := range all {
		from, to := int(cand.From), int(cand.To)
		if weights[from] <= ctx.MaxBlockWeight(from) {
			continue
		}
		if weights[to]+cand.Weight > ctx.MaxBlockWeight(to) {
			continue
		}
		weights[from] -= cand.Weight
		weights[to] += cand.Weight
		accepted = append(accepted, cand)
	}
	return accepted
}

// performMoves applies the reduced moves: labels on the owner and on every
// rank holding the node as a ghost, block weights everywhere.
func (b *Balancer) performMoves(c *Comm, p *Partition, moves []moveCandidateMsg) {
	g := p.Graph()
	for _, mv := range moves {
		if local, ok := g.LocalID(mv.Node); ok {
			p.SetBlockRaw(local, int(mv.To))
		}
		p.AddBlockWeight(int(mv.From), -mv.Weight)
		p.AddBlockWeight(int(mv.To), mv.Weight)
	}
	c.Barrier()
}

func relativeGain(gain, weight int64) float64 {
	if weight == 0 {
		return 0
	}
	if gain >= 0 {
		return float64(gain) * float64(weight)
	}
	return float64(gain) / float64(weight)
}
