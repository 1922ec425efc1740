package partitioner

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/initial"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
	"github.com/gilchrisn/graph-partition-service/pkg/refinement"
)

// Partitioning modes. KWAY partitions the coarsest graph directly into k
// blocks; DEEP bisects and extends toward k while uncoarsening; DEEPER runs
// several independent initial bisections in parallel groups and keeps the
// best.
const (
	ModeKWay   = "kway"
	ModeDeep   = "deep"
	ModeDeeper = "deeper"
)

func (r *multilevelRun) initialParams(seedOffset int64) initial.Params {
	return initial.Params{
		Repetitions: r.cfg.InitialRepetitions(),
		Epsilon:     r.cfg.Epsilon(),
		Seed:        r.cfg.RandomSeed() + seedOffset,
	}
}

// initialPartition labels the coarsest graph. For the deep modes the
// returned shares list holds, per current block, how many final blocks it
// must still be split into; nil means k has been reached.
func (r *multilevelRun) initialPartition(coarsest graph.Graph) (*partition.Partition, []int, error) {
	k := r.cfg.K()

	switch r.cfg.Mode() {
	case ModeKWay:
		p, err := initial.PartitionKWay(coarsest, k, r.initialParams(0))
		return p, nil, err

	case ModeDeep, ModeDeeper:
		if k == 1 {
			return partition.New(coarsest, 1), nil, nil
		}
		k1 := (k + 1) / 2
		k2 := k - k1

		var blocks []int
		if r.cfg.Mode() == ModeDeeper {
			blocks = r.duplicatedBisection(coarsest, k1, k2)
		} else {
			blocks = initial.Bisect(coarsest, k1, k2, r.initialParams(0))
		}

		p := partition.FromBlocks(coarsest, 2, blocks)
		if k == 2 {
			return p, nil, nil
		}
		return p, []int{k1, k2}, nil

	default:
		return nil, nil, fmt.Errorf("unknown partitioning mode %q", r.cfg.Mode())
	}
}

// duplicatedBisection runs independent bisections in parallel groups, each
// with its own seed, and keeps the result with the smallest cut.
func (r *multilevelRun) duplicatedBisection(g graph.Graph, k1, k2 int) []int {
	groups := r.cfg.DeeperGroups()
	if groups < 1 {
		groups = 1
	}

	results := make([][]int, groups)
	var eg errgroup.Group
	for group := 0; group < groups; group++ {
		eg.Go(func() error {
			results[group] = initial.Bisect(g, k1, k2, r.initialParams(int64(group)*7919))
			return nil
		})
	}
	eg.Wait()

	best := 0
	bestCut := cutOfBisection(g, results[0])
	for group := 1; group < groups; group++ {
		if cut := cutOfBisection(g, results[group]); cut < bestCut {
			best = group
			bestCut = cut
		}
	}
	r.logger.Debug().Int("groups", groups).Int64("best_cut", bestCut).Msg("Duplicated initial bisection")
	return results[best]
}

func cutOfBisection(g graph.Graph, blocks []int) int64 {
	var cut int64
	for u := 0; u < g.N(); u++ {
		g.Neighbors(u, func(e, v int) bool {
			if blocks[u] != blocks[v] {
				cut += g.EdgeWeight(e)
			}
			return true
		})
	}
	return cut / 2
}

// maybeExtend splits blocks toward the final k. Without force, a round of
// bisections runs only while the level is large enough to host the doubled
// block count; with force, extension continues until k is reached.
func (r *multilevelRun) maybeExtend(p *partition.Partition, shares []int, force bool) (*partition.Partition, []int, error) {
	round := 0
	for !extensionComplete(shares) {
		if !force && p.Graph().N() < 2*p.K()*r.cfg.ContractionLimit() {
			return p, shares, nil
		}
		var err error
		p, shares, err = r.extendOnce(p, shares, int64(round))
		if err != nil {
			return nil, nil, err
		}
		round++
	}
	return p, nil, nil
}

func extensionComplete(shares []int) bool {
	for _, s := range shares {
		if s > 1 {
			return false
		}
	}
	return true
}

// extendOnce bisects every block that still owes more than one final block.
func (r *multilevelRun) extendOnce(p *partition.Partition, shares []int, round int64) (*partition.Partition, []int, error) {
	g := p.Graph()
	blocks := p.Blocks()
	newBlocks := make([]int, g.N())
	var newShares []int

	newID := 0
	for b := 0; b < p.K(); b++ {
		if shares[b] == 1 {
			for u := 0; u < g.N(); u++ {
				if blocks[u] == b {
					newBlocks[u] = newID
				}
			}
			newShares = append(newShares, 1)
			newID++
			continue
		}

		sub, toParent, err := initial.ExtractSubgraph(g, func(u int) bool { return blocks[u] == b })
		if err != nil {
			return nil, nil, err
		}
		k1 := (shares[b] + 1) / 2
		k2 := shares[b] - k1
		sides := initial.Bisect(sub, k1, k2, r.initialParams(round*104729+int64(b)))

		for i, parent := range toParent {
			newBlocks[parent] = newID + sides[i]
		}
		newShares = append(newShares, k1, k2)
		newID += 2
	}

	return partition.FromBlocks(g, newID, newBlocks), newShares, nil
}

// refineLevel runs the configured refinement ladder at one level. Every
// refiner is built fresh for the (graph, context) pair of this level.
func (r *multilevelRun) refineLevel(p *partition.Partition, level int) error {
	start := time.Now()
	ctx := partition.NewContextForWeight(r.totalWeight, p.K(), r.cfg.Epsilon())

	params := refinement.Params{
		Workers:               r.cfg.Workers(),
		Seed:                  r.cfg.RandomSeed() + int64(level)*1009,
		LPMaxIterations:       r.cfg.LPMaxIterations(),
		LPMaxDegree:           r.cfg.LPMaxDegree(),
		LPMaxNeighbors:        r.cfg.LPMaxNeighbors(),
		FMRounds:              r.cfg.FMRounds(),
		FMMaxSearchNodes:      r.cfg.FMMaxSearchNodes(),
		JetMaxIterations:      r.cfg.JetMaxIterations(),
		JetMaxFruitless:       r.cfg.JetMaxFruitless(),
		JetFruitlessThreshold: r.cfg.JetFruitlessThreshold(),
		JetCoarsePenalty:      r.cfg.JetCoarsePenaltyFactor(),
		JetFinePenalty:        r.cfg.JetFinePenaltyFactor(),
		ContractionLimit:      r.cfg.ContractionLimit(),
		MoveSetWeightFactor:   r.cfg.MoveSetWeightFactor(),
		BalancerMaxRounds:     r.cfg.BalancerMaxRounds(),
	}

	for _, name := range r.cfg.RefinementAlgorithms() {
		refiner, err := refinement.New(refinement.Algorithm(name), params, r.logger)
		if err != nil {
			return err
		}
		refiner.Initialize(p)
		if _, err := refiner.Refine(p, ctx); err != nil {
			return fmt.Errorf("refiner %s at level %d: %w", name, level, err)
		}
	}

	if err := p.Validate(); err != nil {
		return fmt.Errorf("partition invalid after refinement at level %d: %w", level, err)
	}

	r.levelStats = append(r.levelStats, LevelStat{
		Level:     level,
		Nodes:     p.Graph().N(),
		Edges:     p.Graph().M() / 2,
		EdgeCut:   partition.EdgeCut(p),
		RuntimeMS: time.Since(start).Milliseconds(),
	})

	if r.cfg.EnableProgress() {
		r.logger.Info().
			Int("level", level).
			Int("nodes", p.Graph().N()).
			Int("k", p.K()).
			Int64("edge_cut", partition.EdgeCut(p)).
			Msg("Refined level")
	}
	return nil
}
