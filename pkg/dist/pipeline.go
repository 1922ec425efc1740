package dist

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/coarsening"
	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/initial"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
	"github.com/gilchrisn/graph-partition-service/pkg/refinement"
)

// PipelineParams configures the distributed pipeline.
type PipelineParams struct {
	K              int
	Epsilon        float64
	Mode           string // "kway" or "deeper"
	Ranks          int
	MaxLocalLevels int
	InitialReps    int
	Seed           int64

	Coarsening coarsening.Params
	Refinement refinement.Params
}

// PartitionGraph partitions a global graph over in-process message-passing
// ranks: distribute, coarsen with the local/global schedule, replicate and
// partition the coarsest graph, then refine with distributed JET while
// uncoarsening. Returns the global block array.
func PartitionGraph(global *graph.CSR, params PipelineParams, logger zerolog.Logger) ([]int, error) {
	world, err := NewWorld(params.Ranks)
	if err != nil {
		return nil, err
	}

	result := make([]int, global.N())
	pctx := partition.NewContextForWeight(global.TotalNodeWeight(), params.K, params.Epsilon)

	err = world.Run(func(c *Comm) error {
		dg := Distribute(global, c)
		if err := dg.Validate(c); err != nil {
			return fmt.Errorf("rank %d: invalid distribution: %w", c.Rank(), err)
		}

		coarsener := NewCoarsener(c, dg, params.Coarsening, params.MaxLocalLevels, logger)
		target := 2 * params.K * params.Coarsening.ContractionLimit
		for !coarsener.Converged() && coarsener.Coarsest().GlobalN() > target {
			prev := coarsener.Coarsest()
			cur, err := coarsener.CoarsenOnce(coarsener.MaxClusterWeight())
			if err != nil {
				return fmt.Errorf("rank %d: coarsening: %w", c.Rank(), err)
			}
			if cur == prev {
				break
			}
		}

		p, err := initialDistPartition(c, coarsener.Coarsest(), params, logger)
		if err != nil {
			return err
		}

		refine := func(p *Partition) error {
			jet := NewJet(params.Refinement, logger)
			jet.Initialize(c, p)
			if _, err := jet.Refine(c, p, pctx); err != nil {
				return err
			}
			return p.Validate(c)
		}

		if err := refine(p); err != nil {
			return fmt.Errorf("rank %d: refining coarsest level: %w", c.Rank(), err)
		}
		for coarsener.Level() > 0 {
			p, err = coarsener.UncoarsenOnce(p)
			if err != nil {
				return fmt.Errorf("rank %d: uncoarsening: %w", c.Rank(), err)
			}
			if err := refine(p); err != nil {
				return fmt.Errorf("rank %d: refining level %d: %w", c.Rank(), coarsener.Level(), err)
			}
		}

		// Collect the final global assignment on every rank; rank 0 writes
		// the shared result.
		pieces := AllGather(c, append([]int(nil), p.OwnedBlocks()...))
		if c.Rank() == 0 {
			pos := 0
			for _, piece := range pieces {
				copy(result[pos:], piece)
				pos += len(piece)
			}
		}
		c.Barrier()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// initialDistPartition replicates the coarsest graph and labels it. In
// DEEPER mode every rank partitions its own copy with a distinct seed and
// the best result by cut wins; otherwise rank 0 partitions and broadcasts.
func initialDistPartition(c *Comm, coarsest *Graph, params PipelineParams, logger zerolog.Logger) (*Partition, error) {
	replica, err := gatherGlobal(c, coarsest)
	if err != nil {
		return nil, fmt.Errorf("rank %d: replicating coarsest graph: %w", c.Rank(), err)
	}

	iparams := initial.Params{
		Repetitions: params.InitialReps,
		Epsilon:     params.Epsilon,
		Seed:        params.Seed,
	}

	var blocks []int
	if params.Mode == "deeper" {
		iparams.Seed += int64(c.Rank()) * 7919
		own, err := initial.PartitionKWay(replica, params.K, iparams)
		if err != nil {
			return nil, err
		}
		cut := partition.EdgeCut(own)

		cuts := AllGather(c, cut)
		best := 0
		for r := 1; r < c.Size(); r++ {
			if cuts[r] < cuts[best] {
				best = r
			}
		}
		blocks = Broadcast(c, best, append([]int(nil), own.Blocks()...))
		if c.Rank() == 0 {
			logger.Debug().Int("best_rank", best).Int64("cut", cuts[best]).Msg("Duplicated initial partitioning")
		}
	} else {
		if c.Rank() == 0 {
			own, err := initial.PartitionKWay(replica, params.K, iparams)
			if err != nil {
				return nil, err
			}
			blocks = Broadcast(c, 0, append([]int(nil), own.Blocks()...))
		} else {
			blocks = Broadcast(c, 0, []int(nil))
		}
	}

	begin := int(coarsest.nodeDistribution[c.Rank()])
	end := int(coarsest.nodeDistribution[c.Rank()+1])
	return NewPartition(c, coarsest, params.K, blocks[begin:end]), nil
}

type graphPiece struct {
	Degrees     []int
	Edges       []int64
	NodeWeights []int64
	EdgeWeights []int64
}

// gatherGlobal replicates a distributed graph as a plain CSR on every rank.
func gatherGlobal(c *Comm, g *Graph) (*graph.CSR, error) {
	piece := graphPiece{
		Degrees:     make([]int, g.NLocal()),
		Edges:       make([]int64, 0, g.MLocal()),
		NodeWeights: make([]int64, g.NLocal()),
		EdgeWeights: make([]int64, 0, g.MLocal()),
	}
	for u := 0; u < g.NLocal(); u++ {
		piece.Degrees[u] = g.Degree(u)
		piece.NodeWeights[u] = g.NodeWeight(u)
		g.Neighbors(u, func(e, v int) bool {
			piece.Edges = append(piece.Edges, g.GlobalID(v))
			piece.EdgeWeights = append(piece.EdgeWeights, g.EdgeWeight(e))
			return true
		})
	}

	pieces := AllGather(c, piece)

	offsets := []int{0}
	var edges []int
	var nodeWeights, edgeWeights []int64
	for _, part := range pieces {
		for _, d := range part.Degrees {
			offsets = append(offsets, offsets[len(offsets)-1]+d)
		}
		for _, v := range part.Edges {
			edges = append(edges, int(v))
		}
		nodeWeights = append(nodeWeights, part.NodeWeights...)
		edgeWeights = append(edgeWeights, part.EdgeWeights...)
	}
	return graph.NewCSR(offsets, edges, nodeWeights, edgeWeights, false)
}
