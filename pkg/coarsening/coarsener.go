package coarsening

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/parallel"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// ClusterWeightLimit selects how the maximum cluster weight is derived.
type ClusterWeightLimit string

const (
	LimitEpsilonBlockWeight ClusterWeightLimit = "epsilon-block-weight"
	LimitBlockWeight        ClusterWeightLimit = "block-weight"
	LimitOne                ClusterWeightLimit = "one"
	LimitZero               ClusterWeightLimit = "zero"
)

// Params collects the coarsening tunables.
type Params struct {
	K                       int
	Epsilon                 float64
	ContractionLimit        int
	ClusterWeightLimit      ClusterWeightLimit
	ClusterWeightMultiplier float64
	ConvergenceThreshold    float64 // contraction rejected when coarseN/fineN >= this
	MaxLevels               int
	MaxClusterIterations    int
	Seed                    int64
	Workers                 int
}

// Coarsener owns the hierarchy of coarse graphs. Levels are appended by
// CoarsenOnce and popped in LIFO order by UncoarsenOnce.
type Coarsener struct {
	input     graph.Graph
	params    Params
	clusterer *Clusterer
	logger    zerolog.Logger

	hierarchy []*graph.CSR
	mappings  [][]int
	converged bool
}

// NewCoarsener creates a coarsener rooted at the input graph.
func NewCoarsener(input graph.Graph, params Params, logger zerolog.Logger) *Coarsener {
	return &Coarsener{
		input:     input,
		params:    params,
		clusterer: NewClusterer(params.MaxClusterIterations, params.Workers, params.Seed),
		logger:    logger,
	}
}

// Level returns the number of coarse levels built so far.
func (c *Coarsener) Level() int { return len(c.hierarchy) }

// Coarsest returns the current coarsest graph (the input before any
// contraction).
func (c *Coarsener) Coarsest() graph.Graph {
	if len(c.hierarchy) == 0 {
		return c.input
	}
	return c.hierarchy[len(c.hierarchy)-1]
}

// Converged reports whether further coarsening can make progress.
func (c *Coarsener) Converged() bool { return c.converged }

// TopMapping returns the fine-to-coarse mapping of the top hierarchy level,
// or nil when no level has been built.
func (c *Coarsener) TopMapping() []int {
	if len(c.mappings) == 0 {
		return nil
	}
	return c.mappings[len(c.mappings)-1]
}

// MaxClusterWeight derives the cluster weight cap for the current coarsest
// graph from the partition parameters.
func (c *Coarsener) MaxClusterWeight() int64 {
	g := c.Coarsest()
	return ComputeMaxClusterWeight(g.N(), g.TotalNodeWeight(), c.params)
}

// ComputeMaxClusterWeight is the deep-multilevel cluster weight formula.
func ComputeMaxClusterWeight(n int, totalNodeWeight int64, params Params) int64 {
	var limit float64
	switch params.ClusterWeightLimit {
	case LimitEpsilonBlockWeight:
		divisor := n / params.ContractionLimit
		if divisor < 2 {
			divisor = 2
		}
		if divisor > params.K {
			divisor = params.K
		}
		limit = params.Epsilon * float64(totalNodeWeight) / float64(divisor)
	case LimitBlockWeight:
		limit = (1.0 + params.Epsilon) * float64(totalNodeWeight) / float64(params.K)
	case LimitOne:
		limit = 1
	case LimitZero:
		limit = 0
	}
	w := int64(limit * params.ClusterWeightMultiplier)
	if w < 1 {
		w = 1
	}
	return w
}

// CoarsenOnce contracts the current coarsest graph. It returns the new
// coarsest graph; when the contraction does not shrink the graph enough
// (coarseN/fineN >= the convergence threshold), the coarse graph is
// discarded, the coarsener is marked converged, and the current coarsest is
// returned unchanged.
func (c *Coarsener) CoarsenOnce(maxClusterWeight int64) (graph.Graph, error) {
	cur := c.Coarsest()
	if c.converged || c.Level() >= c.params.MaxLevels {
		return cur, nil
	}

	clusters := c.clusterer.Cluster(cur, maxClusterWeight)
	if clusters == nil {
		c.logger.Debug().Int("level", c.Level()).Msg("Coarsening converged with empty clustering")
		c.converged = true
		return cur, nil
	}

	coarse, mapping, err := Contract(cur, clusters)
	if err != nil {
		return nil, fmt.Errorf("contraction at level %d: %w", c.Level(), err)
	}

	if float64(coarse.N())/float64(cur.N()) >= c.params.ConvergenceThreshold {
		c.logger.Debug().
			Int("level", c.Level()).
			Int("fine_nodes", cur.N()).
			Int("coarse_nodes", coarse.N()).
			Msg("Coarsening converged due to insufficient shrinkage")
		c.converged = true
		return cur, nil
	}

	c.hierarchy = append(c.hierarchy, coarse)
	c.mappings = append(c.mappings, mapping)
	c.logger.Debug().
		Int("level", c.Level()).
		Int("fine_nodes", cur.N()).
		Int("coarse_nodes", coarse.N()).
		Int64("max_cluster_weight", maxClusterWeight).
		Msg("Contracted level")
	return coarse, nil
}

// UncoarsenOnce projects the partition of the coarsest graph one level down
// and pops the top hierarchy entry. The returned partition references the
// new coarsest graph; the input partition must belong to the current one.
func (c *Coarsener) UncoarsenOnce(p *partition.Partition) (*partition.Partition, error) {
	if len(c.hierarchy) == 0 {
		return nil, fmt.Errorf("uncoarsen called on an empty hierarchy")
	}
	if p.Graph() != graph.Graph(c.hierarchy[len(c.hierarchy)-1]) {
		return nil, fmt.Errorf("partition does not belong to the coarsest graph")
	}

	mapping := c.mappings[len(c.mappings)-1]
	c.hierarchy = c.hierarchy[:len(c.hierarchy)-1]
	c.mappings = c.mappings[:len(c.mappings)-1]

	finer := c.Coarsest()
	blocks := make([]int, finer.N())
	parallel.For(finer.N(), c.params.Workers, func(start, end int) {
		for v := start; v < end; v++ {
			blocks[v] = p.Block(mapping[v])
		}
	})

	// Block weights are preserved by projection; re-seat the graph pointer
	// onto the new coarsest graph.
	fine := partition.FromBlocks(finer, p.K(), blocks)
	return fine, nil
}
