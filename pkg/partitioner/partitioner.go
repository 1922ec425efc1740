package partitioner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/coarsening"
	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/graph/compress"
	"github.com/gilchrisn/graph-partition-service/pkg/kpio"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// LevelStat records one refinement level of the multilevel run.
type LevelStat struct {
	Level     int   `json:"level"`
	Nodes     int   `json:"nodes"`
	Edges     int   `json:"edges"`
	EdgeCut   int64 `json:"edge_cut"`
	RuntimeMS int64 `json:"runtime_ms"`
}

// Statistics contains run performance metrics.
type Statistics struct {
	RuntimeMS    int64       `json:"runtime_ms"`
	MemoryPeakMB int64       `json:"memory_peak_mb"`
	NumLevels    int         `json:"num_levels"`
	LevelStats   []LevelStat `json:"level_stats"`
}

// Result is the partitioner output.
type Result struct {
	Blocks     []int      `json:"blocks"`
	K          int        `json:"k"`
	EdgeCut    int64      `json:"edge_cut"`
	Imbalance  float64    `json:"imbalance"`
	Statistics Statistics `json:"statistics"`
}

// Partition runs the full multilevel pipeline on the input graph.
func Partition(ctx context.Context, input *graph.CSR, cfg *Config) (*Result, error) {
	startTime := time.Now()
	logger := cfg.CreateLogger().With().Str("run_id", uuid.NewString()).Logger()

	k := cfg.K()
	if k < 1 {
		return nil, fmt.Errorf("block count must be positive, got %d", k)
	}
	if k > input.N() {
		return nil, fmt.Errorf("cannot split %d nodes into %d blocks", input.N(), k)
	}
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input graph: %w", err)
	}

	logger.Info().
		Int("nodes", input.N()).
		Int("edges", input.M()/2).
		Int("k", k).
		Float64("epsilon", cfg.Epsilon()).
		Str("mode", cfg.Mode()).
		Msg("Starting graph partitioning")

	// The balance constraint is fixed on the full input weight so that
	// trimming isolated nodes cannot loosen it.
	pctx := partition.NewContextForWeight(input.TotalNodeWeight(), k, cfg.Epsilon())

	if cfg.Ranks() > 1 {
		return partitionDistributed(input, cfg, pctx, logger, startTime)
	}

	work, perm, trimmed, err := prepareGraph(input, cfg, logger)
	if err != nil {
		return nil, err
	}

	run := &multilevelRun{cfg: cfg, logger: logger, pctx: pctx, totalWeight: input.TotalNodeWeight()}
	p, err := run.partition(ctx, work)
	if err != nil {
		return nil, err
	}

	blocks, err := restoreOrdering(input, work, p, pctx, perm, trimmed)
	if err != nil {
		return nil, err
	}

	final := partition.FromBlocks(input, k, blocks)
	if err := final.Validate(); err != nil {
		return nil, fmt.Errorf("final partition invalid: %w", err)
	}

	result := &Result{
		Blocks:    blocks,
		K:         k,
		EdgeCut:   partition.EdgeCut(final),
		Imbalance: partition.Imbalance(final, pctx),
		Statistics: Statistics{
			RuntimeMS:    time.Since(startTime).Milliseconds(),
			MemoryPeakMB: memoryUsageMB(),
			NumLevels:    run.numLevels,
			LevelStats:   run.levelStats,
		},
	}

	logger.Info().
		Int64("edge_cut", result.EdgeCut).
		Float64("imbalance", result.Imbalance).
		Int("levels", result.Statistics.NumLevels).
		Int64("runtime_ms", result.Statistics.RuntimeMS).
		Msg("Partitioning completed")
	return result, nil
}

// prepareGraph applies the configured node ordering, isolated-node trim and
// in-memory compression. Returns the working graph, the permutation of the
// ordering (nil for natural order) and the number of trimmed nodes.
func prepareGraph(input *graph.CSR, cfg *Config, logger zerolog.Logger) (graph.Graph, []int, int, error) {
	csr := input
	var perm []int
	trimmed := 0

	if cfg.NodeOrder() == "deg-buckets" {
		sorted, p, err := graph.SortByDegreeBuckets(input)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("degree bucket ordering: %w", err)
		}
		csr = sorted
		perm = p
		trimmed = graph.CountIsolatedNodes(sorted)
	}

	var work graph.Graph = csr
	if cfg.CompressInMemory() {
		opts := compress.Options{
			HighDegree: cfg.CompressHighDegree(),
			Intervals:  cfg.CompressIntervals(),
		}
		compressed, err := compress.FromCSRParallel(csr, cfg.Workers(), opts)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("compressing input graph: %w", err)
		}
		logger.Info().
			Int("compressed_bytes", compressed.CompressedBytes()).
			Int("high_degree_nodes", compressed.CompressionStats().HighDegreeNodes).
			Int("interval_nodes", compressed.CompressionStats().IntervalNodes).
			Msg("Compressed input graph")
		work = compressed
	}

	if trimmed > 0 {
		var err error
		switch g := work.(type) {
		case *graph.CSR:
			err = g.RemoveIsolatedNodes(trimmed)
		case *compress.Compressed:
			err = g.RemoveIsolatedNodes(trimmed)
		}
		if err != nil {
			return nil, nil, 0, fmt.Errorf("trimming isolated nodes: %w", err)
		}
		logger.Debug().Int("isolated_nodes", trimmed).Msg("Removed isolated nodes")
	}
	return work, perm, trimmed, nil
}

// restoreOrdering reintegrates trimmed isolated nodes, assigns them to the
// lightest blocks, and translates blocks back to the input node ordering.
func restoreOrdering(input *graph.CSR, work graph.Graph, p *partition.Partition, pctx *partition.Context, perm []int, trimmed int) ([]int, error) {
	switch g := work.(type) {
	case *graph.CSR:
		g.IntegrateIsolatedNodes()
	case *compress.Compressed:
		g.IntegrateIsolatedNodes()
	}

	n := input.N()
	ordered := make([]int, n)
	copy(ordered, p.Blocks())

	if trimmed > 0 {
		weights := make([]int64, p.K())
		for b := 0; b < p.K(); b++ {
			weights[b] = p.BlockWeight(b)
		}
		for u := n - trimmed; u < n; u++ {
			lightest := 0
			for b := 1; b < p.K(); b++ {
				if weights[b] < weights[lightest] {
					lightest = b
				}
			}
			ordered[u] = lightest
			weights[lightest] += nodeWeightOf(work, u)
		}
	}

	if perm == nil {
		return ordered, nil
	}
	blocks := make([]int, n)
	for old := 0; old < n; old++ {
		blocks[old] = ordered[perm[old]]
	}
	return blocks, nil
}

func nodeWeightOf(g graph.Graph, u int) int64 { return g.NodeWeight(u) }

// multilevelRun carries the state of one partitioning run.
type multilevelRun struct {
	cfg         *Config
	logger      zerolog.Logger
	pctx        *partition.Context
	totalWeight int64

	numLevels  int
	levelStats []LevelStat
}

func (r *multilevelRun) coarseningParams() coarsening.Params {
	return coarsening.Params{
		K:                       r.cfg.K(),
		Epsilon:                 r.cfg.Epsilon(),
		ContractionLimit:        r.cfg.ContractionLimit(),
		ClusterWeightLimit:      coarsening.ClusterWeightLimit(r.cfg.ClusterWeightLimit()),
		ClusterWeightMultiplier: r.cfg.ClusterWeightMultiplier(),
		ConvergenceThreshold:    r.cfg.ConvergenceThreshold(),
		MaxLevels:               r.cfg.MaxCoarseningLevels(),
		MaxClusterIterations:    r.cfg.ClusterIterations(),
		Seed:                    r.cfg.RandomSeed(),
		Workers:                 r.cfg.Workers(),
	}
}

// partition runs coarsening, initial partitioning per mode, and the
// refinement ladder while uncoarsening.
func (r *multilevelRun) partition(ctx context.Context, work graph.Graph) (*partition.Partition, error) {
	cfg := r.cfg
	coarsener := coarsening.NewCoarsener(work, r.coarseningParams(), r.logger)

	// Coarsening: contract until the graph is small enough or converged.
	target := 2 * cfg.K() * cfg.ContractionLimit()
	for !coarsener.Converged() && coarsener.Coarsest().N() > target {
		prev := coarsener.Coarsest()
		cur, err := coarsener.CoarsenOnce(coarsener.MaxClusterWeight())
		if err != nil {
			return nil, err
		}
		if cur == prev {
			break
		}
		if cfg.DumpHierarchy() {
			if err := kpio.WriteHierarchyLevel(cfg.DumpDir(), coarsener.Level(), prev.N(), cfg.K(), coarsener.TopMapping()); err != nil {
				return nil, fmt.Errorf("dumping hierarchy: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	r.numLevels = coarsener.Level() + 1

	p, shares, err := r.initialPartition(coarsener.Coarsest())
	if err != nil {
		return nil, err
	}
	if err := r.refineLevel(p, coarsener.Level()); err != nil {
		return nil, err
	}

	// Uncoarsen top-down, extending the partition toward k in deep modes and
	// refining at every level.
	for coarsener.Level() > 0 {
		p, err = coarsener.UncoarsenOnce(p)
		if err != nil {
			return nil, err
		}

		if shares != nil {
			p, shares, err = r.maybeExtend(p, shares, coarsener.Level() == 0)
			if err != nil {
				return nil, err
			}
		}

		if err := r.refineLevel(p, coarsener.Level()); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if shares != nil {
		p, _, err = r.maybeExtend(p, shares, true)
		if err != nil {
			return nil, err
		}
		if err := r.refineLevel(p, 0); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func memoryUsageMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / 1024 / 1024)
}
