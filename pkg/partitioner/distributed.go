package partitioner

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/dist"
	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
	"github.com/gilchrisn/graph-partition-service/pkg/refinement"
)

// partitionDistributed runs the message-passing pipeline over the
// configured number of in-process ranks.
func partitionDistributed(input *graph.CSR, cfg *Config, pctx *partition.Context, logger zerolog.Logger, startTime time.Time) (*Result, error) {
	run := &multilevelRun{cfg: cfg, logger: logger, totalWeight: input.TotalNodeWeight()}

	mode := cfg.Mode()
	if mode != ModeKWay && mode != ModeDeeper {
		// The distributed pipeline partitions the replicated coarsest graph
		// directly, so DEEP degenerates to KWAY there.
		mode = ModeKWay
	}

	params := dist.PipelineParams{
		K:              cfg.K(),
		Epsilon:        cfg.Epsilon(),
		Mode:           mode,
		Ranks:          cfg.Ranks(),
		MaxLocalLevels: cfg.MaxLocalLevels(),
		InitialReps:    cfg.InitialRepetitions(),
		Seed:           cfg.RandomSeed(),
		Coarsening:     run.coarseningParams(),
		Refinement: refinement.Params{
			Workers:               cfg.Workers(),
			Seed:                  cfg.RandomSeed(),
			JetMaxIterations:      cfg.JetMaxIterations(),
			JetMaxFruitless:       cfg.JetMaxFruitless(),
			JetFruitlessThreshold: cfg.JetFruitlessThreshold(),
			JetCoarsePenalty:      cfg.JetCoarsePenaltyFactor(),
			JetFinePenalty:        cfg.JetFinePenaltyFactor(),
			ContractionLimit:      cfg.ContractionLimit(),
			MoveSetWeightFactor:   cfg.MoveSetWeightFactor(),
			BalancerMaxRounds:     cfg.BalancerMaxRounds(),
		},
	}

	blocks, err := dist.PartitionGraph(input, params, logger)
	if err != nil {
		return nil, fmt.Errorf("distributed partitioning: %w", err)
	}

	final := partition.FromBlocks(input, cfg.K(), blocks)
	if err := final.Validate(); err != nil {
		return nil, fmt.Errorf("final partition invalid: %w", err)
	}

	result := &Result{
		Blocks:    blocks,
		K:         cfg.K(),
		EdgeCut:   partition.EdgeCut(final),
		Imbalance: partition.Imbalance(final, pctx),
		Statistics: Statistics{
			RuntimeMS:    time.Since(startTime).Milliseconds(),
			MemoryPeakMB: memoryUsageMB(),
		},
	}

	logger.Info().
		Int("ranks", cfg.Ranks()).
		Int64("edge_cut", result.EdgeCut).
		Float64("imbalance", result.Imbalance).
		Int64("runtime_ms", result.Statistics.RuntimeMS).
		Msg("Distributed partitioning completed")
	return result, nil
}
