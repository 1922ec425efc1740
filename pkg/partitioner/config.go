// Package partitioner drives the multilevel schedule: coarsen, partition the
// coarsest graph, then refine while projecting back level by level.
package partitioner

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config manages partitioner configuration using Viper.
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults.
func NewConfig() *Config {
	v := viper.New()

	// Partition parameters
	v.SetDefault("partition.k", 2)
	v.SetDefault("partition.epsilon", 0.03)
	v.SetDefault("partition.mode", "deep")

	// Coarsening parameters
	v.SetDefault("coarsening.contraction_limit", 2000)
	v.SetDefault("coarsening.convergence_threshold", 0.95)
	v.SetDefault("coarsening.cluster_weight_limit", "epsilon-block-weight")
	v.SetDefault("coarsening.cluster_weight_multiplier", 1.0)
	v.SetDefault("coarsening.max_levels", 50)
	v.SetDefault("coarsening.cluster_iterations", 5)
	v.SetDefault("coarsening.max_local_levels", 3)

	// Initial partitioning parameters
	v.SetDefault("initial.repetitions", 4)

	// Refinement parameters
	v.SetDefault("refinement.algorithms", []string{"lp", "fm", "jet", "greedy-balancer"})
	v.SetDefault("refinement.lp.max_iterations", 5)
	v.SetDefault("refinement.lp.max_degree", 1000000)
	v.SetDefault("refinement.lp.max_neighbors", 0)
	v.SetDefault("refinement.fm.rounds", 3)
	v.SetDefault("refinement.fm.max_search_nodes", 400)
	v.SetDefault("refinement.jet.max_iterations", 12)
	v.SetDefault("refinement.jet.max_fruitless", 4)
	v.SetDefault("refinement.jet.fruitless_threshold", 0.999)
	v.SetDefault("refinement.jet.coarse_penalty_factor", 0.25)
	v.SetDefault("refinement.jet.fine_penalty_factor", 0.75)
	v.SetDefault("refinement.balancer.moveset_weight_factor", 0.05)
	v.SetDefault("refinement.balancer.max_rounds", 8)

	// Graph representation
	v.SetDefault("graph.compress", false)
	v.SetDefault("graph.node_order", "natural")
	v.SetDefault("graph.compress_high_degree", true)
	v.SetDefault("graph.compress_intervals", true)

	// Performance parameters
	v.SetDefault("performance.workers", runtime.NumCPU())
	v.SetDefault("performance.ranks", 1)
	v.SetDefault("performance.deeper_groups", 4)

	// Process-wide state
	v.SetDefault("random_seed", time.Now().UnixNano())

	// Logging parameters
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.enable_progress", true)

	// Debug output
	v.SetDefault("debug.dump_hierarchy", false)
	v.SetDefault("debug.dump_dir", "")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Getters for partition parameters
func (c *Config) K() int             { return c.v.GetInt("partition.k") }
func (c *Config) Epsilon() float64   { return c.v.GetFloat64("partition.epsilon") }
func (c *Config) Mode() string       { return c.v.GetString("partition.mode") }

func (c *Config) ContractionLimit() int            { return c.v.GetInt("coarsening.contraction_limit") }
func (c *Config) ConvergenceThreshold() float64    { return c.v.GetFloat64("coarsening.convergence_threshold") }
func (c *Config) ClusterWeightLimit() string       { return c.v.GetString("coarsening.cluster_weight_limit") }
func (c *Config) ClusterWeightMultiplier() float64 { return c.v.GetFloat64("coarsening.cluster_weight_multiplier") }
func (c *Config) MaxCoarseningLevels() int         { return c.v.GetInt("coarsening.max_levels") }
func (c *Config) ClusterIterations() int           { return c.v.GetInt("coarsening.cluster_iterations") }
func (c *Config) MaxLocalLevels() int              { return c.v.GetInt("coarsening.max_local_levels") }

func (c *Config) InitialRepetitions() int { return c.v.GetInt("initial.repetitions") }

func (c *Config) RefinementAlgorithms() []string { return c.v.GetStringSlice("refinement.algorithms") }
func (c *Config) LPMaxIterations() int           { return c.v.GetInt("refinement.lp.max_iterations") }
func (c *Config) LPMaxDegree() int               { return c.v.GetInt("refinement.lp.max_degree") }
func (c *Config) LPMaxNeighbors() int            { return c.v.GetInt("refinement.lp.max_neighbors") }
func (c *Config) FMRounds() int                  { return c.v.GetInt("refinement.fm.rounds") }
func (c *Config) FMMaxSearchNodes() int          { return c.v.GetInt("refinement.fm.max_search_nodes") }
func (c *Config) JetMaxIterations() int          { return c.v.GetInt("refinement.jet.max_iterations") }
func (c *Config) JetMaxFruitless() int           { return c.v.GetInt("refinement.jet.max_fruitless") }
func (c *Config) JetFruitlessThreshold() float64 { return c.v.GetFloat64("refinement.jet.fruitless_threshold") }
func (c *Config) JetCoarsePenaltyFactor() float64 {
	return c.v.GetFloat64("refinement.jet.coarse_penalty_factor")
}
func (c *Config) JetFinePenaltyFactor() float64 {
	return c.v.GetFloat64("refinement.jet.fine_penalty_factor")
}
func (c *Config) MoveSetWeightFactor() float64 {
	return c.v.GetFloat64("refinement.balancer.moveset_weight_factor")
}
func (c *Config) BalancerMaxRounds() int { return c.v.GetInt("refinement.balancer.max_rounds") }

func (c *Config) CompressInMemory() bool      { return c.v.GetBool("graph.compress") }
func (c *Config) NodeOrder() string           { return c.v.GetString("graph.node_order") }
func (c *Config) CompressHighDegree() bool    { return c.v.GetBool("graph.compress_high_degree") }
func (c *Config) CompressIntervals() bool     { return c.v.GetBool("graph.compress_intervals") }

func (c *Config) Workers() int      { return c.v.GetInt("performance.workers") }
func (c *Config) Ranks() int        { return c.v.GetInt("performance.ranks") }
func (c *Config) DeeperGroups() int { return c.v.GetInt("performance.deeper_groups") }

func (c *Config) RandomSeed() int64 { return c.v.GetInt64("random_seed") }

func (c *Config) LogLevel() string      { return c.v.GetString("logging.level") }
func (c *Config) EnableProgress() bool  { return c.v.GetBool("logging.enable_progress") }

func (c *Config) DumpHierarchy() bool { return c.v.GetBool("debug.dump_hierarchy") }
func (c *Config) DumpDir() string     { return c.v.GetString("debug.dump_dir") }

// Set allows dynamic configuration changes.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// CreateLogger creates a zerolog logger based on config.
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "partitioner").Logger()
}
