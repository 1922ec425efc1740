// kpart partitions a graph into k balanced blocks with a multilevel
// algorithm and writes one block id per node.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/kpio"
	"github.com/gilchrisn/graph-partition-service/pkg/partitioner"
)

type options struct {
	graphPath  string
	format     string
	nodeOrder  string
	compress   bool
	noHighDeg  bool
	noInterval bool
	k          int
	epsilon    float64
	threads    int
	seed       int64
	mode       string
	output     string
	configPath string
	logLevel   string
}

func main() {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "kpart",
		Short:         "Multilevel graph partitioner",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	addFlags(cmd.Flags(), opts)
	cmd.MarkFlagRequired("graph")

	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Wrap(err, "parsing flags")
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kpart: %v\n", err)
		os.Exit(1)
	}
}

func addFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVarP(&opts.graphPath, "graph", "G", "", "input graph file (required)")
	flags.StringVar(&opts.format, "graph-file-format", "metis", "input format: metis or parhip")
	flags.StringVar(&opts.nodeOrder, "node-order", "natural", "node ordering: natural or deg-buckets")
	flags.BoolVar(&opts.compress, "compress-in-memory", false, "store the graph compressed during partitioning")
	flags.BoolVar(&opts.noHighDeg, "no-high-degree-encoding", false, "disable the high-degree compression encoding")
	flags.BoolVar(&opts.noInterval, "no-interval-encoding", false, "disable the interval compression encoding")
	flags.IntVarP(&opts.k, "k", "k", 2, "number of blocks")
	flags.Float64VarP(&opts.epsilon, "epsilon", "e", 0.03, "maximum imbalance")
	flags.IntVarP(&opts.threads, "threads", "t", 0, "worker threads (0 = all cores)")
	flags.Int64VarP(&opts.seed, "seed", "s", 0, "random seed")
	flags.StringVar(&opts.mode, "mode", "deep", "partitioning mode: kway, deep or deeper")
	flags.StringVarP(&opts.output, "output", "o", "", "partition output file (default <graph>.part.<k>)")
	flags.StringVar(&opts.configPath, "config", "", "configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")
}

func run(opts *options) error {
	cfg := partitioner.NewConfig()
	if opts.configPath != "" {
		if err := cfg.LoadFromFile(opts.configPath); err != nil {
			return errors.Wrap(err, "loading configuration")
		}
	}
	applyFlags(cfg, opts)

	g, err := readGraph(opts)
	if err != nil {
		return err
	}

	result, err := partitioner.Partition(context.Background(), g, cfg)
	if err != nil {
		return errors.Wrap(err, "partitioning")
	}

	output := opts.output
	if output == "" {
		output = fmt.Sprintf("%s.part.%d", opts.graphPath, cfg.K())
	}
	if err := kpio.WritePartition(output, result.Blocks); err != nil {
		return errors.Wrap(err, "writing partition")
	}
	return nil
}

func applyFlags(cfg *partitioner.Config, opts *options) {
	cfg.Set("partition.k", opts.k)
	cfg.Set("partition.epsilon", opts.epsilon)
	cfg.Set("partition.mode", opts.mode)
	cfg.Set("graph.node_order", opts.nodeOrder)
	cfg.Set("graph.compress", opts.compress)
	cfg.Set("graph.compress_high_degree", !opts.noHighDeg)
	cfg.Set("graph.compress_intervals", !opts.noInterval)
	cfg.Set("logging.level", opts.logLevel)
	if opts.threads > 0 {
		cfg.Set("performance.workers", opts.threads)
	}
	if opts.seed != 0 {
		cfg.Set("random_seed", opts.seed)
	}
}

func readGraph(opts *options) (*graph.CSR, error) {
	switch opts.format {
	case "metis":
		return kpio.ReadMETIS(opts.graphPath)
	case "parhip":
		return kpio.ReadParHIP(opts.graphPath)
	default:
		return nil, errors.Errorf("unknown graph file format %q", opts.format)
	}
}
