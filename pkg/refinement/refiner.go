// Package refinement improves a projected partition level by level: label
// propagation, FM-style localized search, JET, and the balancer all expose
// the same {Initialize, Refine} capability set.
package refinement

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// Refiner is the common capability set dispatched by the orchestrator.
// Refine returns whether the partition improved.
type Refiner interface {
	Initialize(p *partition.Partition)
	Refine(p *partition.Partition, ctx *partition.Context) (bool, error)
}

// Algorithm names a refinement implementation.
type Algorithm string

const (
	AlgorithmLabelPropagation Algorithm = "lp"
	AlgorithmFM               Algorithm = "fm"
	AlgorithmJet              Algorithm = "jet"
	AlgorithmGreedyBalancer   Algorithm = "greedy-balancer"
	AlgorithmNoop             Algorithm = "noop"
)

// Params collects every refinement tunable. The orchestrator fills it from
// the run configuration.
type Params struct {
	Workers int
	Seed    int64

	LPMaxIterations int
	LPMaxDegree     int
	LPMaxNeighbors  int

	FMRounds         int
	FMMaxSearchNodes int

	JetMaxIterations      int
	JetMaxFruitless       int
	JetFruitlessThreshold float64
	JetCoarsePenalty      float64
	JetFinePenalty        float64
	ContractionLimit      int

	MoveSetWeightFactor float64
	BalancerMaxRounds   int
}

// New constructs the named refiner. Every algorithm has a factory so the
// ladder can be assembled per (graph, partition context) pair.
func New(alg Algorithm, params Params, logger zerolog.Logger) (Refiner, error) {
	switch alg {
	case AlgorithmLabelPropagation:
		return NewLabelPropagation(params, logger), nil
	case AlgorithmFM:
		return NewFM(params, logger), nil
	case AlgorithmJet:
		return NewJet(params, logger), nil
	case AlgorithmGreedyBalancer:
		return NewBalancer(params, logger), nil
	case AlgorithmNoop:
		return noopRefiner{}, nil
	default:
		return nil, fmt.Errorf("unknown refinement algorithm %q", alg)
	}
}

type noopRefiner struct{}

func (noopRefiner) Initialize(*partition.Partition) {}
func (noopRefiner) Refine(*partition.Partition, *partition.Context) (bool, error) {
	return false, nil
}
