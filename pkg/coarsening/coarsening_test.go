package coarsening

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

func testParams() Params {
	return Params{
		K:                       2,
		Epsilon:                 0.03,
		ContractionLimit:        2,
		ClusterWeightLimit:      LimitEpsilonBlockWeight,
		ClusterWeightMultiplier: 1.0,
		ConvergenceThreshold:    0.95,
		MaxLevels:               10,
		MaxClusterIterations:    5,
		Seed:                    1,
		Workers:                 2,
	}
}

// twoCliques builds two K5s joined by a single edge.
func twoCliques(t *testing.T) *graph.CSR {
	t.Helper()
	b := graph.NewBuilder(10)
	for base := 0; base < 10; base += 5 {
		for u := base; u < base+5; u++ {
			for v := u + 1; v < base+5; v++ {
				if err := b.AddEdge(u, v, 1); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	if err := b.AddEdge(4, 5, 1); err != nil {
		t.Fatal(err)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestContractKnownClustering(t *testing.T) {
	// P4 with clusters {0,1} and {2,3}.
	b := graph.NewBuilder(4)
	for u := 0; u < 3; u++ {
		if err := b.AddEdge(u, u+1, 2); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	coarse, mapping, err := Contract(g, []int{0, 0, 2, 2})
	if err != nil {
		t.Fatal(err)
	}

	if coarse.N() != 2 {
		t.Fatalf("coarse N = %d, want 2", coarse.N())
	}
	if coarse.M() != 2 {
		t.Errorf("coarse M = %d, want 2 half-edges", coarse.M())
	}
	if coarse.NodeWeight(0) != 2 || coarse.NodeWeight(1) != 2 {
		t.Errorf("coarse node weights = (%d, %d), want (2, 2)", coarse.NodeWeight(0), coarse.NodeWeight(1))
	}
	// The single coarse edge carries the weight of the 1-2 fine edge.
	coarse.Neighbors(0, func(e, v int) bool {
		if v != 1 || coarse.EdgeWeight(e) != 2 {
			t.Errorf("coarse edge = (%d, w=%d), want (1, w=2)", v, coarse.EdgeWeight(e))
		}
		return true
	})
	for u, want := range []int{0, 0, 1, 1} {
		if mapping[u] != want {
			t.Errorf("mapping[%d] = %d, want %d", u, mapping[u], want)
		}
	}
	if err := coarse.Validate(); err != nil {
		t.Errorf("coarse graph invalid: %v", err)
	}

	// Total edge weight drops exactly by the intra-cluster edges.
	if got, want := coarse.TotalEdgeWeight(), int64(4); got != want {
		t.Errorf("coarse TotalEdgeWeight = %d, want %d", got, want)
	}
}

func TestCoarsenerShrinksAndPopsLIFO(t *testing.T) {
	g := twoCliques(t)
	c := NewCoarsener(g, testParams(), zerolog.Nop())

	coarse, err := c.CoarsenOnce(5)
	if err != nil {
		t.Fatal(err)
	}
	if c.Level() != 1 {
		t.Fatalf("Level = %d, want 1 after one contraction", c.Level())
	}
	if coarse.N() >= g.N() {
		t.Fatalf("coarse graph has %d nodes, fine has %d", coarse.N(), g.N())
	}
	if coarse.TotalNodeWeight() != g.TotalNodeWeight() {
		t.Errorf("contraction changed total node weight: %d != %d", coarse.TotalNodeWeight(), g.TotalNodeWeight())
	}

	// Project a coarse partition back and verify the level is popped.
	blocks := make([]int, coarse.N())
	for u := range blocks {
		blocks[u] = u % 2
	}
	p := partition.FromBlocks(coarse, 2, blocks)

	fine, err := c.UncoarsenOnce(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Level() != 0 {
		t.Errorf("Level = %d, want 0 after uncoarsening", c.Level())
	}
	if fine.Graph().N() != g.N() {
		t.Errorf("projected partition covers %d nodes, want %d", fine.Graph().N(), g.N())
	}
	if err := fine.Validate(); err != nil {
		t.Errorf("projected partition invalid: %v", err)
	}
	if fine.Graph() != graph.Graph(g) {
		t.Errorf("partition graph reference not re-seated to the input graph")
	}
}

func TestCoarsenerConvergesOnStableGraph(t *testing.T) {
	g := twoCliques(t)
	c := NewCoarsener(g, testParams(), zerolog.Nop())

	// A cluster weight cap of 1 forbids any merge.
	coarse, err := c.CoarsenOnce(1)
	if err != nil {
		t.Fatal(err)
	}
	if coarse.N() != g.N() {
		t.Errorf("no contraction possible, but node count changed")
	}
	if !c.Converged() {
		t.Errorf("coarsener must report convergence after an empty clustering")
	}
	if c.Level() != 0 {
		t.Errorf("converged coarsening must not append a level")
	}
}

func TestComputeMaxClusterWeight(t *testing.T) {
	params := testParams()
	params.ContractionLimit = 10
	params.K = 4
	params.Epsilon = 0.5

	// divisor = clamp(n/C, 2, k) = clamp(100/10, 2, 4) = 4
	got := ComputeMaxClusterWeight(100, 200, params)
	want := int64(0.5 * 200 / 4)
	if got != want {
		t.Errorf("ComputeMaxClusterWeight = %d, want %d", got, want)
	}

	params.ClusterWeightLimit = LimitBlockWeight
	got = ComputeMaxClusterWeight(100, 200, params)
	want = int64(1.5 * 200 / 4)
	if got != want {
		t.Errorf("block-weight limit = %d, want %d", got, want)
	}

	params.ClusterWeightLimit = LimitOne
	if got := ComputeMaxClusterWeight(100, 200, params); got != 1 {
		t.Errorf("one limit = %d, want 1", got)
	}
}
