package refinement

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

func testRefinementParams() Params {
	return Params{
		Workers:               2,
		Seed:                  1,
		LPMaxIterations:       5,
		LPMaxDegree:           1000000,
		FMRounds:              3,
		FMMaxSearchNodes:      50,
		JetMaxIterations:      12,
		JetMaxFruitless:       4,
		JetFruitlessThreshold: 0.999,
		JetCoarsePenalty:      0.25,
		JetFinePenalty:        0.75,
		ContractionLimit:      2000,
		MoveSetWeightFactor:   0.05,
		BalancerMaxRounds:     8,
	}
}

func pathGraph(t *testing.T, n int) *graph.CSR {
	t.Helper()
	b := graph.NewBuilder(n)
	for u := 0; u+1 < n; u++ {
		if err := b.AddEdge(u, u+1, 1); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

// twoCliques returns two K5s joined by one edge (4-5).
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

// misassignedCliques puts node 4 on the wrong side, so the optimal cut of 1
// is one feasible move away.
func misassignedCliques(t *testing.T) (*graph.CSR, *partition.Partition, *partition.Context) {
	t.Helper()
	g := twoCliques(t)
	blocks := []int{0, 0, 0, 0, 1 /* wrong */, 1, 1, 1, 1, 1}
	p := partition.FromBlocks(g, 2, blocks)
	ctx := partition.NewContext(g, 2, 0.03)
	return g, p, ctx
}

func runRefiner(t *testing.T, alg Algorithm, p *partition.Partition, ctx *partition.Context) {
	t.Helper()
	r, err := New(alg, testRefinementParams(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.Initialize(p)
	if _, err := r.Refine(p, ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("partition invalid after %s: %v", alg, err)
	}
}

func TestLabelPropagationFixesMisassignedNodes(t *testing.T) {
	_, p, ctx := misassignedCliques(t)
	before := partition.EdgeCut(p)
	runRefiner(t, AlgorithmLabelPropagation, p, ctx)
	after := partition.EdgeCut(p)

	if after != 1 {
		t.Errorf("cut after LP = %d (from %d), want 1", after, before)
	}
}

func TestFMFixesMisassignedNodes(t *testing.T) {
	_, p, ctx := misassignedCliques(t)
	runRefiner(t, AlgorithmFM, p, ctx)
	if got := partition.EdgeCut(p); got != 1 {
		t.Errorf("cut after FM = %d, want 1", got)
	}
}

func TestJetFixesMisassignedNodes(t *testing.T) {
	_, p, ctx := misassignedCliques(t)
	runRefiner(t, AlgorithmJet, p, ctx)
	if got := partition.EdgeCut(p); got != 1 {
		t.Errorf("cut after Jet = %d, want 1", got)
	}
}

func TestJetNeverWorsensTheCut(t *testing.T) {
	g := pathGraph(t, 12)
	blocks := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1}
	p := partition.FromBlocks(g, 2, blocks)
	ctx := partition.NewContext(g, 2, 0.03)

	before := partition.EdgeCut(p)
	runRefiner(t, AlgorithmJet, p, ctx)
	if after := partition.EdgeCut(p); after > before {
		t.Errorf("Jet worsened the cut: %d -> %d", before, after)
	}
}

func TestJetIsDeterministic(t *testing.T) {
	run := func() ([]int, int64) {
		_, p, ctx := misassignedCliques(t)
		runRefiner(t, AlgorithmJet, p, ctx)
		return append([]int(nil), p.Blocks()...), partition.EdgeCut(p)
	}

	blocks1, cut1 := run()
	blocks2, cut2 := run()
	if cut1 != cut2 {
		t.Fatalf("cuts differ across runs: %d vs %d", cut1, cut2)
	}
	for u := range blocks1 {
		if blocks1[u] != blocks2[u] {
			t.Fatalf("assignment differs at node %d: %d vs %d", u, blocks1[u], blocks2[u])
		}
	}
}

func TestBalancerRestoresBalance(t *testing.T) {
	g := pathGraph(t, 12)
	// Everything in block 0: grossly overloaded.
	blocks := make([]int, 12)
	p := partition.FromBlocks(g, 2, blocks)
	ctx := partition.NewContext(g, 2, 0.03)

	runRefiner(t, AlgorithmGreedyBalancer, p, ctx)
	if !partition.IsFeasible(p, ctx) {
		t.Errorf("balancer left overload %d", partition.TotalOverload(p, ctx))
	}
}

func TestSnapshooter(t *testing.T) {
	g := pathGraph(t, 6)
	p := partition.FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})
	var s Snapshooter
	s.Init(p, partition.EdgeCut(p))

	p.SetBlock(2, 1) // worsens the cut
	if s.Update(p, partition.EdgeCut(p)) {
		t.Errorf("Update must not accept a worse cut")
	}
	s.Rollback(p)
	if p.Block(2) != 0 {
		t.Errorf("rollback did not restore the snapshot")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("partition invalid after rollback: %v", err)
	}
}
