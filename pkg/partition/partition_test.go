package partition

import (
	"testing"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

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

func TestEdgeCut(t *testing.T) {
	g := pathGraph(t, 6)
	p := FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})

	if got := EdgeCut(p); got != 1 {
		t.Errorf("EdgeCut = %d, want 1", got)
	}

	p2 := FromBlocks(g, 2, []int{0, 1, 0, 1, 0, 1})
	if got := EdgeCut(p2); got != 5 {
		t.Errorf("alternating EdgeCut = %d, want 5", got)
	}
}

func TestBlockWeightsAndMoves(t *testing.T) {
	g := pathGraph(t, 6)
	p := FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})

	if got := p.BlockWeight(0); got != 3 {
		t.Errorf("BlockWeight(0) = %d, want 3", got)
	}

	p.SetBlock(0, 1)
	if got := p.BlockWeight(0); got != 2 {
		t.Errorf("after move, BlockWeight(0) = %d, want 2", got)
	}
	if got := p.BlockWeight(1); got != 4 {
		t.Errorf("after move, BlockWeight(1) = %d, want 4", got)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate after move: %v", err)
	}
}

func TestValidateDetectsDrift(t *testing.T) {
	g := pathGraph(t, 4)
	p := FromBlocks(g, 2, []int{0, 0, 1, 1})

	p.SetBlockRaw(0, 1) // bypass the weight update
	if err := p.Validate(); err == nil {
		t.Errorf("Validate must detect block weight drift")
	}
}

func TestContextBalanceCap(t *testing.T) {
	tests := []struct {
		total int64
		k     int
		eps   float64
		want  int64
	}{
		{6, 2, 0.0, 3},
		{6, 2, 0.5, 4},
		{10, 3, 0.03, 4}, // ceil(10/3) = 4, floor(4*1.03) = 4
		{100, 4, 0.03, 25},
	}
	for _, tt := range tests {
		ctx := NewContextForWeight(tt.total, tt.k, tt.eps)
		if got := ctx.MaxBlockWeight(0); got != tt.want {
			t.Errorf("MaxBlockWeight(W=%d, k=%d, eps=%v) = %d, want %d", tt.total, tt.k, tt.eps, got, tt.want)
		}
	}
}

func TestFeasibilityAndOverload(t *testing.T) {
	g := pathGraph(t, 6)
	ctx := NewContext(g, 2, 0.0) // cap 3

	balanced := FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})
	if !IsFeasible(balanced, ctx) {
		t.Errorf("balanced partition must be feasible")
	}
	if got := TotalOverload(balanced, ctx); got != 0 {
		t.Errorf("TotalOverload = %d, want 0", got)
	}

	skewed := FromBlocks(g, 2, []int{0, 0, 0, 0, 0, 1})
	if IsFeasible(skewed, ctx) {
		t.Errorf("skewed partition must be infeasible")
	}
	if got := TotalOverload(skewed, ctx); got != 2 {
		t.Errorf("TotalOverload = %d, want 2", got)
	}
	if got := BlockOverload(skewed, ctx, 0); got != 2 {
		t.Errorf("BlockOverload(0) = %d, want 2", got)
	}
}

func TestCopyAndRollback(t *testing.T) {
	g := pathGraph(t, 4)
	p := FromBlocks(g, 2, []int{0, 0, 1, 1})
	snapshot := p.Copy()

	p.SetBlock(1, 1)
	p.CopyFrom(snapshot)
	if p.Block(1) != 0 {
		t.Errorf("CopyFrom did not restore the assignment")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate after restore: %v", err)
	}
}
