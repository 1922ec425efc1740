package initial

import (
	"testing"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

func testParams(seed int64) Params {
	return Params{Repetitions: 4, Epsilon: 0.03, Seed: seed}
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

func gridGraph(t *testing.T, rows, cols int) *graph.CSR {
	t.Helper()
	b := graph.NewBuilder(rows * cols)
	id := func(r, c int) int { return r*cols + c }
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c+1 < cols {
				if err := b.AddEdge(id(r, c), id(r, c+1), 1); err != nil {
					t.Fatal(err)
				}
			}
			if r+1 < rows {
				if err := b.AddEdge(id(r, c), id(r+1, c), 1); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestBisectPath(t *testing.T) {
	g := pathGraph(t, 6)
	blocks := Bisect(g, 1, 1, testParams(1))

	var w0, w1 int64
	for u, b := range blocks {
		if b == 0 {
			w0 += g.NodeWeight(u)
		} else {
			w1 += g.NodeWeight(u)
		}
	}
	if w0 != 3 || w1 != 3 {
		t.Fatalf("bisection weights = (%d, %d), want (3, 3)", w0, w1)
	}

	var cut int64
	for u := 0; u < g.N(); u++ {
		g.Neighbors(u, func(e, v int) bool {
			if blocks[u] != blocks[v] {
				cut++
			}
			return true
		})
	}
	if cut/2 != 1 {
		t.Errorf("bisection cut = %d, want 1", cut/2)
	}
}

func TestPartitionKWayTotalityAndBalance(t *testing.T) {
	tests := []struct {
		name string
		g    *graph.CSR
		k    int
	}{
		{"path-8-k2", pathGraph(t, 8), 2},
		{"path-9-k3", pathGraph(t, 9), 3},
		{"grid-4x4-k4", gridGraph(t, 4, 4), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PartitionKWay(tt.g, tt.k, testParams(1))
			if err != nil {
				t.Fatal(err)
			}
			if err := p.Validate(); err != nil {
				t.Fatalf("partition invalid: %v", err)
			}

			ctx := partition.NewContext(tt.g, tt.k, 0.03)
			for b := 0; b < tt.k; b++ {
				if p.BlockWeight(b) == 0 {
					t.Errorf("block %d is empty", b)
				}
				if p.BlockWeight(b) > ctx.MaxBlockWeight(b) {
					t.Errorf("block %d weight %d exceeds cap %d", b, p.BlockWeight(b), ctx.MaxBlockWeight(b))
				}
			}
		})
	}
}

func TestExtractSubgraph(t *testing.T) {
	g := pathGraph(t, 6)
	sub, toParent, err := ExtractSubgraph(g, func(u int) bool { return u < 3 })
	if err != nil {
		t.Fatal(err)
	}

	if sub.N() != 3 {
		t.Fatalf("subgraph N = %d, want 3", sub.N())
	}
	if sub.M() != 4 {
		t.Errorf("subgraph M = %d, want 4 half-edges", sub.M())
	}
	for i, parent := range toParent {
		if parent != i {
			t.Errorf("toParent[%d] = %d, want %d", i, parent, i)
		}
	}
	if err := sub.Validate(); err != nil {
		t.Errorf("subgraph invalid: %v", err)
	}
}
