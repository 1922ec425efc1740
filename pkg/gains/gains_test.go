package gains

import (
	"math/rand"
	"testing"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

func testGraph(t *testing.T) *graph.CSR {
	t.Helper()
	// Two triangles joined by one edge: 0-1-2 and 3-4-5.
	b := graph.NewBuilder(6)
	edges := [][3]int64{
		{0, 1, 2}, {1, 2, 1}, {0, 2, 1},
		{3, 4, 1}, {4, 5, 2}, {3, 5, 1},
		{2, 3, 3},
	}
	for _, e := range edges {
		if err := b.AddEdge(int(e[0]), int(e[1]), e[2]); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestDenseMatchesRecomputation(t *testing.T) {
	g := testGraph(t)
	p := partition.FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})

	c := NewDense(g.N(), 2)
	c.Initialize(p)
	if err := c.Validate(p); err != nil {
		t.Fatalf("fresh cache invalid: %v", err)
	}

	if got := c.Conn(2, 1); got != 3 {
		t.Errorf("Conn(2, 1) = %d, want 3", got)
	}
	if got := c.Gain(2, 0, 1); got != 3-2 {
		t.Errorf("Gain(2, 0->1) = %d, want 1", got)
	}
	if !c.IsBorderNode(2) {
		t.Errorf("node 2 must be a border node")
	}
	if c.IsBorderNode(0) {
		t.Errorf("node 0 must not be a border node")
	}
}

func TestDenseMoveUpdates(t *testing.T) {
	g := testGraph(t)
	p := partition.FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})
	c := NewDense(g.N(), 2)
	c.Initialize(p)

	p.SetBlock(2, 1)
	c.Move(2, 0, 1)
	if err := c.Validate(p); err != nil {
		t.Fatalf("cache invalid after move: %v", err)
	}
}

func TestMoveCommutativity(t *testing.T) {
	g := testGraph(t)
	moves := []struct{ u, from, to int }{
		{2, 0, 1}, {3, 1, 0}, {2, 1, 0}, {4, 1, 0},
	}

	// Apply the same move sequence in several random interleavings of the
	// per-move cache updates; the final conn table must be identical.
	var reference *Dense
	for trial := 0; trial < 5; trial++ {
		p := partition.FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})
		c := NewDense(g.N(), 2)
		c.Initialize(p)

		order := rand.New(rand.NewSource(int64(trial))).Perm(len(moves))
		for _, i := range order {
			mv := moves[i]
			c.Move(mv.u, mv.from, mv.to)
		}

		if reference == nil {
			reference = c
			continue
		}
		for u := 0; u < g.N(); u++ {
			for b := 0; b < 2; b++ {
				if c.Conn(u, b) != reference.Conn(u, b) {
					t.Fatalf("trial %d: conn(%d, %d) = %d, want %d", trial, u, b, c.Conn(u, b), reference.Conn(u, b))
				}
			}
		}
	}
}

func TestDeltaOverlay(t *testing.T) {
	g := testGraph(t)
	p := partition.FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})
	base := NewDense(g.N(), 2)
	base.Initialize(p)

	d := NewDelta(base, p)
	if got, want := d.Gain(3, 1, 0), base.Gain(3, 1, 0); got != want {
		t.Fatalf("empty overlay gain = %d, want %d", got, want)
	}

	// Speculatively move node 2 to block 1; the base cache must not change.
	d.Move(2, 0, 1)
	if got := d.Conn(3, 0); got != base.Conn(3, 0)-3 {
		t.Errorf("overlay Conn(3, 0) = %d, want %d", got, base.Conn(3, 0)-3)
	}
	if err := base.Validate(p); err != nil {
		t.Errorf("base cache mutated by overlay: %v", err)
	}

	d.Clear()
	if got := d.Conn(3, 0); got != base.Conn(3, 0) {
		t.Errorf("after Clear, overlay must match the base")
	}
}

func TestOnTheFlyMatchesDense(t *testing.T) {
	g := testGraph(t)
	p := partition.FromBlocks(g, 2, []int{0, 1, 0, 1, 0, 1})

	dense := NewDense(g.N(), 2)
	dense.Initialize(p)
	otf := NewOnTheFly(2)
	otf.Initialize(p)

	for u := 0; u < g.N(); u++ {
		for b := 0; b < 2; b++ {
			if dense.Conn(u, b) != otf.Conn(u, b) {
				t.Errorf("conn(%d, %d): dense %d, on-the-fly %d", u, b, dense.Conn(u, b), otf.Conn(u, b))
			}
		}
		if dense.IsBorderNode(u) != otf.IsBorderNode(u) {
			t.Errorf("border(%d): dense %v, on-the-fly %v", u, dense.IsBorderNode(u), otf.IsBorderNode(u))
		}
	}
}

func TestComputeMaxGainer(t *testing.T) {
	g := testGraph(t)
	p := partition.FromBlocks(g, 2, []int{0, 0, 0, 1, 1, 1})
	ctx := partition.NewContext(g, 2, 1.0) // loose caps

	rm := ds.NewRatingMap(2)
	mg := ComputeMaxGainer(p, ctx, 2, rm)
	if mg.Block != 1 {
		t.Fatalf("max gainer block = %d, want 1", mg.Block)
	}
	if mg.IntDegree != 2 || mg.ExtDegree != 3 {
		t.Errorf("degrees = (%d, %d), want (2, 3)", mg.IntDegree, mg.ExtDegree)
	}
	if mg.AbsoluteGain() != 1 {
		t.Errorf("gain = %d, want 1", mg.AbsoluteGain())
	}

	// An interior node has no eligible foreign block.
	mg = ComputeMaxGainer(p, ctx, 0, rm)
	if mg.Block != 0 {
		t.Errorf("interior node: block = %d, want 0", mg.Block)
	}
}
