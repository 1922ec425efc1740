package dist

import (
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/coarsening"
	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
	"github.com/gilchrisn/graph-partition-service/pkg/refinement"
)

func runWorld(t *testing.T, size int, fn func(c *Comm) error) {
	t.Helper()
	world, err := NewWorld(size)
	if err != nil {
		t.Fatal(err)
	}
	if err := world.Run(fn); err != nil {
		t.Fatal(err)
	}
}

func TestAllreduceSum(t *testing.T) {
	runWorld(t, 3, func(c *Comm) error {
		local := []int64{int64(c.Rank()), 1}
		sum := c.AllreduceSumInt64(local)
		if sum[0] != 3 || sum[1] != 3 {
			t.Errorf("rank %d: allreduce = %v, want [3 3]", c.Rank(), sum)
		}
		return nil
	})
}

func TestSparseAllToAll(t *testing.T) {
	runWorld(t, 3, func(c *Comm) error {
		out := make([][]int, c.Size())
		for dest := 0; dest < c.Size(); dest++ {
			if dest != c.Rank() {
				out[dest] = []int{c.Rank() * 100, dest}
			}
		}
		in := SparseAllToAll(c, out)
		for src := 0; src < c.Size(); src++ {
			if src == c.Rank() {
				if in[src] != nil {
					t.Errorf("rank %d: unexpected self message", c.Rank())
				}
				continue
			}
			want := []int{src * 100, c.Rank()}
			if len(in[src]) != 2 || in[src][0] != want[0] || in[src][1] != want[1] {
				t.Errorf("rank %d: from %d got %v, want %v", c.Rank(), src, in[src], want)
			}
		}
		return nil
	})
}

func TestBroadcast(t *testing.T) {
	runWorld(t, 4, func(c *Comm) error {
		got := Broadcast(c, 2, c.Rank()*10)
		if got != 20 {
			t.Errorf("rank %d: broadcast = %d, want 20", c.Rank(), got)
		}
		return nil
	})
}

// twoCliques returns two K5s joined by one edge.
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

func TestDistributeAndValidate(t *testing.T) {
	global := twoCliques(t)
	runWorld(t, 2, func(c *Comm) error {
		dg := Distribute(global, c)
		if err := dg.Validate(c); err != nil {
			t.Errorf("rank %d: %v", c.Rank(), err)
		}
		if dg.NLocal() != 5 {
			t.Errorf("rank %d: NLocal = %d, want 5", c.Rank(), dg.NLocal())
		}
		// The single cross-clique edge induces exactly one ghost per rank.
		if dg.NGhost() != 1 {
			t.Errorf("rank %d: NGhost = %d, want 1", c.Rank(), dg.NGhost())
		}
		if dg.GlobalN() != 10 {
			t.Errorf("rank %d: GlobalN = %d, want 10", c.Rank(), dg.GlobalN())
		}
		return nil
	})
}

func TestDistributedPartitionBasics(t *testing.T) {
	global := twoCliques(t)
	runWorld(t, 2, func(c *Comm) error {
		dg := Distribute(global, c)
		blocks := make([]int, dg.NLocal())
		for u := range blocks {
			blocks[u] = c.Rank()
		}
		p := NewPartition(c, dg, 2, blocks)

		if err := p.Validate(c); err != nil {
			t.Errorf("rank %d: %v", c.Rank(), err)
		}
		if got := p.EdgeCut(c); got != 1 {
			t.Errorf("rank %d: EdgeCut = %d, want 1", c.Rank(), got)
		}
		if p.BlockWeight(0) != 5 || p.BlockWeight(1) != 5 {
			t.Errorf("rank %d: block weights = (%d, %d), want (5, 5)", c.Rank(), p.BlockWeight(0), p.BlockWeight(1))
		}
		return nil
	})
}

func TestGhostLabelSync(t *testing.T) {
	global := twoCliques(t)
	runWorld(t, 2, func(c *Comm) error {
		dg := Distribute(global, c)
		blocks := make([]int, dg.NLocal())
		for u := range blocks {
			blocks[u] = c.Rank()
		}
		p := NewPartition(c, dg, 2, blocks)

		// Rank 0 relabels its node 4 (global 4) and syncs; rank 1 must see
		// the new label on its ghost.
		if c.Rank() == 0 {
			p.SetBlockRaw(4, 1)
		}
		p.SyncGhostLabels(c, func(u int) bool { return dg.GlobalID(u) == 4 })

		if c.Rank() == 1 {
			if ghost, ok := dg.LocalID(4); !ok {
				t.Errorf("rank 1 should hold global node 4 as a ghost")
			} else if got := p.Block(ghost); got != 1 {
				t.Errorf("ghost label = %d, want 1", got)
			}
		}
		return nil
	})
}

func distRefinementParams() refinement.Params {
	return refinement.Params{
		Workers:               1,
		Seed:                  1,
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

func TestDistributedJetFixesMisassignedNode(t *testing.T) {
	global := twoCliques(t)
	runWorld(t, 2, func(c *Comm) error {
		dg := Distribute(global, c)
		blocks := make([]int, dg.NLocal())
		for u := range blocks {
			blocks[u] = c.Rank()
		}
		if c.Rank() == 0 {
			blocks[4] = 1 // global node 4 on the wrong side
		}
		p := NewPartition(c, dg, 2, blocks)
		ctx := partition.NewContextForWeight(10, 2, 0.03)

		jet := NewJet(distRefinementParams(), zerolog.Nop())
		jet.Initialize(c, p)
		improved, err := jet.Refine(c, p, ctx)
		if err != nil {
			return err
		}
		if !improved {
			t.Errorf("rank %d: Jet should report improvement", c.Rank())
		}
		if got := p.EdgeCut(c); got != 1 {
			t.Errorf("rank %d: cut after Jet = %d, want 1", c.Rank(), got)
		}
		return p.Validate(c)
	})
}

func TestDistributedBalancer(t *testing.T) {
	global := twoCliques(t)
	runWorld(t, 2, func(c *Comm) error {
		dg := Distribute(global, c)
		blocks := make([]int, dg.NLocal())
		// Everything in block 0.
		p := NewPartition(c, dg, 2, blocks)
		ctx := partition.NewContextForWeight(10, 2, 0.03)

		balancer := NewBalancer(distRefinementParams(), zerolog.Nop())
		if err := balancer.Refine(c, p, ctx); err != nil {
			return err
		}
		if p.TotalOverload(ctx) != 0 {
			t.Errorf("rank %d: balancer left overload %d", c.Rank(), p.TotalOverload(ctx))
		}
		return p.Validate(c)
	})
}

func TestDistributedCoarsener(t *testing.T) {
	global := twoCliques(t)
	runWorld(t, 2, func(c *Comm) error {
		params := coarsening.Params{
			K:                       2,
			Epsilon:                 0.03,
			ContractionLimit:        2,
			ClusterWeightLimit:      coarsening.LimitEpsilonBlockWeight,
			ClusterWeightMultiplier: 1.0,
			ConvergenceThreshold:    0.95,
			MaxLevels:               10,
			MaxClusterIterations:    5,
			Seed:                    1,
			Workers:                 1,
		}
		co := NewCoarsener(c, Distribute(global, c), params, 3, zerolog.Nop())

		coarse, err := co.CoarsenOnce(5)
		if err != nil {
			return err
		}
		if co.Level() != 1 {
			t.Errorf("rank %d: Level = %d, want 1", c.Rank(), co.Level())
			return nil
		}
		if coarse.GlobalN() >= global.N() {
			t.Errorf("rank %d: coarse GlobalN = %d, want < %d", c.Rank(), coarse.GlobalN(), global.N())
		}

		totalWeight := c.AllreduceSumInt64([]int64{coarse.TotalNodeWeight()})[0]
		if totalWeight != global.TotalNodeWeight() {
			t.Errorf("rank %d: coarse total weight = %d, want %d", c.Rank(), totalWeight, global.TotalNodeWeight())
		}

		// Partition the coarse graph round-robin and project back.
		blocks := make([]int, coarse.NLocal())
		for u := range blocks {
			blocks[u] = int(coarse.GlobalID(u)) % 2
		}
		p := NewPartition(c, coarse, 2, blocks)
		fine, err := co.UncoarsenOnce(p)
		if err != nil {
			return err
		}
		if co.Level() != 0 {
			t.Errorf("rank %d: Level = %d after uncoarsening, want 0", c.Rank(), co.Level())
		}
		return fine.Validate(c)
	})
}

func TestDistributedPipelineTwoCliques(t *testing.T) {
	global := twoCliques(t)
	params := PipelineParams{
		K:              2,
		Epsilon:        0.03,
		Mode:           "kway",
		Ranks:          2,
		MaxLocalLevels: 3,
		InitialReps:    4,
		Seed:           1,
		Coarsening: coarsening.Params{
			K:                       2,
			Epsilon:                 0.03,
			ContractionLimit:        2000,
			ClusterWeightLimit:      coarsening.LimitEpsilonBlockWeight,
			ClusterWeightMultiplier: 1.0,
			ConvergenceThreshold:    0.95,
			MaxLevels:               10,
			MaxClusterIterations:    5,
			Seed:                    1,
			Workers:                 1,
		},
		Refinement: distRefinementParams(),
	}

	blocks, err := PartitionGraph(global, params, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	p := partition.FromBlocks(global, 2, blocks)
	if err := p.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := partition.EdgeCut(p); got != 1 {
		t.Errorf("pipeline cut = %d, want 1", got)
	}

	// Each clique must land in one block.
	first := append([]int(nil), blocks[:5]...)
	sort.Ints(first)
	if first[0] != first[4] {
		t.Errorf("clique A split across blocks: %v", blocks[:5])
	}
}
