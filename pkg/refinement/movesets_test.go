package refinement

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// overloadedPath builds P8 with everything in block 0 except the last node.
func overloadedPath(t *testing.T) (*partition.Partition, *partition.Context) {
	t.Helper()
	b := graph.NewBuilder(8)
	for u := 0; u+1 < 8; u++ {
		if err := b.AddEdge(u, u+1, 1); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	blocks := []int{0, 0, 0, 0, 0, 0, 0, 1}
	p := partition.FromBlocks(g, 2, blocks)
	ctx := partition.NewContext(g, 2, 0.0) // cap 4, block 0 overloaded by 3
	return p, ctx
}

func TestBuildMoveSetsInvariants(t *testing.T) {
	p, ctx := overloadedPath(t)
	sets := BuildMoveSets(p, ctx, 2)

	if sets.NumSets() == 0 {
		t.Fatalf("an overloaded block must produce move sets")
	}
	if sets.Indices[0] != 0 {
		t.Errorf("Indices[0] = %d, want 0", sets.Indices[0])
	}
	if sets.Indices[sets.NumSets()] != len(sets.Nodes) {
		t.Errorf("Indices must end at the node array length")
	}
	if err := sets.Validate(p); err != nil {
		t.Fatalf("move set invariants violated: %v", err)
	}

	for s := 0; s < sets.NumSets(); s++ {
		if got := sets.Weight(p, s); got > 2 {
			t.Errorf("set %d weight %d exceeds the cap 2", s, got)
		}
		if !connectedInBlock(p, sets, s) {
			t.Errorf("set %d is not connected within its block", s)
		}
	}

	// Unassigned nodes must map to -1, assigned ones to their set.
	for u := 0; u < p.Graph().N(); u++ {
		set := sets.NodeToSet[u]
		if set == -1 {
			continue
		}
		found := false
		for _, v := range sets.Set(set) {
			if v == u {
				found = true
			}
		}
		if !found {
			t.Errorf("node %d maps to set %d but is not listed there", u, set)
		}
	}
}

// connectedInBlock checks that the set forms one connected component in the
// subgraph induced by its source block.
func connectedInBlock(p *partition.Partition, sets *MoveSets, s int) bool {
	members := sets.Set(s)
	if len(members) <= 1 {
		return true
	}
	inSet := make(map[int]bool, len(members))
	for _, u := range members {
		inSet[u] = true
	}

	visited := map[int]bool{members[0]: true}
	queue := []int{members[0]}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		p.Graph().Neighbors(u, func(e, v int) bool {
			if inSet[v] && !visited[v] {
				visited[v] = true
				queue = append(queue, v)
			}
			return true
		})
	}
	return len(visited) == len(members)
}

func TestMoveSetTargetsDifferFromSource(t *testing.T) {
	p, ctx := overloadedPath(t)
	sets := BuildMoveSets(p, ctx, 3)
	for s := 0; s < sets.NumSets(); s++ {
		if sets.Targets[s] == sets.Sources[s] {
			t.Errorf("set %d targets its own source", s)
		}
	}
}

func TestBalancerWithMoveSets(t *testing.T) {
	p, ctx := overloadedPath(t)
	b := NewBalancer(testRefinementParams(), zerolog.Nop())

	improved, err := b.Refine(p, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !improved {
		t.Errorf("balancer should report improvement on an overloaded partition")
	}
	if !partition.IsFeasible(p, ctx) {
		t.Errorf("balancer left overload %d", partition.TotalOverload(p, ctx))
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("partition invalid after balancing: %v", err)
	}
}
