package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// pathGraph builds P_n: 0-1-2-...-n-1 with unit weights.
func pathGraph(t *testing.T, n int) *CSR {
	t.Helper()
	b := NewBuilder(n)
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

func TestBuilderBuildsSymmetricCSR(t *testing.T) {
	g := pathGraph(t, 4)

	if g.N() != 4 {
		t.Errorf("N = %d, want 4", g.N())
	}
	if g.M() != 6 {
		t.Errorf("M = %d, want 6 half-edges", g.M())
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	var neighbors []int
	g.Neighbors(1, func(e, v int) bool {
		neighbors = append(neighbors, v)
		return true
	})
	if diff := cmp.Diff([]int{0, 2}, neighbors); diff != "" {
		t.Errorf("neighbors of 1 (-want +got):\n%s", diff)
	}
}

func TestBuilderRejectsBadEdges(t *testing.T) {
	b := NewBuilder(3)
	if err := b.AddEdge(0, 0, 1); err == nil {
		t.Errorf("self-loop should be rejected")
	}
	if err := b.AddEdge(0, 5, 1); err == nil {
		t.Errorf("out-of-range endpoint should be rejected")
	}
	if err := b.AddEdge(0, 1, 0); err == nil {
		t.Errorf("non-positive weight should be rejected")
	}
}

func TestWeights(t *testing.T) {
	b := NewBuilder(3)
	b.SetNodeWeight(0, 4)
	b.SetNodeWeight(1, 2)
	if err := b.AddEdge(0, 1, 3); err != nil {
		t.Fatal(err)
	}
	if err := b.AddEdge(1, 2, 5); err != nil {
		t.Fatal(err)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	if got := g.TotalNodeWeight(); got != 7 { // 4 + 2 + 1
		t.Errorf("TotalNodeWeight = %d, want 7", got)
	}
	if got := g.MaxNodeWeight(); got != 4 {
		t.Errorf("MaxNodeWeight = %d, want 4", got)
	}
	if got := g.TotalEdgeWeight(); got != 16 { // both half-edges counted
		t.Errorf("TotalEdgeWeight = %d, want 16", got)
	}
}

func TestDegreeBucket(t *testing.T) {
	tests := []struct {
		degree int
		bucket int
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {4, 3}, {7, 3}, {8, 4}, {1023, 10}, {1024, 11},
	}
	for _, tt := range tests {
		if got := DegreeBucket(tt.degree); got != tt.bucket {
			t.Errorf("DegreeBucket(%d) = %d, want %d", tt.degree, got, tt.bucket)
		}
	}
}

// starWithIsolated builds a star around node 0 with `leaves` leaves plus
// `isolated` isolated nodes.
func starWithIsolated(t *testing.T, leaves, isolated int) *CSR {
	t.Helper()
	b := NewBuilder(1 + leaves + isolated)
	for l := 1; l <= leaves; l++ {
		if err := b.AddEdge(0, l, 1); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestSortByDegreeBucketsPlacesIsolatedLast(t *testing.T) {
	g := starWithIsolated(t, 3, 2)
	sorted, perm, err := SortByDegreeBuckets(g)
	if err != nil {
		t.Fatal(err)
	}

	if !sorted.Sorted() {
		t.Fatalf("sorted graph must report Sorted()")
	}
	// Leaves (degree 1) first, hub (degree 3) next, isolated last.
	for u := 0; u < 3; u++ {
		if sorted.Degree(u) != 1 {
			t.Errorf("node %d: degree %d, want 1", u, sorted.Degree(u))
		}
	}
	if sorted.Degree(3) != 3 {
		t.Errorf("hub degree = %d, want 3", sorted.Degree(3))
	}
	for u := 4; u < 6; u++ {
		if sorted.Degree(u) != 0 {
			t.Errorf("node %d: degree %d, want 0 (isolated)", u, sorted.Degree(u))
		}
	}
	if sorted.BucketSize(0) != 2 {
		t.Errorf("isolated bucket size = %d, want 2", sorted.BucketSize(0))
	}
	if sorted.FirstNodeInBucket(0) != 4 {
		t.Errorf("isolated bucket starts at %d, want 4", sorted.FirstNodeInBucket(0))
	}

	// The permutation must be a bijection consistent with the degrees.
	seen := make([]bool, g.N())
	for oldID, newID := range perm {
		if seen[newID] {
			t.Fatalf("permutation maps two nodes to %d", newID)
		}
		seen[newID] = true
		if g.Degree(oldID) != sorted.Degree(newID) {
			t.Errorf("degree of node %d changed across permutation", oldID)
		}
	}
	if err := sorted.Validate(); err != nil {
		t.Errorf("sorted graph invalid: %v", err)
	}
}

func TestRemoveIntegrateIsolatedIsInvolution(t *testing.T) {
	g := starWithIsolated(t, 3, 2)
	sorted, _, err := SortByDegreeBuckets(g)
	if err != nil {
		t.Fatal(err)
	}

	wantN := sorted.N()
	wantWeight := sorted.TotalNodeWeight()
	wantBucket0 := sorted.BucketSize(0)

	if err := sorted.RemoveIsolatedNodes(2); err != nil {
		t.Fatal(err)
	}
	if sorted.N() != wantN-2 {
		t.Errorf("after removal N = %d, want %d", sorted.N(), wantN-2)
	}
	if sorted.TotalNodeWeight() != wantWeight-2 {
		t.Errorf("after removal weight = %d, want %d", sorted.TotalNodeWeight(), wantWeight-2)
	}
	if sorted.BucketSize(0) != 0 {
		t.Errorf("after removal isolated bucket = %d, want 0", sorted.BucketSize(0))
	}

	sorted.IntegrateIsolatedNodes()
	if sorted.N() != wantN {
		t.Errorf("after integration N = %d, want %d", sorted.N(), wantN)
	}
	if sorted.TotalNodeWeight() != wantWeight {
		t.Errorf("after integration weight = %d, want %d", sorted.TotalNodeWeight(), wantWeight)
	}
	if sorted.BucketSize(0) != wantBucket0 {
		t.Errorf("after integration isolated bucket = %d, want %d", sorted.BucketSize(0), wantBucket0)
	}
}

func TestRemoveIsolatedRejectsUnsorted(t *testing.T) {
	g := starWithIsolated(t, 2, 1)
	if err := g.RemoveIsolatedNodes(1); err == nil {
		t.Errorf("unsorted graphs must reject isolated-node removal")
	}
}
