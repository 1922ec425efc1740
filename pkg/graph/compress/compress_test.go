package compress

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

func randomGraph(t *testing.T, n int, p float64, seed int64) *graph.CSR {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	b := graph.NewBuilder(n)
	for u := 0; u < n; u++ {
		for v := u + 1; v < n; v++ {
			if rng.Float64() < p {
				if err := b.AddEdge(u, v, int64(1+rng.Intn(4))); err != nil {
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

// intervalGraph has long runs of consecutive neighbor ids, exercising the
// interval encoding.
func intervalGraph(t *testing.T) *graph.CSR {
	t.Helper()
	b := graph.NewBuilder(64)
	for v := 1; v <= 20; v++ {
		if err := b.AddEdge(0, v, 1); err != nil {
			t.Fatal(err)
		}
	}
	for v := 40; v < 50; v++ {
		if err := b.AddEdge(0, v, 1); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.AddEdge(30, 32, 1); err != nil {
		t.Fatal(err)
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func neighborMultiset(g graph.Graph, u int) []int {
	var vs []int
	g.Neighbors(u, func(e, v int) bool {
		vs = append(vs, v)
		return true
	})
	sort.Ints(vs)
	return vs
}

func weightedNeighborMultiset(g graph.Graph, u int) [][2]int64 {
	var vs [][2]int64
	g.Neighbors(u, func(e, v int) bool {
		vs = append(vs, [2]int64{int64(v), g.EdgeWeight(e)})
		return true
	})
	sort.Slice(vs, func(i, j int) bool {
		if vs[i][0] != vs[j][0] {
			return vs[i][0] < vs[j][0]
		}
		return vs[i][1] < vs[j][1]
	})
	return vs
}

func checkRoundTrip(t *testing.T, src *graph.CSR, c *Compressed) {
	t.Helper()
	if c.N() != src.N() {
		t.Fatalf("N = %d, want %d", c.N(), src.N())
	}
	if c.M() != src.M() {
		t.Fatalf("M = %d, want %d", c.M(), src.M())
	}
	if c.MaxDegree() != src.MaxDegree() {
		t.Errorf("MaxDegree = %d, want %d", c.MaxDegree(), src.MaxDegree())
	}
	if c.TotalEdgeWeight() != src.TotalEdgeWeight() {
		t.Errorf("TotalEdgeWeight = %d, want %d", c.TotalEdgeWeight(), src.TotalEdgeWeight())
	}
	for u := 0; u < src.N(); u++ {
		if diff := cmp.Diff(weightedNeighborMultiset(src, u), weightedNeighborMultiset(c, u)); diff != "" {
			t.Fatalf("node %d neighbor multiset (-want +got):\n%s", u, diff)
		}
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestCompressRoundTripRandom(t *testing.T) {
	for _, seed := range []int64{1, 2, 3} {
		src := randomGraph(t, 80, 0.1, seed)
		c, err := FromCSR(src, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		checkRoundTrip(t, src, c)
	}
}

func TestCompressRoundTripIntervals(t *testing.T) {
	src := intervalGraph(t)
	c, err := FromCSR(src, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	checkRoundTrip(t, src, c)

	if c.CompressionStats().IntervalNodes == 0 {
		t.Errorf("interval encoding did not trigger on consecutive runs")
	}
}

func TestCompressRoundTripWithoutEncodings(t *testing.T) {
	src := intervalGraph(t)
	c, err := FromCSR(src, Options{})
	if err != nil {
		t.Fatal(err)
	}
	checkRoundTrip(t, src, c)
	if stats := c.CompressionStats(); stats.IntervalNodes != 0 || stats.HighDegreeNodes != 0 {
		t.Errorf("disabled encodings must not be used: %+v", stats)
	}
}

func TestParallelBuilderIsByteIdentical(t *testing.T) {
	src := randomGraph(t, 9000, 0.001, 7)

	seq, err := FromCSR(src, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	par, err := FromCSRParallel(src, 4, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(seq.blob, par.blob) {
		t.Fatalf("parallel builder produced different bytes (%d vs %d)", len(seq.blob), len(par.blob))
	}
	if diff := cmp.Diff(seq.byteOffsets, par.byteOffsets); diff != "" {
		t.Fatalf("byte offsets differ (-seq +par):\n%s", diff)
	}
	if diff := cmp.Diff(seq.firstEdge, par.firstEdge); diff != "" {
		t.Fatalf("edge offsets differ (-seq +par):\n%s", diff)
	}
	checkRoundTrip(t, src, par)
}

func TestHighDegreeEncoding(t *testing.T) {
	leaves := HighDegreeThreshold + 500
	b := graph.NewBuilder(leaves + 1)
	for v := 1; v <= leaves; v++ {
		if err := b.AddEdge(0, v, 1); err != nil {
			t.Fatal(err)
		}
	}
	src, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	c, err := FromCSR(src, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	stats := c.CompressionStats()
	if stats.HighDegreeNodes != 1 {
		t.Errorf("HighDegreeNodes = %d, want 1", stats.HighDegreeNodes)
	}
	wantParts := (leaves + HighDegreePartLength - 1) / HighDegreePartLength
	if stats.HighDegreeParts != wantParts {
		t.Errorf("HighDegreeParts = %d, want %d", stats.HighDegreeParts, wantParts)
	}
	if diff := cmp.Diff(neighborMultiset(src, 0), neighborMultiset(c, 0)); diff != "" {
		t.Fatalf("hub neighbor multiset (-want +got):\n%s", diff)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestCompressedIsolatedTrimInvolution(t *testing.T) {
	// Star plus trailing isolated nodes, in degree-bucket order.
	b := graph.NewBuilder(10)
	for v := 1; v <= 5; v++ {
		if err := b.AddEdge(0, v, 1); err != nil {
			t.Fatal(err)
		}
	}
	csr, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	sorted, _, err := graph.SortByDegreeBuckets(csr)
	if err != nil {
		t.Fatal(err)
	}

	c, err := FromCSR(sorted, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	wantN := c.N()
	wantWeight := c.TotalNodeWeight()
	if err := c.RemoveIsolatedNodes(4); err != nil {
		t.Fatal(err)
	}
	if c.N() != wantN-4 {
		t.Errorf("after removal N = %d, want %d", c.N(), wantN-4)
	}
	c.IntegrateIsolatedNodes()
	if c.N() != wantN || c.TotalNodeWeight() != wantWeight {
		t.Errorf("trim round trip changed the graph: n=%d weight=%d", c.N(), c.TotalNodeWeight())
	}
}
