package initial

import (
	"fmt"
	"math/rand"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// Params holds the initial partitioning tunables.
type Params struct {
	Repetitions int
	Epsilon     float64
	Seed        int64
}

// PartitionKWay partitions g into k blocks by recursive bisection and
// returns the resulting partition.
func PartitionKWay(g graph.Graph, k int, params Params) (*partition.Partition, error) {
	if k < 1 {
		return nil, fmt.Errorf("block count must be positive, got %d", k)
	}
	blocks := make([]int, g.N())
	rng := rand.New(rand.NewSource(params.Seed))
	if err := recurse(g, k, 0, params, rng, blocks, identity(g.N())); err != nil {
		return nil, err
	}
	return partition.FromBlocks(g, k, blocks), nil
}

func identity(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// recurse bipartitions sub into a k1/k2 split, writes final block ids for
// leaf calls, and recurses on the two induced subgraphs otherwise. toOrig
// maps sub's node ids back to the original graph.
func recurse(sub graph.Graph, k, blockOffset int, params Params, rng *rand.Rand, out []int, toOrig []int) error {
	if k == 1 {
		for _, orig := range toOrig {
			out[orig] = blockOffset
		}
		return nil
	}

	k1 := (k + 1) / 2
	k2 := k - k1
	ctx := newBisectionContext(sub.TotalNodeWeight(), k1, k2, params.Epsilon)
	blocks := bipartitionBest(sub, ctx, params.Repetitions, rng)

	for side := 0; side < 2; side++ {
		kSide := k1
		offset := blockOffset
		if side == 1 {
			kSide = k2
			offset = blockOffset + k1
		}

		if kSide == 1 {
			for u, b := range blocks {
				if b == side {
					out[toOrig[u]] = offset
				}
			}
			continue
		}

		subgraph, subToOrig, err := extractSide(sub, blocks, side, toOrig)
		if err != nil {
			return err
		}
		if err := recurse(subgraph, kSide, offset, params, rng, out, subToOrig); err != nil {
			return err
		}
	}
	return nil
}

// extractSide builds the subgraph induced by the nodes of one bisection
// side, together with the mapping back to original node ids.
func extractSide(g graph.Graph, blocks []int, side int, toOrig []int) (*graph.CSR, []int, error) {
	sub, subToParent, err := ExtractSubgraph(g, func(u int) bool { return blocks[u] == side })
	if err != nil {
		return nil, nil, err
	}
	subToOrig := make([]int, len(subToParent))
	for i, parent := range subToParent {
		subToOrig[i] = toOrig[parent]
	}
	return sub, subToOrig, nil
}

// Bisect splits g into two sides sized for k1 and k2 final blocks and
// returns the side of each node.
func Bisect(g graph.Graph, k1, k2 int, params Params) []int {
	ctx := newBisectionContext(g.TotalNodeWeight(), k1, k2, params.Epsilon)
	rng := rand.New(rand.NewSource(params.Seed))
	return bipartitionBest(g, ctx, params.Repetitions, rng)
}

// ExtractSubgraph builds the subgraph induced by the nodes accepted by
// member, with node and edge weights preserved. The second return value
// maps subgraph node ids back to g's ids.
func ExtractSubgraph(g graph.Graph, member func(int) bool) (*graph.CSR, []int, error) {
	subID := make([]int, g.N())
	var subToParent []int
	for u := 0; u < g.N(); u++ {
		subID[u] = -1
		if member(u) {
			subID[u] = len(subToParent)
			subToParent = append(subToParent, u)
		}
	}

	builder := graph.NewBuilder(len(subToParent))
	for u := 0; u < g.N(); u++ {
		if subID[u] < 0 {
			continue
		}
		builder.SetNodeWeight(subID[u], g.NodeWeight(u))
		var err error
		g.Neighbors(u, func(e, v int) bool {
			if subID[v] >= 0 && u < v {
				err = builder.AddEdge(subID[u], subID[v], g.EdgeWeight(e))
				return err == nil
			}
			return true
		})
		if err != nil {
			return nil, nil, fmt.Errorf("extracting induced subgraph: %w", err)
		}
	}

	sub, err := builder.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("extracting induced subgraph: %w", err)
	}
	return sub, subToParent, nil
}
