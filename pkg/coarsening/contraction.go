package coarsening

import (
	"fmt"
	"sort"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

// Contract collapses each cluster into one coarse node. Parallel fine edges
// between two clusters merge into a single coarse edge carrying the summed
// weight; intra-cluster edges disappear. The coarse edges are accumulated in
// an ordered map so the coarse CSR comes out in deterministic adjacency
// order. Returns the coarse graph and the fine-to-coarse mapping.
func Contract(g graph.Graph, clusters []int) (*graph.CSR, []int, error) {
	if len(clusters) != g.N() {
		return nil, nil, fmt.Errorf("clustering covers %d nodes but the graph has %d", len(clusters), g.N())
	}

	// Densify cluster ids in ascending order.
	leaders := make([]int, 0, len(clusters))
	seen := make(map[int]bool, len(clusters))
	for _, cl := range clusters {
		if !seen[cl] {
			seen[cl] = true
			leaders = append(leaders, cl)
		}
	}
	sort.Ints(leaders)

	dense := make(map[int]int, len(leaders))
	for i, leader := range leaders {
		dense[leader] = i
	}

	coarseN := len(leaders)
	mapping := make([]int, g.N())
	nodeWeights := make([]int64, coarseN)
	for u := 0; u < g.N(); u++ {
		cu := dense[clusters[u]]
		mapping[u] = cu
		nodeWeights[cu] += g.NodeWeight(u)
	}

	edges := treemap.NewWith(utils.Int64Comparator)
	for u := 0; u < g.N(); u++ {
		cu := mapping[u]
		g.Neighbors(u, func(e, v int) bool {
			cv := mapping[v]
			if cu != cv {
				key := int64(cu)*int64(coarseN) + int64(cv)
				if w, found := edges.Get(key); found {
					edges.Put(key, w.(int64)+g.EdgeWeight(e))
				} else {
					edges.Put(key, g.EdgeWeight(e))
				}
			}
			return true
		})
	}

	offsets := make([]int, coarseN+1)
	coarseEdges := make([]int, 0, edges.Size())
	edgeWeights := make([]int64, 0, edges.Size())

	it := edges.Iterator()
	for it.Next() {
		key := it.Key().(int64)
		cu := int(key / int64(coarseN))
		cv := int(key % int64(coarseN))
		offsets[cu+1]++
		coarseEdges = append(coarseEdges, cv)
		edgeWeights = append(edgeWeights, it.Value().(int64))
	}
	for cu := 0; cu < coarseN; cu++ {
		offsets[cu+1] += offsets[cu]
	}

	coarse, err := graph.NewCSR(offsets, coarseEdges, nodeWeights, edgeWeights, false)
	if err != nil {
		return nil, nil, fmt.Errorf("building coarse graph: %w", err)
	}
	return coarse, mapping, nil
}
