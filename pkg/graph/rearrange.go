package graph

import "sort"

// SortByDegreeBuckets permutes the graph into the degree-bucket arrangement:
// nodes grouped by ascending bucket, isolated nodes last, stable by id within
// a bucket. Returns the sorted graph and the permutation perm[old] = new.
func SortByDegreeBuckets(g *CSR) (*CSR, []int, error) {
	n := g.N()
	order := make([]int, n)
	for u := range order {
		order[u] = u
	}
	sort.SliceStable(order, func(i, j int) bool {
		return bucketOrderKey(g.Degree(order[i])) < bucketOrderKey(g.Degree(order[j]))
	})

	perm := make([]int, n)
	for newID, oldID := range order {
		perm[oldID] = newID
	}

	offsets := make([]int, n+1)
	for newID, oldID := range order {
		offsets[newID+1] = offsets[newID] + g.Degree(oldID)
	}

	edges := make([]int, offsets[n])
	var edgeWeights []int64
	if g.edgeWeights != nil {
		edgeWeights = make([]int64, offsets[n])
	}
	var nodeWeights []int64
	if g.nodeWeights != nil {
		nodeWeights = make([]int64, n)
	}

	for newID, oldID := range order {
		if nodeWeights != nil {
			nodeWeights[newID] = g.nodeWeights[oldID]
		}
		pos := offsets[newID]
		g.Neighbors(oldID, func(e, v int) bool {
			edges[pos] = perm[v]
			if edgeWeights != nil {
				edgeWeights[pos] = g.edgeWeights[e]
			}
			pos++
			return true
		})
		sortAdjacency(edges[offsets[newID]:pos], edgeWeights, offsets[newID])
	}

	sorted, err := NewCSR(offsets, edges, nodeWeights, edgeWeights, true)
	if err != nil {
		return nil, nil, err
	}
	return sorted, perm, nil
}

func sortAdjacency(adj []int, weights []int64, base int) {
	if weights == nil {
		sort.Ints(adj)
		return
	}
	idx := make([]int, len(adj))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return adj[idx[i]] < adj[idx[j]] })

	adjCopy := append([]int(nil), adj...)
	wCopy := append([]int64(nil), weights[base:base+len(adj)]...)
	for i, j := range idx {
		adj[i] = adjCopy[j]
		weights[base+i] = wCopy[j]
	}
}

// CountIsolatedNodes returns the number of degree-zero nodes.
func CountIsolatedNodes(g Graph) int {
	count := 0
	for u := 0; u < g.N(); u++ {
		if g.Degree(u) == 0 {
			count++
		}
	}
	return count
}
