package graph

import (
	"fmt"
	"sort"

	gonumgraph "gonum.org/v1/gonum/graph"
)

// FromGonum converts an undirected gonum graph into a CSR. Node ids are
// densified in ascending order of the original int64 ids; the returned slice
// maps dense id back to the original. Edge weights are taken from the
// graph's Weight method when it implements gonum's Weighted interface and
// rounded to integers with a minimum of 1.
func FromGonum(src gonumgraph.Undirected) (*CSR, []int64, error) {
	var ids []int64
	nodes := src.Nodes()
	for nodes.Next() {
		ids = append(ids, nodes.Node().ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	dense := make(map[int64]int, len(ids))
	for i, id := range ids {
		dense[id] = i
	}

	weighted, isWeighted := src.(gonumgraph.Weighted)

	builder := NewBuilder(len(ids))
	for _, uid := range ids {
		to := src.From(uid)
		for to.Next() {
			vid := to.Node().ID()
			if uid >= vid {
				continue
			}
			weight := int64(1)
			if isWeighted {
				if w, ok := weighted.Weight(uid, vid); ok && w >= 1 {
					weight = int64(w + 0.5)
				}
			}
			if err := builder.AddEdge(dense[uid], dense[vid], weight); err != nil {
				return nil, nil, fmt.Errorf("converting gonum edge %d-%d: %w", uid, vid, err)
			}
		}
	}

	csr, err := builder.Build()
	if err != nil {
		return nil, nil, err
	}
	return csr, ids, nil
}
