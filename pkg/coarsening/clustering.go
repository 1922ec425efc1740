// Package coarsening builds the multilevel hierarchy: a clustering of each
// graph is contracted into the next coarser graph until the hierarchy
// converges.
package coarsening

import (
	"math/rand"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/graph"
	"github.com/gilchrisn/graph-partition-service/pkg/parallel"
)

// Clusterer computes bounded-weight label-propagation clusterings. Each
// iteration proposes the strongest-connected cluster for every node from a
// frozen label snapshot in parallel, then commits moves in a seeded random
// order so results depend only on (seed, workers).
type Clusterer struct {
	MaxIterations int
	Workers       int
	rng           *rand.Rand
}

// NewClusterer creates a clusterer with the given iteration cap and seed.
func NewClusterer(maxIterations int, workers int, seed int64) *Clusterer {
	return &Clusterer{
		MaxIterations: maxIterations,
		Workers:       workers,
		rng:           rand.New(rand.NewSource(seed)),
	}
}

// Cluster assigns every node to a cluster of total node weight at most
// maxClusterWeight. Returns nil when no pair of nodes merged, which signals
// that coarsening has converged.
func (c *Clusterer) Cluster(g graph.Graph, maxClusterWeight int64) []int {
	n := g.N()
	clusters := make([]int, n)
	weights := make([]int64, n)
	for u := 0; u < n; u++ {
		clusters[u] = u
		weights[u] = g.NodeWeight(u)
	}

	proposals := make([]int, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	merged := false
	for iter := 0; iter < c.MaxIterations; iter++ {
		// Rate against the frozen labels of the previous round.
		chunks := parallel.NumChunks(n, c.Workers)
		maps := make([]*ds.RatingMap, chunks)
		parallel.ForWorker(n, c.Workers, func(worker, start, end int) {
			rm := maps[worker]
			if rm == nil {
				rm = ds.NewRatingMap(n)
				maps[worker] = rm
			}
			for u := start; u < end; u++ {
				proposals[u] = c.propose(g, clusters, weights, u, maxClusterWeight, rm)
			}
		})

		c.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		moves := 0
		for _, u := range order {
			target := proposals[u]
			cur := clusters[u]
			if target == cur {
				continue
			}
			w := g.NodeWeight(u)
			if weights[target]+w > maxClusterWeight {
				continue
			}
			weights[cur] -= w
			weights[target] += w
			clusters[u] = target
			moves++
			merged = true
		}
		if moves == 0 {
			break
		}
	}

	if !merged {
		return nil
	}
	return clusters
}

// propose returns the cluster with the strongest connection to u that can
// still take u's weight; ties break toward the smaller cluster id.
func (c *Clusterer) propose(g graph.Graph, clusters []int, weights []int64, u int, maxClusterWeight int64, rm *ds.RatingMap) int {
	cur := clusters[u]
	w := g.NodeWeight(u)

	rm.Clear()
	g.Neighbors(u, func(e, v int) bool {
		rm.Add(clusters[v], g.EdgeWeight(e))
		return true
	})

	best := cur
	bestRating := rm.Get(cur)
	rm.Entries(func(cluster int, rating int64) {
		if cluster == cur {
			return
		}
		if weights[cluster]+w > maxClusterWeight {
			return
		}
		if rating > bestRating || (rating == bestRating && cluster < best) {
			best = cluster
			bestRating = rating
		}
	})
	return best
}
