package graph

import "math/bits"

// MaxDegreeBuckets bounds the number of power-of-two degree buckets.
const MaxDegreeBuckets = 64

// Graph is the read contract shared by the CSR and the compressed
// representation. Node ids are 0..N()-1. Edge ids are 0..M()-1 and identify
// directed half-edges, so every undirected edge contributes two ids and
// the degree sum equals M().
type Graph interface {
	N() int
	M() int

	Degree(u int) int
	MaxDegree() int

	NodeWeight(u int) int64
	EdgeWeight(e int) int64
	TotalNodeWeight() int64
	TotalEdgeWeight() int64
	MaxNodeWeight() int64

	// Neighbors calls fn for each half-edge (e, v) leaving u, in adjacency
	// order, until fn returns false.
	Neighbors(u int, fn func(e, v int) bool)

	// Sorted reports whether the node ordering groups nodes by degree
	// bucket, with isolated nodes at the end.
	Sorted() bool
	NumBuckets() int
	BucketSize(bucket int) int
	FirstNodeInBucket(bucket int) int
}

// DegreeBucket maps a degree to its power-of-two bucket: bucket 0 holds
// isolated nodes, bucket b holds degrees in [2^(b-1), 2^b).
func DegreeBucket(degree int) int {
	if degree == 0 {
		return 0
	}
	return bits.Len(uint(degree))
}

// bucketOrderKey is the sort key of the degree-bucket arrangement: buckets
// ascending, isolated nodes last.
func bucketOrderKey(degree int) int {
	if degree == 0 {
		return MaxDegreeBuckets
	}
	return DegreeBucket(degree)
}
