package refinement

import "github.com/gilchrisn/graph-partition-service/pkg/partition"

// Snapshooter tracks the best partition seen during an iterative refiner so
// a fruitless tail of iterations can be rolled back.
type Snapshooter struct {
	blocks  []int
	weights []int64
	bestCut int64
}

// Init records the current partition as the best snapshot.
func (s *Snapshooter) Init(p *partition.Partition, cut int64) {
	s.blocks = append(s.blocks[:0], p.Blocks()...)
	s.weights = s.weights[:0]
	for b := 0; b < p.K(); b++ {
		s.weights = append(s.weights, p.BlockWeight(b))
	}
	s.bestCut = cut
}

// BestCut returns the cut of the stored snapshot.
func (s *Snapshooter) BestCut() int64 { return s.bestCut }

// Update stores the partition when its cut beats the snapshot. Returns true
// when the snapshot was replaced.
func (s *Snapshooter) Update(p *partition.Partition, cut int64) bool {
	if cut >= s.bestCut {
		return false
	}
	s.Init(p, cut)
	return true
}

// Rollback restores the snapshot into p.
func (s *Snapshooter) Rollback(p *partition.Partition) {
	copy(p.Blocks(), s.blocks)
	p.RecomputeBlockWeights()
}
