package refinement

import (
	"math/rand"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gilchrisn/graph-partition-service/pkg/ds"
	"github.com/gilchrisn/graph-partition-service/pkg/gains"
	"github.com/gilchrisn/graph-partition-service/pkg/partition"
)

// FM runs localized FM-style search: a bounded search graph is grown around
// each seed, moves are simulated against a delta gain cache overlay, and the
// best prefix of the simulated sequence is committed. Searches run in
// parallel; a node is committed by at most one search per round and the
// losing searches count a conflict.
type FM struct {
	params Params
	logger zerolog.Logger
	rng    *rand.Rand

	dense     *gains.Dense
	locks     []uint8
	conflicts int64
}

// NewFM constructs the refiner.
func NewFM(params Params, logger zerolog.Logger) *FM {
	return &FM{
		params: params,
		logger: logger,
		rng:    rand.New(rand.NewSource(params.Seed)),
	}
}

func (r *FM) Initialize(p *partition.Partition) {
	r.dense = gains.NewDense(p.Graph().N(), p.K())
	r.locks = make([]uint8, p.Graph().N())
	r.conflicts = 0
}

func (r *FM) Refine(p *partition.Partition, ctx *partition.Context) (bool, error) {
	initialCut := partition.EdgeCut(p)
	cut := initialCut

	for round := 0; round < r.params.FMRounds; round++ {
		r.dense.Initialize(p)
		seeds := r.findSeedNodes(p)
		if len(seeds) == 0 {
			break
		}
		r.rng.Shuffle(len(seeds), func(i, j int) { seeds[i], seeds[j] = seeds[j], seeds[i] })

		// Parallel phase: simulate all searches against the frozen partition
		// of this round. Nothing is committed yet, so the searches are
		// independent of scheduling.
		prefixes := make([][]fmMove, len(seeds))
		var next int64 = -1
		var g errgroup.Group
		workers := r.params.Workers
		if workers <= 0 || workers > len(seeds) {
			workers = len(seeds)
		}
		for w := 0; w < workers; w++ {
			g.Go(func() error {
				search := newFMSearch(p, ctx, r)
				for {
					i := int(atomic.AddInt64(&next, 1))
					if i >= len(seeds) {
						return nil
					}
					prefixes[i] = search.run(seeds[i])
				}
			})
		}
		g.Wait()

		// Commit phase: apply the best prefixes in seed order. Moves whose
		// node was already taken by an earlier search, or whose source block
		// changed underneath them, are conflicts.
		for i := range r.locks {
			r.locks[i] = 0
		}
		for _, moves := range prefixes {
			for _, mv := range moves {
				if r.locks[mv.node] != 0 || p.Block(mv.node) != mv.from {
					r.conflicts++
					continue
				}
				w := p.Graph().NodeWeight(mv.node)
				if p.BlockWeight(mv.to)+w > ctx.MaxBlockWeight(mv.to) {
					r.conflicts++
					continue
				}
				r.locks[mv.node] = 1
				p.SetBlock(mv.node, mv.to)
			}
		}

		newCut := partition.EdgeCut(p)
		r.logger.Debug().
			Int("round", round).
			Int("seeds", len(seeds)).
			Int64("cut", newCut).
			Int64("conflicts", r.conflicts).
			Msg("FM round")
		if newCut >= cut {
			break
		}
		cut = newCut
	}
	return cut < initialCut, nil
}

// findSeedNodes collects the border nodes of the partition.
func (r *FM) findSeedNodes(p *partition.Partition) []int {
	var seeds []int
	for u := 0; u < p.Graph().N(); u++ {
		if r.dense.IsBorderNode(u) {
			seeds = append(seeds, u)
		}
	}
	return seeds
}

type fmMove struct {
	node     int
	from, to int
	gain     int64
}

// fmSearch is one worker's reusable search state.
type fmSearch struct {
	p   *partition.Partition
	ctx *partition.Context
	fm  *FM

	queue       *ds.AddressableMaxHeap
	inSearch    *ds.Marker
	moved       *ds.Marker
	virtual     map[int]int
	weightDelta []int64
	blocks      *ds.RatingMap
	moves       []fmMove
	searchSize  int
}

func newFMSearch(p *partition.Partition, ctx *partition.Context, fm *FM) *fmSearch {
	n := p.Graph().N()
	return &fmSearch{
		p:           p,
		ctx:         ctx,
		fm:          fm,
		queue:       ds.NewAddressableMaxHeap(n),
		inSearch:    ds.NewMarker(n),
		moved:       ds.NewMarker(n),
		virtual:     make(map[int]int),
		weightDelta: make([]int64, p.K()),
		blocks:      ds.NewRatingMap(p.K()),
	}
}

// run grows a search graph around seed, simulates the move sequence, and
// returns the best prefix for the commit phase.
func (s *fmSearch) run(seed int) []fmMove {
	s.reset()
	delta := gains.NewDelta(s.fm.dense, s.p)

	// Grow the search graph breadth-first around the seed.
	frontier := []int{seed}
	s.inSearch.Mark(seed)
	s.searchSize = 1
	for len(frontier) > 0 && s.searchSize < s.fm.params.FMMaxSearchNodes {
		u := frontier[0]
		frontier = frontier[1:]
		s.p.Graph().Neighbors(u, func(e, v int) bool {
			if s.searchSize >= s.fm.params.FMMaxSearchNodes {
				return false
			}
			if s.inSearch.Mark(v) {
				frontier = append(frontier, v)
				s.searchSize++
			}
			return true
		})
	}

	// Simulate: repeatedly apply the best available move.
	s.pushCandidate(seed, delta)
	var cumulative, bestCumulative int64
	bestPrefix := 0

	for !s.queue.Empty() {
		u := s.queue.Pop()
		if s.moved.Marked(u) {
			continue
		}
		target, gain, ok := s.bestTarget(u, delta)
		if !ok {
			continue
		}

		from := s.virtualBlock(u)
		delta.Move(u, from, target)
		s.virtual[u] = target
		s.moved.Mark(u)
		w := s.p.Graph().NodeWeight(u)
		s.weightDelta[from] -= w
		s.weightDelta[target] += w
		s.moves = append(s.moves, fmMove{node: u, from: from, to: target, gain: gain})

		cumulative += gain
		if cumulative > bestCumulative {
			bestCumulative = cumulative
			bestPrefix = len(s.moves)
		}

		s.p.Graph().Neighbors(u, func(e, v int) bool {
			if s.inSearch.Marked(v) && !s.moved.Marked(v) {
				s.pushCandidate(v, delta)
			}
			return true
		})
	}

	// The tail past the best prefix is reverted by simply not returning it.
	return append([]fmMove(nil), s.moves[:bestPrefix]...)
}

func (s *fmSearch) reset() {
	s.queue.Clear()
	s.inSearch.Reset()
	s.moved.Reset()
	clear(s.virtual)
	for b := range s.weightDelta {
		s.weightDelta[b] = 0
	}
	s.moves = s.moves[:0]
}

func (s *fmSearch) virtualBlock(u int) int {
	if b, ok := s.virtual[u]; ok {
		return b
	}
	return s.p.Block(u)
}

// pushCandidate inserts or refreshes u in the queue, keyed by its current
// best gain.
func (s *fmSearch) pushCandidate(u int, delta *gains.Delta) {
	_, gain, ok := s.bestTarget(u, delta)
	if !ok {
		return
	}
	if s.queue.Contains(u) {
		s.queue.Update(u, gain)
	} else {
		s.queue.Push(u, gain)
	}
}

// bestTarget finds u's best feasible target under the overlay and the
// search-local weight deltas.
func (s *fmSearch) bestTarget(u int, delta *gains.Delta) (int, int64, bool) {
	g := s.p.Graph()
	from := s.virtualBlock(u)
	w := g.NodeWeight(u)

	s.blocks.Clear()
	g.Neighbors(u, func(e, v int) bool {
		s.blocks.Add(s.virtualBlock(v), 1)
		return true
	})

	best := -1
	var bestGain int64
	s.blocks.Entries(func(b int, _ int64) {
		if b == from {
			return
		}
		if s.p.BlockWeight(b)+s.weightDelta[b]+w > s.ctx.MaxBlockWeight(b) {
			return
		}
		gain := delta.Gain(u, from, b)
		if best == -1 || gain > bestGain || (gain == bestGain && b < best) {
			best = b
			bestGain = gain
		}
	})
	if best == -1 {
		return 0, 0, false
	}
	return best, bestGain, true
}
