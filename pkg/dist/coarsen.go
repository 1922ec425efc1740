package dist

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/graph-partition-service/pkg/coarsening"
	"github.com/gilchrisn/graph-partition-service/pkg/ds"
)

// Coarsener builds the distributed hierarchy. Local clustering (intra-rank
// edges only) runs first; once it stops making progress the coarsener
// switches to global clustering over ghosts. The switch is sticky: local
// clustering is never retried.
type Coarsener struct {
	c      *Comm
	input  *Graph
	params coarsening.Params
	logger zerolog.Logger

	maxLocalLevels int

	hierarchy []*Graph
	mappings  [][]int64 // owned fine node -> coarse global id

	localConverged bool
	converged      bool
}

// NewCoarsener creates a coarsener rooted at the distributed input graph.
func NewCoarsener(c *Comm, input *Graph, params coarsening.Params, maxLocalLevels int, logger zerolog.Logger) *Coarsener {
	return &Coarsener{
		c:              c,
		input:          input,
		params:         params,
		logger:         logger,
		maxLocalLevels: maxLocalLevels,
	}
}

func (co *Coarsener) Level() int { return len(co.hierarchy) }

func (co *Coarsener) Coarsest() *Graph {
	if len(co.hierarchy) == 0 {
		return co.input
	}
	return co.hierarchy[len(co.hierarchy)-1]
}

func (co *Coarsener) Converged() bool { return co.converged }

// MaxClusterWeight derives the cluster weight cap from the global node
// count and total weight of the current coarsest graph.
func (co *Coarsener) MaxClusterWeight() int64 {
	g := co.Coarsest()
	totalWeight := co.c.AllreduceSumInt64([]int64{g.TotalNodeWeight()})[0]
	return coarsening.ComputeMaxClusterWeight(g.GlobalN(), totalWeight, co.params)
}

// CoarsenOnce contracts the coarsest graph once, trying local clustering
// before global clustering. Returns the coarsest graph, unchanged when
// coarsening has converged.
func (co *Coarsener) CoarsenOnce(maxClusterWeight int64) (*Graph, error) {
	cur := co.Coarsest()
	if co.converged || co.Level() >= co.params.MaxLevels {
		return cur, nil
	}
	if co.Level() >= co.maxLocalLevels {
		co.localConverged = true
	}

	if !co.localConverged {
		coarse, err := co.coarsenWith(cur, co.localClustering(cur, maxClusterWeight))
		if err != nil {
			return nil, err
		}
		if coarse != nil {
			return coarse, nil
		}
		co.localConverged = true
		// Fall through to global clustering right away.
	}

	coarse, err := co.coarsenWith(cur, co.globalClustering(cur, maxClusterWeight))
	if err != nil {
		return nil, err
	}
	if coarse == nil {
		co.converged = true
		return cur, nil
	}
	return coarse, nil
}

// coarsenWith contracts cur under the given leader assignment. Returns nil
// when the clustering made no progress or the shrinkage is insufficient.
func (co *Coarsener) coarsenWith(cur *Graph, leaders []int64) (*Graph, error) {
	if leaders == nil {
		return nil, nil
	}

	coarse, mapping, err := co.contract(cur, leaders)
	if err != nil {
		return nil, err
	}

	ratio := float64(coarse.GlobalN()) / float64(cur.GlobalN())
	if ratio >= co.params.ConvergenceThreshold {
		if co.c.Rank() == 0 {
			co.logger.Debug().
				Int("level", co.Level()).
				Float64("ratio", ratio).
				Msg("Distributed coarsening: insufficient shrinkage")
		}
		return nil, nil
	}

	co.hierarchy = append(co.hierarchy, coarse)
	co.mappings = append(co.mappings, mapping)
	if co.c.Rank() == 0 {
		co.logger.Debug().
			Int("level", co.Level()).
			Int("fine_nodes", cur.GlobalN()).
			Int("coarse_nodes", coarse.GlobalN()).
			Msg("Distributed coarsening: contracted level")
	}
	return coarse, nil
}

// localClustering clusters owned nodes over intra-rank edges only. The
// returned assignment maps every local node (owned and ghost) to a global
// leader id; ghosts always lead themselves. Returns nil when no rank merged
// anything.
func (co *Coarsener) localClustering(g *Graph, maxClusterWeight int64) []int64 {
	clusterer := coarsening.NewClusterer(co.params.MaxClusterIterations, 1, co.params.Seed+int64(co.Level())+int64(co.c.Rank()))

	// Induced subgraph over owned nodes: drop ghost edges.
	offsets := make([]int, g.NLocal()+1)
	var edges []int
	var edgeWeights []int64
	for u := 0; u < g.NLocal(); u++ {
		g.Neighbors(u, func(e, v int) bool {
			if g.IsOwned(v) {
				edges = append(edges, v)
				edgeWeights = append(edgeWeights, g.EdgeWeight(e))
			}
			return true
		})
		offsets[u+1] = len(edges)
	}
	nodeWeights := make([]int64, g.NLocal())
	for u := range nodeWeights {
		nodeWeights[u] = g.NodeWeight(u)
	}

	local := localCSR(offsets, edges, nodeWeights, edgeWeights)
	clusters := clusterer.Cluster(local, maxClusterWeight)

	merged := int64(0)
	if clusters != nil {
		merged = 1
	}
	if co.c.AllreduceSumInt64([]int64{merged})[0] == 0 {
		return nil
	}

	leaders := make([]int64, g.TotalN())
	for u := 0; u < g.NLocal(); u++ {
		leader := u
		if clusters != nil {
			leader = clusters[u]
		}
		leaders[u] = g.GlobalID(leader)
	}
	for ghost := g.NLocal(); ghost < g.TotalN(); ghost++ {
		leaders[ghost] = g.GlobalID(ghost)
	}
	// Ghost leaders must reflect the remote assignment before contraction,
	// or cross-rank edges would reference leaders that own no coarse node.
	co.syncGhostLeaders(g, leaders, nil)
	return leaders
}

// globalClustering clusters over all edges, including ghosts. Cluster ids
// are global node ids; ghost cluster labels are exchanged after every
// round. Cluster weights are local estimates, which keeps the cap a
// heuristic rather than a guarantee, as in the shared-nothing original.
func (co *Coarsener) globalClustering(g *Graph, maxClusterWeight int64) []int64 {
	leaders := make([]int64, g.TotalN())
	for u := 0; u < g.TotalN(); u++ {
		leaders[u] = g.GlobalID(u)
	}

	weights := make(map[int64]int64, g.TotalN())
	for u := 0; u < g.TotalN(); u++ {
		weights[g.GlobalID(u)] = g.NodeWeight(u)
	}

	ratings := make(map[int64]int64)
	merged := false

	for round := 0; round < co.params.MaxClusterIterations; round++ {
		moves := 0
		for u := 0; u < g.NLocal(); u++ {
			cur := leaders[u]
			w := g.NodeWeight(u)

			clear(ratings)
			g.Neighbors(u, func(e, v int) bool {
				ratings[leaders[v]] += g.EdgeWeight(e)
				return true
			})

			best := cur
			bestRating := ratings[cur]
			for leader, rating := range ratings {
				if leader == cur {
					continue
				}
				if weights[leader]+w > maxClusterWeight {
					continue
				}
				if rating > bestRating || (rating == bestRating && leader < best) {
					best = leader
					bestRating = rating
				}
			}
			if best != cur {
				weights[cur] -= w
				weights[best] += w
				leaders[u] = best
				moves++
				merged = true
			}
		}

		co.syncGhostLeaders(g, leaders, weights)
		if co.c.AllreduceSumInt64([]int64{int64(moves)})[0] == 0 {
			break
		}
	}

	anyMerged := int64(0)
	if merged {
		anyMerged = 1
	}
	if co.c.AllreduceSumInt64([]int64{anyMerged})[0] == 0 {
		return nil
	}
	return leaders
}

type leaderMessage struct {
	Node   int64
	Leader int64
}

// syncGhostLeaders exchanges the cluster leaders of boundary nodes.
func (co *Coarsener) syncGhostLeaders(g *Graph, leaders []int64, weights map[int64]int64) {
	out := make([][]leaderMessage, co.c.Size())
	seen := make([]int, co.c.Size())
	for i := range seen {
		seen[i] = -1
	}
	for u := 0; u < g.NLocal(); u++ {
		for i := range seen {
			seen[i] = -1
		}
		g.Neighbors(u, func(e, v int) bool {
			if !g.IsOwned(v) {
				owner := g.GhostOwner(v)
				if seen[owner] != u {
					seen[owner] = u
					out[owner] = append(out[owner], leaderMessage{Node: g.GlobalID(u), Leader: leaders[u]})
				}
			}
			return true
		})
	}

	in := SparseAllToAll(co.c, out)
	for _, msgs := range in {
		for _, msg := range msgs {
			if local, ok := g.LocalID(msg.Node); ok && !g.IsOwned(local) {
				old := leaders[local]
				if old != msg.Leader {
					if weights != nil {
						w := g.NodeWeight(local)
						weights[old] -= w
						weights[msg.Leader] += w
					}
					leaders[local] = msg.Leader
				}
			}
		}
	}
}

type weightContribution struct {
	Leader int64
	Weight int64
}

type edgeContribution struct {
	LeaderU int64
	LeaderV int64
	Weight  int64
}

type idQuery struct {
	Leader int64
}

type idReply struct {
	Leader int64
	Coarse int64
	Weight int64
}

// contract builds the coarse distributed graph under a leader assignment.
// Every fine node's weight and every inter-cluster edge is shipped to the
// rank owning the edge's source leader; coarse nodes are numbered by a scan
// over per-rank leader counts.
func (co *Coarsener) contract(g *Graph, leaders []int64) (*Graph, []int64, error) {
	c := co.c
	size := c.Size()

	// Ship node weights and edges to the leader owners.
	weightOut := make([][]weightContribution, size)
	edgeOut := make([][]edgeContribution, size)
	for u := 0; u < g.NLocal(); u++ {
		leaderU := leaders[u]
		owner := g.OwnerOf(leaderU)
		weightOut[owner] = append(weightOut[owner], weightContribution{Leader: leaderU, Weight: g.NodeWeight(u)})

		g.Neighbors(u, func(e, v int) bool {
			leaderV := leaders[v]
			if leaderU != leaderV {
				edgeOut[owner] = append(edgeOut[owner], edgeContribution{
					LeaderU: leaderU,
					LeaderV: leaderV,
					Weight:  g.EdgeWeight(e),
				})
			}
			return true
		})
	}

	weightIn := SparseAllToAll(c, weightOut)
	edgeIn := SparseAllToAll(c, edgeOut)

	// Owned coarse nodes: the distinct leaders this rank received, sorted.
	nodeWeightOf := make(map[int64]int64)
	for _, msgs := range weightIn {
		for _, msg := range msgs {
			nodeWeightOf[msg.Leader] += msg.Weight
		}
	}
	adjacency := make(map[int64]map[int64]int64)
	for _, msgs := range edgeIn {
		for _, msg := range msgs {
			row := adjacency[msg.LeaderU]
			if row == nil {
				row = make(map[int64]int64)
				adjacency[msg.LeaderU] = row
			}
			row[msg.LeaderV] += msg.Weight
		}
	}

	ownedLeaders := make([]int64, 0, len(nodeWeightOf))
	for leader := range nodeWeightOf {
		ownedLeaders = append(ownedLeaders, leader)
	}
	sort.Slice(ownedLeaders, func(i, j int) bool { return ownedLeaders[i] < ownedLeaders[j] })

	leaderToLocal := make(map[int64]int, len(ownedLeaders))
	for i, leader := range ownedLeaders {
		leaderToLocal[leader] = i
	}

	counts := AllGather(c, int64(len(ownedLeaders)))
	coarseDistribution := make([]int64, size+1)
	for r := 0; r < size; r++ {
		coarseDistribution[r+1] = coarseDistribution[r] + counts[r]
	}

	// Resolve the coarse global ids (and weights) of referenced leaders.
	referenced := make(map[int64]bool)
	for u := 0; u < g.NLocal(); u++ {
		referenced[leaders[u]] = true
	}
	for _, row := range adjacency {
		for leaderV := range row {
			referenced[leaderV] = true
		}
	}

	queryOut := make([][]idQuery, size)
	for leader := range referenced {
		owner := g.OwnerOf(leader)
		queryOut[owner] = append(queryOut[owner], idQuery{Leader: leader})
	}
	for r := range queryOut {
		sort.Slice(queryOut[r], func(i, j int) bool { return queryOut[r][i].Leader < queryOut[r][j].Leader })
	}
	queryIn := SparseAllToAll(c, queryOut)

	replyOut := make([][]idReply, size)
	for src, queries := range queryIn {
		for _, q := range queries {
			local, ok := leaderToLocal[q.Leader]
			if !ok {
				// The leader attracted no weight on this rank; it cannot be
				// a coarse node. This only happens for stale references.
				continue
			}
			replyOut[src] = append(replyOut[src], idReply{
				Leader: q.Leader,
				Coarse: coarseDistribution[c.Rank()] + int64(local),
				Weight: nodeWeightOf[q.Leader],
			})
		}
	}
	replyIn := SparseAllToAll(c, replyOut)

	coarseIDOf := make(map[int64]int64)
	coarseWeightOf := make(map[int64]int64)
	for _, replies := range replyIn {
		for _, reply := range replies {
			coarseIDOf[reply.Leader] = reply.Coarse
			coarseWeightOf[reply.Coarse] = reply.Weight
		}
	}

	// Assemble the coarse distributed graph.
	coarse := &Graph{
		rank:             c.Rank(),
		size:             size,
		nodeDistribution: coarseDistribution,
		offsets:          make([]int, len(ownedLeaders)+1),
		globalToGhost:    make(map[int64]int),
	}

	for i, leader := range ownedLeaders {
		row := adjacency[leader]
		neighbors := make([]int64, 0, len(row))
		for leaderV := range row {
			neighbors = append(neighbors, leaderV)
		}
		sort.Slice(neighbors, func(a, b int) bool { return coarseIDOf[neighbors[a]] < coarseIDOf[neighbors[b]] })

		for _, leaderV := range neighbors {
			coarseGID, ok := coarseIDOf[leaderV]
			if !ok {
				return nil, nil, fmt.Errorf("unresolved coarse id for leader %d", leaderV)
			}
			coarse.edges = append(coarse.edges, coarse.localizeNeighbor(coarseGID))
			coarse.edgeWeights = append(coarse.edgeWeights, row[leaderV])
		}
		coarse.offsets[i+1] = len(coarse.edges)
	}

	coarse.nodeWeights = make([]int64, len(ownedLeaders)+len(coarse.ghostToGlobal))
	for i, leader := range ownedLeaders {
		coarse.nodeWeights[i] = nodeWeightOf[leader]
	}
	for i, gid := range coarse.ghostToGlobal {
		coarse.nodeWeights[len(ownedLeaders)+i] = coarseWeightOf[gid]
	}

	localM := AllGather(c, int64(len(coarse.edges)))
	coarse.edgeDistribution = make([]int64, size+1)
	for r := 0; r < size; r++ {
		coarse.edgeDistribution[r+1] = coarse.edgeDistribution[r] + localM[r]
	}

	// Mapping: owned fine node -> coarse global id of its leader.
	mapping := make([]int64, g.NLocal())
	for u := 0; u < g.NLocal(); u++ {
		coarseGID, ok := coarseIDOf[leaders[u]]
		if !ok {
			return nil, nil, fmt.Errorf("unresolved coarse id for node %d", g.GlobalID(u))
		}
		mapping[u] = coarseGID
	}
	return coarse, mapping, nil
}

type blockQuery struct {
	Node int64
}

type blockReply struct {
	Node  int64
	Block int32
}

// UncoarsenOnce projects the coarse partition one level down and pops the
// top hierarchy entry. Each rank asks the owners of its mapped coarse nodes
// for their blocks.
func (co *Coarsener) UncoarsenOnce(p *Partition) (*Partition, error) {
	if len(co.hierarchy) == 0 {
		return nil, fmt.Errorf("uncoarsen called on an empty hierarchy")
	}
	coarse := co.hierarchy[len(co.hierarchy)-1]
	if p.Graph() != coarse {
		return nil, fmt.Errorf("partition does not belong to the coarsest graph")
	}

	mapping := co.mappings[len(co.mappings)-1]
	co.hierarchy = co.hierarchy[:len(co.hierarchy)-1]
	co.mappings = co.mappings[:len(co.mappings)-1]
	finer := co.Coarsest()

	c := co.c
	size := c.Size()

	queryOut := make([][]blockQuery, size)
	marker := ds.NewMarker(coarse.GlobalN())
	for _, coarseGID := range mapping {
		if marker.Mark(int(coarseGID)) {
			owner := coarse.OwnerOf(coarseGID)
			queryOut[owner] = append(queryOut[owner], blockQuery{Node: coarseGID})
		}
	}
	queryIn := SparseAllToAll(c, queryOut)

	replyOut := make([][]blockReply, size)
	for src, queries := range queryIn {
		for _, q := range queries {
			local, ok := coarse.LocalID(q.Node)
			if !ok || !coarse.IsOwned(local) {
				return nil, fmt.Errorf("block query for non-owned coarse node %d", q.Node)
			}
			replyOut[src] = append(replyOut[src], blockReply{Node: q.Node, Block: int32(p.Block(local))})
		}
	}
	replyIn := SparseAllToAll(c, replyOut)

	blockOf := make(map[int64]int)
	for _, replies := range replyIn {
		for _, reply := range replies {
			blockOf[reply.Node] = int(reply.Block)
		}
	}

	fineBlocks := make([]int, finer.NLocal())
	for u := range fineBlocks {
		fineBlocks[u] = blockOf[mapping[u]]
	}
	return NewPartition(c, finer, p.K(), fineBlocks), nil
}

// localCSR builds a graph.CSR-compatible view without the symmetry checks
// of the public builder; the induced owned subgraph is symmetric by
// construction.
func localCSR(offsets []int, edges []int, nodeWeights, edgeWeights []int64) *localGraph {
	return &localGraph{
		offsets:     offsets,
		edges:       edges,
		nodeWeights: nodeWeights,
		edgeWeights: edgeWeights,
	}
}
