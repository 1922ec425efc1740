package kpio

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

// ParHIP binary layout, all values little-endian uint64: a magic word, a
// version word whose low bits flag the optional weight arrays, the node and
// half-edge counts, then the CSR arrays verbatim: n+1 offsets, m adjacency
// entries, and the flagged weight arrays appended.
const (
	parhipMagic = 0x70617268 // "parh"

	parhipHasNodeWeights = 1 << 0
	parhipHasEdgeWeights = 1 << 1
)

// ReadParHIP reads a graph in ParHIP binary format.
func ReadParHIP(path string) (*graph.CSR, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening ParHIP file")
	}
	defer file.Close()

	r := bufio.NewReader(file)
	header := make([]uint64, 4)
	if err := binary.Read(r, binary.LittleEndian, header); err != nil {
		return nil, errors.Wrap(err, "reading ParHIP header")
	}
	if header[0] != parhipMagic {
		return nil, errors.Errorf("not a ParHIP file: magic %#x", header[0])
	}
	version := header[1]
	n := int(header[2])
	m := int(header[3])
	if n < 0 || m < 0 {
		return nil, errors.Errorf("ParHIP header out of range: n=%d m=%d", n, m)
	}

	rawOffsets := make([]uint64, n+1)
	if err := binary.Read(r, binary.LittleEndian, rawOffsets); err != nil {
		return nil, errors.Wrap(err, "reading node offsets")
	}
	rawEdges := make([]uint64, m)
	if err := binary.Read(r, binary.LittleEndian, rawEdges); err != nil {
		return nil, errors.Wrap(err, "reading adjacency")
	}

	offsets := make([]int, n+1)
	for i, o := range rawOffsets {
		offsets[i] = int(o)
	}
	edges := make([]int, m)
	for i, v := range rawEdges {
		edges[i] = int(v)
	}

	var nodeWeights []int64
	if version&parhipHasNodeWeights != 0 {
		raw := make([]uint64, n)
		if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
			return nil, errors.Wrap(err, "reading node weights")
		}
		nodeWeights = make([]int64, n)
		for i, w := range raw {
			nodeWeights[i] = int64(w)
		}
	}

	var edgeWeights []int64
	if version&parhipHasEdgeWeights != 0 {
		raw := make([]uint64, m)
		if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
			return nil, errors.Wrap(err, "reading edge weights")
		}
		edgeWeights = make([]int64, m)
		for i, w := range raw {
			edgeWeights[i] = int64(w)
		}
	}

	g, err := graph.NewCSR(offsets, edges, nodeWeights, edgeWeights, false)
	if err != nil {
		return nil, errors.Wrap(err, "assembling graph")
	}
	if err := g.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating graph")
	}
	return g, nil
}

// WriteParHIP writes a graph in ParHIP binary format.
func WriteParHIP(path string, g graph.Graph) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating ParHIP file")
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	defer w.Flush()

	hasNodeWeights := g.MaxNodeWeight() != 1
	hasEdgeWeights := g.TotalEdgeWeight() != int64(g.M())

	var version uint64
	if hasNodeWeights {
		version |= parhipHasNodeWeights
	}
	if hasEdgeWeights {
		version |= parhipHasEdgeWeights
	}

	header := []uint64{parhipMagic, version, uint64(g.N()), uint64(g.M())}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return errors.Wrap(err, "writing ParHIP header")
	}

	offsets := make([]uint64, g.N()+1)
	edges := make([]uint64, 0, g.M())
	edgeWeights := make([]uint64, 0, g.M())
	for u := 0; u < g.N(); u++ {
		g.Neighbors(u, func(e, v int) bool {
			edges = append(edges, uint64(v))
			edgeWeights = append(edgeWeights, uint64(g.EdgeWeight(e)))
			return true
		})
		offsets[u+1] = uint64(len(edges))
	}

	if err := binary.Write(w, binary.LittleEndian, offsets); err != nil {
		return errors.Wrap(err, "writing node offsets")
	}
	if err := binary.Write(w, binary.LittleEndian, edges); err != nil {
		return errors.Wrap(err, "writing adjacency")
	}
	if hasNodeWeights {
		weights := make([]uint64, g.N())
		for u := range weights {
			weights[u] = uint64(g.NodeWeight(u))
		}
		if err := binary.Write(w, binary.LittleEndian, weights); err != nil {
			return errors.Wrap(err, "writing node weights")
		}
	}
	if hasEdgeWeights {
		if err := binary.Write(w, binary.LittleEndian, edgeWeights); err != nil {
			return errors.Wrap(err, "writing edge weights")
		}
	}
	return nil
}
