// Package kpio reads and writes the external graph formats (METIS text,
// ParHIP binary) and the debug hierarchy dump.
package kpio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gilchrisn/graph-partition-service/pkg/graph"
)

// ReadMETIS parses a graph in METIS text format: a header "n m [fmt
// [ncon]]" followed by one adjacency line per node with 1-based neighbor
// ids. fmt selects node and edge weights; comment lines start with '%'.
// Asymmetric adjacency is rejected.
func ReadMETIS(path string) (*graph.CSR, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening METIS file")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	header, err := nextLine(scanner, true)
	if err != nil {
		return nil, errors.Wrap(err, "reading METIS header")
	}
	fields := strings.Fields(header)
	if len(fields) < 2 || len(fields) > 4 {
		return nil, errors.Errorf("malformed METIS header %q", header)
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, errors.Wrapf(err, "parsing node count %q", fields[0])
	}
	m, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errors.Wrapf(err, "parsing edge count %q", fields[1])
	}

	hasNodeWeights := false
	hasEdgeWeights := false
	ncon := 0
	if len(fields) >= 3 {
		format := fields[2]
		if len(format) > 3 {
			return nil, errors.Errorf("malformed METIS format field %q", format)
		}
		hasEdgeWeights = strings.HasSuffix(format, "1")
		hasNodeWeights = len(format) >= 2 && format[len(format)-2] == '1'
	}
	if len(fields) == 4 {
		ncon, err = strconv.Atoi(fields[3])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing ncon %q", fields[3])
		}
	}
	if ncon > 1 {
		return nil, errors.Errorf("multi-constraint graphs are not supported (ncon=%d)", ncon)
	}
	if hasNodeWeights && ncon == 0 {
		ncon = 1
	}

	offsets := make([]int, n+1)
	var edges []int
	var edgeWeights []int64
	var nodeWeights []int64
	if hasNodeWeights {
		nodeWeights = make([]int64, n)
	}
	if hasEdgeWeights {
		edgeWeights = make([]int64, 0, 2*m)
	}

	for u := 0; u < n; u++ {
		line, err := nextLine(scanner, false)
		if err != nil {
			return nil, errors.Wrapf(err, "reading adjacency of node %d", u+1)
		}
		tokens := strings.Fields(line)
		i := 0

		if hasNodeWeights {
			if len(tokens) < ncon {
				return nil, errors.Errorf("node %d: missing node weight", u+1)
			}
			w, err := strconv.ParseInt(tokens[0], 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "node %d: parsing node weight", u+1)
			}
			if w < 1 {
				return nil, errors.Errorf("node %d: node weight %d out of range", u+1, w)
			}
			nodeWeights[u] = w
			i = ncon
		}

		for i < len(tokens) {
			v, err := strconv.Atoi(tokens[i])
			if err != nil {
				return nil, errors.Wrapf(err, "node %d: parsing neighbor", u+1)
			}
			if v < 1 || v > n {
				return nil, errors.Errorf("node %d: neighbor %d out of range", u+1, v)
			}
			edges = append(edges, v-1)
			i++

			if hasEdgeWeights {
				if i >= len(tokens) {
					return nil, errors.Errorf("node %d: missing edge weight", u+1)
				}
				w, err := strconv.ParseInt(tokens[i], 10, 64)
				if err != nil {
					return nil, errors.Wrapf(err, "node %d: parsing edge weight", u+1)
				}
				if w < 1 {
					return nil, errors.Errorf("node %d: edge weight %d out of range", u+1, w)
				}
				edgeWeights = append(edgeWeights, w)
				i++
			}
		}
		offsets[u+1] = len(edges)
	}

	if len(edges) != 2*m {
		return nil, errors.Errorf("METIS header promises %d edges but the file lists %d half-edges", m, len(edges))
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

// nextLine returns the next non-comment line. An empty line is a valid
// adjacency list (an isolated node), so empty lines are only skipped while
// looking for the header.
func nextLine(scanner *bufio.Scanner, skipEmpty bool) (string, error) {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "%") || (skipEmpty && line == "") {
			continue
		}
		return line, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("unexpected end of file")
}

// WriteMETIS writes a graph in METIS text format.
func WriteMETIS(path string, g graph.Graph) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating METIS file")
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	defer w.Flush()

	hasNodeWeights := g.MaxNodeWeight() != 1
	hasEdgeWeights := g.TotalEdgeWeight() != int64(g.M())

	format := ""
	if hasNodeWeights || hasEdgeWeights {
		nw, ew := "0", "0"
		if hasNodeWeights {
			nw = "1"
		}
		if hasEdgeWeights {
			ew = "1"
		}
		format = " " + nw + ew
	}
	fmt.Fprintf(w, "%d %d%s\n", g.N(), g.M()/2, format)

	for u := 0; u < g.N(); u++ {
		first := true
		if hasNodeWeights {
			fmt.Fprintf(w, "%d", g.NodeWeight(u))
			first = false
		}
		g.Neighbors(u, func(e, v int) bool {
			if !first {
				fmt.Fprint(w, " ")
			}
			first = false
			fmt.Fprintf(w, "%d", v+1)
			if hasEdgeWeights {
				fmt.Fprintf(w, " %d", g.EdgeWeight(e))
			}
			return true
		})
		fmt.Fprintln(w)
	}
	return nil
}

// WritePartition writes one block id per line, in node order.
func WritePartition(path string, blocks []int) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating partition file")
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	defer w.Flush()
	for _, b := range blocks {
		fmt.Fprintln(w, b)
	}
	return nil
}
