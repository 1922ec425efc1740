package kpio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteHierarchyLevel writes the debug sidecar of one coarsening level: the
// node count and block count on the first line, then the cluster id of each
// node.
func WriteHierarchyLevel(dir string, level, n, k int, clusters []int) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating hierarchy dump directory")
	}

	path := filepath.Join(dir, fmt.Sprintf("level_%03d.hierarchy", level))
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating hierarchy dump")
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	defer w.Flush()

	fmt.Fprintf(w, "%d %d\n", n, k)
	for _, c := range clusters {
		fmt.Fprintln(w, c)
	}
	return nil
}
