// Package file loads metadata records from the local filesystem and
// discovers the input files for a run.
package file

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	solrbulk "github.com/metsis/solrbulk"
)

// Loader reads one record per file. Locations are plain paths.
type Loader struct{}

var _ solrbulk.RecordLoader = Loader{}

// Load returns the file contents.
func (Loader) Load(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(location)
	return data, errors.Wrapf(err, "reading %s", location)
}

// FindXML returns every .xml file under root, recursively. The result
// is sorted so chunk boundaries are stable between runs. A root that is
// itself a file is returned as-is.
func FindXML(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "statting %s", root)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), "**/*.xml")
	if err != nil {
		return nil, errors.Wrapf(err, "globbing %s", root)
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(root, m))
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadList reads locations from a list file, one per line. Blank lines
// and lines starting with # are skipped.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var locations []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		locations = append(locations, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return locations, nil
}
