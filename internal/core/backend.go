package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/sinan/internal/table"
)

// Backend loads source records already restricted to the requested ages
// and columns. Implementations must return rows in file-name order, then
// in file row order, so that every backend yields the same table.
type Backend interface {
	Name() string
	LoadFiltered(ctx context.Context, q Query) (*table.Table, *LoadReport, error)
}

// Query is the pushdown request for a backend.
type Query struct {
	// AgeCodes restricts NU_IDADE_N to these raw codes. Empty means no
	// age restriction.
	AgeCodes []string

	Columns ColumnSet
}

// SkippedFile is a source file that could not be read.
type SkippedFile struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// LoadReport describes what a load read and skipped.
type LoadReport struct {
	Backend      string        `json:"backend"`
	Files        []string      `json:"files"`
	Skipped      []SkippedFile `json:"skipped,omitempty"`
	RowsRead     int           `json:"rows_read"`
	RowsReturned int           `json:"rows_returned"`
}

func (r *LoadReport) skip(path string, err error) {
	r.Skipped = append(r.Skipped, SkippedFile{Path: path, Err: err.Error()})
}

// Warnings renders skipped files as human-readable warnings.
func (r *LoadReport) Warnings() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		out = append(out, fmt.Sprintf("skipped %s: %s", filepath.Base(s.Path), s.Err))
	}
	return out
}

// sourceFiles lists the *.parquet files of dir in ascending name order.
func sourceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSources, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".parquet") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no .parquet files in %s", ErrNoSources, dir)
	}
	return files, nil
}
