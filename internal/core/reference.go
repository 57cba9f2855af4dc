package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/JonMunkholm/sinan/internal/dictionary"
	"github.com/JonMunkholm/sinan/internal/logging"
	"github.com/JonMunkholm/sinan/internal/table"
)

// ReferenceBackendName identifies the in-memory backend.
const ReferenceBackendName = "reference"

func init() {
	RegisterBackend(BackendDefinition{
		Name: ReferenceBackendName,
		New: func(cfg BackendConfig) (Backend, error) {
			return NewReferenceProcessor(cfg), nil
		},
	})
}

// ReferenceProcessor materialises every source file in memory, then
// decodes and filters. It is the semantic reference the fast backend is
// checked against, and it owns decoding for both.
type ReferenceProcessor struct {
	sourceDir   string
	reg         *dictionary.Registry
	logger      *slog.Logger
	maxRows     int
	memoryLimit int64

	// heapAlloc is swapped in tests.
	heapAlloc func() uint64
}

// NewReferenceProcessor builds a reference processor from cfg.
func NewReferenceProcessor(cfg BackendConfig) *ReferenceProcessor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferenceProcessor{
		sourceDir:   cfg.SourceDir,
		reg:         cfg.Registry,
		logger:      logger,
		maxRows:     cfg.MaxRows,
		memoryLimit: cfg.MemoryLimit,
		heapAlloc: func() uint64 {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return m.HeapAlloc
		},
	}
}

// Name implements Backend.
func (p *ReferenceProcessor) Name() string {
	return ReferenceBackendName
}

// LoadRecords reads every source file and stacks them by column name.
// Unreadable files are skipped and reported; no readable file at all is
// ErrNoSources.
func (p *ReferenceProcessor) LoadRecords(ctx context.Context) (*table.Table, *LoadReport, error) {
	done := logging.Stage(p.logger, "load_records")

	files, err := sourceFiles(p.sourceDir)
	if err != nil {
		return nil, nil, err
	}

	report := &LoadReport{Backend: ReferenceBackendName}
	var parts []*table.Table
	rows := 0
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		t, err := table.ReadParquetFile(f)
		if err != nil {
			p.logger.Warn("skipping unreadable source file", "file", f, "error", err)
			report.skip(f, err)
			continue
		}
		parts = append(parts, t)
		report.Files = append(report.Files, f)
		rows += t.Len()

		if p.maxRows > 0 && rows > p.maxRows {
			return nil, nil, fmt.Errorf("%w: %d rows loaded, limit %d", ErrResourceExhausted, rows, p.maxRows)
		}
		if p.memoryLimit > 0 {
			if heap := p.heapAlloc(); heap > uint64(p.memoryLimit) {
				return nil, nil, fmt.Errorf("%w: heap %d bytes exceeds limit %d", ErrResourceExhausted, heap, p.memoryLimit)
			}
		}
	}
	if len(parts) == 0 {
		return nil, report, fmt.Errorf("%w: all %d files failed to read", ErrNoSources, len(files))
	}

	t := table.Concat(parts...)
	report.RowsRead = t.Len()
	report.RowsReturned = t.Len()
	done("files", len(report.Files), "skipped", len(report.Skipped), "rows", t.Len())
	return t, report, nil
}

// LoadFiltered implements Backend: load everything, keep in-scope ages on
// the raw codes, then select the requested columns.
func (p *ReferenceProcessor) LoadFiltered(ctx context.Context, q Query) (*table.Table, *LoadReport, error) {
	t, report, err := p.LoadRecords(ctx)
	if err != nil {
		return nil, report, err
	}

	if len(q.AgeCodes) > 0 {
		// Exact text match, the same comparison the engine makes on
		// CAST(NU_IDADE_N AS VARCHAR).
		codes := make(map[string]bool, len(q.AgeCodes))
		for _, c := range q.AgeCodes {
			codes[c] = true
		}
		j, ok := t.Index(ColIdade)
		if !ok {
			t = t.Filter(func([]table.Cell) bool { return false })
		} else {
			t = t.Filter(func(row []table.Cell) bool { return row[j].Valid && codes[row[j].String] })
		}
	}

	t = t.Select(q.Columns.Resolve(t.Columns()))
	report.RowsReturned = t.Len()
	return t, report, nil
}

// DecodeStats counts, per column, the non-null values that had no
// dictionary entry and were kept as raw codes.
type DecodeStats struct {
	Unmapped map[string]int `json:"unmapped,omitempty"`
}

// Total returns the number of unmapped values over all columns.
func (s DecodeStats) Total() int {
	n := 0
	for _, v := range s.Unmapped {
		n += v
	}
	return n
}

// ApplyDictionaries replaces codes with labels in every column that has a
// dictionary. Unmapped codes keep their raw value and nulls stay null.
// The input table is not modified.
func (p *ReferenceProcessor) ApplyDictionaries(t *table.Table) (*table.Table, DecodeStats) {
	done := logging.Stage(p.logger, "apply_dictionaries")
	stats := DecodeStats{Unmapped: make(map[string]int)}

	var cols []string
	var dicts []*dictionary.Dictionary
	for _, c := range t.Columns() {
		if d, ok := p.reg.Field(c); ok {
			cols = append(cols, c)
			dicts = append(dicts, d)
		}
	}
	if len(cols) == 0 {
		done("columns", 0)
		return t, stats
	}

	idx := make([]int, len(cols))
	for k, c := range cols {
		idx[k], _ = t.Index(c)
	}
	out := t.WithColumns(cols, func(row []table.Cell) []table.Cell {
		vals := make([]table.Cell, len(cols))
		for k, j := range idx {
			v, ok := dicts[k].Decode(row[j])
			if !ok {
				stats.Unmapped[cols[k]]++
			}
			vals[k] = v
		}
		return vals
	})

	names := make([]string, 0, len(stats.Unmapped))
	for c := range stats.Unmapped {
		names = append(names, c)
	}
	sort.Strings(names)
	for _, c := range names {
		p.logger.Debug("decode fallback", "column", c, "unmapped", stats.Unmapped[c])
	}
	done("columns", len(cols), "unmapped", stats.Total())
	return out, stats
}

// FilterByScope keeps children and adolescents with at least one
// affirmative violence flag. The age step is skipped when the backend has
// already applied it. A table without violence columns passes the
// violence step unchanged.
func (p *ReferenceProcessor) FilterByScope(t *table.Table, alreadyAgeFiltered bool) (*table.Table, ScopeStats) {
	stats := ScopeStats{Input: t.Len()}

	if !alreadyAgeFiltered {
		if j, ok := t.Index(ColIdade); ok {
			pred := newAgePredicate(p.reg)
			t = t.Filter(func(row []table.Cell) bool { return pred.match(row[j]) })
		} else {
			t = t.Filter(func([]table.Cell) bool { return false })
		}
	}
	stats.AfterAge = t.Len()

	if keep, ok := violencePredicate(t); ok {
		t = t.Filter(keep)
	} else {
		stats.NoViolence = true
		p.logger.Warn("no violence columns present; violence filter skipped")
	}

	stats.Kept = t.Len()
	stats.KeptPercent = percent(stats.Kept, stats.Input)
	return t, stats
}
