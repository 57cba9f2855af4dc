// Package table holds the in-memory tabular model shared by the loaders,
// the pipeline and the consumers of the processed table.
//
// A Table is an ordered list of column names plus rows of nullable text
// cells. Tables are treated as immutable: every operation returns a new
// Table and row slices are never written after construction, so a cached
// table can be shared by concurrent readers.
package table

import (
	"fmt"
	"strings"
)

// Cell is a nullable text value. Valid=false means null.
type Cell struct {
	String string
	Valid  bool
}

// Null is the null cell.
var Null = Cell{}

// Text returns a valid cell holding s.
func Text(s string) Cell {
	return Cell{String: s, Valid: true}
}

// IsBlank reports whether the cell is null or only whitespace.
func (c Cell) IsBlank() bool {
	return !c.Valid || strings.TrimSpace(c.String) == ""
}

// Or returns the cell text, or fallback when the cell is null.
func (c Cell) Or(fallback string) string {
	if !c.Valid {
		return fallback
	}
	return c.String
}

// Table is an ordered set of columns and rows of cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Cell
}

// New builds a table. Every row must have len(columns) cells.
func New(columns []string, rows [][]Cell) (*Table, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := idx[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		idx[c] = i
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(r), len(columns))
		}
	}
	return &Table{columns: append([]string(nil), columns...), index: idx, rows: rows}, nil
}

// MustNew is New for statically known inputs; it panics on error.
func MustNew(columns []string, rows [][]Cell) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with the given columns and no rows.
func Empty(columns ...string) *Table {
	return MustNew(columns, nil)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Has reports whether the column exists.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Index returns the position of column.
func (t *Table) Index(column string) (int, bool) {
	i, ok := t.index[column]
	return i, ok
}

// Row returns row i. Callers must not modify it.
func (t *Table) Row(i int) []Cell {
	return t.rows[i]
}

// Value returns the cell at row i, column. A missing column reads as null.
func (t *Table) Value(i int, column string) Cell {
	j, ok := t.index[column]
	if !ok {
		return Null
	}
	return t.rows[i][j]
}

// Column returns a copy of every cell in column, or nil when it is absent.
func (t *Table) Column(column string) []Cell {
	j, ok := t.index[column]
	if !ok {
		return nil
	}
	out := make([]Cell, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[j]
	}
	return out
}

// Select returns a table with the requested columns that exist, in the
// requested order. Absent names are ignored.
func (t *Table) Select(columns []string) *Table {
	var names []string
	var pos []int
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if j, ok := t.index[c]; ok && !seen[c] {
			seen[c] = true
			names = append(names, c)
			pos = append(pos, j)
		}
	}

	rows := make([][]Cell, len(t.rows))
	for i, r := range t.rows {
		nr := make([]Cell, len(pos))
		for k, j := range pos {
			nr[k] = r[j]
		}
		rows[i] = nr
	}
	return MustNew(names, rows)
}

// Filter returns the rows for which keep is true. Row slices are shared.
func (t *Table) Filter(keep func(row []Cell) bool) *Table {
	var rows [][]Cell
	for _, r := range t.rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// Slice returns at most limit rows starting at offset. A negative limit
// means no limit.
func (t *Table) Slice(offset, limit int) *Table {
	if offset < 0 {
		offset = 0
	}
	if offset > len(t.rows) {
		offset = len(t.rows)
	}
	end := len(t.rows)
	if limit >= 0 && limit < end-offset {
		end = offset + limit
	}
	return &Table{columns: t.columns, index: t.index, rows: t.rows[offset:end]}
}

// WithColumns returns a table extended (or overwritten, for existing names)
// by the given columns. compute receives each source row and must return one
// cell per name.
func (t *Table) WithColumns(names []string, compute func(row []Cell) []Cell) *Table {
	columns := append([]string(nil), t.columns...)
	target := make([]int, len(names))
	for k, n := range names {
		if j, ok := t.index[n]; ok {
			target[k] = j
			continue
		}
		target[k] = len(columns)
		columns = append(columns, n)
	}

	rows := make([][]Cell, len(t.rows))
	for i, r := range t.rows {
		nr := make([]Cell, len(columns))
		copy(nr, r)
		vals := compute(r)
		for k, j := range target {
			nr[j] = vals[k]
		}
		rows[i] = nr
	}
	return MustNew(columns, rows)
}

// Concat stacks tables by column name. The result has the union of columns
// in first-appearance order; cells for columns a table lacks are null.
func Concat(tables ...*Table) *Table {
	var columns []string
	index := make(map[string]int)
	total := 0
	for _, t := range tables {
		total += t.Len()
		for _, c := range t.columns {
			if _, ok := index[c]; !ok {
				index[c] = len(columns)
				columns = append(columns, c)
			}
		}
	}

	rows := make([][]Cell, 0, total)
	for _, t := range tables {
		mapping := make([]int, len(t.columns))
		for j, c := range t.columns {
			mapping[j] = index[c]
		}
		for _, r := range t.rows {
			nr := make([]Cell, len(columns))
			for j, cell := range r {
				nr[mapping[j]] = cell
			}
			rows = append(rows, nr)
		}
	}
	return &Table{columns: columns, index: index, rows: rows}
}

// Equal reports whether two tables have the same columns and cells in the
// same order.
func Equal(a, b *Table) bool {
	if len(a.columns) != len(b.columns) || len(a.rows) != len(b.rows) {
		return false
	}
	for i := range a.columns {
		if a.columns[i] != b.columns[i] {
			return false
		}
	}
	for i := range a.rows {
		for j := range a.rows[i] {
			if a.rows[i][j] != b.rows[i][j] {
				return false
			}
		}
	}
	return true
}
