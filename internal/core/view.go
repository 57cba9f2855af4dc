package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sinan/internal/dictionary"
	"github.com/JonMunkholm/sinan/internal/table"
)

// ErrInvalidFilter is returned for malformed view filter values.
var ErrInvalidFilter = errors.New("invalid filter")

// ViewFilter narrows the processed table for presentation. Zero fields do
// not filter.
type ViewFilter struct {
	YearFrom     int
	YearTo       int
	UF           string
	Municipality string
	ViolenceType string
}

// Validate checks the year range.
func (f ViewFilter) Validate() error {
	if f.YearFrom < 0 || f.YearTo < 0 {
		return fmt.Errorf("%w: negative year", ErrInvalidFilter)
	}
	if f.YearFrom > 0 && f.YearTo > 0 && f.YearFrom > f.YearTo {
		return fmt.Errorf("%w: year_from %d after year_to %d", ErrInvalidFilter, f.YearFrom, f.YearTo)
	}
	return nil
}

// ApplyView returns the rows of t matching f. UF accepts a state code or
// name; Municipality matches the resolved name case- and
// accent-insensitively; ViolenceType matches one label of
// TIPO_VIOLENCIA. t is never modified.
func ApplyView(t *table.Table, reg *dictionary.Registry, f ViewFilter) (*table.Table, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var preds []func(row []table.Cell) bool

	if f.YearFrom > 0 || f.YearTo > 0 {
		j, ok := t.Index(ColAnoNotific)
		if !ok {
			return t.Slice(0, 0), nil
		}
		preds = append(preds, func(row []table.Cell) bool {
			y, ok := ParseInt(row[j])
			if !ok {
				return false
			}
			return (f.YearFrom == 0 || y >= f.YearFrom) && (f.YearTo == 0 || y <= f.YearTo)
		})
	}

	if uf := strings.TrimSpace(f.UF); uf != "" {
		if _, ok := reg.StateCode(uf); !ok {
			return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidFilter, uf)
		}
		j, ok := t.Index(ColUFNotific)
		if !ok {
			return t.Slice(0, 0), nil
		}
		preds = append(preds, func(row []table.Cell) bool {
			return row[j].Valid && reg.SameState(row[j].String, uf)
		})
	}

	if m := strings.TrimSpace(f.Municipality); m != "" {
		j, ok := t.Index(ColMunicNotific)
		if !ok {
			return t.Slice(0, 0), nil
		}
		key := foldLabel(m)
		preds = append(preds, func(row []table.Cell) bool {
			return row[j].Valid && foldLabel(row[j].String) == key
		})
	}

	if v := strings.TrimSpace(f.ViolenceType); v != "" {
		j, ok := t.Index(ColTipoViolencia)
		if !ok {
			return t.Slice(0, 0), nil
		}
		key := foldLabel(v)
		preds = append(preds, func(row []table.Cell) bool {
			for _, part := range splitLabels(row[j]) {
				if foldLabel(part) == key {
					return true
				}
			}
			return false
		})
	}

	if len(preds) == 0 {
		return t, nil
	}
	return t.Filter(func(row []table.Cell) bool {
		for _, p := range preds {
			if !p(row) {
				return false
			}
		}
		return true
	}), nil
}

// AvailableYears lists the distinct notification years in ascending order.
func AvailableYears(t *table.Table) []int {
	seen := make(map[int]bool)
	for _, c := range t.Column(ColAnoNotific) {
		if y, ok := ParseInt(c); ok {
			seen[y] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// AvailableStates lists the distinct resolved state names, sorted, without
// the placeholder labels.
func AvailableStates(t *table.Table) []string {
	seen := make(map[string]bool)
	for _, c := range t.Column(ColUFNotific) {
		if c.IsBlank() || c.String == LabelNaoInformado || c.String == LabelNaoDisponivel {
			continue
		}
		seen[c.String] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ParseYear parses an optional year query value.
func ParseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1900 || y > 2100 {
		return 0, fmt.Errorf("%w: year %q", ErrInvalidFilter, s)
	}
	return y, nil
}

func foldLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(dictionary.FoldAccents(s)))
}

// splitLabels splits a combined ", "-joined label cell.
func splitLabels(c table.Cell) []string {
	if c.IsBlank() {
		return nil
	}
	parts := strings.Split(c.String, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
