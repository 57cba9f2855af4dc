// Package dictionary loads the code-to-label lookups used to decode SINAN
// notification records: per-field dictionaries, age codes, state names,
// relationship labels and the municipality tables shipped as TabWin .cnv
// files.
//
// Every lookup is total. A code with no label decodes to itself, so an
// incomplete dictionary degrades output quality but never fails a build.
package dictionary

import "github.com/JonMunkholm/sinan/internal/table"

// Dictionary maps codes of one field to human-readable labels.
type Dictionary struct {
	name    string
	entries map[string]string
}

// New returns a dictionary over a copy of entries.
func New(name string, entries map[string]string) *Dictionary {
	d := &Dictionary{name: name, entries: make(map[string]string, len(entries))}
	for k, v := range entries {
		d.entries[k] = v
	}
	return d
}

// Name returns the field the dictionary decodes.
func (d *Dictionary) Name() string {
	return d.name
}

// Len returns the number of codes.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Label returns the label for code and whether it was mapped.
func (d *Dictionary) Label(code string) (string, bool) {
	if d == nil {
		return "", false
	}
	label, ok := d.entries[code]
	return label, ok
}

// Lookup returns the label for code, or code itself when unmapped.
func (d *Dictionary) Lookup(code string) string {
	if label, ok := d.Label(code); ok {
		return label
	}
	return code
}

// Decode decodes a cell. Nulls stay null; the second result is false when a
// non-null code had no label and was passed through.
func (d *Dictionary) Decode(c table.Cell) (table.Cell, bool) {
	if !c.Valid {
		return c, true
	}
	if label, ok := d.Label(c.String); ok {
		return table.Text(label), true
	}
	return c, false
}

// Codes returns every code with a label, unordered.
func (d *Dictionary) Codes() []string {
	out := make([]string, 0, d.Len())
	if d == nil {
		return out
	}
	for k := range d.entries {
		out = append(out, k)
	}
	return out
}
