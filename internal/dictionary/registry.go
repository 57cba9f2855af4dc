package dictionary

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/sinan/internal/table"
)

// AgeColumn is the coded age field; codes 40NN are ages in years.
const AgeColumn = "NU_IDADE_N"

// RelationshipPrefix marks relationship flag columns.
const RelationshipPrefix = "REL_"

//go:embed fields.yaml
var fieldsYAML []byte

type fieldsDocument struct {
	Fields               map[string]map[string]string `yaml:"fields"`
	RelationshipFlags    map[string]string            `yaml:"relationship_flags"`
	Relationships        []Relationship               `yaml:"relationships"`
	RelationshipExcluded []string                     `yaml:"relationship_excluded"`
	States               map[string]string            `yaml:"states"`
	Age                  struct {
		First int `yaml:"first"`
		Last  int `yaml:"last"`
	} `yaml:"age"`
}

// Relationship is one declared relationship flag column and its label.
type Relationship struct {
	Column string `yaml:"column"`
	Label  string `yaml:"label"`
}

// Registry bundles every dictionary a pipeline run needs. It is built once
// and passed by pointer; nothing in it changes after construction.
type Registry struct {
	fields        map[string]*Dictionary
	relFlags      *Dictionary
	relationships []Relationship
	relIndex      map[string]int
	relExcluded   map[string]bool
	states        *Dictionary
	age           *Dictionary
	ageCodes      []string
	municipality  *Dictionary
}

// NewRegistry builds the registry from the embedded field definitions and
// the given municipality dictionary (nil means empty).
func NewRegistry(municipalities *Dictionary) (*Registry, error) {
	var doc fieldsDocument
	if err := yaml.Unmarshal(fieldsYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse field dictionaries: %w", err)
	}
	if doc.Age.First <= 0 || doc.Age.Last < doc.Age.First {
		return nil, fmt.Errorf("invalid age code range %d-%d", doc.Age.First, doc.Age.Last)
	}

	r := &Registry{
		fields:        make(map[string]*Dictionary, len(doc.Fields)),
		relFlags:      New("REL_*", doc.RelationshipFlags),
		relationships: doc.Relationships,
		relIndex:      make(map[string]int, len(doc.Relationships)),
		relExcluded:   make(map[string]bool, len(doc.RelationshipExcluded)),
		states:        New("UF", doc.States),
		municipality:  municipalities,
	}
	for name, entries := range doc.Fields {
		r.fields[name] = New(name, entries)
	}
	for i, rel := range doc.Relationships {
		if _, dup := r.relIndex[rel.Column]; !dup {
			r.relIndex[rel.Column] = i
		}
	}
	for _, c := range doc.RelationshipExcluded {
		r.relExcluded[c] = true
	}
	if r.municipality == nil {
		r.municipality = New("MUNICIPIO", nil)
	}

	ages := make(map[string]string)
	for code := doc.Age.First; code <= doc.Age.Last; code++ {
		years := code - doc.Age.First
		key := strconv.Itoa(code)
		switch years {
		case 0:
			ages[key] = "menor de 01 ano"
		case 1:
			ages[key] = "01 ano"
		default:
			ages[key] = fmt.Sprintf("%02d anos", years)
		}
		r.ageCodes = append(r.ageCodes, key)
	}
	r.age = New(AgeColumn, ages)

	return r, nil
}

// Field returns the dictionary for a column, if any. Relationship flag
// columns without their own dictionary get the shared flag dictionary.
func (r *Registry) Field(column string) (*Dictionary, bool) {
	if column == AgeColumn {
		return r.age, true
	}
	if d, ok := r.fields[column]; ok {
		return d, true
	}
	if r.IsRelationshipColumn(column) {
		return r.relFlags, true
	}
	return nil, false
}

// AgeCodes returns the in-scope age codes (ages 0 to 17) in ascending order.
func (r *Registry) AgeCodes() []string {
	return append([]string(nil), r.ageCodes...)
}

// AgeLabels returns the decoded labels of the in-scope age codes.
func (r *Registry) AgeLabels() []string {
	out := make([]string, len(r.ageCodes))
	for i, c := range r.ageCodes {
		out[i] = r.age.Lookup(c)
	}
	return out
}

// StateName resolves an IBGE state code. Float renderings such as "35.0"
// are accepted. The second result is false when the code is unknown.
func (r *Registry) StateName(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if name, ok := r.states.Label(code); ok {
		return name, true
	}
	if f, err := strconv.ParseFloat(code, 64); err == nil && f == float64(int(f)) {
		if name, ok := r.states.Label(strconv.Itoa(int(f))); ok {
			return name, true
		}
	}
	return "", false
}

// States returns the state dictionary.
func (r *Registry) States() *Dictionary {
	return r.states
}

// Municipalities returns the municipality dictionary.
func (r *Registry) Municipalities() *Dictionary {
	return r.municipality
}

// Municipality resolves a six-digit municipality code.
func (r *Registry) Municipality(code string) (string, bool) {
	return r.municipality.Label(strings.TrimSpace(code))
}

// IsRelationshipColumn reports whether column is a relationship flag.
func (r *Registry) IsRelationshipColumn(column string) bool {
	return strings.HasPrefix(column, RelationshipPrefix) && !r.relExcluded[column]
}

// RelationshipColumns orders the relationship columns present in columns:
// declared ones in declared order, then undeclared ones by name.
func (r *Registry) RelationshipColumns(columns []string) []string {
	var declared, other []string
	for _, c := range columns {
		if !r.IsRelationshipColumn(c) {
			continue
		}
		if _, ok := r.relIndex[c]; ok {
			declared = append(declared, c)
		} else {
			other = append(other, c)
		}
	}
	sort.Slice(declared, func(i, j int) bool { return r.relIndex[declared[i]] < r.relIndex[declared[j]] })
	sort.Strings(other)
	return append(declared, other...)
}

// RelationshipLabel returns the label of a relationship column. Undeclared
// columns get a readable label derived from the column name.
func (r *Registry) RelationshipLabel(column string) string {
	if i, ok := r.relIndex[column]; ok {
		return r.relationships[i].Label
	}
	return fallbackRelationshipLabel(column)
}

// Relationships returns the declared relationships in order.
func (r *Registry) Relationships() []Relationship {
	return append([]Relationship(nil), r.relationships...)
}

var relationshipHints = []struct {
	fragment, label string
}{
	{"Pai", "Pai"},
	{"Mae", "Mãe"},
	{"Padr", "Padrasto"},
	{"Madr", "Madrasta"},
	{"Conjug", "Cônjuge"},
	{"Exnam", "Ex-namorado(a)"},
	{"Namor", "Namorado(a)"},
	{"Amig", "Amigo(a)"},
	{"Descon", "Desconhecido"},
}

func fallbackRelationshipLabel(column string) string {
	words := strings.Fields(strings.ReplaceAll(strings.TrimPrefix(column, RelationshipPrefix), "_", " "))
	for i, w := range words {
		lower := strings.ToLower(w)
		words[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	name := strings.Join(words, " ")
	for _, h := range relationshipHints {
		if strings.Contains(name, h.fragment) {
			return h.label
		}
	}
	return name
}

// Decode decodes one cell of column. ok is false when the column has a
// dictionary but the code was not in it.
func (r *Registry) Decode(column string, c table.Cell) (table.Cell, bool) {
	d, has := r.Field(column)
	if !has {
		return c, true
	}
	return d.Decode(c)
}
