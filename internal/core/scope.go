package core

import (
	"strconv"
	"strings"

	"github.com/JonMunkholm/sinan/internal/dictionary"
	"github.com/JonMunkholm/sinan/internal/table"
)

// ViolenceColumns are the violence flags in label order.
var ViolenceColumns = []string{"VIOL_FISIC", "VIOL_PSICO", "VIOL_SEXU", "VIOL_INFAN"}

// ViolenceLabels maps each violence flag to its display label.
var ViolenceLabels = map[string]string{
	"VIOL_FISIC": "Física",
	"VIOL_PSICO": "Psicológica",
	"VIOL_SEXU":  "Sexual",
	"VIOL_INFAN": "Infantil",
}

// ScopeStats counts the rows seen and kept by FilterByScope.
type ScopeStats struct {
	Input       int     `json:"input"`
	AfterAge    int     `json:"after_age"`
	Kept        int     `json:"kept"`
	KeptPercent float64 `json:"kept_percent"`
	NoViolence  bool    `json:"no_violence_columns,omitempty"`
}

// agePredicate matches raw age codes and their decoded labels.
type agePredicate map[string]bool

func newAgePredicate(reg *dictionary.Registry) agePredicate {
	p := make(agePredicate)
	for _, c := range reg.AgeCodes() {
		p[c] = true
	}
	for _, l := range reg.AgeLabels() {
		p[l] = true
	}
	return p
}

func (p agePredicate) match(c table.Cell) bool {
	if !c.Valid {
		return false
	}
	s := strings.TrimSpace(c.String)
	if p[s] {
		return true
	}
	// Float renderings of the code ("4005.0").
	if n, ok := ParseInt(c); ok {
		return p[strconv.Itoa(n)]
	}
	return false
}

// violencePredicate reports whether any available violence flag is
// affirmative. ok is false when the table has no violence column.
func violencePredicate(t *table.Table) (keep func(row []table.Cell) bool, ok bool) {
	var idx []int
	for _, c := range ViolenceColumns {
		if j, has := t.Index(c); has {
			idx = append(idx, j)
		}
	}
	if len(idx) == 0 {
		return nil, false
	}
	return func(row []table.Cell) bool {
		for _, j := range idx {
			if cellAffirmative(row[j]) {
				return true
			}
		}
		return false
	}, true
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) * 100 / float64(whole)
}
