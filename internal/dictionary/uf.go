package dictionary

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldAccents removes diacritics: "São Paulo" becomes "Sao Paulo".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func foldKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(FoldAccents(s)), " "))
}

// StateCode resolves user input to a two-digit IBGE state code. It accepts
// a code ("35", "35.0") or a state name in any case, with or without
// accents ("sao paulo").
func (r *Registry) StateCode(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if name, ok := r.StateName(value); ok {
		for _, code := range r.states.Codes() {
			if r.states.Lookup(code) == name {
				return code, true
			}
		}
	}

	key := foldKey(value)
	for _, code := range r.states.Codes() {
		if foldKey(r.states.Lookup(code)) == key {
			return code, true
		}
	}
	return "", false
}

// SameState reports whether a resolved state label matches user input given
// as a code or a name.
func (r *Registry) SameState(label, input string) bool {
	if foldKey(label) == foldKey(input) {
		return true
	}
	code, ok := r.StateCode(input)
	if !ok {
		return false
	}
	return r.states.Lookup(code) == label
}
