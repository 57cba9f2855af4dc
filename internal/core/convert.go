package core

// convert.go provides lenient conversions for SINAN field values.
//
// Source files are inconsistent about representation: dates appear as
// YYYYMMDD strings, ISO dates, timestamps or Brazilian DD/MM/YYYY; yes/no
// flags appear as "1", "1.0", "SIM" or "S"; years may be floats ("2019.0").
// Every function here accepts the messy value and reports failure instead of
// guessing.

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sinan/internal/table"
)

// numericRegex validates that a string is a plain numeric value.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// dateLayouts are tried in order. YYYYMMDD comes first because it is what
// the source files and table.FormatValue produce.
var dateLayouts = []string{
	table.DateLayout,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"2006/01/02",
}

// ParseDate parses a notification date. The second result is false for
// null, blank or unparseable values.
func ParseDate(c table.Cell) (time.Time, bool) {
	if c.IsBlank() {
		return time.Time{}, false
	}
	s := strings.TrimSpace(c.String)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseNumber parses a numeric cell such as "2019", "2019.0" or " 7 ".
func ParseNumber(c table.Cell) (float64, bool) {
	if c.IsBlank() {
		return 0, false
	}
	s := strings.TrimSpace(c.String)
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseInt parses a cell holding a whole number, accepting a float
// rendering with a zero fraction ("35.0").
func ParseInt(c table.Cell) (int, bool) {
	f, ok := ParseNumber(c)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// IsAffirmative reports whether a flag value means "yes". Accepts 1, 1.0,
// SIM, S and TRUE (trimmed, case-insensitive); TRUE covers boolean flag
// columns. Everything else, including unknown tokens, is false.
func IsAffirmative(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "1", "1.0", "SIM", "S", "TRUE":
		return true
	default:
		return false
	}
}

// cellAffirmative is IsAffirmative for a nullable cell.
func cellAffirmative(c table.Cell) bool {
	return c.Valid && IsAffirmative(c.String)
}
