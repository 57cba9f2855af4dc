package dictionary

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Encoding names accepted for lookup files.
const (
	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf-8"
)

var municipalityPatterns = []string{"Munic*.cnv", "munic*.cnv"}

// ignoredMunicipalities are placeholder rows, compared after folding.
var ignoredMunicipalities = map[string]bool{
	"municipio ignorado": true,
	"ignorado":           true,
}

// LoadStats reports what a municipality load skipped.
type LoadStats struct {
	Files        int
	FilesSkipped int
	Lines        int
	LinesSkipped int
	Duplicates   int
}

type loaderOptions struct {
	encoding string
	logger   *slog.Logger
}

// LoaderOption configures LoadMunicipalities.
type LoaderOption func(*loaderOptions)

// WithEncoding selects the file encoding (latin1 by default).
func WithEncoding(enc string) LoaderOption {
	return func(o *loaderOptions) { o.encoding = enc }
}

// WithLogger sets the logger used for skipped files and duplicates.
func WithLogger(l *slog.Logger) LoaderOption {
	return func(o *loaderOptions) { o.logger = l }
}

// LoadMunicipalities merges every Munic*.cnv / munic*.cnv file in dir into
// one dictionary. Files are read in ascending name order and a code seen
// twice keeps the label from the later file. Unreadable files and malformed
// lines are skipped and counted. A missing directory yields an empty
// dictionary.
func LoadMunicipalities(ctx context.Context, dir string, opts ...LoaderOption) (*Dictionary, LoadStats, error) {
	o := loaderOptions{encoding: EncodingLatin1, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var stats LoadStats
	entries := make(map[string]string)

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		o.logger.Warn("municipality lookup directory not found", "dir", dir)
		return New("MUNICIPIO", entries), stats, nil
	}

	files, err := municipalityFiles(dir)
	if err != nil {
		return nil, stats, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		stats.Files++
		if err := loadMunicipalityFile(path, o.encoding, entries, &stats, o.logger); err != nil {
			stats.FilesSkipped++
			o.logger.Warn("skipping municipality file", "file", filepath.Base(path), "error", err)
		}
	}

	o.logger.Debug("municipality dictionary loaded",
		"files", stats.Files,
		"files_skipped", stats.FilesSkipped,
		"entries", len(entries),
		"lines_skipped", stats.LinesSkipped,
		"duplicates", stats.Duplicates,
	)
	return New("MUNICIPIO", entries), stats, nil
}

func municipalityFiles(dir string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range municipalityPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func loadMunicipalityFile(path, encoding string, entries map[string]string, stats *LoadStats, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := NewTextReader(f, encoding)
	if err != nil {
		return err
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		stats.Lines++
		code, label, ok := ParseMunicipalityLine(line)
		if !ok {
			stats.LinesSkipped++
			continue
		}
		if prev, dup := entries[code]; dup && prev != label {
			stats.Duplicates++
			logger.Debug("duplicate municipality code", "code", code, "previous", prev, "label", label)
		}
		entries[code] = label
	}
	return sc.Err()
}

// ParseMunicipalityLine extracts the code and name from one .cnv data line,
// e.g. "1  210530 Imperatriz  210530" yields ("210530", "Imperatriz"). The
// leading ordinal and the trailing code are optional.
// The code is the first six-digit token; the name is everything after it
// minus a repeated trailing code. Placeholder names are rejected.
func ParseMunicipalityLine(line string) (code, label string, ok bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", "", false
	}

	for i, p := range parts {
		if !isMunicipalityCode(p) {
			continue
		}
		name := parts[i+1:]
		if n := len(name); n > 0 && isMunicipalityCode(name[n-1]) {
			name = name[:n-1]
		}
		label = strings.TrimSpace(strings.Join(name, " "))
		if label == "" || ignoredMunicipalities[strings.ToLower(FoldAccents(label))] {
			return "", "", false
		}
		return p, label, true
	}
	return "", "", false
}

func isMunicipalityCode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NewTextReader decodes a lookup file to UTF-8. latin1 maps every byte;
// utf-8 strips a leading byte-order mark and drops invalid byte sequences.
func NewTextReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingLatin1, "latin-1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case EncodingUTF8, "utf8":
		return transform.NewReader(r, transform.Chain(
			xunicode.BOMOverride(transform.Nop),
			runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
		)), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
