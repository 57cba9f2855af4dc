package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/sinan/internal/table"
)

// Artifact file names inside the processed directory.
const (
	ArtifactFile     = "sinan_data_processed.parquet"
	ArtifactMetaFile = "metadata.json"
)

// ArtifactVersion is bumped whenever derived column semantics change, so
// stale artifacts are rebuilt instead of served.
const ArtifactVersion = 2

// Metadata describes one processed table build.
type Metadata struct {
	BuildID  string    `json:"build_id"`
	BuiltAt  time.Time `json:"built_at"`
	RowCount int       `json:"row_count"`
	Columns  []string  `json:"columns"`
	Backend  string    `json:"backend"`
	Version  int       `json:"version"`
}

// SaveArtifact writes the processed table and its metadata to dir. Both
// files are written to a temporary name first, so readers never see a
// half-written artifact.
func SaveArtifact(dir string, t *table.Table, meta Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	meta.RowCount = t.Len()
	meta.Columns = t.Columns()
	meta.Version = ArtifactVersion

	if err := table.WriteParquetFile(filepath.Join(dir, ArtifactFile), t); err != nil {
		return fmt.Errorf("write artifact table: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact metadata: %w", err)
	}
	path := filepath.Join(dir, ArtifactMetaFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write artifact metadata: %w", err)
	}
	return nil
}

// LoadArtifact reads the artifact pair from dir. It returns
// ErrArtifactNotFound when either file is absent and ErrArtifactInvalid
// when the pair is unreadable, stale or inconsistent.
func LoadArtifact(dir string) (*table.Table, Metadata, error) {
	var meta Metadata

	data, err := os.ReadFile(filepath.Join(dir, ArtifactMetaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, meta, fmt.Errorf("%w: %s", ErrArtifactNotFound, dir)
	}
	if err != nil {
		return nil, meta, fmt.Errorf("%w: %v", ErrArtifactInvalid, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, meta, fmt.Errorf("%w: metadata: %v", ErrArtifactInvalid, err)
	}
	if meta.Version != ArtifactVersion {
		return nil, meta, fmt.Errorf("%w: version %d, want %d", ErrArtifactInvalid, meta.Version, ArtifactVersion)
	}

	path := filepath.Join(dir, ArtifactFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, meta, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	t, err := table.ReadParquetFile(path)
	if err != nil {
		return nil, meta, fmt.Errorf("%w: %v", ErrArtifactInvalid, err)
	}
	if t.Len() != meta.RowCount {
		return nil, meta, fmt.Errorf("%w: %d rows, metadata says %d", ErrArtifactInvalid, t.Len(), meta.RowCount)
	}
	for _, c := range ArtifactRequiredColumns {
		if !t.Has(c) {
			return nil, meta, fmt.Errorf("%w: missing column %s", ErrArtifactInvalid, c)
		}
	}
	return t, meta, nil
}
