package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sinan/internal/dictionary"
	"github.com/JonMunkholm/sinan/internal/logging"
	"github.com/JonMunkholm/sinan/internal/table"
)

// BuildOptions selects how a processed table is produced. It is the memo
// key, so it must stay comparable.
type BuildOptions struct {
	UseFastBackend bool
	UsePrecomputed bool
}

// Result is a processed table and what it took to build it. Table is
// shared by every caller and must not be modified.
type Result struct {
	Table        *table.Table
	Meta         Metadata
	Backend      string
	FromArtifact bool
	Warnings     []string
	Report       *LoadReport
	Decode       DecodeStats
	Scope        ScopeStats
}

// Pipeline builds the processed table.
type Pipeline struct {
	reg          *dictionary.Registry
	backend      BackendConfig
	processedDir string
	logger       *slog.Logger
	now          func() time.Time
}

// NewPipeline returns a pipeline reading sources as described by backend
// and the precomputed artifact from processedDir.
func NewPipeline(backend BackendConfig, processedDir string) *Pipeline {
	if backend.Logger == nil {
		backend.Logger = slog.Default()
	}
	return &Pipeline{
		reg:          backend.Registry,
		backend:      backend,
		processedDir: processedDir,
		logger:       backend.Logger,
		now:          time.Now,
	}
}

// Registry returns the dictionaries the pipeline decodes with.
func (p *Pipeline) Registry() *dictionary.Registry {
	return p.reg
}

// Build produces the processed table: from the precomputed artifact when
// allowed and usable, otherwise from the source files through the selected
// backend.
func (p *Pipeline) Build(ctx context.Context, opts BuildOptions) (*Result, error) {
	logger := p.logger.With("fast", opts.UseFastBackend, "precomputed", opts.UsePrecomputed)
	done := logging.Stage(logger, "build_processed_table")

	if opts.UsePrecomputed {
		res, err := p.fromArtifact()
		switch {
		case err == nil:
			done("rows", res.Table.Len(), "source", "artifact")
			return res, nil
		case errors.Is(err, ErrArtifactNotFound):
			logger.Debug("no precomputed artifact", "dir", p.processedDir)
		default:
			logger.Warn("precomputed artifact unusable, rebuilding from sources", "error", err)
		}
	}

	res, err := p.fromSources(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	done("rows", res.Table.Len(), "backend", res.Backend, "warnings", len(res.Warnings))
	return res, nil
}

func (p *Pipeline) fromArtifact() (*Result, error) {
	t, meta, err := LoadArtifact(p.processedDir)
	if err != nil {
		return nil, err
	}
	if missing := missingDerived(t); len(missing) > 0 {
		t = DeriveColumns(t, p.reg, missing...)
	}
	ref := NewReferenceProcessor(p.backend)
	t, scope := ref.FilterByScope(t, true)
	meta.RowCount = t.Len()
	return &Result{
		Table:        t,
		Meta:         meta,
		Backend:      meta.Backend,
		FromArtifact: true,
		Scope:        scope,
	}, nil
}

func (p *Pipeline) fromSources(ctx context.Context, opts BuildOptions, logger *slog.Logger) (*Result, error) {
	backend, warning, err := SelectBackend(p.backend, opts.UseFastBackend)
	if err != nil {
		return nil, err
	}
	var warnings []string
	if warning != "" {
		logger.Warn(warning)
		warnings = append(warnings, warning)
	}

	q := Query{AgeCodes: p.reg.AgeCodes(), Columns: PipelineColumns()}
	raw, report, err := backend.LoadFiltered(ctx, q)
	if err != nil && backend.Name() != ReferenceBackendName && recoverable(err) {
		w := "fast backend failed, using reference: " + err.Error()
		logger.Warn(w)
		warnings = append(warnings, w)
		backend = NewReferenceProcessor(p.backend)
		raw, report, err = backend.LoadFiltered(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, report.Warnings()...)

	ref := NewReferenceProcessor(p.backend)
	decoded, decodeStats := ref.ApplyDictionaries(raw)
	scoped, scope := ref.FilterByScope(decoded, true)

	derive := logging.Stage(logger, "derive_columns")
	processed := DeriveColumns(scoped, p.reg)
	derive("rows", processed.Len())

	return &Result{
		Table: processed,
		Meta: Metadata{
			BuildID:  uuid.NewString(),
			BuiltAt:  p.now().UTC(),
			RowCount: processed.Len(),
			Columns:  processed.Columns(),
			Backend:  backend.Name(),
			Version:  ArtifactVersion,
		},
		Backend:  backend.Name(),
		Warnings: warnings,
		Report:   report,
		Decode:   decodeStats,
		Scope:    scope,
	}, nil
}

// recoverable reports whether a fast backend failure should be retried on
// the reference backend. Resource exhaustion is left to the service, which
// frees memory before retrying.
func recoverable(err error) bool {
	return !errors.Is(err, ErrResourceExhausted) &&
		!errors.Is(err, ErrNoSources) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
