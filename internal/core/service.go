package core

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/JonMunkholm/sinan/internal/cache"
)

// Builder produces a processed table. *Pipeline is the production
// implementation.
type Builder interface {
	Build(ctx context.Context, opts BuildOptions) (*Result, error)
}

// ServiceConfig tunes memoisation and build concurrency.
type ServiceConfig struct {
	CacheTTL        time.Duration
	CacheMaxEntries int
	BuildWait       time.Duration
	Logger          *slog.Logger
}

// Service memoises processed tables per BuildOptions and recovers once from
// resource exhaustion. It is safe for concurrent use; the tables it returns
// are shared and read-only.
type Service struct {
	builder Builder
	memo    *cache.Memo[BuildOptions, *Result]
	limiter *BuildLimiter
	logger  *slog.Logger

	// freeMemory returns heap to the OS before a retry.
	freeMemory func()
}

// NewService wraps builder with a memo and a build limiter.
func NewService(builder Builder, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		builder:    builder,
		memo:       cache.NewMemo[BuildOptions, *Result](ttl, cfg.CacheMaxEntries),
		limiter:    NewBuildLimiter(DefaultMaxConcurrentBuilds, cfg.BuildWait),
		logger:     logger,
		freeMemory: debug.FreeOSMemory,
	}
}

// ProcessedTable returns the processed table for opts, building it on a
// cache miss. A build that exhausts memory is retried once after the
// cache is emptied; a second exhaustion is a *PipelineError with code
// MEM001. Other failures are returned unchanged.
func (s *Service) ProcessedTable(ctx context.Context, opts BuildOptions) (*Result, error) {
	res, err := s.load(ctx, opts)
	if err == nil || !errors.Is(err, ErrResourceExhausted) {
		return res, err
	}

	s.logger.Warn("build exhausted resources, clearing cache and retrying", "error", err)
	s.memo.Clear()
	s.freeMemory()

	res, err = s.load(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrResourceExhausted) {
			s.logger.Error("build exhausted resources on retry", "error", err)
			return nil, &PipelineError{Code: "MEM001", Attempt: 2, Err: err}
		}
		return nil, err
	}
	return res, nil
}

func (s *Service) load(ctx context.Context, opts BuildOptions) (*Result, error) {
	return s.memo.Get(ctx, opts, func(ctx context.Context) (*Result, error) {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.limiter.Release()
		return s.builder.Build(ctx, opts)
	})
}

// Cached returns the memoised result for opts without building.
func (s *Service) Cached(opts BuildOptions) (*Result, bool) {
	return s.memo.Peek(opts)
}

// Invalidate drops every memoised table; the next request rebuilds.
// A build in flight finishes but its result is not stored.
func (s *Service) Invalidate() {
	s.memo.Clear()
	s.logger.Info("processed table cache invalidated")
}

// Limiter exposes the build limiter for shutdown draining and status.
func (s *Service) Limiter() *BuildLimiter {
	return s.limiter
}
