package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sinan/internal/config"
	"github.com/JonMunkholm/sinan/internal/core"
	"github.com/JonMunkholm/sinan/internal/dictionary"
	"github.com/JonMunkholm/sinan/internal/logging"
)

var (
	// envFile is an optional .env file loaded before the environment is read.
	envFile string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sinan",
	Short: "SINAN child-violence notification pipeline",
	Long: `sinan reads yearly SINAN violence notification files, keeps the notifications
about children aged 0-17 with at least one form of violence, decodes them with
the TabWin dictionaries and derives the analysis columns.

Settings come from the environment (see SINAN_*, DUCKDB_*, SERVER_*, LOG_*).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load if present")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil {
		slog.Debug("no .env file loaded", "file", envFile)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}

// newPipeline loads the municipality dictionary and wires the pipeline.
func newPipeline(ctx context.Context) (*core.Pipeline, error) {
	munic, stats, err := dictionary.LoadMunicipalities(ctx, cfg.Sources.DictDir,
		dictionary.WithEncoding(cfg.Sources.DictEncoding),
		dictionary.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, fmt.Errorf("load municipalities: %w", err)
	}
	slog.Info("municipality dictionary loaded",
		"entries", munic.Len(),
		"files", stats.Files,
		"lines_skipped", stats.LinesSkipped,
	)

	reg, err := dictionary.NewRegistry(munic)
	if err != nil {
		return nil, err
	}

	return core.NewPipeline(core.BackendConfig{
		SourceDir:         cfg.Sources.RawDir,
		Registry:          reg,
		Logger:            slog.Default(),
		MaxRows:           cfg.Pipeline.MaxRows,
		MemoryLimit:       cfg.Pipeline.MemoryLimit,
		EngineMemoryLimit: cfg.DuckDB.MemoryLimit,
		EngineThreads:     cfg.DuckDB.Threads,
	}, cfg.Sources.ProcessedDir), nil
}

// newService wraps the pipeline with the memo and build limiter.
func newService(p *core.Pipeline) *core.Service {
	return core.NewService(p, core.ServiceConfig{
		CacheTTL:        cfg.Pipeline.CacheTTL,
		CacheMaxEntries: cfg.Pipeline.CacheMaxEntries,
		BuildWait:       cfg.Pipeline.BuildWait,
		Logger:          slog.Default(),
	})
}

// buildOptions returns the configured options, with --fast/--precomputed
// overriding when given.
func buildOptions(cmd *cobra.Command) core.BuildOptions {
	opts := core.BuildOptions{
		UseFastBackend: cfg.Pipeline.UseFastBackend,
		UsePrecomputed: cfg.Pipeline.UsePrecomputed,
	}
	if f := cmd.Flags().Lookup("fast"); f != nil && f.Changed {
		opts.UseFastBackend, _ = cmd.Flags().GetBool("fast")
	}
	if f := cmd.Flags().Lookup("precomputed"); f != nil && f.Changed {
		opts.UsePrecomputed, _ = cmd.Flags().GetBool("precomputed")
	}
	return opts
}

// logResult reports how a table was built.
func logResult(res *core.Result) {
	slog.Info("processed table ready",
		"rows", res.Table.Len(),
		"backend", res.Backend,
		"from_artifact", res.FromArtifact,
		"kept_percent", res.Scope.KeptPercent,
		"unmapped_codes", res.Decode.Total(),
	)
	for _, w := range res.Warnings {
		slog.Warn(w)
	}
}
