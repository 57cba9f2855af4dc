package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sinan/internal/export"
	"github.com/JonMunkholm/sinan/internal/table"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the processed table as CSV or to PostgreSQL",
	Long: `Writes the processed table as ';'-separated CSV (to --out, or stdout) or
replaces the contents of EXPORT_PG_TABLE in the database at DATABASE_URL.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "export format: csv or postgres")
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "CSV output file, - for stdout")
	exportCmd.Flags().Bool("fast", true, "use the analytical engine when available")
	exportCmd.Flags().Bool("precomputed", true, "use the precomputed artifact when present")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "postgres" {
		return fmt.Errorf("unknown export format %q (want csv or postgres)", exportFormat)
	}

	ctx := cmd.Context()
	p, err := newPipeline(ctx)
	if err != nil {
		return err
	}
	res, err := newService(p).ProcessedTable(ctx, buildOptions(cmd))
	if err != nil {
		return err
	}
	logResult(res)

	if exportFormat == "postgres" {
		return exportPostgres(cmd, res.Table)
	}
	return exportCSV(cmd.OutOrStdout(), res.Table)
}

func exportCSV(stdout io.Writer, t *table.Table) (err error) {
	w := stdout
	if exportOut != "-" {
		f, cerr := os.Create(exportOut)
		if cerr != nil {
			return fmt.Errorf("create %s: %w", exportOut, cerr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}
	if err := export.WriteCSV(w, t); err != nil {
		return err
	}
	slog.Info("csv exported", "rows", t.Len(), "out", exportOut)
	return nil
}

func exportPostgres(cmd *cobra.Command, t *table.Table) error {
	if cfg.Export.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for --format postgres")
	}
	ctx := cmd.Context()

	poolConfig, err := pgxpool.ParseConfig(cfg.Export.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	sink, err := export.NewPostgresSink(pool, cfg.Export.Table, slog.Default())
	if err != nil {
		return err
	}
	n, err := sink.Write(ctx, t)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d rows written to %s\n", n, cfg.Export.Table)
	return nil
}
