//go:build cgo

package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/JonMunkholm/sinan/internal/logging"
	"github.com/JonMunkholm/sinan/internal/table"
)

// DuckDBBackendName identifies the analytical engine backend.
const DuckDBBackendName = "duckdb"

func init() {
	RegisterBackend(BackendDefinition{
		Name: DuckDBBackendName,
		Fast: true,
		Available: func() error {
			c, err := duckdb.NewConnector("", nil)
			if err != nil {
				return err
			}
			return c.Close()
		},
		New: func(cfg BackendConfig) (Backend, error) {
			return NewDuckDBProcessor(cfg)
		},
	})
}

// memoryLimitRegex accepts DuckDB size settings such as "4GB", "512 MiB"
// or "75%".
var memoryLimitRegex = regexp.MustCompile(`(?i)^\d+(\.\d+)?\s*(B|KB|MB|GB|TB|KIB|MIB|GIB|TIB|%)?$`)

// DuckDBProcessor evaluates the age predicate inside DuckDB, straight over
// the parquet files, so only in-scope rows are materialised. It owns no
// dictionaries; decoding happens afterwards in the reference processor.
type DuckDBProcessor struct {
	sourceDir   string
	logger      *slog.Logger
	memoryLimit string
	threads     int
}

// NewDuckDBProcessor validates the engine settings in cfg.
func NewDuckDBProcessor(cfg BackendConfig) (*DuckDBProcessor, error) {
	limit := strings.TrimSpace(cfg.EngineMemoryLimit)
	if limit != "" && !memoryLimitRegex.MatchString(limit) {
		return nil, fmt.Errorf("invalid duckdb memory limit %q", limit)
	}
	if cfg.EngineThreads < 0 {
		return nil, fmt.Errorf("invalid duckdb threads %d", cfg.EngineThreads)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDBProcessor{
		sourceDir:   cfg.SourceDir,
		logger:      logger,
		memoryLimit: limit,
		threads:     cfg.EngineThreads,
	}, nil
}

// Name implements Backend.
func (p *DuckDBProcessor) Name() string {
	return DuckDBBackendName
}

// open acquires a private in-memory database. The caller must call the
// returned close function.
func (p *DuckDBProcessor) open() (*sql.DB, func(), error) {
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		var stmts []string
		if p.memoryLimit != "" {
			stmts = append(stmts, fmt.Sprintf("SET memory_limit = '%s'", p.memoryLimit))
		}
		if p.threads > 0 {
			stmts = append(stmts, fmt.Sprintf("SET threads = %d", p.threads))
		}
		for _, s := range stmts {
			if _, err := execer.ExecContext(context.Background(), s, nil); err != nil {
				return fmt.Errorf("%s: %w", s, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open duckdb: %w", err)
	}
	db := sql.OpenDB(connector)
	// One connection keeps the settings applied by the init hook in force.
	db.SetMaxOpenConns(1)
	return db, func() {
		db.Close()
		connector.Close()
	}, nil
}

// LoadFiltered implements Backend. Each file is queried with the age
// predicate pushed down and rows ordered by their position in the file;
// results are stacked by column name in file order.
func (p *DuckDBProcessor) LoadFiltered(ctx context.Context, q Query) (*table.Table, *LoadReport, error) {
	done := logging.Stage(p.logger, "duckdb_load")

	files, err := sourceFiles(p.sourceDir)
	if err != nil {
		return nil, nil, err
	}

	db, closeDB, err := p.open()
	if err != nil {
		return nil, nil, err
	}
	defer closeDB()

	report := &LoadReport{Backend: DuckDBBackendName}
	var parts []*table.Table
	for _, f := range files {
		schema, err := p.probe(ctx, db, f)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			p.logger.Warn("skipping unreadable source file", "file", f, "error", err)
			report.skip(f, err)
			continue
		}
		report.Files = append(report.Files, f)

		t, err := p.queryFile(ctx, db, f, schema, q)
		if err != nil {
			return nil, nil, mapEngineError(fmt.Errorf("query %s: %w", f, err))
		}
		parts = append(parts, t)
		report.RowsReturned += t.Len()
	}
	if len(parts) == 0 {
		return nil, report, fmt.Errorf("%w: all %d files failed to read", ErrNoSources, len(files))
	}

	t := table.Concat(parts...)
	t = t.Select(q.Columns.Resolve(t.Columns()))
	report.RowsRead = report.RowsReturned
	done("files", len(report.Files), "skipped", len(report.Skipped), "rows", t.Len())
	return t, report, nil
}

type columnInfo struct {
	name   string
	dbType string
}

// probe reads a file's schema without scanning rows.
func (p *DuckDBProcessor) probe(ctx context.Context, db *sql.DB, path string) ([]columnInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM read_parquet(%s) LIMIT 0", quoteLiteral(path)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	out := make([]columnInfo, len(types))
	for i, ct := range types {
		out[i] = columnInfo{name: ct.Name(), dbType: strings.ToUpper(ct.DatabaseTypeName())}
	}
	return out, rows.Err()
}

func (p *DuckDBProcessor) queryFile(ctx context.Context, db *sql.DB, path string, schema []columnInfo, q Query) (*table.Table, error) {
	available := make([]string, len(schema))
	types := make(map[string]string, len(schema))
	for i, c := range schema {
		available[i] = c.name
		types[c.name] = c.dbType
	}
	cols := q.Columns.Resolve(available)

	where, args := agePushdown(types, q.AgeCodes)
	if len(cols) == 0 || where == "FALSE" {
		// Keep the file's columns in the union even when no row matches.
		return table.New(cols, nil)
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM read_parquet(%s, file_row_number = true) WHERE %s ORDER BY file_row_number",
		strings.Join(quoted, ", "), quoteLiteral(path), where,
	)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var data [][]table.Cell
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]table.Cell, len(cols))
		for i, v := range vals {
			row[i] = engineValue(v)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table.New(cols, data)
}

// agePushdown builds the WHERE clause for the age inclusion list. Text and
// integer columns compare their text rendering; floating and decimal
// columns compare numerically so 4005.0 matches "4005" as it does after
// table.FormatValue.
func agePushdown(types map[string]string, codes []string) (string, []any) {
	if len(codes) == 0 {
		return "TRUE", nil
	}
	dbType, ok := types[ColIdade]
	if !ok {
		return "FALSE", nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(codes)), ", ")
	args := make([]any, len(codes))
	col := quoteIdent(ColIdade)

	if isFractionalType(dbType) {
		for i, c := range codes {
			f, ok := ParseNumber(table.Text(c))
			if !ok {
				f = -1
			}
			args[i] = f
		}
		return fmt.Sprintf("CAST(%s AS DOUBLE) IN (%s)", col, placeholders), args
	}
	for i, c := range codes {
		args[i] = c
	}
	return fmt.Sprintf("CAST(%s AS VARCHAR) IN (%s)", col, placeholders), args
}

func isFractionalType(t string) bool {
	return t == "FLOAT" || t == "DOUBLE" || t == "REAL" || strings.HasPrefix(t, "DECIMAL")
}

// engineValue normalises driver-specific values before formatting.
func engineValue(v any) table.Cell {
	switch x := v.(type) {
	case duckdb.Decimal:
		return table.FormatValue(x.Float64())
	default:
		return table.FormatValue(v)
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// mapEngineError turns DuckDB allocation failures into ErrResourceExhausted.
func mapEngineError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "out of memory") {
		return fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	return err
}
