package export

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/sinan/internal/table"
)

// tableNameRegex accepts table or schema.table in lower snake case.
var tableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// TxBeginner starts transactions. Satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresSink replaces the contents of one table with the processed rows.
type PostgresSink struct {
	db     TxBeginner
	table  pgx.Identifier
	logger *slog.Logger
}

// NewPostgresSink returns a sink writing to tableName.
func NewPostgresSink(db TxBeginner, tableName string, logger *slog.Logger) (*PostgresSink, error) {
	if !tableNameRegex.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSink{
		db:     db,
		table:  pgx.Identifier(strings.Split(tableName, ".")),
		logger: logger,
	}, nil
}

// Write creates the table if needed (one TEXT column per table column),
// empties it and bulk-loads t with COPY, all in one transaction. Readers
// see either the old rows or the new ones.
func (s *PostgresSink) Write(ctx context.Context, t *table.Table) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	columns := ColumnNames(t.Columns())
	if _, err := tx.Exec(ctx, createTableSQL(s.table, columns)); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}
	if _, err := tx.Exec(ctx, "TRUNCATE "+s.table.Sanitize()); err != nil {
		return 0, fmt.Errorf("truncate table: %w", err)
	}

	n, err := tx.CopyFrom(ctx, s.table, columns, CopySource(t))
	if err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("exported processed table", "table", s.table.Sanitize(), "rows", n)
	return n, nil
}

// ColumnNames lower-cases table columns for use as PostgreSQL identifiers.
func ColumnNames(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = strings.ToLower(c)
	}
	return out
}

func createTableSQL(name pgx.Identifier, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name.Sanitize(), strings.Join(defs, ", "))
}

// CopySource streams t's rows to COPY. Null cells are sent as NULL.
func CopySource(t *table.Table) pgx.CopyFromSource {
	i := -1
	return pgx.CopyFromFunc(func() ([]any, error) {
		i++
		if i >= t.Len() {
			return nil, nil
		}
		row := t.Row(i)
		vals := make([]any, len(row))
		for j, c := range row {
			if c.Valid {
				vals[j] = c.String
			}
		}
		return vals, nil
	})
}
