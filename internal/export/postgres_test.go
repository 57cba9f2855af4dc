package export

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresSink_TableName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"sinan_violencia", false},
		{"analytics.sinan_violencia", false},
		{"Sinan", true},
		{"x; DROP TABLE y", true},
		{"a.b.c", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPostgresSink(nil, tt.name, nil)
			assert.Equal(t, tt.wantErr, err != nil, "error = %v", err)
		})
	}
}

func TestCreateTableSQL(t *testing.T) {
	got := createTableSQL(pgx.Identifier{"analytics", "sinan"}, []string{"ano_notificacao", "uf_notificacao"})
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "analytics"."sinan" ("ano_notificacao" TEXT, "uf_notificacao" TEXT)`, got)
}

func TestCopySource(t *testing.T) {
	src := CopySource(processedFixture())

	var rows [][]any
	for src.Next() {
		vals, err := src.Values()
		require.NoError(t, err)
		rows = append(rows, vals)
	}
	require.NoError(t, src.Err())
	require.Len(t, rows, 2)
	assert.Equal(t, "2019", rows[0][0])
	assert.Nil(t, rows[1][4], "null cells copy as NULL")
}

// TestPostgresSink_Write needs a scratch database; set SINAN_TEST_DATABASE_URL
// to run it.
func TestPostgresSink_Write(t *testing.T) {
	url := os.Getenv("SINAN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SINAN_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	sink, err := NewPostgresSink(pool, "sinan_export_test", nil)
	require.NoError(t, err)
	defer pool.Exec(ctx, "DROP TABLE IF EXISTS sinan_export_test")

	for range 2 {
		n, err := sink.Write(ctx, processedFixture())
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	}

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM sinan_export_test").Scan(&count))
	assert.Equal(t, 2, count, "rewrites replace previous rows")
}
