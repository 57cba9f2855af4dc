package core

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/sinan/internal/dictionary"
	"github.com/JonMunkholm/sinan/internal/table"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testRegistry(t testing.TB) *dictionary.Registry {
	t.Helper()
	munic := dictionary.New("MUNICIPIO", map[string]string{
		"210530": "Imperatriz",
		"355030": "São Paulo",
	})
	reg, err := dictionary.NewRegistry(munic)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

// cells converts nil to null and everything else through FormatValue.
func cells(vals ...any) []table.Cell {
	out := make([]table.Cell, len(vals))
	for i, v := range vals {
		out[i] = table.FormatValue(v)
	}
	return out
}

func mustTable(t *testing.T, columns []string, rows ...[]table.Cell) *table.Table {
	t.Helper()
	tbl, err := table.New(columns, rows)
	if err != nil {
		t.Fatalf("table.New() error = %v", err)
	}
	return tbl
}

func writeSource(t *testing.T, dir, name string, tbl *table.Table) {
	t.Helper()
	if err := table.WriteParquetFile(filepath.Join(dir, name), tbl); err != nil {
		t.Fatalf("WriteParquetFile(%s) error = %v", name, err)
	}
}

var sourceColumns = []string{
	"DT_NOTIFIC", "NU_ANO", "SG_UF_NOT", "ID_MUNICIP", "NU_IDADE_N", "CS_SEXO",
	"VIOL_FISIC", "VIOL_PSICO", "VIOL_SEXU", "AUTOR_SEXO", "REL_PAI", "REL_MAE",
	"REL_PADRASTO", "REL_TRAB", "DT_OCOR", "ENC_DELEG", "ENC_VARA",
}

// sourceDir writes two yearly files plus an unreadable one and returns
// the directory. Each yearly file has two in-scope rows: the first and
// third of 2019, the first two of 2020.
func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeSource(t, dir, "VIOLBR19.parquet", mustTable(t, sourceColumns,
		cells("20190105", "2019", "21", "210530", "4005", "1", "1", "2", "2", "1", "1", "2", "1", "1", "20190101", "1", "2"),
		cells("20190210", "2019", "35", "355030", "4030", "2", "1", "2", "2", "2", "2", "2", "2", "2", "20190201", "2", "2"),
		cells("20190311", "2019", "35", "3550308", "4017", "2", "2", "2", "1", "2", "2", "1", "2", "2", nil, "2", "1"),
		cells("20190420", "2019", "35", "355030", "4010", "1", "2", "2", "2", "1", "2", "2", "2", "2", nil, "2", "2"),
	))
	writeSource(t, dir, "VIOLBR20.parquet", mustTable(t, sourceColumns,
		cells("20200105", "2020", nil, nil, "4000", "9", "2", "1", "2", "3", "2", "2", "2", "2", "20200101", "2", "2"),
		cells(nil, "2020", "99", "999999", "4012", "1", "2", "2", "1", "9", "2", "2", "2", "2", nil, "2", "2"),
		cells("20200307", "2020", "35", "355030", "3005", "1", "1", "1", "1", "1", "1", "1", "1", "1", nil, "1", "1"),
	))
	if err := os.WriteFile(filepath.Join(dir, "VIOLBR18.parquet"), []byte("not a parquet file"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func testBackendConfig(t *testing.T, dir string) BackendConfig {
	return BackendConfig{SourceDir: dir, Registry: testRegistry(t), Logger: discardLogger}
}
