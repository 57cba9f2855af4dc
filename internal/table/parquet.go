package table

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
)

// columnOrderKey stores the logical column order in the file's key/value
// metadata; parquet groups sort their fields by name.
const columnOrderKey = "sinan.columns"

const readBatchSize = 512

// ReadParquetFile reads every row of a parquet file into a table. Columns
// keep the order recorded by WriteParquetFile when present, file order
// otherwise.
func ReadParquetFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", filepath.Base(path), err)
	}

	schema := pf.Schema()
	paths := schema.Columns()
	columns := make([]string, len(paths))
	converters := make([]func(parquet.Value) Cell, len(paths))
	for i, p := range paths {
		columns[i] = strings.Join(p, ".")
		leaf, _ := schema.Lookup(p...)
		converters[i] = converterFor(leaf.Node)
	}

	var rows [][]Cell
	buf := make([]parquet.Row, readBatchSize)
	for _, rg := range pf.RowGroups() {
		rr := rg.Rows()
		for {
			n, err := rr.ReadRows(buf)
			for _, row := range buf[:n] {
				cells := make([]Cell, len(columns))
				for _, v := range row {
					c := v.Column()
					if c < 0 || c >= len(cells) {
						continue
					}
					cells[c] = converters[c](v)
				}
				rows = append(rows, cells)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rr.Close()
				return nil, fmt.Errorf("read parquet %s: %w", filepath.Base(path), err)
			}
		}
		if err := rr.Close(); err != nil {
			return nil, fmt.Errorf("close row group: %w", err)
		}
	}

	t, err := New(columns, rows)
	if err != nil {
		return nil, err
	}
	if order, ok := pf.Lookup(columnOrderKey); ok && order != "" {
		t = t.Select(strings.Split(order, "\x1f"))
	}
	return t, nil
}

// converterFor maps a leaf column's physical and logical type to the same
// Go values a SQL driver would return, then renders them with FormatValue.
func converterFor(node parquet.Node) func(parquet.Value) Cell {
	var lt *format.LogicalType
	if node != nil {
		lt = node.Type().LogicalType()
	}

	return func(v parquet.Value) Cell {
		if v.IsNull() {
			return Null
		}
		switch v.Kind() {
		case parquet.Boolean:
			return FormatValue(v.Boolean())
		case parquet.Int32:
			if lt != nil && lt.Decimal != nil {
				return FormatValue(decimalValue(big.NewInt(int64(v.Int32())), lt.Decimal.Scale))
			}
			if lt != nil && lt.Date != nil {
				return FormatValue(time.Unix(int64(v.Int32())*86400, 0).UTC())
			}
			return FormatValue(v.Int32())
		case parquet.Int64:
			if lt != nil && lt.Decimal != nil {
				return FormatValue(decimalValue(big.NewInt(v.Int64()), lt.Decimal.Scale))
			}
			if lt != nil && lt.Timestamp != nil {
				return FormatValue(timestampValue(v.Int64(), lt.Timestamp.Unit))
			}
			return FormatValue(v.Int64())
		case parquet.Float:
			return FormatValue(v.Float())
		case parquet.Double:
			return FormatValue(v.Double())
		case parquet.ByteArray, parquet.FixedLenByteArray:
			if lt != nil && lt.Decimal != nil {
				return FormatValue(decimalValue(twosComplement(v.ByteArray()), lt.Decimal.Scale))
			}
			return Text(string(v.ByteArray()))
		default:
			return Text(v.String())
		}
	}
}

// decimalValue scales an unscaled decimal to float64, matching how SQL
// drivers surface DECIMAL columns.
func decimalValue(unscaled *big.Int, scale int32) float64 {
	f, _ := new(big.Float).SetInt(unscaled).Float64()
	if scale == 0 {
		return f
	}
	return f / math.Pow10(int(scale))
}

// twosComplement decodes a big-endian two's complement integer.
func twosComplement(b []byte) *big.Int {
	n := new(big.Int).SetBytes(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8)))
	}
	return n
}

func timestampValue(n int64, unit format.TimeUnit) time.Time {
	switch {
	case unit.Millis != nil:
		return time.UnixMilli(n).UTC()
	case unit.Nanos != nil:
		return time.Unix(0, n).UTC()
	default:
		return time.UnixMicro(n).UTC()
	}
}

// WriteParquetFile writes t as a parquet file of optional string columns.
// The file is written to a temporary name and renamed into place.
func WriteParquetFile(path string, t *Table) error {
	group := make(parquet.Group, len(t.columns))
	for _, c := range t.columns {
		group[c] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("sinan", group)

	// Leaf order is alphabetical; map each leaf back to its table column.
	leaves := schema.Columns()
	source := make([]int, len(leaves))
	for i, p := range leaves {
		source[i] = t.index[p[0]]
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := parquet.NewWriter(tmp, schema,
		parquet.KeyValueMetadata(columnOrderKey, strings.Join(t.columns, "\x1f")))

	batch := make([]parquet.Row, 0, readBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := w.WriteRows(batch)
		batch = batch[:0]
		return err
	}

	for _, r := range t.rows {
		row := make(parquet.Row, len(leaves))
		for i, j := range source {
			cell := r[j]
			if cell.Valid {
				row[i] = parquet.ValueOf(cell.String).Level(0, 1, i)
			} else {
				row[i] = parquet.Value{}.Level(0, 0, i)
			}
		}
		batch = append(batch, row)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				tmp.Close()
				return fmt.Errorf("write rows: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
