package table

import (
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the canonical rendering of date values, matching the
// YYYYMMDD text the notification files use.
const DateLayout = "20060102"

// FormatValue renders a value of any physical source type as a cell.
// Both load backends funnel every value through here so that a file read
// natively and the same file read through SQL produce identical cells.
//
// Floats use the shortest representation, so 1.0 renders as "1" and a code
// stored as a double compares equal to the same code stored as text.
func FormatValue(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Null
	case string:
		return Text(x)
	case []byte:
		return Text(string(x))
	case bool:
		return Text(strconv.FormatBool(x))
	case int:
		return Text(strconv.Itoa(x))
	case int8:
		return Text(strconv.FormatInt(int64(x), 10))
	case int16:
		return Text(strconv.FormatInt(int64(x), 10))
	case int32:
		return Text(strconv.FormatInt(int64(x), 10))
	case int64:
		return Text(strconv.FormatInt(x, 10))
	case uint8:
		return Text(strconv.FormatUint(uint64(x), 10))
	case uint16:
		return Text(strconv.FormatUint(uint64(x), 10))
	case uint32:
		return Text(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return Text(strconv.FormatUint(x, 10))
	case float32:
		return Text(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case float64:
		return Text(strconv.FormatFloat(x, 'f', -1, 64))
	case time.Time:
		return Text(x.UTC().Format(DateLayout))
	case fmt.Stringer:
		return Text(x.String())
	default:
		return Text(fmt.Sprint(x))
	}
}
