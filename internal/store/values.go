package store

import (
	"math/big"
	"strconv"

	"github.com/jackc/pgtype"
)

// Value accessors for dict rows. pgx surfaces NUMERIC columns as
// pgtype.Numeric and integer columns at their native widths, so the stage
// code reads rows through these instead of type-asserting per call site.

// Int64Value coerces a row value to int64, returning 0 for nil or unknown
// types.
func Int64Value(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case pgtype.Numeric:
		var f float64
		if err := n.AssignTo(&f); err == nil {
			return int64(f)
		}
	case *big.Int:
		return n.Int64()
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

// Float64Value coerces a row value to float64, returning 0 for nil or
// unknown types.
func Float64Value(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case pgtype.Numeric:
		var f float64
		if err := n.AssignTo(&f); err == nil {
			return f
		}
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

// StringValue coerces a row value to string, returning "" for nil.
func StringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}

// Int64 reads column from row as int64.
func (r Row) Int64(column string) int64 { return Int64Value(r[column]) }

// Float64 reads column from row as float64.
func (r Row) Float64(column string) float64 { return Float64Value(r[column]) }

// String reads column from row as string.
func (r Row) String(column string) string { return StringValue(r[column]) }
