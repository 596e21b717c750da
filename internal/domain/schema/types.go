package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// FieldType is the storage type of a column
type FieldType string

const (
	TypeString    FieldType = "STRING"
	TypeInt       FieldType = "INT"
	TypeLong      FieldType = "LONG"
	TypeFloat     FieldType = "FLOAT"
	TypeDouble    FieldType = "DOUBLE"
	TypeBoolean   FieldType = "BOOLEAN"
	TypeDate      FieldType = "DATE"
	TypeTime      FieldType = "TIME"
	TypeTimestamp FieldType = "TIMESTAMP"
	TypeList      FieldType = "LIST"
)

var fieldTypeAliases = map[string]FieldType{
	"STRING":    TypeString,
	"VARCHAR":   TypeString,
	"CHAR":      TypeString,
	"CHARACTER": TypeString,
	"TEXT":      TypeString,
	"CLOB":      TypeString,
	"INT":       TypeInt,
	"INTEGER":   TypeInt,
	"SMALLINT":  TypeInt,
	"TINYINT":   TypeInt,
	"LONG":      TypeLong,
	"BIGINT":    TypeLong,
	"FLOAT":     TypeFloat,
	"REAL":      TypeFloat,
	"DOUBLE":    TypeDouble,
	"DECIMAL":   TypeDouble,
	"NUMERIC":   TypeDouble,
	"BOOLEAN":   TypeBoolean,
	"BOOL":      TypeBoolean,
	"DATE":      TypeDate,
	"TIME":      TypeTime,
	"TIMESTAMP": TypeTimestamp,
	"DATETIME":  TypeTimestamp,
	"LIST":      TypeList,
	"ARRAY":     TypeList,
}

// ParseFieldType maps a SQL type name to a FieldType
func ParseFieldType(name string) (FieldType, error) {
	if t, ok := fieldTypeAliases[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown field type %q", name)
}

func (t FieldType) IsInteger() bool {
	return t == TypeInt || t == TypeLong
}

func (t FieldType) IsNumeric() bool {
	return t.IsInteger() || t == TypeFloat || t == TypeDouble
}

// IsString reports types compared as text
func (t FieldType) IsString() bool {
	return t == TypeString || t == TypeDate || t == TypeTime || t == TypeTimestamp
}

func (t FieldType) IsList() bool {
	return t == TypeList
}

// Convert converts v (a JSON-decoded cell, a literal or a cardinal string)
// into the Go representation of the column type:
// int64 for integer types, float64 for FLOAT/DOUBLE, bool, string.
// Lists are returned unchanged.
func (t FieldType) Convert(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch {
	case t.IsInteger():
		return toInt64(v)
	case t == TypeFloat || t == TypeDouble:
		return ToFloat(v)
	case t == TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(b))
		}
		return nil, fmt.Errorf("cannot convert %T to %s", v, t)
	case t.IsString():
		switch s := v.(type) {
		case string:
			return s, nil
		case float64:
			if s == math.Trunc(s) && math.Abs(s) < 1e18 {
				return strconv.FormatInt(int64(s), 10), nil
			}
			return strconv.FormatFloat(s, 'f', -1, 64), nil
		default:
			return fmt.Sprint(v), nil
		}
	default:
		return v, nil
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("value %q is not an integer", n)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

// ToFloat converts any numeric representation to float64
func ToFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to number", v)
}

// IndexType is the kind of secondary index declared on a column
type IndexType string

const (
	IndexNone       IndexType = "NONE"
	IndexUnique     IndexType = "UNIQUE"
	IndexBTree      IndexType = "BTREE"
	IndexHashed     IndexType = "HASHED"
	IndexBitmap     IndexType = "BITMAP"
	IndexArray      IndexType = "ARRAY"
	IndexTimeseries IndexType = "TIMESERIES"
	IndexGeo        IndexType = "GEO"
)

var indexTypes = []IndexType{
	IndexNone, IndexUnique, IndexBTree, IndexHashed, IndexBitmap, IndexArray, IndexTimeseries, IndexGeo,
}

// ParseIndexType resolves a case-insensitive index kind name
func ParseIndexType(name string) (IndexType, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("index type must not be blank")
	}
	for _, t := range indexTypes {
		if strings.EqualFold(string(t), trimmed) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown index type %q", name)
}
