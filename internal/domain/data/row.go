package data

import (
	"bytes"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// Record represents a single table row
// Key = column name, Value = cell value as decoded from JSON
type Record map[string]interface{}

// Copy creates a shallow copy of the record to prevent mutation
func (r Record) Copy() Record {
	copy := make(Record, len(r))
	for k, v := range r {
		copy[k] = v
	}
	return copy
}

// Merge returns a copy of r with every entry of changes applied on top
func (r Record) Merge(changes map[string]interface{}) Record {
	merged := r.Copy()
	for k, v := range changes {
		merged[k] = v
	}
	return merged
}

// Marshal serializes the record for the row store
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(map[string]interface{}(r))
}

// Unmarshal decodes a record previously written by Marshal. Numbers come
// back as json.Number so LONG values past 2^53 keep every digit.
func Unmarshal(b []byte) (Record, error) {
	var m map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return Record(m), nil
}

// Text returns the canonical text form of a cell value, the form used for
// index cardinals. ok is false for nil and empty values, which are never indexed.
func Text(v interface{}) (s string, ok bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float32:
		return formatFloat(float64(val)), true
	case float64:
		return formatFloat(val), true
	case json.Number:
		return numberText(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(b), len(b) > 0
	}
}

// numberText gives a decoded number the same text its typed value had
// when it was indexed
func numberText(n json.Number) (string, bool) {
	if n == "" {
		return "", false
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	if f, err := n.Float64(); err == nil {
		return formatFloat(f), true
	}
	return n.String(), true
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e18 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
