package index

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/query/operator"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b interface{}
		want int
	}{
		{int64(1), int64(2), -1},
		{int64(2), float64(1.5), 1},
		{float64(3), int64(3), 0},
		{"abc", "abd", -1},
		{true, false, 1},
		{false, false, 0},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		assert.NilError(t, err)
		assert.Equal(t, got, tt.want, "%v vs %v", tt.a, tt.b)
	}

	_, err := Compare("1", int64(1))
	assert.ErrorContains(t, err, "cannot compare")
}

func TestLikeFilter(t *testing.T) {
	tests := []struct {
		pattern  string
		cardinal string
		want     bool
	}{
		{"ann", "joanna", true},
		{"ann", "anne", true},
		{"ann", "bob", false},
		{"ann%", "anne", true},
		{"ann%", "joanna", false},
		{"%na", "joanna", true},
		{"j_anna", "joanna", true},
		{"j_anna", "jxxanna", false},
		{"a.c%", "abc", false},
		{"a.c%", "a.cd", true},
	}
	for _, tt := range tests {
		f, err := NewLikeFilter(tt.pattern)
		assert.NilError(t, err)
		got, err := f.Accept(tt.cardinal)
		assert.NilError(t, err)
		assert.Equal(t, got, tt.want, "%q LIKE %q", tt.cardinal, tt.pattern)
	}
}

func TestCompareFilterSkipsUnconvertibleCardinals(t *testing.T) {
	f := CompareFilter{Op: operator.GTEQ, Type: schema.TypeDouble, Ref: float64(2.5)}

	ok, err := f.Accept("2.5")
	assert.NilError(t, err)
	assert.Assert(t, ok)

	ok, err = f.Accept("n/a")
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}

func TestCompareFilterStrings(t *testing.T) {
	f := CompareFilter{Op: operator.LT, Type: schema.TypeString, Ref: "m"}

	ok, err := f.Accept("apple")
	assert.NilError(t, err)
	assert.Assert(t, ok)

	ok, err = f.Accept("zebra")
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}
