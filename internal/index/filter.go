package index

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/query/operator"
)

// Filter selects cardinals of a column while walking its index
type Filter interface {
	Accept(cardinal string) (bool, error)
}

// EqualsFilter matches exactly one cardinal. Strategies resolve it without
// listing the column directory.
type EqualsFilter struct {
	Value string
}

func (f EqualsFilter) Accept(cardinal string) (bool, error) {
	return cardinal == f.Value, nil
}

// InFilter matches any cardinal of a fixed list. Strategies resolve it by
// visiting each listed cardinal directly.
type InFilter struct {
	Values []string
}

func (f InFilter) Accept(cardinal string) (bool, error) {
	for _, v := range f.Values {
		if v == cardinal {
			return true, nil
		}
	}
	return false, nil
}

// CompareFilter matches cardinals whose typed value satisfies Op against Ref
type CompareFilter struct {
	Op   operator.Operator
	Type schema.FieldType
	Ref  interface{}
}

func (f CompareFilter) Accept(cardinal string) (bool, error) {
	v, err := f.Type.Convert(cardinal)
	if err != nil {
		return false, nil
	}
	c, err := Compare(v, f.Ref)
	if err != nil {
		return false, err
	}
	switch f.Op {
	case operator.EQ:
		return c == 0, nil
	case operator.NEQ:
		return c != 0, nil
	case operator.LT:
		return c < 0, nil
	case operator.LTEQ:
		return c <= 0, nil
	case operator.GT:
		return c > 0, nil
	case operator.GTEQ:
		return c >= 0, nil
	}
	return false, fmt.Errorf("operator %s is not a comparison", f.Op)
}

// BetweenFilter matches cardinals in the closed range [Low, High]
type BetweenFilter struct {
	Type      schema.FieldType
	Low, High interface{}
}

func (f BetweenFilter) Accept(cardinal string) (bool, error) {
	v, err := f.Type.Convert(cardinal)
	if err != nil {
		return false, nil
	}
	lo, err := Compare(v, f.Low)
	if err != nil {
		return false, err
	}
	hi, err := Compare(v, f.High)
	if err != nil {
		return false, err
	}
	return lo >= 0 && hi <= 0, nil
}

// NotInFilter matches cardinals whose typed value is outside Values
type NotInFilter struct {
	Type   schema.FieldType
	Values []interface{}
}

func (f NotInFilter) Accept(cardinal string) (bool, error) {
	v, err := f.Type.Convert(cardinal)
	if err != nil {
		return false, nil
	}
	for _, ref := range f.Values {
		c, err := Compare(v, ref)
		if err != nil {
			return false, err
		}
		if c == 0 {
			return false, nil
		}
	}
	return true, nil
}

// LikeFilter matches cardinals against a SQL LIKE pattern. A pattern without
// wildcards matches any cardinal containing it.
type LikeFilter struct {
	Pattern string
	re      *regexp.Regexp
}

// NewLikeFilter compiles pattern, where % matches any run and _ any single character
func NewLikeFilter(pattern string) (*LikeFilter, error) {
	f := &LikeFilter{Pattern: pattern}
	if !strings.ContainsAny(pattern, "%_") {
		return f, nil
	}
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid LIKE pattern %q: %w", pattern, err)
	}
	f.re = re
	return f, nil
}

func (f *LikeFilter) Accept(cardinal string) (bool, error) {
	if f.re == nil {
		return strings.Contains(cardinal, f.Pattern), nil
	}
	return f.re.MatchString(cardinal), nil
}

// Compare orders two typed values: int64, float64, string or bool.
// Integers and floats compare numerically with each other.
func Compare(a, b interface{}) (int, error) {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmpOrdered(av, bv), nil
		case float64:
			return cmpOrdered(float64(av), bv), nil
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return cmpOrdered(av, bv), nil
		case int64:
			return cmpOrdered(av, float64(bv)), nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
