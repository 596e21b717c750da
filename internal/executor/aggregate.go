package executor

import (
	"context"
	"math"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/parser/ast"
)

const numericAggregateHint = "Make sure you are performing aggregate on a numeric column"

// aggregate is one COUNT, SUM, MIN, MAX or AVG term. Its result is written
// into records under name, e.g. "SUM(price)".
type aggregate struct {
	fn   string
	col  string // "*" for COUNT(*)
	name string
}

func newAggregate(table string, call *ast.FunctionCall) (aggregate, error) {
	col := call.Argument.Value
	if !call.Argument.IsStar() {
		var err error
		if col, err = column(table, call.Argument); err != nil {
			return aggregate{}, err
		}
	}
	a := aggregate{fn: call.Name, col: col}
	a.name = a.fn + "(" + a.col + ")"
	return a, nil
}

// validate checks that the aggregate can run on its column and returns the column
func (a aggregate) validate(s *schema.Schema) (*schema.Column, error) {
	if a.col == "*" {
		return nil, nil
	}
	c, ok := s.Column(a.col)
	if !ok {
		return nil, dberrors.New(dberrors.SelectError, "unknown column %s in %s", a.col, a.name)
	}
	if a.fn == "COUNT" {
		return c, nil
	}
	if c.Type.IsList() {
		return nil, dberrors.New(dberrors.OperationNotSupported, "Aggregate on numeric arrays, currently not supported")
	}
	if !c.Type.IsNumeric() {
		return nil, dberrors.New(dberrors.SelectError, "%s: %s is %s", numericAggregateHint, a.col, c.Type)
	}
	return c, nil
}

// accumulator folds weighted values into an aggregate result
type accumulator struct {
	fn       string
	count    int64
	sum      float64
	min, max float64
	seen     bool
}

// add folds value v held by n rows
func (acc *accumulator) add(v float64, n int64) {
	acc.count += n
	acc.sum += v * float64(n)
	if !acc.seen || v < acc.min {
		acc.min = v
	}
	if !acc.seen || v > acc.max {
		acc.max = v
	}
	acc.seen = true
}

// result returns COUNT as int64, and SUM, MIN and MAX as int64 on integer
// columns. An aggregate over no values other than COUNT is nil.
func (acc *accumulator) result(c *schema.Column) interface{} {
	if acc.fn == "COUNT" {
		return acc.count
	}
	if !acc.seen {
		return nil
	}
	integer := c != nil && c.Type.IsInteger()
	var v float64
	switch acc.fn {
	case "SUM":
		v = acc.sum
	case "MIN":
		v = acc.min
	case "MAX":
		v = acc.max
	case "AVG":
		return acc.sum / float64(acc.count)
	}
	if integer {
		return int64(math.Round(v))
	}
	return v
}

// onIndex computes the aggregate from the index of its column: every
// cardinal is weighted by its entry count, no row is read
func (e *Executor) aggregateOnIndex(ctx context.Context, ds string, s *schema.Schema, a aggregate) (interface{}, error) {
	c, err := a.validate(s)
	if err != nil {
		return nil, err
	}
	if a.col == "*" || (a.fn == "COUNT" && s.IsPrimary(a.col)) {
		return e.data.Count(ds, s.Table)
	}

	indexes := e.data.Indexes()
	it, err := indexes.Cardinals(ctx, ds, s.Table, a.col)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	acc := &accumulator{fn: a.fn}
	for it.Next() {
		card := it.Value()
		n, err := indexes.IndexCount(ctx, ds, s.Table, a.col, card)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			continue
		}
		if a.fn == "COUNT" {
			acc.count += n
			continue
		}
		v, err := schema.ToFloat(card)
		if err != nil {
			e.logger.Warn("skipping non-numeric cardinal", "table", s.Table, "column", a.col, "cardinal", card)
			continue
		}
		acc.add(v, n)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return acc.result(c), nil
}

// onRecords computes the aggregate over records. Missing values are
// skipped; numeric aggregates also skip non-numeric values.
func aggregateOnRecords(records []data.Record, a aggregate, c *schema.Column) interface{} {
	acc := &accumulator{fn: a.fn}
	for _, rec := range records {
		if a.col == "*" {
			acc.count++
			continue
		}
		v, ok := rec[a.col]
		if _, present := data.Text(v); !ok || !present {
			continue
		}
		if a.fn == "COUNT" {
			acc.count++
			continue
		}
		f, err := schema.ToFloat(v)
		if err != nil {
			continue
		}
		acc.add(f, 1)
	}
	return acc.result(c)
}
