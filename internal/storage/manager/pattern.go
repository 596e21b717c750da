package manager

import (
	"context"
	"fmt"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/query/operator"
)

// SelectKeysWithPattern iterates the keys whose value of col satisfies
// "col op values". IN and NOT IN take any number of values, BETWEEN takes
// two (reversed bounds are swapped) and every other operator takes one.
// An unknown column yields no keys; a column without an index gets a BTREE index.
func (d *DataManager) SelectKeysWithPattern(ctx context.Context, ds, table, col string, op operator.Operator, values ...interface{}) (index.Iterator, error) {
	s, err := d.catalog.Schema(ds, table)
	if err != nil {
		return nil, err
	}
	c, ok := s.Column(col)
	if !ok {
		d.logger.Debug("pattern search on unknown column", "table", table, "column", col)
		return index.Empty(), nil
	}

	filter, err := buildFilter(c, op, values)
	if err != nil {
		return nil, err
	}

	kind, err := d.indexes.Kind(ctx, ds, table, col)
	if err != nil {
		return nil, err
	}
	if kind == schema.IndexHashed && !isPointLookup(filter) {
		// hashed cardinals carry no order, so the values are read from the rows
		return d.scan(ds, table, col, filter)
	}
	return d.indexes.ReadIndexStreamWithFilter(ctx, ds, table, col, filter)
}

func isPointLookup(f index.Filter) bool {
	switch f.(type) {
	case index.EqualsFilter, index.InFilter:
		return true
	}
	return false
}

// scan filters every record of the table on its value of col
func (d *DataManager) scan(ds, table, col string, filter index.Filter) (index.Iterator, error) {
	keys, err := d.rows.SelectAllKeys(ds, table)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, pk := range keys.Sorted() {
		rec, err := d.rows.Select(ds, table, pk)
		if err != nil || rec == nil {
			d.logger.Warn("skipping record during scan", "table", table, "pk", pk, "error", err)
			continue
		}
		text, ok := data.Text(rec[col])
		if !ok {
			continue
		}
		match, err := filter.Accept(text)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, pk)
		}
	}
	return index.SliceIterator(out), nil
}

// buildFilter converts the reference values to the column type and builds the
// index filter for op
func buildFilter(c *schema.Column, op operator.Operator, values []interface{}) (index.Filter, error) {
	t := c.Type
	switch {
	case t == schema.TypeBoolean:
		if op != operator.EQ && op != operator.NEQ && op != operator.IN && op != operator.NOT_IN {
			return nil, dberrors.New(dberrors.InvalidOperatorUsage, "operator %s cannot be used on boolean column %s", op, c.Name)
		}
	case t.IsNumeric(), t.IsString():
	default:
		if op != operator.EQ && op != operator.IN {
			return nil, dberrors.New(dberrors.InvalidOperatorUsage, "operator %s cannot be used on %s column %s", op, t, c.Name)
		}
	}

	typed := make([]interface{}, len(values))
	for i, v := range values {
		if v == nil {
			return nil, dberrors.New(dberrors.InvalidOperatorUsage, "NULL cannot be compared with %s", op)
		}
		if op == operator.LIKE {
			typed[i] = fmt.Sprint(v)
			continue
		}
		converted, err := t.Convert(v)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.DatatypeMismatch, err, "invalid value for %s (%s)", c.Name, t)
		}
		typed[i] = converted
	}

	want := func(n int) error {
		if len(typed) != n {
			return dberrors.New(dberrors.InvalidOperatorUsage, "operator %s takes %d value(s), got %d", op, n, len(typed))
		}
		return nil
	}

	switch op {
	case operator.EQ:
		if err := want(1); err != nil {
			return nil, err
		}
		text, _ := data.Text(typed[0])
		return index.EqualsFilter{Value: text}, nil
	case operator.IN:
		texts := make([]string, 0, len(typed))
		for _, v := range typed {
			if text, ok := data.Text(v); ok {
				texts = append(texts, text)
			}
		}
		return index.InFilter{Values: texts}, nil
	case operator.NOT_IN:
		return index.NotInFilter{Type: t, Values: typed}, nil
	case operator.NEQ, operator.LT, operator.LTEQ, operator.GT, operator.GTEQ:
		if err := want(1); err != nil {
			return nil, err
		}
		return index.CompareFilter{Op: op, Type: t, Ref: typed[0]}, nil
	case operator.BETWEEN:
		if err := want(2); err != nil {
			return nil, err
		}
		low, high := typed[0], typed[1]
		if cmp, err := index.Compare(low, high); err == nil && cmp > 0 {
			low, high = high, low
		}
		return index.BetweenFilter{Type: t, Low: low, High: high}, nil
	case operator.LIKE:
		if err := want(1); err != nil {
			return nil, err
		}
		return index.NewLikeFilter(typed[0].(string))
	}
	return nil, dberrors.New(dberrors.OperationNotSupported, "operator %s is not supported", op)
}
