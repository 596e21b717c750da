package executor

import (
	"context"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/parser/ast"
	"github.com/leengari/cardinaldb/internal/query/operator"
)

const (
	masterGroup    = "_master_"
	missingPart    = "-"
	groupSeparator = "\x1f"
)

// selectGeneric resolves keys, fetches rows and runs grouping, aggregates
// and HAVING over them
func (e *Executor) selectGeneric(ctx context.Context, ds string, sh *shape) ([]data.Record, error) {
	var keys index.KeySet
	var err error
	if sh.stmt.Where != nil {
		keys, err = e.where(ctx, ds, sh.table, sh.stmt.Where)
	} else {
		keys, err = e.data.SelectAllKeys(ds, sh.table)
	}
	if err != nil {
		return nil, err
	}

	records, err := e.fetch(ds, sh.table, keys)
	if err != nil {
		return nil, err
	}

	aggs, err := sh.allAggregates()
	if err != nil {
		return nil, err
	}
	groups := e.group(sh, records)
	collapse := len(sh.stmt.GroupBy) > 0 || sh.onlyAggregates()

	var out []data.Record
	for pair := groups.Oldest(); pair != nil; pair = pair.Next() {
		members := pair.Value
		if len(members) == 0 {
			if collapse && len(sh.stmt.GroupBy) == 0 {
				members = []data.Record{{}}
			} else {
				continue
			}
		}
		for _, a := range aggs {
			c, _ := sh.schema.Column(a.col)
			v := aggregateOnRecords(pair.Value, a, c)
			for _, rec := range members {
				rec[a.name] = v
			}
		}
		if collapse {
			members = members[:1]
		}
		out = append(out, members...)
	}

	if sh.stmt.Having == nil {
		return out, nil
	}
	kept := out[:0]
	for _, rec := range out {
		ok, err := having(sh.table, sh.stmt.Having, rec)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, rec)
		}
	}
	return kept, nil
}

// fetch reads the records of keys in parallel. Unreadable records are
// logged and skipped.
func (e *Executor) fetch(ds, table string, keys index.KeySet) ([]data.Record, error) {
	sorted := keys.Sorted()
	records := make([]data.Record, len(sorted))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, pk := range sorted {
		g.Go(func() error {
			rec, err := e.data.Select(ds, table, pk)
			if err != nil {
				e.logger.Warn("skipping unreadable record", "table", table, "pk", pk, "error", err)
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := records[:0]
	for _, rec := range records {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// group partitions records by the GROUP BY columns in first-seen order.
// Without GROUP BY every record belongs to one group. Records missing
// every grouping column are discarded.
func (e *Executor) group(sh *shape, records []data.Record) *orderedmap.OrderedMap[string, []data.Record] {
	groups := orderedmap.New[string, []data.Record]()
	if len(sh.stmt.GroupBy) == 0 {
		groups.Set(masterGroup, records)
		return groups
	}

	parts := make([]string, len(sh.stmt.GroupBy))
	for _, rec := range records {
		present := false
		for i, g := range sh.stmt.GroupBy {
			text, ok := data.Text(rec[g.Value])
			if !ok {
				text = missingPart
			}
			present = present || ok
			parts[i] = text
		}
		if !present {
			continue
		}
		key := strings.Join(parts, groupSeparator)
		members, _ := groups.Get(key)
		groups.Set(key, append(members, rec))
	}
	return groups
}

// allAggregates returns the selected aggregates followed by those only
// HAVING or ORDER BY refer to
func (sh *shape) allAggregates() ([]aggregate, error) {
	aggs := append([]aggregate(nil), sh.aggs...)
	seen := make(map[string]bool, len(aggs))
	for _, a := range aggs {
		seen[a.name] = true
	}

	var calls []*ast.FunctionCall
	collectCalls(sh.stmt.Having, &calls)
	for _, item := range sh.stmt.OrderBy {
		collectCalls(item.Expr, &calls)
	}
	for _, call := range calls {
		a, err := newAggregate(sh.table, call)
		if err != nil {
			return nil, err
		}
		if seen[a.name] {
			continue
		}
		if _, err := a.validate(sh.schema); err != nil {
			return nil, err
		}
		seen[a.name] = true
		aggs = append(aggs, a)
	}
	return aggs, nil
}

func collectCalls(expr ast.Expression, calls *[]*ast.FunctionCall) {
	switch ex := expr.(type) {
	case *ast.FunctionCall:
		*calls = append(*calls, ex)
	case *ast.LogicalExpression:
		collectCalls(ex.Left, calls)
		collectCalls(ex.Right, calls)
	case *ast.BinaryExpression:
		collectCalls(ex.Left, calls)
		collectCalls(ex.Right, calls)
	case *ast.InExpression:
		collectCalls(ex.Left, calls)
	case *ast.BetweenExpression:
		collectCalls(ex.Left, calls)
	}
}

// having evaluates a HAVING condition against a collapsed record
func having(table string, expr ast.Expression, rec data.Record) (bool, error) {
	switch ex := expr.(type) {
	case *ast.LogicalExpression:
		left, err := having(table, ex.Left, rec)
		if err != nil {
			return false, err
		}
		if ex.Operator == "AND" && !left {
			return false, nil
		}
		if ex.Operator == "OR" && left {
			return true, nil
		}
		return having(table, ex.Right, rec)

	case *ast.BinaryExpression:
		op, err := operator.Map(ex.Operator)
		if err != nil {
			return false, dberrors.Wrap(dberrors.OperationNotSupported, err, "unsupported operator")
		}
		subject, value := ex.Left, ex.Right
		if _, isLit := subject.(*ast.Literal); isLit {
			subject, value = value, subject
			op = op.Mirror()
		}
		v, present, err := havingValue(table, subject, rec)
		if err != nil || !present {
			return false, err
		}
		lit, err := literal(value)
		if err != nil {
			return false, err
		}
		cmp, ok := compareCells(v, lit)
		if !ok {
			return false, nil
		}
		switch op {
		case operator.EQ:
			return cmp == 0, nil
		case operator.NEQ:
			return cmp != 0, nil
		case operator.LT:
			return cmp < 0, nil
		case operator.LTEQ:
			return cmp <= 0, nil
		case operator.GT:
			return cmp > 0, nil
		case operator.GTEQ:
			return cmp >= 0, nil
		}
		return false, dberrors.New(dberrors.OperationNotSupported, "operator %s in HAVING", ex.Operator)

	case *ast.InExpression:
		v, present, err := havingValue(table, ex.Left, rec)
		if err != nil || !present {
			return false, err
		}
		for _, expr := range ex.Values {
			lit, err := literal(expr)
			if err != nil {
				return false, err
			}
			if cmp, ok := compareCells(v, lit); ok && cmp == 0 {
				return !ex.Not, nil
			}
		}
		return ex.Not, nil

	case *ast.BetweenExpression:
		v, present, err := havingValue(table, ex.Left, rec)
		if err != nil || !present {
			return false, err
		}
		low, err := literal(ex.Low)
		if err != nil {
			return false, err
		}
		high, err := literal(ex.High)
		if err != nil {
			return false, err
		}
		lc, lok := compareCells(v, low)
		hc, hok := compareCells(v, high)
		return lok && hok && lc >= 0 && hc <= 0, nil
	}
	return false, dberrors.New(dberrors.OperationNotSupported, "unsupported HAVING condition %s", expr.String())
}

// havingValue reads an aggregate result or a grouping column from rec
func havingValue(table string, expr ast.Expression, rec data.Record) (interface{}, bool, error) {
	var key string
	switch ex := expr.(type) {
	case *ast.FunctionCall:
		a, err := newAggregate(table, ex)
		if err != nil {
			return nil, false, err
		}
		key = a.name
	case *ast.Identifier:
		col, err := column(table, ex)
		if err != nil {
			return nil, false, err
		}
		key = col
	default:
		return nil, false, dberrors.New(dberrors.OperationNotSupported, "HAVING needs an aggregate or a column, got %s", expr.String())
	}
	v, ok := rec[key]
	return v, ok && v != nil, nil
}

// compareCells orders a cell against a constant, comparing numbers as numbers
func compareCells(a, b interface{}) (int, bool) {
	a, b = normalize(a), normalize(b)
	if _, ok := a.(float64); ok {
		if s, isStr := b.(string); isStr {
			f, err := schema.ToFloat(s)
			if err != nil {
				return 0, false
			}
			b = f
		}
	}
	if _, ok := b.(float64); ok {
		if s, isStr := a.(string); isStr {
			f, err := schema.ToFloat(s)
			if err != nil {
				return 0, false
			}
			a = f
		}
	}
	cmp, err := index.Compare(a, b)
	return cmp, err == nil
}

// normalize brings numbers to float64, leaving integers that float64
// cannot hold exactly as int64
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return exactFloat(int64(n))
	case int32:
		return float64(n)
	case int64:
		return exactFloat(n)
	case float32:
		return float64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return exactFloat(i)
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

const maxExactFloat = 1 << 53

func exactFloat(i int64) interface{} {
	if i > maxExactFloat || i < -maxExactFloat {
		return i
	}
	return float64(i)
}

// finish applies ORDER BY, column control, DISTINCT, OFFSET and LIMIT
func (e *Executor) finish(sh *shape, records []data.Record) ([]data.Record, error) {
	if err := e.order(sh, records); err != nil {
		return nil, err
	}
	records = sh.control(records)
	if sh.stmt.Distinct {
		records = distinct(records)
	}
	return sh.page(records), nil
}

// order sorts records by the first ORDER BY item. Values are compared as
// numbers; records without one sort last.
func (e *Executor) order(sh *shape, records []data.Record) error {
	items := sh.stmt.OrderBy
	if len(items) == 0 {
		return nil
	}
	if len(items) > 1 {
		e.logger.Warn("only the first ORDER BY column is applied", "table", sh.table, "columns", len(items))
	}
	item := items[0]

	var key string
	switch ex := item.Expr.(type) {
	case *ast.Identifier:
		col, err := column(sh.table, ex)
		if err != nil {
			return err
		}
		c, ok := sh.schema.Column(col)
		if !ok {
			return dberrors.New(dberrors.SelectError, "unknown ORDER BY column %s in %s", col, sh.table)
		}
		if c.Type.IsList() {
			return dberrors.New(dberrors.OperationNotSupported, "ORDER BY on list column %s is not supported", col)
		}
		if !c.Type.IsNumeric() {
			return dberrors.New(dberrors.SelectError, "ORDER BY needs a numeric column, %s is %s", col, c.Type)
		}
		key = col
	case *ast.FunctionCall:
		a, err := newAggregate(sh.table, ex)
		if err != nil {
			return err
		}
		key = a.name
	default:
		return dberrors.New(dberrors.OperationNotSupported, "cannot order by %s", item.Expr.String())
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, aerr := schema.ToFloat(records[i][key])
		b, berr := schema.ToFloat(records[j][key])
		if aerr != nil || berr != nil {
			return aerr == nil && berr != nil
		}
		if item.Desc {
			return a > b
		}
		return a < b
	})
	return nil
}

// control keeps only the requested keys of every record and drops records
// left empty. With * every column of the table is requested; values of
// dropped columns still stored in rows are not.
func (sh *shape) control(records []data.Record) []data.Record {
	keep := make(map[string]bool, len(sh.fields))
	for _, f := range sh.fields {
		keep[f] = true
	}
	if sh.star {
		for _, c := range sh.schema.Columns {
			keep[c.Name] = true
		}
	}
	out := records[:0]
	for _, rec := range records {
		for k := range rec {
			if !keep[k] {
				delete(rec, k)
			}
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// distinct drops repeated records, keeping the first of each
func distinct(records []data.Record) []data.Record {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, rec := range records {
		b, err := json.Marshal(map[string]interface{}(normalizeRecord(rec)))
		if err != nil {
			out = append(out, rec)
			continue
		}
		if seen[string(b)] {
			continue
		}
		seen[string(b)] = true
		out = append(out, rec)
	}
	return out
}

func normalizeRecord(rec data.Record) data.Record {
	out := make(data.Record, len(rec))
	for k, v := range rec {
		out[k] = normalize(v)
	}
	return out
}

// page applies OFFSET and LIMIT, clamped to the number of records
func (sh *shape) page(records []data.Record) []data.Record {
	if sh.offset > 0 {
		if sh.offset >= len(records) {
			return records[:0]
		}
		records = records[sh.offset:]
	}
	if sh.limit >= 0 && sh.limit < len(records) {
		records = records[:sh.limit]
	}
	return records
}
