package executor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/parser/ast"
)

// query paths, reported on the select span
const (
	pathCount         = "count"
	pathDistinct      = "distinct"
	pathDistinctWhere = "distinct-where"
	pathColumn        = "column"
	pathAll           = "all"
	pathAggregates    = "aggregates"
	pathColumns       = "columns"
	pathGeneric       = "generic"
)

// shape is the classified form of a SELECT
type shape struct {
	stmt    *ast.SelectStatement
	schema  *schema.Schema
	table   string
	star    bool
	columns []string    // plain columns in selection order
	aggs    []aggregate // selected aggregates
	fields  []string    // output keys in selection order
	limit   int         // -1 when absent
	offset  int
}

func (sh *shape) grouped() bool {
	return len(sh.stmt.GroupBy) > 0 || sh.stmt.Having != nil
}

// onlyAggregates reports a selection made of aggregates alone
func (sh *shape) onlyAggregates() bool {
	return !sh.star && len(sh.columns) == 0 && len(sh.aggs) > 0
}

// window is the number of rows the query can return before OFFSET is
// applied, or 0 when every row is needed
func (sh *shape) window() int {
	if sh.limit < 0 || len(sh.stmt.OrderBy) > 0 || sh.stmt.Distinct {
		return 0
	}
	return sh.offset + sh.limit
}

// payloadColumns is the key order of the envelope payload
func (sh *shape) payloadColumns() []string {
	if !sh.star {
		return sh.fields
	}
	return append(sh.schema.ColumnNames(), sh.fields...)
}

func classify(s *schema.Schema, stmt *ast.SelectStatement) (*shape, error) {
	sh := &shape{stmt: stmt, schema: s, table: s.Table, limit: -1}
	for _, f := range stmt.Fields {
		switch fe := f.(type) {
		case *ast.Identifier:
			if fe.IsStar() {
				sh.star = true
				continue
			}
			col, err := column(s.Table, fe)
			if err != nil {
				return nil, err
			}
			if _, ok := s.Column(col); !ok {
				return nil, dberrors.New(dberrors.SelectError, "unknown column %s in %s", col, s.Table)
			}
			sh.columns = append(sh.columns, col)
			sh.fields = append(sh.fields, col)
		case *ast.FunctionCall:
			a, err := newAggregate(s.Table, fe)
			if err != nil {
				return nil, err
			}
			if _, err := a.validate(s); err != nil {
				return nil, err
			}
			sh.aggs = append(sh.aggs, a)
			sh.fields = append(sh.fields, a.name)
		default:
			return nil, dberrors.New(dberrors.OperationNotSupported, "unsupported select expression %s", f.String())
		}
	}
	for _, g := range stmt.GroupBy {
		col, err := column(s.Table, g)
		if err != nil {
			return nil, err
		}
		if _, ok := s.Column(col); !ok {
			return nil, dberrors.New(dberrors.SelectError, "unknown GROUP BY column %s in %s", col, s.Table)
		}
	}
	if stmt.Limit != nil {
		sh.limit = int(*stmt.Limit)
	}
	if stmt.Offset != nil {
		sh.offset = int(*stmt.Offset)
	}
	return sh, nil
}

// Select runs a SELECT. Unless the statement is answered from the result
// cache it takes the first fast path its shape allows, or the generic path.
func (e *Executor) Select(ctx context.Context, ds string, stmt *ast.SelectStatement, sql string) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "executor.select")
	defer span.End()
	start := time.Now()

	if len(stmt.Tables) != 1 {
		return nil, dberrors.New(dberrors.OperationNotSupported, "SELECT over %d tables is not supported", len(stmt.Tables))
	}
	table := stmt.TableName()
	if sql == "" {
		sql = stmt.String()
	}
	span.SetAttributes(attribute.String("cardinaldb.table", table))

	s, err := e.data.Schema(ds, table)
	if err != nil {
		return nil, tableError(table, err)
	}
	sh, err := classify(s, stmt)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if res, ok := e.cache.Get(ds, table, sql); ok {
			span.SetAttributes(attribute.String("cardinaldb.path", "cache"))
			e.logActivity(ctx, ds, res.Rows)
			return res, nil
		}
	}

	path, err := e.choosePath(ctx, ds, sh)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("cardinaldb.path", path))
	e.logger.Debug("select path chosen", "ds", ds, "table", table, "path", path)

	var records []data.Record
	switch path {
	case pathCount:
		records, err = e.selectCount(ds, sh)
	case pathDistinct:
		records, err = e.selectDistinct(ctx, ds, sh, nil)
	case pathDistinctWhere:
		var keys index.KeySet
		if keys, err = e.where(ctx, ds, table, stmt.Where); err == nil {
			records, err = e.selectDistinct(ctx, ds, sh, keys)
		}
	case pathColumn:
		records, err = e.selectColumn(ctx, ds, sh)
	case pathAll:
		records, err = e.data.SelectAll(ds, table, sh.window())
	case pathAggregates:
		records, err = e.selectAggregates(ctx, ds, sh)
	case pathColumns:
		records, err = e.selectColumns(ctx, ds, sh)
	default:
		records, err = e.selectGeneric(ctx, ds, sh)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if records, err = e.finish(sh, records); err != nil {
		return nil, err
	}

	res := Payload(records, sh.payloadColumns(), time.Since(start))
	span.SetAttributes(attribute.Int("cardinaldb.rows", res.Rows))
	if e.cache != nil {
		e.cache.Put(ds, table, sql, res)
	}
	e.logActivity(ctx, ds, res.Rows)
	return res, nil
}

func (e *Executor) logActivity(ctx context.Context, ds string, rows int) {
	if e.activity != nil && ds != SystemDatastore {
		e.activity.Log(ctx, ds, rows)
	}
}

// choosePath picks the first fast path the shape allows
func (e *Executor) choosePath(ctx context.Context, ds string, sh *shape) (string, error) {
	stmt := sh.stmt
	if !e.fast || sh.grouped() {
		return pathGeneric, nil
	}

	switch {
	case stmt.Where == nil && !sh.star && len(sh.columns) == 0 &&
		len(sh.aggs) == 1 && sh.aggs[0].fn == "COUNT" && sh.aggs[0].col == "*":
		return pathCount, nil

	case stmt.Distinct && !sh.star && len(sh.columns) == 1 && len(sh.aggs) == 0:
		ok, err := e.indexable(ctx, ds, sh)
		if err != nil || !ok {
			return pathGeneric, err
		}
		if stmt.Where == nil {
			return pathDistinct, nil
		}
		return pathDistinctWhere, nil

	case stmt.Where != nil:
		return pathGeneric, nil

	case !stmt.Distinct && !sh.star && len(sh.columns) == 1 && len(sh.aggs) == 0:
		ok, err := e.indexable(ctx, ds, sh)
		if err != nil || !ok {
			return pathGeneric, err
		}
		return pathColumn, nil

	case sh.star && len(sh.columns) == 0 && len(sh.aggs) == 0:
		return pathAll, nil

	case sh.onlyAggregates():
		for _, a := range sh.aggs {
			if a.col == "*" || sh.schema.IsPrimary(a.col) {
				continue
			}
			if ok, err := e.servesValues(ctx, ds, sh.schema, a.col); err != nil || !ok {
				return pathGeneric, err
			}
		}
		return pathAggregates, nil

	case !sh.star && len(sh.columns) >= 2 && len(sh.aggs) == 0:
		ok, err := e.indexable(ctx, ds, sh)
		if err != nil || !ok {
			return pathGeneric, err
		}
		return pathColumns, nil
	}
	return pathGeneric, nil
}

// indexable reports whether every selected column can be read from its
// index and ORDER BY only refers to selected columns
func (e *Executor) indexable(ctx context.Context, ds string, sh *shape) (bool, error) {
	selected := make(map[string]bool, len(sh.columns))
	for _, col := range sh.columns {
		ok, err := e.servesValues(ctx, ds, sh.schema, col)
		if err != nil || !ok {
			return false, err
		}
		selected[col] = true
	}
	for _, item := range sh.stmt.OrderBy {
		id, ok := item.Expr.(*ast.Identifier)
		if !ok || id.Table != "" && id.Table != sh.table || !selected[id.Value] {
			return false, nil
		}
	}
	return true, nil
}

// servesValues reports whether the index of col holds its values as
// cardinals. Hashed indexes hold buckets and lists are stored element-wise.
func (e *Executor) servesValues(ctx context.Context, ds string, s *schema.Schema, col string) (bool, error) {
	c, ok := s.Column(col)
	if !ok || c.Type.IsList() {
		return false, nil
	}
	kind, err := e.data.Indexes().Kind(ctx, ds, s.Table, col)
	if err != nil {
		return false, err
	}
	return kind != schema.IndexHashed, nil
}

func (e *Executor) selectCount(ds string, sh *shape) ([]data.Record, error) {
	n, err := e.data.Count(ds, sh.table)
	if err != nil {
		return nil, err
	}
	return []data.Record{{sh.aggs[0].name: n}}, nil
}

// cardinals lists the values of col that still have entries
func (e *Executor) cardinals(ctx context.Context, ds, table, col string) ([]string, error) {
	it, err := e.data.Indexes().Cardinals(ctx, ds, table, col)
	if err != nil {
		return nil, err
	}
	return index.Drain(it)
}

// typed converts a cardinal to the Go value of its column
func (e *Executor) typed(c *schema.Column, card string) (interface{}, bool) {
	v, err := c.Type.Convert(card)
	if err != nil {
		e.logger.Warn("skipping unconvertible cardinal", "column", c.Name, "cardinal", card, "error", err)
		return nil, false
	}
	return v, true
}

// selectDistinct answers DISTINCT col from the cardinals of col. With keys
// only cardinals holding at least one of keys are returned.
func (e *Executor) selectDistinct(ctx context.Context, ds string, sh *shape, keys index.KeySet) ([]data.Record, error) {
	col := sh.columns[0]
	c, _ := sh.schema.Column(col)
	cards, err := e.cardinals(ctx, ds, sh.table, col)
	if err != nil {
		return nil, err
	}
	if keys != nil && len(keys) == 0 {
		return nil, nil
	}

	indexes := e.data.Indexes()
	found := make([]bool, len(cards))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, card := range cards {
		g.Go(func() error {
			if keys == nil {
				n, err := indexes.IndexCount(gctx, ds, sh.table, col, card)
				if err != nil {
					return err
				}
				found[i] = n > 0
				return nil
			}
			entries, err := indexes.ReadIndexStream(gctx, ds, sh.table, col, card)
			if err != nil {
				return err
			}
			defer entries.Close()
			for entries.Next() {
				if keys.Has(entries.Value()) {
					found[i] = true
					break
				}
			}
			return entries.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []data.Record
	for i, card := range cards {
		if !found[i] {
			continue
		}
		if v, ok := e.typed(c, card); ok {
			records = append(records, data.Record{col: v})
		}
	}
	return records, nil
}

// selectColumn streams one row per index entry of a single column
func (e *Executor) selectColumn(ctx context.Context, ds string, sh *shape) ([]data.Record, error) {
	col := sh.columns[0]
	c, _ := sh.schema.Column(col)
	indexes := e.data.Indexes()
	want := sh.window()

	cards, err := indexes.Cardinals(ctx, ds, sh.table, col)
	if err != nil {
		return nil, err
	}
	defer cards.Close()

	var records []data.Record
	for cards.Next() {
		card := cards.Value()
		v, ok := e.typed(c, card)
		if !ok {
			continue
		}
		entries, err := indexes.ReadIndexStream(ctx, ds, sh.table, col, card)
		if err != nil {
			return nil, err
		}
		for entries.Next() {
			records = append(records, data.Record{col: v})
			if want > 0 && len(records) >= want {
				break
			}
		}
		err = entries.Err()
		entries.Close()
		if err != nil {
			return nil, err
		}
		if want > 0 && len(records) >= want {
			break
		}
	}
	return records, cards.Err()
}

// selectAggregates computes every aggregate from the indexes in parallel
func (e *Executor) selectAggregates(ctx context.Context, ds string, sh *shape) ([]data.Record, error) {
	values := make([]interface{}, len(sh.aggs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, a := range sh.aggs {
		g.Go(func() error {
			v, err := e.aggregateOnIndex(gctx, ds, sh.schema, a)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if code := dberrors.CodeOf(err); code == dberrors.SelectError || code == dberrors.OperationNotSupported {
			return nil, err
		}
		return nil, dberrors.Wrap(dberrors.SelectError, err, numericAggregateHint)
	}

	rec := make(data.Record, len(sh.aggs))
	for i, a := range sh.aggs {
		rec[a.name] = values[i]
	}
	return []data.Record{rec}, nil
}

// selectColumns projects several columns by joining, on primary key, the
// entries of each column's index
func (e *Executor) selectColumns(ctx context.Context, ds string, sh *shape) ([]data.Record, error) {
	projections := make([]map[string]interface{}, len(sh.columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, col := range sh.columns {
		g.Go(func() error {
			m, err := e.project(gctx, ds, sh.schema, col)
			if err != nil {
				return err
			}
			projections[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var base index.KeySet
	for _, col := range sh.columns {
		if sh.schema.IsPrimary(col) {
			keys, err := e.data.SelectAllKeys(ds, sh.table)
			if err != nil {
				return nil, err
			}
			base = keys
			break
		}
	}
	if base == nil {
		base = index.NewKeySet()
		for _, m := range projections {
			for pk := range m {
				base.Add(pk)
			}
		}
	}

	records := make([]data.Record, 0, len(base))
	for _, pk := range base.Sorted() {
		rec := make(data.Record, len(sh.columns))
		for i, col := range sh.columns {
			if v, ok := projections[i][pk]; ok {
				rec[col] = v
			}
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records, nil
}

// project maps every primary key holding a value of col to that value
func (e *Executor) project(ctx context.Context, ds string, s *schema.Schema, col string) (map[string]interface{}, error) {
	c, _ := s.Column(col)
	if s.IsPrimary(col) {
		keys, err := e.data.SelectAllKeys(ds, s.Table)
		if err != nil {
			return nil, err
		}
		m := make(map[string]interface{}, len(keys))
		for pk := range keys {
			if v, ok := e.typed(c, pk); ok {
				m[pk] = v
			}
		}
		return m, nil
	}

	cards, err := e.cardinals(ctx, ds, s.Table, col)
	if err != nil {
		return nil, err
	}
	indexes := e.data.Indexes()
	m := make(map[string]interface{})
	for _, card := range cards {
		v, ok := e.typed(c, card)
		if !ok {
			continue
		}
		pks, err := indexes.ReadIndex(ctx, ds, s.Table, col, card)
		if err != nil {
			return nil, err
		}
		for pk := range pks {
			m[pk] = v
		}
	}
	return m, nil
}
