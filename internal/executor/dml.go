package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/transaction"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/parser/ast"
)

func (e *Executor) insert(ctx context.Context, tx *transaction.Transaction, stmt *ast.InsertStatement) (*Result, error) {
	ds, table := tx.Datastore, stmt.TableName.Value
	_, span := e.tracer.Start(ctx, "executor.insert")
	defer span.End()

	columns := make([]string, len(stmt.Columns))
	for i, id := range stmt.Columns {
		col, err := column(table, id)
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}

	inserted := 0
	for _, row := range stmt.Rows {
		if len(row) != len(columns) {
			return nil, dberrors.New(dberrors.InvalidQuery, "INSERT has %d columns but %d values", len(columns), len(row))
		}
		values := make(map[string]interface{}, len(row))
		for i, expr := range row {
			v, err := literal(expr)
			if err != nil {
				return nil, err
			}
			if v != nil {
				values[columns[i]] = v
			}
		}

		pk, err := e.data.Insert(ds, table, values)
		if err != nil {
			span.RecordError(err)
			if inserted > 0 {
				e.logger.Warn("insert stopped after partial success", "table", table, "inserted", inserted, "error", err)
			}
			return nil, err
		}
		tx.Record(transaction.Change{Type: transaction.ChangeTypeInsert, Table: table, Key: pk})
		inserted++
	}

	e.logger.Debug("rows inserted", "ds", ds, "table", table, "rows", inserted, "tx", tx.ID)
	return Affected("Inserted", inserted), nil
}

func (e *Executor) update(ctx context.Context, tx *transaction.Transaction, stmt *ast.UpdateStatement) (*Result, error) {
	ds, table := tx.Datastore, stmt.TableName.Value
	ctx, span := e.tracer.Start(ctx, "executor.update")
	defer span.End()

	s, err := e.data.Schema(ds, table)
	if err != nil {
		return nil, err
	}
	changes := make(map[string]interface{}, len(stmt.Assignments))
	for _, a := range stmt.Assignments {
		col, err := column(table, a.Column)
		if err != nil {
			return nil, err
		}
		if _, ok := s.Column(col); !ok {
			return nil, dberrors.New(dberrors.UnknownColumn, "column %s does not exist in %s", col, table)
		}
		if s.IsPrimary(col) {
			return nil, dberrors.New(dberrors.OperationNotSupported, "updating the primary key %s is not supported", col)
		}
		if changes[col], err = literal(a.Value); err != nil {
			return nil, err
		}
	}

	keys, err := e.target(ctx, ds, table, stmt.Where)
	if err != nil {
		return nil, err
	}
	n, err := e.bulk(keys, func(pk string) (bool, error) {
		ok, err := e.data.Update(ds, table, pk, changes)
		if ok {
			tx.Record(transaction.Change{Type: transaction.ChangeTypeUpdate, Table: table, Key: pk})
		}
		return ok, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, bulkError(dberrors.UpdateError, "update", table, err)
	}
	return Affected("Updated", n), nil
}

func (e *Executor) delete(ctx context.Context, tx *transaction.Transaction, stmt *ast.DeleteStatement) (*Result, error) {
	ds, table := tx.Datastore, stmt.TableName.Value
	ctx, span := e.tracer.Start(ctx, "executor.delete")
	defer span.End()

	if _, err := e.data.Schema(ds, table); err != nil {
		return nil, err
	}
	keys, err := e.target(ctx, ds, table, stmt.Where)
	if err != nil {
		return nil, err
	}
	n, err := e.bulk(keys, func(pk string) (bool, error) {
		ok, err := e.data.Delete(ds, table, pk)
		if ok {
			tx.Record(transaction.Change{Type: transaction.ChangeTypeDelete, Table: table, Key: pk})
		}
		return ok, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, bulkError(dberrors.InternalOperationError, "delete", table, err)
	}
	return Affected("Deleted", n), nil
}

// target resolves the keys a write statement applies to
func (e *Executor) target(ctx context.Context, ds, table string, where ast.Expression) (index.KeySet, error) {
	if where == nil {
		return e.data.SelectAllKeys(ds, table)
	}
	return e.where(ctx, ds, table, where)
}

// bulk runs fn for every key in parallel and counts the keys it reports
// as changed. Every failure is collected.
func (e *Executor) bulk(keys index.KeySet, fn func(pk string) (bool, error)) (int, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		errs    error
		changed atomic.Int64
	)
	g.SetLimit(e.workers)
	for pk := range keys {
		g.Go(func() error {
			ok, err := fn(pk)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
				return nil
			}
			if ok {
				changed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(changed.Load()), errs
}

// bulkError keeps a single failure as is and wraps several under code
func bulkError(code dberrors.Code, verb, table string, err error) error {
	errs := multierr.Errors(err)
	if len(errs) == 1 {
		return errs[0]
	}
	return dberrors.Wrap(code, err, "%d rows of %s failed to %s", len(errs), table, verb)
}
