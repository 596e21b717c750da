// Package executor runs parsed statements against the data manager and
// answers with JSON envelopes. SELECT resolves keys through the secondary
// indexes and takes a hard-coded fast path when the query shape allows it.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/leengari/cardinaldb/internal/config"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/transaction"
	"github.com/leengari/cardinaldb/internal/logging"
	"github.com/leengari/cardinaldb/internal/parser/ast"
	"github.com/leengari/cardinaldb/internal/storage/manager"
)

// SystemDatastore is never billed in the activity log
const SystemDatastore = ".systemdb"

// ResultCache stores SELECT envelopes by datastore, table and SQL text
type ResultCache interface {
	Get(ds, table, sql string) (*Result, bool)
	Put(ds, table, sql string, r *Result)
}

// ActivityLog records the number of rows each SELECT returned
type ActivityLog interface {
	Log(ctx context.Context, ds string, rows int)
}

type Executor struct {
	data     *manager.DataManager
	cache    ResultCache
	activity ActivityLog
	workers  int
	fast     bool
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an executor. cache and activity may be nil.
func New(dm *manager.DataManager, cfg config.ExecutorConfig, cache ResultCache, activity ActivityLog, logger *slog.Logger) *Executor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Executor{
		data:     dm,
		cache:    cache,
		activity: activity,
		workers:  workers,
		fast:     cfg.FastPaths,
		logger:   logging.OrDefault(logger).With("component", "executor"),
		tracer:   otel.Tracer("github.com/leengari/cardinaldb/internal/executor"),
	}
}

// Execute runs stmt in the datastore of tx. sql is the statement text and
// keys the result cache; when empty the statement is printed instead.
func (e *Executor) Execute(ctx context.Context, tx *transaction.Transaction, stmt ast.Statement, sql string) (*Result, error) {
	if sql == "" {
		sql = stmt.String()
	}

	switch s := stmt.(type) {
	case *ast.CreateDatabaseStatement:
		return Respond(e.createDatabase(s))
	case *ast.DropDatabaseStatement:
		return Respond(e.dropDatabase(s))
	case *ast.UseDatabaseStatement:
		return Respond(nil, dberrors.New(dberrors.OperationNotSupported, "USE must go through a session"))
	}

	ds := tx.Datastore
	if ds == "" {
		return Respond(nil, dberrors.New(dberrors.InvalidQuery, "no datastore selected. Use 'USE <name>' to select one"))
	}

	switch s := stmt.(type) {
	case *ast.SelectStatement:
		return Respond(e.Select(ctx, ds, s, sql))
	case *ast.InsertStatement:
		return Respond(e.insert(ctx, tx, s))
	case *ast.UpdateStatement:
		return Respond(e.update(ctx, tx, s))
	case *ast.DeleteStatement:
		return Respond(e.delete(ctx, tx, s))
	case *ast.CreateTableStatement:
		return Respond(e.createTable(ds, s))
	case *ast.AlterTableStatement:
		return Respond(e.alterTable(ctx, ds, s))
	case *ast.DropTableStatement:
		return Respond(e.dropTable(ds, s))
	case *ast.CreateIndexStatement:
		return Respond(e.createIndex(ctx, ds, s))
	case *ast.DropIndexStatement:
		return Respond(e.dropIndex(ds, s))
	default:
		return Respond(nil, dberrors.New(dberrors.OperationNotSupported, "unsupported statement type: %T", stmt))
	}
}

// column resolves a column reference of table, rejecting references to
// other tables
func column(table string, id *ast.Identifier) (string, error) {
	if id.Table != "" && id.Table != table {
		return "", dberrors.New(dberrors.OperationNotSupported, "column %s refers to table %s; joins are not supported", id.String(), id.Table)
	}
	return id.Value, nil
}

// literal returns the Go value of a constant expression
func literal(expr ast.Expression) (interface{}, error) {
	lit, ok := expr.(*ast.Literal)
	if !ok {
		return nil, dberrors.New(dberrors.OperationNotSupported, "expected a constant, got %s", expr.String())
	}
	return lit.Value, nil
}

func tableError(table string, err error) error {
	if dberrors.Is(err, dberrors.UnknownTable) {
		return dberrors.Wrap(dberrors.SelectError, err, "table %s does not exist", table)
	}
	return fmt.Errorf("failed to load schema of %s: %w", table, err)
}
