// Package engine is the SQL entry point. It wires the storage stack once
// per process and hands out sessions that parse and dispatch statements.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/leengari/cardinaldb/internal/activity"
	"github.com/leengari/cardinaldb/internal/cache"
	"github.com/leengari/cardinaldb/internal/config"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/executor"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/indexmgr"
	"github.com/leengari/cardinaldb/internal/logging"
	"github.com/leengari/cardinaldb/internal/storage/catalog"
	"github.com/leengari/cardinaldb/internal/storage/layout"
	"github.com/leengari/cardinaldb/internal/storage/manager"
	"github.com/leengari/cardinaldb/internal/storage/rowstore"
)

// Engine owns the storage stack shared by every session
type Engine struct {
	cfg      *config.Config
	data     *manager.DataManager
	exec     *executor.Executor
	results  *cache.Results
	activity *activity.Log
	logger   *slog.Logger
}

// Open builds the engine over cfg.DataDir
func Open(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrDefault(logger)

	root, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir %s: %w", cfg.DataDir, err)
	}

	l := layout.New(root, cfg.DeleteFolder)
	cat := catalog.New(l, logger)
	rows := rowstore.New(l, logger)
	idx := indexmgr.New(index.NewRegistry(l, cfg.Index, logger), cat, rows, cfg.Executor.Workers, logger)
	dm := manager.New(l, rows, cat, idx, logger)

	acts, err := activity.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity log: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		data:     dm,
		activity: acts,
		logger:   logger.With("component", "engine"),
	}

	var results executor.ResultCache
	if cfg.Executor.ResultCache {
		e.results = cache.NewResults(cfg.Executor.ResultCacheSize, logger)
		dm.OnChange(e.results)
		results = e.results
	}
	e.exec = executor.New(dm, cfg.Executor, results, acts, logger)

	e.logger.Info("engine opened",
		"data_dir", root,
		"workers", cfg.Executor.Workers,
		"result_cache", cfg.Executor.ResultCache,
		"fast_paths", cfg.Executor.FastPaths,
	)
	return e, nil
}

func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) Data() *manager.DataManager { return e.data }

func (e *Engine) Executor() *executor.Executor { return e.exec }

func (e *Engine) Activity() *activity.Log { return e.activity }

// Results returns the result cache, nil when disabled
func (e *Engine) Results() *cache.Results { return e.results }

// ListDatastores returns the datastores under the data dir
func (e *Engine) ListDatastores() ([]string, error) {
	return e.data.ListDatastores()
}

// Reindex drops the index of col, if any, and builds it again as kind
func (e *Engine) Reindex(ctx context.Context, ds, table, col string, kind schema.IndexType) error {
	if !e.data.DatastoreExists(ds) {
		return dberrors.New(dberrors.DatastoreInvalid, "datastore %s does not exist", ds)
	}
	if err := e.data.Indexes().DropIndex(ds, table, col); err != nil && !dberrors.Is(err, dberrors.NotIndexed) {
		return fmt.Errorf("failed to drop index %s.%s: %w", table, col, err)
	}
	if err := e.data.Indexes().Index(ctx, ds, table, col, kind); err != nil {
		return fmt.Errorf("failed to index %s.%s: %w", table, col, err)
	}
	e.data.InvalidateTable(ds, table)
	e.logger.Info("reindexed", "ds", ds, "table", table, "column", col, "kind", kind)
	return nil
}

// Session starts a session with no datastore selected
func (e *Engine) Session() *Session {
	return newSession(e)
}

// Envelope turns the outcome of Session.Execute into an envelope for
// clients. Errors that were not already answered become ack:"0".
func Envelope(res *executor.Result, err error) *executor.Result {
	if err == nil {
		return res
	}
	return executor.Failure(executor.CauseOf(err))
}
