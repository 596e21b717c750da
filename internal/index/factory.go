package index

import (
	"log/slog"

	"github.com/leengari/cardinaldb/internal/config"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/logging"
	"github.com/leengari/cardinaldb/internal/storage/layout"
)

// Registry hands out one shared strategy per index type. All strategies of
// a registry share the count store, path locks and entry cache, so counts
// stay consistent no matter which caller indexes a column.
type Registry struct {
	layout *layout.Layout
	counts *CountStore
	locks  *pathLocks
	cache  *entryCache
	mode   StreamMode
	logger *slog.Logger

	btree      *BTree
	hashed     *Hashed
	unique     *Unique
	array      *Unsupported
	timeseries *Unsupported
}

// NewRegistry builds the strategies for one data root
func NewRegistry(l *layout.Layout, cfg config.IndexConfig, logger *slog.Logger) *Registry {
	logger = logging.OrDefault(logger).With("component", "index")

	r := &Registry{
		layout: l,
		counts: NewCountStore(cfg.CountCacheCapacity),
		locks:  &pathLocks{},
		mode:   StreamLazy,
		logger: logger,
	}
	if cfg.BTreeCache {
		size := cfg.BTreeCacheSize
		if size <= 0 {
			size = config.Default().Index.BTreeCacheSize
		}
		r.cache = newEntryCache(size)
		r.mode = StreamPrimeCache
	}

	r.btree = newBTree(l, r.counts, r.locks, r.cache, r.mode, logger)
	r.hashed = newHashed(l, r.counts, r.locks, r.cache, r.mode, logger)
	r.unique = newUnique(l, r.counts, r.locks, logger)
	r.array = &Unsupported{kind: schema.IndexArray}
	r.timeseries = &Unsupported{kind: schema.IndexTimeseries}
	return r
}

// Strategy returns the shared strategy for t
func (r *Registry) Strategy(t schema.IndexType) (Strategy, error) {
	switch t {
	case schema.IndexBTree:
		return r.btree, nil
	case schema.IndexHashed:
		return r.hashed, nil
	case schema.IndexUnique:
		return r.unique, nil
	case schema.IndexArray:
		return r.array, nil
	case schema.IndexTimeseries:
		return r.timeseries, nil
	case schema.IndexNone, "":
		return nil, dberrors.New(dberrors.OperationNotSupported, "column is not indexed")
	}
	return nil, dberrors.New(dberrors.OperationNotSupported, "no index strategy for type %s", t)
}

// NewStrategy builds a fresh strategy for t that shares counts and locks but
// has no entry cache of its own. Used by rebuilds that must read the disk.
func (r *Registry) NewStrategy(t schema.IndexType) (Strategy, error) {
	switch t {
	case schema.IndexBTree:
		return newBTree(r.layout, r.counts, r.locks, nil, StreamLazy, r.logger), nil
	case schema.IndexHashed:
		return newHashed(r.layout, r.counts, r.locks, nil, StreamLazy, r.logger), nil
	}
	return r.Strategy(t)
}

// Unique returns the unique strategy with its TryIndex extension
func (r *Registry) Unique() *Unique { return r.unique }

// Counts exposes the shared count store
func (r *Registry) Counts() *CountStore { return r.counts }

// InvalidateTable drops every cached count and entry set of a table
func (r *Registry) InvalidateTable(ds, table string) {
	r.counts.InvalidateTable(ds, table)
	if r.cache != nil {
		r.cache.invalidateTable(ds + "." + table + ".")
	}
}

// Mode is the stream mode readers should ask for
func (r *Registry) Mode() StreamMode { return r.mode }

// InvalidateColumn drops the cached entry sets of one column
func (r *Registry) InvalidateColumn(ds, table, col string) {
	if r.cache != nil {
		r.cache.invalidateColumn(columnKey(ds, table, col))
	}
}
