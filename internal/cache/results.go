// Package cache keeps SELECT envelopes keyed by datastore, table and SQL
// text. Any write to a table evicts every envelope of that table.
package cache

import (
	"log/slog"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/leengari/cardinaldb/internal/executor"
	"github.com/leengari/cardinaldb/internal/logging"
)

type resultKey struct {
	table string // "<ds>.<table>"
	sql   string
}

// Results is a bounded LRU of query results. It is safe for concurrent use.
type Results struct {
	mu      sync.Mutex
	entries *lru.Cache
	byTable map[string]map[string]struct{}
	logger  *slog.Logger

	hits, misses uint64
}

// NewResults creates a cache holding at most size envelopes
func NewResults(size int, logger *slog.Logger) *Results {
	r := &Results{
		entries: lru.New(size),
		byTable: make(map[string]map[string]struct{}),
		logger:  logging.OrDefault(logger).With("component", "resultcache"),
	}
	r.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		k := key.(resultKey)
		if queries, ok := r.byTable[k.table]; ok {
			delete(queries, k.sql)
			if len(queries) == 0 {
				delete(r.byTable, k.table)
			}
		}
	}
	return r
}

func tableKey(ds, table string) string {
	return ds + "." + table
}

func (r *Results) Get(ds, table, sql string) (*executor.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries.Get(resultKey{tableKey(ds, table), sql})
	if !ok {
		r.misses++
		return nil, false
	}
	r.hits++
	return v.(*executor.Result), true
}

func (r *Results) Put(ds, table, sql string, res *executor.Result) {
	tk := tableKey(ds, table)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries.Add(resultKey{tk, sql}, res)
	queries, ok := r.byTable[tk]
	if !ok {
		queries = make(map[string]struct{})
		r.byTable[tk] = queries
	}
	queries[sql] = struct{}{}
}

// InvalidateTable evicts every result of table
func (r *Results) InvalidateTable(ds, table string) {
	tk := tableKey(ds, table)
	r.mu.Lock()
	defer r.mu.Unlock()
	queries := r.byTable[tk]
	if len(queries) == 0 {
		return
	}
	sqls := make([]string, 0, len(queries))
	for sql := range queries {
		sqls = append(sqls, sql)
	}
	for _, sql := range sqls {
		r.entries.Remove(resultKey{tk, sql})
	}
	r.logger.Debug("results invalidated", "ds", ds, "table", table, "entries", len(sqls))
}

// Len returns the number of cached results
func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Len()
}

// Stats returns the hit and miss counters
func (r *Results) Stats() (hits, misses uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits, r.misses
}
