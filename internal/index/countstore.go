package index

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
)

// DefaultCountCacheCapacity is the number of cardinals cached per column
const DefaultCountCacheCapacity = 10000

// CountPersister reads and writes the persisted count of one cardinal.
// ReadCount returns -1 when the cardinal has no count.
type CountPersister interface {
	ReadCount(ds, table, col, cardinal string) (int64, error)
	WriteCount(ds, table, col, cardinal string, count int64) error
}

// counter is the cached count of one cardinal
type counter struct {
	mu    sync.RWMutex
	value int64
}

// columnCounts is a bounded LRU of cardinal -> counter.
// The oldest entry sits at the front of the ordered map.
type columnCounts struct {
	mu       sync.Mutex
	capacity int
	entries  *orderedmap.OrderedMap[string, *counter]
}

func (c *columnCounts) get(cardinal string) (*counter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.entries.Get(cardinal)
	if ok {
		_ = c.entries.MoveToBack(cardinal)
	}
	return ctr, ok
}

// putIfAbsent inserts ctr unless another goroutine got there first, and
// returns whichever counter is now cached
func (c *columnCounts) putIfAbsent(cardinal string, ctr *counter) *counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries.Get(cardinal); ok {
		_ = c.entries.MoveToBack(cardinal)
		return existing
	}
	c.entries.Set(cardinal, ctr)
	for c.entries.Len() > c.capacity {
		oldest := c.entries.Oldest()
		c.entries.Delete(oldest.Key)
	}
	return ctr
}

// remove drops cardinal if it still maps to ctr and reports whether the column is now empty
func (c *columnCounts) remove(cardinal string, ctr *counter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries.Get(cardinal); ok && (ctr == nil || existing == ctr) {
		c.entries.Delete(cardinal)
	}
	return c.entries.Len() == 0
}

// CountStore caches per-cardinal entry counts in front of the count files.
// The files are the source of truth; eviction never writes back.
type CountStore struct {
	mu       sync.Mutex
	capacity int
	columns  map[string]*columnCounts
}

// NewCountStore creates a store caching up to capacity cardinals per column
func NewCountStore(capacity int) *CountStore {
	if capacity <= 0 {
		capacity = DefaultCountCacheCapacity
	}
	return &CountStore{
		capacity: capacity,
		columns:  make(map[string]*columnCounts),
	}
}

func columnKey(ds, table, col string) string {
	return ds + "." + table + "." + col
}

func (s *CountStore) column(ds, table, col string, create bool) *columnCounts {
	key := columnKey(ds, table, col)
	s.mu.Lock()
	defer s.mu.Unlock()
	cc, ok := s.columns[key]
	if !ok && create {
		cc = &columnCounts{
			capacity: s.capacity,
			entries:  orderedmap.New[string, *counter](),
		}
		s.columns[key] = cc
	}
	return cc
}

// load returns the cached counter, reading the persisted count on a miss
func (s *CountStore) load(ds, table, col, cardinal string, p CountPersister) (*counter, error) {
	cc := s.column(ds, table, col, true)
	if ctr, ok := cc.get(cardinal); ok {
		return ctr, nil
	}

	value, err := p.ReadCount(ds, table, col, cardinal)
	if err != nil {
		return nil, countError(err, ds, table, col, cardinal)
	}
	return cc.putIfAbsent(cardinal, &counter{value: value}), nil
}

// IndexSize returns the number of entries under cardinal, or -1 if it has none
func (s *CountStore) IndexSize(ds, table, col, cardinal string, p CountPersister) (int64, error) {
	ctr, err := s.load(ds, table, col, cardinal, p)
	if err != nil {
		return 0, err
	}
	ctr.mu.RLock()
	defer ctr.mu.RUnlock()
	return ctr.value, nil
}

// Increment adds one entry to cardinal and persists the new count
func (s *CountStore) Increment(ds, table, col, cardinal string, p CountPersister) (int64, error) {
	ctr, err := s.load(ds, table, col, cardinal, p)
	if err != nil {
		return 0, err
	}

	ctr.mu.Lock()
	defer ctr.mu.Unlock()

	// A missing count file reads as -1
	next := ctr.value + 1
	if ctr.value < 0 {
		next = 1
	}
	if err := p.WriteCount(ds, table, col, cardinal, next); err != nil {
		return 0, countError(err, ds, table, col, cardinal)
	}
	ctr.value = next
	return next, nil
}

// Decrement removes one entry from cardinal and persists the new count.
// When the count reaches zero the cached entry is dropped and the
// persister deletes the count file.
func (s *CountStore) Decrement(ds, table, col, cardinal string, p CountPersister) (int64, error) {
	ctr, err := s.load(ds, table, col, cardinal, p)
	if err != nil {
		return 0, err
	}

	ctr.mu.Lock()
	if ctr.value <= 0 {
		ctr.mu.Unlock()
		return 0, dberrors.New(dberrors.IndexCountError,
			"no count entry for cardinal %q in %s.%s.%s", cardinal, ds, table, col)
	}
	next := ctr.value - 1
	if err := p.WriteCount(ds, table, col, cardinal, next); err != nil {
		ctr.mu.Unlock()
		return 0, countError(err, ds, table, col, cardinal)
	}
	ctr.value = next
	ctr.mu.Unlock()

	if next <= 0 {
		s.evict(ds, table, col, cardinal, ctr)
	}
	return next, nil
}

// Evict drops the cached count of one cardinal
func (s *CountStore) Evict(ds, table, col, cardinal string) {
	s.evict(ds, table, col, cardinal, nil)
}

func (s *CountStore) evict(ds, table, col, cardinal string, ctr *counter) {
	cc := s.column(ds, table, col, false)
	if cc == nil {
		return
	}
	if empty := cc.remove(cardinal, ctr); !empty {
		return
	}

	key := columnKey(ds, table, col)
	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the store lock; another goroutine may have added entries
	if current, ok := s.columns[key]; ok && current == cc {
		cc.mu.Lock()
		if cc.entries.Len() == 0 {
			delete(s.columns, key)
		}
		cc.mu.Unlock()
	}
}

// InvalidateColumn drops every cached count of a column
func (s *CountStore) InvalidateColumn(ds, table, col string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.columns, columnKey(ds, table, col))
}

// InvalidateTable drops every cached count of a table
func (s *CountStore) InvalidateTable(ds, table string) {
	prefix := ds + "." + table + "."
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.columns {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.columns, key)
		}
	}
}

// cachedColumns reports how many column maps are live
func (s *CountStore) cachedColumns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.columns)
}

func countError(err error, ds, table, col, cardinal string) error {
	if dberrors.Is(err, dberrors.IndexCountError) {
		return err
	}
	return dberrors.Wrap(dberrors.IndexCountError, err,
		"count of cardinal %q in %s.%s.%s", cardinal, ds, table, col)
}
