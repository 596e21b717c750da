package index

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

// entryCache keeps the entry sets of recently read cardinals.
// Keys are "<ds>.<table>.<col>" + "/" + cardinal.
//
// Every write to a column moves its generation forward. A set read from disk
// is only cached if no write happened between taking the generation and
// caching the set, so a fill never hides an entry written meanwhile.
type entryCache struct {
	mu       sync.Mutex
	lru      *lru.Cache
	byColumn map[string]map[string]struct{} // column key -> cached cardinal keys
	gens     map[string]uint64               // column key -> write generation
	epoch    uint64                          // moves on table invalidation
}

// generation identifies the cache state a disk read starts from
type generation struct {
	epoch, column uint64
}

type cacheKey struct {
	column   string
	cardinal string
}

func newEntryCache(size int) *entryCache {
	c := &entryCache{
		lru:      lru.New(size),
		byColumn: make(map[string]map[string]struct{}),
		gens:     make(map[string]uint64),
	}
	c.lru.OnEvicted = func(key lru.Key, _ interface{}) {
		k := key.(cacheKey)
		if set, ok := c.byColumn[k.column]; ok {
			delete(set, k.cardinal)
			if len(set) == 0 {
				delete(c.byColumn, k.column)
			}
		}
	}
	return c
}

// get returns a copy of the cached set
func (c *entryCache) get(column, cardinal string) (KeySet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(cacheKey{column, cardinal})
	if !ok {
		return nil, false
	}
	set := v.(KeySet)
	out := make(KeySet, len(set))
	for k := range set {
		out.Add(k)
	}
	return out, true
}

// contains answers from the cache only when the cardinal is cached
func (c *entryCache) contains(column, cardinal, pk string) (found, cached bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(cacheKey{column, cardinal})
	if !ok {
		return false, false
	}
	return v.(KeySet).Has(pk), true
}

func (c *entryCache) generation(column string) generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation{epoch: c.epoch, column: c.gens[column]}
}

// put caches set unless column was written since gen was taken
func (c *entryCache) put(column, cardinal string, set KeySet, gen generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen.epoch != c.epoch || gen.column != c.gens[column] {
		return
	}
	c.lru.Add(cacheKey{column, cardinal}, set)
	cards, ok := c.byColumn[column]
	if !ok {
		cards = make(map[string]struct{})
		c.byColumn[column] = cards
	}
	cards[cardinal] = struct{}{}
}

// add mirrors a new entry into an already cached cardinal
func (c *entryCache) add(column, cardinal, pk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[column]++
	if v, ok := c.lru.Get(cacheKey{column, cardinal}); ok {
		v.(KeySet).Add(pk)
	}
}

func (c *entryCache) invalidate(column, cardinal string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[column]++
	c.lru.Remove(cacheKey{column, cardinal})
}

func (c *entryCache) invalidateColumn(column string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[column]++
	for cardinal := range c.byColumn[column] {
		c.lru.Remove(cacheKey{column, cardinal})
	}
	delete(c.byColumn, column)
}

// invalidateTable drops every cached cardinal of columns under prefix ("<ds>.<table>.")
func (c *entryCache) invalidateTable(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for column, cards := range c.byColumn {
		if !strings.HasPrefix(column, prefix) {
			continue
		}
		for cardinal := range cards {
			c.lru.Remove(cacheKey{column, cardinal})
		}
		delete(c.byColumn, column)
	}
}
