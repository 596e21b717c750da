package index

import (
	"sync"
	"testing"

	"gotest.tools/v3/assert"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
)

// memCounts is an in-memory CountPersister
type memCounts struct {
	mu     sync.Mutex
	values map[string]int64
	reads  int
}

func newMemCounts() *memCounts {
	return &memCounts{values: make(map[string]int64)}
}

func (m *memCounts) ReadCount(ds, table, col, cardinal string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if v, ok := m.values[cardinal]; ok {
		return v, nil
	}
	return -1, nil
}

func (m *memCounts) WriteCount(ds, table, col, cardinal string, count int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if count <= 0 {
		delete(m.values, cardinal)
		return nil
	}
	m.values[cardinal] = count
	return nil
}

func TestCountStoreIncrementDecrement(t *testing.T) {
	s := NewCountStore(10)
	p := newMemCounts()

	n, err := s.Increment("ds", "t", "c", "x", p)
	assert.NilError(t, err)
	assert.Equal(t, n, int64(1))

	n, err = s.Increment("ds", "t", "c", "x", p)
	assert.NilError(t, err)
	assert.Equal(t, n, int64(2))
	assert.Equal(t, p.values["x"], int64(2))

	n, err = s.Decrement("ds", "t", "c", "x", p)
	assert.NilError(t, err)
	assert.Equal(t, n, int64(1))

	n, err = s.Decrement("ds", "t", "c", "x", p)
	assert.NilError(t, err)
	assert.Equal(t, n, int64(0))
	_, persisted := p.values["x"]
	assert.Assert(t, !persisted)
	// the emptied column map is released
	assert.Equal(t, s.cachedColumns(), 0)

	_, err = s.Decrement("ds", "t", "c", "x", p)
	assert.Assert(t, dberrors.Is(err, dberrors.IndexCountError))
}

func TestCountStoreCachesReads(t *testing.T) {
	s := NewCountStore(10)
	p := newMemCounts()
	p.values["x"] = 7

	for i := 0; i < 3; i++ {
		n, err := s.IndexSize("ds", "t", "c", "x", p)
		assert.NilError(t, err)
		assert.Equal(t, n, int64(7))
	}
	assert.Equal(t, p.reads, 1)

	s.Evict("ds", "t", "c", "x")
	_, err := s.IndexSize("ds", "t", "c", "x", p)
	assert.NilError(t, err)
	assert.Equal(t, p.reads, 2)
}

func TestCountStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s := NewCountStore(2)
	p := newMemCounts()
	p.values["a"], p.values["b"], p.values["c"] = 1, 2, 3

	_, _ = s.IndexSize("ds", "t", "c", "a", p)
	_, _ = s.IndexSize("ds", "t", "c", "b", p)
	// touching a makes b the oldest
	_, _ = s.IndexSize("ds", "t", "c", "a", p)
	_, _ = s.IndexSize("ds", "t", "c", "c", p)
	assert.Equal(t, p.reads, 3)

	_, _ = s.IndexSize("ds", "t", "c", "a", p)
	assert.Equal(t, p.reads, 3)
	_, _ = s.IndexSize("ds", "t", "c", "b", p)
	assert.Equal(t, p.reads, 4)
}

func TestCountStoreConcurrentIncrement(t *testing.T) {
	s := NewCountStore(10)
	p := newMemCounts()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Increment("ds", "t", "c", "x", p)
			assert.Check(t, err)
		}()
	}
	wg.Wait()

	n, err := s.IndexSize("ds", "t", "c", "x", p)
	assert.NilError(t, err)
	assert.Equal(t, n, int64(50))
}

func TestCountStoreInvalidateTable(t *testing.T) {
	s := NewCountStore(10)
	p := newMemCounts()

	_, _ = s.Increment("ds", "t", "a", "x", p)
	_, _ = s.Increment("ds", "t", "b", "x", p)
	_, _ = s.Increment("ds", "other", "a", "x", p)
	assert.Equal(t, s.cachedColumns(), 3)

	s.InvalidateTable("ds", "t")
	assert.Equal(t, s.cachedColumns(), 1)
}
