package cache

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/executor"
)

func TestResultsGetPut(t *testing.T) {
	r := NewResults(8, nil)
	res := executor.Affected("Returned", 2)

	_, ok := r.Get("shop", "items", "SELECT * FROM items")
	assert.Assert(t, !ok)

	r.Put("shop", "items", "SELECT * FROM items", res)
	got, ok := r.Get("shop", "items", "SELECT * FROM items")
	assert.Assert(t, ok)
	assert.Equal(t, got, res)

	_, ok = r.Get("other", "items", "SELECT * FROM items")
	assert.Assert(t, !ok)

	hits, misses := r.Stats()
	assert.Equal(t, hits, uint64(1))
	assert.Equal(t, misses, uint64(2))
}

func TestResultsInvalidateTable(t *testing.T) {
	r := NewResults(8, nil)
	r.Put("shop", "items", "q1", executor.Ack("a"))
	r.Put("shop", "items", "q2", executor.Ack("b"))
	r.Put("shop", "orders", "q1", executor.Ack("c"))

	r.InvalidateTable("shop", "items")
	assert.Equal(t, r.Len(), 1)
	_, ok := r.Get("shop", "items", "q1")
	assert.Assert(t, !ok)
	_, ok = r.Get("shop", "orders", "q1")
	assert.Assert(t, ok)

	r.InvalidateTable("shop", "missing")
	assert.Equal(t, r.Len(), 1)
}

func TestResultsEvictOldest(t *testing.T) {
	r := NewResults(2, nil)
	r.Put("shop", "items", "q1", executor.Ack("1"))
	r.Put("shop", "items", "q2", executor.Ack("2"))
	_, _ = r.Get("shop", "items", "q1")
	r.Put("shop", "items", "q3", executor.Ack("3"))

	_, ok := r.Get("shop", "items", "q2")
	assert.Assert(t, !ok)
	_, ok = r.Get("shop", "items", "q1")
	assert.Assert(t, ok)

	// evicted entries no longer count against the table
	r.InvalidateTable("shop", "items")
	assert.Equal(t, r.Len(), 0)
}
