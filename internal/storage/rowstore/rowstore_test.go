package rowstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/domain/data"
	"github.com/leengari/cardinaldb/internal/storage/layout"
)

func newTestStore(t *testing.T) (*Store, *layout.Layout) {
	t.Helper()
	l := layout.New(t.TempDir(), "")
	return New(l, nil), l
}

func TestSaveSelectDelete(t *testing.T) {
	s, _ := newTestStore(t)

	rec := data.Record{"_id": "a/1", "name": "Ann", "age": json.Number("31")}
	assert.NilError(t, s.Save("app", "users", "a/1", rec))

	got, err := s.Select("app", "users", "a/1")
	assert.NilError(t, err)
	assert.DeepEqual(t, got, rec)

	ok, err := s.Exists("app", "users", "a/1")
	assert.NilError(t, err)
	assert.Assert(t, ok)

	deleted, err := s.Delete("app", "users", "a/1")
	assert.NilError(t, err)
	assert.Assert(t, deleted)

	deleted, err = s.Delete("app", "users", "a/1")
	assert.NilError(t, err)
	assert.Assert(t, !deleted)

	got, err = s.Select("app", "users", "a/1")
	assert.NilError(t, err)
	assert.Assert(t, got == nil)
}

func TestKeysSkipInFlightWrites(t *testing.T) {
	s, l := newTestStore(t)

	for _, pk := range []string{"k1", "k2", "k3"} {
		assert.NilError(t, s.Save("app", "users", pk, data.Record{"_id": pk}))
	}
	stray := filepath.Join(l.DataDir("app", "users"), "~k4.tmp123")
	assert.NilError(t, os.WriteFile(stray, []byte("{"), 0644))

	keys, err := s.SelectAllKeys("app", "users")
	assert.NilError(t, err)
	assert.DeepEqual(t, keys.Sorted(), []string{"k1", "k2", "k3"})

	n, err := s.Count("app", "users")
	assert.NilError(t, err)
	assert.Equal(t, n, int64(3))

	recs, err := s.SelectAll("app", "users", 2)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 2)
	assert.Equal(t, recs[0]["_id"], "k1")
}

func TestMissingTableIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	keys, err := s.SelectAllKeys("app", "ghost")
	assert.NilError(t, err)
	assert.Equal(t, len(keys), 0)

	recs, err := s.SelectAll("app", "ghost", 0)
	assert.NilError(t, err)
	assert.Equal(t, len(recs), 0)
}
