package index

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/storage/fsname"
)

func TestDirIteratorBatches(t *testing.T) {
	dir := t.TempDir()
	var want []string
	for i := 0; i < dirBatch+10; i++ {
		name := "key/" + strconv.Itoa(i)
		enc, err := fsname.Encode(name)
		assert.NilError(t, err)
		assert.NilError(t, os.WriteFile(filepath.Join(dir, enc), nil, 0644))
		want = append(want, name)
	}

	got, err := Drain(newDirIterator(dir, nil))
	assert.NilError(t, err)
	sort.Strings(got)
	sort.Strings(want)
	assert.DeepEqual(t, got, want)
}

func TestDirIteratorMissingDirectory(t *testing.T) {
	got, err := Drain(newDirIterator(filepath.Join(t.TempDir(), "absent"), nil))
	assert.NilError(t, err)
	assert.Equal(t, len(got), 0)
}

func TestDirIteratorAcceptError(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "a"), nil, 0644))

	boom := errors.New("boom")
	_, err := Drain(newDirIterator(dir, func(string) (bool, error) { return false, boom }))
	assert.ErrorIs(t, err, boom)
}

func TestChainIterator(t *testing.T) {
	sources := map[string][]string{"x": {"1", "2"}, "y": nil, "z": {"3"}}
	it := newChainIterator([]string{"x", "y", "z"}, func(s string) (Iterator, error) {
		return SliceIterator(sources[s]), nil
	})
	got, err := Drain(it)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, []string{"1", "2", "3"})
}

func TestNestedIteratorStopsOnOpenError(t *testing.T) {
	boom := errors.New("boom")
	it := newNestedIterator(SliceIterator([]string{"a", "b"}), func(s string) (Iterator, error) {
		if s == "b" {
			return nil, boom
		}
		return SliceIterator([]string{s + "1"}), nil
	})
	got, err := Drain(it)
	assert.ErrorIs(t, err, boom)
	assert.DeepEqual(t, got, []string{"a1"})
}

func TestKeySetOperations(t *testing.T) {
	a := NewKeySet("1", "2", "3")
	b := NewKeySet("2", "3", "4")

	assert.DeepEqual(t, a.Intersect(b).Sorted(), []string{"2", "3"})
	assert.DeepEqual(t, a.Union(b).Sorted(), []string{"1", "2", "3", "4"})
	assert.Assert(t, a.Has("1"))
	assert.Assert(t, !b.Has("1"))
}
