package indexmgr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/config"
	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/storage/catalog"
	"github.com/leengari/cardinaldb/internal/storage/fsname"
	"github.com/leengari/cardinaldb/internal/storage/layout"
	"github.com/leengari/cardinaldb/internal/storage/rowstore"
)

type fixture struct {
	layout  *layout.Layout
	catalog *catalog.Catalog
	rows    *rowstore.Store
	mgr     *Manager
}

func newFixture(t *testing.T, rows map[string]data.Record) *fixture {
	t.Helper()
	l := layout.New(t.TempDir(), "")
	cat := catalog.New(l, nil)
	store := rowstore.New(l, nil)
	reg := index.NewRegistry(l, config.Default().Index, nil)

	s := schema.New("people")
	for _, c := range []*schema.Column{
		{Name: "name", Type: schema.TypeString},
		{Name: "city", Type: schema.TypeString},
		{Name: "age", Type: schema.TypeInt},
	} {
		assert.NilError(t, s.AddColumn(c))
	}
	assert.NilError(t, cat.CreateTable("app", s))

	for pk, rec := range rows {
		rec["_id"] = pk
		assert.NilError(t, store.Save("app", "people", pk, rec))
	}
	return &fixture{layout: l, catalog: cat, rows: store, mgr: New(reg, cat, store, 4, nil)}
}

func people() map[string]data.Record {
	return map[string]data.Record{
		"p1": {"name": "Ann", "city": "Nairobi", "age": float64(30)},
		"p2": {"name": "Ben", "city": "Nairobi", "age": float64(41)},
		"p3": {"name": "Cia", "city": "Mombasa", "age": float64(30)},
		"p4": {"name": "Dan"},
	}
}

func TestIndexBuildsFromExistingRows(t *testing.T) {
	f := newFixture(t, people())
	ctx := context.Background()

	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "city", schema.IndexBTree))

	keys, err := f.mgr.ReadIndex(ctx, "app", "people", "city", "Nairobi")
	assert.NilError(t, err)
	assert.DeepEqual(t, keys.Sorted(), []string{"p1", "p2"})

	n, err := f.mgr.IndexCount(ctx, "app", "people", "city", "Mombasa")
	assert.NilError(t, err)
	assert.Equal(t, n, int64(1))

	s, err := f.catalog.Schema("app", "people")
	assert.NilError(t, err)
	c, _ := s.Column("city")
	assert.Equal(t, c.Index, schema.IndexBTree)

	err = f.mgr.Index(ctx, "app", "people", "city", schema.IndexHashed)
	assert.Assert(t, dberrors.Is(err, dberrors.AlreadyIndexed))

	err = f.mgr.Index(ctx, "app", "people", "ghost", schema.IndexBTree)
	assert.Assert(t, dberrors.Is(err, dberrors.UnknownColumn))
}

func TestUniqueBuildRejectsDuplicates(t *testing.T) {
	f := newFixture(t, people())
	ctx := context.Background()

	err := f.mgr.Index(ctx, "app", "people", "age", schema.IndexUnique)
	var violation *dberrors.ConstraintError
	assert.Assert(t, errors.As(err, &violation))
	assert.Equal(t, violation.Constraint, "unique")

	s, err := f.catalog.Schema("app", "people")
	assert.NilError(t, err)
	c, _ := s.Column("age")
	assert.Equal(t, c.Index, schema.IndexNone)

	_, err = os.Stat(f.layout.IndexColumn("app", "people", "age"))
	assert.Assert(t, os.IsNotExist(err))

	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "name", schema.IndexUnique))
	owner, err := f.mgr.AnyCardinalEntry(ctx, "app", "people", "name", "Cia")
	assert.NilError(t, err)
	assert.Equal(t, owner, "p3")
}

func TestDropIndexRules(t *testing.T) {
	f := newFixture(t, people())
	ctx := context.Background()

	err := f.mgr.DropIndex("app", "people", "_id")
	assert.Assert(t, dberrors.Is(err, dberrors.PrimaryKeyIndexDropRestricted))

	err = f.mgr.DropIndex("app", "people", "city")
	assert.Assert(t, dberrors.Is(err, dberrors.NotIndexed))

	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "city", schema.IndexBTree))
	assert.NilError(t, f.mgr.DropIndex("app", "people", "city"))

	s, err := f.catalog.Schema("app", "people")
	assert.NilError(t, err)
	c, _ := s.Column("city")
	assert.Equal(t, c.Index, schema.IndexNone)
}

func TestReadBuildsMissingIndex(t *testing.T) {
	f := newFixture(t, people())
	ctx := context.Background()

	it, err := f.mgr.Cardinals(ctx, "app", "people", "age")
	assert.NilError(t, err)
	cards, err := index.Drain(it)
	assert.NilError(t, err)
	assert.Equal(t, len(cards), 2)

	kind, err := f.mgr.Kind(ctx, "app", "people", "age")
	assert.NilError(t, err)
	assert.Equal(t, kind, schema.IndexBTree)
}

func TestPrimaryKeyReads(t *testing.T) {
	f := newFixture(t, people())
	ctx := context.Background()

	it, err := f.mgr.ReadIndexStreamWithFilter(ctx, "app", "people", "_id", index.InFilter{Values: []string{"p1", "p9", "p3"}})
	assert.NilError(t, err)
	keys, err := index.Drain(it)
	assert.NilError(t, err)
	assert.DeepEqual(t, keys, []string{"p1", "p3"})

	like, err := index.NewLikeFilter("p_")
	assert.NilError(t, err)
	it, err = f.mgr.ReadIndexStreamWithFilter(ctx, "app", "people", "_id", like)
	assert.NilError(t, err)
	set, err := index.DrainSet(it)
	assert.NilError(t, err)
	assert.Equal(t, len(set), 4)

	n, err := f.mgr.IndexCount(ctx, "app", "people", "_id", "p2")
	assert.NilError(t, err)
	assert.Equal(t, n, int64(1))
}

func TestWriteHooks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "city", schema.IndexBTree))
	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "name", schema.IndexUnique))
	s, err := f.catalog.Schema("app", "people")
	assert.NilError(t, err)

	rec := data.Record{"_id": "p1", "name": "Ann", "city": "Nairobi"}
	assert.NilError(t, f.mgr.AddIndex("app", s, "p1", rec))

	err = f.mgr.CheckRecord("app", s, "p2", data.Record{"name": "Ann"})
	assert.Assert(t, err != nil)
	assert.NilError(t, f.mgr.CheckRecord("app", s, "p1", rec))

	moved := rec.Merge(map[string]interface{}{"city": "Kisumu"})
	assert.NilError(t, f.mgr.DiffIndex("app", s, "p1", rec, moved))

	keys, err := f.mgr.ReadIndex(ctx, "app", "people", "city", "Nairobi")
	assert.NilError(t, err)
	assert.Equal(t, len(keys), 0)
	keys, err = f.mgr.ReadIndex(ctx, "app", "people", "city", "Kisumu")
	assert.NilError(t, err)
	assert.DeepEqual(t, keys.Sorted(), []string{"p1"})

	assert.NilError(t, f.mgr.RemoveIndex("app", s, "p1", moved))
	n, err := f.mgr.IndexCount(ctx, "app", "people", "city", "Kisumu")
	assert.NilError(t, err)
	assert.Equal(t, n, int64(-1))
	assert.NilError(t, f.mgr.CheckUnique("app", "people", "name", "Ann", "p2"))
}

func TestBuildFailsWhenARowCannotBeIndexed(t *testing.T) {
	rows := people()
	rows["p5"] = data.Record{"name": "Eve", "city": strings.Repeat("x", fsname.MaxLength+1)}
	f := newFixture(t, rows)
	ctx := context.Background()

	err := f.mgr.Index(ctx, "app", "people", "city", schema.IndexBTree)
	assert.Assert(t, dberrors.Is(err, dberrors.StringLengthExceeded))

	s, err := f.catalog.Schema("app", "people")
	assert.NilError(t, err)
	c, _ := s.Column("city")
	assert.Equal(t, c.Index, schema.IndexNone)
	_, err = os.Stat(f.layout.IndexColumn("app", "people", "city"))
	assert.Assert(t, os.IsNotExist(err))
}

func TestRebuildStartsClean(t *testing.T) {
	f := newFixture(t, people())
	ctx := context.Background()

	// leftovers of an index that was dropped while a write was in flight
	countFile, err := f.layout.IndexCountFile("app", "people", "city", "Nairobi")
	assert.NilError(t, err)
	assert.NilError(t, os.MkdirAll(filepath.Dir(countFile), 0755))
	assert.NilError(t, os.WriteFile(countFile, []byte("7"), 0644))
	ghost, err := f.layout.IndexEntry("app", "people", "city", "Nairobi", "ghost")
	assert.NilError(t, err)
	assert.NilError(t, os.MkdirAll(filepath.Dir(ghost), 0755))
	assert.NilError(t, os.WriteFile(ghost, nil, 0644))

	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "city", schema.IndexBTree))

	n, err := f.mgr.IndexCount(ctx, "app", "people", "city", "Nairobi")
	assert.NilError(t, err)
	assert.Equal(t, n, int64(2))
	keys, err := f.mgr.ReadIndex(ctx, "app", "people", "city", "Nairobi")
	assert.NilError(t, err)
	assert.DeepEqual(t, keys.Sorted(), []string{"p1", "p2"})
}

func TestHooksSkipDroppedColumns(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "city", schema.IndexBTree))
	before, err := f.catalog.Schema("app", "people")
	assert.NilError(t, err)

	assert.NilError(t, f.mgr.DropIndex("app", "people", "city"))

	// a writer still holding the schema read before the drop
	assert.NilError(t, f.mgr.AddIndex("app", before, "p1", data.Record{"city": "Nairobi"}))

	_, err = os.Stat(f.layout.IndexColumn("app", "people", "city"))
	assert.Assert(t, os.IsNotExist(err))
	_, err = os.Stat(f.layout.IndexCountColumn("app", "people", "city"))
	assert.Assert(t, os.IsNotExist(err))
}

func TestHooksUndoOnUniqueConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "city", schema.IndexBTree))
	assert.NilError(t, f.mgr.Index(ctx, "app", "people", "age", schema.IndexUnique))
	s, err := f.catalog.Schema("app", "people")
	assert.NilError(t, err)

	p1 := data.Record{"city": "Nairobi", "age": int64(30)}
	assert.NilError(t, f.mgr.AddIndex("app", s, "p1", p1))
	assert.NilError(t, f.mgr.AddIndex("app", s, "p3", data.Record{"city": "Mombasa", "age": int64(41)}))

	tests := []struct {
		name string
		run  func() error
	}{
		{"add", func() error {
			return f.mgr.AddIndex("app", s, "p2", data.Record{"city": "Kisumu", "age": int64(30)})
		}},
		{"diff", func() error {
			return f.mgr.DiffIndex("app", s, "p1", p1, p1.Merge(map[string]interface{}{"city": "Kisumu", "age": int64(41)}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var violation *dberrors.ConstraintError
			assert.Assert(t, errors.As(tt.run(), &violation))
			assert.Equal(t, violation.Constraint, "unique")

			keys, err := f.mgr.ReadIndex(ctx, "app", "people", "city", "Kisumu")
			assert.NilError(t, err)
			assert.Equal(t, len(keys), 0)
			n, err := f.mgr.IndexCount(ctx, "app", "people", "city", "Kisumu")
			assert.NilError(t, err)
			assert.Equal(t, n, int64(-1))

			keys, err = f.mgr.ReadIndex(ctx, "app", "people", "city", "Nairobi")
			assert.NilError(t, err)
			assert.DeepEqual(t, keys.Sorted(), []string{"p1"})
			for value, owner := range map[string]string{"30": "p1", "41": "p3"} {
				got, err := f.mgr.AnyCardinalEntry(ctx, "app", "people", "age", value)
				assert.NilError(t, err)
				assert.Equal(t, got, owner)
			}
		})
	}
}
