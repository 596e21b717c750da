package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/config"
	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/indexmgr"
	"github.com/leengari/cardinaldb/internal/query/operator"
	"github.com/leengari/cardinaldb/internal/storage/catalog"
	"github.com/leengari/cardinaldb/internal/storage/layout"
	"github.com/leengari/cardinaldb/internal/storage/rowstore"
)

type recorder struct {
	tables []string
}

func (r *recorder) InvalidateTable(ds, table string) {
	r.tables = append(r.tables, ds+"."+table)
}

func newTestManager(t *testing.T) *DataManager {
	t.Helper()
	l := layout.New(t.TempDir(), "")
	cat := catalog.New(l, nil)
	rows := rowstore.New(l, nil)
	idx := indexmgr.New(index.NewRegistry(l, config.Default().Index, nil), cat, rows, 4, nil)
	return New(l, rows, cat, idx, nil)
}

func createUsers(t *testing.T, d *DataManager) {
	t.Helper()
	s := schema.New("users")
	assert.NilError(t, s.AddColumn(&schema.Column{Name: "name", Type: schema.TypeString}))
	assert.NilError(t, s.AddColumn(&schema.Column{Name: "email", Type: schema.TypeString, Index: schema.IndexUnique}))
	assert.NilError(t, s.AddColumn(&schema.Column{Name: "age", Type: schema.TypeInt, Index: schema.IndexBTree}))
	assert.NilError(t, s.AddColumn(&schema.Column{Name: "score", Type: schema.TypeDouble, Index: schema.IndexHashed}))
	assert.NilError(t, s.AddColumn(&schema.Column{Name: "active", Type: schema.TypeBoolean}))
	assert.NilError(t, d.CreateTable("app", s))
}

func TestInsertAssignsUUID(t *testing.T) {
	d := newTestManager(t)
	createUsers(t, d)
	rec := &recorder{}
	d.OnChange(rec)

	pk, err := d.Insert("app", "users", map[string]interface{}{"name": "Ann", "age": int64(30)})
	assert.NilError(t, err)
	_, err = uuid.Parse(pk)
	assert.NilError(t, err)

	got, err := d.Select("app", "users", pk)
	assert.NilError(t, err)
	assert.Equal(t, got["_id"], pk)
	assert.Equal(t, got["age"], json.Number("30"))
	assert.DeepEqual(t, rec.tables, []string{"app.users"})

	_, err = d.Insert("app", "users", map[string]interface{}{"_id": pk, "name": "Again"})
	var violation *dberrors.ConstraintError
	assert.Assert(t, errors.As(err, &violation))
	assert.Equal(t, violation.Constraint, "primary_key")
}

func TestInsertValidatesColumns(t *testing.T) {
	d := newTestManager(t)
	createUsers(t, d)

	_, err := d.Insert("app", "users", map[string]interface{}{"ghost": 1})
	assert.Assert(t, dberrors.Is(err, dberrors.UnknownColumn))

	_, err = d.Insert("app", "users", map[string]interface{}{"age": "thirty"})
	assert.Assert(t, dberrors.Is(err, dberrors.DatatypeMismatch))

	_, err = d.Insert("app", "ghosts", map[string]interface{}{"age": 1})
	assert.Assert(t, dberrors.Is(err, dberrors.UnknownTable))
}

func TestUniqueColumnRejectsSecondOwner(t *testing.T) {
	d := newTestManager(t)
	createUsers(t, d)

	_, err := d.Insert("app", "users", map[string]interface{}{"_id": "u1", "email": "a@x.io"})
	assert.NilError(t, err)
	_, err = d.Insert("app", "users", map[string]interface{}{"_id": "u2", "email": "a@x.io"})
	var violation *dberrors.ConstraintError
	assert.Assert(t, errors.As(err, &violation))
	assert.Equal(t, violation.Owner, "u1")

	// the second row was never stored
	ok, err := d.Exists("app", "users", "u2")
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}

func TestUpdateAndDeleteMaintainIndexes(t *testing.T) {
	d := newTestManager(t)
	createUsers(t, d)
	ctx := context.Background()

	_, err := d.Insert("app", "users", map[string]interface{}{"_id": "u1", "age": int64(30)})
	assert.NilError(t, err)

	ok, err := d.Update("app", "users", "u1", map[string]interface{}{"age": int64(31)})
	assert.NilError(t, err)
	assert.Assert(t, ok)

	keys := drainKeys(t, d, ctx, "age", operator.EQ, int64(30))
	assert.Equal(t, len(keys), 0)
	keys = drainKeys(t, d, ctx, "age", operator.EQ, int64(31))
	assert.DeepEqual(t, keys, []string{"u1"})

	_, err = d.Update("app", "users", "u1", map[string]interface{}{"_id": "u9"})
	assert.Assert(t, dberrors.Is(err, dberrors.OperationNotSupported))

	ok, err = d.Update("app", "users", "missing", map[string]interface{}{"age": int64(1)})
	assert.NilError(t, err)
	assert.Assert(t, !ok)

	ok, err = d.Delete("app", "users", "u1")
	assert.NilError(t, err)
	assert.Assert(t, ok)
	keys = drainKeys(t, d, ctx, "age", operator.EQ, int64(31))
	assert.Equal(t, len(keys), 0)

	ok, err = d.Delete("app", "users", "u1")
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}

func TestLongValuesLeaveNoStaleEntries(t *testing.T) {
	d := newTestManager(t)
	ctx := context.Background()
	s := schema.New("ledger")
	assert.NilError(t, s.AddColumn(&schema.Column{Name: "big", Type: schema.TypeLong, Index: schema.IndexBTree}))
	assert.NilError(t, d.CreateTable("app", s))

	const big = "9007199254740993"
	_, err := d.Insert("app", "ledger", map[string]interface{}{"_id": "l1", "big": int64(9007199254740993)})
	assert.NilError(t, err)
	keys, err := d.Indexes().ReadIndex(ctx, "app", "ledger", "big", big)
	assert.NilError(t, err)
	assert.DeepEqual(t, keys.Sorted(), []string{"l1"})

	ok, err := d.Update("app", "ledger", "l1", map[string]interface{}{"big": int64(5)})
	assert.NilError(t, err)
	assert.Assert(t, ok)

	keys, err = d.Indexes().ReadIndex(ctx, "app", "ledger", "big", big)
	assert.NilError(t, err)
	assert.Equal(t, len(keys), 0)
	n, err := d.Indexes().IndexCount(ctx, "app", "ledger", "big", big)
	assert.NilError(t, err)
	assert.Equal(t, n, int64(-1))

	it, err := d.Indexes().Cardinals(ctx, "app", "ledger", "big")
	assert.NilError(t, err)
	cards, err := index.Drain(it)
	assert.NilError(t, err)
	assert.DeepEqual(t, cards, []string{"5"})

	ok, err = d.Delete("app", "ledger", "l1")
	assert.NilError(t, err)
	assert.Assert(t, ok)
	it, err = d.Indexes().Cardinals(ctx, "app", "ledger", "big")
	assert.NilError(t, err)
	cards, err = index.Drain(it)
	assert.NilError(t, err)
	assert.Equal(t, len(cards), 0)
}

// blockCardinal puts a plain file where the folder of a cardinal goes, so
// indexing that value fails
func blockCardinal(t *testing.T, d *DataManager, table, col, value string) {
	t.Helper()
	path, err := d.layout.IndexCardinal("app", table, col, value)
	assert.NilError(t, err)
	assert.NilError(t, os.MkdirAll(filepath.Dir(path), 0755))
	assert.NilError(t, os.WriteFile(path, nil, 0644))
}

func TestFailedIndexingLeavesNoPartialWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("insert", func(t *testing.T) {
		d := newTestManager(t)
		createUsers(t, d)
		blockCardinal(t, d, "users", "age", "31")

		_, err := d.Insert("app", "users", map[string]interface{}{"_id": "u1", "email": "a@x.io", "age": int64(31)})
		assert.Assert(t, dberrors.Is(err, dberrors.IndexingError))

		ok, err := d.Exists("app", "users", "u1")
		assert.NilError(t, err)
		assert.Assert(t, !ok)
		// the unique entry written before the failure is gone too
		assert.NilError(t, d.Indexes().CheckUnique("app", "users", "email", "a@x.io", "u2"))
		_, err = d.Insert("app", "users", map[string]interface{}{"_id": "u2", "email": "a@x.io", "age": int64(32)})
		assert.NilError(t, err)
	})

	t.Run("update", func(t *testing.T) {
		d := newTestManager(t)
		createUsers(t, d)
		_, err := d.Insert("app", "users", map[string]interface{}{"_id": "u1", "email": "a@x.io", "age": int64(30)})
		assert.NilError(t, err)
		blockCardinal(t, d, "users", "age", "31")

		_, err = d.Update("app", "users", "u1", map[string]interface{}{"email": "b@x.io", "age": int64(31)})
		assert.Assert(t, dberrors.Is(err, dberrors.IndexingError))

		got, err := d.Select("app", "users", "u1")
		assert.NilError(t, err)
		assert.Equal(t, got["age"], json.Number("30"))
		assert.Equal(t, got["email"], "a@x.io")
		assert.DeepEqual(t, drainKeys(t, d, ctx, "age", operator.EQ, int64(30)), []string{"u1"})
		assert.NilError(t, d.Indexes().CheckUnique("app", "users", "email", "b@x.io", "u2"))
		assert.Assert(t, d.Indexes().CheckUnique("app", "users", "email", "a@x.io", "u2") != nil)
	})

	t.Run("delete", func(t *testing.T) {
		d := newTestManager(t)
		s := schema.New("accounts")
		assert.NilError(t, s.AddColumn(&schema.Column{Name: "age", Type: schema.TypeInt, Index: schema.IndexBTree}))
		assert.NilError(t, s.AddColumn(&schema.Column{Name: "email", Type: schema.TypeString, Index: schema.IndexUnique}))
		assert.NilError(t, d.CreateTable("app", s))
		_, err := d.Insert("app", "accounts", map[string]interface{}{"_id": "a1", "age": int64(30), "email": "a@x.io"})
		assert.NilError(t, err)

		// the unique entry now names another key, so removing it fails
		path, err := d.layout.IndexCardinal("app", "accounts", "email", "a@x.io")
		assert.NilError(t, err)
		assert.NilError(t, os.WriteFile(path, []byte("a2"), 0644))

		_, err = d.Delete("app", "accounts", "a1")
		assert.Assert(t, dberrors.Is(err, dberrors.IndexingError))

		ok, err := d.Exists("app", "accounts", "a1")
		assert.NilError(t, err)
		assert.Assert(t, ok)
		keys, err := d.Indexes().ReadIndex(ctx, "app", "accounts", "age", "30")
		assert.NilError(t, err)
		assert.DeepEqual(t, keys.Sorted(), []string{"a1"})
		n, err := d.Indexes().IndexCount(ctx, "app", "accounts", "age", "30")
		assert.NilError(t, err)
		assert.Equal(t, n, int64(1))
	})
}

func TestIndexBuildKeepsUpWithWriters(t *testing.T) {
	d := newTestManager(t)
	createUsers(t, d)
	ctx := context.Background()

	const writers, perWriter = 4, 25
	for i := 0; i < writers*perWriter; i++ {
		_, err := d.Insert("app", "users", map[string]interface{}{"_id": fmt.Sprintf("s%03d", i), "name": "tag" + strconv.Itoa(i%5)})
		assert.NilError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 1+2*writers*perWriter)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- d.Indexes().Index(ctx, "app", "users", "name", schema.IndexBTree)
	}()
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := d.Insert("app", "users", map[string]interface{}{"_id": fmt.Sprintf("w%d-%02d", w, i), "name": "tag" + strconv.Itoa(i%5)})
				errs <- err
				ok, err := d.Update("app", "users", fmt.Sprintf("s%03d", w*perWriter+i), map[string]interface{}{"name": "moved"})
				if err == nil && !ok {
					err = fmt.Errorf("row s%03d is missing", w*perWriter+i)
				}
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NilError(t, err)
	}

	all, err := d.SelectAllKeys("app", "users")
	assert.NilError(t, err)
	assert.Equal(t, len(all), 2*writers*perWriter)
	for _, pk := range all.Sorted() {
		rec, err := d.Select("app", "users", pk)
		assert.NilError(t, err)
		name, _ := data.Text(rec["name"])
		keys, err := d.Indexes().ReadIndex(ctx, "app", "users", "name", name)
		assert.NilError(t, err)
		assert.Assert(t, keys.Has(pk), "%s missing from the index of %q", pk, name)
	}

	it, err := d.Indexes().Cardinals(ctx, "app", "users", "name")
	assert.NilError(t, err)
	cards, err := index.Drain(it)
	assert.NilError(t, err)
	entries := 0
	for _, card := range cards {
		keys, err := d.Indexes().ReadIndex(ctx, "app", "users", "name", card)
		assert.NilError(t, err)
		entries += len(keys)
	}
	assert.Equal(t, entries, len(all))
	moved, err := d.Indexes().ReadIndex(ctx, "app", "users", "name", "moved")
	assert.NilError(t, err)
	assert.Equal(t, len(moved), writers*perWriter)
}

func drainKeys(t *testing.T, d *DataManager, ctx context.Context, col string, op operator.Operator, values ...interface{}) []string {
	t.Helper()
	it, err := d.SelectKeysWithPattern(ctx, "app", "users", col, op, values...)
	assert.NilError(t, err)
	keys, err := index.DrainSet(it)
	assert.NilError(t, err)
	return keys.Sorted()
}

func TestSelectKeysWithPattern(t *testing.T) {
	d := newTestManager(t)
	createUsers(t, d)
	ctx := context.Background()

	rows := []map[string]interface{}{
		{"_id": "u1", "name": "Ann", "age": int64(25), "score": 1.5, "active": true},
		{"_id": "u2", "name": "Anna", "age": int64(35), "score": 2.5, "active": false},
		{"_id": "u3", "name": "Bob", "age": int64(45), "score": 3.5, "active": true},
	}
	for _, r := range rows {
		_, err := d.Insert("app", "users", r)
		assert.NilError(t, err)
	}

	tests := []struct {
		name   string
		col    string
		op     operator.Operator
		values []interface{}
		want   []string
	}{
		{"eq", "age", operator.EQ, []interface{}{int64(35)}, []string{"u2"}},
		{"eq string ref on int column", "age", operator.EQ, []interface{}{"35"}, []string{"u2"}},
		{"gt", "age", operator.GT, []interface{}{int64(30)}, []string{"u2", "u3"}},
		{"lteq", "age", operator.LTEQ, []interface{}{int64(35)}, []string{"u1", "u2"}},
		{"neq", "age", operator.NEQ, []interface{}{int64(35)}, []string{"u1", "u3"}},
		{"in", "age", operator.IN, []interface{}{int64(25), int64(45), int64(99)}, []string{"u1", "u3"}},
		{"not in", "age", operator.NOT_IN, []interface{}{int64(25)}, []string{"u2", "u3"}},
		{"between reversed", "age", operator.BETWEEN, []interface{}{int64(40), int64(20)}, []string{"u1", "u2"}},
		{"like", "name", operator.LIKE, []interface{}{"Ann%"}, []string{"u1", "u2"}},
		{"like substring", "name", operator.LIKE, []interface{}{"nn"}, []string{"u1", "u2"}},
		{"boolean eq", "active", operator.EQ, []interface{}{true}, []string{"u1", "u3"}},
		{"hashed eq", "score", operator.EQ, []interface{}{2.5}, []string{"u2"}},
		{"hashed range reads rows", "score", operator.GT, []interface{}{2.0}, []string{"u2", "u3"}},
		{"primary key in", "_id", operator.IN, []interface{}{"u3", "u7"}, []string{"u3"}},
		{"primary key range", "_id", operator.GTEQ, []interface{}{"u2"}, []string{"u2", "u3"}},
		{"unknown column", "ghost", operator.EQ, []interface{}{1}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := drainKeys(t, d, ctx, tt.col, tt.op, tt.values...)
			assert.DeepEqual(t, got, tt.want)
		})
	}

	_, err := d.SelectKeysWithPattern(ctx, "app", "users", "active", operator.GT, true)
	assert.Assert(t, dberrors.Is(err, dberrors.InvalidOperatorUsage))
}

func TestDatastores(t *testing.T) {
	d := newTestManager(t)

	assert.NilError(t, d.CreateDatastore("shop"))
	err := d.CreateDatastore("shop")
	assert.Assert(t, dberrors.Is(err, dberrors.DatastoreInvalid))
	err = d.CreateDatastore("../x")
	assert.Assert(t, dberrors.Is(err, dberrors.DatastoreInvalid))

	createUsers(t, d)
	names, err := d.ListDatastores()
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"app", "shop"})

	assert.NilError(t, d.DropDatastore("app"))
	assert.Assert(t, !d.Catalog().Exists("app", "users"))
	names, err = d.ListDatastores()
	assert.NilError(t, err)
	assert.DeepEqual(t, names, []string{"shop"})
}
