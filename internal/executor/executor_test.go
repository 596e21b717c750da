package executor

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/goccy/go-json"
	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/config"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/transaction"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/indexmgr"
	"github.com/leengari/cardinaldb/internal/parser"
	"github.com/leengari/cardinaldb/internal/storage/catalog"
	"github.com/leengari/cardinaldb/internal/storage/layout"
	"github.com/leengari/cardinaldb/internal/storage/manager"
	"github.com/leengari/cardinaldb/internal/storage/rowstore"
)

const testDatastore = "shop"

func newTestDataManager(t *testing.T) *manager.DataManager {
	t.Helper()
	l := layout.New(t.TempDir(), "")
	cat := catalog.New(l, nil)
	rows := rowstore.New(l, nil)
	idx := indexmgr.New(index.NewRegistry(l, config.Default().Index, nil), cat, rows, 4, nil)
	return manager.New(l, rows, cat, idx, nil)
}

func newTestExecutor(dm *manager.DataManager, fast bool) *Executor {
	cfg := config.Default().Executor
	cfg.Workers = 4
	cfg.FastPaths = fast
	return New(dm, cfg, nil, nil, nil)
}

// exec parses and runs sql, failing the test on a Go error
func exec(t *testing.T, e *Executor, sql string) *Result {
	t.Helper()
	res, err := tryExec(e, sql)
	assert.NilError(t, err, sql)
	return res
}

func tryExec(e *Executor, sql string) (*Result, error) {
	stmt, err := parser.ParseSQL(sql)
	if err != nil {
		return Respond(nil, err)
	}
	return e.Execute(context.Background(), transaction.NewTransaction(testDatastore), stmt, sql)
}

type envelope struct {
	Ack     string                   `json:"ack"`
	Cause   string                   `json:"cause"`
	Payload []map[string]interface{} `json:"payload"`
	Rows    int                      `json:"rows"`
}

func decode(t *testing.T, res *Result) envelope {
	t.Helper()
	b, err := json.Marshal(res)
	assert.NilError(t, err)
	var env envelope
	assert.NilError(t, json.Unmarshal(b, &env))
	return env
}

// canonical returns the payload rows as sorted JSON texts
func canonical(t *testing.T, env envelope) []string {
	t.Helper()
	out := make([]string, len(env.Payload))
	for i, row := range env.Payload {
		b, err := json.Marshal(row)
		assert.NilError(t, err)
		out[i] = string(b)
	}
	sort.Strings(out)
	return out
}

func seedItems(t *testing.T, e *Executor) {
	t.Helper()
	exec(t, e, "CREATE TABLE items (name STRING, category STRING, price INT, weight DOUBLE, sku STRING UNIQUE)")
	exec(t, e, `INSERT INTO items (name, category, price, weight, sku) VALUES
		('apple', 'fruit', 3, 1.5, 'A1'),
		('pear', 'fruit', 4, 0.5, 'A2'),
		('kiwi', 'fruit', 3, 0.25, 'A3'),
		('carrot', 'veg', 2, 1.0, 'B1'),
		('leek', 'veg', 5, 2.25, 'B2'),
		('bread', 'bakery', 7, 0.75, 'C1')`)
	exec(t, e, "INSERT INTO items (name, price, weight, sku) VALUES ('salt', 1, 1, 'D1')")
}

func TestFastPathsMatchGenericPath(t *testing.T) {
	dm := newTestDataManager(t)
	fast := newTestExecutor(dm, true)
	generic := newTestExecutor(dm, false)
	seedItems(t, fast)

	queries := []string{
		"SELECT COUNT(*) FROM items",
		"SELECT DISTINCT category FROM items",
		"SELECT DISTINCT category FROM items WHERE price >= 3",
		"SELECT DISTINCT price FROM items WHERE category = 'veg' OR name = 'salt'",
		"SELECT name FROM items",
		"SELECT price FROM items",
		"SELECT * FROM items",
		"SELECT DISTINCT * FROM items",
		"SELECT SUM(price), MIN(price), MAX(price), AVG(weight), COUNT(category) FROM items",
		"SELECT MIN(weight), MAX(weight), SUM(weight), COUNT(_id) FROM items",
		"SELECT name, price FROM items",
		"SELECT _id, category FROM items",
		"SELECT category, price FROM items ORDER BY price DESC",
		"SELECT DISTINCT category, price FROM items",
	}

	for _, sql := range queries {
		t.Run(sql, func(t *testing.T) {
			want := decode(t, exec(t, generic, sql))
			got := decode(t, exec(t, fast, sql))
			assert.Equal(t, got.Ack, AckSuccess)
			assert.Equal(t, got.Rows, want.Rows)
			assert.DeepEqual(t, canonical(t, got), canonical(t, want))
		})
	}
}

func TestSelectPaths(t *testing.T) {
	dm := newTestDataManager(t)
	e := newTestExecutor(dm, true)
	seedItems(t, e)

	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"count", "SELECT COUNT(*) FROM items", []string{`{"COUNT(*)":7}`}},
		{"distinct", "SELECT DISTINCT category FROM items", []string{
			`{"category":"bakery"}`, `{"category":"fruit"}`, `{"category":"veg"}`,
		}},
		{"aggregates", "SELECT SUM(price), MAX(price), COUNT(category) FROM items", []string{
			`{"COUNT(category)":6,"MAX(price)":7,"SUM(price)":25}`,
		}},
		{"aggregate over no rows", "SELECT SUM(price), COUNT(*) FROM items WHERE price > 100", []string{
			`{"COUNT(*)":0,"SUM(price)":null}`,
		}},
		{"where", "SELECT name FROM items WHERE price < 3 OR category = 'bakery'", []string{
			`{"name":"bread"}`, `{"name":"carrot"}`, `{"name":"salt"}`,
		}},
		{"mirrored comparison", "SELECT name FROM items WHERE 5 <= price", []string{
			`{"name":"bread"}`, `{"name":"leek"}`,
		}},
		{"in and between", "SELECT name FROM items WHERE category IN ('veg', 'bakery') AND price BETWEEN 2 AND 5", []string{
			`{"name":"carrot"}`, `{"name":"leek"}`,
		}},
		{"not in", "SELECT name FROM items WHERE category NOT IN ('fruit', 'veg')", []string{
			`{"name":"bread"}`,
		}},
		{"like", "SELECT sku FROM items WHERE name LIKE 'p%'", []string{`{"sku":"A2"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := decode(t, exec(t, e, tt.sql))
			assert.Equal(t, env.Ack, AckSuccess)
			assert.DeepEqual(t, canonical(t, env), tt.want)
		})
	}
}

func TestSelectGroupByHavingOrderBy(t *testing.T) {
	e := newTestExecutor(newTestDataManager(t), true)
	seedItems(t, e)

	env := decode(t, exec(t, e,
		"SELECT category, COUNT(*), SUM(price) FROM items GROUP BY category HAVING COUNT(*) > 1 ORDER BY SUM(price) DESC"))
	assert.Equal(t, env.Rows, 2)
	assert.DeepEqual(t, env.Payload, []map[string]interface{}{
		{"category": "fruit", "COUNT(*)": float64(3), "SUM(price)": float64(10)},
		{"category": "veg", "COUNT(*)": float64(2), "SUM(price)": float64(7)},
	})
}

func TestSelectOrderLimitOffset(t *testing.T) {
	e := newTestExecutor(newTestDataManager(t), true)
	seedItems(t, e)

	env := decode(t, exec(t, e, "SELECT name, price FROM items ORDER BY price DESC LIMIT 2 OFFSET 1"))
	assert.DeepEqual(t, env.Payload, []map[string]interface{}{
		{"name": "leek", "price": float64(5)},
		{"name": "pear", "price": float64(4)},
	})

	env = decode(t, exec(t, e, "SELECT name FROM items LIMIT 3"))
	assert.Equal(t, env.Rows, 3)

	env = decode(t, exec(t, e, "SELECT * FROM items LIMIT 10 OFFSET 20"))
	assert.Equal(t, env.Rows, 0)
	assert.Assert(t, env.Payload != nil)
}

func TestSelectFailures(t *testing.T) {
	e := newTestExecutor(newTestDataManager(t), true)
	seedItems(t, e)
	exec(t, e, "ALTER TABLE items ADD COLUMN tags LIST")

	causes := []struct {
		sql   string
		cause string
	}{
		{"SELECT name FROM items, orders", "SELECT over 2 tables is not supported"},
		{"SELECT SUM(tags) FROM items", "Aggregate on numeric arrays, currently not supported"},
		{"SELECT name FROM items ORDER BY tags", "ORDER BY on list column tags is not supported"},
		{"SELECT name FROM items WHERE price = weight", "comparison (price = weight) needs a column on one side and a constant on the other"},
		{"SELECT FROM items", ""},
	}
	for _, tt := range causes {
		t.Run(tt.sql, func(t *testing.T) {
			res, err := tryExec(e, tt.sql)
			assert.NilError(t, err)
			env := decode(t, res)
			assert.Equal(t, env.Ack, AckFailure)
			if tt.cause != "" {
				assert.Equal(t, env.Cause, tt.cause)
			}
		})
	}

	errorCodes := []struct {
		sql  string
		code dberrors.Code
	}{
		{"SELECT * FROM missing", dberrors.SelectError},
		{"SELECT SUM(name) FROM items", dberrors.SelectError},
		{"SELECT name FROM items ORDER BY name", dberrors.SelectError},
		{"SELECT nope FROM items", dberrors.SelectError},
	}
	for _, tt := range errorCodes {
		t.Run(tt.sql, func(t *testing.T) {
			_, err := tryExec(e, tt.sql)
			assert.Assert(t, dberrors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestWriteStatements(t *testing.T) {
	e := newTestExecutor(newTestDataManager(t), true)
	seedItems(t, e)

	env := decode(t, exec(t, e, "UPDATE items SET price = 6 WHERE category = 'fruit'"))
	assert.Equal(t, env.Rows, 3)
	env = decode(t, exec(t, e, "SELECT SUM(price) FROM items WHERE category = 'fruit'"))
	assert.DeepEqual(t, canonical(t, env), []string{`{"SUM(price)":18}`})

	env = decode(t, exec(t, e, "DELETE FROM items WHERE price > 5"))
	assert.Equal(t, env.Rows, 4)
	env = decode(t, exec(t, e, "SELECT COUNT(*) FROM items"))
	assert.DeepEqual(t, canonical(t, env), []string{`{"COUNT(*)":3}`})

	env = decode(t, exec(t, e, "UPDATE items SET _id = 'x'"))
	assert.Equal(t, env.Ack, AckFailure)

	_, err := tryExec(e, "UPDATE items SET colour = 'red'")
	assert.Assert(t, dberrors.Is(err, dberrors.UnknownColumn))

	_, err = tryExec(e, "INSERT INTO items (name, sku) VALUES ('fig', 'B1')")
	var constraint *dberrors.ConstraintError
	assert.Assert(t, errors.As(err, &constraint), "got %v", err)

	env = decode(t, exec(t, e, "DELETE FROM items"))
	assert.Equal(t, env.Rows, 3)
}

func TestDDLStatements(t *testing.T) {
	e := newTestExecutor(newTestDataManager(t), true)

	env := decode(t, exec(t, e, "CREATE TABLE people (email STRING PRIMARY KEY, name STRING, age INT)"))
	assert.Equal(t, env.Ack, AckSuccess)
	s, err := e.data.Schema(testDatastore, "people")
	assert.NilError(t, err)
	assert.Equal(t, s.Primary, "email")
	_, hasDefault := s.Column("_id")
	assert.Assert(t, !hasDefault)

	exec(t, e, "INSERT INTO people (email, name, age) VALUES ('a@x.io', 'Ann', 31)")
	_, err = tryExec(e, "INSERT INTO people (name) VALUES ('Bob')")
	assert.Assert(t, dberrors.Is(err, dberrors.InsertError))

	exec(t, e, "CREATE INDEX ON people (age) USING HASHED")
	s, _ = e.data.Schema(testDatastore, "people")
	age, _ := s.Column("age")
	assert.Equal(t, string(age.Index), "HASHED")

	env = decode(t, exec(t, e, "SELECT name FROM people WHERE age > 30"))
	assert.DeepEqual(t, canonical(t, env), []string{`{"name":"Ann"}`})

	exec(t, e, "DROP INDEX age ON people")
	exec(t, e, "ALTER TABLE people ADD UNIQUE (name)")
	s, _ = e.data.Schema(testDatastore, "people")
	name, _ := s.Column("name")
	assert.Equal(t, string(name.Index), "UNIQUE")

	exec(t, e, "ALTER TABLE people DROP COLUMN age")
	env = decode(t, exec(t, e, "SELECT * FROM people"))
	assert.DeepEqual(t, canonical(t, env), []string{`{"email":"a@x.io","name":"Ann"}`})

	for _, sql := range []string{
		"CREATE TABLE pairs (a INT, b INT, UNIQUE (a, b))",
		"CREATE TABLE pairs (a INT, b INT, PRIMARY KEY (a, b))",
		"ALTER TABLE people ADD PRIMARY KEY (name)",
		"CREATE INDEX ON people (email, name)",
	} {
		env = decode(t, exec(t, e, sql))
		assert.Equal(t, env.Ack, AckFailure, sql)
	}

	exec(t, e, "DROP TABLE people")
	_, err = tryExec(e, "SELECT * FROM people")
	assert.Assert(t, dberrors.Is(err, dberrors.SelectError))
}

func TestNoDatastoreSelected(t *testing.T) {
	e := newTestExecutor(newTestDataManager(t), true)
	stmt, err := parser.ParseSQL("SELECT * FROM items")
	assert.NilError(t, err)

	res, err := e.Execute(context.Background(), transaction.NewTransaction(""), stmt, "")
	assert.NilError(t, err)
	assert.Equal(t, res.Ack, AckFailure)
}
