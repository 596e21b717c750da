package integration_test

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/goccy/go-json"
	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/config"
	"github.com/leengari/cardinaldb/internal/engine"
	"github.com/leengari/cardinaldb/internal/executor"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/storage/layout"
)

type envelope struct {
	Ack     string                   `json:"ack"`
	Cause   string                   `json:"cause"`
	Payload []map[string]interface{} `json:"payload"`
	Rows    int                      `json:"rows"`
}

func openEngine(t *testing.T, dir string, fast bool) *engine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Executor.Workers = 4
	cfg.Executor.FastPaths = fast
	eng, err := engine.Open(cfg, nil)
	assert.NilError(t, err)
	return eng
}

func run(t *testing.T, s *engine.Session, sql string) envelope {
	t.Helper()
	res, err := s.Execute(context.Background(), sql)
	assert.NilError(t, err, sql)
	return decode(t, res)
}

func decode(t *testing.T, res *executor.Result) envelope {
	t.Helper()
	b, err := json.Marshal(res)
	assert.NilError(t, err)
	var env envelope
	assert.NilError(t, json.Unmarshal(b, &env))
	return env
}

func values(env envelope, col string) []string {
	out := make([]string, 0, len(env.Payload))
	for _, row := range env.Payload {
		if v, ok := row[col].(string); ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func session(t *testing.T, eng *engine.Engine, ds string) *engine.Session {
	t.Helper()
	s := eng.Session()
	if !eng.Data().DatastoreExists(ds) {
		assert.Equal(t, run(t, s, "CREATE DATABASE "+ds).Ack, "1")
	}
	assert.NilError(t, s.Use(ds))
	return s
}

func seedOrders(t *testing.T, s *engine.Session) {
	t.Helper()
	for _, sql := range []string{
		"CREATE TABLE orders (id INT PRIMARY KEY, status TEXT, region TEXT, total DOUBLE)",
		"CREATE INDEX ON orders (status)",
		"INSERT INTO orders (id, status, region, total) VALUES (1, 'open', 'Aa', 10.5), (2, 'open', 'BB', 4), (3, 'closed', 'Aa', 20)",
	} {
		env := run(t, s, sql)
		assert.Equal(t, env.Ack, "1", "%s: %s", sql, env.Cause)
	}
}

func TestDistinctAndCountOnBTree(t *testing.T) {
	s := session(t, openEngine(t, t.TempDir(), true), "shop")
	seedOrders(t, s)

	env := run(t, s, "SELECT DISTINCT status FROM orders")
	assert.DeepEqual(t, values(env, "status"), []string{"closed", "open"})

	for _, sql := range []string{
		"SELECT COUNT(*) FROM orders WHERE status = 'open'",
		`SELECT COUNT(*) FROM orders WHERE status = "open"`,
	} {
		env = run(t, s, sql)
		assert.Equal(t, env.Ack, "1", "%s: %s", sql, env.Cause)
		assert.Equal(t, env.Rows, 1)
		assert.Equal(t, env.Payload[0]["COUNT(*)"], float64(2))
	}
}

func TestLongValueUpdateKeepsDistinctExact(t *testing.T) {
	s := session(t, openEngine(t, t.TempDir(), true), "shop")
	for _, sql := range []string{
		"CREATE TABLE ledger (id INT PRIMARY KEY, big LONG)",
		"CREATE INDEX ON ledger (big)",
		"INSERT INTO ledger (id, big) VALUES (1, 9007199254740993)",
		"UPDATE ledger SET big = 5",
	} {
		env := run(t, s, sql)
		assert.Equal(t, env.Ack, "1", "%s: %s", sql, env.Cause)
	}

	env := run(t, s, "SELECT DISTINCT big FROM ledger")
	assert.DeepEqual(t, env.Payload, []map[string]interface{}{{"big": float64(5)}})
	env = run(t, s, "SELECT id FROM ledger WHERE big = 9007199254740993")
	assert.Equal(t, env.Ack, "1", env.Cause)
	assert.Equal(t, env.Rows, 0)
}

func TestHashedCollisionsShareCardinal(t *testing.T) {
	eng := openEngine(t, t.TempDir(), true)
	s := session(t, eng, "shop")
	seedOrders(t, s)
	assert.Equal(t, run(t, s, "CREATE INDEX ON orders (region) USING HASHED").Ack, "1")

	// "Aa" and "BB" have the same 32-bit string hash
	assert.Equal(t, index.HashCardinal("Aa"), index.HashCardinal("BB"))

	ctx := context.Background()
	for _, value := range []string{"Aa", "BB"} {
		keys, err := eng.Data().Indexes().ReadIndex(ctx, "shop", "orders", "region", value)
		assert.NilError(t, err)
		assert.DeepEqual(t, keys.Sorted(), []string{"1", "2", "3"})
	}
}

func TestUpdateMovesCardinal(t *testing.T) {
	dir := t.TempDir()
	s := session(t, openEngine(t, dir, true), "shop")
	seedOrders(t, s)

	env := run(t, s, "UPDATE orders SET status = 'closed' WHERE status = 'open'")
	assert.Equal(t, env.Ack, "1")
	assert.Equal(t, env.Rows, 2)

	env = run(t, s, "SELECT DISTINCT status FROM orders")
	assert.DeepEqual(t, values(env, "status"), []string{"closed"})

	l := layout.New(dir, "")
	gone, err := l.IndexCountFile("shop", "orders", "status", "open")
	assert.NilError(t, err)
	_, err = os.Stat(gone)
	assert.Assert(t, os.IsNotExist(err), "count file of a drained cardinal must be removed")

	kept, err := l.IndexCountFile("shop", "orders", "status", "closed")
	assert.NilError(t, err)
	raw, err := os.ReadFile(kept)
	assert.NilError(t, err)
	assert.Equal(t, string(raw), "3")
}

func TestFastPathsAgreeWithRowScan(t *testing.T) {
	dir := t.TempDir()
	fast := session(t, openEngine(t, dir, true), "shop")
	seedOrders(t, fast)
	for _, sql := range []string{
		"CREATE INDEX ON orders (total)",
		"INSERT INTO orders (id, status, region, total) VALUES (4, 'void', 'Cc', 4), (5, 'open', 'Cc', 1.5)",
	} {
		assert.Equal(t, run(t, fast, sql).Ack, "1", sql)
	}
	slow := session(t, openEngine(t, dir, false), "shop")

	for _, sql := range []string{
		"SELECT COUNT(*) FROM orders",
		"SELECT DISTINCT status FROM orders",
		"SELECT DISTINCT status FROM orders WHERE total > 4",
		"SELECT status FROM orders",
		"SELECT * FROM orders",
		"SELECT SUM(total), MIN(total), MAX(total), AVG(total) FROM orders",
		"SELECT status, total FROM orders",
		"SELECT id, status FROM orders",
	} {
		t.Run(sql, func(t *testing.T) {
			a, b := run(t, fast, sql), run(t, slow, sql)
			assert.Equal(t, a.Ack, "1", a.Cause)
			assert.DeepEqual(t, canonical(t, a), canonical(t, b))
		})
	}
}

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
