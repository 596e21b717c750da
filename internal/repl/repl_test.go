package repl

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/config"
	"github.com/leengari/cardinaldb/internal/domain/data"
	"github.com/leengari/cardinaldb/internal/engine"
	"github.com/leengari/cardinaldb/internal/executor"
)

func TestStartRunsScript(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	eng, err := engine.Open(cfg, nil)
	assert.NilError(t, err)

	script := strings.Join([]string{
		"CREATE DATABASE shop",
		"USE shop",
		"CREATE TABLE items (name TEXT, price INT)",
		"INSERT INTO items (name, price) VALUES ('apple', 3)",
		"",
		"SELECT name, price FROM items",
		"tables",
		"ls",
		"SELECT * FROM missing",
		"exit",
		"SELECT name FROM items",
	}, "\n")

	var out bytes.Buffer
	assert.NilError(t, Start(context.Background(), strings.NewReader(script), &out, eng, ""))

	got := out.String()
	for _, want := range []string{
		"Switched to datastore 'shop'",
		"Inserted 1 row",
		"Returned 1 row",
		"apple",
		"  - items",
		"Available datastores:",
		"  - shop",
		"Error:",
	} {
		assert.Assert(t, strings.Contains(got, want), "missing %q in:\n%s", want, got)
	}
	// nothing runs after exit
	assert.Equal(t, strings.Count(got, "Returned 1 row"), 1)
}

func TestStartUnknownDatastore(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	eng, err := engine.Open(cfg, nil)
	assert.NilError(t, err)

	err = Start(context.Background(), strings.NewReader(""), &bytes.Buffer{}, eng, "nowhere")
	assert.ErrorContains(t, err, "nowhere")
}

func TestPrintResult(t *testing.T) {
	res := executor.Payload([]data.Record{
		{"name": "apple", "price": float64(3)},
		{"name": "salt", "extra": true},
	}, []string{"name", "price"}, time.Millisecond)

	var out bytes.Buffer
	PrintResult(&out, res)
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")

	assert.Equal(t, lines[0], "Returned 2 rows")
	assert.Equal(t, strings.Fields(lines[1])[0], "name")
	assert.DeepEqual(t, strings.Fields(lines[1]), []string{"name", "price", "extra"})
	assert.DeepEqual(t, strings.Fields(lines[3]), []string{"apple", "3", "NULL"})
	assert.DeepEqual(t, strings.Fields(lines[4]), []string{"salt", "NULL", "true"})

	out.Reset()
	PrintResult(&out, executor.Failure("table missing does not exist"))
	assert.Equal(t, out.String(), "Error: table missing does not exist\n")
}
