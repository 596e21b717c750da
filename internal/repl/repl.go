// Package repl is the interactive shell over an engine session
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/leengari/cardinaldb/internal/engine"
	"github.com/leengari/cardinaldb/internal/executor"
)

const prompt = "> "

// Start reads one statement per line from in until EOF, exit or \q.
// ds, when set, is selected before the first line.
func Start(ctx context.Context, in io.Reader, out io.Writer, eng *engine.Engine, ds string) error {
	session := eng.Session()
	if ds != "" {
		if err := session.Use(ds); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "Welcome to cardinaldb")
	fmt.Fprintln(out, "Type 'exit' or '\\q' to quit, 'ls' to list datastores, 'tables' to list tables.")

	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "exit", "\\q":
			return nil
		case "ls", "list":
			listDatastores(out, eng)
			continue
		case "tables":
			listTables(out, session)
			continue
		}

		res, err := session.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "Error: %s\n", executor.CauseOf(err))
			continue
		}
		PrintResult(out, res)
	}
}

func listDatastores(out io.Writer, eng *engine.Engine) {
	names, err := eng.ListDatastores()
	if err != nil {
		fmt.Fprintf(out, "Error listing datastores: %v\n", err)
		return
	}
	fmt.Fprintln(out, "Available datastores:")
	for _, name := range names {
		fmt.Fprintf(out, "  - %s\n", name)
	}
}

func listTables(out io.Writer, session *engine.Session) {
	tables, err := session.ListTables()
	if err != nil {
		fmt.Fprintf(out, "Error: %s\n", executor.CauseOf(err))
		return
	}
	for _, table := range tables {
		fmt.Fprintf(out, "  - %s\n", table)
	}
}

// PrintResult writes res as a message or as an aligned table
func PrintResult(w io.Writer, res *executor.Result) {
	if res.Ack == executor.AckFailure {
		fmt.Fprintf(w, "Error: %s\n", res.Cause)
		return
	}
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
	}
	if len(res.Payload) == 0 {
		return
	}

	columns := header(res)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	sep := make([]string, len(columns))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintln(tw, strings.Join(sep, "\t"))

	cells := make([]string, len(columns))
	for _, rec := range res.Payload {
		for i, col := range columns {
			v, ok := rec[col]
			if !ok || v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// header is the selected columns followed by any other payload key in
// name order
func header(res *executor.Result) []string {
	seen := make(map[string]bool, len(res.Columns))
	columns := make([]string, 0, len(res.Columns))
	for _, c := range res.Columns {
		if !seen[c] {
			seen[c] = true
			columns = append(columns, c)
		}
	}
	var rest []string
	for _, rec := range res.Payload {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				rest = append(rest, k)
			}
		}
	}
	sort.Strings(rest)
	return append(columns, rest...)
}
