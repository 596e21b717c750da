// Package catalog stores table definitions as meta/schema.json inside each
// table directory and keeps the parsed schemas in memory.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/logging"
	"github.com/leengari/cardinaldb/internal/storage/layout"
	"github.com/leengari/cardinaldb/internal/storage/writer"
)

// Catalog is the schema store of every datastore under one data root
type Catalog struct {
	layout *layout.Layout
	logger *slog.Logger

	mu      sync.RWMutex
	schemas map[string]*schema.Schema // "<ds>/<table>" -> schema
}

// New creates a catalog over l
func New(l *layout.Layout, logger *slog.Logger) *Catalog {
	return &Catalog{
		layout:  l,
		logger:  logging.OrDefault(logger).With("component", "catalog"),
		schemas: make(map[string]*schema.Schema),
	}
}

func key(ds, table string) string {
	return ds + "/" + table
}

// Schema returns a copy of the table definition. Unknown tables fail with UNKNOWN_TABLE.
func (c *Catalog) Schema(ds, table string) (*schema.Schema, error) {
	s, err := c.load(ds, table)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Exists reports whether the table is defined
func (c *Catalog) Exists(ds, table string) bool {
	_, err := c.load(ds, table)
	return err == nil
}

func (c *Catalog) load(ds, table string) (*schema.Schema, error) {
	c.mu.RLock()
	s, ok := c.schemas[key(ds, table)]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.schemas[key(ds, table)]; ok {
		return s, nil
	}

	var loaded schema.Schema
	if err := writer.ReadJSON(c.layout.SchemaFile(ds, table), &loaded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dberrors.New(dberrors.UnknownTable, "table %s does not exist in %s", table, ds)
		}
		return nil, dberrors.Wrap(dberrors.InternalOperationError, err, "failed to load schema of %s", table)
	}
	if err := loaded.Validate(); err != nil {
		return nil, dberrors.Wrap(dberrors.InternalOperationError, err, "invalid schema of %s", table)
	}

	c.schemas[key(ds, table)] = &loaded
	c.logger.Debug("schema loaded", "ds", ds, "table", table, "columns", len(loaded.Columns))
	return &loaded, nil
}

// CreateTable creates the table directories and persists s
func (c *Catalog) CreateTable(ds string, s *schema.Schema) error {
	if err := s.Validate(); err != nil {
		return dberrors.Wrap(dberrors.InvalidQuery, err, "invalid table definition")
	}
	if strings.ContainsAny(s.Table, `/\`) || s.Table == "." || s.Table == ".." {
		return dberrors.New(dberrors.InvalidQuery, "invalid table name %q", s.Table)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.layout.Table(ds, s.Table)); err == nil {
		return dberrors.New(dberrors.TableExists, "table %s already exists in %s", s.Table, ds)
	}
	if err := os.MkdirAll(c.layout.DataDir(ds, s.Table), 0755); err != nil {
		return dberrors.Wrap(dberrors.InternalOperationError, err, "failed to create table %s", s.Table)
	}

	stored := s.Clone()
	if err := writer.WriteJSON(c.layout.SchemaFile(ds, s.Table), stored); err != nil {
		return dberrors.Wrap(dberrors.InternalOperationError, err, "failed to save schema of %s", s.Table)
	}
	c.schemas[key(ds, s.Table)] = stored

	c.logger.Info("table created", "ds", ds, "table", s.Table, "primary", s.Primary)
	return nil
}

// DropTable moves the whole table directory into the delete folder
func (c *Catalog) DropTable(ds, table string) error {
	if _, err := c.load(ds, table); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target, err := c.layout.Trash(c.layout.Table(ds, table), ds, table)
	if err != nil {
		return dberrors.Wrap(dberrors.InternalOperationError, err, "failed to drop table %s", table)
	}
	delete(c.schemas, key(ds, table))

	c.logger.Info("table moved for deletion", "ds", ds, "table", table, "target", target)
	return nil
}

// Update applies fn to a copy of the schema and persists the result.
// The stored schema is unchanged when fn or the write fails.
func (c *Catalog) Update(ds, table string, fn func(*schema.Schema) error) (*schema.Schema, error) {
	current, err := c.load(ds, table)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if latest, ok := c.schemas[key(ds, table)]; ok {
		current = latest
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, dberrors.Wrap(dberrors.InvalidQuery, err, "invalid table definition")
	}
	if err := writer.WriteJSON(c.layout.SchemaFile(ds, table), next); err != nil {
		return nil, dberrors.Wrap(dberrors.InternalOperationError, err, "failed to save schema of %s", table)
	}
	c.schemas[key(ds, table)] = next
	return next.Clone(), nil
}

// AddColumn appends col to the table
func (c *Catalog) AddColumn(ds, table string, col *schema.Column) error {
	_, err := c.Update(ds, table, func(s *schema.Schema) error {
		if err := s.AddColumn(col); err != nil {
			return dberrors.Wrap(dberrors.InvalidQuery, err, "cannot add column")
		}
		return nil
	})
	return err
}

// DropColumn removes a column definition
func (c *Catalog) DropColumn(ds, table, name string) error {
	_, err := c.Update(ds, table, func(s *schema.Schema) error {
		if _, ok := s.Column(name); !ok {
			return dberrors.New(dberrors.UnknownColumn, "column %s does not exist in %s", name, table)
		}
		if err := s.DropColumn(name); err != nil {
			return dberrors.Wrap(dberrors.OperationNotSupported, err, "cannot drop column")
		}
		return nil
	})
	return err
}

// SetIndex records the index kind of a column
func (c *Catalog) SetIndex(ds, table, col string, kind schema.IndexType) error {
	_, err := c.Update(ds, table, func(s *schema.Schema) error {
		column, ok := s.Column(col)
		if !ok {
			return dberrors.New(dberrors.UnknownColumn, "column %s does not exist in %s", col, table)
		}
		column.Index = kind
		return nil
	})
	return err
}

// ListTables returns the tables of a datastore in name order
func (c *Catalog) ListTables(ds string) ([]string, error) {
	entries, err := os.ReadDir(c.layout.TablesDir(ds))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tables of %s: %w", ds, err)
	}

	var tables []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(c.layout.SchemaFile(ds, entry.Name())); err == nil {
			tables = append(tables, entry.Name())
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// Forget drops every cached schema of a datastore
func (c *Catalog) Forget(ds string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := ds + "/"
	for k := range c.schemas {
		if strings.HasPrefix(k, prefix) {
			delete(c.schemas, k)
		}
	}
}
