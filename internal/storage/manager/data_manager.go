// Package manager is the data manager: it keeps records, their secondary
// indexes and dependent caches consistent on every write, and resolves key
// searches by column pattern.
package manager

import (
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/indexmgr"
	"github.com/leengari/cardinaldb/internal/logging"
	"github.com/leengari/cardinaldb/internal/storage/catalog"
	"github.com/leengari/cardinaldb/internal/storage/layout"
	"github.com/leengari/cardinaldb/internal/storage/rowstore"
	"github.com/leengari/cardinaldb/internal/validation"
)

// Invalidator is notified after any write to a table
type Invalidator interface {
	InvalidateTable(ds, table string)
}

const rowLockStripes = 64

// DataManager owns the row store, the catalog and the index manager of one data root
type DataManager struct {
	layout  *layout.Layout
	rows    *rowstore.Store
	catalog *catalog.Catalog
	indexes *indexmgr.Manager
	logger  *slog.Logger

	mu           sync.RWMutex
	invalidators []Invalidator

	rowLocks [rowLockStripes]sync.Mutex
}

// New wires a data manager over its stores
func New(l *layout.Layout, rows *rowstore.Store, cat *catalog.Catalog, indexes *indexmgr.Manager, logger *slog.Logger) *DataManager {
	d := &DataManager{
		layout:  l,
		rows:    rows,
		catalog: cat,
		indexes: indexes,
		logger:  logging.OrDefault(logger).With("component", "datamanager"),
	}
	indexes.SetRowLocker(d)
	return d
}

// OnChange registers inv to be told about every write
func (d *DataManager) OnChange(inv Invalidator) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidators = append(d.invalidators, inv)
}

func (d *DataManager) invalidate(ds, table string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, inv := range d.invalidators {
		inv.InvalidateTable(ds, table)
	}
}

// LockRow locks the row stripe of pk and returns its unlock
func (d *DataManager) LockRow(ds, table, pk string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ds + "\x00" + table + "\x00" + pk))
	m := &d.rowLocks[h.Sum32()%rowLockStripes]
	m.Lock()
	return m.Unlock
}

// Catalog exposes the schema store
func (d *DataManager) Catalog() *catalog.Catalog { return d.catalog }

// Indexes exposes the index manager
func (d *DataManager) Indexes() *indexmgr.Manager { return d.indexes }

// Schema returns the definition of a table
func (d *DataManager) Schema(ds, table string) (*schema.Schema, error) {
	return d.catalog.Schema(ds, table)
}

func (d *DataManager) Select(ds, table, pk string) (data.Record, error) {
	return d.rows.Select(ds, table, pk)
}

func (d *DataManager) Exists(ds, table, pk string) (bool, error) {
	return d.rows.Exists(ds, table, pk)
}

func (d *DataManager) SelectAllKeys(ds, table string) (index.KeySet, error) {
	return d.rows.SelectAllKeys(ds, table)
}

func (d *DataManager) SelectAllKeysStream(ds, table string) index.Iterator {
	return d.rows.SelectAllKeysStream(ds, table)
}

func (d *DataManager) SelectAll(ds, table string, limit int) ([]data.Record, error) {
	return d.rows.SelectAll(ds, table, limit)
}

// Count returns the number of records of a table
func (d *DataManager) Count(ds, table string) (int64, error) {
	return d.rows.Count(ds, table)
}

// convert checks every column of rec against the schema and converts its
// value to the column type
func convert(s *schema.Schema, rec map[string]interface{}) (data.Record, error) {
	out := make(data.Record, len(rec))
	for name, v := range rec {
		c, ok := s.Column(name)
		if !ok {
			return nil, dberrors.New(dberrors.UnknownColumn, "column %s does not exist in %s", name, s.Table)
		}
		if v == nil {
			out[name] = nil
			continue
		}
		converted, err := c.Type.Convert(v)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.DatatypeMismatch, err, "invalid value for %s.%s (%s)", s.Table, name, c.Type)
		}
		if err := validation.Value(c.Type, converted); err != nil {
			return nil, dberrors.Wrap(dberrors.DatatypeMismatch, err, "invalid value for %s.%s", s.Table, name)
		}
		out[name] = converted
	}
	return out, nil
}

// Insert stores a new record and indexes it. A missing auto-defined primary
// key gets a fresh uuid. It returns the primary key.
func (d *DataManager) Insert(ds, table string, values map[string]interface{}) (string, error) {
	s, err := d.catalog.Schema(ds, table)
	if err != nil {
		return "", err
	}
	rec, err := convert(s, values)
	if err != nil {
		return "", err
	}

	pk, ok := data.Text(rec[s.Primary])
	if !ok {
		primary, _ := s.Column(s.Primary)
		if primary.AutoDefine != schema.AutoDefineUUID {
			return "", dberrors.New(dberrors.InsertError, "primary key %s of %s is required", s.Primary, table)
		}
		pk = uuid.New().String()
		rec[s.Primary] = pk
	}

	unlock := d.LockRow(ds, table, pk)
	defer unlock()

	exists, err := d.rows.Exists(ds, table, pk)
	if err != nil {
		return "", err
	}
	if exists {
		return "", dberrors.NewPrimaryKeyViolation(table, s.Primary, pk)
	}
	if err := d.indexes.CheckRecord(ds, s, pk, rec); err != nil {
		return "", err
	}

	if err := d.rows.Save(ds, table, pk, rec); err != nil {
		return "", dberrors.Wrap(dberrors.InsertError, err, "failed to insert into %s", table)
	}
	if err := d.indexes.AddIndex(ds, s, pk, rec); err != nil {
		if _, delErr := d.rows.Delete(ds, table, pk); delErr != nil {
			d.logger.Error("failed to undo insert", "table", table, "pk", pk, "error", delErr)
			err = multierr.Append(err, delErr)
		}
		return "", indexFailure(err, "failed to index record %s of %s", pk, table)
	}
	d.invalidate(ds, table)
	return pk, nil
}

// Update merges changes into the record stored under pk and moves its index
// entries. It reports false when no such record exists.
func (d *DataManager) Update(ds, table, pk string, changes map[string]interface{}) (bool, error) {
	s, err := d.catalog.Schema(ds, table)
	if err != nil {
		return false, err
	}
	converted, err := convert(s, changes)
	if err != nil {
		return false, err
	}
	if v, ok := converted[s.Primary]; ok {
		if text, _ := data.Text(v); text != pk {
			return false, dberrors.New(dberrors.OperationNotSupported, "updating the primary key %s is not supported", s.Primary)
		}
	}

	unlock := d.LockRow(ds, table, pk)
	defer unlock()

	old, err := d.rows.Select(ds, table, pk)
	if err != nil {
		return false, err
	}
	if old == nil {
		return false, nil
	}
	updated := old.Merge(converted)
	if err := d.indexes.CheckRecord(ds, s, pk, updated); err != nil {
		return false, err
	}

	if err := d.rows.Save(ds, table, pk, updated); err != nil {
		return false, dberrors.Wrap(dberrors.UpdateError, err, "failed to update %s in %s", pk, table)
	}
	if err := d.indexes.DiffIndex(ds, s, pk, old, updated); err != nil {
		if saveErr := d.rows.Save(ds, table, pk, old); saveErr != nil {
			d.logger.Error("failed to undo update", "table", table, "pk", pk, "error", saveErr)
			err = multierr.Append(err, saveErr)
		}
		return false, indexFailure(err, "failed to re-index record %s of %s", pk, table)
	}
	d.invalidate(ds, table)
	return true, nil
}

// Delete removes the record stored under pk with its index entries.
// It reports false when no such record exists.
func (d *DataManager) Delete(ds, table, pk string) (bool, error) {
	s, err := d.catalog.Schema(ds, table)
	if err != nil {
		return false, err
	}

	unlock := d.LockRow(ds, table, pk)
	defer unlock()

	old, err := d.rows.Select(ds, table, pk)
	if err != nil {
		return false, err
	}
	if old == nil {
		return false, nil
	}
	if err := d.indexes.RemoveIndex(ds, s, pk, old); err != nil {
		return false, indexFailure(err, "failed to remove index entries of %s", pk)
	}
	if _, err := d.rows.Delete(ds, table, pk); err != nil {
		if addErr := d.indexes.AddIndex(ds, s, pk, old); addErr != nil {
			d.logger.Error("failed to restore index entries", "table", table, "pk", pk, "error", addErr)
			err = multierr.Append(err, addErr)
		}
		return false, err
	}
	d.invalidate(ds, table)
	return true, nil
}

// indexFailure keeps constraint violations as they are and wraps anything
// else as an indexing error
func indexFailure(err error, format string, args ...interface{}) error {
	var violation *dberrors.ConstraintError
	if errors.As(err, &violation) {
		return err
	}
	return dberrors.Wrap(dberrors.IndexingError, err, format, args...)
}

// CreateTable defines a table, creating its datastore when needed, and
// initializes the index location of every indexed column
func (d *DataManager) CreateTable(ds string, s *schema.Schema) error {
	if err := d.EnsureDatastore(ds); err != nil {
		return err
	}
	if err := d.catalog.CreateTable(ds, s); err != nil {
		return err
	}
	reg := d.indexes.Registry()
	for _, c := range s.IndexedColumns() {
		strategy, err := reg.Strategy(c.Index)
		if err != nil {
			return err
		}
		if err := strategy.InitializeIndexing(ds, s.Table, c.Name); err != nil {
			return err
		}
	}
	return nil
}

// DropTable moves the table into the delete folder and forgets its caches
func (d *DataManager) DropTable(ds, table string) error {
	if err := d.catalog.DropTable(ds, table); err != nil {
		return err
	}
	d.indexes.InvalidateTable(ds, table)
	d.invalidate(ds, table)
	return nil
}

// InvalidateTable tells every registered invalidator that table changed
func (d *DataManager) InvalidateTable(ds, table string) {
	d.invalidate(ds, table)
}
