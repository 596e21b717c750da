// Package indexmgr orchestrates index builds, drops, write hooks and reads
// over the strategies of an index.Registry.
package indexmgr

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/logging"
)

// RowStore is the part of the primary row store the manager reads
type RowStore interface {
	Select(ds, table, pk string) (data.Record, error)
	Exists(ds, table, pk string) (bool, error)
	SelectAllKeys(ds, table string) (index.KeySet, error)
	SelectKeysWhere(ds, table string, accept func(pk string) (bool, error)) index.Iterator
}

// SchemaStore resolves and updates table definitions
type SchemaStore interface {
	Schema(ds, table string) (*schema.Schema, error)
	SetIndex(ds, table, col string, kind schema.IndexType) error
}

// RowLocker serializes the work done on one row
type RowLocker interface {
	LockRow(ds, table, pk string) func()
}

// Manager builds, drops, maintains and reads the secondary indexes of every table
type Manager struct {
	registry *index.Registry
	schemas  SchemaStore
	rows     RowStore
	workers  int
	logger   *slog.Logger
	locker   RowLocker

	// builds serializes index builds per column
	builds sync.Map // "<ds>.<table>.<col>" -> *sync.Mutex
	// gates order write hooks (read side) against index state changes (write side)
	gates sync.Map // "<ds>.<table>" -> *sync.RWMutex

	mu       sync.Mutex
	building map[string]schema.IndexType // "<ds>.<table>.<col>" -> kind being built
}

// New creates a manager. workers bounds the parallelism of index builds.
func New(registry *index.Registry, schemas SchemaStore, rows RowStore, workers int, logger *slog.Logger) *Manager {
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		registry: registry,
		schemas:  schemas,
		rows:     rows,
		workers:  workers,
		logger:   logging.OrDefault(logger).With("component", "indexmgr"),
		building: make(map[string]schema.IndexType),
	}
}

// Registry exposes the strategies the manager dispatches to
func (m *Manager) Registry() *index.Registry { return m.registry }

// SetRowLocker makes build sweeps take the row lock that writers hold
func (m *Manager) SetRowLocker(l RowLocker) { m.locker = l }

func (m *Manager) lockRow(ds, table, pk string) func() {
	if m.locker == nil {
		return func() {}
	}
	return m.locker.LockRow(ds, table, pk)
}

func columnKey(ds, table, col string) string {
	return ds + "." + table + "." + col
}

func (m *Manager) buildLock(ds, table, col string) func() {
	v, _ := m.builds.LoadOrStore(columnKey(ds, table, col), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *Manager) gate(ds, table string) *sync.RWMutex {
	v, _ := m.gates.LoadOrStore(ds+"."+table, &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

// setBuilding marks col as being built as kind; IndexNone clears the mark.
// The caller holds the table gate for writing.
func (m *Manager) setBuilding(ds, table, col string, kind schema.IndexType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == schema.IndexNone {
		delete(m.building, columnKey(ds, table, col))
		return
	}
	m.building[columnKey(ds, table, col)] = kind
}

// hookedColumn is a column the write hooks keep up to date
type hookedColumn struct {
	name string
	kind schema.IndexType
}

// hooked lists the indexed columns of the stored schema of table plus the
// columns being built. The caller holds the table gate for reading.
func (m *Manager) hooked(ds, table string) ([]hookedColumn, error) {
	s, err := m.schemas.Schema(ds, table)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var cols []hookedColumn
	for _, c := range s.Columns {
		if s.IsPrimary(c.Name) {
			continue
		}
		kind := c.Index
		if building, ok := m.building[columnKey(ds, table, c.Name)]; ok {
			kind = building
		}
		if kind != schema.IndexNone && kind != "" {
			cols = append(cols, hookedColumn{name: c.Name, kind: kind})
		}
	}
	return cols, nil
}

func column(s *schema.Schema, col string) (*schema.Column, error) {
	c, ok := s.Column(col)
	if !ok {
		return nil, dberrors.New(dberrors.UnknownColumn, "column %s does not exist in %s", col, s.Table)
	}
	return c, nil
}

// Index builds an index of the given kind on an existing column and records
// it in the schema. Rows already stored are indexed by a parallel sweep while
// writers keep the new index up to date.
func (m *Manager) Index(ctx context.Context, ds, table, col string, kind schema.IndexType) error {
	unlock := m.buildLock(ds, table, col)
	defer unlock()

	s, err := m.schemas.Schema(ds, table)
	if err != nil {
		return err
	}
	c, err := column(s, col)
	if err != nil {
		return err
	}
	if c.Indexed() {
		return dberrors.New(dberrors.AlreadyIndexed, "column %s of %s is already indexed as %s", col, table, c.Index)
	}

	strategy, err := m.registry.Strategy(kind)
	if err != nil {
		return err
	}

	gate := m.gate(ds, table)
	gate.Lock()
	// entries or counts left behind by an earlier index of col
	if err := strategy.DropIndex(ds, table, col); err != nil {
		gate.Unlock()
		return err
	}
	if err := strategy.InitializeIndexing(ds, table, col); err != nil {
		gate.Unlock()
		return err
	}
	m.setBuilding(ds, table, col, kind)
	gate.Unlock()

	if err := m.sweep(ctx, ds, table, col, kind); err != nil {
		gate.Lock()
		if dropErr := strategy.DropIndex(ds, table, col); dropErr != nil {
			m.logger.Error("failed to drop partial index", "table", table, "column", col, "error", dropErr)
		}
		m.setBuilding(ds, table, col, schema.IndexNone)
		gate.Unlock()
		return err
	}
	m.registry.InvalidateColumn(ds, table, col)

	gate.Lock()
	defer gate.Unlock()
	if err := m.schemas.SetIndex(ds, table, col, kind); err != nil {
		if dropErr := strategy.DropIndex(ds, table, col); dropErr != nil {
			m.logger.Error("failed to drop unrecorded index", "table", table, "column", col, "error", dropErr)
		}
		m.setBuilding(ds, table, col, schema.IndexNone)
		return err
	}
	m.setBuilding(ds, table, col, schema.IndexNone)
	m.logger.Info("index created", "ds", ds, "table", table, "column", col, "type", kind)
	return nil
}

// sweep indexes the current value of col for every row stored when the
// build started. Each row is read and indexed under its row lock; rows
// written later are indexed by the write hooks.
func (m *Manager) sweep(ctx context.Context, ds, table, col string, kind schema.IndexType) error {
	keys, err := m.rows.SelectAllKeys(ds, table)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	var (
		mu      sync.Mutex
		indexed int
	)
	for _, pk := range keys.Sorted() {
		pk := pk
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			unlock := m.lockRow(ds, table, pk)
			defer unlock()

			rec, err := m.rows.Select(ds, table, pk)
			if err != nil {
				return err
			}
			if rec == nil {
				// deleted since the keys were listed
				return nil
			}
			value, ok := data.Text(rec[col])
			if !ok {
				return nil
			}
			if err := m.write(ds, table, col, kind, value, pk); err != nil {
				return err
			}

			mu.Lock()
			indexed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.logger.Debug("index build sweep done", "table", table, "column", col, "indexed", indexed)
	return nil
}

const uniqueRetries = 3

// write adds the entry value -> pk. A unique value held by another key fails
// with a unique ConstraintError and writes nothing.
func (m *Manager) write(ds, table, col string, kind schema.IndexType, value, pk string) error {
	if kind == schema.IndexUnique {
		unique := m.registry.Unique()
		for attempt := 0; ; attempt++ {
			wrote, err := unique.TryIndex(ds, table, col, value, pk)
			if err != nil || wrote {
				return err
			}
			owner, err := unique.AnyCardinalEntry(ds, table, col, value)
			if dberrors.Is(err, dberrors.SelectError) && attempt < uniqueRetries {
				// the owner let go of the value in between
				continue
			}
			if err != nil {
				return err
			}
			if owner != pk {
				return dberrors.NewUniqueViolation(table, col, value, owner)
			}
			return nil
		}
	}
	strategy, err := m.registry.Strategy(kind)
	if err != nil {
		return err
	}
	return strategy.Index(ds, table, col, value, pk)
}

func (m *Manager) remove(ds, table, col string, kind schema.IndexType, value, pk string) error {
	strategy, err := m.registry.Strategy(kind)
	if err != nil {
		return err
	}
	return strategy.Remove(ds, table, col, value, pk)
}

// DropIndex removes the index of a column. The primary key index cannot be dropped.
func (m *Manager) DropIndex(ds, table, col string) error {
	unlock := m.buildLock(ds, table, col)
	defer unlock()

	s, err := m.schemas.Schema(ds, table)
	if err != nil {
		return err
	}
	c, err := column(s, col)
	if err != nil {
		return err
	}
	if s.IsPrimary(col) {
		return dberrors.New(dberrors.PrimaryKeyIndexDropRestricted, "cannot drop the primary key index of %s", table)
	}
	if !c.Indexed() {
		return dberrors.New(dberrors.NotIndexed, "column %s of %s is not indexed", col, table)
	}

	strategy, err := m.registry.Strategy(c.Index)
	if err != nil {
		return err
	}

	gate := m.gate(ds, table)
	gate.Lock()
	defer gate.Unlock()
	if err := strategy.DropIndex(ds, table, col); err != nil {
		return err
	}
	if err := m.schemas.SetIndex(ds, table, col, schema.IndexNone); err != nil {
		return err
	}
	m.logger.Info("index dropped", "ds", ds, "table", table, "column", col)
	return nil
}

// entry is one index entry written by a hook, kept to undo it
type entry struct {
	col   hookedColumn
	value string
}

// AddIndex indexes every indexed column of a newly stored record. On failure
// the entries it wrote are removed again.
func (m *Manager) AddIndex(ds string, s *schema.Schema, pk string, rec data.Record) error {
	gate := m.gate(ds, s.Table)
	gate.RLock()
	defer gate.RUnlock()

	cols, err := m.hooked(ds, s.Table)
	if err != nil {
		return err
	}
	var written []entry
	for _, c := range cols {
		value, ok := data.Text(rec[c.name])
		if !ok {
			continue
		}
		if err := m.write(ds, s.Table, c.name, c.kind, value, pk); err != nil {
			return multierr.Append(err, m.undoAdd(ds, s.Table, pk, written))
		}
		written = append(written, entry{col: c, value: value})
	}
	return nil
}

func (m *Manager) undoAdd(ds, table, pk string, written []entry) error {
	var errs error
	for i := len(written) - 1; i >= 0; i-- {
		e := written[i]
		errs = multierr.Append(errs, m.remove(ds, table, e.col.name, e.col.kind, e.value, pk))
	}
	return errs
}

// change is an indexed value change made by DiffIndex
type change struct {
	col                 hookedColumn
	before, after       string
	hadBefore, hasAfter bool
}

// DiffIndex moves the entries of every indexed column whose value changed.
// On failure the columns already moved are moved back.
func (m *Manager) DiffIndex(ds string, s *schema.Schema, pk string, old, updated data.Record) error {
	gate := m.gate(ds, s.Table)
	gate.RLock()
	defer gate.RUnlock()

	cols, err := m.hooked(ds, s.Table)
	if err != nil {
		return err
	}
	var moved []change
	for _, c := range cols {
		mv := change{col: c}
		mv.before, mv.hadBefore = data.Text(old[c.name])
		mv.after, mv.hasAfter = data.Text(updated[c.name])
		if mv.hadBefore == mv.hasAfter && mv.before == mv.after {
			continue
		}
		if err := m.move(ds, s.Table, pk, mv); err != nil {
			return multierr.Append(err, m.undoMoves(ds, s.Table, pk, moved))
		}
		moved = append(moved, mv)
	}
	return nil
}

// move applies one value change, undoing its own half on failure. A unique
// value is claimed before the old one is released; other kinds remove first
// because two values may share a hashed cardinal.
func (m *Manager) move(ds, table, pk string, mv change) error {
	c := mv.col
	if c.kind == schema.IndexUnique {
		if mv.hasAfter {
			if err := m.write(ds, table, c.name, c.kind, mv.after, pk); err != nil {
				return err
			}
		}
		if mv.hadBefore {
			if err := m.remove(ds, table, c.name, c.kind, mv.before, pk); err != nil {
				if mv.hasAfter {
					err = multierr.Append(err, m.remove(ds, table, c.name, c.kind, mv.after, pk))
				}
				return err
			}
		}
		return nil
	}

	if mv.hadBefore {
		if err := m.remove(ds, table, c.name, c.kind, mv.before, pk); err != nil {
			return err
		}
	}
	if mv.hasAfter {
		if err := m.write(ds, table, c.name, c.kind, mv.after, pk); err != nil {
			if mv.hadBefore {
				err = multierr.Append(err, m.write(ds, table, c.name, c.kind, mv.before, pk))
			}
			return err
		}
	}
	return nil
}

func (m *Manager) undoMoves(ds, table, pk string, moved []change) error {
	var errs error
	for i := len(moved) - 1; i >= 0; i-- {
		mv := moved[i]
		mv.before, mv.after = mv.after, mv.before
		mv.hadBefore, mv.hasAfter = mv.hasAfter, mv.hadBefore
		errs = multierr.Append(errs, m.move(ds, table, pk, mv))
	}
	return errs
}

// RemoveIndex deletes the entries of a record about to be deleted. On
// failure the entries already removed are written back.
func (m *Manager) RemoveIndex(ds string, s *schema.Schema, pk string, rec data.Record) error {
	gate := m.gate(ds, s.Table)
	gate.RLock()
	defer gate.RUnlock()

	cols, err := m.hooked(ds, s.Table)
	if err != nil {
		return err
	}
	var removed []entry
	for _, c := range cols {
		value, ok := data.Text(rec[c.name])
		if !ok {
			continue
		}
		if err := m.remove(ds, s.Table, c.name, c.kind, value, pk); err != nil {
			for i := len(removed) - 1; i >= 0; i-- {
				e := removed[i]
				err = multierr.Append(err, m.write(ds, s.Table, e.col.name, e.col.kind, e.value, pk))
			}
			return err
		}
		removed = append(removed, entry{col: c, value: value})
	}
	return nil
}

// CheckUnique fails with a unique ConstraintError when a key other than pk holds value
func (m *Manager) CheckUnique(ds, table, col, value, pk string) error {
	owners, err := m.registry.Unique().LoadIndex(ds, table, col, value)
	if err != nil {
		return err
	}
	for owner := range owners {
		if owner != pk {
			return dberrors.NewUniqueViolation(table, col, value, owner)
		}
	}
	return nil
}

// CheckRecord runs CheckUnique for every unique column of rec
func (m *Manager) CheckRecord(ds string, s *schema.Schema, pk string, rec data.Record) error {
	for _, c := range s.IndexedColumns() {
		if c.Index != schema.IndexUnique {
			continue
		}
		value, ok := data.Text(rec[c.Name])
		if !ok {
			continue
		}
		if err := m.CheckUnique(ds, s.Table, c.Name, value, pk); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateTable drops cached counts and entries of a dropped table
func (m *Manager) InvalidateTable(ds, table string) {
	m.registry.InvalidateTable(ds, table)
}
