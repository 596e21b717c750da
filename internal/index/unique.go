package index

import (
	"log/slog"
	"os"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/storage/layout"
)

// Unique stores one file per cardinal whose content is the single primary
// key holding the value:
//
//	index/<col>/<cardinal>
//
// Index never overwrites an existing cardinal. A second key for the same
// value is dropped, so callers enforcing uniqueness must check first.
type Unique struct {
	layout *layout.Layout
	counts *CountStore
	locks  *pathLocks
	logger *slog.Logger
}

func newUnique(l *layout.Layout, counts *CountStore, locks *pathLocks, logger *slog.Logger) *Unique {
	return &Unique{layout: l, counts: counts, locks: locks, logger: logger}
}

func (u *Unique) Type() schema.IndexType { return schema.IndexUnique }

func (u *Unique) Index(ds, table, col, value, pk string) error {
	_, err := u.TryIndex(ds, table, col, value, pk)
	return err
}

// TryIndex is Index that reports whether the entry was written. false means
// the value already belongs to a key (possibly pk itself).
func (u *Unique) TryIndex(ds, table, col, value, pk string) (bool, error) {
	if value == "" {
		return false, nil
	}
	path, err := u.layout.IndexCardinal(ds, table, col, value)
	if err != nil {
		return false, err
	}
	if err := u.locks.ensureDir(u.layout.IndexColumn(ds, table, col)); err != nil {
		return false, dberrors.Wrap(dberrors.IndexingError, err, "failed to create index folder for %s.%s", table, col)
	}

	created, err := createExclusive(path, []byte(pk))
	if err != nil {
		return false, dberrors.Wrap(dberrors.IndexingError, err, "failed to write unique entry for %s in %s.%s", pk, table, col)
	}
	if !created {
		u.logger.Debug("unique value already indexed", "table", table, "column", col, "value", value, "pk", pk)
		return false, nil
	}
	u.counts.Evict(ds, table, col, value)
	return true, nil
}

// owner returns the key stored for value, or "" when the value is not indexed
func (u *Unique) owner(ds, table, col, value string) (string, error) {
	path, err := u.layout.IndexCardinal(ds, table, col, value)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", dberrors.Wrap(dberrors.IndexingError, err, "failed to read unique entry in %s.%s", table, col)
	}
	return string(raw), nil
}

func (u *Unique) Remove(ds, table, col, value, pk string) error {
	if value == "" {
		return nil
	}
	stored, err := u.owner(ds, table, col, value)
	if err != nil {
		return err
	}
	if stored == "" {
		return nil
	}
	if stored != pk {
		return dberrors.New(dberrors.IndexingError,
			"unique value %q of %s.%s belongs to %s, not %s", value, table, col, stored, pk)
	}

	path, err := u.layout.IndexCardinal(ds, table, col, value)
	if err != nil {
		return err
	}
	if _, err := deleteIfExists(path); err != nil {
		return dberrors.Wrap(dberrors.IndexingError, err, "failed to remove unique entry in %s.%s", table, col)
	}
	u.counts.Evict(ds, table, col, value)
	return nil
}

func (u *Unique) Contains(ds, table, col, value, pk string) (bool, error) {
	stored, err := u.owner(ds, table, col, value)
	if err != nil {
		return false, err
	}
	return stored != "" && stored == pk, nil
}

func (u *Unique) LoadIndex(ds, table, col, value string) (KeySet, error) {
	stored, err := u.owner(ds, table, col, value)
	if err != nil {
		return nil, err
	}
	if stored == "" {
		return NewKeySet(), nil
	}
	return NewKeySet(stored), nil
}

func (u *Unique) LoadIndexStream(ds, table, col, value string, _ StreamMode) (Iterator, error) {
	stored, err := u.owner(ds, table, col, value)
	if err != nil {
		return nil, err
	}
	if stored == "" {
		return Empty(), nil
	}
	return SliceIterator([]string{stored}), nil
}

func (u *Unique) LoadIndexWithFilter(ds, table, col string, filter Filter) (KeySet, error) {
	it, err := u.LoadIndexStreamWithFilter(ds, table, col, filter)
	if err != nil {
		return nil, err
	}
	set, err := DrainSet(it)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.IndexingError, err, "failed to read index %s.%s", table, col)
	}
	return set, nil
}

func (u *Unique) LoadIndexStreamWithFilter(ds, table, col string, filter Filter) (Iterator, error) {
	switch f := filter.(type) {
	case EqualsFilter:
		return u.LoadIndexStream(ds, table, col, f.Value, StreamLazy)
	case InFilter:
		return newChainIterator(f.Values, func(value string) (Iterator, error) {
			return u.LoadIndexStream(ds, table, col, value, StreamLazy)
		}), nil
	}
	outer := newDirIterator(u.layout.IndexColumn(ds, table, col), filter.Accept)
	return newNestedIterator(outer, func(value string) (Iterator, error) {
		return u.LoadIndexStream(ds, table, col, value, StreamLazy)
	}), nil
}

func (u *Unique) InitializeIndexing(ds, table, col string) error {
	if err := u.locks.ensureDir(u.layout.IndexColumn(ds, table, col)); err != nil {
		return dberrors.Wrap(dberrors.IndexingError, err, "failed to initialize index %s.%s", table, col)
	}
	return nil
}

func (u *Unique) DropIndex(ds, table, col string) error {
	dir := u.layout.IndexColumn(ds, table, col)
	ok, err := exists(dir)
	if err != nil {
		return dberrors.Wrap(dberrors.IndexingError, err, "failed to drop index %s.%s", table, col)
	}
	if ok {
		target, err := u.layout.Trash(dir, ds, table, col)
		if err != nil {
			return dberrors.Wrap(dberrors.IndexingError, err, "failed to drop index %s.%s", table, col)
		}
		u.logger.Info("index moved for deletion", "table", table, "column", col, "target", target)
	}
	u.counts.InvalidateColumn(ds, table, col)
	return nil
}

func (u *Unique) Cardinality(ds, table, col string) (Iterator, error) {
	return newDirIterator(u.layout.IndexColumn(ds, table, col), nil), nil
}

// ReadIndexCount is 1 when the value is indexed and -1 otherwise
func (u *Unique) ReadIndexCount(ds, table, col, value string) (int64, error) {
	return u.ReadCount(ds, table, col, value)
}

// WriteIndexCount does nothing: the count follows from the cardinal file
func (u *Unique) WriteIndexCount(ds, table, col, value string, count int64) error {
	return nil
}

func (u *Unique) IndexCount(ds, table, col, value string) (int64, error) {
	return u.counts.IndexSize(ds, table, col, value, u)
}

func (u *Unique) AnyCardinalEntry(ds, table, col, value string) (string, error) {
	stored, err := u.owner(ds, table, col, value)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", dberrors.New(dberrors.SelectError,
			"cardinal %q of %s.%s has no entries, index may be corrupted", value, table, col)
	}
	return stored, nil
}

// ReadCount implements CountPersister
func (u *Unique) ReadCount(ds, table, col, cardinal string) (int64, error) {
	path, err := u.layout.IndexCardinal(ds, table, col, cardinal)
	if err != nil {
		return 0, err
	}
	ok, err := exists(path)
	if err != nil {
		return 0, dberrors.Wrap(dberrors.IndexCountError, err, "failed to stat unique entry")
	}
	if ok {
		return 1, nil
	}
	return -1, nil
}

// WriteCount implements CountPersister
func (u *Unique) WriteCount(ds, table, col, cardinal string, count int64) error {
	return nil
}
