package index

import (
	"log/slog"
	"os"
	"path/filepath"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/storage/layout"
)

// BTree stores one folder per cardinal holding an empty marker file per
// primary key:
//
//	index/<col>/<cardinal>/<pk>
//
// Cardinal folders are named by the literal value, so filters can compare
// values while walking the column.
type BTree struct {
	kind     schema.IndexType
	layout   *layout.Layout
	counts   *CountStore
	files    *countFiles
	locks    *pathLocks
	cache    *entryCache // nil when caching is disabled
	mode     StreamMode
	cardinal func(value string) string
	logger   *slog.Logger
}

func newBTree(l *layout.Layout, counts *CountStore, locks *pathLocks, cache *entryCache, mode StreamMode, logger *slog.Logger) *BTree {
	return &BTree{
		kind:     schema.IndexBTree,
		layout:   l,
		counts:   counts,
		files:    &countFiles{layout: l, locks: locks},
		locks:    locks,
		cache:    cache,
		mode:     mode,
		cardinal: func(v string) string { return v },
		logger:   logger,
	}
}

func (b *BTree) Type() schema.IndexType { return b.kind }

// DefaultMode is the stream mode configured for this instance
func (b *BTree) DefaultMode() StreamMode { return b.mode }

func (b *BTree) Index(ds, table, col, value, pk string) error {
	if value == "" {
		return nil
	}
	card := b.cardinal(value)

	dir, err := b.layout.IndexCardinal(ds, table, col, card)
	if err != nil {
		return err
	}
	entry, err := b.layout.IndexEntry(ds, table, col, card, pk)
	if err != nil {
		return err
	}

	// A concurrent Remove may delete the cardinal folder once it is empty,
	// so the folder is re-created if it vanished before the entry was written
	created := false
	for attempt := 0; ; attempt++ {
		if err := b.locks.ensureDir(dir); err != nil {
			return dberrors.Wrap(dberrors.IndexingError, err, "failed to create index folder for %s.%s", table, col)
		}
		ok, err := createExclusive(entry, nil)
		if err == nil {
			created = ok
			break
		}
		if os.IsNotExist(err) && attempt < 3 {
			continue
		}
		return dberrors.Wrap(dberrors.IndexingError, err, "failed to create index entry for %s in %s.%s", pk, table, col)
	}

	// The entry already existed; counting it again would break count == |entries|
	if !created {
		b.logger.Debug("index entry already present", "table", table, "column", col, "pk", pk)
		return nil
	}

	if b.cache != nil {
		b.cache.add(columnKey(ds, table, col), card, pk)
	}

	if _, err := b.counts.Increment(ds, table, col, card, b.files); err != nil {
		return err
	}
	return nil
}

func (b *BTree) Remove(ds, table, col, value, pk string) error {
	if value == "" {
		return nil
	}
	card := b.cardinal(value)

	entry, err := b.layout.IndexEntry(ds, table, col, card, pk)
	if err != nil {
		return err
	}
	removed, err := deleteIfExists(entry)
	if err != nil {
		return dberrors.Wrap(dberrors.IndexingError, err, "failed to remove index entry for %s in %s.%s", pk, table, col)
	}
	if !removed {
		return nil
	}

	if _, err := b.counts.Decrement(ds, table, col, card, b.files); err != nil {
		return err
	}
	if b.cache != nil {
		b.cache.invalidate(columnKey(ds, table, col), card)
	}

	// An emptied cardinal folder would otherwise show up as a distinct value
	if dir, err := b.layout.IndexCardinal(ds, table, col, card); err == nil {
		unlock := b.locks.lock(dir)
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			b.logger.Debug("cardinal folder kept", "table", table, "column", col, "error", err)
		}
		unlock()
	}
	return nil
}

func (b *BTree) Contains(ds, table, col, value, pk string) (bool, error) {
	if value == "" {
		return false, nil
	}
	card := b.cardinal(value)
	if b.cache != nil {
		if found, cached := b.cache.contains(columnKey(ds, table, col), card, pk); cached {
			return found, nil
		}
	}
	entry, err := b.layout.IndexEntry(ds, table, col, card, pk)
	if err != nil {
		return false, err
	}
	ok, err := exists(entry)
	if err != nil {
		return false, dberrors.Wrap(dberrors.IndexingError, err, "failed to check index entry")
	}
	return ok, nil
}

func (b *BTree) LoadIndex(ds, table, col, value string) (KeySet, error) {
	card := b.cardinal(value)
	key := columnKey(ds, table, col)
	var gen generation
	if b.cache != nil {
		if set, ok := b.cache.get(key, card); ok {
			return set, nil
		}
		gen = b.cache.generation(key)
	}

	it, err := b.entries(ds, table, col, card)
	if err != nil {
		return nil, err
	}
	set, err := DrainSet(it)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.IndexingError, err, "failed to read index %s.%s", table, col)
	}

	if b.cache != nil {
		b.cache.put(key, card, copySet(set), gen)
	}
	return set, nil
}

func (b *BTree) LoadIndexStream(ds, table, col, value string, mode StreamMode) (Iterator, error) {
	card := b.cardinal(value)

	if mode == StreamPrimeCache {
		set, err := b.LoadIndex(ds, table, col, value)
		if err != nil {
			return nil, err
		}
		return SliceIterator(set.Sorted()), nil
	}

	if b.cache != nil {
		if set, ok := b.cache.get(columnKey(ds, table, col), card); ok {
			return SliceIterator(set.Sorted()), nil
		}
	}
	return b.entries(ds, table, col, card)
}

// entries lists the primary keys of one cardinal folder
func (b *BTree) entries(ds, table, col, card string) (Iterator, error) {
	dir, err := b.layout.IndexCardinal(ds, table, col, card)
	if err != nil {
		return nil, err
	}
	return newDirIterator(dir, nil), nil
}

func (b *BTree) LoadIndexWithFilter(ds, table, col string, filter Filter) (KeySet, error) {
	it, err := b.LoadIndexStreamWithFilter(ds, table, col, filter)
	if err != nil {
		return nil, err
	}
	set, err := DrainSet(it)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.IndexingError, err, "failed to read index %s.%s", table, col)
	}
	return set, nil
}

func (b *BTree) LoadIndexStreamWithFilter(ds, table, col string, filter Filter) (Iterator, error) {
	switch f := filter.(type) {
	case EqualsFilter:
		return b.LoadIndexStream(ds, table, col, f.Value, b.mode)
	case InFilter:
		return newChainIterator(f.Values, func(value string) (Iterator, error) {
			n, err := b.counts.IndexSize(ds, table, col, b.cardinal(value), b.files)
			if err != nil {
				return nil, err
			}
			if n <= 0 {
				return Empty(), nil
			}
			return b.LoadIndexStream(ds, table, col, value, b.mode)
		}), nil
	}

	outer := newDirIterator(b.layout.IndexColumn(ds, table, col), filter.Accept)
	return newNestedIterator(outer, func(card string) (Iterator, error) {
		return b.entries(ds, table, col, card)
	}), nil
}

func (b *BTree) InitializeIndexing(ds, table, col string) error {
	if err := b.locks.ensureDir(b.layout.IndexColumn(ds, table, col)); err != nil {
		return dberrors.Wrap(dberrors.IndexingError, err, "failed to initialize index %s.%s", table, col)
	}
	return nil
}

func (b *BTree) DropIndex(ds, table, col string) error {
	dir := b.layout.IndexColumn(ds, table, col)
	ok, err := exists(dir)
	if err != nil {
		return dberrors.Wrap(dberrors.IndexingError, err, "failed to drop index %s.%s", table, col)
	}
	if ok {
		target, err := b.layout.Trash(dir, ds, table, col)
		if err != nil {
			return dberrors.Wrap(dberrors.IndexingError, err, "failed to drop index %s.%s", table, col)
		}
		b.logger.Info("index moved for deletion", "table", table, "column", col, "target", target)
	}
	if err := dropCounts(b.layout, ds, table, col); err != nil {
		return dberrors.Wrap(dberrors.IndexingError, err, "failed to drop index counts %s.%s", table, col)
	}

	if b.cache != nil {
		b.cache.invalidateColumn(columnKey(ds, table, col))
	}
	b.counts.InvalidateColumn(ds, table, col)
	return nil
}

func (b *BTree) Cardinality(ds, table, col string) (Iterator, error) {
	return newDirIterator(b.layout.IndexColumn(ds, table, col), nil), nil
}

func (b *BTree) ReadIndexCount(ds, table, col, value string) (int64, error) {
	return b.files.ReadCount(ds, table, col, b.cardinal(value))
}

func (b *BTree) WriteIndexCount(ds, table, col, value string, count int64) error {
	return b.files.WriteCount(ds, table, col, b.cardinal(value), count)
}

func (b *BTree) IndexCount(ds, table, col, value string) (int64, error) {
	return b.counts.IndexSize(ds, table, col, b.cardinal(value), b.files)
}

func (b *BTree) AnyCardinalEntry(ds, table, col, value string) (string, error) {
	it, err := b.LoadIndexStream(ds, table, col, value, StreamLazy)
	if err != nil {
		return "", err
	}
	defer it.Close()

	if it.Next() {
		return it.Value(), nil
	}
	if err := it.Err(); err != nil {
		return "", dberrors.Wrap(dberrors.IndexingError, err, "failed to read index %s.%s", table, col)
	}
	return "", dberrors.New(dberrors.SelectError,
		"cardinal %q of %s.%s has no entries, index may be corrupted", value, table, col)
}

func copySet(s KeySet) KeySet {
	out := make(KeySet, len(s))
	for k := range s {
		out.Add(k)
	}
	return out
}

// cardinalPath is used by tests to inspect the layout
func (b *BTree) cardinalPath(ds, table, col, value string) string {
	p, _ := b.layout.IndexCardinal(ds, table, col, b.cardinal(value))
	return filepath.Clean(p)
}
