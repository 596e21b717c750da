package index

import (
	"log/slog"
	"strconv"
	"unicode/utf16"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/storage/layout"
)

// Hashed shares the BTree layout but names each cardinal folder by the
// 32-bit string hash of the value. Distinct values that collide share a
// folder, so loading either value returns the entries of both. Hash order
// is unrelated to value order: only equality and IN lookups are meaningful,
// and callers must not pass range filters.
type Hashed struct {
	*BTree
}

func newHashed(l *layout.Layout, counts *CountStore, locks *pathLocks, cache *entryCache, mode StreamMode, logger *slog.Logger) *Hashed {
	b := newBTree(l, counts, locks, cache, mode, logger)
	b.kind = schema.IndexHashed
	b.cardinal = HashCardinal
	return &Hashed{BTree: b}
}

// HashCardinal returns the decimal form of the value's string hash
// (s[0]*31^(n-1) + ... + s[n-1] over UTF-16 code units, wrapping at 32 bits),
// which keeps folder names compatible with existing data directories
func HashCardinal(value string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(value)) {
		h = 31*h + int32(u)
	}
	return strconv.FormatInt(int64(h), 10)
}

func (h *Hashed) LoadIndexStreamWithFilter(ds, table, col string, filter Filter) (Iterator, error) {
	switch f := filter.(type) {
	case EqualsFilter, InFilter:
		return h.BTree.LoadIndexStreamWithFilter(ds, table, col, f)
	}
	// Cardinal folders hold hashes; the filter sees hash text, not values
	h.logger.Warn("non-equality filter on hashed index", "table", table, "column", col)
	return h.BTree.LoadIndexStreamWithFilter(ds, table, col, filter)
}

func (h *Hashed) LoadIndexWithFilter(ds, table, col string, filter Filter) (KeySet, error) {
	it, err := h.LoadIndexStreamWithFilter(ds, table, col, filter)
	if err != nil {
		return nil, err
	}
	set, err := DrainSet(it)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.IndexingError, err, "failed to read index %s.%s", table, col)
	}
	return set, nil
}

func (h *Hashed) IndexCount(ds, table, col, value string) (int64, error) {
	return 0, dberrors.New(dberrors.OperationNotSupported,
		"index count is not available on hashed index %s.%s", table, col)
}

func (h *Hashed) AnyCardinalEntry(ds, table, col, value string) (string, error) {
	return "", dberrors.New(dberrors.OperationNotSupported,
		"cardinal entry lookup is not available on hashed index %s.%s", table, col)
}
