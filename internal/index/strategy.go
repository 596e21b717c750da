package index

import (
	"github.com/leengari/cardinaldb/internal/domain/schema"
)

// StreamMode selects how LoadIndexStream produces its entries
type StreamMode int

const (
	// StreamLazy lists the cardinal directory while iterating
	StreamLazy StreamMode = iota
	// StreamPrimeCache reads the whole cardinal first so the entry cache is
	// populated, then iterates the in-memory set. Repeat reads are faster; the
	// first read pays the full listing before returning its first key.
	StreamPrimeCache
)

// Strategy persists and queries the mapping from the values of one column
// to the primary keys holding them. Values are passed in their canonical
// text form (see data.Text); each strategy derives its own cardinal from them.
type Strategy interface {
	Type() schema.IndexType

	// Index records that row pk holds value. Empty values are ignored.
	Index(ds, table, col, value, pk string) error
	// Remove deletes the entry if present. Removing a missing entry is a no-op.
	Remove(ds, table, col, value, pk string) error
	Contains(ds, table, col, value, pk string) (bool, error)

	LoadIndex(ds, table, col, value string) (KeySet, error)
	LoadIndexStream(ds, table, col, value string, mode StreamMode) (Iterator, error)
	LoadIndexWithFilter(ds, table, col string, filter Filter) (KeySet, error)
	LoadIndexStreamWithFilter(ds, table, col string, filter Filter) (Iterator, error)

	// InitializeIndexing creates the column index location. It does not index rows.
	InitializeIndexing(ds, table, col string) error
	// DropIndex atomically moves the column index out of the table.
	DropIndex(ds, table, col string) error
	// Cardinality iterates the distinct cardinals of the column.
	Cardinality(ds, table, col string) (Iterator, error)

	ReadIndexCount(ds, table, col, value string) (int64, error)
	WriteIndexCount(ds, table, col, value string, count int64) error
	// IndexCount is the number of entries under value, through the count cache.
	IndexCount(ds, table, col, value string) (int64, error)
	// AnyCardinalEntry returns one primary key holding value.
	AnyCardinalEntry(ds, table, col, value string) (string, error)
}
