package index

import (
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
)

// Unsupported stands in for declared index kinds without an implementation
// (ARRAY, TIMESERIES). Every operation fails instead of silently doing nothing.
type Unsupported struct {
	kind schema.IndexType
}

func (u *Unsupported) Type() schema.IndexType { return u.kind }

func (u *Unsupported) err() error {
	return dberrors.New(dberrors.OperationNotSupported, "%s indexes are not supported", u.kind)
}

func (u *Unsupported) Index(ds, table, col, value, pk string) error  { return u.err() }
func (u *Unsupported) Remove(ds, table, col, value, pk string) error { return u.err() }

func (u *Unsupported) Contains(ds, table, col, value, pk string) (bool, error) {
	return false, u.err()
}

func (u *Unsupported) LoadIndex(ds, table, col, value string) (KeySet, error) {
	return nil, u.err()
}

func (u *Unsupported) LoadIndexStream(ds, table, col, value string, _ StreamMode) (Iterator, error) {
	return nil, u.err()
}

func (u *Unsupported) LoadIndexWithFilter(ds, table, col string, _ Filter) (KeySet, error) {
	return nil, u.err()
}

func (u *Unsupported) LoadIndexStreamWithFilter(ds, table, col string, _ Filter) (Iterator, error) {
	return nil, u.err()
}

func (u *Unsupported) InitializeIndexing(ds, table, col string) error { return u.err() }
func (u *Unsupported) DropIndex(ds, table, col string) error          { return u.err() }

func (u *Unsupported) Cardinality(ds, table, col string) (Iterator, error) {
	return nil, u.err()
}

func (u *Unsupported) ReadIndexCount(ds, table, col, value string) (int64, error) {
	return 0, u.err()
}

func (u *Unsupported) WriteIndexCount(ds, table, col, value string, count int64) error {
	return u.err()
}

func (u *Unsupported) IndexCount(ds, table, col, value string) (int64, error) {
	return 0, u.err()
}

func (u *Unsupported) AnyCardinalEntry(ds, table, col, value string) (string, error) {
	return "", u.err()
}
