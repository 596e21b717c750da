package indexmgr

import (
	"context"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/schema"
	"github.com/leengari/cardinaldb/internal/index"
)

// reader is the read side shared by strategies and the primary key
type reader interface {
	Cardinality(ds, table, col string) (index.Iterator, error)
	LoadIndex(ds, table, col, value string) (index.KeySet, error)
	LoadIndexStream(ds, table, col, value string, mode index.StreamMode) (index.Iterator, error)
	LoadIndexStreamWithFilter(ds, table, col string, filter index.Filter) (index.Iterator, error)
	IndexCount(ds, table, col, value string) (int64, error)
	Contains(ds, table, col, value, pk string) (bool, error)
	AnyCardinalEntry(ds, table, col, value string) (string, error)
}

// reader resolves the index of col, building a BTREE index first when the
// column has none. The primary key is served from the row files.
func (m *Manager) reader(ctx context.Context, ds, table, col string) (reader, schema.IndexType, error) {
	s, err := m.schemas.Schema(ds, table)
	if err != nil {
		return nil, "", err
	}
	c, err := column(s, col)
	if err != nil {
		return nil, "", err
	}
	if s.IsPrimary(col) {
		return &primaryKeys{rows: m.rows}, schema.IndexUnique, nil
	}

	kind := c.Index
	if !c.Indexed() {
		m.logger.Info("building index for query on unindexed column", "table", table, "column", col)
		if err := m.Index(ctx, ds, table, col, schema.IndexBTree); err != nil && !dberrors.Is(err, dberrors.AlreadyIndexed) {
			return nil, "", err
		}
		// another caller may have indexed it with a different kind
		if s, err = m.schemas.Schema(ds, table); err != nil {
			return nil, "", err
		}
		c, _ = s.Column(col)
		kind = c.Index
	}

	strategy, err := m.registry.Strategy(kind)
	if err != nil {
		return nil, "", err
	}
	return strategy, kind, nil
}

// Kind returns the index kind serving col, building a BTREE index if needed
func (m *Manager) Kind(ctx context.Context, ds, table, col string) (schema.IndexType, error) {
	_, kind, err := m.reader(ctx, ds, table, col)
	return kind, err
}

// Cardinals iterates the distinct values of col
func (m *Manager) Cardinals(ctx context.Context, ds, table, col string) (index.Iterator, error) {
	r, _, err := m.reader(ctx, ds, table, col)
	if err != nil {
		return nil, err
	}
	return r.Cardinality(ds, table, col)
}

// ReadIndex returns the keys holding value
func (m *Manager) ReadIndex(ctx context.Context, ds, table, col, value string) (index.KeySet, error) {
	r, _, err := m.reader(ctx, ds, table, col)
	if err != nil {
		return nil, err
	}
	return r.LoadIndex(ds, table, col, value)
}

// ReadIndexStream iterates the keys holding value
func (m *Manager) ReadIndexStream(ctx context.Context, ds, table, col, value string) (index.Iterator, error) {
	r, _, err := m.reader(ctx, ds, table, col)
	if err != nil {
		return nil, err
	}
	return r.LoadIndexStream(ds, table, col, value, m.registry.Mode())
}

// ReadIndexStreamWithFilter iterates the keys whose value passes filter
func (m *Manager) ReadIndexStreamWithFilter(ctx context.Context, ds, table, col string, filter index.Filter) (index.Iterator, error) {
	r, _, err := m.reader(ctx, ds, table, col)
	if err != nil {
		return nil, err
	}
	return r.LoadIndexStreamWithFilter(ds, table, col, filter)
}

// IndexCount returns the number of keys holding value, or -1 if none
func (m *Manager) IndexCount(ctx context.Context, ds, table, col, value string) (int64, error) {
	r, _, err := m.reader(ctx, ds, table, col)
	if err != nil {
		return 0, err
	}
	return r.IndexCount(ds, table, col, value)
}

// Contains reports whether pk holds value
func (m *Manager) Contains(ctx context.Context, ds, table, col, value, pk string) (bool, error) {
	r, _, err := m.reader(ctx, ds, table, col)
	if err != nil {
		return false, err
	}
	return r.Contains(ds, table, col, value, pk)
}

// AnyCardinalEntry returns one key holding value
func (m *Manager) AnyCardinalEntry(ctx context.Context, ds, table, col, value string) (string, error) {
	r, _, err := m.reader(ctx, ds, table, col)
	if err != nil {
		return "", err
	}
	return r.AnyCardinalEntry(ds, table, col, value)
}

// primaryKeys answers index reads on the primary key from the row files:
// every key is its own cardinal with exactly one entry
type primaryKeys struct {
	rows RowStore
}

func (p *primaryKeys) Cardinality(ds, table, col string) (index.Iterator, error) {
	return p.rows.SelectKeysWhere(ds, table, nil), nil
}

func (p *primaryKeys) LoadIndex(ds, table, col, value string) (index.KeySet, error) {
	ok, err := p.rows.Exists(ds, table, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return index.NewKeySet(), nil
	}
	return index.NewKeySet(value), nil
}

func (p *primaryKeys) LoadIndexStream(ds, table, col, value string, _ index.StreamMode) (index.Iterator, error) {
	set, err := p.LoadIndex(ds, table, col, value)
	if err != nil {
		return nil, err
	}
	return index.SliceIterator(set.Sorted()), nil
}

func (p *primaryKeys) LoadIndexStreamWithFilter(ds, table, col string, filter index.Filter) (index.Iterator, error) {
	switch f := filter.(type) {
	case index.EqualsFilter:
		return p.LoadIndexStream(ds, table, col, f.Value, index.StreamLazy)
	case index.InFilter:
		out := index.NewKeySet()
		for _, v := range f.Values {
			ok, err := p.rows.Exists(ds, table, v)
			if err != nil {
				return nil, err
			}
			if ok {
				out.Add(v)
			}
		}
		return index.SliceIterator(out.Sorted()), nil
	}
	return p.rows.SelectKeysWhere(ds, table, filter.Accept), nil
}

func (p *primaryKeys) IndexCount(ds, table, col, value string) (int64, error) {
	ok, err := p.rows.Exists(ds, table, value)
	if err != nil {
		return 0, err
	}
	if ok {
		return 1, nil
	}
	return -1, nil
}

func (p *primaryKeys) Contains(ds, table, col, value, pk string) (bool, error) {
	if value != pk {
		return false, nil
	}
	return p.rows.Exists(ds, table, pk)
}

func (p *primaryKeys) AnyCardinalEntry(ds, table, col, value string) (string, error) {
	ok, err := p.rows.Exists(ds, table, value)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", dberrors.New(dberrors.SelectError, "no record with key %q in %s", value, table)
	}
	return value, nil
}
