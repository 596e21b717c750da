// Package rowstore is the primary row store: one JSON file per record under
// <table>/data/, named by the encoded primary key.
package rowstore

import (
	"log/slog"
	"os"
	"strings"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/index"
	"github.com/leengari/cardinaldb/internal/logging"
	"github.com/leengari/cardinaldb/internal/storage/fsname"
	"github.com/leengari/cardinaldb/internal/storage/layout"
	"github.com/leengari/cardinaldb/internal/storage/writer"
)

// Store reads and writes records of every table under one data root
type Store struct {
	layout *layout.Layout
	logger *slog.Logger
}

// New creates a row store over l
func New(l *layout.Layout, logger *slog.Logger) *Store {
	return &Store{layout: l, logger: logging.OrDefault(logger).With("component", "rowstore")}
}

// Select returns the record stored under pk, or nil when there is none
func (s *Store) Select(ds, table, pk string) (data.Record, error) {
	path, err := s.layout.DataFile(ds, table, pk)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dberrors.Wrap(dberrors.InternalOperationError, err, "failed to read record %s of %s", pk, table)
	}
	rec, err := data.Unmarshal(raw)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.InternalOperationError, err, "corrupted record %s of %s", pk, table)
	}
	return rec, nil
}

// Exists reports whether a record is stored under pk
func (s *Store) Exists(ds, table, pk string) (bool, error) {
	path, err := s.layout.DataFile(ds, table, pk)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, dberrors.Wrap(dberrors.InternalOperationError, err, "failed to stat record %s of %s", pk, table)
}

// Save writes rec under pk, replacing any previous version
func (s *Store) Save(ds, table, pk string, rec data.Record) error {
	path, err := s.layout.DataFile(ds, table, pk)
	if err != nil {
		return err
	}
	raw, err := rec.Marshal()
	if err != nil {
		return dberrors.Wrap(dberrors.InternalOperationError, err, "failed to encode record %s of %s", pk, table)
	}
	if err := writer.WriteFileAtomic(path, raw); err != nil {
		return dberrors.Wrap(dberrors.InternalOperationError, err, "failed to save record %s of %s", pk, table)
	}
	return nil
}

// Delete removes the record and reports whether it existed
func (s *Store) Delete(ds, table, pk string) (bool, error) {
	path, err := s.layout.DataFile(ds, table, pk)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, dberrors.Wrap(dberrors.InternalOperationError, err, "failed to delete record %s of %s", pk, table)
	}
	return true, nil
}

// SelectAllKeysStream iterates every primary key of the table
func (s *Store) SelectAllKeysStream(ds, table string) index.Iterator {
	return index.DirIterator(s.layout.DataDir(ds, table), nil)
}

// SelectKeysWhere iterates the primary keys accepted by accept
func (s *Store) SelectKeysWhere(ds, table string, accept func(pk string) (bool, error)) index.Iterator {
	return index.DirIterator(s.layout.DataDir(ds, table), accept)
}

// SelectAllKeys returns every primary key of the table
func (s *Store) SelectAllKeys(ds, table string) (index.KeySet, error) {
	keys, err := index.DrainSet(s.SelectAllKeysStream(ds, table))
	if err != nil {
		return nil, dberrors.Wrap(dberrors.InternalOperationError, err, "failed to list keys of %s", table)
	}
	return keys, nil
}

// Count returns the number of records without reading them
func (s *Store) Count(ds, table string) (int64, error) {
	entries, err := os.ReadDir(s.layout.DataDir(ds, table))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, dberrors.Wrap(dberrors.InternalOperationError, err, "failed to count records of %s", table)
	}
	var n int64
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), writer.TempPrefix) {
			n++
		}
	}
	return n, nil
}

// SelectAll reads up to limit records in key order. limit <= 0 reads all.
// Records that fail to load are logged and skipped.
func (s *Store) SelectAll(ds, table string, limit int) ([]data.Record, error) {
	entries, err := os.ReadDir(s.layout.DataDir(ds, table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dberrors.Wrap(dberrors.InternalOperationError, err, "failed to list records of %s", table)
	}

	var out []data.Record
	for _, e := range entries {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.HasPrefix(e.Name(), writer.TempPrefix) {
			continue
		}
		pk, err := fsname.Decode(e.Name())
		if err != nil {
			s.logger.Warn("skipping undecodable record file", "table", table, "file", e.Name(), "error", err)
			continue
		}
		rec, err := s.Select(ds, table, pk)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "table", table, "pk", pk, "error", err)
			continue
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}
