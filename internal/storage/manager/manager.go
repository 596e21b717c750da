package manager

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/storage/writer"
)

const datastoreMetaFile = "meta.json"

// DatastoreMeta is persisted as <root>/<ds>/meta.json
type DatastoreMeta struct {
	Name    string    `json:"name"`
	Version int       `json:"version"`
	Created time.Time `json:"created"`
}

func validDatastoreName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return dberrors.New(dberrors.DatastoreInvalid, "invalid datastore name %q", name)
	}
	return nil
}

func (d *DataManager) datastoreMeta(name string) string {
	return filepath.Join(d.layout.Datastore(name), datastoreMetaFile)
}

// CreateDatastore creates a new datastore directory and its meta.json
func (d *DataManager) CreateDatastore(name string) error {
	if err := validDatastoreName(name); err != nil {
		return err
	}
	if name == d.layout.DeleteFolder {
		return dberrors.New(dberrors.DatastoreInvalid, "datastore name %q is reserved", name)
	}
	if d.DatastoreExists(name) {
		return dberrors.New(dberrors.DatastoreInvalid, "datastore '%s' already exists", name)
	}

	meta := DatastoreMeta{Name: name, Version: 1, Created: time.Now().UTC()}
	if err := writer.WriteJSON(d.datastoreMeta(name), meta); err != nil {
		return fmt.Errorf("failed to write meta.json: %w", err)
	}
	if err := os.MkdirAll(d.layout.TablesDir(name), 0755); err != nil {
		return fmt.Errorf("failed to create datastore directory: %w", err)
	}
	d.logger.Info("datastore created", "ds", name)
	return nil
}

// EnsureDatastore creates the datastore unless it exists
func (d *DataManager) EnsureDatastore(name string) error {
	if d.DatastoreExists(name) {
		return nil
	}
	err := d.CreateDatastore(name)
	if err != nil && d.DatastoreExists(name) {
		return nil
	}
	return err
}

// DatastoreExists reports whether name has a meta.json
func (d *DataManager) DatastoreExists(name string) bool {
	if validDatastoreName(name) != nil {
		return false
	}
	_, err := os.Stat(d.datastoreMeta(name))
	return err == nil
}

// DropDatastore moves a datastore into the delete folder
func (d *DataManager) DropDatastore(name string) error {
	if !d.DatastoreExists(name) {
		return dberrors.New(dberrors.DatastoreInvalid, "datastore '%s' does not exist", name)
	}

	tables, err := d.catalog.ListTables(name)
	if err != nil {
		return err
	}
	target, err := d.layout.Trash(d.layout.Datastore(name), name)
	if err != nil {
		return fmt.Errorf("failed to remove datastore directory: %w", err)
	}

	d.catalog.Forget(name)
	for _, table := range tables {
		d.indexes.InvalidateTable(name, table)
		d.invalidate(name, table)
	}
	d.logger.Info("datastore moved for deletion", "ds", name, "target", target)
	return nil
}

// ListDatastores returns every datastore under the data root
func (d *DataManager) ListDatastores() ([]string, error) {
	entries, err := os.ReadDir(d.layout.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read datastores directory: %w", err)
	}

	var datastores []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		// Check if it's a valid datastore (has meta.json)
		if _, err := os.Stat(d.datastoreMeta(entry.Name())); err == nil {
			datastores = append(datastores, entry.Name())
		}
	}
	sort.Strings(datastores)
	return datastores, nil
}
