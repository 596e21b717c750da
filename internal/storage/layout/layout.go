// Package layout resolves every on-disk location used by the engine.
//
//	<root>/<ds>/db/<table>/data/<enc-pk>
//	<root>/<ds>/db/<table>/meta/schema.json
//	<root>/<ds>/db/<table>/index/<col>/<enc-cardinal>[/<enc-pk>]
//	<root>/<ds>/db/<table>/index-count/<col>/<enc-cardinal>
//	<root>/<delete-folder>/...
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leengari/cardinaldb/internal/storage/fsname"
)

const (
	dbDir         = "db"
	dataDir       = "data"
	metaDir       = "meta"
	indexDir      = "index"
	indexCountDir = "index-count"
	schemaFile    = "schema.json"
)

// Layout maps (datastore, table, column, value) tuples to filesystem paths
type Layout struct {
	Root         string
	DeleteFolder string
}

// New creates a Layout rooted at root
func New(root, deleteFolder string) *Layout {
	if deleteFolder == "" {
		deleteFolder = ".deleted"
	}
	return &Layout{Root: root, DeleteFolder: deleteFolder}
}

func (l *Layout) Datastore(ds string) string {
	return filepath.Join(l.Root, ds)
}

func (l *Layout) Table(ds, table string) string {
	return filepath.Join(l.Root, ds, dbDir, table)
}

func (l *Layout) TablesDir(ds string) string {
	return filepath.Join(l.Root, ds, dbDir)
}

func (l *Layout) DataDir(ds, table string) string {
	return filepath.Join(l.Table(ds, table), dataDir)
}

// DataFile is the file holding the record with primary key pk
func (l *Layout) DataFile(ds, table, pk string) (string, error) {
	name, err := fsname.Encode(pk)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.DataDir(ds, table), name), nil
}

func (l *Layout) SchemaFile(ds, table string) string {
	return filepath.Join(l.Table(ds, table), metaDir, schemaFile)
}

// IndexColumn is the directory holding every cardinal of col
func (l *Layout) IndexColumn(ds, table, col string) string {
	return filepath.Join(l.Table(ds, table), indexDir, col)
}

// IndexCardinal is the cardinal folder (BTree/Hashed) or cardinal file (Unique)
func (l *Layout) IndexCardinal(ds, table, col, cardinal string) (string, error) {
	name, err := fsname.Encode(cardinal)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.IndexColumn(ds, table, col), name), nil
}

// IndexEntry is the marker file for pk inside a cardinal folder
func (l *Layout) IndexEntry(ds, table, col, cardinal, pk string) (string, error) {
	dir, err := l.IndexCardinal(ds, table, col, cardinal)
	if err != nil {
		return "", err
	}
	name, err := fsname.Encode(pk)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (l *Layout) IndexCountColumn(ds, table, col string) string {
	return filepath.Join(l.Table(ds, table), indexCountDir, col)
}

func (l *Layout) IndexCountFile(ds, table, col, cardinal string) (string, error) {
	name, err := fsname.Encode(cardinal)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.IndexCountColumn(ds, table, col), name), nil
}

func (l *Layout) DeleteDir() string {
	return filepath.Join(l.Root, l.DeleteFolder)
}

// Trash atomically moves src into the delete folder under a name built from
// parts and the current time in milliseconds. A "_N" suffix is appended when
// the name is already taken. It returns the new location.
func (l *Layout) Trash(src string, parts ...string) (string, error) {
	if err := os.MkdirAll(l.DeleteDir(), 0755); err != nil {
		return "", fmt.Errorf("failed to create delete folder: %w", err)
	}

	base := filepath.Join(l.DeleteDir(), fmt.Sprintf("%s_%d", strings.Join(parts, "_"), time.Now().UnixMilli()))
	target := base
	for n := 1; ; n++ {
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			break
		}
		target = fmt.Sprintf("%s_%d", base, n)
	}

	if err := os.Rename(src, target); err != nil {
		return "", err
	}
	return target, nil
}
