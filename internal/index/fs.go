package index

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/storage/layout"
)

const lockStripes = 64

// pathLocks serializes directory creation per path without one mutex per path
type pathLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (p *pathLocks) lock(path string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	m := &p.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// ensureDir creates dir if absent. Concurrent first creation of the same
// directory is serialized and re-checked after creation, so every caller
// returns only once the directory exists.
func (p *pathLocks) ensureDir(dir string) error {
	if isDir(dir) {
		return nil
	}

	unlock := p.lock(dir)
	defer unlock()

	if isDir(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	if !isDir(dir) {
		return fmt.Errorf("%s exists but is not a directory", dir)
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// createExclusive creates path with content unless it already exists.
// It reports whether this call created the file.
func createExclusive(path string, content []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if len(content) > 0 {
		if _, err := f.Write(content); err != nil {
			f.Close()
			os.Remove(path)
			return false, err
		}
	}
	return true, f.Close()
}

// deleteIfExists reports whether this call removed path
func deleteIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// countFiles persists counts as decimal text under index-count/<col>/<cardinal>
type countFiles struct {
	layout *layout.Layout
	locks  *pathLocks
}

func (c *countFiles) ReadCount(ds, table, col, cardinal string) (int64, error) {
	path, err := c.layout.IndexCountFile(ds, table, col, cardinal)
	if err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return 0, dberrors.Wrap(dberrors.IndexCountError, err, "failed to read count file %s", path)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, dberrors.Wrap(dberrors.IndexCountError, err, "corrupted count file %s", path)
	}
	return n, nil
}

func (c *countFiles) WriteCount(ds, table, col, cardinal string, count int64) error {
	path, err := c.layout.IndexCountFile(ds, table, col, cardinal)
	if err != nil {
		return err
	}
	if count <= 0 {
		if _, err := deleteIfExists(path); err != nil {
			return dberrors.Wrap(dberrors.IndexCountError, err, "failed to delete count file %s", path)
		}
		return nil
	}
	if err := c.locks.ensureDir(filepath.Dir(path)); err != nil {
		return dberrors.Wrap(dberrors.IndexCountError, err, "failed to create count folder")
	}
	if err := os.WriteFile(path, []byte(strconv.FormatInt(count, 10)), 0644); err != nil {
		return dberrors.Wrap(dberrors.IndexCountError, err, "failed to write count file %s", path)
	}
	return nil
}

// dropCounts moves a column's count folder out of the table together with its index
func dropCounts(l *layout.Layout, ds, table, col string) error {
	dir := l.IndexCountColumn(ds, table, col)
	if ok, err := exists(dir); err != nil || !ok {
		return err
	}
	_, err := l.Trash(dir, ds, table, col, "count")
	return err
}
