package index

import (
	"errors"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/leengari/cardinaldb/internal/storage/fsname"
)

// Iterator walks a stream of strings (primary keys or cardinals).
//
//	for it.Next() {
//		use(it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
//	it.Close()
type Iterator interface {
	Next() bool
	Value() string
	Err() error
	Close() error
}

// Drain reads every remaining value and closes the iterator
func Drain(it Iterator) ([]string, error) {
	var out []string
	for it.Next() {
		out = append(out, it.Value())
	}
	return out, multierr.Append(it.Err(), it.Close())
}

// DrainSet reads every remaining value into a KeySet and closes the iterator
func DrainSet(it Iterator) (KeySet, error) {
	out := make(KeySet)
	for it.Next() {
		out.Add(it.Value())
	}
	return out, multierr.Append(it.Err(), it.Close())
}

// sliceIterator iterates an in-memory list
type sliceIterator struct {
	values []string
	pos    int
}

// SliceIterator returns an iterator over values
func SliceIterator(values []string) Iterator {
	return &sliceIterator{values: values, pos: -1}
}

func (s *sliceIterator) Next() bool {
	if s.pos+1 >= len(s.values) {
		s.pos = len(s.values)
		return false
	}
	s.pos++
	return true
}

func (s *sliceIterator) Value() string { return s.values[s.pos] }
func (s *sliceIterator) Err() error    { return nil }
func (s *sliceIterator) Close() error  { return nil }

// Empty returns an iterator with no values
func Empty() Iterator {
	return SliceIterator(nil)
}

const dirBatch = 256

// tempPrefix marks in-flight atomic writes; encoded names never start with it
const tempPrefix = "~"

// dirIterator lazily lists a directory, decoding each entry name.
// A missing directory yields no values.
type dirIterator struct {
	path    string
	accept  func(name string) (bool, error)
	f       *os.File
	opened  bool
	batch   []os.DirEntry
	pos     int
	current string
	err     error
	done    bool
}

func newDirIterator(path string, accept func(string) (bool, error)) *dirIterator {
	return &dirIterator{path: path, accept: accept}
}

func (d *dirIterator) Next() bool {
	if d.done {
		return false
	}
	if !d.opened {
		d.opened = true
		f, err := os.Open(d.path)
		if err != nil {
			if !os.IsNotExist(err) {
				d.err = err
			}
			d.done = true
			return false
		}
		d.f = f
	}

	for {
		for d.pos < len(d.batch) {
			entry := d.batch[d.pos]
			d.pos++
			if strings.HasPrefix(entry.Name(), tempPrefix) {
				continue
			}
			name, err := fsname.Decode(entry.Name())
			if err != nil {
				d.err = err
				d.finish()
				return false
			}
			if d.accept != nil {
				ok, err := d.accept(name)
				if err != nil {
					d.err = err
					d.finish()
					return false
				}
				if !ok {
					continue
				}
			}
			d.current = name
			return true
		}

		batch, err := d.f.ReadDir(dirBatch)
		if len(batch) == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				d.err = err
			}
			d.finish()
			return false
		}
		d.batch = batch
		d.pos = 0
	}
}

func (d *dirIterator) finish() {
	d.done = true
	if d.f != nil {
		if err := d.f.Close(); err != nil && d.err == nil {
			d.err = err
		}
		d.f = nil
	}
}

func (d *dirIterator) Value() string { return d.current }
func (d *dirIterator) Err() error    { return d.err }

func (d *dirIterator) Close() error {
	d.done = true
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// chainIterator concatenates iterators produced on demand, one per source value
type chainIterator struct {
	sources []string
	open    func(source string) (Iterator, error)
	pos     int
	current Iterator
	err     error
}

func newChainIterator(sources []string, open func(string) (Iterator, error)) *chainIterator {
	return &chainIterator{sources: sources, open: open}
}

func (c *chainIterator) Next() bool {
	for {
		if c.err != nil {
			return false
		}
		if c.current != nil {
			if c.current.Next() {
				return true
			}
			c.err = multierr.Append(c.current.Err(), c.current.Close())
			c.current = nil
			continue
		}
		if c.pos >= len(c.sources) {
			return false
		}
		it, err := c.open(c.sources[c.pos])
		c.pos++
		if err != nil {
			c.err = err
			return false
		}
		c.current = it
	}
}

func (c *chainIterator) Value() string { return c.current.Value() }
func (c *chainIterator) Err() error    { return c.err }

func (c *chainIterator) Close() error {
	c.pos = len(c.sources)
	if c.current == nil {
		return nil
	}
	err := c.current.Close()
	c.current = nil
	return err
}

// nestedIterator flattens an outer iterator of cardinals into the entries of
// each cardinal. Close releases both levels.
type nestedIterator struct {
	outer   Iterator
	open    func(cardinal string) (Iterator, error)
	current Iterator
	err     error
}

func newNestedIterator(outer Iterator, open func(string) (Iterator, error)) *nestedIterator {
	return &nestedIterator{outer: outer, open: open}
}

func (n *nestedIterator) Next() bool {
	for {
		if n.err != nil {
			return false
		}
		if n.current != nil {
			if n.current.Next() {
				return true
			}
			n.err = multierr.Append(n.current.Err(), n.current.Close())
			n.current = nil
			continue
		}
		if !n.outer.Next() {
			n.err = multierr.Append(n.err, n.outer.Err())
			return false
		}
		inner, err := n.open(n.outer.Value())
		if err != nil {
			n.err = err
			return false
		}
		n.current = inner
	}
}

func (n *nestedIterator) Value() string { return n.current.Value() }
func (n *nestedIterator) Err() error    { return n.err }

func (n *nestedIterator) Close() error {
	var err error
	if n.current != nil {
		err = n.current.Close()
		n.current = nil
	}
	return multierr.Append(err, n.outer.Close())
}

// DirIterator lists the decoded names of a directory, skipping names for
// which accept returns false. accept may be nil.
func DirIterator(path string, accept func(name string) (bool, error)) Iterator {
	return newDirIterator(path, accept)
}
