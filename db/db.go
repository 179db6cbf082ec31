// Package db ties a pager.Pager and a btree.Tree together behind the
// on-disk header stored on page 0: num_rows, root_page_num, and
// next_free_page. Neither the pager nor the btree package knows about
// this header; Database is the only layer that reads or writes page 0.
package db

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/rajeshpillai/tiny-sqlite/btree"
	"github.com/rajeshpillai/tiny-sqlite/common"
	"github.com/rajeshpillai/tiny-sqlite/pager"
)

var byteOrder = binary.LittleEndian

// Config holds the tunables for opening a Database. There is
// currently only one: the file path. It exists, rather than Open
// taking a bare string, so future knobs (page cache size, read-only
// mode) have somewhere to land without another signature change.
type Config struct {
	Path string
}

// DefaultConfig returns the Config used by cmd/dbcli when no flags
// override it.
func DefaultConfig(path string) Config {
	return Config{Path: path}
}

// Database is the top-level handle: a pager, a tree rooted per the
// on-disk header, and the header's num_rows counter, which the tree
// itself does not track.
type Database struct {
	pager   *pager.Pager
	tree    *btree.Tree
	numRows uint32
	closed  bool
}

// Open opens (or creates) the database file at cfg.Path. A zero-length
// file is formatted fresh: page 0 becomes the header and page 1 an
// empty leaf root. Otherwise the header is read from page 0 and the
// tree is attached at its recorded root.
func Open(cfg Config) (*Database, error) {
	p, err := pager.Open(cfg.Path)
	if err != nil {
		return nil, err
	}

	if p.NumPages() == 0 {
		// Formatting a brand-new file: reserve page 0 for the header
		// before the tree claims page 1 as its root.
		if _, err := p.GetPage(0); err != nil {
			p.Close()
			return nil, err
		}
		tree, err := btree.CreateEmpty(p)
		if err != nil {
			p.Close()
			return nil, err
		}
		return &Database{pager: p, tree: tree, numRows: 0}, nil
	}

	page0, err := p.GetPage(0)
	if err != nil {
		p.Close()
		return nil, err
	}
	numRows := byteOrder.Uint32(page0[0:4])
	rootPageNum := byteOrder.Uint32(page0[4:8])
	nextFreePage := byteOrder.Uint32(page0[8:12])

	if rootPageNum == 0 || rootPageNum >= pager.MaxPages {
		p.Close()
		return nil, errors.Errorf("db: corrupt header in %q: root_page_num %d out of range", cfg.Path, rootPageNum)
	}
	if nextFreePage == 0 || nextFreePage >= pager.MaxPages {
		p.Close()
		return nil, errors.Errorf("db: corrupt header in %q: next_free_page %d out of range", cfg.Path, nextFreePage)
	}

	tree := btree.Attach(p, rootPageNum, nextFreePage)
	return &Database{pager: p, tree: tree, numRows: numRows}, nil
}

// Close writes the current header back to page 0 and flushes every
// resident page to disk. The Database must not be used afterward.
func (d *Database) Close() error {
	if d.closed {
		return common.ErrClosed
	}
	d.closed = true

	page0, err := d.pager.GetPage(0)
	if err != nil {
		return err
	}
	byteOrder.PutUint32(page0[0:4], d.numRows)
	byteOrder.PutUint32(page0[4:8], d.tree.RootPageNum())
	byteOrder.PutUint32(page0[8:12], d.tree.NextFreePage())

	return d.pager.Close()
}

// Insert adds row to the table, failing with common.ErrDuplicateKey if
// row.ID already exists.
func (d *Database) Insert(row btree.Row) error {
	if d.closed {
		return common.ErrClosed
	}
	if err := d.tree.Insert(row); err != nil {
		return err
	}
	d.numRows++
	return nil
}

// Delete removes the record with the given key, failing with
// common.ErrKeyNotFound if it does not exist.
func (d *Database) Delete(id int32) error {
	if d.closed {
		return common.ErrClosed
	}
	if err := d.tree.Delete(id); err != nil {
		return err
	}
	d.numRows--
	return nil
}

// Find looks up the record with the given key.
func (d *Database) Find(id int32) (btree.Row, error) {
	if d.closed {
		return btree.Row{}, common.ErrClosed
	}
	return d.tree.FindRow(id)
}

// All returns every record in ascending key order.
func (d *Database) All() ([]btree.Row, error) {
	if d.closed {
		return nil, common.ErrClosed
	}
	return d.tree.All()
}

// NumRows reports the number of live records, maintained incrementally
// across Insert/Delete rather than recomputed by a scan.
func (d *Database) NumRows() uint32 {
	return d.numRows
}

// PrettyPrintBTree writes a human-readable dump of the tree structure,
// backing the REPL's `.btree` meta-command.
func (d *Database) PrettyPrintBTree(w io.Writer) error {
	return d.tree.PrettyPrint(w)
}
