// Package btree implements an on-disk B+tree: node layout, search,
// insert-with-split, delete-with-rebalance, and a forward-iterating
// cursor, all addressed through page numbers handed out by a
// pager.Pager.
package btree

import (
	"github.com/pkg/errors"
	"github.com/rajeshpillai/tiny-sqlite/pager"
)

// Tree is a B+tree rooted at a page the caller tracks externally (the
// database header, see package db). It also owns the monotonic
// free-page allocator cursor: once a page number is handed out it is
// never reused, even if later orphaned by a merge.
type Tree struct {
	Pager        *pager.Pager
	rootPageNum  uint32
	nextFreePage uint32
}

// CreateEmpty formats a brand-new database: page 1 becomes an empty
// leaf root, and the allocator cursor starts at page 2.
func CreateEmpty(p *pager.Pager) (*Tree, error) {
	const initialRoot = 1
	root, err := p.GetPage(initialRoot)
	if err != nil {
		return nil, err
	}
	initLeaf(root)
	setIsRoot(root, true)

	return &Tree{Pager: p, rootPageNum: initialRoot, nextFreePage: initialRoot + 1}, nil
}

// Attach opens a Tree over an already-initialized database, using the
// root page number and allocator cursor recovered from the header.
func Attach(p *pager.Pager, rootPageNum, nextFreePage uint32) *Tree {
	return &Tree{Pager: p, rootPageNum: rootPageNum, nextFreePage: nextFreePage}
}

// RootPageNum reports the tree's current root page. createNewRoot
// keeps the page number stable across an ordinary split, so in
// practice this only changes when maybeShrinkRoot collapses the root.
func (t *Tree) RootPageNum() uint32 {
	return t.rootPageNum
}

// NextFreePage reports the allocator cursor: the next page number
// that will be handed out.
func (t *Tree) NextFreePage() uint32 {
	return t.nextFreePage
}

func (t *Tree) allocatePage() (uint32, error) {
	if t.nextFreePage >= pager.MaxPages {
		return 0, errors.Errorf("btree: cannot allocate a new page, database is at its %d page capacity", pager.MaxPages)
	}
	pageNum := t.nextFreePage
	t.nextFreePage++
	return pageNum, nil
}
