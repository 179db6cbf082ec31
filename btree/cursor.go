package btree

import "github.com/rajeshpillai/tiny-sqlite/common"

// Cursor identifies one cell of one leaf page. It holds only page
// numbers and a cell index, never a buffer reference, so it remains
// representable across intervening page fetches — but it is
// logically invalidated by any Insert or Delete and must not be used
// afterward; this package does not detect misuse.
type Cursor struct {
	tree       *Tree
	leafPage   uint32
	cellInLeaf uint32
	endOfTable bool
}

// Start returns a cursor positioned at the first record in key order,
// found by descending through child 0 repeatedly from the root.
func (t *Tree) Start() (*Cursor, error) {
	pageNum := t.rootPageNum
	for {
		page, err := t.Pager.GetPage(pageNum)
		if err != nil {
			return nil, err
		}
		if isLeaf(page) {
			break
		}
		pageNum, err = getInternalChild(page, 0)
		if err != nil {
			return nil, err
		}
	}

	page, err := t.Pager.GetPage(pageNum)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		tree:       t,
		leafPage:   pageNum,
		cellInLeaf: 0,
		endOfTable: getLeafNumCells(page) == 0,
	}, nil
}

// Find descends from the root following internalFindChild until it
// reaches a leaf, then positions the cursor with leafFind. EndOfTable
// is true iff key would sort past the last cell of the last leaf.
func (t *Tree) Find(key int32) (*Cursor, error) {
	pageNum := t.rootPageNum
	for {
		page, err := t.Pager.GetPage(pageNum)
		if err != nil {
			return nil, err
		}
		if isLeaf(page) {
			cellNum, _ := leafFind(page, key)
			return &Cursor{
				tree:       t,
				leafPage:   pageNum,
				cellInLeaf: cellNum,
				endOfTable: cellNum >= getLeafNumCells(page) && getLeafNextLeaf(page) == 0,
			}, nil
		}
		childIdx := internalFindChild(page, key)
		pageNum, err = getInternalChild(page, childIdx)
		if err != nil {
			return nil, err
		}
	}
}

// FindRow looks up the record with the given key, failing with
// common.ErrKeyNotFound if it does not exist. Unlike Find, it never
// hands the caller a cursor positioned past the last live cell of a
// full leaf, which Value cannot safely decode.
func (t *Tree) FindRow(key int32) (Row, error) {
	cur, err := t.Find(key)
	if err != nil {
		return Row{}, err
	}
	leaf, err := t.Pager.GetPage(cur.leafPage)
	if err != nil {
		return Row{}, err
	}
	if cur.cellInLeaf >= getLeafNumCells(leaf) || getLeafCellKey(leaf, cur.cellInLeaf) != key {
		return Row{}, common.ErrKeyNotFound
	}
	return cur.Value()
}

// Value decodes the record the cursor currently points at.
func (c *Cursor) Value() (Row, error) {
	page, err := c.tree.Pager.GetPage(c.leafPage)
	if err != nil {
		return Row{}, err
	}
	return deserializeRow(getLeafCellValue(page, c.cellInLeaf)), nil
}

// EndOfTable reports whether the cursor has advanced past the last
// record.
func (c *Cursor) EndOfTable() bool {
	return c.endOfTable
}

// Advance moves the cursor to the next cell, following next_leaf to
// the next leaf when the current one is exhausted, and setting
// EndOfTable when there is no next leaf.
func (c *Cursor) Advance() error {
	page, err := c.tree.Pager.GetPage(c.leafPage)
	if err != nil {
		return err
	}

	c.cellInLeaf++
	if c.cellInLeaf < getLeafNumCells(page) {
		return nil
	}

	next := getLeafNextLeaf(page)
	if next == 0 {
		c.endOfTable = true
		return nil
	}
	c.leafPage = next
	c.cellInLeaf = 0
	return nil
}

// All performs a full forward scan and returns every record in
// ascending key order. It is a convenience built on Start/Advance for
// callers (the REPL's `select`) that just want the whole table.
func (t *Tree) All() ([]Row, error) {
	cur, err := t.Start()
	if err != nil {
		return nil, err
	}
	var rows []Row
	for !cur.EndOfTable() {
		row, err := cur.Value()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if err := cur.Advance(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
