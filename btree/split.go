package btree

import (
	"github.com/pkg/errors"
	"github.com/rajeshpillai/tiny-sqlite/common"
)

// Insert adds row to the tree. It fails with common.ErrDuplicateKey,
// leaving the tree unchanged, if row.ID is already present.
func (t *Tree) Insert(row Row) error {
	cur, err := t.Find(row.ID)
	if err != nil {
		return err
	}

	leaf, err := t.Pager.GetPage(cur.leafPage)
	if err != nil {
		return err
	}
	if cur.cellInLeaf < getLeafNumCells(leaf) && getLeafCellKey(leaf, cur.cellInLeaf) == row.ID {
		return common.ErrDuplicateKey
	}

	if getLeafNumCells(leaf) < MaxLeafCells {
		insertLeafCell(leaf, cur.cellInLeaf, row)
		return nil
	}

	return t.splitLeafAndInsert(cur.leafPage, cur.cellInLeaf, row)
}

// insertLeafCell shifts cells [pos, numCells) one slot right and
// writes row at pos. Caller guarantees numCells < MaxLeafCells.
func insertLeafCell(p *Page, pos uint32, row Row) {
	numCells := getLeafNumCells(p)
	for i := numCells; i > pos; i-- {
		srcKey := getLeafCellKey(p, i-1)
		srcVal := getLeafCellValue(p, i-1)
		setLeafCellKey(p, i, srcKey)
		copy(getLeafCellValue(p, i), srcVal)
	}
	setLeafCellKey(p, pos, row.ID)
	serializeRow(row, getLeafCellValue(p, pos))
	setLeafNumCells(p, numCells+1)
}

// splitLeafAndInsert splits a full leaf, inserting row at its sorted
// position across the two resulting halves, then propagates the new
// sibling up to the parent.
func (t *Tree) splitLeafAndInsert(oldLeafNum uint32, pos uint32, row Row) error {
	oldLeaf, err := t.Pager.GetPage(oldLeafNum)
	if err != nil {
		return err
	}

	// Gather every existing cell plus the new one, in sorted order.
	type cell struct {
		key   int32
		value []byte
	}
	numCells := getLeafNumCells(oldLeaf)
	cells := make([]cell, 0, numCells+1)
	for i := uint32(0); i < numCells; i++ {
		if i == pos {
			cells = append(cells, cell{key: row.ID})
		}
		value := make([]byte, RowSize)
		copy(value, getLeafCellValue(oldLeaf, i))
		cells = append(cells, cell{key: getLeafCellKey(oldLeaf, i), value: value})
	}
	if pos == numCells {
		cells = append(cells, cell{key: row.ID})
	}
	// Fill in the serialized bytes for the newly inserted cell now
	// that we know its slot.
	for i := range cells {
		if cells[i].value == nil {
			buf := make([]byte, RowSize)
			serializeRow(row, buf)
			cells[i].value = buf
		}
	}

	newLeafNum, err := t.allocatePage()
	if err != nil {
		return err
	}
	newLeaf, err := t.Pager.GetPage(newLeafNum)
	if err != nil {
		return err
	}
	initLeaf(newLeaf)

	leftCount := (len(cells) + 1) / 2

	wasRoot := getIsRoot(oldLeaf)
	parent := getParentPage(oldLeaf)
	oldNextLeaf := getLeafNextLeaf(oldLeaf)

	initLeaf(oldLeaf)
	setIsRoot(oldLeaf, wasRoot)
	setParentPage(oldLeaf, parent)

	for i := 0; i < leftCount; i++ {
		setLeafCellKey(oldLeaf, uint32(i), cells[i].key)
		copy(getLeafCellValue(oldLeaf, uint32(i)), cells[i].value)
	}
	setLeafNumCells(oldLeaf, uint32(leftCount))

	for i := leftCount; i < len(cells); i++ {
		j := uint32(i - leftCount)
		setLeafCellKey(newLeaf, j, cells[i].key)
		copy(getLeafCellValue(newLeaf, j), cells[i].value)
	}
	setLeafNumCells(newLeaf, uint32(len(cells)-leftCount))

	// Splice the new leaf into the next_leaf chain.
	setLeafNextLeaf(oldLeaf, newLeafNum)
	setLeafNextLeaf(newLeaf, oldNextLeaf)

	return t.insertIntoParent(oldLeafNum, newLeafNum)
}

// insertIntoParent propagates a freshly created sibling (right) of an
// existing node (left) up to left's parent, creating a new root if
// left was the root.
func (t *Tree) insertIntoParent(leftNum, rightNum uint32) error {
	left, err := t.Pager.GetPage(leftNum)
	if err != nil {
		return err
	}

	if getIsRoot(left) {
		return t.createNewRoot(leftNum, rightNum)
	}

	parentNum := getParentPage(left)
	if parentNum == 0 {
		return errors.Errorf("btree: non-root page %d has no parent", leftNum)
	}

	leftMax, err := maxKey(t, leftNum)
	if err != nil {
		return err
	}
	if err := updateChildKey(t, parentNum, leftNum, leftMax); err != nil {
		return err
	}

	return t.internalInsertChild(parentNum, rightNum)
}

// createNewRoot keeps the root's page number stable across a split:
// it allocates a fresh page, copies the old root's bytes there (this
// becomes the left child), and reinitializes the original root page
// in place as the new internal root over [copiedOldRoot, right].
func (t *Tree) createNewRoot(oldRootNum, rightNum uint32) error {
	oldRoot, err := t.Pager.GetPage(oldRootNum)
	if err != nil {
		return err
	}

	newLeftNum, err := t.allocatePage()
	if err != nil {
		return err
	}
	newLeft, err := t.Pager.GetPage(newLeftNum)
	if err != nil {
		return err
	}
	*newLeft = *oldRoot
	setIsRoot(newLeft, false)
	setParentPage(newLeft, oldRootNum)

	// If the copied node is an internal node, its children still
	// point at oldRootNum as their parent; repoint them at the copy.
	if !isLeaf(newLeft) {
		children, err := childrenOf(t, newLeft)
		if err != nil {
			return err
		}
		for _, c := range children {
			childPage, err := t.Pager.GetPage(c.page)
			if err != nil {
				return err
			}
			setParentPage(childPage, newLeftNum)
		}
	}

	leftMax, err := maxKey(t, newLeftNum)
	if err != nil {
		return err
	}
	rightMax, err := maxKey(t, rightNum)
	if err != nil {
		return err
	}

	initInternal(oldRoot)
	setIsRoot(oldRoot, true)
	setParentPage(oldRoot, 0)

	children := []childPageNum{{page: newLeftNum, maxKey: leftMax}, {page: rightNum, maxKey: rightMax}}
	if err := rebuildInternal(t, oldRootNum, children); err != nil {
		return err
	}

	rightPage, err := t.Pager.GetPage(rightNum)
	if err != nil {
		return err
	}
	setParentPage(rightPage, oldRootNum)

	t.rootPageNum = oldRootNum
	return nil
}

// updateChildKey updates the stored separator key for child in
// parent, since child's subtree max-key has changed.
func updateChildKey(t *Tree, parentNum, child uint32, newKey int32) error {
	parent, err := t.Pager.GetPage(parentNum)
	if err != nil {
		return err
	}
	numKeys := getInternalNumKeys(parent)
	for i := uint32(0); i < numKeys; i++ {
		if getInternalCellChild(parent, i) == child {
			setInternalCellKey(parent, i, newKey)
			return nil
		}
	}
	if getInternalRightChild(parent) == child {
		// The right child's key is implicit (it is always "greater
		// than the last stored key"); nothing to update on-page, but
		// an ancestor further up may still need updateChildKey for
		// *this* node once its own max-key changes.
		return nil
	}
	return errors.Errorf("btree: page %d does not list %d among its children", parentNum, child)
}

// internalInsertChild inserts newChild into parent, keyed by its
// subtree's max key, splitting parent if it overflows.
func (t *Tree) internalInsertChild(parentNum, newChild uint32) error {
	parent, err := t.Pager.GetPage(parentNum)
	if err != nil {
		return err
	}

	children, err := childrenOf(t, parent)
	if err != nil {
		return err
	}
	newChildMax, err := maxKey(t, newChild)
	if err != nil {
		return err
	}
	children = append(children, childPageNum{page: newChild, maxKey: newChildMax})

	if len(children) <= MaxInternalKeys+1 {
		if err := rebuildInternal(t, parentNum, children); err != nil {
			return err
		}
		newChildPage, err := t.Pager.GetPage(newChild)
		if err != nil {
			return err
		}
		setParentPage(newChildPage, parentNum)
		return nil
	}

	return t.splitInternal(parentNum, children)
}

// splitInternal splits an overflowing internal node's sorted children
// list in half, rebuilds the old page from the left half and a fresh
// page from the right half, then propagates the new sibling upward.
func (t *Tree) splitInternal(oldNum uint32, children []childPageNum) error {
	newNum, err := t.allocatePage()
	if err != nil {
		return err
	}
	newPage, err := t.Pager.GetPage(newNum)
	if err != nil {
		return err
	}
	initInternal(newPage)

	leftCount := len(children) / 2
	left := children[:leftCount]
	right := children[leftCount:]

	if err := rebuildInternal(t, oldNum, left); err != nil {
		return err
	}
	if err := rebuildInternal(t, newNum, right); err != nil {
		return err
	}

	return t.insertIntoParent(oldNum, newNum)
}
