package btree

import (
	"github.com/pkg/errors"
	"github.com/rajeshpillai/tiny-sqlite/common"
)

// Delete removes the record with the given key. It fails with
// common.ErrKeyNotFound, leaving the tree unchanged, if no such
// record exists.
func (t *Tree) Delete(key int32) error {
	cur, err := t.Find(key)
	if err != nil {
		return err
	}

	leaf, err := t.Pager.GetPage(cur.leafPage)
	if err != nil {
		return err
	}
	if cur.cellInLeaf >= getLeafNumCells(leaf) || getLeafCellKey(leaf, cur.cellInLeaf) != key {
		return common.ErrKeyNotFound
	}

	removeLeafCell(leaf, cur.cellInLeaf)

	if getIsRoot(leaf) || getLeafNumCells(leaf) >= MinLeafCells {
		return nil
	}
	return t.rebalanceLeaf(cur.leafPage)
}

// removeLeafCell shifts cells (pos, numCells) one slot left, removing
// the cell at pos.
func removeLeafCell(p *Page, pos uint32) {
	numCells := getLeafNumCells(p)
	for i := pos; i+1 < numCells; i++ {
		setLeafCellKey(p, i, getLeafCellKey(p, i+1))
		copy(getLeafCellValue(p, i), getLeafCellValue(p, i+1))
	}
	setLeafNumCells(p, numCells-1)
}

// locateInParent finds childNum's index among parent's children.
func locateInParent(parent *Page, childNum uint32) (uint32, error) {
	numKeys := getInternalNumKeys(parent)
	for i := uint32(0); i < numKeys; i++ {
		if getInternalCellChild(parent, i) == childNum {
			return i, nil
		}
	}
	if getInternalRightChild(parent) == childNum {
		return numKeys, nil
	}
	return 0, errors.Errorf("btree: parent does not list page %d among its children", childNum)
}

// childAt returns the page number of parent's child at index i, or 0
// if i is out of [0, numKeys] range.
func childAt(parent *Page, i uint32, numKeys uint32) uint32 {
	if i > numKeys {
		return 0
	}
	if i == numKeys {
		return getInternalRightChild(parent)
	}
	return getInternalCellChild(parent, i)
}

// rebalanceLeaf restores minimum occupancy for a leaf that fell below
// MinLeafCells after a delete, by borrowing from a sibling or, failing
// that, merging with one.
func (t *Tree) rebalanceLeaf(leafNum uint32) error {
	leaf, err := t.Pager.GetPage(leafNum)
	if err != nil {
		return err
	}
	if getIsRoot(leaf) {
		return nil
	}

	parentNum := getParentPage(leaf)
	parent, err := t.Pager.GetPage(parentNum)
	if err != nil {
		return err
	}
	idx, err := locateInParent(parent, leafNum)
	if err != nil {
		return err
	}
	numKeys := getInternalNumKeys(parent)

	var leftNum, rightNum uint32
	if idx > 0 {
		leftNum = childAt(parent, idx-1, numKeys)
	}
	if idx < numKeys {
		rightNum = childAt(parent, idx+1, numKeys)
	}

	if leftNum != 0 {
		left, err := t.Pager.GetPage(leftNum)
		if err != nil {
			return err
		}
		if getLeafNumCells(left) > MinLeafCells {
			return t.borrowFromLeftLeaf(parentNum, leftNum, leafNum)
		}
	}

	if rightNum != 0 {
		right, err := t.Pager.GetPage(rightNum)
		if err != nil {
			return err
		}
		if getLeafNumCells(right) > MinLeafCells {
			return t.borrowFromRightLeaf(parentNum, leafNum, rightNum)
		}
	}

	if leftNum != 0 {
		return t.mergeLeaves(parentNum, leftNum, leafNum)
	}
	return t.mergeLeaves(parentNum, leafNum, rightNum)
}

// borrowFromLeftLeaf moves left's last cell to the front of leaf.
func (t *Tree) borrowFromLeftLeaf(parentNum, leftNum, leafNum uint32) error {
	left, err := t.Pager.GetPage(leftNum)
	if err != nil {
		return err
	}
	leaf, err := t.Pager.GetPage(leafNum)
	if err != nil {
		return err
	}

	leftCount := getLeafNumCells(left)
	borrowKey := getLeafCellKey(left, leftCount-1)
	borrowVal := make([]byte, RowSize)
	copy(borrowVal, getLeafCellValue(left, leftCount-1))

	leafCount := getLeafNumCells(leaf)
	for i := leafCount; i > 0; i-- {
		setLeafCellKey(leaf, i, getLeafCellKey(leaf, i-1))
		copy(getLeafCellValue(leaf, i), getLeafCellValue(leaf, i-1))
	}
	setLeafCellKey(leaf, 0, borrowKey)
	copy(getLeafCellValue(leaf, 0), borrowVal)
	setLeafNumCells(leaf, leafCount+1)
	setLeafNumCells(left, leftCount-1)

	newLeftMax, err := maxKey(t, leftNum)
	if err != nil {
		return err
	}
	return updateChildKey(t, parentNum, leftNum, newLeftMax)
}

// borrowFromRightLeaf moves right's first cell to the end of leaf.
func (t *Tree) borrowFromRightLeaf(parentNum, leafNum, rightNum uint32) error {
	leaf, err := t.Pager.GetPage(leafNum)
	if err != nil {
		return err
	}
	right, err := t.Pager.GetPage(rightNum)
	if err != nil {
		return err
	}

	borrowKey := getLeafCellKey(right, 0)
	borrowVal := make([]byte, RowSize)
	copy(borrowVal, getLeafCellValue(right, 0))

	leafCount := getLeafNumCells(leaf)
	setLeafCellKey(leaf, leafCount, borrowKey)
	copy(getLeafCellValue(leaf, leafCount), borrowVal)
	setLeafNumCells(leaf, leafCount+1)

	rightCount := getLeafNumCells(right)
	for i := uint32(0); i+1 < rightCount; i++ {
		setLeafCellKey(right, i, getLeafCellKey(right, i+1))
		copy(getLeafCellValue(right, i), getLeafCellValue(right, i+1))
	}
	setLeafNumCells(right, rightCount-1)

	newLeafMax, err := maxKey(t, leafNum)
	if err != nil {
		return err
	}
	return updateChildKey(t, parentNum, leafNum, newLeafMax)
}

// mergeLeaves concatenates rightNum's cells onto leftNum, splices
// rightNum out of the next_leaf chain, and removes it from parent.
func (t *Tree) mergeLeaves(parentNum, leftNum, rightNum uint32) error {
	left, err := t.Pager.GetPage(leftNum)
	if err != nil {
		return err
	}
	right, err := t.Pager.GetPage(rightNum)
	if err != nil {
		return err
	}

	leftCount := getLeafNumCells(left)
	rightCount := getLeafNumCells(right)
	if leftCount+rightCount > MaxLeafCells {
		return errors.Errorf("btree: merge of leaves %d and %d would overflow page capacity", leftNum, rightNum)
	}
	for i := uint32(0); i < rightCount; i++ {
		setLeafCellKey(left, leftCount+i, getLeafCellKey(right, i))
		copy(getLeafCellValue(left, leftCount+i), getLeafCellValue(right, i))
	}
	setLeafNumCells(left, leftCount+rightCount)
	setLeafNextLeaf(left, getLeafNextLeaf(right))

	if err := t.internalRemoveChild(parentNum, rightNum); err != nil {
		return err
	}
	return t.maybeShrinkRoot()
}

// internalRemoveChild rebuilds parent from every child except
// removed, then rebalances parent itself if it fell below minimum
// occupancy.
func (t *Tree) internalRemoveChild(parentNum, removed uint32) error {
	parent, err := t.Pager.GetPage(parentNum)
	if err != nil {
		return err
	}
	children, err := childrenOf(t, parent)
	if err != nil {
		return err
	}

	remaining := children[:0]
	for _, c := range children {
		if c.page != removed {
			remaining = append(remaining, c)
		}
	}

	if err := rebuildInternal(t, parentNum, remaining); err != nil {
		return err
	}

	parent, err = t.Pager.GetPage(parentNum)
	if err != nil {
		return err
	}
	if getIsRoot(parent) || getInternalNumKeys(parent) >= MinInternalKeys {
		return nil
	}
	return t.rebalanceInternal(parentNum)
}

// rebalanceInternal mirrors rebalanceLeaf for internal nodes: borrow a
// child from a sibling internal node (found via the grandparent), or
// merge with one.
func (t *Tree) rebalanceInternal(nodeNum uint32) error {
	node, err := t.Pager.GetPage(nodeNum)
	if err != nil {
		return err
	}
	if getIsRoot(node) {
		return nil
	}

	grandparentNum := getParentPage(node)
	grandparent, err := t.Pager.GetPage(grandparentNum)
	if err != nil {
		return err
	}
	idx, err := locateInParent(grandparent, nodeNum)
	if err != nil {
		return err
	}
	numKeys := getInternalNumKeys(grandparent)

	var leftNum, rightNum uint32
	if idx > 0 {
		leftNum = childAt(grandparent, idx-1, numKeys)
	}
	if idx < numKeys {
		rightNum = childAt(grandparent, idx+1, numKeys)
	}

	if leftNum != 0 {
		left, err := t.Pager.GetPage(leftNum)
		if err != nil {
			return err
		}
		if getInternalNumKeys(left) > MinInternalKeys {
			return t.borrowFromLeftInternal(grandparentNum, leftNum, nodeNum)
		}
	}
	if rightNum != 0 {
		right, err := t.Pager.GetPage(rightNum)
		if err != nil {
			return err
		}
		if getInternalNumKeys(right) > MinInternalKeys {
			return t.borrowFromRightInternal(grandparentNum, nodeNum, rightNum)
		}
	}

	if leftNum != 0 {
		return t.mergeInternals(grandparentNum, leftNum, nodeNum)
	}
	return t.mergeInternals(grandparentNum, nodeNum, rightNum)
}

// borrowFromLeftInternal moves left's last child to the front of node.
func (t *Tree) borrowFromLeftInternal(grandparentNum, leftNum, nodeNum uint32) error {
	left, err := t.Pager.GetPage(leftNum)
	if err != nil {
		return err
	}
	leftChildren, err := childrenOf(t, left)
	if err != nil {
		return err
	}
	borrowed := leftChildren[len(leftChildren)-1]
	leftChildren = leftChildren[:len(leftChildren)-1]

	node, err := t.Pager.GetPage(nodeNum)
	if err != nil {
		return err
	}
	nodeChildren, err := childrenOf(t, node)
	if err != nil {
		return err
	}
	nodeChildren = append(nodeChildren, borrowed)

	if err := rebuildInternal(t, leftNum, leftChildren); err != nil {
		return err
	}
	if err := rebuildInternal(t, nodeNum, nodeChildren); err != nil {
		return err
	}

	newLeftMax, err := maxKey(t, leftNum)
	if err != nil {
		return err
	}
	return updateChildKey(t, grandparentNum, leftNum, newLeftMax)
}

// borrowFromRightInternal moves right's first child to the end of node.
func (t *Tree) borrowFromRightInternal(grandparentNum, nodeNum, rightNum uint32) error {
	right, err := t.Pager.GetPage(rightNum)
	if err != nil {
		return err
	}
	rightChildren, err := childrenOf(t, right)
	if err != nil {
		return err
	}
	borrowed := rightChildren[0]
	rightChildren = rightChildren[1:]

	node, err := t.Pager.GetPage(nodeNum)
	if err != nil {
		return err
	}
	nodeChildren, err := childrenOf(t, node)
	if err != nil {
		return err
	}
	nodeChildren = append(nodeChildren, borrowed)

	if err := rebuildInternal(t, rightNum, rightChildren); err != nil {
		return err
	}
	if err := rebuildInternal(t, nodeNum, nodeChildren); err != nil {
		return err
	}

	newNodeMax, err := maxKey(t, nodeNum)
	if err != nil {
		return err
	}
	return updateChildKey(t, grandparentNum, nodeNum, newNodeMax)
}

// mergeInternals concatenates rightNum's children onto leftNum and
// removes rightNum from grandparent.
func (t *Tree) mergeInternals(grandparentNum, leftNum, rightNum uint32) error {
	left, err := t.Pager.GetPage(leftNum)
	if err != nil {
		return err
	}
	right, err := t.Pager.GetPage(rightNum)
	if err != nil {
		return err
	}
	leftChildren, err := childrenOf(t, left)
	if err != nil {
		return err
	}
	rightChildren, err := childrenOf(t, right)
	if err != nil {
		return err
	}
	merged := append(leftChildren, rightChildren...)
	if len(merged) > MaxInternalKeys+1 {
		return errors.Errorf("btree: merge of internal pages %d and %d would overflow page capacity", leftNum, rightNum)
	}

	if err := rebuildInternal(t, leftNum, merged); err != nil {
		return err
	}

	if err := t.internalRemoveChild(grandparentNum, rightNum); err != nil {
		return err
	}
	return t.maybeShrinkRoot()
}

// maybeShrinkRoot replaces an internal root holding a single child
// (numKeys == 0) with that child, decreasing the tree's height by
// one. The former root page is left orphaned; pages are never
// reclaimed.
func (t *Tree) maybeShrinkRoot() error {
	root, err := t.Pager.GetPage(t.rootPageNum)
	if err != nil {
		return err
	}
	if isLeaf(root) || getInternalNumKeys(root) > 0 {
		return nil
	}

	onlyChild := getInternalRightChild(root)
	childPage, err := t.Pager.GetPage(onlyChild)
	if err != nil {
		return err
	}
	setParentPage(childPage, 0)
	setIsRoot(childPage, true)
	t.rootPageNum = onlyChild
	return nil
}
