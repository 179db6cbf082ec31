package btree

import (
	"sort"

	"github.com/pkg/errors"
)

// leafFind does a binary search for key among a leaf's cells. If
// present it returns (index, true); otherwise it returns the
// insertion point (the smallest index whose key is greater than key,
// or NumCells if key is greater than every cell) and false.
func leafFind(p *Page, key int32) (uint32, bool) {
	numCells := getLeafNumCells(p)
	lo, hi := uint32(0), numCells
	for lo < hi {
		mid := lo + (hi-lo)/2
		midKey := getLeafCellKey(p, mid)
		switch {
		case midKey == key:
			return mid, true
		case midKey < key:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// internalFindChild returns the smallest index i such that
// storedKey[i] >= key, or NumKeys if every stored key is smaller
// (meaning "follow the right child"). Each storedKey[i] is the
// maximum key of child[i]'s subtree, so this is the leftmost child
// whose subtree could contain key.
func internalFindChild(p *Page, key int32) uint32 {
	numKeys := getInternalNumKeys(p)
	lo, hi := uint32(0), numKeys
	for lo < hi {
		mid := lo + (hi-lo)/2
		if getInternalCellKey(p, mid) >= key {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// maxKey returns the largest key stored anywhere in the subtree
// rooted at pageNum.
func maxKey(t *Tree, pageNum uint32) (int32, error) {
	page, err := t.Pager.GetPage(pageNum)
	if err != nil {
		return 0, err
	}
	if isLeaf(page) {
		numCells := getLeafNumCells(page)
		if numCells == 0 {
			return 0, errors.Errorf("btree: empty leaf page %d has no max key", pageNum)
		}
		return getLeafCellKey(page, numCells-1), nil
	}
	return maxKey(t, getInternalRightChild(page))
}

// childPageNum is a child slot's page number paired with its
// subtree's max key, used while rebuilding an internal node from a
// freshly sorted list of children.
type childPageNum struct {
	page   uint32
	maxKey int32
}

// childrenOf collects every child of an internal node as a
// (page, maxKey) list in left-to-right order.
func childrenOf(t *Tree, p *Page) ([]childPageNum, error) {
	numKeys := getInternalNumKeys(p)
	children := make([]childPageNum, 0, numKeys+1)
	for i := uint32(0); i < numKeys; i++ {
		child := getInternalCellChild(p, i)
		k, err := maxKey(t, child)
		if err != nil {
			return nil, err
		}
		children = append(children, childPageNum{page: child, maxKey: k})
	}
	right := getInternalRightChild(p)
	if right != 0 {
		k, err := maxKey(t, right)
		if err != nil {
			return nil, err
		}
		children = append(children, childPageNum{page: right, maxKey: k})
	}
	return children, nil
}

// rebuildInternal reinitializes p as an internal node built from a
// sorted (ascending by maxKey) list of children: every child but the
// last becomes a (child, maxKey) cell, the last becomes the right
// child, and every child's parent pointer is updated to p's page
// number. p's is-root flag and parent pointer are preserved.
func rebuildInternal(t *Tree, pageNum uint32, children []childPageNum) error {
	if len(children) == 0 {
		return errors.Errorf("btree: cannot rebuild internal page %d with zero children", pageNum)
	}

	sort.Slice(children, func(i, j int) bool { return children[i].maxKey < children[j].maxKey })

	p, err := t.Pager.GetPage(pageNum)
	if err != nil {
		return err
	}
	wasRoot := getIsRoot(p)
	parent := getParentPage(p)

	initInternal(p)
	setIsRoot(p, wasRoot)
	setParentPage(p, parent)

	for i, child := range children[:len(children)-1] {
		setInternalCellChild(p, uint32(i), child.page)
		setInternalCellKey(p, uint32(i), child.maxKey)
	}
	setInternalNumKeys(p, uint32(len(children)-1))
	setInternalRightChild(p, children[len(children)-1].page)

	for _, child := range children {
		childPage, err := t.Pager.GetPage(child.page)
		if err != nil {
			return err
		}
		setParentPage(childPage, pageNum)
	}
	return nil
}
