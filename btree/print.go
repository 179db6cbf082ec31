package btree

import (
	"fmt"
	"io"
	"strings"
)

// PrettyPrint recursively dumps the tree rooted at the root page to w,
// indented by depth. It is read-only and exists purely as a
// debugging aid for the REPL's `.btree` meta-command.
func (t *Tree) PrettyPrint(w io.Writer) error {
	return t.prettyPrintPage(w, t.rootPageNum, 0)
}

func (t *Tree) prettyPrintPage(w io.Writer, pageNum uint32, depth int) error {
	page, err := t.Pager.GetPage(pageNum)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)

	if isLeaf(page) {
		numCells := getLeafNumCells(page)
		fmt.Fprintf(w, "%s- leaf (size %d)\n", indent, numCells)
		for i := uint32(0); i < numCells; i++ {
			fmt.Fprintf(w, "%s  - %d\n", indent, getLeafCellKey(page, i))
		}
		return nil
	}

	numKeys := getInternalNumKeys(page)
	fmt.Fprintf(w, "%s- internal (size %d)\n", indent, numKeys)
	for i := uint32(0); i < numKeys; i++ {
		child := getInternalCellChild(page, i)
		if err := t.prettyPrintPage(w, child, depth+1); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s  - key %d\n", indent, getInternalCellKey(page, i))
	}
	return t.prettyPrintPage(w, getInternalRightChild(page), depth+1)
}
