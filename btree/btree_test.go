package btree

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rajeshpillai/tiny-sqlite/common"
	"github.com/rajeshpillai/tiny-sqlite/common/testutil"
	"github.com/rajeshpillai/tiny-sqlite/pager"
)

var (
	errNotBalanced = errors.New("leaves are not all at the same depth")
	errNotSorted   = errors.New("leaf cells are not strictly ascending")
	errKeyMismatch = errors.New("internal stored key does not match child subtree max key")
)

func newTestTree(t *testing.T) *Tree {
	dir := testutil.TempDir(t)
	p, err := pager.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("pager.Open failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	tree, err := CreateEmpty(p)
	if err != nil {
		t.Fatalf("CreateEmpty failed: %v", err)
	}
	return tree
}

func mustRow(t *testing.T, id int32, username, email string) Row {
	t.Helper()
	row, err := NewRow(id, username, email)
	if err != nil {
		t.Fatalf("NewRow failed: %v", err)
	}
	return row
}

func TestInsertThenFind(t *testing.T) {
	tree := newTestTree(t)

	row := mustRow(t, 42, "alice", "alice@example.com")
	if err := tree.Insert(row); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	cur, err := tree.Find(42)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	got, err := cur.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if got != row {
		t.Fatalf("Value() = %+v, want %+v", got, row)
	}
}

func TestDuplicateInsertFailsAndLeavesTreeUnchanged(t *testing.T) {
	tree := newTestTree(t)
	row := mustRow(t, 1, "a", "a@x")
	if err := tree.Insert(row); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := tree.Insert(mustRow(t, 1, "b", "b@x"))
	if err != common.ErrDuplicateKey {
		t.Fatalf("Insert duplicate = %v, want ErrDuplicateKey", err)
	}

	rows, err := tree.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(rows) != 1 || rows[0] != row {
		t.Fatalf("tree mutated by failed duplicate insert: %+v", rows)
	}
}

func TestDeleteNonexistentKeyFails(t *testing.T) {
	tree := newTestTree(t)
	if err := tree.Delete(999); err != common.ErrKeyNotFound {
		t.Fatalf("Delete = %v, want ErrKeyNotFound", err)
	}
}

// TestFindPastEndOfFullLeaf guards against indexing past a full
// leaf's cell array: a lookup for a key larger than every key in a
// leaf sitting at exactly MaxLeafCells must report ErrKeyNotFound,
// not panic.
func TestFindPastEndOfFullLeaf(t *testing.T) {
	tree := newTestTree(t)
	for i := 1; i <= MaxLeafCells; i++ {
		if err := tree.Insert(mustRow(t, int32(i), "u", "e@x")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	if _, err := tree.FindRow(int32(MaxLeafCells + 1)); err != common.ErrKeyNotFound {
		t.Fatalf("FindRow past end of full leaf = %v, want ErrKeyNotFound", err)
	}
}

// TestSingleLeafScenario covers ordered insert and delete within a
// single leaf, with no split ever required.
func TestSingleLeafScenario(t *testing.T) {
	tree := newTestTree(t)

	for _, r := range []Row{
		mustRow(t, 1, "a", "a@x"),
		mustRow(t, 3, "c", "c@x"),
		mustRow(t, 2, "b", "b@x"),
	} {
		if err := tree.Insert(r); err != nil {
			t.Fatalf("Insert(%d) failed: %v", r.ID, err)
		}
	}

	assertKeysInOrder(t, tree, []int32{1, 2, 3})

	if err := tree.Delete(2); err != nil {
		t.Fatalf("Delete(2) failed: %v", err)
	}
	assertKeysInOrder(t, tree, []int32{1, 3})
}

// TestRootSplit checks that inserting MaxLeafCells+1 records under
// the initial root leaf splits it into an internal root with two
// leaves.
func TestRootSplit(t *testing.T) {
	tree := newTestTree(t)

	n := MaxLeafCells + 1
	for i := 1; i <= n; i++ {
		if err := tree.Insert(mustRow(t, int32(i), "u", "e@x")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	root, err := tree.Pager.GetPage(tree.RootPageNum())
	if err != nil {
		t.Fatalf("GetPage(root) failed: %v", err)
	}
	if isLeaf(root) {
		t.Fatalf("root is still a leaf after inserting %d records (MaxLeafCells=%d)", n, MaxLeafCells)
	}
	if getInternalNumKeys(root) != 1 {
		t.Fatalf("root has %d keys, want 1 (two leaves)", getInternalNumKeys(root))
	}

	want := make([]int32, n)
	for i := range want {
		want[i] = int32(i + 1)
	}
	assertKeysInOrder(t, tree, want)
}

// TestInternalSplit checks that enough leaves to overflow a single
// internal node produce a three-level tree.
func TestInternalSplit(t *testing.T) {
	tree := newTestTree(t)

	n := (MaxInternalKeys + 1) * MaxLeafCells
	for i := 1; i <= n; i++ {
		if err := tree.Insert(mustRow(t, int32(i), "u", "e@x")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	depth, err := treeDepth(tree, tree.RootPageNum())
	if err != nil {
		t.Fatalf("treeDepth failed: %v", err)
	}
	if depth < 3 {
		t.Fatalf("tree depth = %d, want >= 3 after inserting %d keys", depth, n)
	}

	if err := checkInvariants(tree); err != nil {
		t.Fatalf("invariant check failed: %v", err)
	}
}

// TestBorrowOnDelete builds two sibling leaves of size MinLeafCells+1
// each; deleting twice from one pushes it below minimum and forces a
// borrow from its sibling.
func TestBorrowOnDelete(t *testing.T) {
	tree := newTestTree(t)

	// MaxLeafCells+1 sequential inserts trigger exactly one split,
	// leaving two leaves of size MinLeafCells+1 each (left holds the
	// smaller keys, right the larger).
	n := MaxLeafCells + 1
	for i := 1; i <= n; i++ {
		if err := tree.Insert(mustRow(t, int32(i), "u", "e@x")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	root, err := tree.Pager.GetPage(tree.RootPageNum())
	if err != nil {
		t.Fatalf("GetPage(root) failed: %v", err)
	}
	if isLeaf(root) || getInternalNumKeys(root) != 1 {
		t.Fatalf("expected a two-leaf tree before deleting, got numKeys=%d", getInternalNumKeys(root))
	}

	// Delete the two smallest keys of the right leaf: the first
	// brings it to exactly MinLeafCells, the second pushes it below
	// minimum and must trigger a borrow from the left sibling.
	if err := tree.Delete(int32(MinLeafCells + 2)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := tree.Delete(int32(MinLeafCells + 3)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if err := checkInvariants(tree); err != nil {
		t.Fatalf("invariant check failed after borrow: %v", err)
	}
	if got := countLiveKeys(t, tree); got != n-2 {
		t.Fatalf("countLiveKeys = %d, want %d", got, n-2)
	}

	// A borrow keeps both siblings, so the tree is still two levels deep.
	depth, err := treeDepth(tree, tree.RootPageNum())
	if err != nil {
		t.Fatalf("treeDepth failed: %v", err)
	}
	if depth != 2 {
		t.Fatalf("tree depth = %d, want 2 (no merge should have occurred)", depth)
	}
}

// TestMergeAndShrink deletes nearly every key from a multi-level tree
// and checks that repeated merges shrink the tree's depth.
func TestMergeAndShrink(t *testing.T) {
	tree := newTestTree(t)

	n := (MaxInternalKeys + 1) * MaxLeafCells
	for i := 1; i <= n; i++ {
		if err := tree.Insert(mustRow(t, int32(i), "u", "e@x")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	depthBefore, err := treeDepth(tree, tree.RootPageNum())
	if err != nil {
		t.Fatalf("treeDepth failed: %v", err)
	}

	for i := n; i > MinLeafCells; i-- {
		if err := tree.Delete(int32(i)); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}

	depthAfter, err := treeDepth(tree, tree.RootPageNum())
	if err != nil {
		t.Fatalf("treeDepth failed: %v", err)
	}
	if depthAfter >= depthBefore {
		t.Fatalf("tree depth did not shrink: before=%d after=%d", depthBefore, depthAfter)
	}

	if err := checkInvariants(tree); err != nil {
		t.Fatalf("invariant check failed after shrink: %v", err)
	}
}

func TestInsertDeleteIdentityOnEmptyDatabase(t *testing.T) {
	tree := newTestTree(t)
	row := mustRow(t, 7, "u", "e@x")

	if err := tree.Insert(row); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := tree.Delete(7); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	rows, err := tree.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("All() = %v, want empty", rows)
	}
}

// --- helpers ---

func assertKeysInOrder(t *testing.T, tree *Tree, want []int32) {
	t.Helper()
	rows, err := tree.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(rows) != len(want) {
		t.Fatalf("All() returned %d rows, want %d", len(rows), len(want))
	}
	for i, row := range rows {
		if row.ID != want[i] {
			t.Fatalf("All()[%d].ID = %d, want %d", i, row.ID, want[i])
		}
	}
}

func countLiveKeys(t *testing.T, tree *Tree) int {
	t.Helper()
	rows, err := tree.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	return len(rows)
}

func treeDepth(tree *Tree, pageNum uint32) (int, error) {
	page, err := tree.Pager.GetPage(pageNum)
	if err != nil {
		return 0, err
	}
	if isLeaf(page) {
		return 1, nil
	}
	d, err := treeDepth(tree, getInternalRightChild(page))
	if err != nil {
		return 0, err
	}
	return d + 1, nil
}

// checkInvariants walks the whole tree and verifies balance, key
// ordering, and that every internal key matches its child's max key.
func checkInvariants(tree *Tree) error {
	leafDepths := map[int]bool{}
	if err := walkInvariants(tree, tree.RootPageNum(), 0, leafDepths); err != nil {
		return err
	}
	if len(leafDepths) > 1 {
		return errNotBalanced
	}
	return nil
}

func walkInvariants(tree *Tree, pageNum uint32, depth int, leafDepths map[int]bool) error {
	page, err := tree.Pager.GetPage(pageNum)
	if err != nil {
		return err
	}

	if isLeaf(page) {
		leafDepths[depth] = true
		numCells := getLeafNumCells(page)
		for i := uint32(1); i < numCells; i++ {
			if getLeafCellKey(page, i-1) >= getLeafCellKey(page, i) {
				return errNotSorted
			}
		}
		return nil
	}

	numKeys := getInternalNumKeys(page)
	for i := uint32(0); i < numKeys; i++ {
		child := getInternalCellChild(page, i)
		childMax, err := maxKey(tree, child)
		if err != nil {
			return err
		}
		if childMax != getInternalCellKey(page, i) {
			return errKeyMismatch
		}
		if err := walkInvariants(tree, child, depth+1, leafDepths); err != nil {
			return err
		}
	}
	return walkInvariants(tree, getInternalRightChild(page), depth+1, leafDepths)
}
