package db

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/rajeshpillai/tiny-sqlite/btree"
	"github.com/rajeshpillai/tiny-sqlite/common"
	"github.com/rajeshpillai/tiny-sqlite/common/testutil"
)

func open(t *testing.T, dir string) *Database {
	t.Helper()
	d, err := Open(DefaultConfig(filepath.Join(dir, "test.db")))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return d
}

func mustRow(t *testing.T, id int32, username, email string) btree.Row {
	t.Helper()
	row, err := btree.NewRow(id, username, email)
	if err != nil {
		t.Fatalf("NewRow failed: %v", err)
	}
	return row
}

func TestInsertThenFind(t *testing.T) {
	dir := testutil.TempDir(t)
	d := open(t, dir)
	defer d.Close()

	row := mustRow(t, 1, "alice", "alice@example.com")
	if err := d.Insert(row); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := d.Find(1)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got != row {
		t.Fatalf("Find = %+v, want %+v", got, row)
	}
	if d.NumRows() != 1 {
		t.Fatalf("NumRows = %d, want 1", d.NumRows())
	}
}

func TestDuplicateInsertFails(t *testing.T) {
	dir := testutil.TempDir(t)
	d := open(t, dir)
	defer d.Close()

	if err := d.Insert(mustRow(t, 1, "a", "a@x")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := d.Insert(mustRow(t, 1, "b", "b@x")); err != common.ErrDuplicateKey {
		t.Fatalf("Insert duplicate = %v, want ErrDuplicateKey", err)
	}
	if d.NumRows() != 1 {
		t.Fatalf("NumRows = %d, want 1 (failed insert must not bump the counter)", d.NumRows())
	}
}

func TestInsertDeleteIdentity(t *testing.T) {
	dir := testutil.TempDir(t)
	d := open(t, dir)
	defer d.Close()

	if err := d.Insert(mustRow(t, 5, "u", "e@x")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := d.Delete(5); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if d.NumRows() != 0 {
		t.Fatalf("NumRows = %d, want 0", d.NumRows())
	}
	if _, err := d.Find(5); err != common.ErrKeyNotFound {
		t.Fatalf("Find after delete = %v, want ErrKeyNotFound", err)
	}
}

func TestOperationsAfterCloseFail(t *testing.T) {
	dir := testutil.TempDir(t)
	d := open(t, dir)
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := d.Insert(mustRow(t, 1, "a", "a@x")); err != common.ErrClosed {
		t.Fatalf("Insert after close = %v, want ErrClosed", err)
	}
	if _, err := d.Find(1); err != common.ErrClosed {
		t.Fatalf("Find after close = %v, want ErrClosed", err)
	}
	if err := d.Close(); err != common.ErrClosed {
		t.Fatalf("second Close = %v, want ErrClosed", err)
	}
}

// TestPersistenceAcrossReopen checks that data written before a close
// is readable after reopening the same file, and that a subsequent
// delete persists too.
func TestPersistenceAcrossReopen(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "persist.db")

	d, err := Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 1; i <= 100; i++ {
		if err := d.Insert(mustRow(t, int32(i), "u", "e@x")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	d, err = Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	rows, err := d.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(rows) != 100 {
		t.Fatalf("All() returned %d rows after reopen, want 100", len(rows))
	}
	for i, row := range rows {
		if row.ID != int32(i+1) {
			t.Fatalf("rows[%d].ID = %d, want %d", i, row.ID, i+1)
		}
	}
	if d.NumRows() != 100 {
		t.Fatalf("NumRows after reopen = %d, want 100", d.NumRows())
	}

	if err := d.Delete(50); err != nil {
		t.Fatalf("Delete(50) failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	d, err = Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("second reopen failed: %v", err)
	}
	defer d.Close()
	if _, err := d.Find(50); err != common.ErrKeyNotFound {
		t.Fatalf("Find(50) after delete+reopen = %v, want ErrKeyNotFound", err)
	}
	if d.NumRows() != 99 {
		t.Fatalf("NumRows after second reopen = %d, want 99", d.NumRows())
	}
}

func TestPrettyPrintBTreeDoesNotError(t *testing.T) {
	dir := testutil.TempDir(t)
	d := open(t, dir)
	defer d.Close()

	for i := 1; i <= 20; i++ {
		if err := d.Insert(mustRow(t, int32(i), "u", "e@x")); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	var buf bytes.Buffer
	if err := d.PrettyPrintBTree(&buf); err != nil {
		t.Fatalf("PrettyPrintBTree failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("PrettyPrintBTree wrote nothing")
	}
}
