package ptreedb

import (
	"os"
	"path/filepath"
	"testing"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ptreedb-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "test.db")
}

func openTempDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesEmptyDatabase(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.meta.root != invalidPgno {
		t.Errorf("new database should have no root, got %v", db.meta.root)
	}

	_, err = db.Get(nil, []byte("missing"))
	if err != ErrNotFound {
		t.Errorf("Get on empty database: got %v, want ErrNotFound", err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTempDB(t)

	if err := db.Put(nil, []byte("alpha"), []byte("one")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, err := db.Get(nil, []byte("alpha"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != "one" {
		t.Errorf("Get: got %q, want %q", v, "one")
	}
}

func TestPutOverwritesExistingKey(t *testing.T) {
	db := openTempDB(t)

	if err := db.Put(nil, []byte("k"), []byte("v1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := db.Put(nil, []byte("k"), []byte("v2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, err := db.Get(nil, []byte("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != "v2" {
		t.Errorf("Get after overwrite: got %q, want %q", v, "v2")
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	db := openTempDB(t)

	if err := db.Put(nil, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	prev, err := db.Delete(nil, []byte("k"))
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if string(prev) != "v" {
		t.Errorf("Delete returned %q, want %q", prev, "v")
	}
	if _, err := db.Get(nil, []byte("k")); err != ErrNotFound {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
}

func TestDeleteMissingKeyReturnsNotFound(t *testing.T) {
	db := openTempDB(t)
	if _, err := db.Delete(nil, []byte("missing")); err != ErrNotFound {
		t.Errorf("Delete of missing key: got %v, want ErrNotFound", err)
	}
}

func TestManyKeysSurviveSplitsAndReads(t *testing.T) {
	db := openTempDB(t)

	const n = 2000
	for i := 0; i < n; i++ {
		k := []byte(padKey(i))
		v := []byte(padKey(i) + "-value")
		if err := db.Put(nil, k, v); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		k := []byte(padKey(i))
		want := padKey(i) + "-value"
		got, err := db.Get(nil, k)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", i, err)
		}
		if string(got) != want {
			t.Fatalf("Get(%d): got %q, want %q", i, got, want)
		}
	}
}

func TestDeletingAllKeysEmptiesTheTree(t *testing.T) {
	db := openTempDB(t)

	const n = 500
	for i := 0; i < n; i++ {
		if err := db.Put(nil, []byte(padKey(i)), []byte("v")); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		if _, err := db.Delete(nil, []byte(padKey(i))); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}
	if db.meta.root != invalidPgno {
		t.Errorf("tree should be empty after deleting every key, root = %v", db.meta.root)
	}
	if _, err := db.Get(nil, []byte(padKey(0))); err != ErrNotFound {
		t.Errorf("Get after draining the tree: got %v, want ErrNotFound", err)
	}
}

func TestBigValueGoesThroughOverflow(t *testing.T) {
	db := openTempDB(t)

	big := make([]byte, db.psize*3)
	for i := range big {
		big[i] = byte(i)
	}
	if err := db.Put(nil, []byte("bigkey"), big); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := db.Get(nil, []byte("bigkey"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != len(big) {
		t.Fatalf("Get: got length %d, want %d", len(got), len(big))
	}
	for i := range big {
		if got[i] != big[i] {
			t.Fatalf("Get: byte %d mismatch: got %d, want %d", i, got[i], big[i])
		}
	}
}

func TestInvalidKeyLengthRejected(t *testing.T) {
	db := openTempDB(t)
	if err := db.Put(nil, nil, []byte("v")); err == nil {
		t.Error("Put with empty key should fail")
	}
	longKey := make([]byte, maxKeySize+1)
	if err := db.Put(nil, longKey, []byte("v")); err == nil {
		t.Error("Put with oversized key should fail")
	}
}

func TestReopenRecoversCommittedData(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Put(nil, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()
	v, err := db2.Get(nil, []byte("k"))
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(v) != "v" {
		t.Errorf("Get after reopen: got %q, want %q", v, "v")
	}
}

func TestTruncateToPriorMetaRecoversConsistentSnapshot(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		if err := db.Put(nil, []byte(keyN(i)), []byte(valN(i))); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	boundary, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	priorSize := boundary.Size()

	for i := 20; i < 40; i++ {
		if err := db.Put(nil, []byte(keyN(i)), []byte(valN(i))); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := os.Truncate(path, priorSize); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	db2, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen after truncation failed: %v", err)
	}
	defer db2.Close()

	for i := 0; i < 20; i++ {
		v, err := db2.Get(nil, []byte(keyN(i)))
		if err != nil {
			t.Fatalf("Get %d after recovery failed: %v", i, err)
		}
		if string(v) != valN(i) {
			t.Errorf("Get %d after recovery: got %q, want %q", i, v, valN(i))
		}
	}
	for i := 20; i < 40; i++ {
		if _, err := db2.Get(nil, []byte(keyN(i))); err != ErrNotFound {
			t.Errorf("Get %d after recovery: got %v, want ErrNotFound", i, err)
		}
	}

	problems, err := db2.Check()
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("Check reported problems after recovery: %v", problems)
	}
}

func keyN(i int) string { return "key-" + string(rune('a'+i%26)) + string(rune('0'+i/26)) }
func valN(i int) string { return "val-" + string(rune('a'+i%26)) + string(rune('0'+i/26)) }

func TestExplicitTransactionCommit(t *testing.T) {
	db := openTempDB(t)

	txn, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := db.Put(txn, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	v, err := db.Get(nil, []byte("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v) != "v" {
		t.Errorf("Get: got %q, want %q", v, "v")
	}
}

func TestExplicitTransactionAbortDiscardsWrites(t *testing.T) {
	db := openTempDB(t)

	txn, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := db.Put(txn, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	txn.Abort()

	if _, err := db.Get(nil, []byte("k")); err != ErrNotFound {
		t.Errorf("Get after abort: got %v, want ErrNotFound", err)
	}
}

func TestConcurrentWriterIsBusy(t *testing.T) {
	db := openTempDB(t)

	txn, err := db.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer txn.Abort()

	if _, err := db.Begin(true); err != ErrBusy {
		t.Errorf("second writer Begin: got %v, want ErrBusy", err)
	}
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	db := openTempDB(t)

	txn, err := db.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer txn.Abort()

	if err := db.Put(txn, []byte("k"), []byte("v")); err == nil {
		t.Error("Put on a read-only transaction should fail")
	}
}

func padKey(i int) string {
	const digits = "0123456789"
	buf := make([]byte, 6)
	for j := 5; j >= 0; j-- {
		buf[j] = digits[i%10]
		i /= 10
	}
	return string(buf)
}
