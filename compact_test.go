package ptreedb

import (
	"path/filepath"
	"testing"
)

func TestCompactPreservesAllKeys(t *testing.T) {
	db := openTempDB(t)

	const n = 1000
	for i := 0; i < n; i++ {
		if err := db.Put(nil, []byte(padKey(i)), []byte(padKey(i)+"-v")); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}
	// Delete every third key so compaction has garbage to drop.
	for i := 0; i < n; i += 3 {
		if _, err := db.Delete(nil, []byte(padKey(i))); err != nil {
			t.Fatalf("Delete(%d) failed: %v", i, err)
		}
	}

	dir := filepath.Dir(db.path)
	dst := filepath.Join(dir, "compacted.db")
	stats, err := db.Compact(dst)
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if stats.PagesAfter == 0 {
		t.Error("compacted page count should be nonzero")
	}

	cdb, err := Open(dst, 0)
	if err != nil {
		t.Fatalf("Open compacted database failed: %v", err)
	}
	defer cdb.Close()

	for i := 0; i < n; i++ {
		v, err := cdb.Get(nil, []byte(padKey(i)))
		if i%3 == 0 {
			if err != ErrNotFound {
				t.Errorf("key %d should have been deleted, got err=%v", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Get(%d) on compacted database failed: %v", i, err)
		}
		if string(v) != padKey(i)+"-v" {
			t.Errorf("Get(%d): got %q, want %q", i, v, padKey(i)+"-v")
		}
	}
}

func TestCompactInPlaceMarksOldFileStale(t *testing.T) {
	db := openTempDB(t)
	if err := db.Put(nil, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := db.Compact(db.path); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	if _, err := db.Begin(false); err != ErrStale {
		t.Errorf("Begin after in-place compaction: got %v, want ErrStale", err)
	}
}
