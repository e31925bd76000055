package ptreedb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTryLockExclusiveBlocksSecondHandle(t *testing.T) {
	dir, err := os.MkdirTemp("", "ptreedb-lock-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "lock.db")

	a, err := openRawFile(path, false, 0o644)
	if err != nil {
		t.Fatalf("openRawFile failed: %v", err)
	}
	defer a.Close()
	if err := a.TryLockExclusive(); err != nil {
		t.Fatalf("first TryLockExclusive failed: %v", err)
	}
	defer a.Unlock()

	b, err := openRawFile(path, false, 0o644)
	if err != nil {
		t.Fatalf("openRawFile (second handle) failed: %v", err)
	}
	defer b.Close()

	if err := b.TryLockExclusive(); err == nil {
		b.Unlock()
		t.Fatal("second TryLockExclusive should fail while the first holds the lock")
	}
}

func TestUnlockAllowsReacquire(t *testing.T) {
	dir, err := os.MkdirTemp("", "ptreedb-lock-*")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "lock.db")

	a, err := openRawFile(path, false, 0o644)
	if err != nil {
		t.Fatalf("openRawFile failed: %v", err)
	}
	defer a.Close()
	if err := a.TryLockExclusive(); err != nil {
		t.Fatalf("TryLockExclusive failed: %v", err)
	}
	if err := a.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	b, err := openRawFile(path, false, 0o644)
	if err != nil {
		t.Fatalf("openRawFile (second handle) failed: %v", err)
	}
	defer b.Close()
	if err := b.TryLockExclusive(); err != nil {
		t.Fatalf("TryLockExclusive after Unlock should succeed: %v", err)
	}
	b.Unlock()
}
