package ptreedb

import (
	"bytes"
	"testing"
)

func newTestLeaf() *mpage {
	return newMpage(1, defaultPageSize, pfLeaf)
}

func TestAddNodeAndNodeAtRoundTrip(t *testing.T) {
	m := newTestLeaf()
	p := m.pg()
	addNode(p, 0, false, []byte("hello"), 0, []byte("world"), 5, false)

	if p.numKeys() != 1 {
		t.Fatalf("numKeys: got %d, want 1", p.numKeys())
	}
	n := p.nodeAt(0)
	if !bytes.Equal(n.key(), []byte("hello")) {
		t.Errorf("key: got %q, want %q", n.key(), "hello")
	}
	if !bytes.Equal(n.inlineData(), []byte("world")) {
		t.Errorf("inlineData: got %q, want %q", n.inlineData(), "world")
	}
	if n.isBigData() {
		t.Error("node should not be flagged big data")
	}
}

func TestAddNodeInsertsInOrder(t *testing.T) {
	m := newTestLeaf()
	p := m.pg()
	addNode(p, 0, false, []byte("b"), 0, []byte("2"), 1, false)
	addNode(p, 0, false, []byte("a"), 0, []byte("1"), 1, false)
	addNode(p, 2, false, []byte("c"), 0, []byte("3"), 1, false)

	want := []string{"a", "b", "c"}
	for i, w := range want {
		if got := string(p.nodeAt(i).key()); got != w {
			t.Errorf("slot %d: got %q, want %q", i, got, w)
		}
	}
}

func TestDeleteNodeCompactsAndShiftsSlots(t *testing.T) {
	m := newTestLeaf()
	p := m.pg()
	addNode(p, 0, false, []byte("a"), 0, []byte("1"), 1, false)
	addNode(p, 1, false, []byte("b"), 0, []byte("2"), 1, false)
	addNode(p, 2, false, []byte("c"), 0, []byte("3"), 1, false)

	freeBefore := p.freeSpace()
	deleteNode(p, 1)

	if p.numKeys() != 2 {
		t.Fatalf("numKeys after delete: got %d, want 2", p.numKeys())
	}
	if string(p.nodeAt(0).key()) != "a" || string(p.nodeAt(1).key()) != "c" {
		t.Fatalf("remaining keys: got %q, %q", p.nodeAt(0).key(), p.nodeAt(1).key())
	}
	if p.freeSpace() <= freeBefore {
		t.Errorf("freeSpace should grow after delete: before %d, after %d", freeBefore, p.freeSpace())
	}
}

func TestBigDataNodeStoresOverflowHead(t *testing.T) {
	m := newTestLeaf()
	p := m.pg()
	head := make([]byte, 4)
	head[0] = 42
	addNode(p, 0, false, []byte("k"), 0, head, 9999, true)

	n := p.nodeAt(0)
	if !n.isBigData() {
		t.Fatal("node should be flagged big data")
	}
	if n.dataSize() != 9999 {
		t.Errorf("dataSize: got %d, want 9999", n.dataSize())
	}
	if n.overflowHead() != 42 {
		t.Errorf("overflowHead: got %d, want 42", n.overflowHead())
	}
}

func TestBranchSlotZeroHasNoKey(t *testing.T) {
	m := newMpage(1, defaultPageSize, pfBranch)
	p := m.pg()
	addNode(p, 0, true, nil, 7, nil, 0, false)

	n := p.nodeAt(0)
	if len(n.key()) != 0 {
		t.Errorf("branch slot 0 key: got %q, want empty", n.key())
	}
	if n.childPgno() != 7 {
		t.Errorf("childPgno: got %d, want 7", n.childPgno())
	}
}
