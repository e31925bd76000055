package ptreedb

import "testing"

func TestPageCacheLookupMiss(t *testing.T) {
	c := newPageCache(4)
	if m := c.lookup(99); m != nil {
		t.Errorf("lookup on empty cache: got %v, want nil", m)
	}
}

func TestPageCacheInsertAndLookup(t *testing.T) {
	c := newPageCache(4)
	m := newMpage(1, defaultPageSize, pfLeaf)
	c.insert(m)
	if got := c.lookup(1); got != m {
		t.Errorf("lookup returned %v, want %v", got, m)
	}
}

func TestPageCachePruneSkipsPinnedAndDirty(t *testing.T) {
	c := newPageCache(1)
	a := newMpage(1, defaultPageSize, pfLeaf)
	a.ref = 1
	b := newMpage(2, defaultPageSize, pfLeaf)
	b.dirty = true
	cc := newMpage(3, defaultPageSize, pfLeaf)

	c.insert(a)
	c.insert(b)
	c.insert(cc)
	c.prune()

	if c.lookup(1) == nil {
		t.Error("pinned page should survive prune")
	}
	if c.lookup(2) == nil {
		t.Error("dirty page should survive prune")
	}
	if c.lookup(3) != nil {
		t.Error("clean unpinned page should be evicted")
	}
}

func TestPageCacheRemove(t *testing.T) {
	c := newPageCache(4)
	m := newMpage(5, defaultPageSize, pfLeaf)
	c.insert(m)
	c.remove(5)
	if got := c.lookup(5); got != nil {
		t.Errorf("lookup after remove: got %v, want nil", got)
	}
}
