package ptreedb

import (
	"container/list"
	"sync"
)

// pageCache is a pinning LRU over in-memory pages, keyed by page
// number. Non-pinned, non-dirty entries are owned exclusively by the
// cache. Cursors share ownership of an entry by holding its ref above
// zero, and the active write transaction's pages carry the dirty
// flag; either exempts the entry from pruning.
type pageCache struct {
	mu       sync.Mutex
	entries  map[pgno]*list.Element // -> *mpage
	lru      *list.List
	maxCache int
}

func newPageCache(maxCache int) *pageCache {
	if maxCache <= 0 {
		maxCache = defaultMaxCache
	}
	return &pageCache{
		entries:  make(map[pgno]*list.Element),
		lru:      list.New(),
		maxCache: maxCache,
	}
}

// lookup returns the cached page, moving it to the tail of the LRU.
func (c *pageCache) lookup(pno pgno) *mpage {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[pno]
	if !ok {
		return nil
	}
	c.lru.MoveToBack(e)
	return e.Value.(*mpage)
}

// insert adds (or re-adds) m to the cache at the tail of the LRU.
func (c *pageCache) insert(m *mpage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[m.pno]; ok {
		c.lru.Remove(old)
	}
	m.elem = c.lru.PushBack(m)
	c.entries[m.pno] = m.elem
}

// remove drops pno from the cache's bookkeeping without touching the
// page itself (used by touch() when renaming a page to a new number).
func (c *pageCache) remove(pno pgno) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[pno]; ok {
		c.lru.Remove(e)
		delete(c.entries, pno)
	}
}

// setMaxCache updates the target size; it does not prune immediately.
func (c *pageCache) setMaxCache(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxCache = n
}

// prune evicts least-recently-used pages with dirty == 0 and ref == 0
// until the cache is at or below its configured size. Pinned or
// dirty pages are skipped in place; pruning does not reorder them.
func (c *pageCache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lru.Front()
	for c.lru.Len() > c.maxCache && e != nil {
		next := e.Next()
		m := e.Value.(*mpage)
		if !m.dirty && m.ref == 0 {
			c.lru.Remove(e)
			delete(c.entries, m.pno)
		}
		e = next
	}
}
