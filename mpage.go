package ptreedb

import "container/list"

// mpage is the in-memory handle for one page. It owns a full copy of
// the page's bytes; cursors and the cache share ownership of it
// through ref, and touch() is the only way to mutate it.
type mpage struct {
	pno       pgno
	data      []byte
	parent    *mpage
	parentIdx int
	prefix    []byte
	dirty     bool
	ref       int

	// elem is this page's position in the cache's LRU list, set by
	// pageCache.insert; it is nil only if the page was never inserted
	// and is not cleared when the page is removed or evicted.
	elem *list.Element
}

func (m *mpage) pg() page { return page{data: m.data} }

func newMpage(pno pgno, psize int, flags pageFlags) *mpage {
	m := &mpage{pno: pno, data: make([]byte, psize)}
	initPage(m.data, pno, flags, psize)
	return m
}

// clone returns a deep copy of m with a new page number, used by
// touch() when the original is pinned by a cursor.
func (m *mpage) clone(newPno pgno) *mpage {
	c := &mpage{
		pno:       newPno,
		data:      append([]byte(nil), m.data...),
		parent:    m.parent,
		parentIdx: m.parentIdx,
		prefix:    append([]byte(nil), m.prefix...),
	}
	c.pg().setPageNo(newPno)
	return c
}
