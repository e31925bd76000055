package ptreedb

import "time"

// Txn scopes a set of reads and, if writable, mutations against one
// consistent view of the tree. Read-only transactions snapshot the
// committed root at Begin time and never dirty a page; exactly one
// write transaction may be open at a time.
type Txn struct {
	db       *DB
	writable bool
	root     pgno
	nextPgno pgno

	depth         uint32
	branchPages   uint64
	leafPages     uint64
	overflowPages uint64
	revisions     uint64
	entries       uint64

	dirty   []*mpage
	errored bool
	done    bool
}

// cursorFrame is one (page, child index) frame on a cursor's
// root-to-leaf stack.
type cursorFrame struct {
	page *mpage
	idx  int
}

func (txn *Txn) checkUsable() error {
	if txn.done {
		return newErr(InvalidArgument, "transaction already committed or aborted")
	}
	if txn.errored {
		return wrapErr(Perm, "transaction is in an errored state; it must be aborted", nil)
	}
	return nil
}

// getPage returns the cached page for pno, faulting it in from the
// file if necessary. The read verifies the embedded page number
// equals pno.
func (txn *Txn) getPage(pno pgno) (*mpage, error) {
	if m := txn.db.cache.lookup(pno); m != nil {
		return m, nil
	}
	buf := make([]byte, txn.db.psize)
	n, err := txn.db.file.ReadAt(buf, int64(pno)*int64(txn.db.psize))
	if err != nil || n != len(buf) {
		return nil, wrapErr(IOError, "read page", err)
	}
	p := page{data: buf}
	if p.pageNo() != pno {
		return nil, newErr(Corrupt, "page number mismatch on read")
	}
	m := &mpage{pno: pno, data: buf}
	txn.db.cache.insert(m)
	return m, nil
}

// touch implements the copy-on-write protocol: if m is already dirty
// it is returned unchanged; otherwise a new page number is
// allocated, the page is either cloned (if pinned by a cursor) or
// renamed in place, marked dirty, queued, and the new page number is
// written into the parent's pointing node.
func (txn *Txn) touch(m *mpage) *mpage {
	if m.dirty {
		return m
	}
	newPno := txn.nextPgno
	txn.nextPgno++

	var nm *mpage
	if m.ref > 0 {
		nm = m.clone(newPno)
	} else {
		txn.db.cache.remove(m.pno)
		nm = m
		nm.pno = newPno
		nm.pg().setPageNo(newPno)
	}
	nm.dirty = true
	txn.dirty = append(txn.dirty, nm)
	if nm.parent != nil {
		nm.parent.pg().nodeAt(nm.parentIdx).setChildPgno(newPno)
	}
	txn.db.cache.insert(nm)
	return nm
}

// searchPage descends from the transaction's root to the leaf that
// would contain key, touching every page along the way when modify
// is true, and recording (page, childIndex) frames on stack when one
// is supplied.
func (txn *Txn) searchPage(key []byte, modify bool, stack *[]cursorFrame) (*mpage, error) {
	if txn.root == invalidPgno {
		return nil, ErrNotFound
	}
	cur, err := txn.getPage(txn.root)
	if err != nil {
		return nil, err
	}
	cur.parent = nil
	cur.parentIdx = 0
	cur.prefix = nil
	if modify && !cur.dirty {
		cur = txn.touch(cur)
		txn.root = cur.pno
	}

	for {
		p := cur.pg()
		if p.isLeaf() {
			return cur, nil
		}
		if !p.isBranch() {
			return nil, newErr(Corrupt, "descent reached a page that is neither branch nor leaf")
		}
		idx := searchBranch(cur, key)
		if stack != nil {
			*stack = append(*stack, cursorFrame{page: cur, idx: idx})
		}
		childPno := p.nodeAt(idx).childPgno()
		child, err := txn.getPage(childPno)
		if err != nil {
			return nil, err
		}
		child.parent = cur
		child.parentIdx = idx
		child.prefix = computeEffectivePrefix(child)
		if modify && !child.dirty {
			child = txn.touch(child)
		}
		cur = child
	}
}

// relink re-descends from the transaction's root using a key known to
// live in child's subtree, refreshing child.parent/parentIdx/prefix
// (and those of every ancestor visited along the way). Splits, merges
// and node moves can reshape the parent chain above a page in ways
// that are awkward to track incrementally; relink re-derives the
// correct linkage afterward instead.
func (txn *Txn) relink(child *mpage, anchor []byte) error {
	cur, err := txn.getPage(txn.root)
	if err != nil {
		return err
	}
	cur.parent = nil
	cur.parentIdx = 0
	cur.prefix = nil
	if cur.pno == child.pno {
		return nil
	}
	for {
		p := cur.pg()
		if !p.isBranch() {
			return newErr(Corrupt, "relink: non-branch page encountered while descending")
		}
		idx := searchBranch(cur, anchor)
		childPno := p.nodeAt(idx).childPgno()
		next, err := txn.getPage(childPno)
		if err != nil {
			return err
		}
		next.parent = cur
		next.parentIdx = idx
		next.prefix = computeEffectivePrefix(next)
		if childPno == child.pno {
			return nil
		}
		cur = next
	}
}

// Commit appends dirty pages, fsyncs, writes a new hashed meta page,
// fsyncs again, and swings the database's committed root.
func (txn *Txn) Commit() error {
	if txn.done {
		return newErr(InvalidArgument, "transaction already committed or aborted")
	}
	if !txn.writable {
		txn.done = true
		return wrapErr(Perm, "commit called on a read-only transaction", nil)
	}
	if txn.errored {
		txn.done = true
		return wrapErr(Perm, "cannot commit an errored transaction; it must be aborted", nil)
	}

	db := txn.db

	if db.fixPadding {
		if err := db.file.Truncate(int64(txn.nextPgno) * int64(db.psize)); err != nil {
			txn.done = true
			return wrapErr(IOError, "truncate padded tail", err)
		}
		db.fixPadding = false
	}

	for start := 0; start < len(txn.dirty); start += maxDirtyBatch {
		end := start + maxDirtyBatch
		if end > len(txn.dirty) {
			end = len(txn.dirty)
		}
		for _, m := range txn.dirty[start:end] {
			n, err := db.file.WriteAt(m.data, int64(m.pno)*int64(db.psize))
			if err != nil || n != len(m.data) {
				txn.done = true
				return wrapErr(IOError, "write dirty page", err)
			}
		}
	}

	if db.flags&NOSYNC == 0 {
		if err := db.file.Sync(); err != nil {
			txn.done = true
			return wrapErr(IOError, "fsync after page writes", err)
		}
	}

	metaPno := txn.nextPgno
	txn.nextPgno++
	body := metaBody{
		root:          txn.root,
		prevMeta:      db.metaPno,
		timestamp:     time.Now().Unix(),
		branchPages:   txn.branchPages,
		leafPages:     txn.leafPages,
		overflowPages: txn.overflowPages,
		revisions:     txn.revisions + 1,
		depth:         txn.depth,
		entries:       txn.entries,
	}
	data := encodeMetaPage(db.psize, metaPno, body)
	if n, err := db.file.WriteAt(data, int64(metaPno)*int64(db.psize)); err != nil || n != len(data) {
		txn.done = true
		return wrapErr(IOError, "write meta page", err)
	}
	if db.flags&NOSYNC == 0 {
		if err := db.file.Sync(); err != nil {
			txn.done = true
			return wrapErr(IOError, "fsync after meta write", err)
		}
	}

	for _, m := range txn.dirty {
		m.dirty = false
	}
	db.meta = body
	db.metaPno = metaPno
	db.nextPgno = txn.nextPgno
	db.cache.prune()

	db.releaseWriter()
	txn.done = true
	return nil
}

// Abort discards every dirty page and releases the write lock, if
// any. On-disk state is unaffected: dirty pages were never linked
// from any meta page.
func (txn *Txn) Abort() {
	if txn.done {
		return
	}
	for _, m := range txn.dirty {
		txn.db.cache.remove(m.pno)
	}
	txn.dirty = nil
	if txn.writable {
		txn.db.releaseWriter()
	}
	txn.done = true
}

// IsReadOnly reports whether txn can mutate the tree.
func (txn *Txn) IsReadOnly() bool { return !txn.writable }
