package ptreedb

import "encoding/binary"

// splitRec is one logical (key, payload) or (key, child) record,
// fully reconstructed (key is the complete logical key, never a
// prefix-relative suffix), used while redistributing a page's
// contents across a split.
type splitRec struct {
	key         []byte
	child       pgno
	payload     []byte
	logicalSize int
	big         bool
}

// pendingInsert is the one new record a split folds into the correct
// half while redistributing an overflowing page's existing records.
type pendingInsert struct {
	idx         int
	key         []byte
	child       pgno
	payload     []byte
	logicalSize int
	big         bool
}

// prepareValue decides whether value fits inline or must be written
// to a freshly allocated overflow chain, per the big-value threshold
// of P/btMinKeys. It returns the bytes to store inline: either value
// itself, or a 4-byte overflow chain head page number.
func (db *DB) prepareValue(t *Txn, value []byte) (big bool, payload []byte, logicalSize int, err error) {
	threshold := db.psize / btMinKeys
	if len(value) <= threshold {
		return false, value, len(value), nil
	}
	capacity := db.psize - pageHeaderSize
	n := (len(value) + capacity - 1) / capacity
	pages := make([]*mpage, n)
	for i := 0; i < n; i++ {
		p := newMpage(t.nextPgno, db.psize, pfOverflow)
		t.nextPgno++
		p.dirty = true
		t.dirty = append(t.dirty, p)
		db.cache.insert(p)
		pages[i] = p
		t.overflowPages++
	}
	for i := 0; i < n; i++ {
		start := i * capacity
		end := start + capacity
		if end > len(value) {
			end = len(value)
		}
		copy(pages[i].data[pageHeaderSize:], value[start:end])
		if i+1 < n {
			pages[i].pg().setNextOverflow(pages[i+1].pno)
		} else {
			pages[i].pg().setNextOverflow(invalidPgno)
		}
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(pages[0].pno))
	return true, buf, len(value), nil
}

// readOverflow reconstructs a big value by walking its overflow chain.
func (db *DB) readOverflow(t *Txn, head pgno, logicalSize int) ([]byte, error) {
	out := make([]byte, 0, logicalSize)
	cur := head
	capacity := db.psize - pageHeaderSize
	for cur != invalidPgno && len(out) < logicalSize {
		m, err := t.getPage(cur)
		if err != nil {
			return nil, err
		}
		n := logicalSize - len(out)
		if n > capacity {
			n = capacity
		}
		out = append(out, m.data[pageHeaderSize:pageHeaderSize+n]...)
		cur = m.pg().nextOverflow()
	}
	if len(out) != logicalSize {
		return nil, newErr(Corrupt, "overflow chain shorter than recorded value size")
	}
	return out, nil
}

// putLocked inserts or replaces key's value within an already-open
// write transaction.
func (db *DB) putLocked(t *Txn, key, value []byte) error {
	if t.root == invalidPgno {
		leaf := newMpage(t.nextPgno, db.psize, pfLeaf)
		t.nextPgno++
		leaf.dirty = true
		t.dirty = append(t.dirty, leaf)
		db.cache.insert(leaf)
		t.root = leaf.pno
		t.depth = 1
		t.leafPages++
	}

	leafM, err := t.searchPage(key, true, nil)
	if err != nil {
		return err
	}

	big, payload, logicalSize, err := db.prepareValue(t, value)
	if err != nil {
		return err
	}

	idx, exact := searchLeaf(leafM, key)
	if exact {
		deleteNode(leafM.pg(), idx)
	} else {
		t.entries++
	}

	rel := key[len(leafM.prefix):]
	size := recordSize(false, len(rel), logicalSize, big)
	if size+2 <= leafM.pg().freeSpace() {
		addNode(leafM.pg(), idx, false, rel, 0, payload, logicalSize, big)
		return nil
	}
	full := append([]byte(nil), key...)
	return t.split(leafM, pendingInsert{idx: idx, key: full, payload: payload, logicalSize: logicalSize, big: big})
}

// deleteLocked removes key within an already-open write transaction,
// returning its previous value.
func (db *DB) deleteLocked(t *Txn, key []byte) ([]byte, error) {
	leafM, err := t.searchPage(key, true, nil)
	if err != nil {
		return nil, err
	}
	idx, exact := searchLeaf(leafM, key)
	if !exact {
		return nil, ErrNotFound
	}
	n := leafM.pg().nodeAt(idx)
	var prev []byte
	if n.isBigData() {
		prev, err = db.readOverflow(t, n.overflowHead(), n.dataSize())
		if err != nil {
			return nil, err
		}
	} else {
		prev = append([]byte(nil), n.inlineData()...)
	}
	deleteNode(leafM.pg(), idx)
	t.entries--
	if err := t.rebalance(leafM); err != nil {
		return nil, err
	}
	return prev, nil
}

// split redistributes m's records plus one pending insertion across m
// and a freshly allocated right sibling, installing a separator into
// the parent (recursing if the parent itself is full, or creating a
// new root if m had none). It reports only an error; it does not tell
// the caller which page or index now holds the pending record.
func (t *Txn) split(m *mpage, pend pendingInsert) error {
	db := t.db
	branch := m.pg().isBranch()

	if m.parent == nil {
		parent := newMpage(t.nextPgno, db.psize, pfBranch)
		t.nextPgno++
		parent.dirty = true
		t.dirty = append(t.dirty, parent)
		db.cache.insert(parent)
		t.branchPages++
		addNode(parent.pg(), 0, true, nil, m.pno, nil, 0, false)
		m.parent = parent
		m.parentIdx = 0
		m.prefix = nil
		t.root = parent.pno
		t.depth++
	}

	oldPrefix := append([]byte(nil), m.prefix...)
	oldData := append([]byte(nil), m.data...)
	oldPage := page{data: oldData}
	numOld := oldPage.numKeys()

	recs := make([]splitRec, 0, numOld+1)
	inserted := false
	for i := 0; i < numOld; i++ {
		if i == pend.idx {
			recs = append(recs, splitRec{key: pend.key, child: pend.child, payload: pend.payload, logicalSize: pend.logicalSize, big: pend.big})
			inserted = true
		}
		n := oldPage.nodeAt(i)
		full := make([]byte, 0, len(oldPrefix)+len(n.key()))
		full = append(full, oldPrefix...)
		full = append(full, n.key()...)
		if branch {
			recs = append(recs, splitRec{key: full, child: n.childPgno()})
		} else {
			recs = append(recs, splitRec{
				key:         full,
				payload:     append([]byte(nil), n.inlineData()...),
				logicalSize: n.dataSize(),
				big:         n.isBigData(),
			})
		}
	}
	if !inserted {
		recs = append(recs, splitRec{key: pend.key, child: pend.child, payload: pend.payload, logicalSize: pend.logicalSize, big: pend.big})
	}

	// The split boundary is chosen against the page's pre-insertion key
	// count (numOld), not the post-insertion count: every original-index
	// record k classifies as left iff k < splitIdxOld, and the pending
	// record classifies the same way against its own original-index
	// position (pend.idx). Recomputing the boundary from len(recs)
	// instead would shift the split point whenever pend.idx falls at or
	// past splitIdxOld.
	splitIdxOld := numOld/2 + 1
	if splitIdxOld < 1 {
		splitIdxOld = 1
	}
	if splitIdxOld > numOld {
		splitIdxOld = numOld
	}
	splitIdx := splitIdxOld
	if pend.idx < splitIdxOld {
		splitIdx++
	}
	if splitIdx < 1 {
		splitIdx = 1
	}
	if splitIdx > len(recs)-1 {
		splitIdx = len(recs) - 1
	}

	var sep []byte
	if branch {
		sep = recs[splitIdx].key
	} else {
		sep = minimalSeparator(recs[splitIdx-1].key, recs[splitIdx].key)
	}

	right := newMpage(t.nextPgno, db.psize, m.pg().flags()&(pfBranch|pfLeaf))
	t.nextPgno++
	right.dirty = true
	t.dirty = append(t.dirty, right)
	db.cache.insert(right)
	if branch {
		t.branchPages++
	} else {
		t.leafPages++
	}

	initPage(m.data, m.pno, m.pg().flags()&(pfBranch|pfLeaf), db.psize)

	parent := m.parent
	parentIdx := m.parentIdx
	if err := t.insertBranchSeparator(parent, parentIdx+1, sep, right.pno); err != nil {
		return err
	}

	if err := t.relink(m, recs[0].key); err != nil {
		return err
	}
	if err := t.relink(right, recs[splitIdx].key); err != nil {
		return err
	}

	writeHalf := func(dst *mpage, items []splitRec) {
		p := dst.pg()
		for i, r := range items {
			if branch && i == 0 {
				addNode(p, 0, true, nil, r.child, nil, 0, false)
				continue
			}
			rel := r.key[len(dst.prefix):]
			if branch {
				addNode(p, i, true, rel, r.child, nil, 0, false)
			} else {
				addNode(p, i, false, rel, 0, r.payload, r.logicalSize, r.big)
			}
		}
	}
	writeHalf(m, recs[:splitIdx])
	writeHalf(right, recs[splitIdx:])
	return nil
}

// insertBranchSeparator inserts a branch node (fullKey, child) at
// position atIdx in parent, splitting parent if it lacks room.
func (t *Txn) insertBranchSeparator(parent *mpage, atIdx int, fullKey []byte, child pgno) error {
	if atIdx == 0 {
		return newErr(Corrupt, "attempted to insert an explicit separator at branch slot 0")
	}
	rel := fullKey[len(parent.prefix):]
	size := recordSize(true, len(rel), 0, false)
	if size+2 <= parent.pg().freeSpace() {
		addNode(parent.pg(), atIdx, true, rel, child, nil, 0, false)
		return nil
	}
	full := append([]byte(nil), fullKey...)
	return t.split(parent, pendingInsert{idx: atIdx, key: full, child: child})
}

// rebalance restores the fill invariant on the path from m up to the
// root after a deletion. It collapses the root when it becomes empty
// or has a single child, and otherwise borrows from or merges with a
// sibling whenever a non-root page's fill drops below threshold.
func (t *Txn) rebalance(m *mpage) error {
	for {
		if m.parent == nil {
			p := m.pg()
			if p.isLeaf() && p.numKeys() == 0 {
				t.root = invalidPgno
				t.depth = 0
				t.leafPages--
				return nil
			}
			if p.isBranch() && p.numKeys() == 1 {
				child, err := t.getPage(p.nodeAt(0).childPgno())
				if err != nil {
					return err
				}
				if !child.dirty {
					child = t.touch(child)
				}
				child.parent = nil
				child.parentIdx = 0
				child.prefix = nil
				t.root = child.pno
				t.branchPages--
				t.depth--
				m = child
				continue
			}
			return nil
		}

		p := m.pg()
		if !belowFillThreshold(t.db.psize, p) {
			return nil
		}

		parent := m.parent
		idx := m.parentIdx
		var siblingIdx int
		rightSibling := idx+1 < parent.pg().numKeys()
		if rightSibling {
			siblingIdx = idx + 1
		} else {
			siblingIdx = idx - 1
		}
		if siblingIdx < 0 {
			// m is an only child: its parent is itself at most
			// single-child and will be handled by the root-collapse
			// case, or by this same check one level further up.
			if !parent.dirty {
				parent = t.touch(parent)
			}
			m = parent
			continue
		}

		sibPno := parent.pg().nodeAt(siblingIdx).childPgno()
		sib, err := t.getPage(sibPno)
		if err != nil {
			return err
		}
		sib.parent = parent
		sib.parentIdx = siblingIdx
		if !sib.dirty {
			sib = t.touch(sib)
		}
		sib.prefix = computeEffectivePrefix(sib)

		var left, right *mpage
		var leftIdx, rightIdx int
		if rightSibling {
			left, right = m, sib
			leftIdx, rightIdx = idx, siblingIdx
		} else {
			left, right = sib, m
			leftIdx, rightIdx = siblingIdx, idx
		}

		combinedFill := pageFill(t.db.psize, left.pg()) + pageFill(t.db.psize, right.pg())
		if combinedFill < 1000 {
			if err := t.mergePages(parent, leftIdx, rightIdx, left, right); err != nil {
				return err
			}
			m = parent
			continue
		}
		if err := t.moveNode(parent, leftIdx, rightIdx, left, right, rightSibling); err != nil {
			return err
		}
		return nil
	}
}

// recsOf extracts m's full logical records (leaf or branch).
func recsOf(m *mpage) []splitRec {
	p := m.pg()
	n := p.numKeys()
	branch := p.isBranch()
	out := make([]splitRec, n)
	for i := 0; i < n; i++ {
		nd := p.nodeAt(i)
		full := fullKey(m, i)
		cp := append([]byte(nil), full...)
		if branch {
			out[i] = splitRec{key: cp, child: nd.childPgno()}
		} else {
			out[i] = splitRec{key: cp, payload: append([]byte(nil), nd.inlineData()...), logicalSize: nd.dataSize(), big: nd.isBigData()}
		}
	}
	return out
}

// mergePages appends right's records onto left, drops right's
// separator and child pointer from parent, and recurses rebalance on
// the parent (it may now itself be underfull or, if it was the root,
// collapsible).
func (t *Txn) mergePages(parent *mpage, leftIdx, rightIdx int, left, right *mpage) error {
	branch := left.pg().isBranch()
	leftRecs := recsOf(left)
	rightRecs := recsOf(right)
	all := append(leftRecs, rightRecs...)

	initPage(left.data, left.pno, left.pg().flags()&(pfBranch|pfLeaf), t.db.psize)

	deleteNode(parent.pg(), rightIdx)

	anchor := all[0].key
	if err := t.relink(left, anchor); err != nil {
		return err
	}

	p := left.pg()
	for i, r := range all {
		if branch && i == 0 {
			addNode(p, 0, true, nil, r.child, nil, 0, false)
			continue
		}
		rel := r.key[len(left.prefix):]
		if branch {
			addNode(p, i, true, rel, r.child, nil, 0, false)
		} else {
			addNode(p, i, false, rel, 0, r.payload, r.logicalSize, r.big)
		}
	}

	if branch {
		t.branchPages--
	} else {
		t.leafPages--
	}
	_ = leftIdx
	return t.rebalance(parent)
}

// moveNode relocates one record across the parent-separator boundary
// between a deficient page and a richer neighbor: the neighbor's
// outermost record moves over, and the separator is rewritten to
// match. fromRight reports whether the borrowed record came from the
// right page (the donor being m's right sibling) or the left.
func (t *Txn) moveNode(parent *mpage, leftIdx, rightIdx int, left, right *mpage, fromRight bool) error {
	branch := left.pg().isBranch()
	leftRecs := recsOf(left)
	rightRecs := recsOf(right)

	if fromRight {
		moved := rightRecs[0]
		rightRecs = rightRecs[1:]
		leftRecs = append(leftRecs, moved)
	} else {
		n := len(leftRecs)
		moved := leftRecs[n-1]
		leftRecs = leftRecs[:n-1]
		rightRecs = append([]splitRec{moved}, rightRecs...)
	}

	initPage(left.data, left.pno, left.pg().flags()&(pfBranch|pfLeaf), t.db.psize)
	initPage(right.data, right.pno, right.pg().flags()&(pfBranch|pfLeaf), t.db.psize)

	var sep []byte
	if branch {
		sep = rightRecs[0].key
	} else {
		sep = minimalSeparator(leftRecs[len(leftRecs)-1].key, rightRecs[0].key)
	}
	rel := sep[len(parent.prefix):]
	updateNodeKey(parent.pg(), rightIdx, true, rel, right.pno, nil, 0, false)

	if err := t.relink(left, leftRecs[0].key); err != nil {
		return err
	}
	if err := t.relink(right, rightRecs[0].key); err != nil {
		return err
	}

	write := func(dst *mpage, items []splitRec) {
		p := dst.pg()
		for i, r := range items {
			if branch && i == 0 {
				addNode(p, 0, true, nil, r.child, nil, 0, false)
				continue
			}
			rl := r.key[len(dst.prefix):]
			if branch {
				addNode(p, i, true, rl, r.child, nil, 0, false)
			} else {
				addNode(p, i, false, rl, 0, r.payload, r.logicalSize, r.big)
			}
		}
	}
	write(left, leftRecs)
	write(right, rightRecs)
	_ = leftIdx
	return nil
}
