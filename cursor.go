package ptreedb

// Cursor walks the tree in key order. It holds a root-to-leaf stack of
// (page, childIndex) frames, pinning every page on the stack (ref++)
// against pruning and against in-place touch() rewrites so its
// position stays valid across a concurrent write within the same
// transaction.
type Cursor struct {
	txn     *Txn
	stack   []cursorFrame
	leaf    *mpage
	leafIdx int
	valid   bool
	started bool
	closed  bool
}

// NewCursor opens a cursor positioned before the first key.
func (txn *Txn) NewCursor() (*Cursor, error) {
	if err := txn.checkUsable(); err != nil {
		return nil, err
	}
	return &Cursor{txn: txn}, nil
}

func (c *Cursor) pinFrame(f cursorFrame) {
	f.page.ref++
}

func (c *Cursor) unpinAll() {
	for _, f := range c.stack {
		f.page.ref--
	}
	if c.leaf != nil {
		c.leaf.ref--
	}
}

// Close releases the cursor's pins. A cursor must not be used after
// Close.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.unpinAll()
	c.stack = nil
	c.leaf = nil
	c.valid = false
	c.closed = true
}

func (c *Cursor) descend(key []byte, frames *[]cursorFrame) (*mpage, error) {
	return c.txn.searchPage(key, false, frames)
}

// sibling moves the cursor to the leaf immediately to the right
// (moveRight == true) or left (moveRight == false) of its current
// leaf, by walking up the stack to the nearest ancestor frame with a
// neighboring child and descending back down its leftmost or
// rightmost spine.
func (c *Cursor) sibling(moveRight bool) (*mpage, error) {
	for len(c.stack) > 0 {
		top := c.stack[len(c.stack)-1]
		var nextIdx int
		ok := false
		if moveRight {
			if top.idx+1 < top.page.pg().numKeys() {
				nextIdx = top.idx + 1
				ok = true
			}
		} else {
			if top.idx > 0 {
				nextIdx = top.idx - 1
				ok = true
			}
		}
		if !ok {
			top.page.ref--
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}
		c.stack[len(c.stack)-1] = cursorFrame{page: top.page, idx: nextIdx}
		childPno := top.page.pg().nodeAt(nextIdx).childPgno()
		child, err := c.txn.getPage(childPno)
		if err != nil {
			return nil, err
		}
		child.parent = top.page
		child.parentIdx = nextIdx
		child.prefix = computeEffectivePrefix(child)
		for {
			p := child.pg()
			if p.isLeaf() {
				child.ref++
				return child, nil
			}
			child.ref++
			c.stack = append(c.stack, cursorFrame{page: child, idx: 0})
			idx := 0
			if !moveRight {
				idx = p.numKeys() - 1
				c.stack[len(c.stack)-1] = cursorFrame{page: child, idx: idx}
			}
			childPno := p.nodeAt(idx).childPgno()
			next, err := c.txn.getPage(childPno)
			if err != nil {
				return nil, err
			}
			next.parent = child
			next.parentIdx = idx
			next.prefix = computeEffectivePrefix(next)
			child = next
		}
	}
	return nil, nil
}

// First positions the cursor on the smallest key in the tree.
func (c *Cursor) First() (bool, error) {
	c.reset()
	if c.txn.root == invalidPgno {
		return false, nil
	}
	cur, err := c.txn.getPage(c.txn.root)
	if err != nil {
		return false, err
	}
	cur.parent = nil
	cur.parentIdx = 0
	cur.prefix = nil
	for {
		p := cur.pg()
		if p.isLeaf() {
			break
		}
		cur.ref++
		c.stack = append(c.stack, cursorFrame{page: cur, idx: 0})
		childPno := p.nodeAt(0).childPgno()
		next, err := c.txn.getPage(childPno)
		if err != nil {
			return false, err
		}
		next.parent = cur
		next.parentIdx = 0
		next.prefix = computeEffectivePrefix(next)
		cur = next
	}
	if cur.pg().numKeys() == 0 {
		c.valid = false
		return false, nil
	}
	cur.ref++
	c.leaf = cur
	c.leafIdx = 0
	c.valid = true
	return true, nil
}

// Position seeks to key, or the smallest key greater than it if key
// is absent. It reports whether an exact match was found.
func (c *Cursor) Position(key []byte) (bool, error) {
	c.reset()
	var frames []cursorFrame
	leafM, err := c.descend(key, &frames)
	if err == ErrNotFound {
		c.valid = false
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, f := range frames {
		f.page.ref++
	}
	c.stack = frames
	idx, exact := searchLeaf(leafM, key)
	if idx >= leafM.pg().numKeys() {
		leafM.ref++
		c.leaf = leafM
		c.leafIdx = idx
		c.valid = false
		if !c.advanceToNextLeaf() {
			return false, nil
		}
		return false, nil
	}
	leafM.ref++
	c.leaf = leafM
	c.leafIdx = idx
	c.valid = true
	return exact, nil
}

// PositionExact seeks to key. If key is absent it reports false and
// leaves the cursor unpositioned (unlike Position, it never lands on
// the next-greater key).
func (c *Cursor) PositionExact(key []byte) (bool, error) {
	c.reset()
	var frames []cursorFrame
	leafM, err := c.descend(key, &frames)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	idx, exact := searchLeaf(leafM, key)
	if !exact {
		return false, nil
	}
	for _, f := range frames {
		f.page.ref++
	}
	c.stack = frames
	leafM.ref++
	c.leaf = leafM
	c.leafIdx = idx
	c.valid = true
	return true, nil
}

// advanceToNextLeaf moves to the first key of the next leaf to the
// right, used internally when Position lands past the end of a leaf.
func (c *Cursor) advanceToNextLeaf() bool {
	if c.leaf != nil {
		c.leaf.ref--
	}
	next, err := c.sibling(true)
	if err != nil || next == nil {
		c.leaf = nil
		c.valid = false
		return false
	}
	c.leaf = next
	c.leafIdx = 0
	c.valid = true
	return true
}

// Next advances the cursor to the next key in order. On a cursor that
// has never been positioned, it behaves as First.
func (c *Cursor) Next() (bool, error) {
	if !c.started {
		return c.First()
	}
	if !c.valid {
		return false, newErr(InvalidArgument, "cursor is not positioned")
	}
	c.leafIdx++
	if c.leafIdx < c.leaf.pg().numKeys() {
		return true, nil
	}
	return c.advanceToNextLeaf(), nil
}

// Get returns the cursor's current key and value.
func (c *Cursor) Get() ([]byte, []byte, error) {
	if !c.valid {
		return nil, nil, newErr(InvalidArgument, "cursor is not positioned")
	}
	key := fullKey(c.leaf, c.leafIdx)
	n := c.leaf.pg().nodeAt(c.leafIdx)
	if n.isBigData() {
		val, err := c.txn.db.readOverflow(c.txn, n.overflowHead(), n.dataSize())
		if err != nil {
			return nil, nil, err
		}
		return append([]byte(nil), key...), val, nil
	}
	return append([]byte(nil), key...), append([]byte(nil), n.inlineData()...), nil
}

func (c *Cursor) reset() {
	c.unpinAll()
	c.stack = nil
	c.leaf = nil
	c.valid = false
	c.started = true
}
