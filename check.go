package ptreedb

import "fmt"

// DBInfo summarizes the current meta page, the same counters a write
// transaction maintains incrementally and commits atomically.
type DBInfo struct {
	Root          pgno
	Revisions     uint64
	Depth         uint32
	Entries       uint64
	BranchPages   uint64
	LeafPages     uint64
	OverflowPages uint64
	NextPgno      pgno
}

// Info reports the database's current meta page without starting a
// transaction of its own beyond the snapshot read.
func (db *DB) Info() (DBInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return DBInfo{}, newErr(InvalidArgument, "database is closed")
	}
	return DBInfo{
		Root:          db.meta.root,
		Revisions:     db.meta.revisions,
		Depth:         db.meta.depth,
		Entries:       db.meta.entries,
		BranchPages:   db.meta.branchPages,
		LeafPages:     db.meta.leafPages,
		OverflowPages: db.meta.overflowPages,
		NextPgno:      db.nextPgno,
	}, nil
}

// Check walks the live tree from the root and reports every violation
// of the invariants a committed tree must hold:
// branch slot 0 carries no explicit key, leaf keys are strictly
// increasing across the whole ordered sequence, every page's
// lower/upper/fill bookkeeping is internally consistent, every node
// record's on-page size matches what its stored fields imply, every
// non-root page meets the fill-or-minkeys floor, and every branch
// child pgno is a page that was actually allocated. It opens and
// aborts its own read-only transaction, so it never blocks a
// concurrent writer.
func (db *DB) Check() ([]string, error) {
	txn, err := db.Begin(false)
	if err != nil {
		return nil, err
	}
	defer txn.Abort()

	if txn.root == invalidPgno {
		return nil, nil
	}
	root, err := txn.getPage(txn.root)
	if err != nil {
		return nil, err
	}
	root.parent = nil
	root.parentIdx = 0
	root.prefix = nil

	c := &checker{txn: txn, psize: db.psize, nextPgno: txn.nextPgno}
	c.walk(root)
	return c.problems, nil
}

type checker struct {
	txn      *Txn
	psize    int
	nextPgno pgno
	problems []string
	prevKey  []byte
}

func (c *checker) add(format string, args ...any) {
	c.problems = append(c.problems, fmt.Sprintf(format, args...))
}

// checkPageBookkeeping validates lower ≤ upper ≤ P, the fill-or-minkeys
// floor for non-root pages, and that every node record's declared
// on-page size accounts for exactly the bytes between the record
// region's bounds (no overlapping or missing records).
func (c *checker) checkPageBookkeeping(m *mpage, isRoot bool) {
	p := m.pg()
	lower, upper := int(p.lower()), int(p.upper())
	if lower > upper || upper > c.psize {
		c.add("page %d: lower=%d upper=%d violates lower <= upper <= %d", m.pno, lower, upper, c.psize)
		return
	}

	if !isRoot {
		numKeys := p.numKeys()
		if belowFillThreshold(c.psize, p) && numKeys < btMinKeys {
			c.add("page %d: below fill threshold (fill=%d) with only %d keys (< BT_MINKEYS=%d)",
				m.pno, pageFill(c.psize, p), numKeys, btMinKeys)
		}
	}

	numKeys := p.numKeys()
	total := 0
	for i := 0; i < numKeys; i++ {
		total += p.nodeRecordSize(i)
	}
	if total != c.psize-upper {
		c.add("page %d: sum of node record sizes (%d) does not match record region size (%d)",
			m.pno, total, c.psize-upper)
	}
}

func (c *checker) walk(m *mpage) {
	isRoot := m.parent == nil
	c.checkPageBookkeeping(m, isRoot)

	p := m.pg()
	if p.isBranch() {
		n0 := p.nodeAt(0)
		if len(n0.key()) != 0 {
			c.add("page %d: branch slot 0 has a non-empty key %q", m.pno, n0.key())
		}
		numKeys := p.numKeys()
		for i := 0; i < numKeys; i++ {
			childPno := p.nodeAt(i).childPgno()
			if childPno == invalidPgno || childPno < 1 || childPno >= c.nextPgno {
				c.add("page %d: child %d at slot %d is out of bounds (next_pgno=%d)", m.pno, childPno, i, c.nextPgno)
				continue
			}
			child, err := c.txn.getPage(childPno)
			if err != nil {
				c.add("page %d: child %d at slot %d: %v", m.pno, childPno, i, err)
				continue
			}
			child.parent = m
			child.parentIdx = i
			child.prefix = computeEffectivePrefix(child)
			c.walk(child)
		}
		return
	}

	numKeys := p.numKeys()
	for i := 0; i < numKeys; i++ {
		k := fullKey(m, i)
		if c.prevKey != nil && cmpKeys(c.prevKey, k) >= 0 {
			c.add("page %d: key %q out of order after %q", m.pno, k, c.prevKey)
		}
		c.prevKey = append([]byte(nil), k...)
	}
}
