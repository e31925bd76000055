package ptreedb

import (
	"encoding/binary"
	"os"
)

// CompactStats summarizes a completed compaction.
type CompactStats struct {
	PagesBefore uint64
	PagesAfter  uint64
	BytesBefore int64
	BytesAfter  int64
}

// Compact rewrites the live tree into a fresh file at dstPath via a
// recursive depth-first copy that renumbers pages densely from 1,
// dropping every page made unreachable by prior copy-on-write
// mutation. The copy is written to dstPath+".tmp", fsynced, and
// atomically renamed to dstPath. When dstPath is db's own path, it
// then writes a tombstone meta page into the old file handle and marks
// db stale, so any later Begin on db returns STALE; for any other
// dstPath the original file is left untouched.
//
// The source is read through a write transaction, not a read-only
// one: compaction holds the exclusive file lock for the whole copy
// phase, so no concurrent writer can commit new pages to the original
// file while the copy is in flight and then have that commit silently
// discarded when the compacted file is renamed over it.
func (db *DB) Compact(dstPath string) (CompactStats, error) {
	rtxn, err := db.Begin(true)
	if err != nil {
		return CompactStats{}, err
	}
	defer rtxn.Abort()

	tmpPath := dstPath + ".tmp"
	dst, err := openRawFile(tmpPath, false, 0o644)
	if err != nil {
		return CompactStats{}, wrapErr(IOError, "open compaction target", err)
	}

	hdr := make([]byte, db.psize)
	writeHeaderPage(hdr, db.psize)
	if n, err := dst.WriteAt(hdr, 0); err != nil || n != len(hdr) {
		dst.Close()
		os.Remove(tmpPath)
		return CompactStats{}, wrapErr(IOError, "write header page", err)
	}

	c := &compactor{src: rtxn, dst: dst, psize: db.psize, next: 1}
	var newRoot pgno = invalidPgno
	if rtxn.root != invalidPgno {
		newRoot, err = c.copyPage(rtxn.root)
		if err != nil {
			dst.Close()
			os.Remove(tmpPath)
			return CompactStats{}, err
		}
	}

	body := metaBody{
		root:          newRoot,
		prevMeta:      invalidPgno,
		branchPages:   c.branchPages,
		leafPages:     c.leafPages,
		overflowPages: c.overflowPages,
		revisions:     rtxn.revisions + 1,
		depth:         rtxn.depth,
		entries:       rtxn.entries,
	}
	metaData := encodeMetaPage(db.psize, c.next, body)
	if n, err := dst.WriteAt(metaData, int64(c.next)*int64(db.psize)); err != nil || n != len(metaData) {
		dst.Close()
		os.Remove(tmpPath)
		return CompactStats{}, wrapErr(IOError, "write compacted meta page", err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return CompactStats{}, wrapErr(IOError, "fsync compacted file", err)
	}
	dstSize := int64(c.next+1) * int64(db.psize)
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return CompactStats{}, wrapErr(IOError, "close compacted file", err)
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return CompactStats{}, wrapErr(IOError, "rename compacted file into place", err)
	}

	if dstPath == db.path {
		tomb := metaBody{root: invalidPgno, flags: metaTombstone, revisions: rtxn.revisions + 1}
		oldSize, _ := db.file.Size()
		tombPno := pgno(oldSize / int64(db.psize))
		tombData := encodeMetaPage(db.psize, tombPno, tomb)
		db.file.WriteAt(tombData, int64(tombPno)*int64(db.psize))
		db.file.Sync()
		db.mu.Lock()
		db.stale = true
		db.mu.Unlock()
	}

	beforeSize, _ := db.file.Size()
	return CompactStats{
		PagesBefore: uint64(db.nextPgno),
		PagesAfter:  uint64(c.next + 1),
		BytesBefore: beforeSize,
		BytesAfter:  dstSize,
	}, nil
}

// compactor implements the recursive depth-first page copy. Every
// visited page is assigned the next dense page number in dst when it
// is first reached; a branch page is written only after its child
// pointers have been rewritten to the new numbering on the way back
// up.
type compactor struct {
	src   *Txn
	dst   rawFile
	psize int
	next  pgno

	branchPages, leafPages, overflowPages uint64
}

func (c *compactor) copyPage(srcPno pgno) (pgno, error) {
	m, err := c.src.getPage(srcPno)
	if err != nil {
		return invalidPgno, err
	}
	p := m.pg()

	if p.isOverflow() {
		return c.copyOverflowChain(srcPno)
	}

	data := append([]byte(nil), m.data...)
	page := page{data: data}
	newPno := c.next
	c.next++
	page.setPageNo(newPno)

	if page.isBranch() {
		c.branchPages++
		n := page.numKeys()
		for i := 0; i < n; i++ {
			childPno := page.nodeAt(i).childPgno()
			newChild, err := c.copyPage(childPno)
			if err != nil {
				return invalidPgno, err
			}
			page.nodeAt(i).setChildPgno(newChild)
		}
	} else if page.isLeaf() {
		c.leafPages++
		n := page.numKeys()
		for i := 0; i < n; i++ {
			nd := page.nodeAt(i)
			if !nd.isBigData() {
				continue
			}
			oldHead := nd.overflowHead()
			newHead, err := c.copyOverflowChain(oldHead)
			if err != nil {
				return invalidPgno, err
			}
			binary.LittleEndian.PutUint32(nd.inlineData(), uint32(newHead))
		}
	}

	if n, err := c.dst.WriteAt(data, int64(newPno)*int64(c.psize)); err != nil || n != len(data) {
		return invalidPgno, wrapErr(IOError, "write compacted page", err)
	}
	return newPno, nil
}

// copyOverflowChain copies an entire overflow chain, which is always
// laid out contiguously by this call since nothing else allocates
// page numbers in between: the chain's new page numbers are
// therefore exactly c.next, c.next+1, ... in order, letting each page
// be linked to the next before that next page is even visited.
func (c *compactor) copyOverflowChain(srcHead pgno) (pgno, error) {
	var srcPnos []pgno
	for cur := srcHead; cur != invalidPgno; {
		m, err := c.src.getPage(cur)
		if err != nil {
			return invalidPgno, err
		}
		srcPnos = append(srcPnos, cur)
		cur = m.pg().nextOverflow()
	}

	newHead := invalidPgno
	for i, sp := range srcPnos {
		m, err := c.src.getPage(sp)
		if err != nil {
			return invalidPgno, err
		}
		data := append([]byte(nil), m.data...)
		p := page{data: data}
		newPno := c.next
		c.next++
		c.overflowPages++
		p.setPageNo(newPno)
		if i == 0 {
			newHead = newPno
		}
		if i+1 < len(srcPnos) {
			p.setNextOverflow(newPno + 1)
		} else {
			p.setNextOverflow(invalidPgno)
		}
		if n, err := c.dst.WriteAt(data, int64(newPno)*int64(c.psize)); err != nil || n != len(data) {
			return invalidPgno, wrapErr(IOError, "write compacted overflow page", err)
		}
	}
	return newHead, nil
}
