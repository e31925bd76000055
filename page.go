package ptreedb

import "encoding/binary"

// pageHeaderSize is the fixed common page header: pgno(4) + flags(2) +
// a 4-byte union (lower/upper for branch & leaf pages, next-page link
// for overflow pages).
const pageHeaderSize = 10

// nodeHeaderSize is the fixed node record header: a 4-byte union
// (child pgno for branch nodes, data size for leaf nodes), a 2-byte
// key size, a 1-byte flags field and 1 byte of padding.
const nodeHeaderSize = 8

// page is a view over one page-sized byte slice. It never owns the
// slice's lifetime; mpage does.
type page struct {
	data []byte
}

func (p page) pageNo() pgno {
	return pgno(binary.LittleEndian.Uint32(p.data[0:4]))
}

func (p page) setPageNo(n pgno) {
	binary.LittleEndian.PutUint32(p.data[0:4], uint32(n))
}

func (p page) flags() pageFlags {
	return pageFlags(binary.LittleEndian.Uint16(p.data[4:6]))
}

func (p page) setFlags(f pageFlags) {
	binary.LittleEndian.PutUint16(p.data[4:6], uint16(f))
}

func (p page) isBranch() bool   { return p.flags()&pfBranch != 0 }
func (p page) isLeaf() bool     { return p.flags()&pfLeaf != 0 }
func (p page) isOverflow() bool { return p.flags()&pfOverflow != 0 }
func (p page) isMeta() bool     { return p.flags()&pfMeta != 0 }
func (p page) isHead() bool     { return p.flags()&pfHead != 0 }

// lower/upper only apply to branch and leaf pages.
func (p page) lower() uint16 { return binary.LittleEndian.Uint16(p.data[6:8]) }
func (p page) upper() uint16 { return binary.LittleEndian.Uint16(p.data[8:10]) }

func (p page) setLower(v uint16) { binary.LittleEndian.PutUint16(p.data[6:8], v) }
func (p page) setUpper(v uint16) { binary.LittleEndian.PutUint16(p.data[8:10], v) }

// nextOverflow/setNextOverflow only apply to overflow pages; they
// alias the same 4 bytes as lower/upper.
func (p page) nextOverflow() pgno {
	return pgno(binary.LittleEndian.Uint32(p.data[6:10]))
}

func (p page) setNextOverflow(n pgno) {
	binary.LittleEndian.PutUint32(p.data[6:10], uint32(n))
}

// numKeys returns the number of node slots on a branch/leaf page.
func (p page) numKeys() int {
	return (int(p.lower()) - pageHeaderSize) / 2
}

// initPage resets a page to empty with the given flags.
func initPage(data []byte, pno pgno, flags pageFlags, psize int) page {
	p := page{data: data}
	p.setPageNo(pno)
	p.setFlags(flags)
	if flags&(pfBranch|pfLeaf) != 0 {
		p.setLower(pageHeaderSize)
		p.setUpper(uint16(psize))
	}
	return p
}

// slotOffset returns the byte offset (from page start) of node i's
// record, as stored in the slot array.
func (p page) slotOffset(i int) uint16 {
	off := pageHeaderSize + i*2
	return binary.LittleEndian.Uint16(p.data[off : off+2])
}

func (p page) setSlotOffset(i int, v uint16) {
	off := pageHeaderSize + i*2
	binary.LittleEndian.PutUint16(p.data[off:off+2], v)
}

// nodeAt returns the node record at slot i.
func (p page) nodeAt(i int) node {
	off := p.slotOffset(i)
	return node{data: p.data[off:]}
}

// freeSpace is the number of unused bytes between the slot array and
// the node-record region.
func (p page) freeSpace() int {
	return int(p.upper()) - int(p.lower())
}

// pageFill returns PAGEFILL in per-mille: the fraction of the page's
// usable area (beyond the header) that is occupied by records.
func pageFill(psize int, p page) int {
	usable := psize - pageHeaderSize
	if usable <= 0 {
		return 1000
	}
	used := usable - p.freeSpace()
	return used * 1000 / usable
}

func belowFillThreshold(psize int, p page) bool {
	return pageFill(psize, p) < fillThreshold
}

// node is a view over one node record: header + key + (leaf) data.
type node struct {
	data []byte
}

// union returns the 4-byte header union: child pgno for a branch
// node, data size for a leaf node.
func (n node) union() uint32 {
	return binary.LittleEndian.Uint32(n.data[0:4])
}

func (n node) setUnion(v uint32) {
	binary.LittleEndian.PutUint32(n.data[0:4], v)
}

func (n node) childPgno() pgno     { return pgno(n.union()) }
func (n node) dataSize() int       { return int(n.union()) }
func (n node) setChildPgno(c pgno) { n.setUnion(uint32(c)) }
func (n node) setDataSize(s int)   { n.setUnion(uint32(s)) }

func (n node) ksize() uint16 {
	return binary.LittleEndian.Uint16(n.data[4:6])
}

func (n node) setKsize(v uint16) {
	binary.LittleEndian.PutUint16(n.data[4:6], v)
}

func (n node) nflags() nodeFlags     { return nodeFlags(n.data[6]) }
func (n node) setNflags(f nodeFlags) { n.data[6] = byte(f) }

func (n node) isBigData() bool { return n.nflags()&fBigData != 0 }

// key returns the node's stored (prefix-relative) key bytes.
func (n node) key() []byte {
	return n.data[nodeHeaderSize : nodeHeaderSize+int(n.ksize())]
}

// inlineData returns the leaf node's inline payload: the full value
// for a normal node, or the 4-byte overflow head pgno for a
// F_BIGDATA node.
func (n node) inlineData() []byte {
	start := nodeHeaderSize + int(n.ksize())
	if n.isBigData() {
		return n.data[start : start+4]
	}
	return n.data[start : start+n.dataSize()]
}

func (n node) overflowHead() pgno {
	return pgno(binary.LittleEndian.Uint32(n.inlineData()))
}

// recordSize computes the total on-page byte size of a node record
// given its key length, and either inline data length (leaf, not
// big) or a fixed 4-byte overflow pointer (leaf, big) or 0 extra
// (branch).
func recordSize(branch bool, ksize int, dataLen int, big bool) int {
	if branch {
		return nodeHeaderSize + ksize
	}
	if big {
		return nodeHeaderSize + ksize + 4
	}
	return nodeHeaderSize + ksize + dataLen
}

// nodeRecordSize returns the exact on-page byte size of slot i's
// record, needed to compact the data region on delete.
func (p page) nodeRecordSize(i int) int {
	n := p.nodeAt(i)
	if p.isBranch() {
		return nodeHeaderSize + int(n.ksize())
	}
	if n.isBigData() {
		return nodeHeaderSize + int(n.ksize()) + 4
	}
	return nodeHeaderSize + int(n.ksize()) + n.dataSize()
}

// addNode reserves space at the top of the page's free region for a
// new record, writes it, and inserts its slot at index i, shifting
// higher slots up. For a branch node, child is the child page number
// and payload/logicalSize/big are ignored. For a leaf node, payload
// is either the full inline value (big == false) or the 4-byte
// overflow head page number (big == true), and logicalSize is the
// value's true size (the same as len(payload) unless big).
func addNode(p page, i int, branch bool, key []byte, child pgno, payload []byte, logicalSize int, big bool) {
	ksize := len(key)
	storeLen := 0
	if !branch {
		if big {
			storeLen = 4
		} else {
			storeLen = len(payload)
		}
	}
	size := nodeHeaderSize + ksize + storeLen
	off := p.upper() - uint16(size)
	p.setUpper(off)

	rec := node{data: p.data[off : int(off)+size]}
	if branch {
		rec.setChildPgno(child)
	} else {
		rec.setDataSize(logicalSize)
	}
	rec.setKsize(uint16(ksize))
	if big {
		rec.setNflags(fBigData)
	} else {
		rec.setNflags(0)
	}
	copy(rec.data[nodeHeaderSize:nodeHeaderSize+ksize], key)
	if !branch {
		copy(rec.data[nodeHeaderSize+ksize:], payload)
	}

	n := p.numKeys()
	for j := n; j > i; j-- {
		p.setSlotOffset(j, p.slotOffset(j-1))
	}
	p.setSlotOffset(i, off)
	p.setLower(p.lower() + 2)
}

// deleteNode removes slot i, compacting the data region by shifting
// every record at a lower address (i.e. allocated after it) up by
// the deleted record's size, and adjusting the slot offsets that
// pointed below it.
func deleteNode(p page, i int) {
	off := p.slotOffset(i)
	size := uint16(p.nodeRecordSize(i))
	upper := p.upper()

	copy(p.data[upper+size:off+size], p.data[upper:off])

	n := p.numKeys()
	for j := 0; j < n; j++ {
		so := p.slotOffset(j)
		if so < off {
			p.setSlotOffset(j, so+size)
		}
	}
	for j := i; j < n-1; j++ {
		p.setSlotOffset(j, p.slotOffset(j+1))
	}
	p.setLower(p.lower() - 2)
	p.setUpper(upper + size)
}

// updateNodeKey replaces slot i's key (and, for a leaf, its value) in
// place: the record is removed and a fresh one is written at the same slot
// index, which naturally handles a ksize change.
func updateNodeKey(p page, i int, branch bool, key []byte, child pgno, payload []byte, logicalSize int, big bool) {
	deleteNode(p, i)
	addNode(p, i, branch, key, child, payload, logicalSize, big)
}
