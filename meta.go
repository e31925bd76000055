package ptreedb

import (
	"crypto/sha256"
	"encoding/binary"
)

// Header page body: magic, format version, reserved flags, page size.
const headerBodySize = 16

func writeHeaderPage(data []byte, psize int) {
	initPage(data, 0, pfHead, psize)
	b := data[pageHeaderSize:]
	binary.LittleEndian.PutUint32(b[0:4], magic)
	binary.LittleEndian.PutUint32(b[4:8], formatVersion)
	binary.LittleEndian.PutUint32(b[8:12], 0)
	binary.LittleEndian.PutUint32(b[12:16], uint32(psize))
}

// readHeaderPage validates and returns the page size recorded in the
// header page.
func readHeaderPage(data []byte) (int, error) {
	p := page{data: data}
	if !p.isHead() {
		return 0, newErr(Corrupt, "page 0 is not a header page")
	}
	b := data[pageHeaderSize:]
	if binary.LittleEndian.Uint32(b[0:4]) != magic {
		return 0, newErr(Corrupt, "bad magic")
	}
	if binary.LittleEndian.Uint32(b[4:8]) != formatVersion {
		return 0, newErr(Corrupt, "unsupported format version")
	}
	psize := int(binary.LittleEndian.Uint32(b[12:16]))
	if psize < minPageSize || psize > maxPageSize {
		return 0, newErr(Corrupt, "invalid page size in header")
	}
	return psize, nil
}

// metaBodySize is the meta page body: flags(4) + root(4) + prevMeta(4)
// + timestamp(8) + 4 counters(8 each) + depth(4) + entries(8) + hash(32).
const metaBodySize = 4 + 4 + 4 + 8 + 8*4 + 4 + 8 + 32
const metaHashedSize = metaBodySize - 32

// metaBody is the decoded content of a meta page.
type metaBody struct {
	flags         metaFlags
	root          pgno
	prevMeta      pgno
	timestamp     int64
	branchPages   uint64
	leafPages     uint64
	overflowPages uint64
	revisions     uint64
	depth         uint32
	entries       uint64
}

func computeMetaHash(body []byte) [32]byte {
	return sha256.Sum256(body[:metaHashedSize])
}

// encodeMetaBody writes m's fields (and its hash) into a
// metaBodySize-length buffer.
func encodeMetaBody(buf []byte, m metaBody) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.flags))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.root))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.prevMeta))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(m.timestamp))
	binary.LittleEndian.PutUint64(buf[20:28], m.branchPages)
	binary.LittleEndian.PutUint64(buf[28:36], m.leafPages)
	binary.LittleEndian.PutUint64(buf[36:44], m.overflowPages)
	binary.LittleEndian.PutUint64(buf[44:52], m.revisions)
	binary.LittleEndian.PutUint32(buf[52:56], m.depth)
	binary.LittleEndian.PutUint64(buf[56:64], m.entries)
	h := computeMetaHash(buf)
	copy(buf[64:96], h[:])
}

// decodeMetaBody parses and hash-validates a meta body.
func decodeMetaBody(buf []byte) (metaBody, bool) {
	var m metaBody
	m.flags = metaFlags(binary.LittleEndian.Uint32(buf[0:4]))
	m.root = pgno(binary.LittleEndian.Uint32(buf[4:8]))
	m.prevMeta = pgno(binary.LittleEndian.Uint32(buf[8:12]))
	m.timestamp = int64(binary.LittleEndian.Uint64(buf[12:20]))
	m.branchPages = binary.LittleEndian.Uint64(buf[20:28])
	m.leafPages = binary.LittleEndian.Uint64(buf[28:36])
	m.overflowPages = binary.LittleEndian.Uint64(buf[36:44])
	m.revisions = binary.LittleEndian.Uint64(buf[44:52])
	m.depth = binary.LittleEndian.Uint32(buf[52:56])
	m.entries = binary.LittleEndian.Uint64(buf[56:64])

	want := computeMetaHash(buf)
	ok := true
	for i := 0; i < 32; i++ {
		if buf[64+i] != want[i] {
			ok = false
			break
		}
	}
	return m, ok
}

// isMetaPage reports whether data at page pno looks like a
// structurally valid meta page: the META flag is set, root is either
// invalid or strictly less than pno (a meta page can never point at
// itself or a page allocated after it), and its hash validates.
func isMetaPage(data []byte, pno pgno) (metaBody, bool) {
	p := page{data: data}
	if !p.isMeta() {
		return metaBody{}, false
	}
	if p.pageNo() != pno {
		return metaBody{}, false
	}
	body := data[pageHeaderSize : pageHeaderSize+metaBodySize]
	m, ok := decodeMetaBody(body)
	if !ok {
		return metaBody{}, false
	}
	if m.root != invalidPgno && m.root >= pno {
		return metaBody{}, false
	}
	return m, true
}

// encodeMetaPage serializes a full meta page (header + body) into a
// psize-length buffer.
func encodeMetaPage(psize int, pno pgno, m metaBody) []byte {
	data := make([]byte, psize)
	initPage(data, pno, pfMeta, psize)
	encodeMetaBody(data[pageHeaderSize:pageHeaderSize+metaBodySize], m)
	return data
}
