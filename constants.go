package ptreedb

// Database format constants, persisted in the header page.
const (
	// magic identifies a ptreedb data file.
	magic uint32 = 0xB3DBB3DB

	// formatVersion is the on-disk format version.
	formatVersion uint32 = 4

	// minPageSize and maxPageSize bound the page size chosen at
	// creation time from the filesystem's preferred block size.
	minPageSize = 4096
	maxPageSize = 32768

	// defaultPageSize is used when the filesystem block size can't be
	// determined.
	defaultPageSize = 4096

	// btMinKeys is the minimum fill divisor: values longer than
	// psize/btMinKeys bytes are stored in overflow pages, and Check
	// accepts a non-root page below the fill threshold only if it
	// holds at least btMinKeys keys.
	btMinKeys = 4

	// maxKeySize is the largest key this store accepts.
	maxKeySize = 255

	// fillThreshold is PAGEFILL, in per-mille: below this a non-root
	// page must be merged or must borrow from a neighbor.
	fillThreshold = 250
)

// pgno is an on-disk page number. invalidPgno means "no page".
type pgno uint32

const invalidPgno pgno = 0xFFFFFFFF

// pageFlags identify the kind of a page. They are mutually exclusive
// except that the header page additionally never carries any other
// bit.
type pageFlags uint16

const (
	pfHead     pageFlags = 0x01
	pfMeta     pageFlags = 0x02
	pfBranch   pageFlags = 0x04
	pfLeaf     pageFlags = 0x08
	pfOverflow pageFlags = 0x10
)

// nodeFlags is the one-byte flags field of a node record.
type nodeFlags uint8

const (
	// fBigData marks a leaf node whose payload is a 4-byte page
	// number pointing at the head of an overflow chain rather than
	// inline data.
	fBigData nodeFlags = 0x01
)

// metaFlags are flags carried in the meta page body.
type metaFlags uint32

const (
	// metaTombstone marks a meta page written by a compactor against
	// the *old* file, signalling STALE to any opener that is still
	// looking at that file.
	metaTombstone metaFlags = 0x01
)

// OpenFlags configure Open.
type OpenFlags uint32

const (
	// RDONLY opens the database for read-only transactions.
	RDONLY OpenFlags = 0x01

	// NOSYNC skips fsync on commit; durability is then only as good
	// as the OS page cache.
	NOSYNC OpenFlags = 0x02
)

// defaultMaxCache is the default page-cache capacity (number of pages).
const defaultMaxCache = 1024

// maxDirtyBatch is the number of dirty pages per batch when commit
// walks the dirty queue. Each page in a batch is written with its own
// positional write; there is no gathered write.
const maxDirtyBatch = 64
