// Package ptreedb is a pure Go embedded key/value store built on a
// copy-on-write, prefix-compressed B+tree.
//
// A database is a single regular file: a header page, followed by a
// growing, append-only sequence of branch/leaf/overflow pages, with
// meta pages interleaved at the tail recording the current tree root.
// Existing pages are never overwritten; every mutation allocates new
// page numbers and atomically swings the root by appending a new,
// hashed meta page. Durability comes from this append-only discipline
// plus fsync, not from a write-ahead log.
//
// Keys are stored prefix-compressed: every branch and leaf page shares
// an implicit prefix derived from its position in the tree, and nodes
// on that page store only the suffix beyond it.
//
// Basic usage:
//
//	db, err := ptreedb.Open("/path/to/db", 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Put(nil, []byte("key"), []byte("value")); err != nil {
//		log.Fatal(err)
//	}
//
//	v, err := db.Get(nil, []byte("key"))
//	if err != nil {
//		log.Fatal(err)
//	}
package ptreedb
