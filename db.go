package ptreedb

import "sync"

// DB is a handle to one open database file. A DB supports any number
// of concurrent read-only transactions plus at most one write
// transaction at a time, enforced both in-process (by wmu) and
// across processes (by an advisory exclusive file lock).
type DB struct {
	path  string
	file  rawFile
	flags OpenFlags
	psize int

	cache *pageCache

	wmu        sync.Mutex
	writerBusy bool

	mu         sync.Mutex
	meta       metaBody
	metaPno    pgno
	nextPgno   pgno
	fixPadding bool
	stale      bool
	closed     bool
}

// Open opens (creating if necessary) the database file at path. A
// brand-new file is initialized with an empty tree at defaultPageSize;
// an existing file's page size and most recent valid meta page are
// recovered per the backward meta scan.
func Open(path string, flags OpenFlags) (*DB, error) {
	rdonly := flags&RDONLY != 0
	rf, err := openRawFile(path, rdonly, 0o644)
	if err != nil {
		return nil, wrapErr(IOError, "open file", err)
	}

	size, err := rf.Size()
	if err != nil {
		rf.Close()
		return nil, wrapErr(IOError, "stat file", err)
	}

	db := &DB{path: path, file: rf, flags: flags}

	if size == 0 {
		if rdonly {
			rf.Close()
			return nil, newErr(InvalidArgument, "cannot create a new database in read-only mode")
		}
		db.psize = defaultPageSize
		hdr := make([]byte, db.psize)
		writeHeaderPage(hdr, db.psize)
		if n, err := rf.WriteAt(hdr, 0); err != nil || n != len(hdr) {
			rf.Close()
			return nil, wrapErr(IOError, "write header page", err)
		}
		body := metaBody{root: invalidPgno, prevMeta: invalidPgno, revisions: 1}
		meta := encodeMetaPage(db.psize, 1, body)
		if n, err := rf.WriteAt(meta, int64(db.psize)); err != nil || n != len(meta) {
			rf.Close()
			return nil, wrapErr(IOError, "write initial meta page", err)
		}
		if err := rf.Sync(); err != nil {
			rf.Close()
			return nil, wrapErr(IOError, "fsync new database", err)
		}
		db.meta = body
		db.metaPno = 1
		db.nextPgno = 2
	} else {
		hdr := make([]byte, minPageSize)
		n, err := rf.ReadAt(hdr, 0)
		if err != nil || n != len(hdr) {
			rf.Close()
			return nil, wrapErr(IOError, "read header page", err)
		}
		psize, herr := readHeaderPage(hdr)
		if herr != nil {
			rf.Close()
			return nil, herr
		}
		db.psize = psize

		om, err := readMeta(rf, db.psize)
		if err != nil {
			rf.Close()
			return nil, err
		}
		db.meta = om.body
		db.metaPno = om.pno
		db.nextPgno = om.nextPgno
		db.fixPadding = om.fixPadding
		db.stale = om.stale
	}

	db.cache = newPageCache(defaultMaxCache)
	return db, nil
}

// Close releases the database's resources. It does not wait for any
// in-flight transaction; callers must ensure none are outstanding.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	return db.file.Close()
}

// SetCacheSize adjusts the page cache's target capacity.
func (db *DB) SetCacheSize(n int) {
	db.cache.setMaxCache(n)
}

// Sync forces a durability barrier independent of any transaction.
func (db *DB) Sync() error {
	if err := db.file.Sync(); err != nil {
		return wrapErr(IOError, "sync", err)
	}
	return nil
}

func (db *DB) acquireWriter() error {
	db.wmu.Lock()
	if db.writerBusy {
		db.wmu.Unlock()
		return ErrBusy
	}
	db.writerBusy = true
	db.wmu.Unlock()

	if err := db.file.TryLockExclusive(); err != nil {
		db.wmu.Lock()
		db.writerBusy = false
		db.wmu.Unlock()
		return err
	}
	return nil
}

func (db *DB) releaseWriter() {
	db.file.Unlock()
	db.wmu.Lock()
	db.writerBusy = false
	db.wmu.Unlock()
}

// Begin starts a new transaction. At most one writable transaction
// may be open at a time; a second concurrent attempt fails with Busy.
func (db *DB) Begin(writable bool) (*Txn, error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil, newErr(InvalidArgument, "database is closed")
	}
	if db.stale {
		db.mu.Unlock()
		return nil, ErrStale
	}
	if writable && db.flags&RDONLY != 0 {
		db.mu.Unlock()
		return nil, wrapErr(Perm, "cannot begin a write transaction on a read-only database", nil)
	}
	snapshot := db.meta
	nextPgno := db.nextPgno
	db.mu.Unlock()

	if writable {
		if err := db.acquireWriter(); err != nil {
			return nil, err
		}
	}

	return &Txn{
		db:            db,
		writable:      writable,
		root:          snapshot.root,
		nextPgno:      nextPgno,
		depth:         snapshot.depth,
		branchPages:   snapshot.branchPages,
		leafPages:     snapshot.leafPages,
		overflowPages: snapshot.overflowPages,
		revisions:     snapshot.revisions,
		entries:       snapshot.entries,
	}, nil
}

// Get looks up key. If txn is nil, an implicit read-only transaction
// wraps the call.
func (db *DB) Get(txn *Txn, key []byte) ([]byte, error) {
	if len(key) == 0 || len(key) > maxKeySize {
		return nil, newErr(InvalidArgument, "key length out of range")
	}
	t := txn
	if t == nil {
		var err error
		t, err = db.Begin(false)
		if err != nil {
			return nil, err
		}
		defer t.Abort()
	} else if err := t.checkUsable(); err != nil {
		return nil, err
	}

	leafM, err := t.searchPage(key, false, nil)
	if err != nil {
		return nil, err
	}
	idx, exact := searchLeaf(leafM, key)
	if !exact {
		return nil, ErrNotFound
	}
	n := leafM.pg().nodeAt(idx)
	if n.isBigData() {
		return db.readOverflow(t, n.overflowHead(), n.dataSize())
	}
	return append([]byte(nil), n.inlineData()...), nil
}

// Put inserts or replaces key's value. If txn is nil, an implicit
// write transaction wraps the call and is committed on success.
func (db *DB) Put(txn *Txn, key, value []byte) error {
	if len(key) == 0 || len(key) > maxKeySize {
		return newErr(InvalidArgument, "key length out of range")
	}
	auto := txn == nil
	var t *Txn
	var err error
	if auto {
		t, err = db.Begin(true)
		if err != nil {
			return err
		}
	} else {
		t = txn
		if err := t.checkUsable(); err != nil {
			return err
		}
		if !t.writable {
			return wrapErr(Perm, "put on a read-only transaction", nil)
		}
	}

	if err := db.putLocked(t, key, value); err != nil {
		t.errored = true
		if auto {
			t.Abort()
		}
		return err
	}
	if auto {
		return t.Commit()
	}
	return nil
}

// Delete removes key, returning its previous value. If txn is nil, an
// implicit write transaction wraps the call and is committed on
// success.
func (db *DB) Delete(txn *Txn, key []byte) ([]byte, error) {
	if len(key) == 0 || len(key) > maxKeySize {
		return nil, newErr(InvalidArgument, "key length out of range")
	}
	auto := txn == nil
	var t *Txn
	var err error
	if auto {
		t, err = db.Begin(true)
		if err != nil {
			return nil, err
		}
	} else {
		t = txn
		if err := t.checkUsable(); err != nil {
			return nil, err
		}
		if !t.writable {
			return nil, wrapErr(Perm, "delete on a read-only transaction", nil)
		}
	}

	prev, err := db.deleteLocked(t, key)
	if err != nil {
		t.errored = true
		if auto {
			t.Abort()
		}
		return nil, err
	}
	if auto {
		if cerr := t.Commit(); cerr != nil {
			return nil, cerr
		}
	}
	return prev, nil
}

// Compare exposes the store's canonical key ordering.
func (db *DB) Compare(a, b []byte) int {
	return cmpKeys(a, b)
}
