package ptreedb

// openMeta is what read_meta discovers about a database file at open
// (or re-read) time.
type openMeta struct {
	body       metaBody
	pno        pgno
	fileSize   int64
	nextPgno   pgno
	fixPadding bool
	stale      bool
}

// readMeta implements §4.8: stat the file; an exact one-page file is
// an empty tree; otherwise scan backward from the page just before
// EOF looking for the first structurally valid, hash-verified meta
// page. If the file size isn't a page multiple, a torn trailing
// write is assumed, FIXPADDING is recorded, and next_pgno is rounded
// up past the partial page.
func readMeta(rf rawFile, psize int) (openMeta, error) {
	size, err := rf.Size()
	if err != nil {
		return openMeta{}, wrapErr(IOError, "stat", err)
	}
	if size == int64(psize) {
		return openMeta{
			body:     metaBody{root: invalidPgno, prevMeta: invalidPgno},
			pno:      invalidPgno,
			fileSize: size,
			nextPgno: 1,
		}, nil
	}

	lastFull := size / int64(psize)
	fixPadding := size%int64(psize) != 0
	nextPgno := pgno(lastFull)
	if fixPadding {
		nextPgno = pgno(lastFull + 1)
	}

	buf := make([]byte, psize)
	for p := lastFull - 1; p >= 1; p-- {
		n, err := rf.ReadAt(buf, p*int64(psize))
		if err != nil || n < psize {
			continue
		}
		m, ok := isMetaPage(buf, pgno(p))
		if !ok {
			continue
		}
		return openMeta{
			body:       m,
			pno:        pgno(p),
			fileSize:   size,
			nextPgno:   nextPgno,
			fixPadding: fixPadding,
			stale:      m.flags&metaTombstone != 0,
		}, nil
	}
	return openMeta{}, newErr(Corrupt, "no valid meta page found scanning backward from end of file")
}
