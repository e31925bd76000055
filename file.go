package ptreedb

import "os"

// rawFile is the narrow surface the core needs from a file-like
// random-access handle: positional reads, append-style writes,
// fsync, truncate, size, and an advisory exclusive lock. osFile
// implements it over *os.File; openRawFile opens (and, unless
// read-only, creates) the path, and Open and Compact call it with
// mode 0644.
type rawFile interface {
	ReadAt(b []byte, off int64) (int, error)
	WriteAt(b []byte, off int64) (int, error)
	Truncate(size int64) error
	Sync() error
	Size() (int64, error)
	TryLockExclusive() error
	Unlock() error
	Close() error
}

// osFile adapts *os.File to rawFile.
type osFile struct {
	f *os.File
}

func openRawFile(path string, rdonly bool, mode os.FileMode) (*osFile, error) {
	flag := os.O_RDWR | os.O_CREATE
	if rdonly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, mode)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f}, nil
}

func (o *osFile) ReadAt(b []byte, off int64) (int, error)  { return o.f.ReadAt(b, off) }
func (o *osFile) WriteAt(b []byte, off int64) (int, error) { return o.f.WriteAt(b, off) }
func (o *osFile) Truncate(size int64) error                { return o.f.Truncate(size) }
func (o *osFile) Sync() error                              { return o.f.Sync() }
func (o *osFile) Close() error                             { return o.f.Close() }

func (o *osFile) Size() (int64, error) {
	fi, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
