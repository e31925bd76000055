//go:build unix

package ptreedb

import "golang.org/x/sys/unix"

// TryLockExclusive acquires a non-blocking advisory exclusive lock on
// the whole file, enforcing single-writer access. Contention surfaces
// to the caller as BUSY, not as a generic I/O error.
func (o *osFile) TryLockExclusive() error {
	err := unix.Flock(int(o.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		return wrapErr(Busy, "lock held by another writer", err)
	}
	return nil
}

func (o *osFile) Unlock() error {
	return unix.Flock(int(o.f.Fd()), unix.LOCK_UN)
}
