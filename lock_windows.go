//go:build windows

package ptreedb

import (
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const (
	lockfileFailImmediately = 0x00000001
	lockfileExclusiveLock   = 0x00000002
)

// TryLockExclusive mirrors lock_unix.go's Flock-based lock using the
// Win32 LockFileEx API: a non-blocking whole-file advisory exclusive
// lock for single-writer enforcement.
func (o *osFile) TryLockExclusive() error {
	var ov syscall.Overlapped
	r, _, err := procLockFileEx.Call(
		o.f.Fd(),
		uintptr(lockfileExclusiveLock|lockfileFailImmediately),
		0,
		^uintptr(0),
		^uintptr(0),
		uintptr(unsafe.Pointer(&ov)),
	)
	if r == 0 {
		return wrapErr(Busy, "lock held by another writer", err)
	}
	return nil
}

func (o *osFile) Unlock() error {
	var ov syscall.Overlapped
	procUnlockFileEx.Call(
		o.f.Fd(),
		0,
		^uintptr(0),
		^uintptr(0),
		uintptr(unsafe.Pointer(&ov)),
	)
	return nil
}
