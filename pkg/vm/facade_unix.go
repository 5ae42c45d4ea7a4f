//go:build unix
// +build unix

package vm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

var defaultFacade Facade = unixFacade{}

// unixFacade implements Facade over mmap/mprotect/munmap. A Reserve call
// maps n bytes PROT_NONE; Commit raises protection on a sub-range without
// remapping, since the kernel already backs anonymous pages on first
// touch. Decommit lowers protection back to PROT_NONE and advises the
// kernel to drop the physical pages with MADV_DONTNEED.
type unixFacade struct{}

func (unixFacade) Reserve(n uintptr) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(n), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, &Error{Op: "reserve", Err: err}
	}
	return uintptr(unsafe.Pointer(&b[0])), nil
}

func (unixFacade) Commit(addr, n uintptr, prot Protection) error {
	b := byteSliceAt(addr, n)
	if err := unix.Mprotect(b, toUnixProt(prot)); err != nil {
		return &Error{Op: "commit", Err: err}
	}
	return nil
}

func (unixFacade) Decommit(addr, n uintptr) error {
	b := byteSliceAt(addr, n)
	if err := unix.Mprotect(b, unix.PROT_NONE); err != nil {
		return &Error{Op: "decommit", Err: err}
	}
	// Best-effort: MADV_DONTNEED reclaims physical pages immediately on
	// Linux, and is accepted (if ignored) on the other unix targets.
	_ = unix.Madvise(b, unix.MADV_DONTNEED)
	return nil
}

func (unixFacade) Release(addr, n uintptr) error {
	b := byteSliceAt(addr, n)
	if err := unix.Munmap(b); err != nil {
		return &Error{Op: "release", Err: err}
	}
	return nil
}

func (unixFacade) QueryInfo() (Info, error) {
	total, err := totalPhysicalMemory()
	if err != nil {
		return Info{}, &Error{Op: "query_info", Err: err}
	}

	return Info{
		TotalMemory:       uintptr(total),
		CommitSize:        defaultCommitSize,
		PageSize:          uintptr(unix.Getpagesize()),
		DefaultProtection: ProtRead | ProtWrite,
	}, nil
}

func byteSliceAt(addr, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// toUnixProt promotes write-without-read and execute-without-read up to
// include read: mprotect accepts write-only regions on Linux but not
// portably across the unix targets this file builds for (some BSD/Darwin
// variants silently add read anyway), so this module never relies on it.
func toUnixProt(p Protection) int {
	if p&(ProtWrite|ProtExecute) != 0 {
		p |= ProtRead
	}

	prot := unix.PROT_NONE
	if p&ProtRead != 0 {
		prot |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&ProtExecute != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}
