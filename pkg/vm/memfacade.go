package vm

import (
	"errors"
	"unsafe"
)

var (
	errAlreadyReserved = errors.New("fake facade already reserved")
	errSizeMismatch    = errors.New("fake facade reserve size must equal len(buf)")
	errNotReserved     = errors.New("fake facade has no active reservation")
	errOutOfRange      = errors.New("fake facade range outside reservation")
)

// NewFake returns a Facade that treats buf as the entire address space: a
// single Reserve call succeeds for exactly len(buf), Commit and Release are
// bookkeeping only (no protection is actually enforced, since Go gives no
// portable way to fault on an access to a live slice), and Decommit zeroes
// the range in buf.
//
// This is what pkg/arena, pkg/pool, and pkg/tagged exercise their tests
// against, so the suite is deterministic and never touches the real OS
// allocator.
func NewFake(buf []byte) Facade {
	return &fakeFacade{buf: buf, info: Info{
		TotalMemory:       uintptr(len(buf)),
		CommitSize:        defaultCommitSize,
		PageSize:          fakePageSize,
		DefaultProtection: ProtRead | ProtWrite,
	}}
}

const fakePageSize = 4096

type fakeFacade struct {
	buf      []byte
	info     Info
	reserved bool
}

func (f *fakeFacade) Reserve(n uintptr) (uintptr, error) {
	if f.reserved {
		return 0, &Error{Op: "reserve", Err: errAlreadyReserved}
	}
	if n != uintptr(len(f.buf)) {
		return 0, &Error{Op: "reserve", Err: errSizeMismatch}
	}
	f.reserved = true
	return f.base(), nil
}

func (f *fakeFacade) Commit(addr, n uintptr, _ Protection) error {
	return f.checkRange("commit", addr, n)
}

func (f *fakeFacade) Decommit(addr, n uintptr) error {
	if err := f.checkRange("decommit", addr, n); err != nil {
		return err
	}
	// Contents are undefined after a decommit; zeroing makes that concrete
	// and catches callers that read stale data without recommitting.
	off := addr - f.base()
	clear(f.buf[off : off+n])
	return nil
}

func (f *fakeFacade) Release(addr, n uintptr) error {
	if err := f.checkRange("release", addr, n); err != nil {
		return err
	}
	f.reserved = false
	return nil
}

func (f *fakeFacade) QueryInfo() (Info, error) { return f.info, nil }

func (f *fakeFacade) base() uintptr {
	if len(f.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&f.buf[0]))
}

func (f *fakeFacade) checkRange(op string, addr, n uintptr) error {
	if !f.reserved {
		return &Error{Op: op, Err: errNotReserved}
	}
	base := f.base()
	if addr < base || addr+n > base+uintptr(len(f.buf)) {
		return &Error{Op: op, Err: errOutOfRange}
	}
	return nil
}
