//go:build windows
// +build windows

package vm

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var defaultFacade Facade = windowsFacade{}

// windowsFacade implements Facade over VirtualAlloc/VirtualFree, mirroring
// the Reserve-then-Commit split the original allocator's Windows backend
// uses: MEM_RESERVE with PAGE_NOACCESS, then a second MEM_COMMIT call over
// the sub-range being made live.
type windowsFacade struct{}

func (windowsFacade) Reserve(n uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, n, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return 0, &Error{Op: "reserve", Err: err}
	}
	return addr, nil
}

func (windowsFacade) Commit(addr, n uintptr, prot Protection) error {
	_, err := windows.VirtualAlloc(addr, n, windows.MEM_COMMIT, toWindowsProt(prot))
	if err != nil {
		return &Error{Op: "commit", Err: err}
	}
	return nil
}

func (windowsFacade) Decommit(addr, n uintptr) error {
	if err := windows.VirtualFree(addr, n, windows.MEM_DECOMMIT); err != nil {
		return &Error{Op: "decommit", Err: err}
	}
	return nil
}

func (windowsFacade) Release(addr, _ uintptr) error {
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return &Error{Op: "release", Err: err}
	}
	return nil
}

func (windowsFacade) QueryInfo() (Info, error) {
	var status windows.MemoryStatusEx
	status.Length = uint32(unsafe.Sizeof(status))
	if err := windows.GlobalMemoryStatusEx(&status); err != nil {
		return Info{}, &Error{Op: "query_info", Err: err}
	}

	var sysInfo windows.SystemInfo
	windows.GetSystemInfo(&sysInfo)

	return Info{
		TotalMemory:       uintptr(status.TotalPhys),
		CommitSize:        defaultCommitSize,
		PageSize:          uintptr(sysInfo.PageSize),
		DefaultProtection: ProtRead | ProtWrite,
	}, nil
}

func toWindowsProt(p Protection) uint32 {
	switch {
	case p&ProtExecute != 0 && p&ProtWrite != 0:
		return windows.PAGE_EXECUTE_READWRITE
	case p&ProtExecute != 0 && p&ProtRead != 0:
		return windows.PAGE_EXECUTE_READ
	case p&ProtExecute != 0:
		return windows.PAGE_EXECUTE
	case p&ProtWrite != 0:
		return windows.PAGE_READWRITE
	case p&ProtRead != 0:
		return windows.PAGE_READONLY
	default:
		return windows.PAGE_NOACCESS
	}
}
