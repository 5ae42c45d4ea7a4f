//go:build darwin || freebsd || netbsd || openbsd || dragonfly
// +build darwin freebsd netbsd openbsd dragonfly

package vm

import "golang.org/x/sys/unix"

func totalPhysicalMemory() (uint64, error) {
	return unix.SysctlUint64(physmemSysctl)
}
