//go:build freebsd || netbsd || openbsd || dragonfly
// +build freebsd netbsd openbsd dragonfly

package vm

const physmemSysctl = "hw.physmem"
