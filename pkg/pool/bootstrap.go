package pool

import (
	"unsafe"

	"github.com/arenakit/memalloc/pkg/arena"
	"github.com/arenakit/memalloc/pkg/errs"
	"github.com/arenakit/memalloc/pkg/vm"
)

var descriptorSize = unsafe.Sizeof(Pool{})

// Bootstrap creates a backing arena via arena.Bootstrap, then carves a
// Pool descriptor out of it and initialises the pool over the arena's
// remaining space.
func Bootstrap(info vm.Info, elementSize uintptr, flags Flags, opts ...arena.Option) (*Pool, error) {
	arenaFlags := arena.Normal
	if flags&FixedSize != 0 {
		arenaFlags = arena.FixedSize
	}

	a, err := arena.Bootstrap(info, arenaFlags, opts...)
	if err != nil {
		return nil, err
	}

	return strap(a, elementSize, flags)
}

// FixedBootstrap is Bootstrap over a caller-supplied buffer.
func FixedBootstrap(elementSize uintptr, buf []byte, flags Flags, opts ...arena.Option) (*Pool, error) {
	flags |= FixedSize

	a, err := arena.FixedBootstrap(buf, arena.Normal, opts...)
	if err != nil {
		return nil, err
	}

	return strap(a, elementSize, flags)
}

func strap(a *arena.Arena, elementSize uintptr, flags Flags) (*Pool, error) {
	ptr := a.Push(descriptorSize)
	if ptr == nil {
		return nil, errs.Report(nil, errs.OutOfCommittedMemory, "failed to push pool's own descriptor in Bootstrap", a, "pool")
	}

	p := (*Pool)(ptr)
	if err := Init(p, a, elementSize, flags); err != nil {
		return nil, err
	}

	return p, nil
}
