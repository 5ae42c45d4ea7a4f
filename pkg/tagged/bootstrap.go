package tagged

import (
	"unsafe"

	"github.com/arenakit/memalloc/pkg/arena"
	"github.com/arenakit/memalloc/pkg/errs"
	"github.com/arenakit/memalloc/pkg/vm"
)

var descriptorSize = unsafe.Sizeof(Heap{})

// Bootstrap creates a backing arena sized to hold a batch of sub-arenas
// (unless NoSetCommitSize is set), then carves a Heap descriptor out of it.
func Bootstrap(info vm.Info, subArenaSize uintptr, flags Flags, opts ...arena.Option) (*Heap, error) {
	if flags&NoSetCommitSize == 0 {
		info.CommitSize = CalcSize(subArenaSize, searchSize, true)
	}

	arenaFlags := arena.Normal
	if flags&FixedSize != 0 {
		arenaFlags = arena.FixedSize
	}

	a, err := arena.Bootstrap(info, arenaFlags, opts...)
	if err != nil {
		return nil, err
	}

	return strap(a, subArenaSize, flags)
}

// FixedBootstrap is Bootstrap over a caller-supplied buffer.
func FixedBootstrap(subArenaSize uintptr, buf []byte, flags Flags, opts ...arena.Option) (*Heap, error) {
	flags |= FixedSize

	a, err := arena.FixedBootstrap(buf, arena.Normal, opts...)
	if err != nil {
		return nil, err
	}

	return strap(a, subArenaSize, flags)
}

func strap(a *arena.Arena, subArenaSize uintptr, flags Flags) (*Heap, error) {
	ptr := a.Push(descriptorSize)
	if ptr == nil {
		return nil, errs.Report(nil, errs.OutOfCommittedMemory, "failed to push tagged heap's own descriptor in Bootstrap", a, "taggedHeap")
	}

	h := (*Heap)(ptr)
	if err := Init(h, a, subArenaSize, flags); err != nil {
		return nil, err
	}

	return h, nil
}
