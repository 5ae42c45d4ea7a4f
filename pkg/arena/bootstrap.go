package arena

import (
	"unsafe"

	"github.com/arenakit/memalloc/pkg/errs"
	"github.com/arenakit/memalloc/pkg/vm"
)

// bootstrapPad mirrors the original allocator's arenaBootstrap, which
// pushes sizeof(MemoryArena) + 16 bytes for the self-hosted descriptor
// rather than an exact fit; kept to preserve its alignment headroom for
// whatever the first caller pushes immediately after the descriptor.
const bootstrapPad = 16

var descriptorSize = unsafe.Sizeof(Arena{})

// Bootstrap creates an arena on the stack, then carves its own descriptor
// out of the memory it just reserved: the returned *Arena lives inside its
// own governed range, so the descriptor and its backing storage share a
// lifetime. flags must not request FixedSize; use FixedBootstrap for that.
func Bootstrap(info vm.Info, flags Flags, opts ...Option) (*Arena, error) {
	if flags&FixedSize != 0 {
		var zero Arena
		return nil, report(&zero, errs.ModeMisuse, "can't create a fixed-size arena with Bootstrap; use FixedBootstrap instead")
	}

	var local Arena
	if err := Init(&local, info, flags, opts...); err != nil {
		return nil, err
	}

	strapped := strap(&local)
	if strapped == nil {
		return nil, report(&local, errs.OutOfCommittedMemory, "failed to push arena's own descriptor in Bootstrap")
	}

	return strapped, nil
}

// FixedBootstrap is Bootstrap over a caller-supplied buffer: the arena and
// its self-hosted descriptor both live inside buf, and no facade call ever
// occurs.
func FixedBootstrap(buf []byte, flags Flags, opts ...Option) (*Arena, error) {
	var local Arena
	if err := FixedInit(&local, buf, flags, opts...); err != nil {
		return nil, err
	}

	strapped := strap(&local)
	if strapped == nil {
		return nil, report(&local, errs.FixedSizeExhausted, "failed to push arena's own descriptor in FixedBootstrap")
	}

	return strapped, nil
}

func strap(local *Arena) *Arena {
	ptr := local.Push(descriptorSize + bootstrapPad)
	if ptr == nil {
		return nil
	}

	strapped := (*Arena)(ptr)
	*strapped = *local

	if strapped.flags&Stack != 0 {
		// Prime the stack back-pointer for the descriptor's own slot, the
		// same way the original bootstrap functions do, so a Pop that
		// unwinds past every caller push still finds a sane back-pointer.
		strapped.PushEx(0, 0)
		bp := (*uintptr)(unsafe.Pointer(strapped.head - stackPtrWidth))
		*bp = strapped.head
	}

	return strapped
}
