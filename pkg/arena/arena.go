// Package arena implements the linear bump allocator: a reserved virtual
// range whose committed footprint grows on demand, with optional LIFO
// (Stack) and per-allocation metadata (Extended) modes.
package arena

import (
	"unsafe"

	"github.com/arenakit/memalloc/pkg/align"
	"github.com/arenakit/memalloc/pkg/errs"
	"github.com/arenakit/memalloc/pkg/vm"
)

// Flags controls an Arena's mode. The zero value, Normal, is a plain
// growing bump allocator.
type Flags uint16

const (
	Normal Flags = 0
	// FixedSize wraps a caller-supplied buffer; the arena never calls the
	// OS facade and fails rather than growing past the buffer.
	FixedSize Flags = 1 << iota
	// Stack enables Pop: every Push writes a back-pointer word that Pop
	// reads to rewind head.
	Stack
	// Extended writes one caller-supplied metadata word immediately before
	// the pointer PushEx returns.
	Extended
	// NoZeroMemory skips the zero-fill Pop and temp-region teardown would
	// otherwise perform.
	NoZeroMemory
	// NoRecommit makes EndTemp zero the temp region itself with a plain
	// memset instead of decommitting and recommitting it through the OS.
	NoRecommit
)

// stackPtrWidth and extendedInfoWidth are this module's analogue of the
// original's WB_ALLOC_STACK_PTR / WB_ALLOC_EXTENDED_INFO macros: one
// machine word on every GOARCH this module supports.
const (
	stackPtrWidth     = unsafe.Sizeof(uintptr(0))
	extendedInfoWidth = unsafe.Sizeof(uintptr(0))
)

// fixedArenaPageSize is the page granularity assumed by StartTemp/EndTemp
// on a fixed-size arena, which never queries the OS for a real one.
const fixedArenaPageSize = 4096

// Arena is a linear bump allocator over [start, end), with head the next
// allocation address. start <= head <= end holds at every observable
// moment.
type Arena struct {
	Name string
	Sink errs.Sink

	facade vm.Facade
	info   vm.Info
	flags  Flags
	align  uintptr

	reserveSize uintptr
	start       uintptr
	head        uintptr
	end         uintptr

	hasTemp   bool
	tempStart uintptr
	tempHead  uintptr

	// buf keeps a FixedInit caller's slice reachable so the Go GC never
	// reclaims it out from under head/end/start.
	buf []byte
}

// Option configures Init.
type Option func(*Arena)

// WithFacade overrides the vm.Facade an Init'd arena uses; the default is
// vm.Default(). Has no effect on FixedInit, which never touches a facade.
func WithFacade(f vm.Facade) Option { return func(a *Arena) { a.facade = f } }

// WithAlign overrides the default 8-byte alignment.
func WithAlign(a uintptr) Option { return func(arena *Arena) { arena.align = a } }

// WithName sets the arena's name label, used in reported errors.
func WithName(name string) Option { return func(a *Arena) { a.Name = name } }

// Init reserves info.TotalMemory bytes through the facade and commits the
// first info.CommitSize, ready for Push. It fails if flags requests
// FixedSize; use FixedInit for that.
func Init(a *Arena, info vm.Info, flags Flags, opts ...Option) error {
	if flags&FixedSize != 0 {
		return report(a, errs.ModeMisuse, "can't create a fixed-size arena with Init; use FixedInit instead")
	}

	a.facade = vm.Default()
	a.align = align.Default
	a.Name = "arena"
	for _, opt := range opts {
		opt(a)
	}

	base, err := a.facade.Reserve(info.TotalMemory)
	if err != nil {
		return report(a, errs.OutOfVirtualAddress, "failed to reserve address space")
	}
	if err := a.facade.Commit(base, info.CommitSize, info.DefaultProtection); err != nil {
		_ = a.facade.Release(base, info.TotalMemory)
		return report(a, errs.OutOfCommittedMemory, "failed to commit initial memory")
	}

	a.info = info
	a.flags = flags
	a.reserveSize = info.TotalMemory
	a.start, a.head, a.end = base, base, base+info.CommitSize

	return nil
}

// FixedInit wraps the caller-supplied buf as the arena's entire address
// range. No facade call ever occurs for an arena initialised this way.
func FixedInit(a *Arena, buf []byte, flags Flags, opts ...Option) error {
	a.align = align.Default
	a.Name = "arena"
	for _, opt := range opts {
		opt(a)
	}

	if len(buf) == 0 {
		return report(a, errs.ModeMisuse, "FixedInit requires a non-empty buffer")
	}

	a.buf = buf
	a.flags = flags | FixedSize
	a.info = vm.Info{PageSize: fixedArenaPageSize, DefaultProtection: vm.ProtRead | vm.ProtWrite}
	a.start = uintptr(unsafe.Pointer(&buf[0]))
	a.head = a.start
	a.end = a.start + uintptr(len(buf))

	return nil
}

// Push allocates size bytes aligned to the arena's alignment, returning
// the address of the old head, or nil on failure.
func (a *Arena) Push(size uintptr) unsafe.Pointer {
	return a.push(size, 0, false)
}

// PushEx is Push plus one metadata word written immediately before the
// returned pointer, when the arena was created with Extended mode.
func (a *Arena) PushEx(size uintptr, extended uintptr) unsafe.Pointer {
	return a.push(size, extended, true)
}

func (a *Arena) push(size, extended uintptr, hasExtended bool) unsafe.Pointer {
	grown := size
	if a.flags&Stack != 0 {
		grown += stackPtrWidth
	}
	if a.flags&Extended != 0 {
		grown += extendedInfoWidth
	}

	oldHead := a.head
	newHead := align.Up(oldHead+grown, a.align)

	if newHead > a.end {
		if a.flags&FixedSize != 0 {
			report(a, errs.FixedSizeExhausted, "arena ran out of memory")
			return nil
		}

		commitSize := a.info.CommitSize
		toExpand := (grown + commitSize - 1) / commitSize * commitSize
		if err := a.facade.Commit(a.end, toExpand, a.info.DefaultProtection); err != nil {
			report(a, errs.OutOfCommittedMemory, "failed to commit growth in Push")
			return nil
		}
		a.end += toExpand
	}

	ret := oldHead

	if a.flags&Stack != 0 {
		bp := (*uintptr)(unsafe.Pointer(newHead - stackPtrWidth))
		*bp = oldHead
	}

	if hasExtended && a.flags&Extended != 0 {
		word := (*uintptr)(unsafe.Pointer(oldHead))
		*word = extended
		ret = oldHead + extendedInfoWidth
	}

	a.head = newHead

	return unsafe.Pointer(ret)
}

// Pop is valid only in Stack mode: it rewinds head to the address recorded
// by the matching Push and, unless NoZeroMemory is set, zeroes the
// released range.
func (a *Arena) Pop() {
	if a.flags&Stack == 0 {
		report(a, errs.ModeMisuse, "can't use Pop with a non-Stack arena")
		return
	}

	bp := (*uintptr)(unsafe.Pointer(a.head - stackPtrWidth))
	newHead := *bp

	if newHead < a.start {
		newHead = a.start
	}

	if a.flags&NoZeroMemory == 0 {
		if size := a.head - newHead; size > 0 {
			clear(byteSliceAt(newHead, size))
		}
	}

	a.head = newHead
}

// StartTemp opens a scoped scratch region: head is rounded up to a page
// boundary and recorded, so the bytes between the old head and the
// boundary are sacrificed until EndTemp. A second call before a matching
// EndTemp is a no-op.
func (a *Arena) StartTemp() {
	if a.hasTemp {
		return
	}

	a.tempStart = align.Up(a.head, a.info.PageSize)
	a.tempHead = a.head
	a.head = a.tempStart
	a.hasTemp = true
}

// EndTemp closes the scratch region opened by StartTemp, reclaiming the
// range back to the OS (or zeroing it in place, for a FixedSize arena or
// when NoRecommit is set) before restoring head. A call with no matching
// StartTemp is a no-op.
func (a *Arena) EndTemp() {
	if !a.hasTemp {
		return
	}

	a.head = align.Up(a.head, a.info.PageSize)
	size := a.head - a.tempStart

	if size > 0 {
		if a.flags&FixedSize != 0 || a.flags&NoRecommit != 0 {
			if a.flags&NoZeroMemory == 0 {
				clear(byteSliceAt(a.tempStart, size))
			}
		} else {
			_ = a.facade.Decommit(a.tempStart, size)
			if err := a.facade.Commit(a.tempStart, size, a.info.DefaultProtection); err != nil {
				report(a, errs.OutOfCommittedMemory, "failed to recommit temp region in EndTemp")
			}
		}
	}

	a.head = a.tempHead
	a.tempStart, a.tempHead = 0, 0
	a.hasTemp = false
}

// Clear resets head to start, decommitting and recommitting [start, end)
// through the OS (or zeroing the buffer directly for a FixedSize arena).
// start, end, info, and flags are left intact.
func (a *Arena) Clear() error {
	if a.flags&FixedSize != 0 {
		if a.flags&NoZeroMemory == 0 {
			clear(byteSliceAt(a.start, a.end-a.start))
		}
		a.head = a.start
		return nil
	}

	size := a.end - a.start
	if err := a.facade.Decommit(a.start, size); err != nil {
		return report(a, errs.OutOfCommittedMemory, "failed to decommit in Clear")
	}
	if err := a.facade.Commit(a.start, size, a.info.DefaultProtection); err != nil {
		return report(a, errs.OutOfCommittedMemory, "failed to recommit in Clear")
	}

	a.head = a.start

	return nil
}

// Destroy releases the arena's reservation. After Destroy, the arena
// value and every pointer derived from it are dangling; if the arena was
// bootstrapped inside its own reservation, the descriptor itself is
// invalid once this returns.
func (a *Arena) Destroy() error {
	if a.flags&FixedSize != 0 {
		a.buf = nil
		a.start, a.head, a.end = 0, 0, 0
		return nil
	}

	if err := a.facade.Release(a.start, a.reserveSize); err != nil {
		return report(a, errs.OutOfVirtualAddress, "failed to release reservation in Destroy")
	}

	a.start, a.head, a.end, a.reserveSize = 0, 0, 0, 0

	return nil
}

// Info returns the vm.Info the arena was created with.
func (a *Arena) Info() vm.Info { return a.info }

// Flags returns the arena's mode flags.
func (a *Arena) Flags() Flags { return a.flags }

// Bounds returns (start, head, end), mainly for tests.
func (a *Arena) Bounds() (start, head, end uintptr) { return a.start, a.head, a.end }

func byteSliceAt(addr, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func report(a *Arena, kind errs.Kind, message string) error {
	name := a.Name
	if name == "" {
		name = "arena"
	}
	return errs.Report(a.Sink, kind, message, a, name)
}
