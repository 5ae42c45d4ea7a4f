// Package pool implements the fixed-element-size recycling allocator: a
// slab of equal-sized slots drawn from an arena, released slots threaded
// onto an intrusive free-list (or, in Compacting mode, backfilled from the
// last live slot).
package pool

import (
	"unsafe"

	"github.com/arenakit/memalloc/pkg/arena"
	"github.com/arenakit/memalloc/pkg/errs"
)

// Flags controls a Pool's mode.
type Flags uint16

const (
	Normal Flags = 0
	// FixedSize fails rather than growing the backing arena when the
	// linear frontier runs out.
	FixedSize Flags = 1 << iota
	// Compacting replaces the free-list with a backfill-from-the-end
	// release: live slots always occupy a contiguous [0, count) prefix,
	// at the cost of invalidating any external pointer into the pool on
	// every Release.
	Compacting
	// NoZeroMemory skips zeroing a slot on Retrieve.
	NoZeroMemory
	// NoDoubleFreeCheck skips the O(free-list length) scan Release would
	// otherwise run to catch a pointer already on the free list.
	NoDoubleFreeCheck
)

var wordSize = unsafe.Sizeof(uintptr(0))

// Pool hands out elementSize-byte slots drawn from arena, recycling
// released ones. count + len(free list) <= lastFilled + 1 always holds.
type Pool struct {
	Name string
	Sink errs.Sink

	arena       *arena.Arena
	elementSize uintptr
	slots       uintptr
	capacity    uintptr
	count       uintptr
	lastFilled  int64
	freeList    uintptr
	flags       Flags
}

// Init binds p to an existing arena, capturing the arena's current head as
// the base of the slot array. elementSize is floored at pointer width,
// since a released slot's first word doubles as a free-list link.
func Init(p *Pool, a *arena.Arena, elementSize uintptr, flags Flags) error {
	if elementSize < wordSize {
		elementSize = wordSize
	}

	_, head, end := a.Bounds()

	p.Name = "pool"
	p.arena = a
	p.elementSize = elementSize
	p.flags = flags
	p.count = 0
	p.lastFilled = -1
	p.capacity = (end - head) / elementSize
	p.slots = head
	p.freeList = 0

	return nil
}

// Retrieve hands out a slot: a free-listed one if any exist (outside
// Compacting mode), otherwise the next never-issued slot, growing the
// backing arena if the linear frontier is exhausted.
func (p *Pool) Retrieve() unsafe.Pointer {
	if p.flags&Compacting == 0 && p.freeList != 0 {
		ptr := p.freeList
		p.freeList = *(*uintptr)(unsafe.Pointer(ptr))
		p.count++

		if p.flags&NoZeroMemory == 0 {
			clear(byteSliceAt(ptr, p.elementSize))
		}

		return unsafe.Pointer(ptr)
	}

	if uintptr(p.lastFilled+1) >= p.capacity {
		if p.flags&FixedSize != 0 {
			report(p, errs.FixedSizeExhausted, "pool ran out of memory")
			return nil
		}

		info := p.arena.Info()
		for uintptr(p.lastFilled+1) >= p.capacity {
			if p.arena.Push(info.CommitSize) == nil {
				report(p, errs.OutOfCommittedMemory, "arena Push failed in Retrieve")
				return nil
			}

			_, _, end := p.arena.Bounds()
			p.capacity = (end - p.slots) / p.elementSize
		}
	}

	p.lastFilled++
	ptr := p.slots + uintptr(p.lastFilled)*p.elementSize
	p.count++

	if p.flags&NoZeroMemory == 0 {
		clear(byteSliceAt(ptr, p.elementSize))
	}

	return unsafe.Pointer(ptr)
}

// Release returns ptr to the pool. In Compacting mode it copies the last
// live slot's bytes into ptr's slot and shrinks count, invalidating any
// other pointer into the pool; otherwise it threads ptr onto the
// free-list, first scanning the list for a double-free unless
// NoDoubleFreeCheck is set.
func (p *Pool) Release(ptr unsafe.Pointer) {
	addr := uintptr(ptr)

	if p.flags&NoDoubleFreeCheck == 0 {
		for node := p.freeList; node != 0; node = *(*uintptr)(unsafe.Pointer(node)) {
			if node == addr {
				report(p, errs.DoubleFree, "caught attempting to free previously freed memory in Release")
				return
			}
		}
	}

	p.count--

	if p.flags&Compacting != 0 {
		p.lastFilled--
		last := p.slots + p.count*p.elementSize
		if last != addr {
			copy(byteSliceAt(addr, p.elementSize), byteSliceAt(last, p.elementSize))
		}
		return
	}

	*(*uintptr)(unsafe.Pointer(addr)) = p.freeList
	p.freeList = addr
}

// Count is the number of currently live (retrieved, un-released) slots.
func (p *Pool) Count() uintptr { return p.count }

// Capacity is the number of slots currently available between the slot
// base and the owning arena's end.
func (p *Pool) Capacity() uintptr { return p.capacity }

// ElementSize is the pool's (pointer-width-floored) slot size.
func (p *Pool) ElementSize() uintptr { return p.elementSize }

// Slots returns the base address of the slot array, mainly for tests.
func (p *Pool) Slots() uintptr { return p.slots }

func byteSliceAt(addr, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func report(p *Pool, kind errs.Kind, message string) {
	name := p.Name
	if name == "" {
		name = "pool"
	}
	errs.Report(p.Sink, kind, message, p, name)
}
