// Package tagged implements the tagged heap: allocations are grouped under
// small integer tags, each tag backed by a linked list of fixed-capacity
// sub-arenas, so an entire tag's allocations can be reclaimed in one Free
// call. Sub-arenas are themselves recycled through a single backing pool.
package tagged

import (
	"sort"
	"unsafe"

	"github.com/arenakit/memalloc/pkg/align"
	"github.com/arenakit/memalloc/pkg/arena"
	"github.com/arenakit/memalloc/pkg/errs"
	"github.com/arenakit/memalloc/pkg/pool"
	"github.com/arenakit/memalloc/pkg/vm"
)

// Flags controls a Heap's mode.
type Flags uint16

const (
	Normal Flags = 0
	// FixedSize propagates FixedSize to the backing arena/pool.
	FixedSize Flags = 1 << iota
	// NoZeroMemory skips zeroing a sub-arena's backing slot on retrieve.
	NoZeroMemory
	// NoSetCommitSize leaves a Bootstrap caller's info.CommitSize alone
	// instead of sizing it to fit a batch of sub-arenas.
	NoSetCommitSize
	// SearchForBestFit makes Alloc search up to searchSize subsequent
	// sub-arenas in the tag's list for the tightest fit before allocating
	// a fresh one.
	SearchForBestFit
)

// MaxTagCount bounds the fixed tag table; tags outside [0, MaxTagCount)
// are rejected with TagOutOfRange. pkg/tagged/dynamic.go offers an
// unbounded alternative for sparse or negative tag spaces.
const MaxTagCount = 64

// searchSize bounds the SearchForBestFit walk, keeping Alloc O(1)
// amortised even with long per-tag lists.
const searchSize = 8

// subArena is a bump region living inside one pool slot: the header
// occupies the slot's first bytes, and [head, end) brackets the
// arenaSize bytes immediately following it.
type subArena struct {
	tag  int64
	next *subArena
	head uintptr
	end  uintptr
}

var subArenaHeaderSize = unsafe.Sizeof(subArena{})

func (s *subArena) remaining() uintptr { return s.end - s.head }

// Heap groups allocations by tag; arenas[t] is the head of tag t's
// sub-arena list, or nil if the tag has never been allocated under.
type Heap struct {
	Name string
	Sink errs.Sink

	arenaSize uintptr
	align     uintptr
	flags     Flags
	info      vm.Info
	pool      pool.Pool
	arenas    [MaxTagCount]*subArena
}

// Init binds h to arena a, sizing the backing pool's element to
// sizeof(subArena header) + subArenaSize. The backing pool always runs
// with NoDoubleFreeCheck, since Free never double-releases a
// sub-arena it owns.
func Init(h *Heap, a *arena.Arena, subArenaSize uintptr, flags Flags) error {
	h.Name = "taggedHeap"
	h.flags = flags
	h.align = align.Default
	h.arenaSize = subArenaSize
	h.info = a.Info()

	poolFlags := pool.NoDoubleFreeCheck
	if flags&FixedSize != 0 {
		poolFlags |= pool.FixedSize
	}
	if flags&NoZeroMemory != 0 {
		poolFlags |= pool.NoZeroMemory
	}

	return pool.Init(&h.pool, a, subArenaHeaderSize+subArenaSize, poolFlags)
}

// CalcSize returns subArenaCount pool slots of sizeof(subArena header) +
// subArenaSize bytes, plus a Heap descriptor if includeHeapHeader is set.
// It does not count the arena descriptor and padding that FixedBootstrap
// also carves out of the buffer, so a buffer of exactly this size holds
// fewer than subArenaCount sub-arenas after FixedBootstrap.
func CalcSize(subArenaSize, subArenaCount uintptr, includeHeapHeader bool) uintptr {
	size := subArenaCount * (subArenaHeaderSize + subArenaSize)
	if includeHeapHeader {
		size += unsafe.Sizeof(Heap{})
	}
	return size
}

// Alloc allocates size bytes under tag, which must be in [0, MaxTagCount).
// size must not exceed the heap's sub-arena size. If the tag's current
// sub-arena has no room, Alloc either picks the best-fitting subsequent
// sub-arena (SearchForBestFit) or pushes a fresh one at the head of the
// tag's list.
func (h *Heap) Alloc(tag int, size uintptr) unsafe.Pointer {
	if tag < 0 || tag >= MaxTagCount {
		report(h, errs.TagOutOfRange, "tag is outside [0, MaxTagCount)")
		return nil
	}
	if size > h.arenaSize {
		report(h, errs.TagAllocTooLarge, "cannot allocate an object larger than a tagged heap sub-arena")
		return nil
	}

	cur := h.arenas[tag]
	if cur == nil {
		cur = h.newSubArena(tag)
		if cur == nil {
			return nil
		}
		h.arenas[tag] = cur
	}

	if cur.head+size > cur.end {
		chosen := h.findFit(cur, size)
		if chosen == nil {
			chosen = h.newSubArena(tag)
			if chosen == nil {
				return nil
			}
			chosen.next = h.arenas[tag]
			h.arenas[tag] = chosen
		}
		cur = chosen
	}

	ptr := cur.head
	cur.head = align.Up(cur.head+size, h.align)

	return unsafe.Pointer(ptr)
}

// findFit walks up to searchSize sub-arenas after cur looking for the
// tightest fit, per the SearchForBestFit mode; returns nil if the mode is
// off or no candidate fits.
func (h *Heap) findFit(cur *subArena, size uintptr) *subArena {
	if h.flags&SearchForBestFit == 0 {
		return nil
	}

	var candidates []*subArena
	node := cur.next
	for i := 0; node != nil && i < searchSize; i, node = i+1, node.next {
		if node.remaining() >= size {
			candidates = append(candidates, node)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].remaining() < candidates[j].remaining()
	})

	return candidates[0]
}

// Free returns every sub-arena under tag to the backing pool and clears
// arenas[tag]. It does not affect any other tag's allocations.
func (h *Heap) Free(tag int) {
	if tag < 0 || tag >= MaxTagCount {
		report(h, errs.TagOutOfRange, "tag is outside [0, MaxTagCount)")
		return
	}

	node := h.arenas[tag]
	for node != nil {
		next := node.next
		h.pool.Release(unsafe.Pointer(node))
		node = next
	}

	h.arenas[tag] = nil
}

func (h *Heap) newSubArena(tag int) *subArena {
	ptr := h.pool.Retrieve()
	if ptr == nil {
		report(h, errs.OutOfCommittedMemory, "tagged heap sub-arena retrieve returned nil")
		return nil
	}

	s := (*subArena)(ptr)
	s.tag = int64(tag)
	s.next = nil
	s.head = uintptr(ptr) + subArenaHeaderSize
	s.end = s.head + h.arenaSize

	return s
}

func report(h *Heap, kind errs.Kind, message string) {
	name := h.Name
	if name == "" {
		name = "taggedHeap"
	}
	errs.Report(h.Sink, kind, message, h, name)
}
