package tagged

import (
	"unsafe"

	"github.com/dolthub/maphash"

	"github.com/arenakit/memalloc/pkg/align"
	"github.com/arenakit/memalloc/pkg/errs"
)

// tagEntry is one bucket-chain link in a DynamicIndex: the sub-arena list
// head for one arbitrary int64 tag.
type tagEntry struct {
	tag  int64
	head *subArena
	next *tagEntry
}

const dynamicBucketCount = 16

// DynamicIndex is the Open Question 3 alternative to Heap's fixed
// [MaxTagCount]*subArena table: a hashed chain index over arbitrary int64
// tags, for callers whose tag space is sparse or negative and would waste
// memory (or overflow) in the fixed table. It shares the wrapped Heap's
// backing pool, arena size, and alignment, and preserves the same
// per-tag isolation invariant.
type DynamicIndex struct {
	heap    *Heap
	hasher  maphash.Hasher[int64]
	buckets []*tagEntry
}

// NewDynamic wraps h. The wrapped Heap's own Alloc/Free (keyed by the
// fixed int table) remain usable and independent: the two index spaces
// never share a sub-arena.
func NewDynamic(h *Heap) *DynamicIndex {
	return &DynamicIndex{
		heap:    h,
		hasher:  maphash.NewHasher[int64](),
		buckets: make([]*tagEntry, dynamicBucketCount),
	}
}

func (d *DynamicIndex) entry(tag int64) (*tagEntry, uint64) {
	idx := d.hasher.Hash(tag) % uint64(len(d.buckets))
	for e := d.buckets[idx]; e != nil; e = e.next {
		if e.tag == tag {
			return e, idx
		}
	}
	return nil, idx
}

// Alloc allocates size bytes under tag, growing a fresh sub-arena chain
// for a never-seen tag the same way Heap.Alloc does for the fixed table.
func (d *DynamicIndex) Alloc(tag int64, size uintptr) unsafe.Pointer {
	h := d.heap

	if size > h.arenaSize {
		report(h, errs.TagAllocTooLarge, "cannot allocate an object larger than a tagged heap sub-arena")
		return nil
	}

	e, idx := d.entry(tag)
	if e == nil {
		sa := h.newSubArena(0)
		if sa == nil {
			return nil
		}
		sa.tag = tag

		e = &tagEntry{tag: tag, head: sa, next: d.buckets[idx]}
		d.buckets[idx] = e
	}

	cur := e.head
	if cur.head+size > cur.end {
		chosen := h.findFit(cur, size)
		if chosen == nil {
			chosen = h.newSubArena(0)
			if chosen == nil {
				return nil
			}
			chosen.tag = tag
			chosen.next = e.head
			e.head = chosen
		}
		cur = chosen
	}

	ptr := cur.head
	cur.head = align.Up(cur.head+size, h.align)

	return unsafe.Pointer(ptr)
}

// Free returns every sub-arena chained under tag to the backing pool and
// drops tag's bucket entry entirely; a tag never allocated under is a
// no-op.
func (d *DynamicIndex) Free(tag int64) {
	idx := d.hasher.Hash(tag) % uint64(len(d.buckets))

	var prev *tagEntry
	for e := d.buckets[idx]; e != nil; e = e.next {
		if e.tag == tag {
			for node := e.head; node != nil; {
				next := node.next
				d.heap.pool.Release(unsafe.Pointer(node))
				node = next
			}

			if prev == nil {
				d.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			return
		}
		prev = e
	}
}
