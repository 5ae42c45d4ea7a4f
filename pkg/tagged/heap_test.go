package tagged_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/arenakit/memalloc/pkg/arena"
	"github.com/arenakit/memalloc/pkg/tagged"
	"github.com/arenakit/memalloc/pkg/vm"
)

func newTestHeap(arenaSize uintptr, flags tagged.Flags) (*tagged.Heap, *arena.Arena) {
	buf := make([]byte, 4<<20)
	facade := vm.NewFake(buf)
	info := vm.Info{TotalMemory: uintptr(len(buf)), CommitSize: 64 << 10, PageSize: 4096, DefaultProtection: vm.ProtRead | vm.ProtWrite}

	var a arena.Arena
	if err := arena.Init(&a, info, arena.Normal, arena.WithFacade(facade)); err != nil {
		panic(err)
	}

	var h tagged.Heap
	if err := tagged.Init(&h, &a, arenaSize, flags); err != nil {
		panic(err)
	}

	return &h, &a
}

func TestTaggedFreeIsolation(t *testing.T) {
	Convey("Given a tagged heap with arena_size 4096 (S5)", t, func() {
		h, _ := newTestHeap(4096, tagged.Normal)

		p1a := h.Alloc(1, 3000)
		p1b := h.Alloc(1, 2000) // forces a second sub-arena under tag 1
		p2 := h.Alloc(2, 1000)

		So(p1a, ShouldNotBeNil)
		So(p1b, ShouldNotBeNil)
		So(p2, ShouldNotBeNil)

		Convey("freeing tag 1 does not affect tag 2", func() {
			h.Free(1)

			p2again := h.Alloc(2, 100)
			So(p2again, ShouldNotBeNil)

			p1fresh := h.Alloc(1, 100)
			So(p1fresh, ShouldNotBeNil)
		})
	})
}

func TestTaggedOutOfRangeTag(t *testing.T) {
	Convey("Given a tagged heap", t, func() {
		h, _ := newTestHeap(4096, tagged.Normal)

		Convey("allocating under a negative or too-large tag fails without panicking", func() {
			So(func() {
				So(h.Alloc(-1, 10), ShouldBeNil)
				So(h.Alloc(tagged.MaxTagCount, 10), ShouldBeNil)
			}, ShouldNotPanic)
		})
	})
}

func TestTaggedAllocTooLarge(t *testing.T) {
	Convey("Given a tagged heap with arena_size 256", t, func() {
		h, _ := newTestHeap(256, tagged.Normal)

		Convey("a request bigger than arena_size fails", func() {
			So(h.Alloc(0, 1024), ShouldBeNil)
		})
	})
}
