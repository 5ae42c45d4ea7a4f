package tagged_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/arenakit/memalloc/pkg/arena"
	"github.com/arenakit/memalloc/pkg/tagged"
	"github.com/arenakit/memalloc/pkg/vm"
)

func newDynamicTestHeap() *tagged.DynamicIndex {
	buf := make([]byte, 4<<20)
	facade := vm.NewFake(buf)
	info := vm.Info{TotalMemory: uintptr(len(buf)), CommitSize: 64 << 10, PageSize: 4096, DefaultProtection: vm.ProtRead | vm.ProtWrite}

	var a arena.Arena
	if err := arena.Init(&a, info, arena.Normal, arena.WithFacade(facade)); err != nil {
		panic(err)
	}

	var h tagged.Heap
	if err := tagged.Init(&h, &a, 4096, tagged.Normal); err != nil {
		panic(err)
	}

	return tagged.NewDynamic(&h)
}

func TestDynamicIndexIsolation(t *testing.T) {
	Convey("Given a DynamicIndex over a sparse, negative-friendly tag space", t, func() {
		d := newDynamicTestHeap()

		p1 := d.Alloc(-4200, 100)
		p2 := d.Alloc(9_000_000_000, 200)

		So(p1, ShouldNotBeNil)
		So(p2, ShouldNotBeNil)
		So(p1, ShouldNotEqual, p2)

		Convey("freeing one tag doesn't disturb the other", func() {
			d.Free(-4200)

			p2Again := d.Alloc(9_000_000_000, 50)
			So(p2Again, ShouldNotBeNil)

			p1Fresh := d.Alloc(-4200, 50)
			So(p1Fresh, ShouldNotBeNil)
		})

		Convey("freeing a tag never allocated under is a no-op", func() {
			So(func() { d.Free(123456) }, ShouldNotPanic)
		})
	})
}
