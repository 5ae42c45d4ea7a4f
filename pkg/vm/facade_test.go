package vm_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/arenakit/memalloc/pkg/vm"
)

func TestFakeFacade(t *testing.T) {
	Convey("Given a fake facade over a fixed buffer", t, func() {
		buf := make([]byte, 64*1024)
		f := vm.NewFake(buf)

		Convey("Reserve succeeds exactly once for len(buf)", func() {
			addr, err := f.Reserve(uintptr(len(buf)))
			So(err, ShouldBeNil)
			So(addr, ShouldNotEqual, 0)

			Convey("a second Reserve fails", func() {
				_, err := f.Reserve(uintptr(len(buf)))
				So(err, ShouldNotBeNil)
			})

			Convey("Commit within range succeeds", func() {
				err := f.Commit(addr, 4096, vm.ProtRead|vm.ProtWrite)
				So(err, ShouldBeNil)
			})

			Convey("Commit outside the reservation fails", func() {
				err := f.Commit(addr+uintptr(len(buf)), 4096, vm.ProtRead|vm.ProtWrite)
				So(err, ShouldNotBeNil)
			})

			Convey("Decommit zeroes the range", func() {
				So(f.Commit(addr, 8, vm.ProtRead|vm.ProtWrite), ShouldBeNil)
				buf[0], buf[1] = 0xAA, 0xBB

				So(f.Decommit(addr, 8), ShouldBeNil)
				So(buf[0], ShouldEqual, 0)
				So(buf[1], ShouldEqual, 0)
			})

			Convey("Release frees the reservation so a new Reserve can succeed", func() {
				So(f.Release(addr, uintptr(len(buf))), ShouldBeNil)

				newAddr, err := f.Reserve(uintptr(len(buf)))
				So(err, ShouldBeNil)
				So(newAddr, ShouldEqual, addr)
			})
		})

		Convey("Reserve with the wrong size fails", func() {
			_, err := f.Reserve(uintptr(len(buf)) - 1)
			So(err, ShouldNotBeNil)
		})

		Convey("QueryInfo reports the buffer length as total memory", func() {
			info, err := f.QueryInfo()
			So(err, ShouldBeNil)
			So(info.TotalMemory, ShouldEqual, uintptr(len(buf)))
			So(info.PageSize, ShouldBeGreaterThan, 0)
		})
	})
}

func TestProtectionString(t *testing.T) {
	Convey("Protection renders as its permission letters", t, func() {
		So(vm.ProtNone.String(), ShouldEqual, "none")
		So((vm.ProtRead | vm.ProtWrite).String(), ShouldEqual, "rw")
		So((vm.ProtRead | vm.ProtExecute).String(), ShouldEqual, "rx")
	})
}

func TestDefaultReturnsOSFacade(t *testing.T) {
	Convey("Default returns a non-nil, GOOS-appropriate facade", t, func() {
		So(vm.Default(), ShouldNotBeNil)
	})
}
