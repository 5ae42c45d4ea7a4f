// Package align provides the alignment arithmetic shared by the arena,
// pool, and tagged heap allocators.
package align

import "github.com/arenakit/memalloc/internal/debug"

// Default is the alignment new arenas use when none is specified: pointer
// width on every GOARCH this module supports.
const Default = 8

// Up rounds x up to the next multiple of a, which must be a power of two.
//
// Up(x, a) == x when x is already a-aligned. Behavior is undefined (and, in
// a debug build, asserted against) if a is not a power of two.
func Up(x, a uintptr) uintptr {
	debug.Assert(IsPow2(a), "align.Up: alignment %d is not a power of two", a)

	mod := x & (a - 1)
	if mod == 0 {
		return x
	}
	return x + (a - mod)
}

// IsPow2 reports whether a is a power of two. Zero is not a power of two.
func IsPow2(a uintptr) bool {
	return a != 0 && a&(a-1) == 0
}
