package align_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arenakit/memalloc/pkg/align"
)

func TestUp(t *testing.T) {
	cases := []struct {
		x, a, want uintptr
	}{
		{0, 8, 0},
		{1, 8, 8},
		{7, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{17, 16, 32},
		{1024, 4096, 4096},
		{4096, 4096, 4096},
		{5, 1, 5},
	}

	for _, c := range cases {
		assert.Equalf(t, c.want, align.Up(c.x, c.a), "Up(%d, %d)", c.x, c.a)
	}
}

func TestIsPow2(t *testing.T) {
	for _, a := range []uintptr{1, 2, 4, 8, 16, 4096} {
		assert.Truef(t, align.IsPow2(a), "%d should be a power of two", a)
	}

	for _, a := range []uintptr{0, 3, 5, 6, 7, 100} {
		assert.Falsef(t, align.IsPow2(a), "%d should not be a power of two", a)
	}
}
