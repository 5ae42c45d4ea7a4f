// Package errs defines the error taxonomy shared by the arena, pool, and
// tagged heap allocators, and the Sink mechanism they report failures
// through.
//
// No allocating operation in this module panics on a recoverable failure:
// a commit failure, a fixed-size overflow, an out-of-range tag, or a
// double-free attempt is reported to a Sink and surfaced to the caller as a
// nil pointer or a no-op, never an exception. This mirrors the original
// allocator's WB_ALLOC_ERROR_HANDLER contract.
package errs

import (
	"fmt"

	"github.com/arenakit/memalloc/internal/debug"
)

// Kind classifies why an allocator operation failed.
type Kind uint8

const (
	// OutOfVirtualAddress means the OS facade's Reserve call failed.
	OutOfVirtualAddress Kind = iota
	// OutOfCommittedMemory means the OS facade's Commit call failed during
	// init or growth.
	OutOfCommittedMemory
	// FixedSizeExhausted means a fixed-size arena, pool, or tagged heap
	// cannot grow further.
	FixedSizeExhausted
	// TagAllocTooLarge means a tagged heap allocation requested more than
	// the heap's sub-arena size.
	TagAllocTooLarge
	// DoubleFree means a pool's free-list scan found the released pointer
	// already present.
	DoubleFree
	// ModeMisuse means an operation was called on an allocator in the wrong
	// mode (e.g. Pop on a non-Stack arena).
	ModeMisuse
	// TagOutOfRange means a tagged heap operation referenced a tag id
	// outside the heap's valid range.
	TagOutOfRange
)

func (k Kind) String() string {
	switch k {
	case OutOfVirtualAddress:
		return "out of virtual address space"
	case OutOfCommittedMemory:
		return "out of committed memory"
	case FixedSizeExhausted:
		return "fixed-size allocator exhausted"
	case TagAllocTooLarge:
		return "tagged allocation larger than sub-arena size"
	case DoubleFree:
		return "double free"
	case ModeMisuse:
		return "allocator mode misuse"
	case TagOutOfRange:
		return "tag out of range"
	default:
		return "unknown error"
	}
}

// Error is the concrete error value passed to a Sink and, where an API
// returns an error instead of a null pointer (Init/Bootstrap/Clear/Destroy),
// returned to the caller.
type Error struct {
	Kind    Kind
	Message string
	// Object is the failing allocator value (an *arena.Arena, *pool.Pool, or
	// *tagged.Heap), kept as any to avoid an import cycle.
	Object any
	// Name is the allocator's name label, as set by Init/Bootstrap.
	Name string
}

func New(kind Kind, message string, object any, name string) *Error {
	return &Error{Kind: kind, Message: message, Object: object, Name: name}
}

func (e *Error) Error() string {
	return fmt.Sprintf("memalloc: [%s] %s: %s", e.Name, e.Kind, e.Message)
}

// Sink receives a failure report from an allocator. It is never called for
// successful operations, and calling it does not unwind the stack: callers
// must still check the returned pointer/error.
type Sink func(kind Kind, message string, object any, name string)

// DefaultSink renders the failure through internal/debug.Log, which is a
// no-op unless the module is built with the debug tag.
func DefaultSink(kind Kind, message string, object any, name string) {
	debug.Log(nil, "error", "[%s] %s", kind, message)
	_ = object
}

// Report constructs an *Error and dispatches it to sink, substituting
// DefaultSink if sink is nil. It returns the constructed error so call sites
// can propagate it where the API returns an error.
func Report(sink Sink, kind Kind, message string, object any, name string) *Error {
	if sink == nil {
		sink = DefaultSink
	}
	sink(kind, message, object, name)
	return New(kind, message, object, name)
}
