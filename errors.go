// errors.go: the package's user-facing error surface.
//
// What this file does
// -------------------
// Centralizes every error the heap core can return, so callers have stable
// sentinels to test with errors.Is. The split follows the failure model:
//
//   - ErrInvalidHeap      — Adopt saw bad magic, an impossible used size, or
//     an out-of-range root. The bytes are not a heap image.
//   - ErrInvalidArgument  — Resize asked to shrink below the live data or to
//     grow past the mapped region.
//
// Out-of-memory is deliberately NOT an error value: Alloc and the object
// constructors report exhaustion through a zero position / ok=false return,
// because running out of arena space is an expected, recoverable outcome
// the caller decides about (typically by collecting).
//
// Precondition violations — reading a non-object value as an object, an
// out-of-range inline integer, allocating in a heap while a collector is
// live — are programmer bugs and panic instead. Other writes to a heap
// during a collection are not checked.
package smol

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHeap is returned by Adopt when the data fails validation.
	ErrInvalidHeap = errors.New("invalid heap image")

	// ErrInvalidArgument is returned by Resize for an illegal new size.
	ErrInvalidArgument = errors.New("invalid argument")
)

func invalidHeapf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidHeap, fmt.Sprintf(format, args...))
}

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
