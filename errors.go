package pargz

import (
	"errors"
	"fmt"
)

var (
	// ErrOutputBufferTooSmall is returned when a compressed block does not
	// fit in the output capacity of its worker slot. Block size and capacity
	// are fixed, so this points at a codec/config mismatch.
	ErrOutputBufferTooSmall = errors.New("compressed block exceeds output capacity")

	// ErrCorruptStream is returned when a member has invalid framing, a bad
	// checksum, or is truncated.
	ErrCorruptStream = errors.New("corrupt compressed stream")

	// ErrIOFailure is returned when the underlying source or sink fails.
	ErrIOFailure = errors.New("i/o failure")

	// ErrInvalidConfig is returned when options or codec parameters are
	// rejected at startup.
	ErrInvalidConfig = errors.New("invalid configuration")

	errUnknownCodec = errors.New("unknown codec")
)

// Error carries the context of a fatal pipeline error: which operation
// failed, on which block or member, and at which byte offset. Offset is
// measured in the raw stream while compressing and in the compressed stream
// while decompressing.
//
// errors.Is matches both the Kind sentinel and the underlying cause.
type Error struct {
	Op     string
	Block  int64
	Offset int64
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pargz: %s block %d at offset %d: %v", e.Op, e.Block, e.Offset, e.Kind)
	}
	return fmt.Sprintf("pargz: %s block %d at offset %d: %v: %v", e.Op, e.Block, e.Offset, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...)
}
