package multiarena

import (
	"fmt"
	"unsafe"
)

// TooLargeError reports an allocation request that can never succeed
// because a single block of Needed bytes does not fit in one arena of
// Available bytes. The pool is left untouched, so smaller requests keep
// working.
type TooLargeError struct {
	Needed    int // bytes the arena would have needed to hold
	Available int // bytes a single arena actually holds
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("multiarena: block of %d bytes exceeds arena size %d", e.Needed, e.Available)
}

// ExhaustedError reports that no free arena was available to satisfy a
// request that would otherwise fit. NumArenas is the total arena count of
// the pool, none of which had room. The pool is left untouched; freeing
// objects makes arenas available again.
type ExhaustedError struct {
	NumArenas int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("multiarena: all %d arenas are exhausted", e.NumArenas)
}

// CorruptionError reports a deallocation of an address the pool does not
// own, or one that is not currently live. It always indicates a consumer
// bug such as a double free; the pool's subsequent behaviour is
// unspecified. Size and Alignment echo the arguments of the failing call
// and are diagnostic only.
type CorruptionError struct {
	Addr      unsafe.Pointer
	Size      int
	Alignment int
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("multiarena: double free or corruption at %p (size %d, alignment %d)", e.Addr, e.Size, e.Alignment)
}

// GeometryError reports invalid construction parameters: the arena count
// must be at least one and the arena size a positive multiple of
// MaxScalarAlign.
type GeometryError struct {
	NumArenas int
	ArenaSize int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("multiarena: invalid geometry: %d arenas of %d bytes (need numArenas >= 1 and arenaSize a positive multiple of %d)",
		e.NumArenas, e.ArenaSize, MaxScalarAlign)
}

// The error constructors funnel through these helpers so that building
// with the multiarena_noerrors tag compiles the reporting away: failed
// operations then return a nil pointer and a nil error and the consumer
// checks for nil.

func tooLargeError(needed, available int) error {
	if !ErrorsEnabled {
		return nil
	}
	return &TooLargeError{Needed: needed, Available: available}
}

func exhaustedError(numArenas int) error {
	if !ErrorsEnabled {
		return nil
	}
	return &ExhaustedError{NumArenas: numArenas}
}

func corruptionError(addr unsafe.Pointer, size, alignment int) error {
	assert(false, "double free or corruption")
	if !ErrorsEnabled {
		return nil
	}
	return &CorruptionError{Addr: addr, Size: size, Alignment: alignment}
}

func geometryError(numArenas, arenaSize int) error {
	if !ErrorsEnabled {
		return nil
	}
	return &GeometryError{NumArenas: numArenas, ArenaSize: arenaSize}
}
