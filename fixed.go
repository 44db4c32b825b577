package multiarena

import (
	"sync/atomic"
	"unsafe"
)

// noCopy flags accidental copies under go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// FixedPool is the unsynchronized pool variant with inline storage: the
// backing bytes live directly in the pool value as a field of array type
// A, so a pool placed in a global or on the stack needs no upstream
// resource at all. A must be a byte array, for example [16*1024 + 16]byte;
// declare it with MaxScalarAlign bytes of slack beyond numArenas*arenaSize
// so that Init can carve an aligned region wherever the value lands.
//
// A FixedPool must not be copied after Init.
type FixedPool[A any] struct {
	noCopy  noCopy
	engine  unsyncEngine
	storage A
}

// NewFixed allocates and initializes a FixedPool with the given geometry.
func NewFixed[A any](numArenas, arenaSize int) (*FixedPool[A], error) {
	f := new(FixedPool[A])
	if err := f.Init(numArenas, arenaSize); err != nil {
		return nil, err
	}
	return f, nil
}

// Init carves numArenas arenas of arenaSize bytes out of the inline
// storage. It fails with *GeometryError when the geometry is invalid or
// when A cannot hold it after alignment. Per-arena bookkeeping is
// allocated once here; the allocation path is allocation-free afterwards.
func (f *FixedPool[A]) Init(numArenas, arenaSize int) error {
	if !validGeometry(numArenas, arenaSize) {
		return geometryError(numArenas, arenaSize)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&f.storage)), unsafe.Sizeof(f.storage))
	off := alignOffset(uintptr(unsafe.Pointer(&f.storage)), MaxScalarAlign)
	total := numArenas * arenaSize
	if off+total > len(raw) {
		return geometryError(numArenas, arenaSize)
	}
	f.engine.init(raw[off:off+total],
		make([]uint32, numArenas), make([]uint32, numArenas), numArenas, arenaSize)
	return nil
}

// Allocate returns a pointer to size bytes aligned to alignment. See
// Pool.Allocate for the full contract.
func (f *FixedPool[A]) Allocate(size, alignment int) (unsafe.Pointer, error) {
	f.engine.checkLive()
	assert(isPowerOfTwo(alignment), "alignment must be a power of two")
	if size <= 0 {
		return nil, nil
	}
	ptr := f.engine.allocate(size, alignment)
	if ptr == nil {
		if size > f.engine.arenaSize {
			return nil, tooLargeError(size, f.engine.arenaSize)
		}
		return nil, exhaustedError(f.engine.numArenas)
	}
	return ptr, nil
}

// Deallocate returns a block previously obtained from Allocate. See
// Pool.Deallocate for the full contract.
func (f *FixedPool[A]) Deallocate(ptr unsafe.Pointer, size, alignment int) error {
	f.engine.checkLive()
	if ptr == nil {
		return nil
	}
	if !f.engine.deallocate(ptr) {
		return corruptionError(ptr, size, alignment)
	}
	return nil
}

// IsEqual reports whether other is this same pool.
func (f *FixedPool[A]) IsEqual(other Resource) bool {
	o, ok := other.(*FixedPool[A])
	return ok && o == f
}

// NumAllocations returns the number of live allocations across all arenas.
func (f *FixedPool[A]) NumAllocations() int {
	f.engine.checkLive()
	return f.engine.numAllocations()
}

// NumBusyArenas returns the number of arenas not on the free list. See
// Pool.NumBusyArenas.
func (f *FixedPool[A]) NumBusyArenas() int {
	f.engine.checkLive()
	return f.engine.numBusyArenas()
}

// NumArenas returns the arena count fixed at Init.
func (f *FixedPool[A]) NumArenas() int { return f.engine.numArenas }

// ArenaSize returns the per-arena byte size fixed at Init.
func (f *FixedPool[A]) ArenaSize() int { return f.engine.arenaSize }

// Release makes the pool unusable. The inline storage is part of the pool
// value itself, so nothing is freed; Init may be called again.
func (f *FixedPool[A]) Release() {
	assert(f.engine.storage == nil || f.engine.numAllocations() == 0, "release with live allocations")
	f.engine.storage = nil
	f.engine.freeList = nil
	f.engine.allocs = nil
}

// SafeFixedPool is the synchronized pool variant with inline storage. It
// combines SafePool's free-threaded contract, including the fixed
// MaxScalarAlign alignment, with FixedPool's inline byte-array storage.
//
// A SafeFixedPool must not be copied after Init.
type SafeFixedPool[A any] struct {
	engine  safeEngine
	storage A
}

// NewSafeFixed allocates and initializes a SafeFixedPool with the given
// geometry.
func NewSafeFixed[A any](numArenas, arenaSize int) (*SafeFixedPool[A], error) {
	s := new(SafeFixedPool[A])
	if err := s.Init(numArenas, arenaSize); err != nil {
		return nil, err
	}
	return s, nil
}

// Init carves numArenas arenas of arenaSize bytes out of the inline
// storage. See FixedPool.Init.
func (s *SafeFixedPool[A]) Init(numArenas, arenaSize int) error {
	if !validGeometry(numArenas, arenaSize) {
		return geometryError(numArenas, arenaSize)
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&s.storage)), unsafe.Sizeof(s.storage))
	off := alignOffset(uintptr(unsafe.Pointer(&s.storage)), MaxScalarAlign)
	total := numArenas * arenaSize
	if off+total > len(raw) {
		return geometryError(numArenas, arenaSize)
	}
	counters := make([]atomic.Uint32, 2*numArenas)
	s.engine.init(raw[off:off+total], make([]uint32, numArenas),
		counters[:numArenas], counters[numArenas:], numArenas, arenaSize)
	return nil
}

// Allocate returns a pointer to size bytes aligned to MaxScalarAlign; the
// alignment argument is ignored. See SafePool.Allocate.
func (s *SafeFixedPool[A]) Allocate(size, alignment int) (unsafe.Pointer, error) {
	s.engine.checkLive()
	if size <= 0 {
		return nil, nil
	}
	need := (size + MaxScalarAlign - 1) &^ (MaxScalarAlign - 1)
	if need > s.engine.arenaSize {
		return nil, tooLargeError(size, s.engine.arenaSize)
	}
	s.engine.mu.Lock()
	ptr := s.engine.allocate(need)
	s.engine.mu.Unlock()
	if ptr == nil {
		return nil, exhaustedError(s.engine.numArenas)
	}
	return ptr, nil
}

// Deallocate returns a block previously obtained from Allocate. See
// SafePool.Deallocate.
func (s *SafeFixedPool[A]) Deallocate(ptr unsafe.Pointer, size, alignment int) error {
	s.engine.checkLive()
	if ptr == nil {
		return nil
	}
	if !s.engine.deallocate(ptr) {
		return corruptionError(ptr, size, alignment)
	}
	return nil
}

// IsEqual reports whether other is this same pool.
func (s *SafeFixedPool[A]) IsEqual(other Resource) bool {
	o, ok := other.(*SafeFixedPool[A])
	return ok && o == s
}

// NumAllocations returns the number of live allocations across all arenas.
func (s *SafeFixedPool[A]) NumAllocations() int {
	s.engine.checkLive()
	return s.engine.numAllocations()
}

// NumBusyArenas returns the number of arenas not on the free list. See
// Pool.NumBusyArenas.
func (s *SafeFixedPool[A]) NumBusyArenas() int {
	s.engine.checkLive()
	return s.engine.numBusyArenas()
}

// NumArenas returns the arena count fixed at Init.
func (s *SafeFixedPool[A]) NumArenas() int { return s.engine.numArenas }

// ArenaSize returns the per-arena byte size fixed at Init.
func (s *SafeFixedPool[A]) ArenaSize() int { return s.engine.arenaSize }

// Release makes the pool unusable. The caller must have stopped all
// concurrent use first. Init may be called again.
func (s *SafeFixedPool[A]) Release() {
	assert(s.engine.storage == nil || s.engine.numAllocations() == 0, "release with live allocations")
	s.engine.mu.Lock()
	s.engine.storage = nil
	s.engine.freeList = nil
	s.engine.allocs = nil
	s.engine.deallocs = nil
	s.engine.mu.Unlock()
}
