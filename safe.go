package multiarena

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// safeEngine is the free-threaded bump core shared by SafePool and
// SafeFixedPool. The frontier ascends from the arena base and every
// request is rounded up to a whole number of MaxScalarAlign bins, so the
// critical section is branch-free: an integer comparison, a frontier
// update and one counter increment.
//
// Each arena carries separate allocation and deallocation counters. Both
// are sync/atomic counters, which Go orders sequentially consistently; the
// allocation counter only moves under the mutex, the deallocation counter
// moves lock-free. An arena is
// vacant when the two are equal, and the mutex is the sole authority for
// acting on that: deallocations that do not empty an arena never lock.
type safeEngine struct {
	mu        sync.Mutex
	numArenas int
	arenaSize int
	storage   []byte
	dataOff   int // offset of the allocation frontier in the active arena
	reserved  int // bytes reserved in the active arena
	active    int
	freeList  []uint32
	freeHead  int
	allocs    []atomic.Uint32
	deallocs  []atomic.Uint32
}

func (e *safeEngine) init(storage []byte, freeList []uint32, allocs, deallocs []atomic.Uint32, numArenas, arenaSize int) {
	e.numArenas = numArenas
	e.arenaSize = arenaSize
	e.storage = storage
	e.freeList = freeList
	e.allocs = allocs
	e.deallocs = deallocs
	for i := 0; i < numArenas; i++ {
		e.freeList[i] = uint32(numArenas - 1 - i)
		e.allocs[i].Store(0)
		e.deallocs[i].Store(0)
	}
	e.freeHead = numArenas
	e.reserveNextArena()
}

// reserveNextArena activates the top free arena. Mutex must be held.
func (e *safeEngine) reserveNextArena() bool {
	if e.freeHead == 0 {
		return false
	}
	e.freeHead--
	e.active = int(e.freeList[e.freeHead])
	e.dataOff = e.arenaSize * e.active
	e.reserved = 0
	return true
}

// resetActiveArena re-arms the active arena in place. Mutex must be held.
func (e *safeEngine) resetActiveArena() {
	assert(e.liveInArena(e.active) == 0, "reset of a non-empty arena")
	e.dataOff = e.arenaSize * e.active
	e.reserved = 0
	e.allocs[e.active].Store(0)
	e.deallocs[e.active].Store(0)
}

// releaseArena pushes an emptied, non-active arena back onto the free
// list. Mutex must be held.
func (e *safeEngine) releaseArena(id int) {
	assert(e.liveInArena(id) == 0, "release of a non-empty arena")
	assert(id != e.active, "release of the active arena")
	assert(e.freeHead < e.numArenas, "free list overflow")
	e.freeList[e.freeHead] = uint32(id)
	e.freeHead++
	e.allocs[id].Store(0)
	e.deallocs[id].Store(0)
}

// allocate serves a request of need bytes, need being a multiple of
// MaxScalarAlign no larger than arenaSize. Mutex must be held. Returns nil
// when every arena is exhausted.
func (e *safeEngine) allocate(need int) unsafe.Pointer {
	for {
		reserved := e.reserved + need
		if reserved <= e.arenaSize {
			off := e.dataOff
			e.reserved = reserved
			e.dataOff = off + need
			e.allocs[e.active].Add(1)
			return unsafe.Pointer(&e.storage[off])
		}
		if !e.reserveNextArena() {
			return nil
		}
	}
}

// deallocate gives back one allocation, locking only when the owning
// arena may have become vacant. Reports false on a foreign pointer.
func (e *safeEngine) deallocate(p unsafe.Pointer) bool {
	off := uintptr(p) - uintptr(unsafe.Pointer(&e.storage[0]))
	if off >= uintptr(len(e.storage)) {
		return false
	}
	id := int(off) / e.arenaSize
	deallocs := e.deallocs[id].Add(1)
	allocs := e.allocs[id].Load()
	if allocs != deallocs {
		return true
	}
	// The arena may be vacant. The counters were read without the lock,
	// so re-read both under it before recycling.
	e.mu.Lock()
	assert(e.allocs[id].Load() >= e.deallocs[id].Load(), "deallocations exceed allocations")
	if allocs == e.allocs[id].Load() && allocs == e.deallocs[id].Load() {
		if id == e.active {
			e.resetActiveArena()
		} else {
			e.releaseArena(id)
		}
	}
	e.mu.Unlock()
	return true
}

// liveInArena returns the live count of one arena. Mutex must be held for
// a stable answer.
func (e *safeEngine) liveInArena(id int) int {
	return int(e.allocs[id].Load() - e.deallocs[id].Load())
}

func (e *safeEngine) numAllocations() int {
	e.mu.Lock()
	n := 0
	for i := 0; i < e.numArenas; i++ {
		n += e.liveInArena(i)
	}
	e.mu.Unlock()
	return n
}

func (e *safeEngine) numBusyArenas() int {
	e.mu.Lock()
	n := e.numArenas - e.freeHead
	if n == 1 && e.liveInArena(e.active) == 0 {
		n = 0
	}
	e.mu.Unlock()
	return n
}

func (e *safeEngine) checkLive() {
	if e.storage == nil {
		panic("multiarena: use after Release()")
	}
}

// SafePool is the synchronized, upstream-backed pool variant. Any number
// of goroutines may allocate and deallocate concurrently.
//
// Unlike Pool, SafePool ignores the caller's requested alignment and
// always aligns to MaxScalarAlign, rounding every request up to a multiple
// of it. This keeps the critical section branch-free.
type SafePool struct {
	engine   safeEngine
	upstream Resource
	storeRaw unsafe.Pointer
	metaRaw  unsafe.Pointer
}

// NewSafePool constructs a thread-safe pool of numArenas arenas of
// arenaSize bytes each. A nil upstream means the Go heap.
func NewSafePool(numArenas, arenaSize int, upstream Resource) (*SafePool, error) {
	if !validGeometry(numArenas, arenaSize) {
		return nil, geometryError(numArenas, arenaSize)
	}
	if upstream == nil {
		upstream = Heap()
	}

	total := numArenas * arenaSize
	storeRaw, err := upstream.Allocate(total, cacheLineSize)
	if storeRaw == nil {
		return nil, err
	}
	// One block for the free list and both per-arena counter arrays.
	metaRaw, err := upstream.Allocate(3*numArenas*4, MaxScalarAlign)
	if metaRaw == nil {
		upstream.Deallocate(storeRaw, total, cacheLineSize)
		return nil, err
	}

	s := &SafePool{upstream: upstream, storeRaw: storeRaw, metaRaw: metaRaw}
	freeList := unsafe.Slice((*uint32)(metaRaw), numArenas)
	counters := unsafe.Slice((*atomic.Uint32)(unsafe.Add(metaRaw, numArenas*4)), 2*numArenas)
	s.engine.init(unsafe.Slice((*byte)(storeRaw), total),
		freeList, counters[:numArenas], counters[numArenas:], numArenas, arenaSize)
	return s, nil
}

// Allocate returns a pointer to size bytes aligned to MaxScalarAlign; the
// alignment argument is accepted for Resource compatibility and ignored.
// A zero-size request returns a nil pointer. On failure the pool is
// unchanged and the error is *TooLargeError or *ExhaustedError.
func (s *SafePool) Allocate(size, alignment int) (unsafe.Pointer, error) {
	s.engine.checkLive()
	if size <= 0 {
		return nil, nil
	}
	// Split the arena into bins of MaxScalarAlign bytes and round the
	// request up to whole bins.
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

// Deallocate returns a block previously obtained from Allocate. The fast
// path is lock-free; the mutex is taken only when the owning arena may
// have become vacant. Deallocating a pointer the pool does not own fails
// with *CorruptionError. A nil pointer is the zero-size sentinel and is
// ignored.
func (s *SafePool) Deallocate(ptr unsafe.Pointer, size, alignment int) error {
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
func (s *SafePool) IsEqual(other Resource) bool {
	o, ok := other.(*SafePool)
	return ok && o == s
}

// NumAllocations returns the number of live allocations across all arenas.
func (s *SafePool) NumAllocations() int {
	s.engine.checkLive()
	return s.engine.numAllocations()
}

// NumBusyArenas returns the number of arenas not on the free list. See
// Pool.NumBusyArenas.
func (s *SafePool) NumBusyArenas() int {
	s.engine.checkLive()
	return s.engine.numBusyArenas()
}

// NumArenas returns the arena count fixed at construction.
func (s *SafePool) NumArenas() int { return s.engine.numArenas }

// ArenaSize returns the per-arena byte size fixed at construction.
func (s *SafePool) ArenaSize() int { return s.engine.arenaSize }

// Release returns the storage to the upstream resource and makes the pool
// unusable. The caller must have deallocated everything and stopped all
// concurrent use.
func (s *SafePool) Release() {
	if s.engine.storage == nil {
		return
	}
	assert(s.engine.numAllocations() == 0, "release with live allocations")
	total := s.engine.numArenas * s.engine.arenaSize
	s.upstream.Deallocate(s.storeRaw, total, cacheLineSize)
	s.upstream.Deallocate(s.metaRaw, 3*s.engine.numArenas*4, MaxScalarAlign)
	s.engine.storage = nil
	s.engine.freeList = nil
	s.engine.allocs = nil
	s.engine.deallocs = nil
	s.storeRaw = nil
	s.metaRaw = nil
}
