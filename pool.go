package multiarena

import "unsafe"

// unsyncEngine is the single-threaded bump core shared by Pool and
// FixedPool. It serves allocations from the active arena by moving a
// frontier downward from the arena's upper bound; the descending direction
// makes per-allocation alignment a single mask. All positions are kept as
// offsets into the storage slice rather than raw addresses, so an engine
// embedded in a moving object stays valid.
//
// The free list is a LIFO array of arena ids. Slots below freeHead name
// free arenas; the active arena is never on the list.
type unsyncEngine struct {
	numArenas int
	arenaSize int
	storage   []byte // aligned view, len == numArenas*arenaSize
	dataOff   int    // offset of the allocation frontier in the active arena
	bytesLeft int    // free bytes remaining in the active arena
	active    int    // id of the active arena
	freeList  []uint32
	freeHead  int      // slots below this index hold free arena ids
	allocs    []uint32 // live allocations per arena
}

func (e *unsyncEngine) init(storage []byte, freeList, allocs []uint32, numArenas, arenaSize int) {
	e.numArenas = numArenas
	e.arenaSize = arenaSize
	e.storage = storage
	e.freeList = freeList
	e.allocs = allocs
	for i := 0; i < numArenas; i++ {
		e.freeList[i] = uint32(numArenas - 1 - i)
		e.allocs[i] = 0
	}
	e.freeHead = numArenas
	// At least one arena is active at all times.
	e.reserveNextArena()
}

// reserveNextArena pops the top of the free list and activates it.
// Returns false and changes nothing when the list is empty.
func (e *unsyncEngine) reserveNextArena() bool {
	if e.freeHead == 0 {
		return false
	}
	e.freeHead--
	e.bytesLeft = e.arenaSize
	e.active = int(e.freeList[e.freeHead])
	// The frontier starts one past the last byte of the arena.
	e.dataOff = e.arenaSize * (e.active + 1)
	return true
}

// resetActiveArena re-arms the active arena in place, skipping the
// release/reserve cycle.
func (e *unsyncEngine) resetActiveArena() {
	assert(e.allocs[e.active] == 0, "reset of a non-empty arena")
	e.bytesLeft = e.arenaSize
	e.dataOff = e.arenaSize * (e.active + 1)
	e.allocs[e.active] = 0
}

// releaseArena pushes an emptied, non-active arena back onto the free list.
func (e *unsyncEngine) releaseArena(id int) {
	assert(e.allocs[id] == 0, "release of a non-empty arena")
	assert(e.freeHead < e.numArenas, "free list overflow")
	e.freeList[e.freeHead] = uint32(id)
	e.freeHead++
	e.allocs[id] = 0
}

// allocate returns a pointer to size bytes aligned to align, or nil when
// the request cannot be served. The caller classifies a nil result: a
// request above arenaSize can never succeed, anything else means the pool
// is out of free arenas. Failed requests leave the frontier untouched.
func (e *unsyncEngine) allocate(size, align int) unsafe.Pointer {
	// Saved so that a failure after one or more refills can be undone;
	// reserveNextArena only moves freeHead, so the popped ids are intact.
	freeHead, active, dataOff, bytesLeft := e.freeHead, e.active, e.dataOff, e.bytesLeft
	for {
		base := uintptr(unsafe.Pointer(&e.storage[0]))
		p := base + uintptr(e.dataOff) - uintptr(size)
		need := size + int(p&uintptr(align-1))
		if need <= e.bytesLeft {
			off := e.dataOff - need
			e.dataOff = off
			e.bytesLeft -= need
			e.allocs[e.active]++
			return unsafe.Pointer(&e.storage[off])
		}
		// The active arena is full. Tap the next free one; a request
		// no larger than an arena then fits unless its alignment exceeds
		// MaxScalarAlign, in which case further arenas are tried.
		if size > e.arenaSize || !e.reserveNextArena() {
			e.freeHead, e.active, e.dataOff, e.bytesLeft = freeHead, active, dataOff, bytesLeft
			return nil
		}
	}
}

// deallocate gives back one allocation. It reports false when p does not
// point into the pool's storage, the sole defense against double frees and
// foreign pointers.
func (e *unsyncEngine) deallocate(p unsafe.Pointer) bool {
	off := uintptr(p) - uintptr(unsafe.Pointer(&e.storage[0]))
	if off >= uintptr(len(e.storage)) {
		return false
	}
	id := int(off) / e.arenaSize
	e.allocs[id]--
	if e.allocs[id] == 0 {
		if id == e.active {
			e.resetActiveArena()
		} else {
			e.releaseArena(id)
		}
	}
	return true
}

func (e *unsyncEngine) numAllocations() int {
	n := 0
	for i := 0; i < e.numArenas; i++ {
		n += int(e.allocs[i])
	}
	return n
}

func (e *unsyncEngine) numBusyArenas() int {
	n := e.numArenas - e.freeHead
	// The active arena counts as busy even before its first allocation,
	// except when it is the only non-free arena and still empty.
	if n == 1 && e.allocs[e.active] == 0 {
		n = 0
	}
	return n
}

func (e *unsyncEngine) checkLive() {
	if e.storage == nil {
		panic("multiarena: use after Release()")
	}
}

// Pool is the unsynchronized, upstream-backed pool variant. Its storage
// and per-arena bookkeeping are drawn from the upstream Resource once at
// construction and returned on Release; the upstream is never touched on
// the allocation path.
//
// Pool is not safe for concurrent use. The caller must guarantee at most
// one operation is in progress at any time; use SafePool otherwise.
type Pool struct {
	engine   unsyncEngine
	upstream Resource
	storeRaw unsafe.Pointer // upstream storage block
	metaRaw  unsafe.Pointer // upstream bookkeeping block
}

// NewPool constructs a pool of numArenas arenas of arenaSize bytes each.
// arenaSize must be a positive multiple of MaxScalarAlign and bounds the
// largest single allocation. A nil upstream means the Go heap.
func NewPool(numArenas, arenaSize int, upstream Resource) (*Pool, error) {
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
	// One block for the free list and the per-arena counters.
	metaRaw, err := upstream.Allocate(2*numArenas*4, MaxScalarAlign)
	if metaRaw == nil {
		upstream.Deallocate(storeRaw, total, cacheLineSize)
		return nil, err
	}

	p := &Pool{upstream: upstream, storeRaw: storeRaw, metaRaw: metaRaw}
	meta := unsafe.Slice((*uint32)(metaRaw), 2*numArenas)
	p.engine.init(unsafe.Slice((*byte)(storeRaw), total),
		meta[:numArenas], meta[numArenas:], numArenas, arenaSize)
	return p, nil
}

// Allocate returns a pointer to size bytes aligned to alignment, served
// from the active arena or from the next free one. A zero-size request
// returns a nil pointer. On failure the pool is unchanged and the error is
// *TooLargeError or *ExhaustedError.
func (p *Pool) Allocate(size, alignment int) (unsafe.Pointer, error) {
	p.engine.checkLive()
	assert(isPowerOfTwo(alignment), "alignment must be a power of two")
	if size <= 0 {
		return nil, nil
	}
	ptr := p.engine.allocate(size, alignment)
	if ptr == nil {
		if size > p.engine.arenaSize {
			return nil, tooLargeError(size, p.engine.arenaSize)
		}
		return nil, exhaustedError(p.engine.numArenas)
	}
	return ptr, nil
}

// Deallocate returns a block previously obtained from Allocate. When the
// owning arena's last allocation is returned the arena is reset in place
// (if active) or pushed back onto the free list. Deallocating a pointer
// the pool does not own fails with *CorruptionError. A nil pointer is the
// zero-size sentinel and is ignored.
func (p *Pool) Deallocate(ptr unsafe.Pointer, size, alignment int) error {
	p.engine.checkLive()
	if ptr == nil {
		return nil
	}
	if !p.engine.deallocate(ptr) {
		return corruptionError(ptr, size, alignment)
	}
	return nil
}

// IsEqual reports whether other is this same pool.
func (p *Pool) IsEqual(other Resource) bool {
	o, ok := other.(*Pool)
	return ok && o == p
}

// NumAllocations returns the number of live allocations across all arenas.
func (p *Pool) NumAllocations() int {
	p.engine.checkLive()
	return p.engine.numAllocations()
}

// NumBusyArenas returns the number of arenas not on the free list: those
// holding live allocations plus the active arena, which is not counted
// while it is the only such arena and holds no allocations.
func (p *Pool) NumBusyArenas() int {
	p.engine.checkLive()
	return p.engine.numBusyArenas()
}

// NumArenas returns the arena count fixed at construction.
func (p *Pool) NumArenas() int { return p.engine.numArenas }

// ArenaSize returns the per-arena byte size fixed at construction.
func (p *Pool) ArenaSize() int { return p.engine.arenaSize }

// Release returns the storage to the upstream resource and makes the pool
// unusable. All allocations must have been deallocated first; the pool
// does not verify this outside debug builds. Any subsequent operation
// panics.
func (p *Pool) Release() {
	if p.engine.storage == nil {
		return
	}
	assert(p.engine.numAllocations() == 0, "release with live allocations")
	total := p.engine.numArenas * p.engine.arenaSize
	p.upstream.Deallocate(p.storeRaw, total, cacheLineSize)
	p.upstream.Deallocate(p.metaRaw, 2*p.engine.numArenas*4, MaxScalarAlign)
	p.engine.storage = nil
	p.engine.freeList = nil
	p.engine.allocs = nil
	p.storeRaw = nil
	p.metaRaw = nil
}
