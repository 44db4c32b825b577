package multiarena

import (
	"math"
	"sort"
	"sync"
	"unsafe"
)

// allocEntry is one live allocation in the tracking table.
type allocEntry struct {
	addr uintptr
	size int
}

// addrTable is a sorted address-to-size table whose backing memory is
// drawn from an upstream Resource rather than the Go heap. With the table
// upstream and the arena upstream both pointed at caller-supplied pools,
// a StatsPool runs fully heap-free.
type addrTable struct {
	upstream Resource
	raw      unsafe.Pointer
	entries  []allocEntry // sorted by addr
}

const tableInitialCap = 64

var entrySize = int(unsafe.Sizeof(allocEntry{}))

// find returns the index of addr, or the insertion point and false.
func (t *addrTable) find(addr uintptr) (int, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].addr >= addr
	})
	return i, i < len(t.entries) && t.entries[i].addr == addr
}

// insert records one allocation, growing the table through the upstream
// resource when full.
func (t *addrTable) insert(addr uintptr, size int) error {
	if len(t.entries) == cap(t.entries) {
		newCap := tableInitialCap
		if c := cap(t.entries); c > 0 {
			newCap = 2 * c
		}
		raw, err := t.upstream.Allocate(newCap*entrySize, MaxScalarAlign)
		if raw == nil {
			return err
		}
		grown := unsafe.Slice((*allocEntry)(raw), newCap)[:len(t.entries)]
		copy(grown, t.entries)
		if t.raw != nil {
			t.upstream.Deallocate(t.raw, cap(t.entries)*entrySize, MaxScalarAlign)
		}
		t.raw = raw
		t.entries = grown
	}
	i, _ := t.find(addr)
	t.entries = t.entries[:len(t.entries)+1]
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = allocEntry{addr: addr, size: size}
	return nil
}

// remove erases the entry at index i.
func (t *addrTable) remove(i int) {
	copy(t.entries[i:], t.entries[i+1:])
	t.entries = t.entries[:len(t.entries)-1]
}

func (t *addrTable) release() {
	if t.raw != nil {
		t.upstream.Deallocate(t.raw, cap(t.entries)*entrySize, MaxScalarAlign)
	}
	t.raw = nil
	t.entries = nil
}

// StatsPool wraps the unsynchronized engine and records every live
// allocation keyed by address, for sizing a pool before switching to one
// of the plain variants. An internal mutex serializes every allocate and
// deallocate so the tracking table is never read mid-update.
//
// The statistics describe the allocations live at query time, not
// lifetime cumulative totals.
type StatsPool struct {
	mu    sync.Mutex
	base  *Pool
	table addrTable

	maxBusyArenas      int
	maxLiveAllocations int
}

// NewStatsPool constructs a tracking pool of numArenas arenas of arenaSize
// bytes. The arenas are drawn from upstream and the tracking table from
// tableUpstream; the two are deliberately distinct so that both may be
// backed by other arena pools. Nil for either means the Go heap.
func NewStatsPool(numArenas, arenaSize int, upstream, tableUpstream Resource) (*StatsPool, error) {
	base, err := NewPool(numArenas, arenaSize, upstream)
	if base == nil {
		return nil, err
	}
	if tableUpstream == nil {
		tableUpstream = Heap()
	}
	return &StatsPool{base: base, table: addrTable{upstream: tableUpstream}}, nil
}

// Allocate serves from the wrapped pool and records the new block in the
// tracking table. See Pool.Allocate for the base contract.
func (t *StatsPool) Allocate(size, alignment int) (unsafe.Pointer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ptr, err := t.base.Allocate(size, alignment)
	if ptr == nil {
		return nil, err
	}
	if err := t.table.insert(uintptr(ptr), size); err != nil {
		t.base.Deallocate(ptr, size, alignment)
		return nil, err
	}
	if busy := t.base.NumBusyArenas(); busy > t.maxBusyArenas {
		t.maxBusyArenas = busy
	}
	if live := len(t.table.entries); live > t.maxLiveAllocations {
		t.maxLiveAllocations = live
	}
	return ptr, nil
}

// Deallocate erases the block from the tracking table and returns it to
// the wrapped pool. A pointer that is not currently live fails with
// *CorruptionError; this catches double frees the plain variants cannot.
func (t *StatsPool) Deallocate(ptr unsafe.Pointer, size, alignment int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ptr == nil {
		return nil
	}
	i, ok := t.table.find(uintptr(ptr))
	if !ok {
		return corruptionError(ptr, size, alignment)
	}
	t.table.remove(i)
	return t.base.Deallocate(ptr, size, alignment)
}

// IsEqual reports whether other is this same pool.
func (t *StatsPool) IsEqual(other Resource) bool {
	o, ok := other.(*StatsPool)
	return ok && o == t
}

// NumAllocations returns the number of live allocations across all arenas.
func (t *StatsPool) NumAllocations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.base.NumAllocations()
}

// NumBusyArenas returns the number of arenas not on the free list. See
// Pool.NumBusyArenas.
func (t *StatsPool) NumBusyArenas() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.base.NumBusyArenas()
}

// NumArenas returns the arena count fixed at construction.
func (t *StatsPool) NumArenas() int { return t.base.NumArenas() }

// ArenaSize returns the per-arena byte size fixed at construction.
func (t *StatsPool) ArenaSize() int { return t.base.ArenaSize() }

// MaxBusyArenas returns the all-time peak of concurrently busy arenas.
func (t *StatsPool) MaxBusyArenas() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxBusyArenas
}

// MaxLiveAllocations returns the all-time peak of concurrently live
// allocations.
func (t *StatsPool) MaxLiveAllocations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxLiveAllocations
}

// AddressToSizeMap returns a snapshot of the live allocations keyed by
// address.
func (t *StatsPool) AddressToSizeMap() map[uintptr]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := make(map[uintptr]int, len(t.table.entries))
	for _, e := range t.table.entries {
		m[e.addr] = e.size
	}
	return m
}

// BytesAllocated returns the byte total of all live allocations.
func (t *StatsPool) BytesAllocated() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	sum := 0
	for _, e := range t.table.entries {
		sum += e.size
	}
	return sum
}

// Histogram returns a map from observed allocation size to the number of
// live allocations of that size.
func (t *StatsPool) Histogram() map[int]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	hist := make(map[int]int)
	for _, e := range t.table.entries {
		hist[e.size]++
	}
	return hist
}

// sizeCount is one ascending-ordered histogram bucket.
type sizeCount struct {
	size  int
	count int
}

// sortedHistogram must be called with the mutex held.
func (t *StatsPool) sortedHistogram() []sizeCount {
	hist := make(map[int]int)
	for _, e := range t.table.entries {
		hist[e.size]++
	}
	buckets := make([]sizeCount, 0, len(hist))
	for s, c := range hist {
		buckets = append(buckets, sizeCount{size: s, count: c})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].size < buckets[j].size })
	return buckets
}

// Percentile walks the live allocation sizes in ascending order and
// returns the first size at which the cumulative count reaches p of the
// total, with p clamped to [0, 1]. Percentile(0.5) is the median
// block size; Percentile(1) the maximum. An empty pool returns 0.
//
// Sizes between two histogram mass points resolve to the last fully
// included size; callers needing interpolation should compute it from
// Histogram themselves.
func (t *StatsPool) Percentile(p float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	p = math.Min(math.Max(p, 0), 1)
	total := len(t.table.entries)
	if p == 0 || total == 0 {
		return 0
	}
	limit := p * float64(total)
	cum := 0.0
	last := 0
	for _, b := range t.sortedHistogram() {
		if cum >= limit {
			break
		}
		cum += float64(b.count)
		last = b.size
	}
	return last
}

// Mean returns the mean live allocation size, 0 when empty.
func (t *StatsPool) Mean() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meanLocked()
}

func (t *StatsPool) meanLocked() float64 {
	total := len(t.table.entries)
	if total == 0 {
		return 0
	}
	sum := 0
	for _, e := range t.table.entries {
		sum += e.size
	}
	return float64(sum) / float64(total)
}

// StdDev returns the standard deviation of the live allocation sizes,
// 0 when empty.
func (t *StatsPool) StdDev() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := len(t.table.entries)
	if total == 0 {
		return 0
	}
	mean := t.meanLocked()
	variance := 0.0
	for _, b := range t.sortedHistogram() {
		diff := float64(b.size) - mean
		variance += diff * diff * float64(b.count) / float64(total)
	}
	return math.Sqrt(variance)
}

// Release frees the tracking table and the wrapped pool.
func (t *StatsPool) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table.release()
	t.base.Release()
}
