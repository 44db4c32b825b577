package multiarena

import (
	"errors"
	"math"
	"testing"
	"unsafe"
)

func TestNewStatsPool(t *testing.T) {
	st, err := NewStatsPool(16, 256, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Release()

	if st.NumArenas() != 16 || st.ArenaSize() != 256 {
		t.Errorf("geometry = (%d, %d), want (16, 256)", st.NumArenas(), st.ArenaSize())
	}
	if st.NumAllocations() != 0 {
		t.Errorf("initial NumAllocations() = %d, want 0", st.NumAllocations())
	}
	if st.BytesAllocated() != 0 {
		t.Errorf("initial BytesAllocated() = %d, want 0", st.BytesAllocated())
	}

	if _, err := NewStatsPool(0, 256, nil, nil); err == nil {
		t.Error("NewStatsPool(0, 256) succeeded, want geometry error")
	}
}

// The statistics snapshot over a fixed mix of live double allocations.
func TestStatsPoolSnapshot(t *testing.T) {
	const doubleSize = int(unsafe.Sizeof(float64(0)))
	st, err := NewStatsPool(16, 256, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Release()

	counts := []int{1, 2, 2, 4, 8, 8, 16, 20, 20, 20, 20, 30}
	type alloc struct {
		ptr  unsafe.Pointer
		size int
	}
	var live []alloc
	total := 0
	for _, n := range counts {
		size := n * doubleSize
		ptr, err := st.Allocate(size, doubleSize)
		if err != nil {
			t.Fatalf("Allocate(%d) error = %v", size, err)
		}
		live = append(live, alloc{ptr: ptr, size: size})
		total += n
	}

	if got := st.NumAllocations(); got != 12 {
		t.Errorf("NumAllocations() = %d, want 12", got)
	}
	if got := st.BytesAllocated(); got != total*doubleSize {
		t.Errorf("BytesAllocated() = %d, want %d", got, total*doubleSize)
	}

	hist := st.Histogram()
	if len(hist) != 7 {
		t.Errorf("Histogram() has %d keys, want 7", len(hist))
	}
	if hist[20*doubleSize] != 4 {
		t.Errorf("Histogram()[%d] = %d, want 4", 20*doubleSize, hist[20*doubleSize])
	}

	p50 := st.Percentile(0.5)
	p100 := st.Percentile(1.0)
	if p100 != 30*doubleSize {
		t.Errorf("Percentile(1.0) = %d, want %d", p100, 30*doubleSize)
	}
	if p50 > p100 {
		t.Errorf("Percentile(0.5) = %d exceeds Percentile(1.0) = %d", p50, p100)
	}

	wantMean := float64(total*doubleSize) / 12
	if mean := st.Mean(); math.Abs(mean-wantMean) > 1e-9 {
		t.Errorf("Mean() = %v, want %v", mean, wantMean)
	}
	if sd := st.StdDev(); sd < 0 {
		t.Errorf("StdDev() = %v, want >= 0", sd)
	}

	m := st.AddressToSizeMap()
	if len(m) != 12 {
		t.Errorf("AddressToSizeMap() has %d entries, want 12", len(m))
	}
	for _, a := range live {
		if m[uintptr(a.ptr)] != a.size {
			t.Errorf("AddressToSizeMap()[%p] = %d, want %d", a.ptr, m[uintptr(a.ptr)], a.size)
		}
	}

	// Statistics describe live allocations only: draining the pool
	// empties them.
	for _, a := range live {
		if err := st.Deallocate(a.ptr, a.size, doubleSize); err != nil {
			t.Fatalf("Deallocate error = %v", err)
		}
	}
	if got := st.BytesAllocated(); got != 0 {
		t.Errorf("BytesAllocated() after drain = %d, want 0", got)
	}
	if got := st.Percentile(0.5); got != 0 {
		t.Errorf("Percentile(0.5) on empty pool = %d, want 0", got)
	}
	if got := st.Mean(); got != 0 {
		t.Errorf("Mean() on empty pool = %v, want 0", got)
	}
	if got := st.StdDev(); got != 0 {
		t.Errorf("StdDev() on empty pool = %v, want 0", got)
	}
}

func TestStatsPoolPercentileBounds(t *testing.T) {
	st, err := NewStatsPool(16, 256, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Release()

	var ptrs []unsafe.Pointer
	for _, size := range []int{16, 32, 64} {
		ptr, err := st.Allocate(size, 8)
		if err != nil {
			t.Fatal(err)
		}
		ptrs = append(ptrs, ptr)
	}

	if got := st.Percentile(0); got != 0 {
		t.Errorf("Percentile(0) = %d, want 0", got)
	}
	if got := st.Percentile(-0.5); got != 0 {
		t.Errorf("Percentile(-0.5) = %d, want 0 (clamped)", got)
	}
	if got := st.Percentile(2); got != 64 {
		t.Errorf("Percentile(2) = %d, want 64 (clamped)", got)
	}
	// One third of the mass is at or below the smallest size.
	if got := st.Percentile(1.0 / 3); got != 16 {
		t.Errorf("Percentile(1/3) = %d, want 16", got)
	}

	for i, ptr := range ptrs {
		st.Deallocate(ptr, []int{16, 32, 64}[i], 8)
	}
}

func TestStatsPoolDoubleFree(t *testing.T) {
	st, err := NewStatsPool(16, 256, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Release()

	ptr, err := st.Allocate(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Deallocate(ptr, 64, 8); err != nil {
		t.Fatalf("first Deallocate error = %v", err)
	}

	// The tracking table no longer knows the pointer, which catches the
	// double free before it reaches the engine.
	err = st.Deallocate(ptr, 64, 8)
	var corrupt *CorruptionError
	if !errors.As(err, &corrupt) {
		t.Fatalf("second Deallocate error = %v, want *CorruptionError", err)
	}
}

func TestStatsPoolHighWaterMarks(t *testing.T) {
	st, err := NewStatsPool(16, 256, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Release()

	var ptrs []unsafe.Pointer
	for i := 0; i < 6; i++ {
		ptr, err := st.Allocate(256, 8)
		if err != nil {
			t.Fatal(err)
		}
		ptrs = append(ptrs, ptr)
	}
	for _, ptr := range ptrs {
		st.Deallocate(ptr, 256, 8)
	}

	// The peaks survive the drain.
	if got := st.MaxBusyArenas(); got != 6 {
		t.Errorf("MaxBusyArenas() = %d, want 6", got)
	}
	if got := st.MaxLiveAllocations(); got != 6 {
		t.Errorf("MaxLiveAllocations() = %d, want 6", got)
	}
	if got := st.NumAllocations(); got != 0 {
		t.Errorf("NumAllocations() = %d, want 0", got)
	}
}

// Both the arenas and the tracking table can draw from caller-supplied
// pools, leaving the Go heap out of the picture entirely.
func TestStatsPoolHeapFreeConfiguration(t *testing.T) {
	storageUpstream, err := NewPool(4, 8192, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer storageUpstream.Release()
	tableUpstream, err := NewPool(4, 4096, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tableUpstream.Release()

	st, err := NewStatsPool(16, 256, storageUpstream, tableUpstream)
	if err != nil {
		t.Fatal(err)
	}

	if storageUpstream.NumAllocations() == 0 {
		t.Error("arena upstream untouched at construction")
	}

	var ptrs []unsafe.Pointer
	for i := 0; i < 32; i++ {
		ptr, err := st.Allocate(64, 8)
		if err != nil {
			t.Fatalf("Allocate #%d error = %v", i, err)
		}
		ptrs = append(ptrs, ptr)
	}
	if tableUpstream.NumAllocations() == 0 {
		t.Error("tracking table not drawn from its upstream")
	}
	for _, ptr := range ptrs {
		if err := st.Deallocate(ptr, 64, 8); err != nil {
			t.Fatalf("Deallocate error = %v", err)
		}
	}

	st.Release()
	if got := storageUpstream.NumAllocations(); got != 0 {
		t.Errorf("arena upstream has %d live blocks after Release, want 0", got)
	}
	if got := tableUpstream.NumAllocations(); got != 0 {
		t.Errorf("table upstream has %d live blocks after Release, want 0", got)
	}
}

func TestStatsPoolForwardsFailures(t *testing.T) {
	st, err := NewStatsPool(2, 64, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Release()

	if _, err := st.Allocate(100, 8); !errors.As(err, new(*TooLargeError)) {
		t.Errorf("oversized Allocate error = %v, want *TooLargeError", err)
	}

	p1, _ := st.Allocate(64, 8)
	p2, _ := st.Allocate(64, 8)
	if _, err := st.Allocate(64, 8); !errors.As(err, new(*ExhaustedError)) {
		t.Errorf("exhausted Allocate error = %v, want *ExhaustedError", err)
	}
	st.Deallocate(p1, 64, 8)
	st.Deallocate(p2, 64, 8)
}
