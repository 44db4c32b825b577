// Package multiarena implements a family of bounded, constant-time arena
// pool allocators for real-time and latency-sensitive programs.
//
// # Overview
//
// A pool owns a fixed region of memory divided into N equally sized arenas
// of S bytes each. Allocations are served by bumping a pointer inside the
// active arena; when the active arena fills up, the next arena is taken
// from a free list. An arena is recycled only once every allocation made
// from it has been returned. Both allocation and deallocation are O(1):
// there is no search, no coalescing and no fragmentation inside an arena.
//
// The arena size S bounds the size of a single allocation; the arena count
// N bounds how many such maximum-size objects fit in the pool. Both are
// fixed for the lifetime of the pool, which makes the allocator unsuitable
// as a general-purpose heap but very predictable:
//
//   - Allocation: O(1), bump plus at most one arena refill
//   - Deallocation: O(1), counter decrement plus at most one free-list push
//   - No system calls or garbage collector pressure on the hot path
//
// # Variants
//
// Four pool variants exist along two axes, synchronized vs unsynchronized
// and inline vs upstream-backed storage:
//
//	p, err := multiarena.NewPool(16, 1024, nil)        // unsynchronized, heap-backed
//	s, err := multiarena.NewSafePool(64, 4096, nil)    // thread-safe, heap-backed
//	f, err := multiarena.NewFixed[[16*1024 + 16]byte](16, 1024)     // inline storage
//	c, err := multiarena.NewSafeFixed[[16*1024 + 16]byte](16, 1024) // inline, thread-safe
//
// A fifth variant, StatsPool, wraps the unsynchronized engine and records
// every live allocation so that the pool geometry can be tuned from
// histogram, percentile, mean and standard-deviation queries:
//
//	t, err := multiarena.NewStatsPool(16, 256, nil, nil)
//
// All five implement the Resource interface, so containers and helpers
// written against Resource work with any of them.
//
// # Basic Usage
//
//	pool, err := multiarena.NewPool(16, 1024, nil)
//	if err != nil {
//		// invalid geometry
//	}
//	defer pool.Release()
//
//	p, err := pool.Allocate(64, 8)
//	if err != nil {
//		// *TooLargeError or *ExhaustedError
//	}
//	// ... use the 64 bytes at p ...
//	pool.Deallocate(p, 64, 8)
//
// Typed helpers avoid raw pointer handling:
//
//	v, err := multiarena.New[int64](pool)
//	*v = 42
//	multiarena.Free(pool, v)
//
// # Failure Modes
//
// Allocate fails with *TooLargeError when a single request exceeds the
// arena size and with *ExhaustedError when no free arena remains. Both
// leave the pool untouched, so smaller requests keep working. Deallocate
// fails with *CorruptionError when given a pointer the pool does not own;
// that always indicates a consumer bug and the pool's subsequent behaviour
// is unspecified.
//
// Building with the multiarena_noerrors tag disables error reporting
// entirely: failing allocations return a nil pointer and a nil error, and
// the consumer is responsible for checking. ErrorsEnabled reflects the
// build mode. The multiarena_debug tag enables internal invariant
// assertions.
//
// # Thread Safety
//
// Pool, FixedPool and StatsPool are not safe for concurrent use; the
// caller must guarantee at most one operation is in flight at a time.
// SafePool and SafeFixedPool are free-threaded: the bump path runs inside
// a short mutex-guarded critical section and deallocations that do not
// empty an arena never take the mutex at all. The synchronized variants
// always align to MaxScalarAlign and ignore the caller's requested
// alignment; this keeps the critical section branch-free.
//
// # Ownership
//
// The pool owns its storage. Returned pointers are borrows into that
// storage and must all be given back through Deallocate before the pool is
// released; the pool does not trace live allocations on Release.
package multiarena
