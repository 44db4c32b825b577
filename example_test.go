package multiarena

import (
	"fmt"
	"sync"
)

// Example demonstrates basic pool usage through the typed helpers.
func Example() {
	pool, err := NewPool(16, 1024, nil)
	if err != nil {
		panic(err)
	}
	defer pool.Release()

	v, _ := New[int64](pool)
	*v = 42
	fmt.Printf("allocated int with value: %d\n", *v)

	s, _ := MakeSlice[int32](pool, 5)
	for i := range s {
		s[i] = int32(i * 2)
	}
	fmt.Printf("allocated slice: %v\n", s)

	fmt.Printf("live allocations: %d\n", pool.NumAllocations())
	fmt.Printf("busy arenas: %d\n", pool.NumBusyArenas())

	FreeSlice(pool, s)
	Free(pool, v)
	fmt.Printf("after free, live allocations: %d\n", pool.NumAllocations())

	// Output:
	// allocated int with value: 42
	// allocated slice: [0 2 4 6 8]
	// live allocations: 2
	// busy arenas: 1
	// after free, live allocations: 0
}

// ExampleStatsPool sizes a pool from the allocation statistics.
func ExampleStatsPool() {
	pool, err := NewStatsPool(16, 256, nil, nil)
	if err != nil {
		panic(err)
	}
	defer pool.Release()

	var live [][]byte
	for _, size := range []int{16, 16, 32, 64} {
		b, _ := MakeSlice[byte](pool, size)
		live = append(live, b)
	}

	fmt.Printf("bytes allocated: %d\n", pool.BytesAllocated())
	fmt.Printf("median block: %d\n", pool.Percentile(0.5))
	fmt.Printf("largest block: %d\n", pool.Percentile(1))
	fmt.Printf("mean block: %.0f\n", pool.Mean())

	for _, b := range live {
		FreeSlice(pool, b)
	}

	// Output:
	// bytes allocated: 128
	// median block: 16
	// largest block: 64
	// mean block: 32
}

// ExampleSafePool demonstrates concurrent allocation.
func ExampleSafePool() {
	pool, err := NewSafePool(64, 4096, nil)
	if err != nil {
		panic(err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				p, err := pool.Allocate(128, 16)
				if err != nil {
					return
				}
				pool.Deallocate(p, 128, 16)
			}
		}()
	}
	wg.Wait()

	fmt.Printf("live allocations after join: %d\n", pool.NumAllocations())

	// Output:
	// live allocations after join: 0
}

// ExampleFixedPool places a pool with inline storage in a global.
var requestPool FixedPool[[8*512 + MaxScalarAlign]byte]

func ExampleFixedPool() {
	if err := requestPool.Init(8, 512); err != nil {
		panic(err)
	}

	buf, _ := MakeSlice[byte](&requestPool, 100)
	fmt.Printf("allocated %d bytes inline\n", len(buf))
	FreeSlice(&requestPool, buf)

	// Output:
	// allocated 100 bytes inline
}
