package multiarena

import "unsafe"

// New returns a pointer to a zeroed T allocated from the resource.
// T must not contain pointers: the garbage collector does not scan pool
// storage, so a pointer stored there would not keep its target alive.
// A zero-size T yields a nil pointer.
func New[T any](r Resource) (*T, error) {
	var zero T
	p, err := r.Allocate(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if p == nil {
		return nil, err
	}
	v := (*T)(p)
	// Pool memory is recycled without clearing.
	*v = zero
	return v, nil
}

// NewUninitialized is like New but skips zeroing; the memory contents are
// whatever the arena last held. Ensure proper initialization before use.
func NewUninitialized[T any](r Resource) (*T, error) {
	var zero T
	p, err := r.Allocate(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if p == nil {
		return nil, err
	}
	return (*T)(p), nil
}

// Free returns a value obtained from New or NewUninitialized to the
// resource.
func Free[T any](r Resource, v *T) error {
	var zero T
	return r.Deallocate(unsafe.Pointer(v), int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
}

// MakeSlice allocates a zeroed slice of n elements of type T from the
// resource. Like New, T must not contain pointers. Returns nil if n <= 0.
func MakeSlice[T any](r Resource, n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	var zero T
	p, err := r.Allocate(n*int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if p == nil {
		return nil, err
	}
	s := unsafe.Slice((*T)(p), n)
	clear(s)
	return s, nil
}

// MakeSliceUninitialized is like MakeSlice but skips zeroing.
func MakeSliceUninitialized[T any](r Resource, n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	var zero T
	p, err := r.Allocate(n*int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if p == nil {
		return nil, err
	}
	return unsafe.Slice((*T)(p), n), nil
}

// FreeSlice returns a slice obtained from MakeSlice to the resource. The
// slice must have its original length.
func FreeSlice[T any](r Resource, s []T) error {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return r.Deallocate(unsafe.Pointer(&s[0]), len(s)*int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
}
