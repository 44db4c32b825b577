package multiarena

import (
	"sync"
	"unsafe"
)

// Resource is the polymorphic memory resource interface implemented by
// every pool variant in this package. Arbitrary consumers request raw
// bytes through it without knowing which allocator serves them.
//
// Allocate returns a pointer to size bytes aligned to alignment, which
// must be a power of two. A request of zero bytes returns a nil pointer
// and a nil error. Deallocate returns a block previously obtained from the
// same resource; size and alignment must match the original request.
// IsEqual reports whether the other resource is the same object, meaning
// memory allocated from one can be deallocated through the other.
type Resource interface {
	Allocate(size, alignment int) (unsafe.Pointer, error)
	Deallocate(p unsafe.Pointer, size, alignment int) error
	IsEqual(other Resource) bool
}

// HeapResource is a Resource backed by the Go heap. It is the default
// upstream for the dynamic pool variants. Buffers handed out are retained
// internally until deallocated so that the garbage collector keeps them
// alive while the consumer holds the raw pointer.
//
// HeapResource is safe for concurrent use.
type HeapResource struct {
	mu   sync.Mutex
	live map[unsafe.Pointer][]byte
}

var defaultHeap = &HeapResource{}

// Heap returns the shared heap-backed Resource. Its Allocate never fails
// and is never exhausted; Deallocate releases the buffer to the garbage
// collector.
func Heap() *HeapResource {
	return defaultHeap
}

// Allocate satisfies Resource. The returned pointer is aligned to at least
// alignment bytes.
func (h *HeapResource) Allocate(size, alignment int) (unsafe.Pointer, error) {
	if size <= 0 {
		return nil, nil
	}
	// Over-allocate so any power-of-two alignment can be honored
	// regardless of where the runtime places the buffer.
	buf := make([]byte, size+alignment-1)
	base := uintptr(unsafe.Pointer(&buf[0]))
	off := int(-base & uintptr(alignment-1))
	p := unsafe.Pointer(&buf[off])

	h.mu.Lock()
	if h.live == nil {
		h.live = make(map[unsafe.Pointer][]byte)
	}
	h.live[p] = buf
	h.mu.Unlock()
	return p, nil
}

// Deallocate satisfies Resource. Returning a pointer the resource did not
// hand out fails with *CorruptionError.
func (h *HeapResource) Deallocate(p unsafe.Pointer, size, alignment int) error {
	if p == nil {
		return nil
	}
	h.mu.Lock()
	_, ok := h.live[p]
	if ok {
		delete(h.live, p)
	}
	h.mu.Unlock()
	if !ok {
		return corruptionError(p, size, alignment)
	}
	return nil
}

// IsEqual satisfies Resource.
func (h *HeapResource) IsEqual(other Resource) bool {
	o, ok := other.(*HeapResource)
	return ok && o == h
}
