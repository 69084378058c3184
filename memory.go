package memory

import (
	"errors"
	"fmt"
	"os"
	"unsafe"
)

// errOutOfMemory is returned by the safe Allocator wrapper when the
// underlying façade cannot satisfy a request.
var errOutOfMemory = errors.New("memory: out of memory")

// Alloc returns size bytes of storage dispatched through s's handle table,
// zeroed if zero is true, or nil if the underlying handle could not obtain
// memory from the OS.
func (s *State) Alloc(size uintptr, zero bool) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	ptr := s.HandleFor(size).Alloc(size, zero)
	if trace {
		fmt.Fprintf(os.Stderr, "memory: Alloc(%d, %v) = %p\n", size, zero, ptr)
	}
	return ptr
}

// Free releases a pointer previously returned by Alloc(size, ...) on s.
func (s *State) Free(ptr unsafe.Pointer, size uintptr) {
	if trace {
		fmt.Fprintf(os.Stderr, "memory: Free(%p, %d)\n", ptr, size)
	}
	if ptr == nil || size == 0 {
		return
	}
	s.HandleFor(size).Free(ptr, size)
}

// Realloc resizes a pointer previously allocated (or nil) to newSize,
// possibly moving it to a different handle's size class.
func (s *State) Realloc(ptr unsafe.Pointer, oldSize, newSize uintptr, zero bool) unsafe.Pointer {
	newPtr := reallocBetween(s, ptr, oldSize, newSize, zero)
	if trace {
		fmt.Fprintf(os.Stderr, "memory: Realloc(%p, %d, %d, %v) = %p\n", ptr, oldSize, newSize, zero, newPtr)
	}
	return newPtr
}

func reallocBetween(s *State, ptr unsafe.Pointer, oldSize, newSize uintptr, zero bool) unsafe.Pointer {
	var oldHandle *Handle
	if ptr != nil && oldSize != 0 {
		oldHandle = s.HandleFor(oldSize)
	}

	var newHandle *Handle
	if newSize != 0 {
		newHandle = s.HandleFor(newSize)
	}

	return Realloc(oldHandle, ptr, oldSize, newHandle, newSize, zero)
}

// Allocator is a []byte-oriented convenience wrapper over a State, mirroring
// a conventional malloc/calloc/realloc/free API for callers that would
// rather not juggle unsafe.Pointer and sizes themselves. It tracks nothing
// beyond what State already tracks; callers remain responsible for passing
// the original length back into Free and Realloc.
type Allocator struct {
	state *State
}

// NewAllocator wraps state in a byte-slice API. A nil state uses
// DefaultState.
func NewAllocator(state *State) *Allocator {
	if state == nil {
		state = DefaultState()
	}
	return &Allocator{state: state}
}

// Malloc returns an uninitialized byte slice of length n.
func (a *Allocator) Malloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	ptr := a.state.Alloc(uintptr(n), false)
	if ptr == nil {
		return nil, errOutOfMemory
	}
	return unsafe.Slice((*byte)(ptr), n), nil
}

// Calloc returns a zeroed byte slice of length n.
func (a *Allocator) Calloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	ptr := a.state.Alloc(uintptr(n), true)
	if ptr == nil {
		return nil, errOutOfMemory
	}
	return unsafe.Slice((*byte)(ptr), n), nil
}

// Free releases a slice previously returned by Malloc, Calloc or Realloc.
// b's length must be unmodified from what was returned.
func (a *Allocator) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	a.state.Free(unsafe.Pointer(&b[0]), uintptr(len(b)))
}

// Realloc resizes b to n bytes, preserving min(len(b), n) bytes of content.
// b may be nil.
func (a *Allocator) Realloc(b []byte, n int) ([]byte, error) {
	if n <= 0 {
		a.Free(b)
		return nil, nil
	}

	var ptr unsafe.Pointer
	var oldSize uintptr
	if len(b) != 0 {
		ptr = unsafe.Pointer(&b[0])
		oldSize = uintptr(len(b))
	}

	newPtr := a.state.Realloc(ptr, oldSize, uintptr(n), false)
	if newPtr == nil {
		return nil, errOutOfMemory
	}
	return unsafe.Slice((*byte)(newPtr), n), nil
}
