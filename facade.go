package memory

import (
	"os"
	"unsafe"
)

var (
	pageSize     = os.Getpagesize()
	pageSizeMask = uintptr(pageSize - 1)
)

func init() {
	if pageSize == 0 || !isPowerOfTwo(uintptr(pageSize)) {
		panic("memory: page size must be a nonzero power of two")
	}
}

// virtualAlloc reserves and commits size bytes of zeroed memory directly
// from the operating system. size may be zero, in which case it returns
// (nil, nil) without touching anything.
func virtualAlloc(size uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}
	return mmap0(size)
}

// virtualFree releases memory obtained from virtualAlloc. ptr and size must
// match a previous successful call.
func virtualFree(ptr unsafe.Pointer, size uintptr) {
	if ptr == nil {
		return
	}
	if err := unmap0(ptr, size); err != nil {
		panic(err)
	}
}

// virtualAllocAligned reserves size+alignment-1 bytes and commits the
// aligned sub-range within it. realPtr is the unaligned reservation and is
// what must be passed to virtualFreeAligned; alignedPtr is the pointer
// usable by callers. alignment must be a power of two, at least 1.
func virtualAllocAligned(size, alignment uintptr) (realPtr, alignedPtr unsafe.Pointer, err error) {
	if alignment == 0 || !isPowerOfTwo(alignment) {
		panic("memory: alignment must be a power of two")
	}
	if size == 0 {
		return nil, nil, nil
	}

	mask := alignment - 1
	actual := size + mask

	realPtr, err = mmapReserve(actual)
	if err != nil {
		return nil, nil, err
	}

	alignedPtr = unsafe.Pointer((uintptr(realPtr) + mask) &^ mask)

	if err := mmapCommit(alignedPtr, size); err != nil {
		mmapUnreserve(realPtr, actual)
		return nil, nil, err
	}

	return realPtr, alignedPtr, nil
}

// virtualFreeAligned releases memory obtained from virtualAllocAligned.
func virtualFreeAligned(realPtr unsafe.Pointer, size, alignment uintptr) {
	if realPtr == nil {
		return
	}
	virtualFree(realPtr, size+alignment-1)
}

// virtualRealloc changes the size of an unaligned allocation, copying
// min(oldSize, newSize) bytes. Portable path: alloc new, copy, free old.
func virtualRealloc(ptr unsafe.Pointer, oldSize, newSize uintptr) (unsafe.Pointer, error) {
	if newSize == 0 {
		virtualFree(ptr, oldSize)
		return nil, nil
	}
	if ptr == nil {
		return virtualAlloc(newSize)
	}

	newPtr, err := virtualAlloc(newSize)
	if err != nil {
		return nil, err
	}

	copyMem(newPtr, ptr, minUintptr(oldSize, newSize))
	virtualFree(ptr, oldSize)
	return newPtr, nil
}

// virtualReallocAligned changes the size of an aligned allocation. There is
// no in-place path: always alloc-new/copy/free-old.
func virtualReallocAligned(realPtr unsafe.Pointer, oldSize, newSize, alignment uintptr) (newRealPtr, newAlignedPtr unsafe.Pointer, err error) {
	if newSize == 0 {
		virtualFreeAligned(realPtr, oldSize, alignment)
		return nil, nil, nil
	}
	if realPtr == nil {
		return virtualAllocAligned(newSize, alignment)
	}

	newRealPtr, newAlignedPtr, err = virtualAllocAligned(newSize, alignment)
	if err != nil {
		return nil, nil, err
	}

	mask := alignment - 1
	oldAlignedPtr := unsafe.Pointer((uintptr(realPtr) + mask) &^ mask)

	copyMem(newAlignedPtr, oldAlignedPtr, minUintptr(oldSize, newSize))
	virtualFreeAligned(realPtr, oldSize, alignment)

	return newRealPtr, newAlignedPtr, nil
}

func copyMem(dst, src unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}

func zeroMem(ptr unsafe.Pointer, n uintptr) {
	if n == 0 {
		return
	}
	b := unsafe.Slice((*byte)(ptr), n)
	for i := range b {
		b[i] = 0
	}
}
