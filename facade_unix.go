//go:build !windows

// Modifications (c) 2024 The Alloc Authors.

package memory

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmap0 obtains size bytes of fresh, zeroed, read-write memory.
func mmap0(size uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(&b[0]), nil
}

// unmap0 releases memory obtained from mmap0 or committed via mmapCommit.
func unmap0(ptr unsafe.Pointer, size uintptr) error {
	return unix.Munmap(unsafe.Slice((*byte)(ptr), size))
}

// mmapReserve reserves size bytes of address space with no access rights,
// without committing any physical backing.
func mmapReserve(size uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(&b[0]), nil
}

// mmapCommit grants read-write access to a previously reserved sub-range.
func mmapCommit(ptr unsafe.Pointer, size uintptr) error {
	return unix.Mprotect(unsafe.Slice((*byte)(ptr), size), unix.PROT_READ|unix.PROT_WRITE)
}

// mmapUnreserve releases a reservation that failed to fully commit.
func mmapUnreserve(ptr unsafe.Pointer, size uintptr) {
	_ = unmap0(ptr, size)
}
