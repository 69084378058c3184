//go:build windows

// Modifications (c) 2024 The Alloc Authors.

package memory

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmap0 obtains size bytes of fresh, zeroed, read-write memory. Windows
// zero-fills newly committed pages, same as mmap's MAP_ANON on POSIX.
func mmap0(size uintptr) (unsafe.Pointer, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(addr), nil
}

// unmap0 releases memory obtained from mmap0 or mmapReserve.
func unmap0(ptr unsafe.Pointer, size uintptr) error {
	return windows.VirtualFree(uintptr(ptr), 0, windows.MEM_RELEASE)
}

// mmapReserve reserves size bytes of address space with no access rights.
func mmapReserve(size uintptr) (unsafe.Pointer, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(addr), nil
}

// mmapCommit grants read-write access to a previously reserved sub-range.
func mmapCommit(ptr unsafe.Pointer, size uintptr) error {
	_, err := windows.VirtualAlloc(uintptr(ptr), size, windows.MEM_COMMIT, windows.PAGE_READWRITE)
	return err
}

// mmapUnreserve releases a reservation that failed to fully commit.
func mmapUnreserve(ptr unsafe.Pointer, size uintptr) {
	_ = unmap0(ptr, size)
}
