package memory

import "unsafe"

// block2 is the flat block header for the W=2 index-width variant (slot
// size 2 only; larger slot sizes use block4), ported from the reference implementation's Alloc2 /
// AllocAlloc2Func / AllocFree2Func.
type block2 struct {
	prev, next *block2
	realPtr    unsafe.Pointer
	used       uint16
	count      uint16
	free       uint16
}

const sentinel2 = uint16(0xFFFF)

var block2HeaderSize = unsafe.Sizeof(block2{})

func (h *Handle) alloc2(zero bool) unsafe.Pointer {
	b := (*block2)(h.head)
	if b == nil {
		realPtr, alignedPtr, err := virtualAllocAligned(h.blockSize, h.blockSize)
		if err != nil || alignedPtr == nil {
			return nil
		}

		b = (*block2)(alignedPtr)
		b.prev = nil
		b.next = nil
		b.realPtr = realPtr
		b.used = 0
		b.count = 0
		b.free = sentinel2

		h.allocators++
		h.head = unsafe.Pointer(b)
	}

	data := unsafe.Pointer(uintptr(unsafe.Pointer(b)) + h.padding)

	h.allocations++
	b.count++

	if uintptr(b.count) == h.slotLimit {
		h.head = unsafe.Pointer(b.next)
		if b.next != nil {
			b.next.prev = nil
		}
		b.next = nil
	}

	if b.free != sentinel2 {
		ptr := unsafe.Pointer(uintptr(data) + uintptr(b.free)*h.slotSize)
		b.free = *(*uint16)(ptr)

		if zero {
			zeroMem(ptr, h.slotSize)
		}
		return ptr
	}

	ptr := unsafe.Pointer(uintptr(data) + uintptr(b.used)*h.slotSize)
	b.used++
	return ptr
}

func (h *Handle) free2(blockPtr, ptr unsafe.Pointer) {
	b := (*block2)(blockPtr)

	h.allocations--
	b.count--

	if b.count == 0 && shouldReleaseBlock(h) {
		if b.prev != nil {
			b.prev.next = b.next
		} else {
			h.head = unsafe.Pointer(b.next)
		}
		if b.next != nil {
			b.next.prev = b.prev
		}

		virtualFreeAligned(b.realPtr, h.blockSize, h.blockSize)
		h.allocators--
		return
	}

	if uintptr(b.count) == h.slotLimit-1 {
		oldHead := (*block2)(h.head)
		if oldHead != nil {
			oldHead.prev = b
		}
		assertTrue(b.prev == nil, "block2: re-attaching block with a dangling prev")
		b.next = oldHead
		h.head = unsafe.Pointer(b)
	}

	data := unsafe.Pointer(uintptr(unsafe.Pointer(b)) + h.padding)
	idx := uint16((uintptr(ptr) - uintptr(data)) / h.slotSize)

	*(*uint16)(ptr) = b.free
	b.free = idx
}
