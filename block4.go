package memory

import "unsafe"

// block4 is the flat block header for the W=4 index-width variant (slot
// sizes 3 and above, routed through 4-byte indices), ported from the
// reference implementation's Alloc4 / AllocAlloc4Func / AllocFree4Func.
type block4 struct {
	prev, next *block4
	realPtr    unsafe.Pointer
	used       uint32
	count      uint32
	free       uint32
}

const sentinel4 = uint32(0xFFFFFFFF)

var block4HeaderSize = unsafe.Sizeof(block4{})

func (h *Handle) alloc4(zero bool) unsafe.Pointer {
	b := (*block4)(h.head)
	if b == nil {
		realPtr, alignedPtr, err := virtualAllocAligned(h.blockSize, h.blockSize)
		if err != nil || alignedPtr == nil {
			return nil
		}

		b = (*block4)(alignedPtr)
		b.prev = nil
		b.next = nil
		b.realPtr = realPtr
		b.used = 0
		b.count = 0
		b.free = sentinel4

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

	if b.free != sentinel4 {
		ptr := unsafe.Pointer(uintptr(data) + uintptr(b.free)*h.slotSize)
		b.free = *(*uint32)(ptr)

		if zero {
			zeroMem(ptr, h.slotSize)
		}
		return ptr
	}

	ptr := unsafe.Pointer(uintptr(data) + uintptr(b.used)*h.slotSize)
	b.used++
	return ptr
}

func (h *Handle) free4(blockPtr, ptr unsafe.Pointer) {
	b := (*block4)(blockPtr)

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
		oldHead := (*block4)(h.head)
		if oldHead != nil {
			oldHead.prev = b
		}
		assertTrue(b.prev == nil, "block4: re-attaching block with a dangling prev")
		b.next = oldHead
		h.head = unsafe.Pointer(b)
	}

	data := unsafe.Pointer(uintptr(unsafe.Pointer(b)) + h.padding)
	idx := uint32((uintptr(ptr) - uintptr(data)) / h.slotSize)

	*(*uint32)(ptr) = b.free
	b.free = idx
}
