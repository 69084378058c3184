package memory

import "unsafe"

// uintBits is the native word width, computed the same way cznic/memory
// computes its own intBits constant.
const uintBits = 1 << (^uint(0)>>32&1 + ^uint(0)>>16&1 + ^uint(0)>>8&1 + 3)

// alloc1Max is the number of slots a single sub-block can hold: 250 on
// 64-bit targets, 251 on 32-bit, chosen so the whole sub-block record fits
// in 254 bytes and sixteen sub-blocks plus the block header fit a 4KiB page.
const alloc1Max = 250 + (64-uintBits)/32

const sentinel1 = uint8(0xFF)

// subBlock1 groups up to alloc1Max one-byte slots under a single one-byte
// free chain, the second level of the W=1 variant's two-level index.
type subBlock1 struct {
	next  uint8 // next free sub-block in the block's chain, or sentinel1
	used  uint8
	count uint8
	free  uint8 // head of this sub-block's own free-slot chain, or sentinel1
	data  [alloc1Max]uint8
}

// block1 is the block header for the W=1 variant. The sub-block array
// follows directly after the header in memory; there is no Go flexible
// array member, so sub-blocks are addressed by offset arithmetic from
// block1HeaderSize, ported from the reference implementation's Alloc1Block.
type block1 struct {
	prev, next *block1
	realPtr    unsafe.Pointer
	count      uint16 // live slots across the whole block
	free       uint16 // head of the free-sub-block chain, or sentinel1
}

var (
	block1HeaderSize = unsafe.Sizeof(block1{})
	subBlock1Size     = unsafe.Sizeof(subBlock1{})
)

func subBlockAt(b *block1, index uint16) *subBlock1 {
	base := uintptr(unsafe.Pointer(b)) + block1HeaderSize
	return (*subBlock1)(unsafe.Pointer(base + uintptr(index)*subBlock1Size))
}

func (h *Handle) alloc1(zero bool) unsafe.Pointer {
	b := (*block1)(h.head)
	if b == nil {
		realPtr, alignedPtr, err := virtualAllocAligned(h.blockSize, h.blockSize)
		if err != nil || alignedPtr == nil {
			return nil
		}

		b = (*block1)(alignedPtr)
		// b.prev, b.next, b.count and b.free are already zero: the block
		// was just mmap'd and the OS guarantees zeroed pages, and index 0
		// (the first sub-block) is exactly the free-sub-block chain head
		// we want.
		b.realPtr = realPtr

		limit := uint16(h.slotLimit)
		var i uint16
		for ; i < limit-1; i++ {
			sb := subBlockAt(b, i)
			sb.next = uint8(i + 1)
			// sb.used and sb.count are already zero.
			sb.free = sentinel1
		}
		last := subBlockAt(b, i)
		last.next = sentinel1
		last.free = sentinel1

		h.allocators++
		h.head = unsafe.Pointer(b)
	}

	sb := subBlockAt(b, b.free)

	h.allocations++
	b.count++
	sb.count++

	if sb.count == alloc1Max {
		if uintptr(b.count) == alloc1Max*h.slotLimit {
			h.head = unsafe.Pointer(b.next)
			if b.next != nil {
				b.next.prev = nil
			}
			b.prev = nil
			b.next = nil
		} else {
			b.free = uint16(sb.next)
		}
	}

	if sb.free != sentinel1 {
		ptr := unsafe.Pointer(&sb.data[sb.free])
		sb.free = *(*uint8)(ptr)

		if zero {
			*(*uint8)(ptr) = 0
		}
		return ptr
	}

	ptr := unsafe.Pointer(&sb.data[sb.used])
	sb.used++
	return ptr
}

func (h *Handle) free1(blockPtr, ptr unsafe.Pointer) {
	b := (*block1)(blockPtr)
	subIndex := uint16((uintptr(ptr) - uintptr(blockPtr) - block1HeaderSize) / subBlock1Size)
	sb := subBlockAt(b, subIndex)

	h.allocations--
	b.count--
	sb.count--

	if b.count == 0 && shouldReleaseBlock1(h) {
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

	if sb.count == alloc1Max-1 {
		sb.next = uint8(b.free)
		b.free = subIndex

		if uintptr(b.count) == alloc1Max*h.slotLimit-1 {
			oldHead := (*block1)(h.head)
			if oldHead != nil {
				oldHead.prev = b
			}
			assertTrue(b.prev == nil, "block1: re-attaching block with a dangling prev")
			b.next = oldHead
			h.head = unsafe.Pointer(b)
		}
	}

	*(*uint8)(ptr) = sb.free
	sb.free = uint8(uintptr(ptr) - uintptr(unsafe.Pointer(&sb.data[0])))
}

// shouldReleaseBlock1 is shouldReleaseBlock scaled by alloc1Max, since a W=1
// block's capacity is alloc1Max slots per sub-block times slotLimit
// sub-blocks rather than slotLimit slots directly.
func shouldReleaseBlock1(h *Handle) bool {
	if h.flags&FlagImmediateFree != 0 {
		return true
	}
	if h.flags&FlagDoNotFree != 0 {
		return false
	}
	return h.allocators >= 2 && h.allocations <= alloc1Max*h.slotLimit*(h.allocators-2)
}
