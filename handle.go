package memory

import (
	"math"
	"sync"
	"unsafe"
)

// HandleFlag controls a handle's block release policy.
type HandleFlag uint32

const (
	FlagNone HandleFlag = 0

	// FlagImmediateFree releases a block to the OS as soon as it becomes
	// empty, instead of keeping two blocks' worth of capacity cached. Takes
	// precedence over FlagDoNotFree.
	FlagImmediateFree HandleFlag = 1 << 0

	// FlagDoNotFree prevents any block from ever being released until the
	// handle itself is closed. Only useful for a bulk free immediately
	// followed by a bulk allocation of the same or larger size; anything
	// else leaks memory for the handle's lifetime.
	FlagDoNotFree HandleFlag = 1 << 1
)

type variant uint8

const (
	variant1 variant = iota
	variant2
	variant4
	variantVirtual
)

const (
	blockSizeMax1 = 64 * 1024
	blockSizeMax2 = 128 * 1024
	blockSizeMax4 = 1 << 30
)

const (
	slotLimitMax1 = math.MaxUint8 - 2
	slotLimitMax2 = math.MaxUint16 - 2
	slotLimitMax4 = math.MaxUint32 - 2
)

// HandleInfo configures a handle's size class.
type HandleInfo struct {
	// SlotSize is the size of every object this handle allocates. Must not
	// be zero.
	SlotSize uintptr

	// BlockSize is the (pre-clamp, pre-power-of-two-rounding) size of the
	// blocks the handle sub-allocates slots from.
	BlockSize uintptr

	// Alignment is the alignment of the first slot in a block. Must be a
	// power of two. Ignored (forced to 1) when SlotSize is 1.
	Alignment uintptr
}

// Handle is a size-class-specialized sub-allocator: its own lock, its own
// list of not-full blocks, its own slot size. Handles never share state, so
// concurrent requests that land on different handles never contend.
//
// The zero Handle is not ready for use; construct one with NewHandle.
type Handle struct {
	mu sync.Mutex

	variant   variant
	slotSize  uintptr
	blockSize uintptr
	padding   uintptr
	slotLimit uintptr

	allocators  uintptr
	allocations uintptr

	flags HandleFlag
	head  unsafe.Pointer
}

// NewHandle constructs a handle from info. A nil info produces a virtual
// handle, which forwards every request straight to the OS with no
// sub-allocation; useful as a fallback for oversized requests.
func NewHandle(info *HandleInfo) *Handle {
	h := &Handle{}
	h.init(info)
	return h
}

func (h *Handle) init(info *HandleInfo) {
	h.allocators = 0
	h.allocations = 0
	h.flags = FlagNone
	h.head = nil

	if info == nil {
		h.variant = variantVirtual
		h.padding = 0
		h.slotLimit = 0
		h.slotSize = 0
		h.blockSize = 0
		return
	}

	if info.SlotSize == 0 {
		panic("memory: HandleInfo.SlotSize must not be zero")
	}
	if info.Alignment == 0 || !isPowerOfTwo(info.Alignment) {
		panic("memory: HandleInfo.Alignment must be a power of two")
	}

	switch {
	case info.SlotSize == 1:
		h.initVariant1(info)
	case info.SlotSize == 2:
		h.initVariant2(info)
	default:
		h.initVariant4(info)
	}
}

func (h *Handle) initVariant1(info *HandleInfo) {
	blockSize := minUintptr(info.BlockSize, blockSizeMax1)
	blockSize = maxUintptr(blockSize, uintptr(pageSize))
	blockSize = nextPO2(blockSize)

	slotLimit := (blockSize - block1HeaderSize) / subBlock1Size
	slotLimit = minUintptr(slotLimit, slotLimitMax1)
	slotLimit = maxUintptr(slotLimit, 1)

	blockSize = block1HeaderSize + slotLimit*subBlock1Size
	blockSize = nextPO2(blockSize)

	h.variant = variant1
	h.padding = 0
	h.slotLimit = slotLimit
	h.slotSize = 1
	h.blockSize = blockSize
}

func (h *Handle) initVariant2(info *HandleInfo) {
	mask := info.Alignment - 1
	padding := (block2HeaderSize + mask) &^ mask

	blockSize := minUintptr(info.BlockSize, blockSizeMax2)
	blockSize = maxUintptr(blockSize, uintptr(pageSize))
	blockSize = nextPO2(blockSize)

	slotLimit := (blockSize - block2HeaderSize) / info.SlotSize
	slotLimit = minUintptr(slotLimit, slotLimitMax2)
	slotLimit = maxUintptr(slotLimit, 1)

	blockSize = padding + slotLimit*info.SlotSize
	blockSize = nextPO2(blockSize)

	h.variant = variant2
	h.padding = padding
	h.slotLimit = slotLimit
	h.slotSize = info.SlotSize
	h.blockSize = blockSize
}

func (h *Handle) initVariant4(info *HandleInfo) {
	mask := info.Alignment - 1
	padding := (block4HeaderSize + mask) &^ mask

	blockSize := minUintptr(info.BlockSize, blockSizeMax4)
	blockSize = maxUintptr(blockSize, uintptr(pageSize))
	blockSize = nextPO2(blockSize)

	slotLimit := (blockSize - block4HeaderSize) / info.SlotSize
	slotLimit = minUintptr(slotLimit, slotLimitMax4)
	slotLimit = maxUintptr(slotLimit, 1)

	blockSize = padding + slotLimit*info.SlotSize
	blockSize = nextPO2(blockSize)

	h.variant = variant4
	h.padding = padding
	h.slotLimit = slotLimit
	h.slotSize = info.SlotSize
	h.blockSize = blockSize
}

// HandleStat is a point-in-time occupancy snapshot of a handle, for
// diagnostics and reporting.
type HandleStat struct {
	SlotSize    uintptr
	BlockSize   uintptr
	Allocators  uintptr
	Allocations uintptr
	Virtual     bool
}

// Stat returns a snapshot of h's current occupancy.
func (h *Handle) Stat() HandleStat {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statUnlocked()
}

func (h *Handle) statUnlocked() HandleStat {
	return HandleStat{
		SlotSize:    h.slotSize,
		BlockSize:   h.blockSize,
		Allocators:  h.allocators,
		Allocations: h.allocations,
		Virtual:     h.isVirtual(),
	}
}

// Clone creates a new, independent handle with the same slot size, block
// size and padding as h; the clone's alignment is the largest power of two
// dividing h's padding, which reproduces that padding. Live blocks are not shared or
// copied; the clone starts out empty.
func (h *Handle) Clone() *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isVirtual() {
		return NewHandle(nil)
	}

	info := &HandleInfo{
		SlotSize:  h.slotSize,
		BlockSize: h.blockSize,
		Alignment: maxUintptr(h.padding&-h.padding, 1),
	}
	return NewHandle(info)
}

// Close releases every block still attached to the handle's free list. Any
// block that was detached because it had filled up (see alloc2/alloc4) is
// not reachable from here and leaks; callers are expected to have freed
// every allocation before closing.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isVirtual() {
		return
	}

	switch h.variant {
	case variant1:
		for b := (*block1)(h.head); b != nil; {
			next := b.next
			virtualFreeAligned(b.realPtr, h.blockSize, h.blockSize)
			b = next
		}
	case variant2:
		for b := (*block2)(h.head); b != nil; {
			next := b.next
			virtualFreeAligned(b.realPtr, h.blockSize, h.blockSize)
			b = next
		}
	case variant4:
		for b := (*block4)(h.head); b != nil; {
			next := b.next
			virtualFreeAligned(b.realPtr, h.blockSize, h.blockSize)
			b = next
		}
	}
	h.head = nil
}

func (h *Handle) isVirtual() bool { return h.variant == variantVirtual }

// Lock acquires the handle's lock for a batch of Unlocked operations.
func (h *Handle) Lock() { h.mu.Lock() }

// Unlock releases a lock acquired with Lock.
func (h *Handle) Unlock() { h.mu.Unlock() }

// SetFlags replaces the handle's flags.
func (h *Handle) SetFlags(flags HandleFlag) {
	h.mu.Lock()
	h.SetFlagsUnlocked(flags)
	h.mu.Unlock()
}

// SetFlagsUnlocked is SetFlags without acquiring the lock; the caller must
// already hold it (see Lock).
func (h *Handle) SetFlagsUnlocked(flags HandleFlag) { h.flags = flags }

// AddFlags ORs flags into the handle's current flags.
func (h *Handle) AddFlags(flags HandleFlag) {
	h.mu.Lock()
	h.AddFlagsUnlocked(flags)
	h.mu.Unlock()
}

// AddFlagsUnlocked is AddFlags without acquiring the lock.
func (h *Handle) AddFlagsUnlocked(flags HandleFlag) { h.flags |= flags }

// DelFlags clears flags from the handle's current flags.
func (h *Handle) DelFlags(flags HandleFlag) {
	h.mu.Lock()
	h.DelFlagsUnlocked(flags)
	h.mu.Unlock()
}

// DelFlagsUnlocked is DelFlags without acquiring the lock.
func (h *Handle) DelFlagsUnlocked(flags HandleFlag) { h.flags &^= flags }

// Flags returns the handle's current flags.
func (h *Handle) Flags() HandleFlag {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.FlagsUnlocked()
}

// FlagsUnlocked is Flags without acquiring the lock.
func (h *Handle) FlagsUnlocked() HandleFlag { return h.flags }

// Alloc returns a pointer to size bytes of storage, zeroed if zero is true,
// or nil on out-of-memory. size must not exceed the handle's slot size for
// non-virtual handles (State.HandleFor picks a handle whose slot size is at
// least size).
func (h *Handle) Alloc(size uintptr, zero bool) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	h.mu.Lock()
	ptr := h.allocUnlocked(size, zero)
	h.mu.Unlock()
	return ptr
}

// AllocUnlocked is Alloc without acquiring the lock; the caller must already
// hold it.
func (h *Handle) AllocUnlocked(size uintptr, zero bool) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	return h.allocUnlocked(size, zero)
}

func (h *Handle) allocUnlocked(size uintptr, zero bool) unsafe.Pointer {
	switch h.variant {
	case variant1:
		return h.alloc1(zero)
	case variant2:
		return h.alloc2(zero)
	case variant4:
		return h.alloc4(zero)
	default:
		ptr, err := virtualAlloc(size)
		if err != nil {
			return nil
		}
		return ptr
	}
}

// Free releases a pointer previously returned by Alloc on h. size must
// match the size originally requested.
func (h *Handle) Free(ptr unsafe.Pointer, size uintptr) {
	if size == 0 || ptr == nil {
		return
	}
	h.mu.Lock()
	h.freeUnlocked(ptr, size)
	h.mu.Unlock()
}

// FreeUnlocked is Free without acquiring the lock.
func (h *Handle) FreeUnlocked(ptr unsafe.Pointer, size uintptr) {
	if size == 0 || ptr == nil {
		return
	}
	h.freeUnlocked(ptr, size)
}

func (h *Handle) freeUnlocked(ptr unsafe.Pointer, size uintptr) {
	if h.isVirtual() {
		virtualFree(ptr, size)
		return
	}

	blockPtr := h.basePtr(ptr)
	lo, hi := h.padding, h.padding+h.slotLimit*h.slotSize
	if h.variant == variant1 {
		lo, hi = block1HeaderSize, block1HeaderSize+h.slotLimit*subBlock1Size
	}
	off := uintptr(ptr) - uintptr(blockPtr)
	assertTrue(off >= lo && off < hi, "free: pointer %p outside its block's slot range", ptr)
	assertTrue(h.allocations > 0, "free: handle has no live allocations")
	switch h.variant {
	case variant1:
		h.free1(blockPtr, ptr)
	case variant2:
		h.free2(blockPtr, ptr)
	case variant4:
		h.free4(blockPtr, ptr)
	}
}

// basePtr recovers the owning block's address for a slot pointer by masking,
// the essential trick that lets Free work with no per-slot header.
func (h *Handle) basePtr(ptr unsafe.Pointer) unsafe.Pointer {
	if h.isVirtual() {
		return ptr
	}
	return unsafe.Pointer(uintptr(ptr) &^ (h.blockSize - 1))
}

// shouldReleaseBlock implements the flat (W=2/W=4) block release policy: an
// empty block is released to the façade iff FlagImmediateFree is set, or
// the handle has at least two allocators, FlagDoNotFree is unset, and
// draining this block would still leave one block's worth of slack.
func shouldReleaseBlock(h *Handle) bool {
	if h.flags&FlagImmediateFree != 0 {
		return true
	}
	if h.flags&FlagDoNotFree != 0 {
		return false
	}
	return h.allocators >= 2 && h.allocations <= h.slotLimit*(h.allocators-2)
}

// Realloc resizes a pointer allocated from oldHandle to newSize, dispatching
// through newHandle. If oldHandle and newHandle are the same non-virtual
// handle this is an in-place no-op (the slot already fits); otherwise it is
// allocate-new/copy/free-old.
func Realloc(oldHandle *Handle, ptr unsafe.Pointer, oldSize uintptr, newHandle *Handle, newSize uintptr, zero bool) unsafe.Pointer {
	return reallocImpl(oldHandle, ptr, oldSize, newHandle, newSize, zero, true)
}

// ReallocUnlocked is Realloc without acquiring either handle's lock; the
// caller must already hold both handles' locks.
func ReallocUnlocked(oldHandle *Handle, ptr unsafe.Pointer, oldSize uintptr, newHandle *Handle, newSize uintptr, zero bool) unsafe.Pointer {
	return reallocImpl(oldHandle, ptr, oldSize, newHandle, newSize, zero, false)
}

func reallocImpl(oldHandle *Handle, ptr unsafe.Pointer, oldSize uintptr, newHandle *Handle, newSize uintptr, zero, locked bool) unsafe.Pointer {
	allocFn := (*Handle).Alloc
	freeFn := (*Handle).Free
	if !locked {
		allocFn = (*Handle).AllocUnlocked
		freeFn = (*Handle).FreeUnlocked
	}

	if newSize == 0 {
		if oldHandle != nil {
			freeFn(oldHandle, ptr, oldSize)
		}
		return nil
	}

	if ptr == nil {
		if newHandle == nil {
			return nil
		}
		return allocFn(newHandle, newSize, zero)
	}

	if oldHandle == newHandle {
		if oldHandle.isVirtual() {
			newPtr, err := virtualRealloc(ptr, oldSize, newSize)
			if err != nil {
				return nil
			}
			return newPtr
		}

		if newSize > oldSize && zero {
			zeroMem(unsafe.Pointer(uintptr(ptr)+oldSize), newSize-oldSize)
		}
		return ptr
	}

	if newHandle == nil {
		return nil
	}

	newPtr := allocFn(newHandle, newSize, zero)
	if newPtr == nil {
		return nil
	}

	copyMem(newPtr, ptr, minUintptr(oldSize, newSize))

	if oldHandle != nil {
		freeFn(oldHandle, ptr, oldSize)
	}

	return newPtr
}
