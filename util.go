package memory

import "github.com/cznic/mathutil"

// roundup rounds n up to the nearest multiple of m. m must be a power of 2.
func roundup(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }

// nextPO2 rounds v up to the next power of two, ported from the reference
// implementation's AllocGetNextPO2.
func nextPO2(v uintptr) uintptr {
	if v <= 2 {
		return v
	}
	return uintptr(1) << uint(mathutil.BitLen(int(v-1)))
}

// log2 returns the base-2 logarithm of v, which must be a nonzero power of
// two. Ported from the reference implementation's AllocLog2.
func log2(v uintptr) uint32 {
	return uint32(mathutil.BitLen(int(v)) - 1)
}

// GetNextPowerOfTwo rounds size up to the next power of two. Exposed for
// callers writing a custom IndexFunc.
func GetNextPowerOfTwo(size uintptr) uintptr { return nextPO2(size) }

// Log2 returns the base-2 logarithm of value, which must be a nonzero power
// of two. Exposed for callers writing a custom IndexFunc.
func Log2(value uintptr) uint32 { return log2(value) }

func minUintptr(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}

func maxUintptr(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}

func isPowerOfTwo(v uintptr) bool { return v != 0 && v&(v-1) == 0 }
