//go:build slaballoc_debug

package memory

import "fmt"

// assertTrue panics with a formatted message when cond is false. Compiled
// out entirely unless built with -tags slaballoc_debug; release builds
// trust the caller (a mismatched pointer/size, a double free, or calling
// an Unlocked variant without holding the lock are undefined behavior
// otherwise).
func assertTrue(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("memory: assertion failed: "+format, args...))
	}
}

const debugBuild = true
