//go:build !slaballoc_debug

package memory

func assertTrue(cond bool, format string, args ...interface{}) {}

const debugBuild = false
