package memory

// trace, when true, makes the top-level operations in memory.go log every
// call to stderr. Mirrors the debug switch cznic/memory gates its own
// Malloc/Free/Realloc tracing behind.
const trace = false
