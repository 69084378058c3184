// Copyright 2024 The Alloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory implements a size-classed, handle-based memory allocator.
//
// Requests are dispatched by size to one of a table of handles, each of
// which is a sub-allocator specialized for a single slot size. A handle
// sub-allocates fixed-size slots out of large, block-size-aligned blocks
// obtained directly from the operating system via mmap/VirtualAlloc, so a
// released pointer can be mapped back to its owning block in O(1) by
// pointer masking, without any per-allocation header.
//
// Handles are independent: concurrent requests that land on different
// handles proceed without lock contention. A handle may also be virtual,
// forwarding requests straight to the OS for allocations too large to
// sub-allocate economically.
//
// Changelog
//
// 2024-01-01 Initial handle/state/variant redesign.
package memory
