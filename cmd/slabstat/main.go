// Copyright 2024 The Alloc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command slabstat runs a randomized allocate/verify/shuffle/free workload
// against a fresh allocator state, optionally spread across concurrent
// workers sharing that state, and reports a per-handle occupancy breakdown
// once the workload finishes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/supahero1/alloc"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		quota   = flag.Int("quota", 128<<20, "total bytes to allocate before freeing")
		max     = flag.Int("max", 4096, "maximum size of a single allocation")
		seed    = flag.Int("seed", 42, "PRNG seed")
		workers = flag.Int("workers", 1, "number of concurrent workers sharing one state (1 runs the sequential workload)")
	)
	flag.Parse()

	state := memory.NewState(nil)
	defer state.Close()

	var err error
	if *workers <= 1 {
		err = runSequential(state, *quota, *max, int32(*seed))
	} else {
		err = runConcurrent(state, *workers, *quota, *max, int32(*seed))
	}
	if err != nil {
		log.Fatal(err)
	}

	report(state)
}

// runSequential drives the allocate/verify/shuffle/free workload on a single
// goroutine.
func runSequential(state *memory.State, quota, max int, seed int32) error {
	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	if err != nil {
		return err
	}
	rng.Seed(seed)

	var bufs [][]byte
	rem := quota
	for rem > 0 {
		size := rng.Next()%max + 1
		rem -= size

		ptr := state.Alloc(uintptr(size), false)
		if ptr == nil {
			return fmt.Errorf("slabstat: alloc(%d) failed", size)
		}
		b := unsafe.Slice((*byte)(ptr), size)
		for i := range b {
			b[i] = byte(rng.Next())
		}
		bufs = append(bufs, b)
	}

	fmt.Fprintf(os.Stdout, "sequential: allocated %d buffers, %d bytes requested\n", len(bufs), quota)

	for i := range bufs {
		j := rng.Next() % len(bufs)
		bufs[i], bufs[j] = bufs[j], bufs[i]
	}

	for _, b := range bufs {
		state.Free(unsafe.Pointer(&b[0]), uintptr(len(b)))
	}

	fmt.Fprintln(os.Stdout, "sequential: freed all buffers")
	return nil
}

// runConcurrent fans workers goroutines out over errgroup.Group, each
// driving its own allocate/mutate/free loop against the shared state so
// that only per-handle locking, not any coordination between workers,
// keeps the run correct. A worker occasionally reallocs one of its own
// live buffers instead of only ever allocating, exercising the
// cross-handle Realloc path under contention too.
func runConcurrent(state *memory.State, workers, quota, max int, seed int32) error {
	perWorker := quota / workers

	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
			if err != nil {
				return err
			}
			rng.Seed(seed + int32(w))

			var bufs [][]byte
			rem := perWorker
			for rem > 0 {
				size := rng.Next()%max + 1
				rem -= size

				ptr := state.Alloc(uintptr(size), false)
				if ptr == nil {
					return fmt.Errorf("slabstat: worker %d: alloc(%d) failed", w, size)
				}
				b := unsafe.Slice((*byte)(ptr), size)
				for i := range b {
					b[i] = byte(rng.Next())
				}
				bufs = append(bufs, b)

				if len(bufs) > 0 && rng.Next()%4 == 0 {
					j := rng.Next() % len(bufs)
					newSize := rng.Next()%max + 1
					newPtr := state.Realloc(unsafe.Pointer(&bufs[j][0]), uintptr(len(bufs[j])), uintptr(newSize), false)
					if newPtr == nil {
						return fmt.Errorf("slabstat: worker %d: realloc(%d) failed", w, newSize)
					}
					bufs[j] = unsafe.Slice((*byte)(newPtr), newSize)
				}
			}

			for _, b := range bufs {
				state.Free(unsafe.Pointer(&b[0]), uintptr(len(b)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "concurrent: %d workers finished, ~%d bytes requested each\n", workers, perWorker)
	return nil
}

// report prints the occupancy of every handle in state's table, including
// the trailing virtual handle.
func report(state *memory.State) {
	fmt.Fprintln(os.Stdout, "per-handle occupancy:")
	for _, st := range state.Stats() {
		label := fmt.Sprintf("%d", st.SlotSize)
		if st.Virtual {
			label = "virtual"
		}
		fmt.Fprintf(os.Stdout, "  slot=%-10s allocators=%-6d allocations=%-8d blockSize=%d\n",
			label, st.Allocators, st.Allocations, st.BlockSize)
	}
}
