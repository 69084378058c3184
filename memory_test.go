package memory

import (
	"bytes"
	"math"
	"testing"

	"github.com/cznic/mathutil"
)

const quota = 16 << 20

func workload(t *testing.T, max int) {
	a := NewAllocator(NewState(nil))
	rem := quota
	var bufs [][]byte

	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	if err != nil {
		t.Fatal(err)
	}
	rng.Seed(42)
	pos := rng.Pos()

	for rem > 0 {
		size := rng.Next()%max + 1
		rem -= size

		b, err := a.Malloc(size)
		if err != nil {
			t.Fatal(err)
		}
		for i := range b {
			b[i] = byte(rng.Next())
		}
		bufs = append(bufs, b)
	}

	rng.Seek(pos)
	for i, b := range bufs {
		if g, e := len(b), rng.Next()%max+1; g != e {
			t.Fatalf("buffer %d: len = %d, want %d", i, g, e)
		}
		for j := range b {
			if e := byte(rng.Next()); b[j] != e {
				t.Fatalf("buffer %d byte %d corrupted: got %#02x, want %#02x", i, j, b[j], e)
			}
			b[j] = 0
		}
	}

	for i := range bufs {
		j := rng.Next() % len(bufs)
		bufs[i], bufs[j] = bufs[j], bufs[i]
	}

	for _, b := range bufs {
		a.Free(b)
	}
}

func TestWorkloadSmall(t *testing.T) { workload(t, 256) }
func TestWorkloadBig(t *testing.T)   { workload(t, 1<<20) }

func TestAllocatorCalloc(t *testing.T) {
	a := NewAllocator(nil)
	b, err := a.Calloc(128)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, make([]byte, 128)) {
		t.Fatal("Calloc did not return zeroed memory")
	}
	a.Free(b)
}

func TestAllocatorReallocGrow(t *testing.T) {
	a := NewAllocator(nil)
	b, err := a.Malloc(8)
	if err != nil {
		t.Fatal(err)
	}
	for i := range b {
		b[i] = byte(i + 1)
	}

	b, err = a.Realloc(b, 64)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 64 {
		t.Fatalf("Realloc grew to len %d, want 64", len(b))
	}
	for i := 0; i < 8; i++ {
		if b[i] != byte(i+1) {
			t.Fatalf("byte %d lost on grow: %#02x", i, b[i])
		}
	}
	a.Free(b)
}

func TestAllocatorReallocToNilFrees(t *testing.T) {
	a := NewAllocator(nil)
	b, err := a.Malloc(16)
	if err != nil {
		t.Fatal(err)
	}
	b, err = a.Realloc(b, 0)
	if err != nil {
		t.Fatal(err)
	}
	if b != nil {
		t.Fatalf("Realloc(b, 0) = %v, want nil", b)
	}
}

func TestAllocatorMallocZero(t *testing.T) {
	a := NewAllocator(nil)
	b, err := a.Malloc(0)
	if err != nil {
		t.Fatal(err)
	}
	if b != nil {
		t.Fatal("Malloc(0) should return nil")
	}
}
