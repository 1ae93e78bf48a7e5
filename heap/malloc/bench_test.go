package malloc

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/joshuapare/heapkit/heap/brk"
)

func BenchmarkAcquireReleaseTail(b *testing.B) {
	a, err := New(brk.NewMem(1<<20), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()

	b.ReportAllocs()
	for b.Loop() {
		a.Release(a.Acquire(64))
	}
}

func BenchmarkAcquireReuse(b *testing.B) {
	a, err := New(brk.NewMem(1<<20), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()
	p := a.Acquire(64)
	a.Acquire(8)
	a.Release(p)

	b.ReportAllocs()
	for b.Loop() {
		a.Release(a.Acquire(64))
	}
}

// BenchmarkFirstFitScan measures a search that walks a long chain of busy
// records before reaching the first fit.
func BenchmarkFirstFitScan(b *testing.B) {
	for _, n := range []int{16, 256, 4096} {
		b.Run(fmt.Sprintf("records=%d", n), func(b *testing.B) {
			a, err := New(brk.NewMem(1<<24), nil)
			if err != nil {
				b.Fatal(err)
			}
			defer a.Close()
			rng := rand.New(rand.NewSource(42))
			for range n {
				a.Acquire(1 + rng.Intn(64))
			}
			hole := a.Acquire(128)
			a.Acquire(8)
			a.Release(hole)

			for b.Loop() {
				a.Release(a.Acquire(100))
			}
		})
	}
}
