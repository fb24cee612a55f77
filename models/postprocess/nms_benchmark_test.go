package postprocess

import (
	"fmt"
	"math/rand"
	"testing"
)

// BenchmarkIoU_NonOverlapping takes the early return for disjoint boxes.
func BenchmarkIoU_NonOverlapping(b *testing.B) {
	a := Box{Y1: 0, X1: 0, Y2: 0.2, X2: 0.2}
	c := Box{Y1: 0.5, X1: 0.5, Y2: 0.9, X2: 0.9}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = IoU(a, c)
	}
}

// BenchmarkIoU_PartialOverlap is the common case inside NMS.
func BenchmarkIoU_PartialOverlap(b *testing.B) {
	a := Box{Y1: 0, X1: 0, Y2: 0.5, X2: 0.5}
	c := Box{Y1: 0.25, X1: 0.25, Y2: 0.75, X2: 0.75}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = IoU(a, c)
	}
}

// BenchmarkNMS measures greedy suppression over typical candidate counts:
// a hundred for packed heads, a few thousand for anchor-free grids.
func BenchmarkNMS(b *testing.B) {
	for _, n := range []int{100, 1000, 4000} {
		cands := randomCandidates(rand.New(rand.NewSource(int64(n))), n)

		b.Run(fmt.Sprintf("candidates=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = NMS(cands, 0.5, 0.3, 100)
			}
		})
	}
}
