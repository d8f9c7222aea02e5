package part

import (
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/space"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// Scenario 5 (spec.md §8): halo without corners, depth 1. A process
// whose base range is [2,5)x[2,5) must see read-range [1,6)x[2,5) u
// [2,5)x[1,6) (plus shape), not the 5x5 square a corner halo would
// give. This spec sets that base range directly in an 8x8 space rather
// than obtaining it by bisection.
//
// TestHaloPlusShape in halo_test.go already covers these exact values
// as a plain testing.T test; this ginkgo spec exercises the same
// fixture so the scenario also has a spec under this package's ginkgo
// suite.
var _ = Describe("halo without corners", func() {
	It("reads a plus shape, not a grown square", func() {
		sp, err := space.New("t", 8, 8)
		Expect(err).NotTo(HaveOccurred())
		g, err := group.World(1, 0)
		Expect(err).NotTo(HaveOccurred())

		baseRange, err := space.NewRange([]int64{2, 2}, []int64{5, 5})
		Expect(err).NotTo(HaveOccurred())

		narrow, err := Build(fixedRangePartitioner{r: baseRange}, &Params{Space: sp, Group: g})
		Expect(err).NotTo(HaveOccurred())

		haloed, err := Build(Halo(narrow, 1, false), &Params{Space: sp, Group: g})
		Expect(err).NotTo(HaveOccurred())

		arms := haloed.RangesOf(0)
		Expect(arms).To(HaveLen(2))

		want1, _ := space.NewRange([]int64{1, 2}, []int64{6, 5})
		want2, _ := space.NewRange([]int64{2, 1}, []int64{5, 6})

		seen := map[string]bool{}
		for _, ts := range arms {
			seen[ts.Range.String()] = true
		}
		Expect(seen[want1.String()]).To(BeTrue())
		Expect(seen[want2.String()]).To(BeTrue())

		wantUnion := int64(5*3 + 3*5 - 3*3)
		union := UnionSize([]TaskSlice{{Proc: 0, Range: want1}, {Proc: 0, Range: want2}})
		Expect(union).To(Equal(wantUnion))
	})
})
