package part

import (
	"testing"

	"github.com/envelope-project/laik-go/space"
)

// TestHaloPlusShape reproduces spec.md §8 scenario 5: a single base box
// [2,5)x[2,5) in an 8x8 space, halo depth 1, no corners, must read exactly
// the union [1,6)x[2,5) u [2,5)x[1,6) -- a plus shape, never a grown square.
func TestHaloPlusShape(t *testing.T) {
	sp := mustSpace(t, 8, 8)
	g := mustGroup(t, 1, 0)

	baseRange, err := space.NewRange([]int64{2, 2}, []int64{5, 5})
	if err != nil {
		t.Fatal(err)
	}
	base, err := Build(Single(0), &Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	_ = base // base slice covers the whole 8x8 space; build a narrower one directly

	narrow, err := Build(fixedRangePartitioner{r: baseRange}, &Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}

	haloed, err := Build(Halo(narrow, 1, false), &Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}

	arms := haloed.RangesOf(0)
	if len(arms) != 2 {
		t.Fatalf("want 2 halo arms (one per dim), got %d", len(arms))
	}

	want1, _ := space.NewRange([]int64{1, 2}, []int64{6, 5})
	want2, _ := space.NewRange([]int64{2, 1}, []int64{5, 6})

	var total int64
	seen := map[string]bool{}
	for _, ts := range arms {
		seen[ts.Range.String()] = true
		total += ts.Range.Size()
	}
	if !seen[want1.String()] || !seen[want2.String()] {
		t.Fatalf("arms = %v, want %s and %s", arms, want1, want2)
	}
	// plus-shape union size: 5*3 + 3*5 - 3*3 (center double-counted once)
	wantUnion := int64(5*3 + 3*5 - 3*3)
	union := UnionSize([]TaskSlice{{Proc: 0, Range: want1}, {Proc: 0, Range: want2}})
	if union != wantUnion {
		t.Fatalf("union size = %d, want %d", union, wantUnion)
	}
	_ = total
}

func TestHaloDepthZeroPassthrough(t *testing.T) {
	sp := mustSpace(t, 10)
	g := mustGroup(t, 2, 0)
	base, err := Build(Block(0, 1), &Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	haloed, err := Build(Halo(base, 0, false), &Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	if haloed.SizeOfProcess(0) != base.SizeOfProcess(0) {
		t.Fatal("depth 0 halo must pass base ranges through unchanged")
	}
}

func TestHaloEmptyBaseStaysEmpty(t *testing.T) {
	sp := mustSpace(t, 10)
	g := mustGroup(t, 2, 0)
	base, err := Build(Master(), &Params{Space: sp, Group: g}) // proc 1 gets nothing
	if err != nil {
		t.Fatal(err)
	}
	haloed, err := Build(Halo(base, 1, true), &Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	if haloed.SizeOfProcess(1) != 0 {
		t.Fatal("an empty base range must never grow a halo out of nothing")
	}
}

func TestHaloCornersClampsToSpace(t *testing.T) {
	sp := mustSpace(t, 8, 8)
	g := mustGroup(t, 1, 0)
	baseRange, _ := space.NewRange([]int64{0, 0}, []int64{3, 3})
	base, err := Build(fixedRangePartitioner{r: baseRange}, &Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	haloed, err := Build(Halo(base, 2, true), &Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	got := haloed.RangesOf(0)[0].Range
	want, _ := space.NewRange([]int64{0, 0}, []int64{5, 5})
	if got.String() != want.String() {
		t.Fatalf("clamped corner halo = %s, want %s", got, want)
	}
}

// fixedRangePartitioner assigns one fixed range to process 0; used only to
// build test fixtures that need a specific base range without a generic
// block-style partitioner.
type fixedRangePartitioner struct{ r space.Range }

func (fixedRangePartitioner) Name() string { return "fixedRange" }

func (f fixedRangePartitioner) Run(p *Params, recv Receiver) error {
	recv.Add(0, f.r, 0, 0)
	return nil
}
