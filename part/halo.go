package part

import "github.com/envelope-project/laik-go/space"

// Halo extends each non-empty task-slice of the base partitioning by
// depth indices along every inner face, clamped to the space's extents
// (spec.md §4.C item 8). Corner halo additionally includes corner
// cells; plain halo does not.
func Halo(base *Partitioning, depth int64, corners bool) Partitioner {
	return &haloPartitioner{base: base, depth: depth, corners: corners}
}

type haloPartitioner struct {
	base    *Partitioning
	depth   int64
	corners bool
}

func (haloPartitioner) Name() string { return "Halo" }

func (h *haloPartitioner) Run(p *Params, recv Receiver) error {
	full := p.Space.Slice()
	if h.depth == 0 {
		for _, ts := range h.base.AllSlices() {
			recv.Add(ts.Proc, ts.Range, ts.Tag, ts.MapNo)
		}
		return nil
	}

	for _, ts := range h.base.AllSlices() {
		if ts.Range.IsEmpty() {
			// Open question (b): empty base -> empty read-range, never an
			// error or a halo grown from nothing.
			continue
		}
		if h.corners {
			grown := growClamped(ts.Range, full, h.depth)
			recv.Add(ts.Proc, grown, ts.Tag, ts.MapNo)
			continue
		}
		// Plain halo: one arm per dimension, each the base range grown by
		// depth along that dimension only (clamped to the space) and left
		// untouched along every other dimension. The arms all contain the
		// base box, so their union is the "plus" shape spec.md §8
		// scenario 5 describes, never the grown square corner halo gives.
		for dim := 0; dim < ts.Range.Dims(); dim++ {
			recv.Add(ts.Proc, armRange(ts.Range, full, dim, h.depth), ts.Tag, ts.MapNo)
		}
	}
	return nil
}

// growClamped extends r by depth in every dimension, clamped to full.
func growClamped(r, full space.Range, depth int64) space.Range {
	froms := make([]int64, r.Dims())
	tos := make([]int64, r.Dims())
	for i := 0; i < r.Dims(); i++ {
		froms[i] = clampLo(r.From(i)-depth, full.From(i))
		tos[i] = clampHi(r.To(i)+depth, full.To(i))
	}
	out, _ := space.NewRange(froms, tos)
	return out
}

// armRange returns r grown by depth along dim only (clamped to full),
// every other dimension left at r's own bounds -- one "plus" arm of a
// halo without corners.
func armRange(r, full space.Range, dim int, depth int64) space.Range {
	froms := make([]int64, r.Dims())
	tos := make([]int64, r.Dims())
	for i := 0; i < r.Dims(); i++ {
		froms[i], tos[i] = r.From(i), r.To(i)
	}
	froms[dim] = clampLo(r.From(dim)-depth, full.From(dim))
	tos[dim] = clampHi(r.To(dim)+depth, full.To(dim))
	out, _ := space.NewRange(froms, tos)
	return out
}

func clampLo(v, lo int64) int64 {
	if v < lo {
		return lo
	}
	return v
}

func clampHi(v, hi int64) int64 {
	if v > hi {
		return hi
	}
	return v
}
