package part

import (
	"github.com/envelope-project/laik-go/space"
)

// All: every process receives the whole space as one task-slice
// (overlapping by construction -- a reduction-style partitioner).
type allPartitioner struct{}

func All() Partitioner { return allPartitioner{} }

func (allPartitioner) Name() string { return "All" }

func (allPartitioner) Run(p *Params, recv Receiver) error {
	full := p.Space.Slice()
	for proc := 0; proc < p.Group.Size(); proc++ {
		recv.Add(proc, full, 0, 0)
	}
	return nil
}

// Master: process 0 receives the whole space; others get nothing.
type masterPartitioner struct{}

func Master() Partitioner { return masterPartitioner{} }

func (masterPartitioner) Name() string { return "Master" }

func (masterPartitioner) Run(p *Params, recv Receiver) error {
	recv.Add(0, p.Space.Slice(), 0, 0)
	return nil
}

// Single assigns the whole space to one given process.
type singlePartitioner struct{ proc int }

func Single(proc int) Partitioner { return singlePartitioner{proc: proc} }

func (s singlePartitioner) Name() string { return "Single" }

func (s singlePartitioner) Run(p *Params, recv Receiver) error {
	recv.Add(s.proc, p.Space.Slice(), 0, 0)
	return nil
}

// Block divides one dimension into n*cycle nearly-equal contiguous
// segments and assigns segment k to process k mod n (unweighted,
// optionally cycled). Exclusive: segments never overlap.
type blockPartitioner struct {
	dim   int
	cycle int
}

// Block builds an unweighted 1-D block partitioner along dim, producing
// cycle task-slices per process when cycle > 1 (spec.md §4.C item 4).
func Block(dim, cycle int) Partitioner {
	if cycle < 1 {
		cycle = 1
	}
	return blockPartitioner{dim: dim, cycle: cycle}
}

func (b blockPartitioner) Name() string { return "Block" }

func (b blockPartitioner) Run(p *Params, recv Receiver) error {
	n := p.Group.Size()
	segments := n * b.cycle
	extent := p.Space.Extent(b.dim)
	bounds := equalSplit(extent, segments)

	for k := 0; k < segments; k++ {
		proc := k % n
		r := sliceAtDim(p.Space, b.dim, bounds[k], bounds[k+1])
		recv.Add(proc, r, 0, 0)
	}
	return nil
}

// equalSplit divides [0,extent) into n nearly-equal contiguous pieces,
// with surplus (extent mod n) given to the lower-indexed pieces first
// (spec.md's universal tie-break: "lower starting index wins").
func equalSplit(extent int64, n int) []int64 {
	bounds := make([]int64, n+1)
	base := extent / int64(n)
	rem := extent % int64(n)
	var pos int64
	for i := 0; i < n; i++ {
		bounds[i] = pos
		w := base
		if int64(i) < rem {
			w++
		}
		pos += w
	}
	bounds[n] = extent
	return bounds
}

func sliceAtDim(sp *space.Space, dim int, from, to int64) space.Range {
	froms := make([]int64, sp.Dims())
	tos := make([]int64, sp.Dims())
	for i := 0; i < sp.Dims(); i++ {
		if i == dim {
			froms[i], tos[i] = from, to
		} else {
			froms[i], tos[i] = 0, sp.Extent(i)
		}
	}
	r, _ := space.NewRange(froms, tos)
	return r
}

// BlockElementWeighted splits dim into contiguous segments, one per
// process, whose weight sums (given by w) are as equal as possible;
// ties broken by giving surplus weight to lower-indexed processes
// (spec.md §4.C item 5).
func BlockElementWeighted(dim int, w func(idx int64) float64) Partitioner {
	return &elementWeighted{dim: dim, w: w}
}

type elementWeighted struct {
	dim int
	w   func(idx int64) float64
}

func (e *elementWeighted) Name() string { return "BlockElementWeighted" }

func (e *elementWeighted) Run(p *Params, recv Receiver) error {
	n := p.Group.Size()
	extent := p.Space.Extent(e.dim)

	prefix := make([]float64, extent+1)
	for i := int64(0); i < extent; i++ {
		prefix[i+1] = prefix[i] + e.w(i)
	}
	total := prefix[extent]

	bounds := make([]int64, n+1)
	bounds[0] = 0
	bounds[n] = extent
	if total <= 0 {
		// degenerate: fall back to an even split so every process still
		// gets a contiguous, disjoint range.
		eq := equalSplit(extent, n)
		for i := 0; i <= n; i++ {
			bounds[i] = eq[i]
		}
	} else {
		target := total / float64(n)
		pos := int64(0)
		for proc := 1; proc < n; proc++ {
			want := target * float64(proc)
			// first index whose prefix weight reaches want, lower index
			// wins ties (search returns the smallest i with prefix[i]>=want)
			idx := searchPrefix(prefix, pos, extent, want)
			if idx < pos {
				idx = pos
			}
			bounds[proc] = idx
			pos = idx
		}
	}

	for proc := 0; proc < n; proc++ {
		r := sliceAtDim(p.Space, e.dim, bounds[proc], bounds[proc+1])
		recv.Add(proc, r, 0, 0)
	}
	return nil
}

func searchPrefix(prefix []float64, lo, hi int64, want float64) int64 {
	for lo < hi {
		mid := (lo + hi) / 2
		if prefix[mid] < want {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// BlockTaskWeighted gives process r a share of dim proportional to
// w[r]; a zero weight yields an empty task-slice (spec.md §4.C item 6).
func BlockTaskWeighted(dim int, w []float64) Partitioner {
	return &taskWeighted{dim: dim, w: w}
}

type taskWeighted struct {
	dim int
	w   []float64
}

func (t *taskWeighted) Name() string { return "BlockTaskWeighted" }

func (t *taskWeighted) Run(p *Params, recv Receiver) error {
	n := p.Group.Size()
	extent := p.Space.Extent(t.dim)

	var total float64
	for _, w := range t.w {
		total += w
	}

	bounds := make([]int64, n+1)
	if total <= 0 {
		eq := equalSplit(extent, n)
		copy(bounds, eq)
	} else {
		var acc float64
		for proc := 0; proc < n; proc++ {
			bounds[proc] = int64(float64(extent) * acc / total)
			acc += t.w[proc]
		}
		bounds[n] = extent
		// monotonicity guard: weights could make bounds non-monotone only
		// due to float rounding; clamp forward.
		for i := 1; i <= n; i++ {
			if bounds[i] < bounds[i-1] {
				bounds[i] = bounds[i-1]
			}
		}
	}

	for proc := 0; proc < n; proc++ {
		r := sliceAtDim(p.Space, t.dim, bounds[proc], bounds[proc+1])
		recv.Add(proc, r, 0, 0)
	}
	return nil
}
