package part

import "github.com/envelope-project/laik-go/space"

// Bisection recursively median-cuts a 2-D or 3-D space, always splitting
// the longest remaining axis first, leaving each process a rectangular
// box whose element count differs from any other by at most one
// "row" along the cut axis (spec.md §4.C item 7).
func Bisection() Partitioner { return bisectionPartitioner{} }

type bisectionPartitioner struct{}

func (bisectionPartitioner) Name() string { return "Bisection" }

func (bisectionPartitioner) Run(p *Params, recv Receiver) error {
	n := p.Group.Size()
	full := p.Space.Slice()
	boxes := bisect(full, 0, n)
	for proc, box := range boxes {
		recv.Add(proc, box, 0, 0)
	}
	return nil
}

// bisect assigns processes [0,n) to sub-boxes of r by recursive median
// cut along the longest axis, lower process ids going to the lower
// half on every cut (the universal tie-break rule).
func bisect(r space.Range, procStart, n int) []space.Range {
	boxes := make([]space.Range, n)
	assignBisect(r, procStart, n, boxes)
	return boxes
}

func assignBisect(r space.Range, procStart, n int, out []space.Range) {
	if n == 1 {
		out[procStart] = r
		return
	}
	nLo := n / 2
	nHi := n - nLo

	dim := longestAxis(r)
	from, to := r.From(dim), r.To(dim)
	width := to - from
	cut := from + (width*int64(nLo))/int64(n)
	if cut <= from {
		cut = from + 1
	}
	if cut >= to {
		cut = to - 1
	}

	lo, hi := splitAtDim(r, dim, cut)
	assignBisect(lo, procStart, nLo, out)
	assignBisect(hi, procStart+nLo, nHi, out)
}

func longestAxis(r space.Range) int {
	best, bestW := 0, int64(-1)
	for i := 0; i < r.Dims(); i++ {
		if w := r.Width(i); w > bestW {
			best, bestW = i, w
		}
	}
	return best
}

func splitAtDim(r space.Range, dim int, cut int64) (lo, hi space.Range) {
	loFroms := make([]int64, r.Dims())
	loTos := make([]int64, r.Dims())
	hiFroms := make([]int64, r.Dims())
	hiTos := make([]int64, r.Dims())
	for i := 0; i < r.Dims(); i++ {
		loFroms[i], loTos[i] = r.From(i), r.To(i)
		hiFroms[i], hiTos[i] = r.From(i), r.To(i)
	}
	loTos[dim] = cut
	hiFroms[dim] = cut
	lo, _ = space.NewRange(loFroms, loTos)
	hi, _ = space.NewRange(hiFroms, hiTos)
	return lo, hi
}
