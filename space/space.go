// Package space implements the index-space and range algebra (component
// A of the core): immutable N-D coordinate domains and half-open boxes
// within them. Grounded on the Laik_Space/Laik_Slice semantics used
// throughout original_source/examples/{vsum,jac2d,spmv2}.c.
package space

import (
	"fmt"

	"github.com/envelope-project/laik-go/cmn/errs"
)

// MaxDims is the highest dimensionality the core supports (spec.md §1:
// "N-D (N∈{1,2,3})").
const MaxDims = 3

// Space is a named, immutable N-D coordinate domain.
type Space struct {
	name    string
	dims    int
	extents [MaxDims]int64
}

// New creates an immutable Space with the given per-dimension extents.
// dims must be in [1, MaxDims] and every extent must be >= 0.
func New(name string, extents ...int64) (*Space, error) {
	d := len(extents)
	if d < 1 || d > MaxDims {
		return nil, errs.NewInvalidIndexSpace("space %q: dims %d out of [1,%d]", name, d, MaxDims)
	}
	s := &Space{name: name, dims: d}
	for i, e := range extents {
		if e < 0 {
			return nil, errs.NewInvalidIndexSpace("space %q: negative extent %d in dim %d", name, e, i)
		}
		s.extents[i] = e
	}
	return s, nil
}

// Name returns the space's display name.
func (s *Space) Name() string { return s.name }

// SetName renames the space (debug/log display only, per part.D's
// set_name sibling operation on partitionings).
func (s *Space) SetName(name string) { s.name = name }

// Dims returns the dimensionality, 1..MaxDims.
func (s *Space) Dims() int { return s.dims }

// Extent returns the size of dimension i.
func (s *Space) Extent(i int) int64 { return s.extents[i] }

// Extents returns all dims extents, zero-padded past Dims().
func (s *Space) Extents() [MaxDims]int64 { return s.extents }

// Size returns the total element count of the space.
func (s *Space) Size() int64 {
	var total int64 = 1
	for i := 0; i < s.dims; i++ {
		total *= s.extents[i]
	}
	return total
}

// Slice returns the full-extent Range covering the whole space
// (slice_of_space).
func (s *Space) Slice() Range {
	var r Range
	r.dims = s.dims
	for i := 0; i < s.dims; i++ {
		r.to[i] = s.extents[i]
	}
	return r
}

func (s *Space) String() string {
	return fmt.Sprintf("space(%q,%dd,%v)", s.name, s.dims, s.extents[:s.dims])
}

// Range is a half-open box [from0,to0) x ... x [from_{d-1},to_{d-1})
// within one Space. The zero value is an empty range with Dims() == 0;
// use NewRange to build one with an explicit dimensionality.
type Range struct {
	dims int
	from [MaxDims]int64
	to   [MaxDims]int64
}

// NewRange builds a Range of the given dimensionality; from/to must have
// the same length, which becomes the range's Dims(). The invariant
// from <= to componentwise is NOT enforced here: an inverted range is
// accepted as a valid, empty range (see IsEmpty).
func NewRange(from, to []int64) (Range, error) {
	if len(from) != len(to) || len(from) < 1 || len(from) > MaxDims {
		return Range{}, errs.NewInvalidRange("range: mismatched or out-of-bounds dims (from=%d,to=%d)", len(from), len(to))
	}
	var r Range
	r.dims = len(from)
	copy(r.from[:], from)
	copy(r.to[:], to)
	return r, nil
}

// Dims returns the range's dimensionality.
func (r Range) Dims() int { return r.dims }

// From returns the inclusive lower bound of dimension i.
func (r Range) From(i int) int64 { return r.from[i] }

// To returns the exclusive upper bound of dimension i.
func (r Range) To(i int) int64 { return r.to[i] }

// Width returns To(i)-From(i), clamped to 0 if negative.
func (r Range) Width(i int) int64 {
	w := r.to[i] - r.from[i]
	if w < 0 {
		return 0
	}
	return w
}

// IsEmpty reports whether the range has zero width in any dimension.
func (r Range) IsEmpty() bool {
	if r.dims == 0 {
		return true
	}
	for i := 0; i < r.dims; i++ {
		if r.to[i] <= r.from[i] {
			return true
		}
	}
	return false
}

// Size returns the element count (Range_size): product of widths, 0 if
// empty.
func (r Range) Size() int64 {
	if r.IsEmpty() {
		return 0
	}
	var n int64 = 1
	for i := 0; i < r.dims; i++ {
		n *= r.Width(i)
	}
	return n
}

// Intersect returns the componentwise-max-of-froms/min-of-tos box and
// whether it is non-empty (range_intersect).
func (r Range) Intersect(o Range) (Range, bool) {
	if r.dims != o.dims {
		return Range{}, false
	}
	var out Range
	out.dims = r.dims
	for i := 0; i < r.dims; i++ {
		out.from[i] = max64(r.from[i], o.from[i])
		out.to[i] = min64(r.to[i], o.to[i])
	}
	return out, !out.IsEmpty()
}

// Contains reports whether o is fully contained within r.
func (r Range) Contains(o Range) bool {
	if r.dims != o.dims {
		return false
	}
	for i := 0; i < r.dims; i++ {
		if o.from[i] < r.from[i] || o.to[i] > r.to[i] {
			return false
		}
	}
	return true
}

// Equal reports structural equality.
func (r Range) Equal(o Range) bool {
	if r.dims != o.dims {
		return false
	}
	for i := 0; i < r.dims; i++ {
		if r.from[i] != o.from[i] || r.to[i] != o.to[i] {
			return false
		}
	}
	return true
}

// Linear1D returns the row-major linear offset of point p within r, i.e.
// the canonical 1-D linearization used for buffer packing.
func (r Range) Linear1D(p [MaxDims]int64) int64 {
	var off int64
	for i := 0; i < r.dims; i++ {
		off = off*r.Width(i) + (p[i] - r.from[i])
	}
	return off
}

func (r Range) String() string {
	s := "["
	for i := 0; i < r.dims; i++ {
		if i > 0 {
			s += " x "
		}
		s += fmt.Sprintf("%d:%d", r.from[i], r.to[i])
	}
	return s + ")"
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
