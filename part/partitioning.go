// Package part implements partitioner algorithms and the materialized
// Partitioning they produce (components C and D). Grounded on spec.md
// §4.C/§4.D and the partitioner call patterns in
// original_source/examples/{jac2d,spmv2}.c.
package part

import (
	"fmt"
	"sort"

	"github.com/tidwall/btree"

	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/space"
)

// TaskSlice is one assignment of one range to one process within a
// Partitioning (spec.md §3).
type TaskSlice struct {
	Proc  int
	Range space.Range
	Tag   int
	MapNo int
}

// Receiver is the append-only sink a Partitioner.Run appends task-slices
// to (spec.md §4.C: "appends (process_id, range, tag, mapNo) tuples").
type Receiver interface {
	Add(proc int, r space.Range, tag, mapNo int)
}

// collector is the concrete Receiver built while materializing a
// Partitioning from a Partitioner.
type collector struct {
	slices []TaskSlice
}

func (c *collector) Add(proc int, r space.Range, tag, mapNo int) {
	if r.IsEmpty() {
		return
	}
	c.slices = append(c.slices, TaskSlice{Proc: proc, Range: r, Tag: tag, MapNo: mapNo})
}

// indexedLess orders TaskSlices by Proc then From(0), the pre-sorted
// index spec.md §4.D describes; AllSlices walks it. The sequence number
// breaks ties between slices sharing (Proc, From(0)), e.g. multiple
// halo fragments.
type indexed struct {
	TaskSlice
	seq int
}

func indexedLess(a, b indexed) bool {
	if a.Proc != b.Proc {
		return a.Proc < b.Proc
	}
	if a.Range.From(0) != b.Range.From(0) {
		return a.Range.From(0) < b.Range.From(0)
	}
	return a.seq < b.seq
}

// Partitioning is the materialized output of a Partitioner: an ordered
// array of task-slices, indexed by process for O(1) "my ranges" lookup
// and by (Proc,From0) in a btree that gives AllSlices its order; point
// queries (GlobalToLocal) scan the process's own slices.
type Partitioning struct {
	name  string
	space *space.Space
	group *group.Group

	slices []TaskSlice
	byProc map[int][]int // proc -> indices into slices, in slice order
	index  *btree.BTreeG[indexed]
}

// Build materializes a Partitioning by running pnr over params.
func Build(pnr Partitioner, params *Params) (*Partitioning, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	c := &collector{}
	if err := pnr.Run(params, c); err != nil {
		return nil, err
	}
	p := &Partitioning{
		name:   pnr.Name(),
		space:  params.Space,
		group:  params.Group,
		slices: c.slices,
		byProc: make(map[int][]int),
	}
	p.index = btree.NewBTreeG(indexedLess)
	for i, ts := range p.slices {
		p.byProc[ts.Proc] = append(p.byProc[ts.Proc], i)
		p.index.Set(indexed{TaskSlice: ts, seq: i})
	}
	return p, nil
}

// Params are the inputs to a Partitioner.Run: the target space, the
// group, and optionally a base partitioning (for Halo/Reassign).
type Params struct {
	Space *space.Space
	Group *group.Group
	Base  *Partitioning
}

func (pm *Params) validate() error {
	if pm.Space == nil {
		return errs.NewInvalidIndexSpace("partitioner params: nil space")
	}
	if pm.Group == nil {
		return errs.NewInvalidIndexSpace("partitioner params: nil group")
	}
	return nil
}

// Partitioner is a pure algorithm producing a Partitioning, the Go
// analogue of the source's "named algorithm plus opaque configuration
// data plus an entry point run(params) -> range_receiver".
type Partitioner interface {
	Name() string
	Run(params *Params, recv Receiver) error
}

// Name returns the partitioning's display name (the partitioner's name
// by default).
func (p *Partitioning) Name() string { return p.name }

// SetName overrides the display name.
func (p *Partitioning) SetName(name string) { p.name = name }

// Space returns the back-referenced space; it must outlive p.
func (p *Partitioning) Space() *space.Space { return p.space }

// Group returns the back-referenced group; it must outlive p.
func (p *Partitioning) Group() *group.Group { return p.group }

// MySliceCount returns the number of task-slices owned by the calling
// process.
func (p *Partitioning) MySliceCount() int {
	return len(p.byProc[p.group.MyID()])
}

// MyRanges returns every task-slice owned by the calling process, in
// ascending From(0) order.
func (p *Partitioning) MyRanges() []TaskSlice {
	return p.RangesOf(p.group.MyID())
}

// RangesOf returns every task-slice owned by proc, in ascending From(0)
// order (my_ranges_{1,2,3}d generalized to one arity-independent call,
// since space.Range already carries its own Dims()).
func (p *Partitioning) RangesOf(proc int) []TaskSlice {
	idxs := p.byProc[proc]
	out := make([]TaskSlice, len(idxs))
	for i, idx := range idxs {
		out[i] = p.slices[idx]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Range.From(0) < out[j].Range.From(0) })
	return out
}

// SizeOfProcess returns the total element count assigned to proc across
// all its task-slices (size_of_process).
func (p *Partitioning) SizeOfProcess(proc int) int64 {
	var total int64
	for _, ts := range p.RangesOf(proc) {
		total += ts.Range.Size()
	}
	return total
}

// AllSlices returns every task-slice across every process, in (Proc,
// From0) order.
func (p *Partitioning) AllSlices() []TaskSlice {
	out := make([]TaskSlice, 0, len(p.slices))
	p.index.Scan(func(item indexed) bool {
		out = append(out, item.TaskSlice)
		return true
	})
	return out
}

// GlobalToLocal finds which of proc's task-slices (if any) contains the
// given global index, and its offset within that task-slice's local
// buffer (global_to_local). Returns ok=false if proc owns no task-slice
// containing idx.
func (p *Partitioning) GlobalToLocal(proc int, idx [space.MaxDims]int64) (mapNo int, offset int64, ok bool) {
	for _, ts := range p.RangesOf(proc) {
		if containsPoint(ts.Range, idx) {
			return ts.MapNo, ts.Range.Linear1D(idx), true
		}
	}
	return 0, 0, false
}

// LocalToGlobal is the inverse of GlobalToLocal within one task-slice.
func (p *Partitioning) LocalToGlobal(ts TaskSlice, offset int64) [space.MaxDims]int64 {
	var out [space.MaxDims]int64
	rem := offset
	dims := ts.Range.Dims()
	// unravel row-major offset back to per-dim coordinates
	widths := make([]int64, dims)
	for i := 0; i < dims; i++ {
		widths[i] = ts.Range.Width(i)
	}
	for i := dims - 1; i >= 0; i-- {
		if widths[i] == 0 {
			continue
		}
		out[i] = ts.Range.From(i) + rem%widths[i]
		rem /= widths[i]
	}
	return out
}

func containsPoint(r space.Range, p [space.MaxDims]int64) bool {
	for i := 0; i < r.Dims(); i++ {
		if p[i] < r.From(i) || p[i] >= r.To(i) {
			return false
		}
	}
	return true
}

// CoversFullSpace reports whether the union of every task-slice (across
// all processes) equals the full space -- the "Coverage" invariant of
// spec.md §8, checked by summing disjoint-and-overlap-aware element
// counts per 1-D projection for the common 1-D/element-weighted case and
// by exact union for small multi-D spaces.
func (p *Partitioning) CoversFullSpace() bool {
	full := p.space.Slice()
	covered := UnionSize(p.slices)
	return covered == full.Size()
}

// UnionSize computes the element count of the union of a set of ranges
// by sorting 1-D projections and merging; for >1-D it falls back to a
// point-sampling-free exact sweep along dimension 0 bucketed by the
// distinct breakpoints, which is exact because every partitioner in
// this package only ever splits along axis-aligned planes. Exported so
// package transition can check Preserve-flow source coverage against
// an arbitrary slice set, not just a full partitioning.
func UnionSize(slices []TaskSlice) int64 {
	if len(slices) == 0 {
		return 0
	}
	dims := slices[0].Range.Dims()
	if dims == 1 {
		return union1D(slices)
	}
	// collect breakpoints along dim 0, sweep, and for each resulting
	// 1-D cell count the union of the cross-sections that cover it.
	var cuts []int64
	for _, ts := range slices {
		cuts = append(cuts, ts.Range.From(0), ts.Range.To(0))
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })
	cuts = dedup(cuts)

	var total int64
	for i := 0; i+1 < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+1]
		if hi <= lo {
			continue
		}
		width := hi - lo
		var crossSections []TaskSlice
		for _, ts := range slices {
			if ts.Range.From(0) <= lo && ts.Range.To(0) >= hi {
				crossSections = append(crossSections, ts)
			}
		}
		total += width * unionSizeCrossSection(crossSections, dims)
	}
	return total
}

func unionSizeCrossSection(slices []TaskSlice, dims int) int64 {
	if dims == 2 {
		var cuts []int64
		for _, ts := range slices {
			cuts = append(cuts, ts.Range.From(1), ts.Range.To(1))
		}
		sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })
		cuts = dedup(cuts)
		var total int64
		for i := 0; i+1 < len(cuts); i++ {
			lo, hi := cuts[i], cuts[i+1]
			for _, ts := range slices {
				if ts.Range.From(1) <= lo && ts.Range.To(1) >= hi {
					total += hi - lo
					break
				}
			}
		}
		return total
	}
	// dims == 3: sweep dim1, then dim2 per cell
	var cuts []int64
	for _, ts := range slices {
		cuts = append(cuts, ts.Range.From(1), ts.Range.To(1))
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })
	cuts = dedup(cuts)
	var total int64
	for i := 0; i+1 < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+1]
		width := hi - lo
		var cross []TaskSlice
		for _, ts := range slices {
			if ts.Range.From(1) <= lo && ts.Range.To(1) >= hi {
				cross = append(cross, ts)
			}
		}
		total += width * unionSizeCrossSection2(cross)
	}
	return total
}

func unionSizeCrossSection2(slices []TaskSlice) int64 {
	var cuts []int64
	for _, ts := range slices {
		cuts = append(cuts, ts.Range.From(2), ts.Range.To(2))
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i] < cuts[j] })
	cuts = dedup(cuts)
	var total int64
	for i := 0; i+1 < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+1]
		for _, ts := range slices {
			if ts.Range.From(2) <= lo && ts.Range.To(2) >= hi {
				total += hi - lo
				break
			}
		}
	}
	return total
}

func union1D(slices []TaskSlice) int64 {
	type iv struct{ from, to int64 }
	ivs := make([]iv, 0, len(slices))
	for _, ts := range slices {
		ivs = append(ivs, iv{ts.Range.From(0), ts.Range.To(0)})
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].from < ivs[j].from })
	var total int64
	var curFrom, curTo int64
	have := false
	for _, v := range ivs {
		if !have {
			curFrom, curTo, have = v.from, v.to, true
			continue
		}
		if v.from > curTo {
			total += curTo - curFrom
			curFrom, curTo = v.from, v.to
			continue
		}
		if v.to > curTo {
			curTo = v.to
		}
	}
	if have {
		total += curTo - curFrom
	}
	return total
}

func dedup(s []int64) []int64 {
	out := s[:0]
	var last int64
	first := true
	for _, v := range s {
		if first || v != last {
			out = append(out, v)
			last = v
			first = false
		}
	}
	return out
}

// Disjoint reports whether every pair of task-slices from different
// processes is non-overlapping -- the "Disjointness" invariant spec.md
// §8 requires of exclusive partitioners.
func (p *Partitioning) Disjoint() bool {
	for i := 0; i < len(p.slices); i++ {
		for j := i + 1; j < len(p.slices); j++ {
			if p.slices[i].Proc == p.slices[j].Proc {
				continue
			}
			if _, ok := p.slices[i].Range.Intersect(p.slices[j].Range); ok {
				return false
			}
		}
	}
	return true
}

// Migrate reinterprets every task-slice's process id through g's
// FromParent mapping, producing a Partitioning valid over g. Fails if
// any non-empty task-slice would map to -1 (spec.md §4.B).
func (p *Partitioning) Migrate(g *group.Group) (*Partitioning, error) {
	np := &Partitioning{
		name:   p.name,
		space:  p.space,
		group:  g,
		byProc: make(map[int][]int),
	}
	np.index = btree.NewBTreeG(indexedLess)
	for _, ts := range p.slices {
		newProc := g.FromParent(ts.Proc)
		if newProc < 0 {
			return nil, errs.NewPartitioningMismatch(
				"migrate: process %d owns non-empty range %s but was removed", ts.Proc, ts.Range)
		}
		nts := TaskSlice{Proc: newProc, Range: ts.Range, Tag: ts.Tag, MapNo: ts.MapNo}
		np.byProc[newProc] = append(np.byProc[newProc], len(np.slices))
		np.index.Set(indexed{TaskSlice: nts, seq: len(np.slices)})
		np.slices = append(np.slices, nts)
	}
	return np, nil
}

func (p *Partitioning) String() string {
	return fmt.Sprintf("partitioning(%q,%d slices)", p.name, len(p.slices))
}
