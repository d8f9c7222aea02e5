package part

import (
	"sort"

	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/space"
)

// Reassign produces a partitioning over Params.Group (the new, usually
// shrunk, group) from Params.Base (a partitioning over the parent
// group), preserving locality: ranges stay with their owner when it
// survives, and ranges surrendered by removed processes are
// redistributed to surviving neighbors proportional to elementWeight
// (spec.md §4.C item 9).
//
// The redistribution strategy is grounded on the sticky partition
// assignor's core idea (kirilldd2-franz-go/internal/sticky/sticky.go):
// never move what a surviving member already owns, only decide where
// orphaned work goes, and do so deterministically (lowest surviving
// process id, then lowest starting index, gets first pick -- the same
// universal tie-break every other partitioner in this package uses).
func Reassign(elementWeight func(idx int64) float64) Partitioner {
	return &reassignPartitioner{w: elementWeight}
}

type reassignPartitioner struct {
	w func(idx int64) float64
}

func (reassignPartitioner) Name() string { return "Reassign" }

func (rp *reassignPartitioner) Run(p *Params, recv Receiver) error {
	if p.Base == nil {
		return errs.NewPartitioningMismatch("reassign: requires a base partitioning")
	}
	base := p.Base
	newGroup := p.Group

	var orphaned []TaskSlice
	for _, ts := range base.AllSlices() {
		newProc := newGroup.FromParent(ts.Proc)
		if newProc >= 0 {
			recv.Add(newProc, ts.Range, ts.Tag, ts.MapNo)
			continue
		}
		orphaned = append(orphaned, ts)
	}
	if len(orphaned) == 0 {
		return nil
	}

	survivors := survivingProcs(newGroup)
	if len(survivors) == 0 {
		return nil
	}
	weights := make([]float64, len(survivors))
	total := 0.0
	for i, proc := range survivors {
		w := neighborWeight(base, newGroup, proc, rp.w)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		for i := range weights {
			weights[i] = 1
		}
		total = float64(len(weights))
	}

	// Sort orphaned ranges by starting index, the universal tie-break,
	// then hand each one to the surviving neighbor (a survivor whose old
	// range touches it along dimension 0; any survivor if none does)
	// accumulating the smallest weighted share so far -- a simple greedy proportional
	// assignment that converges to the requested shares as the number
	// of orphaned ranges grows.
	sort.Slice(orphaned, func(i, j int) bool {
		return orphaned[i].Range.From(0) < orphaned[j].Range.From(0)
	})
	owed := make([]float64, len(survivors))
	for _, ts := range orphaned {
		best, bestDeficit, bestNeighbor := -1, 0.0, false
		for i, proc := range survivors {
			neighbor := false
			for _, old := range base.RangesOf(newGroup.ToParent(proc)) {
				if old.Range.To(0) == ts.Range.From(0) || old.Range.From(0) == ts.Range.To(0) {
					neighbor = true
				}
			}
			d := deficitOf(owed, weights, i)
			if best < 0 || (neighbor && !bestNeighbor) || (neighbor == bestNeighbor && d > bestDeficit) {
				best, bestDeficit, bestNeighbor = i, d, neighbor
			}
		}
		recv.Add(survivors[best], ts.Range, ts.Tag, ts.MapNo)
		owed[best] += float64(ts.Range.Size())
	}
	return nil
}

// deficitOf returns how far behind process i is relative to its target
// proportional share: a larger value means it has received less than
// its weight entitles it to so far.
func deficitOf(owed, weights []float64, i int) float64 {
	if weights[i] <= 0 {
		return -1e18
	}
	return 1 - owed[i]/weights[i]
}

// survivingProcs returns every process id in g, in ascending order.
func survivingProcs(g *group.Group) []int {
	out := make([]int, g.Size())
	for i := range out {
		out[i] = i
	}
	return out
}

// neighborWeight sums elementWeight(i) over every index base's parent
// group assigned to the process that maps (under g) to proc, i.e. the
// weight of ranges the surviving process already owned before the
// shrink -- a locality-preserving proxy for "how big a neighbor is".
func neighborWeight(base *Partitioning, g *group.Group, proc int, w func(idx int64) float64) float64 {
	oldProc := g.ToParent(proc)
	if oldProc < 0 {
		return 0
	}
	var total float64
	for _, ts := range base.RangesOf(oldProc) {
		total += sumWeight(ts.Range, w)
	}
	return total
}

func sumWeight(r space.Range, w func(idx int64) float64) float64 {
	if w == nil {
		return float64(r.Size())
	}
	if r.Dims() != 1 {
		return float64(r.Size())
	}
	var total float64
	for i := r.From(0); i < r.To(0); i++ {
		total += w(i)
	}
	return total
}
