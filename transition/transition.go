// Package transition implements the transition planner (component G):
// given a space plus a from/to partitioning pair and a data-flow +
// reduction policy, it computes the abstract operation list the action
// sequence (component H) will later compile into concrete actions.
// Grounded on spec.md §4.G and the switchto call sequences in
// original_source/examples/{vsum,vsum2,vsum3,jac1d,jac2d,spmv2}.c.
package transition

import (
	"math"
	"sort"

	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/part"
	"github.com/envelope-project/laik-go/space"
)

// Flow describes whether pre-switch values are needed after the switch
// (spec.md §3).
type Flow int

const (
	FlowNone Flow = iota
	FlowPreserve
	FlowInit
)

func (f Flow) String() string {
	switch f {
	case FlowPreserve:
		return "Preserve"
	case FlowInit:
		return "Init"
	default:
		return "None"
	}
}

// ReductionOp is the associative combinator applied when multiple
// processes contribute to the same index (spec.md §3).
type ReductionOp int

const (
	OpNone ReductionOp = iota
	OpSum
	OpMin
	OpMax
	OpProd
	OpAnd
	OpOr
)

func (op ReductionOp) String() string {
	switch op {
	case OpSum:
		return "Sum"
	case OpMin:
		return "Min"
	case OpMax:
		return "Max"
	case OpProd:
		return "Prod"
	case OpAnd:
		return "And"
	case OpOr:
		return "Or"
	default:
		return "None"
	}
}

// Neutral returns op's neutral element, represented as float64 since the
// core's typed storage is a fixed-width numeric primitive (spec.md §3:
// "neutral elements: 0, +inf, -inf, 1, true, false").
func (op ReductionOp) Neutral() float64 {
	switch op {
	case OpSum:
		return 0
	case OpMin:
		return math.Inf(1)
	case OpMax:
		return math.Inf(-1)
	case OpProd:
		return 1
	case OpAnd:
		return 1 // true
	case OpOr:
		return 0 // false
	default:
		return 0
	}
}

// LocalCopy is a same-process data move: the local process owns both an
// intersecting from-range and to-range.
type LocalCopy struct {
	Range     space.Range
	FromMapNo int
	ToMapNo   int
	FromProc  int
	ToProc    int
}

// PeerOp is a point-to-point data move with one remote peer.
type PeerOp struct {
	Peer  int
	Range space.Range
	MapNo int
}

// ReduceKind distinguishes the three reduce shapes spec.md §4.G step 4
// describes.
type ReduceKind int

const (
	ReduceAll ReduceKind = iota
	ReduceRoot
	ReduceGroup
)

// ReduceAction is a Reduce or GroupReduce over one contiguous index run.
type ReduceAction struct {
	Kind     ReduceKind
	Root     int // valid when Kind == ReduceRoot
	InGroup  []int
	OutGroup []int
	Range    space.Range
	Op       ReductionOp
}

// InitialFill names one local target range that must be pre-filled with
// a reduction op's neutral element before any Reduce/GroupReduce
// consumes it (flow Init, spec.md §4.G step 2).
type InitialFill struct {
	MapNo int
	Range space.Range
}

// Plan is the transition planner's output: the four sub-lists plus
// Initial, in the fixed emission order initial -> reduce -> send/recv ->
// local (spec.md §4.G step 5); callers that need the wire order should
// read the fields in that sequence.
type Plan struct {
	Initial []InitialFill
	Reduce  []ReduceAction
	Send    []PeerOp
	Recv    []PeerOp
	Local   []LocalCopy
}

// IsEmpty reports whether the plan has no work at all (the
// "from_part == to_part && op == None" edge case collapses to this).
func (p *Plan) IsEmpty() bool {
	return len(p.Initial) == 0 && len(p.Reduce) == 0 &&
		len(p.Send) == 0 && len(p.Recv) == 0 && len(p.Local) == 0
}

// Calc computes the transition plan for the local process (to.Group().MyID())
// moving from `from` to `to` under (flow, op) (spec.md §4.G).
//
// Reduction handling is a deliberate simplification of the literal spec
// text: ordinary Send/Recv only ever moves an index with exactly one
// from-owner (a plain repartition); any index contributed by more than
// one from-owner is always resolved via Reduce/GroupReduce when op !=
// None. This matches every worked example in
// original_source/examples/{vsum,raytracer}: overlapping source
// partitionings (All) are always paired with a non-None op, and
// disjoint block partitionings are always paired with RO_None.
func Calc(sp *space.Space, from, to *part.Partitioning, flow Flow, op ReductionOp) (*Plan, error) {
	if from == nil || to == nil || sp == nil {
		return nil, errs.NewInvalidIndexSpace("transition: nil space/from/to")
	}
	local := to.Group().MyID()
	plan := &Plan{}

	if flow == FlowInit {
		if op == OpNone {
			return nil, errs.NewInvalidFlow("transition: Init flow requires a reduction op")
		}
		for _, ts := range to.RangesOf(local) {
			plan.Initial = append(plan.Initial, InitialFill{MapNo: ts.MapNo, Range: ts.Range})
		}
	}

	fromAll := from.AllSlices()
	toAll := to.AllSlices()

	if flow == FlowPreserve {
		if err := checkPreserveCoverage(local, fromAll, to); err != nil {
			return nil, err
		}
	}

	if op != OpNone {
		reduces, err := planReduce(sp, fromAll, toAll, op, to.Group().Size())
		if err != nil {
			return nil, err
		}
		plan.Reduce = reduces
	}

	// Send/Recv + Local: plain data movement. When op != None only indices
	// owned by exactly one from-process move here (overlapping indices were
	// claimed by Reduce above); when op == None every from-owner of an
	// index moves its copy like any other.
	singleOwner := exactlyOneFromOwner(fromAll)
	for _, fts := range fromAll {
		for _, tts := range toAll {
			if fts.Range.Dims() != tts.Range.Dims() {
				continue
			}
			inter, ok := fts.Range.Intersect(tts.Range)
			if !ok {
				continue
			}
			if op != OpNone && !singleOwner(inter) {
				continue
			}
			switch {
			case fts.Proc == tts.Proc:
				if fts.Proc != local {
					continue
				}
				if inter.Equal(fts.Range) && inter.Equal(tts.Range) {
					// byte-identical placement: a no-op per spec.md §4.G
					// step 1, never an emitted Copy action.
					continue
				}
				plan.Local = append(plan.Local, LocalCopy{
					Range: inter, FromMapNo: fts.MapNo, ToMapNo: tts.MapNo,
					FromProc: fts.Proc, ToProc: tts.Proc,
				})
			case fts.Proc == local:
				plan.Send = append(plan.Send, PeerOp{Peer: tts.Proc, Range: inter, MapNo: fts.MapNo})
			case tts.Proc == local:
				plan.Recv = append(plan.Recv, PeerOp{Peer: fts.Proc, Range: inter, MapNo: tts.MapNo})
			}
		}
	}

	sort.Slice(plan.Send, func(i, j int) bool { return plan.Send[i].Peer < plan.Send[j].Peer })
	sort.Slice(plan.Recv, func(i, j int) bool { return plan.Recv[i].Peer < plan.Recv[j].Peer })

	return plan, nil
}

// checkPreserveCoverage enforces spec.md §4.G/§7's Preserve-flow
// invariant: every index the local process reads after the switch must
// already be owned by some from-process. A to-range with a subregion no
// fromAll slice intersects would otherwise surface as silently
// uninitialized data; this turns that into a MissingSource error
// instead.
func checkPreserveCoverage(local int, fromAll []part.TaskSlice, to *part.Partitioning) error {
	for _, tts := range to.RangesOf(local) {
		var overlapping []part.TaskSlice
		for _, fts := range fromAll {
			inter, ok := fts.Range.Intersect(tts.Range)
			if !ok {
				continue
			}
			overlapping = append(overlapping, part.TaskSlice{Proc: fts.Proc, Range: inter})
		}
		if part.UnionSize(overlapping) < tts.Range.Size() {
			return errs.NewMissingSource(tts.Range.String())
		}
	}
	return nil
}

// exactlyOneFromOwner returns a predicate reporting whether every from-slice
// overlapping r belongs to the same single process; it is a coarse
// approximation good enough for the axis-aligned, non-fragmented
// partitionings every algorithm in package part produces: it checks
// overlap count among fromAll against r.
func exactlyOneFromOwner(fromAll []part.TaskSlice) func(r space.Range) bool {
	return func(r space.Range) bool {
		owner := -1
		for _, ts := range fromAll {
			if _, ok := ts.Range.Intersect(r); ok {
				if owner == -1 {
					owner = ts.Proc
				} else if owner != ts.Proc {
					return false
				}
			}
		}
		return true
	}
}

// planReduce finds every to-slice, determines its from-owners (the
// "input group" for that index range), and emits the Reduce/GroupReduce
// shape spec.md §4.G step 4 describes. Indices with a single from-owner
// are left for ordinary Send/Recv/Local handling.
func planReduce(sp *space.Space, fromAll, toAll []part.TaskSlice, op ReductionOp, n int) ([]ReduceAction, error) {
	full := sp.Slice()
	if isAllPartitioner(fromAll, full, n) && isAllPartitioner(toAll, full, n) {
		return []ReduceAction{{
			Kind: ReduceAll, Range: full, Op: op,
			InGroup: allProcs(fromAll), OutGroup: allProcs(toAll),
		}}, nil
	}

	seen := map[string]bool{}
	var actions []ReduceAction
	for _, tts := range toAll {
		key := tts.Range.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		inGroup := ownersOf(fromAll, tts.Range)
		if len(inGroup) <= 1 {
			continue
		}
		outGroup := ownersOf(toAll, tts.Range)

		if len(outGroup) == 1 {
			actions = append(actions, ReduceAction{
				Kind: ReduceRoot, Root: outGroup[0], InGroup: inGroup, OutGroup: outGroup,
				Range: tts.Range, Op: op,
			})
			continue
		}
		actions = append(actions, ReduceAction{
			Kind: ReduceGroup, InGroup: inGroup, OutGroup: outGroup,
			Range: tts.Range, Op: op,
		})
	}
	return mergeContiguous(actions), nil
}

// isAllPartitioner reports whether every one of n processes owns a
// task-slice equal to the full space -- the shape the All() partitioner
// produces, and the precondition for collapsing a reduction into a
// single ReduceAll action (spec.md §4.G step 4: "input group == output
// group == all processes and they overlap everywhere").
func isAllPartitioner(slices []part.TaskSlice, full space.Range, n int) bool {
	if len(slices) != n {
		return false
	}
	seen := make(map[int]bool, n)
	for _, ts := range slices {
		if !ts.Range.Equal(full) {
			return false
		}
		seen[ts.Proc] = true
	}
	return len(seen) == n
}

func allProcs(slices []part.TaskSlice) []int {
	seen := map[int]bool{}
	var out []int
	for _, ts := range slices {
		if !seen[ts.Proc] {
			seen[ts.Proc] = true
			out = append(out, ts.Proc)
		}
	}
	sort.Ints(out)
	return out
}

func ownersOf(slices []part.TaskSlice, r space.Range) []int {
	seen := map[int]bool{}
	var out []int
	for _, ts := range slices {
		if _, ok := ts.Range.Intersect(r); ok {
			if !seen[ts.Proc] {
				seen[ts.Proc] = true
				out = append(out, ts.Proc)
			}
		}
	}
	sort.Ints(out)
	return out
}

// mergeContiguous coalesces adjacent (same root/in-group, touching
// ranges along dim 0) reduce actions into one, the "per contiguous index
// run" rule of spec.md §4.G step 4.
func mergeContiguous(actions []ReduceAction) []ReduceAction {
	if len(actions) < 2 {
		return actions
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Range.From(0) < actions[j].Range.From(0)
	})
	out := actions[:1]
	for _, a := range actions[1:] {
		last := &out[len(out)-1]
		if last.Kind == a.Kind && last.Root == a.Root && last.Range.To(0) == a.Range.From(0) &&
			sameIntSlice(last.InGroup, a.InGroup) && sameIntSlice(last.OutGroup, a.OutGroup) {
			grownFrom := make([]int64, a.Range.Dims())
			grownTo := make([]int64, a.Range.Dims())
			for i := 0; i < a.Range.Dims(); i++ {
				grownFrom[i], grownTo[i] = last.Range.From(i), last.Range.To(i)
			}
			grownTo[0] = a.Range.To(0)
			grown, _ := space.NewRange(grownFrom, grownTo)
			last.Range = grown
			continue
		}
		out = append(out, a)
	}
	return out
}

func sameIntSlice(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
