// Package action implements the action sequence (component H): a
// compact, optimizable, replayable operation list compiled from a
// transition.Plan. Grounded on spec.md §4.H.
package action

import (
	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/mapping"
	"github.com/envelope-project/laik-go/reservation"
	"github.com/envelope-project/laik-go/space"
	"github.com/envelope-project/laik-go/transition"
)

// Kind discriminates an Action's variant. Only the variants the
// planner and optimizer actually produce are represented: Pack/Unpack
// and CopyFromBuf/CopyToBuf from spec.md §4.H's full variant list are
// the optimizer's own internal decomposition of PackAndSend/SendBuf,
// which opt_seq here emits directly instead of as two separate steps;
// raw Send/Recv (no packing) never applies because every local mapping
// is its own bounce buffer already.
type Kind int

const (
	KindFill Kind = iota
	KindReduce
	KindGroupReduce
	KindPackAndSend
	KindRecvAndUnpack
	KindSendBuf
	KindRecvBuf
	KindCopy
)

func (k Kind) String() string {
	switch k {
	case KindFill:
		return "Fill"
	case KindReduce:
		return "Reduce"
	case KindGroupReduce:
		return "GroupReduce"
	case KindPackAndSend:
		return "PackAndSend"
	case KindRecvAndUnpack:
		return "RecvAndUnpack"
	case KindSendBuf:
		return "SendBuf"
	case KindRecvBuf:
		return "RecvBuf"
	case KindCopy:
		return "Copy"
	default:
		return "?"
	}
}

// RangePart names one (mapNo, range) piece of a staged transfer; a
// SendBuf/RecvBuf coalesces several of these into one wire message.
type RangePart struct {
	MapNo int
	Range space.Range
}

// Action is the tagged union spec.md §4.H and design note §9 call for:
// one struct, a Kind discriminant, and the fields the variant doesn't
// use left zero.
type Action struct {
	Kind     Kind
	TransCtx int // transition-context id; always 0, core supports at most one (spec.md §4.H)

	// PackAndSend / RecvAndUnpack / SendBuf / RecvBuf
	Peer  int
	Parts []RangePart

	// Copy
	FromMapNo int
	ToMapNo   int
	Range     space.Range

	// Fill, and the destination mapping Reduce/GroupReduce gather from
	// and scatter back into (every partitioner in package part emits
	// mapNo 0 for every task-slice: this core keeps one active mapping
	// per container, so MapNo is always 0 in practice).
	MapNo   int
	Neutral float64

	// Reduce / GroupReduce
	Root     int
	All      bool
	InGroup  []int
	OutGroup []int
	Op       transition.ReductionOp
}

// MapResolver looks up the Mapping backing a mapNo; container supplies
// this at Build time.
type MapResolver func(mapNo int) (*mapping.Mapping, error)

// Sequence is the compiled, replayable action array plus the header
// fields spec.md §4.H describes: owning process, transition-context
// array (size <= 1), a buffer pool for staging, and binding state to
// the reservation (if any) it was compiled against.
type Sequence struct {
	Owner   int
	Actions []Action

	resolve    MapResolver
	codec      Codec
	res        *reservation.Reservation
	resGen     int
	boundToRes bool
}

// Bind records the reservation this sequence relies on for its
// mappings, per spec.md §4.H's invariant: "an action sequence is bound
// to its reservation if any; if the reservation is rebuilt the
// sequence is invalidated."
func (s *Sequence) Bind(r *reservation.Reservation) {
	s.res = r
	s.resGen = r.Generation()
	s.boundToRes = true
}

// Valid reports whether a bound reservation has since been rebuilt
// (reported via a changed Generation). A sequence with no bound
// reservation is always valid.
func (s *Sequence) Valid() bool {
	if !s.boundToRes {
		return true
	}
	return s.res.Generation() == s.resGen
}

// Build compiles a transition.Plan into an optimized action sequence
// (spec.md §4.H), resolving mapNo references via resolve and staging
// PackAndSend/RecvAndUnpack payloads with codec.
func Build(owner int, plan *transition.Plan, resolve MapResolver, codec Codec) (*Sequence, error) {
	if plan == nil || resolve == nil {
		return nil, errs.NewInvalidIndexSpace("action: nil plan or resolver")
	}
	if codec == nil {
		codec = CompressNone{}
	}

	s := &Sequence{Owner: owner, resolve: resolve, codec: codec}

	// Initial's neutral element depends on the reduce op that will
	// consume it; a flow-Init plan always pairs with a non-None op
	// (transition.Calc enforces this), so every fill borrows it off the
	// first reduce action.
	neutral := 0.0
	if len(plan.Reduce) > 0 {
		neutral = plan.Reduce[0].Op.Neutral()
	}
	for _, f := range plan.Initial {
		s.Actions = append(s.Actions, Action{Kind: KindFill, MapNo: f.MapNo, Range: f.Range, Neutral: neutral})
	}

	// transition.Calc computes Plan.Reduce once for the whole group (it
	// names the subgroups the action needs, not just the local share),
	// so Build must select only the actions owner actually participates
	// in -- a process outside both InGroup and OutGroup contributes
	// nothing and receives nothing.
	for _, red := range plan.Reduce {
		if !containsInt(red.InGroup, owner) && !containsInt(red.OutGroup, owner) {
			continue
		}
		k := KindReduce
		if red.Kind == transition.ReduceGroup {
			k = KindGroupReduce
		}
		s.Actions = append(s.Actions, Action{
			Kind: k, Range: red.Range, Op: red.Op,
			Root: red.Root, All: red.Kind == transition.ReduceAll,
			InGroup: red.InGroup, OutGroup: red.OutGroup,
		})
	}

	for _, op := range plan.Send {
		s.Actions = append(s.Actions, Action{
			Kind: KindPackAndSend, Peer: op.Peer,
			Parts: []RangePart{{MapNo: op.MapNo, Range: op.Range}},
		})
	}
	for _, op := range plan.Recv {
		s.Actions = append(s.Actions, Action{
			Kind: KindRecvAndUnpack, Peer: op.Peer,
			Parts: []RangePart{{MapNo: op.MapNo, Range: op.Range}},
		})
	}

	for _, lc := range plan.Local {
		s.Actions = append(s.Actions, Action{
			Kind: KindCopy, FromMapNo: lc.FromMapNo, ToMapNo: lc.ToMapNo, Range: lc.Range,
		})
	}

	Optimize(s)
	return s, nil
}

// ConvertRootReduceToGroupReduce rewrites every plain Reduce action
// whose root is localProc into a GroupReduce (spec.md §4.H: "replaces a
// Reduce where root is the local process with a GroupReduce only if the
// backend advertises no_direct_reduce"). Backends that lack a native
// reduce-to-root primitive call this from Prepare.
func (s *Sequence) ConvertRootReduceToGroupReduce(localProc int) {
	for i, a := range s.Actions {
		if a.Kind == KindReduce && !a.All && a.Root == localProc {
			s.Actions[i].Kind = KindGroupReduce
		}
	}
}

// Optimize runs opt_seq (spec.md §4.H): coalesces adjacent
// PackAndSend/RecvAndUnpack to the same peer into a single
// SendBuf/RecvBuf over a concatenated parts list, merges consecutive
// Copy runs against the same (from,to) mapping pair, and reorders every
// peer's RecvBuf before its SendBuf to avoid deadlock on synchronous
// backends. It is idempotent: running it again on its own output is a
// no-op.
func Optimize(s *Sequence) {
	s.Actions = coalescePeerOps(s.Actions, KindPackAndSend, KindSendBuf)
	s.Actions = coalescePeerOps(s.Actions, KindRecvAndUnpack, KindRecvBuf)
	s.Actions = mergeCopies(s.Actions)
	s.Actions = recvBeforeSend(s.Actions)
}

// coalescePeerOps merges every run of 2-or-more adjacent actions of
// kind `from` sharing the same peer into one action of kind `to`
// carrying their concatenated Parts. A run of exactly one keeps its
// original kind -- there is nothing to concatenate, so no buffer stage
// is introduced (this is also what keeps the transform idempotent:
// re-running it over its own singleton output must not relabel it
// again).
func coalescePeerOps(actions []Action, from, to Kind) []Action {
	out := make([]Action, 0, len(actions))
	i := 0
	for i < len(actions) {
		a := actions[i]
		if a.Kind != from {
			out = append(out, a)
			i++
			continue
		}
		parts := append([]RangePart{}, a.Parts...)
		peer := a.Peer
		j := i + 1
		for j < len(actions) && actions[j].Kind == from && actions[j].Peer == peer {
			parts = append(parts, actions[j].Parts...)
			j++
		}
		kind := from
		if j-i > 1 {
			kind = to
		}
		out = append(out, Action{Kind: kind, Peer: peer, Parts: parts})
		i = j
	}
	return out
}

// mergeCopies merges adjacent Copy actions over the same (from,to)
// mapping pair whose ranges touch along dimension 0 into one Copy.
func mergeCopies(actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.Kind == KindCopy && len(out) > 0 {
			last := &out[len(out)-1]
			if last.Kind == KindCopy && last.FromMapNo == a.FromMapNo && last.ToMapNo == a.ToMapNo &&
				last.Range.Dims() == a.Range.Dims() && last.Range.To(0) == a.Range.From(0) && sameTail(last.Range, a.Range) {
				grown, ok := growAlongDim0(last.Range, a.Range)
				if ok {
					last.Range = grown
					continue
				}
			}
		}
		out = append(out, a)
	}
	return out
}

func sameTail(a, b space.Range) bool {
	for i := 1; i < a.Dims(); i++ {
		if a.From(i) != b.From(i) || a.To(i) != b.To(i) {
			return false
		}
	}
	return true
}

func growAlongDim0(a, b space.Range) (space.Range, bool) {
	froms := make([]int64, a.Dims())
	tos := make([]int64, a.Dims())
	for i := 0; i < a.Dims(); i++ {
		froms[i] = a.From(i)
		tos[i] = a.To(i)
	}
	tos[0] = b.To(0)
	r, err := space.NewRange(froms, tos)
	return r, err == nil
}

// recvBeforeSend moves the whole contiguous run of send actions to
// after the whole contiguous run of recv actions -- spec.md §4.H:
// "pulls all RecvBuf before all SendBuf to the same peer to avoid
// deadlock on synchronous backends." Build always emits every Send
// before every Recv (peers are independent point-to-point operations,
// so a single global swap satisfies the per-peer ordering too) with
// Local copies following both; this keeps the transform a plain,
// obviously-idempotent partition instead of a comparator-based sort.
func recvBeforeSend(actions []Action) []Action {
	var head, sends, recvs, tail []Action
	sawOps := false
	pastOps := false
	for _, a := range actions {
		switch {
		case isSendKind(a.Kind):
			sawOps = true
			sends = append(sends, a)
		case isRecvKind(a.Kind):
			sawOps = true
			recvs = append(recvs, a)
		default:
			if sawOps {
				pastOps = true
			}
			if pastOps {
				tail = append(tail, a)
			} else {
				head = append(head, a)
			}
		}
	}
	out := append([]Action{}, head...)
	out = append(out, recvs...)
	out = append(out, sends...)
	out = append(out, tail...)
	return out
}

func isSendKind(k Kind) bool { return k == KindSendBuf || k == KindPackAndSend }
func isRecvKind(k Kind) bool { return k == KindRecvBuf || k == KindRecvAndUnpack }

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
