package action

import (
	"encoding/binary"
	"math"

	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/mapping"
	"github.com/envelope-project/laik-go/space"
	"github.com/envelope-project/laik-go/transition"
)

// Transport is the minimal collective/point-to-point capability an
// executor needs from a backend (component I): send/receive one
// already-packed byte payload to/from a peer, and the three reduce
// shapes spec.md §4.G/§4.H describe. Kept in this package (rather than
// importing backend, which would cycle) so backend.Backend can
// implement it directly.
type Transport interface {
	Send(peer int, data []byte) error
	Recv(peer int) ([]byte, error)
	ReduceAll(data []float64, op transition.ReductionOp) ([]float64, error)
	ReduceRoot(data []float64, inGroup []int, root int, op transition.ReductionOp) ([]float64, error)
	GroupReduce(data []float64, inGroup, outGroup []int, op transition.ReductionOp) ([]float64, error)
}

// Exec replays the sequence's actions in order against t (spec.md
// §4.H: "executor that dispatches to the backend"). Fails fast if the
// sequence was invalidated by a reservation rebuild since Build/Bind.
func (s *Sequence) Exec(t Transport) error {
	if !s.Valid() {
		return errs.NewPartitioningMismatch("action: sequence invalidated by reservation rebuild")
	}
	for _, a := range s.Actions {
		if err := s.execOne(t, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequence) execOne(t Transport, a Action) error {
	switch a.Kind {
	case KindFill:
		m, err := s.resolve(a.MapNo)
		if err != nil {
			return err
		}
		forEachPoint(a.Range, func(p [space.MaxDims]int64) {
			m.SetFloat64At(m.Range.Linear1D(p), a.Neutral)
		})
		return nil

	case KindReduce, KindGroupReduce:
		return s.execReduce(t, a)

	case KindPackAndSend, KindSendBuf:
		raw, err := s.pack(a.Parts)
		if err != nil {
			return err
		}
		return t.Send(a.Peer, s.codec.Encode(raw))

	case KindRecvAndUnpack, KindRecvBuf:
		wire, err := t.Recv(a.Peer)
		if err != nil {
			return errs.NewPeerGone(a.Peer)
		}
		want := partsByteLen(a.Parts)
		raw, err := s.codec.Decode(wire, want)
		if err != nil {
			return err
		}
		return s.unpack(a.Parts, raw)

	case KindCopy:
		return s.copyLocal(a)

	default:
		return errs.NewInvalidFlow("action: unknown action kind %v", a.Kind)
	}
}

func partsByteLen(parts []RangePart) int {
	var n int64
	for _, p := range parts {
		n += p.Range.Size()
	}
	return int(n * 8)
}

// pack concatenates every part's elements (row-major within each part,
// parts in order) into one flat byte buffer, the PackAndSend/SendBuf
// staging payload.
func (s *Sequence) pack(parts []RangePart) ([]byte, error) {
	out := make([]byte, 0, partsByteLen(parts))
	for _, pt := range parts {
		m, err := s.resolve(pt.MapNo)
		if err != nil {
			return nil, err
		}
		var buf [8]byte
		forEachPoint(pt.Range, func(p [space.MaxDims]int64) {
			v := m.Float64At(m.Range.Linear1D(p))
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			out = append(out, buf[:]...)
		})
	}
	return out, nil
}

// unpack scatters a flat byte buffer (as produced by pack on the peer)
// back into the local mappings named by parts, in the same order pack
// would have walked them.
func (s *Sequence) unpack(parts []RangePart, raw []byte) error {
	off := 0
	for _, pt := range parts {
		m, err := s.resolve(pt.MapNo)
		if err != nil {
			return err
		}
		var unpackErr error
		forEachPoint(pt.Range, func(p [space.MaxDims]int64) {
			if unpackErr != nil {
				return
			}
			if off+8 > len(raw) {
				unpackErr = errs.NewInvalidIndexSpace("action: unpack ran past payload")
				return
			}
			v := math.Float64frombits(binary.LittleEndian.Uint64(raw[off : off+8]))
			m.SetFloat64At(m.Range.Linear1D(p), v)
			off += 8
		})
		if unpackErr != nil {
			return unpackErr
		}
	}
	return nil
}

func (s *Sequence) copyLocal(a Action) error {
	from, err := s.resolve(a.FromMapNo)
	if err != nil {
		return err
	}
	to, err := s.resolve(a.ToMapNo)
	if err != nil {
		return err
	}
	forEachPoint(a.Range, func(p [space.MaxDims]int64) {
		v := from.Float64At(from.Range.Linear1D(p))
		to.SetFloat64At(to.Range.Linear1D(p), v)
	})
	return nil
}

// execReduce gathers the local mapping's values over a.Range, invokes
// the matching collective on t, and scatters the result back -- unless
// the local process isn't a member of the reduce's output group, in
// which case t returns a nil result and there is nothing to write back.
func (s *Sequence) execReduce(t Transport, a Action) error {
	m, err := s.resolve(a.MapNo)
	if err != nil {
		return err
	}
	data := gather(m, a.Range)

	var out []float64
	switch {
	case a.All:
		out, err = t.ReduceAll(data, a.Op)
	case a.Kind == KindGroupReduce:
		out, err = t.GroupReduce(data, a.InGroup, a.OutGroup, a.Op)
	default:
		out, err = t.ReduceRoot(data, a.InGroup, a.Root, a.Op)
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	scatter(m, a.Range, out)
	return nil
}

func forEachPoint(r space.Range, fn func(p [space.MaxDims]int64)) {
	if r.IsEmpty() {
		return
	}
	var p [space.MaxDims]int64
	var rec func(dim int)
	rec = func(dim int) {
		if dim == r.Dims() {
			fn(p)
			return
		}
		for i := r.From(dim); i < r.To(dim); i++ {
			p[dim] = i
			rec(dim + 1)
		}
	}
	rec(0)
}

func gather(m *mapping.Mapping, r space.Range) []float64 {
	out := make([]float64, 0, r.Size())
	forEachPoint(r, func(p [space.MaxDims]int64) {
		out = append(out, m.Float64At(m.Range.Linear1D(p)))
	})
	return out
}

func scatter(m *mapping.Mapping, r space.Range, vals []float64) {
	i := 0
	forEachPoint(r, func(p [space.MaxDims]int64) {
		m.SetFloat64At(m.Range.Linear1D(p), vals[i])
		i++
	})
}
