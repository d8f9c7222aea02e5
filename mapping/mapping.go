// Package mapping implements the shared Mapping value (spec.md §3, §4.E):
// a concrete address range holding the elements of one task-slice. It is
// its own package, rather than living inside container, because both
// container (E) and reservation (F) construct and own Mappings, and
// container importing reservation (or vice versa) would be a cycle --
// the same "lift the shared value out" move the teacher makes with
// cmn/cos helpers shared by unrelated higher packages.
package mapping

import (
	"encoding/binary"
	"math"

	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/space"
	"golang.org/x/sys/unix"
)

// Owner describes who is responsible for a Mapping's backing memory.
type Owner int

const (
	// OwnerContainer: the container allocated and owns this memory;
	// freed when the mapping is replaced or the container is freed.
	OwnerContainer Owner = iota
	// OwnerReservation: memory is rented from a reservation's pool;
	// the container must never free it directly.
	OwnerReservation
	// OwnerExternal: memory was handed in via SetExternal; the core
	// never allocates or frees it.
	OwnerExternal
)

// Mapping is one task-slice's backing storage: a range, the element
// width, row-major strides derived from the range's widths, and a flat
// byte buffer big enough to hold Range.Size()*ElemSize bytes.
type Mapping struct {
	MapNo    int
	Range    space.Range
	ElemSize int
	Strides  [space.MaxDims]int64
	Owner    Owner

	buf []byte
}

// New allocates owned backing memory for r, rounding the allocation up
// to a whole number of host pages -- a sizing nicety (never a
// correctness requirement) that avoids the allocator rounding up
// itself under the hood on every call.
func New(mapNo int, r space.Range, elemSize int) (*Mapping, error) {
	if elemSize <= 0 {
		return nil, errs.NewOutOfMemory("mapping: non-positive element size %d", elemSize)
	}
	need := r.Size() * int64(elemSize)
	m := &Mapping{MapNo: mapNo, Range: r, ElemSize: elemSize, Owner: OwnerContainer}
	m.Strides = stridesOf(r)
	if need == 0 {
		return m, nil
	}
	m.buf = make([]byte, roundUpPage(need))[:need]
	return m, nil
}

// FromBuffer wraps an already-allocated buffer (e.g. sliced out of a
// reservation's single large allocation) without copying.
func FromBuffer(mapNo int, r space.Range, elemSize int, buf []byte, owner Owner) (*Mapping, error) {
	need := r.Size() * int64(elemSize)
	if int64(len(buf)) < need {
		return nil, errs.NewOutOfMemory("mapping: buffer too small: have %d need %d", len(buf), need)
	}
	return &Mapping{
		MapNo: mapNo, Range: r, ElemSize: elemSize, Owner: owner,
		Strides: stridesOf(r), buf: buf[:need],
	}, nil
}

// SetExternal installs caller-owned memory into the mapping
// (set_external_memory): the core never allocates or frees it.
func (m *Mapping) SetExternal(buf []byte) error {
	need := m.Range.Size() * int64(m.ElemSize)
	if int64(len(buf)) < need {
		return errs.NewOutOfMemory("mapping: external buffer too small: have %d need %d", len(buf), need)
	}
	m.buf = buf[:need]
	m.Owner = OwnerExternal
	return nil
}

// Bytes returns the mapping's backing storage.
func (m *Mapping) Bytes() []byte { return m.buf }

// ElemCount returns the number of elements the mapping holds.
func (m *Mapping) ElemCount() int64 { return m.Range.Size() }

// OffsetOf returns the byte offset of the row-major-linearized local
// index off within the mapping's buffer.
func (m *Mapping) OffsetOf(off int64) int64 { return off * int64(m.ElemSize) }

// Float64At and SetFloat64At read/write the float64-typed element at
// linearized local index off. The core deals only in float64 elements
// (ElemSize must be 8); wider element types are Non-goals.
func (m *Mapping) Float64At(off int64) float64 {
	b := m.buf[m.OffsetOf(off):]
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (m *Mapping) SetFloat64At(off int64, v float64) {
	b := m.buf[m.OffsetOf(off):]
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

// stridesOf derives row-major strides (in elements) from a range's
// per-dimension widths: stride[d] = product of widths of dimensions
// after d.
func stridesOf(r space.Range) [space.MaxDims]int64 {
	var s [space.MaxDims]int64
	dims := r.Dims()
	acc := int64(1)
	for i := dims - 1; i >= 0; i-- {
		s[i] = acc
		acc *= r.Width(i)
	}
	return s
}

func roundUpPage(n int64) int64 {
	page := int64(unix.Getpagesize())
	if page <= 0 {
		return n
	}
	if rem := n % page; rem != 0 {
		return n + (page - rem)
	}
	return n
}
