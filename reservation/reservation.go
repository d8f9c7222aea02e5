// Package reservation implements the reservation (component F): a set
// of partitionings plus a precomputed mapping plan, one allocation per
// tag large enough to cover the bounding union of every added
// partitioning's local ranges for that tag. Grounded on spec.md §3/§4.F.
package reservation

import (
	"encoding/binary"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"github.com/OneOfOne/xxhash"

	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/mapping"
	"github.com/envelope-project/laik-go/part"
	"github.com/envelope-project/laik-go/space"
)

// Reservation is the mapping-plan pool described in spec.md §4.F: once
// Alloc has run, adding a partitioning that would enlarge any tag's
// bounding range is forbidden -- the reservation must be rebuilt.
type Reservation struct {
	sp       *space.Space
	elemSize int

	partitionings []*part.Partitioning
	tagRanges     map[int]space.Range
	seen          map[int]*cuckoo.Filter // tag -> fingerprints of ranges already folded in

	allocations map[int]*mapping.Mapping
	allocated   bool
	generation  int // bumped each time Alloc performs a real allocation and on every Reset
}

// New creates an empty reservation over sp, sized for elemSize-byte
// elements (reservation_new).
func New(sp *space.Space, elemSize int) *Reservation {
	return &Reservation{
		sp:          sp,
		elemSize:    elemSize,
		tagRanges:   make(map[int]space.Range),
		seen:        make(map[int]*cuckoo.Filter),
		allocations: make(map[int]*mapping.Mapping),
	}
}

// Add folds p's locally-owned task-slices into the reservation's
// per-tag bounding ranges (reservation_add). Fails with
// PartitioningMismatch once the reservation has been allocated.
func (r *Reservation) Add(p *part.Partitioning) error {
	if r.allocated {
		return errs.NewPartitioningMismatch("reservation: cannot Add after Alloc; rebuild required")
	}
	for _, ts := range p.MyRanges() {
		if r.alreadyFolded(ts.Tag, ts.Range) {
			continue // fast path: cuckoo filter says this exact range is already covered
		}
		cur, ok := r.tagRanges[ts.Tag]
		if !ok {
			r.tagRanges[ts.Tag] = ts.Range
		} else {
			grown, err := boundingUnion(cur, ts.Range)
			if err != nil {
				return err
			}
			r.tagRanges[ts.Tag] = grown
		}
		r.remember(ts.Tag, ts.Range)
	}
	r.partitionings = append(r.partitionings, p)
	return nil
}

// Alloc materializes one allocation per tag, each large enough to cover
// that tag's bounding range (reservation_alloc). Idempotent.
func (r *Reservation) Alloc() error {
	if r.allocated {
		return nil
	}
	for tag, rng := range r.tagRanges {
		m, err := mapping.New(tag, rng, r.elemSize)
		if err != nil {
			return errs.Wrap(err, "reservation: alloc tag %d", tag)
		}
		m.Owner = mapping.OwnerReservation
		r.allocations[tag] = m
	}
	r.allocated = true
	r.generation++
	return nil
}

// Generation returns a counter bumped each time Alloc performs a real
// allocation and on every Reset. A bound action.Sequence compares this against the value
// it captured at bind time to detect a rebuilt reservation without a
// back-pointer from Reservation to its users (design note §9).
func (r *Reservation) Generation() int { return r.generation }

// Reset discards every added partitioning and allocation, readying the
// reservation for a fresh Add/Alloc cycle in place -- the "rebuild"
// spec.md §4.F requires once Alloc has run and a container needs to
// cover new ranges. Bumps Generation so any action.Sequence still bound
// to the pre-reset allocations observes itself as invalidated.
func (r *Reservation) Reset() {
	r.partitionings = nil
	r.tagRanges = make(map[int]space.Range)
	r.seen = make(map[int]*cuckoo.Filter)
	r.allocations = make(map[int]*mapping.Mapping)
	r.allocated = false
	r.generation++
}

// Use validates that p's locally-owned ranges are fully contained in
// the allocated per-tag bounding ranges, the invariant check a
// container performs before binding an action sequence to this
// reservation (reservation_use).
func (r *Reservation) Use(p *part.Partitioning) error {
	if !r.allocated {
		return errs.NewPartitioningMismatch("reservation: Use before Alloc")
	}
	for _, ts := range p.MyRanges() {
		rng, ok := r.tagRanges[ts.Tag]
		if !ok || !rng.Contains(ts.Range) {
			return errs.NewPartitioningMismatch(
				"reservation: tag %d range %s not covered by reservation; rebuild required", ts.Tag, ts.Range)
		}
	}
	return nil
}

// MappingFor returns the Mapping handed out for tag (get_map) once
// Alloc has run.
func (r *Reservation) MappingFor(tag int) (*mapping.Mapping, error) {
	m, ok := r.allocations[tag]
	if !ok {
		return nil, errs.NewPartitioningMismatch("reservation: tag %d has no allocation", tag)
	}
	return m, nil
}

func (r *Reservation) alreadyFolded(tag int, rng space.Range) bool {
	f, ok := r.seen[tag]
	if !ok {
		return false
	}
	return f.Lookup(fingerprint(rng))
}

func (r *Reservation) remember(tag int, rng space.Range) {
	f, ok := r.seen[tag]
	if !ok {
		f = cuckoo.NewFilter(1024)
		r.seen[tag] = f
	}
	f.InsertUnique(fingerprint(rng))
}

// fingerprint hashes a range's bounds with xxhash for the cuckoo
// filter's membership test -- a cheap way to skip the exact bounding-box
// recompute on the common no-op "add the same partitioning again" path.
func fingerprint(r space.Range) []byte {
	buf := make([]byte, 0, 8*2*space.MaxDims)
	for i := 0; i < r.Dims(); i++ {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(r.From(i)))
		buf = append(buf, b[:]...)
		binary.LittleEndian.PutUint64(b[:], uint64(r.To(i)))
		buf = append(buf, b[:]...)
	}
	sum := xxhash.Checksum64(buf)
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, sum)
	return out
}

// boundingUnion returns the smallest box containing both a and b
// (componentwise min-of-froms, max-of-tos) -- reservations allocate a
// single contiguous region "large enough to cover" every added range,
// not necessarily their exact (possibly disjoint) union.
func boundingUnion(a, b space.Range) (space.Range, error) {
	if a.Dims() != b.Dims() {
		return space.Range{}, errs.NewInvalidRange("reservation: dimension mismatch in tag union")
	}
	froms := make([]int64, a.Dims())
	tos := make([]int64, a.Dims())
	for i := 0; i < a.Dims(); i++ {
		froms[i] = minI64(a.From(i), b.From(i))
		tos[i] = maxI64(a.To(i), b.To(i))
	}
	return space.NewRange(froms, tos)
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
