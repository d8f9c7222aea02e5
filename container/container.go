// Package container implements the container (component E): the
// object that ties a space to its current partitioning, drives
// transitions through the planner/action-sequence/backend pipeline, and
// hands out the mapping the application reads and writes. Grounded on
// spec.md §4.E and original_source/include/laik/core.h's
// Laik_Data/laik_switchto_* family.
package container

import (
	"fmt"
	"sync"
	"time"

	"github.com/envelope-project/laik-go/action"
	"github.com/envelope-project/laik-go/backend"
	"github.com/envelope-project/laik-go/cmn/atomic"
	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/cmn/metrics"
	"github.com/envelope-project/laik-go/cmn/nlog"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/mapping"
	"github.com/envelope-project/laik-go/part"
	"github.com/envelope-project/laik-go/reservation"
	"github.com/envelope-project/laik-go/space"
	"github.com/envelope-project/laik-go/transition"
)

// Container is one element container over a space, the unit that
// switch_to operates on (spec.md §4.E). One container keeps exactly one
// active partitioning; switching replaces it with a new one, carrying
// data across the transition the new partitioning implies.
type Container struct {
	mu sync.Mutex

	sp      *space.Space
	g       *group.Group
	backend backend.Backend
	codec   action.Codec
	log     *nlog.Logger

	elemSize int
	res      *reservation.Reservation
	cur      *part.Partitioning

	// seqCache holds one action.Sequence per distinct (from, to, flow, op)
	// transition this container has ever switched through, keyed by
	// Partitioning identity -- iterative applications (spec.md's
	// jac1d/jac2d examples) alternate between the same handful of
	// partitionings every step, so replanning is avoidable once a
	// sequence has been built and the reservation hasn't been rebuilt
	// since (action.Sequence.Valid tracks exactly that).
	seqCache map[string]*action.Sequence
	metrics  *metrics.Set

	// gen counts successful SwitchTo and Migrate calls (spec.md §4.E [ADDED]); a
	// cached action.Sequence a caller holds onto across switches is only
	// valid for the generation it was built against.
	gen atomic.Int64
}

// New creates an empty container over sp, owned by group g, driven by
// backend b (container_init). elemSize is the byte width of one
// element; codec may be nil, defaulting to no compression. m may be
// nil, disabling metric collection for this container.
func New(sp *space.Space, g *group.Group, b backend.Backend, elemSize int, codec action.Codec, m *metrics.Set, log *nlog.Logger) (*Container, error) {
	if sp == nil || g == nil || b == nil {
		return nil, errs.NewInvalidIndexSpace("container: nil space, group, or backend")
	}
	if err := b.UpdateGroup(g); err != nil {
		return nil, err
	}
	return &Container{
		sp:       sp,
		g:        g,
		backend:  b,
		codec:    codec,
		log:      log,
		elemSize: elemSize,
		res:      reservation.New(sp, elemSize),
		seqCache: make(map[string]*action.Sequence),
		metrics:  m,
	}, nil
}

// Generation returns the count of SwitchTo and Migrate calls that have
// completed so far, for callers that want to detect a container switch without
// holding a lock across it.
func (c *Container) Generation() int64 { return c.gen.Load() }

// Partitioning returns the container's current partitioning, or nil
// before the first SwitchTo.
func (c *Container) Partitioning() *part.Partitioning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// SwitchTo transitions the container from its current partitioning to
// p along flow, applying op where the transition requires a reduction
// (spec.md §4.E/§4.G). The first SwitchTo on a fresh container has no
// previous partitioning, so it is planned as a transition from p to p
// itself (transition.Calc rejects a nil "from" partitioning).
func (c *Container) SwitchTo(p *part.Partitioning, flow transition.Flow, op transition.ReductionOp) error {
	if p == nil {
		return errs.NewInvalidIndexSpace("container: SwitchTo with nil partitioning")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	start := time.Now()

	// transition.Calc requires a non-nil from-partitioning; a container's
	// very first SwitchTo has nothing to transition away from, so it
	// transitions from p to itself. For an exclusive partitioner (Block,
	// Single, ...) every range has one owner, so this self-transition
	// degenerates to just the Init-flow neutral fill: no process overlaps
	// another, so planReduce and the Send/Recv/Local scan both find
	// nothing to move. An overlapping partitioner (All) still reduces for
	// real even on this first call -- every process's to-range overlaps
	// every other's, so op != OpNone plans a genuine collective; callers
	// bootstrapping a container straight onto All() with a reduction op
	// must call SwitchTo from every process concurrently, same as any
	// other collective-bearing switch.
	from := c.cur
	if from == nil {
		from = p
	}

	if err := c.ensureReservationCovers(p); err != nil {
		return err
	}

	key := seqCacheKey(from, p, flow, op)
	seq, cached := c.seqCache[key]
	if cached && seq.Valid() {
		if c.metrics != nil {
			c.metrics.SeqCacheHits.Inc()
		}
	} else {
		plan, err := transition.Calc(c.sp, from, p, flow, op)
		if err != nil {
			return err
		}
		resolve := func(mapNo int) (*mapping.Mapping, error) { return c.res.MappingFor(mapNo) }
		seq, err = action.Build(c.g.MyID(), plan, resolve, c.codec)
		if err != nil {
			return err
		}
		seq.Bind(c.res)
		c.seqCache[key] = seq
		if c.metrics != nil {
			c.metrics.SeqCacheMisses.Inc()
		}
	}

	if err := c.backend.Prepare(seq); err != nil {
		return err
	}
	if err := c.backend.Exec(seq); err != nil {
		return err
	}
	if err := c.backend.Cleanup(seq); err != nil {
		return err
	}

	c.cur = p
	c.gen.Inc()
	if c.metrics != nil {
		c.metrics.Switches.Inc()
		c.metrics.ActionsExecuted.Add(float64(len(seq.Actions)))
		c.metrics.SwitchDuration.Observe(time.Since(start).Seconds())
	}
	if c.log != nil {
		c.log.Infof("container: switched to partitioning %q (generation %d)", p.Name(), c.gen.Load())
	}
	return nil
}

// seqCacheKey identifies a transition by the identity of its from/to
// Partitioning values plus flow and op: two SwitchTo calls against the
// very same Partitioning pointers (the common iterative-solver pattern
// of alternating between a small fixed set of partitionings) share a
// cached action.Sequence.
func seqCacheKey(from, to *part.Partitioning, flow transition.Flow, op transition.ReductionOp) string {
	return fmt.Sprintf("%p-%p-%d-%d", from, to, flow, op)
}

// ensureReservationCovers makes sure c.res has an allocation wide
// enough for p's locally-owned ranges, rebuilding the reservation in
// place (reservation.Reset) if the existing allocation falls short --
// spec.md §4.F's "rebuild required" path, driven automatically here so
// callers only ever see SwitchTo, never the reservation underneath it.
func (c *Container) ensureReservationCovers(p *part.Partitioning) error {
	if c.cur == nil {
		if err := c.res.Add(p); err != nil {
			return err
		}
		return c.res.Alloc()
	}
	if err := c.res.Use(p); err == nil {
		return nil
	}
	c.res.Reset()
	if c.cur != nil {
		if err := c.res.Add(c.cur); err != nil {
			return err
		}
	}
	if err := c.res.Add(p); err != nil {
		return err
	}
	return c.res.Alloc()
}

// Migrate reinterprets the container's current partitioning (if any)
// onto g, for use after an instance-level AllowWorldResize changes
// world membership (spec.md §4.J supplemented). A container that
// hasn't switched to any partitioning yet just adopts g for its next
// SwitchTo. The cached action sequences are dropped: every one of them
// was built against the pre-resize group's process ids, which Migrate
// just remapped.
func (c *Container) Migrate(g *group.Group) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.g = g
	c.seqCache = make(map[string]*action.Sequence)
	if c.cur == nil {
		return nil
	}

	migrated, err := c.cur.Migrate(g)
	if err != nil {
		return err
	}
	if err := c.res.Use(migrated); err != nil {
		c.res.Reset()
		if err := c.res.Add(migrated); err != nil {
			return err
		}
		if err := c.res.Alloc(); err != nil {
			return err
		}
	}
	c.cur = migrated
	c.gen.Inc()
	return nil
}

// GetMap returns the Mapping backing mapNo in the container's current
// reservation (get_map). Every partitioner in this core assigns mapNo 0
// to every task-slice, so in practice there is exactly one live mapping
// per container.
func (c *Container) GetMap(mapNo int) (*mapping.Mapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res.MappingFor(mapNo)
}

// SetExternalMemory rebinds mapNo's mapping onto caller-owned memory
// instead of the reservation's own allocation (spec.md §4.E: a
// container may be told to use externally-managed storage).
func (c *Container) SetExternalMemory(mapNo int, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.res.MappingFor(mapNo)
	if err != nil {
		return err
	}
	return m.SetExternal(buf)
}

// Free releases the container's reservation, readying it for reuse as
// an empty container (spec.md §4.E: containers may be freed and
// reinitialized without tearing down the owning instance).
func (c *Container) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Reset()
	c.cur = nil
}
