// Package backend implements the capability vtable (component I):
// everything the core delegates to an external transport/fault layer,
// plus two reference implementations used to exercise the planner and
// action sequence without a real network. Grounded on spec.md §4.I.
package backend

import (
	"github.com/envelope-project/laik-go/action"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/kvs"
)

// Status reports one process' health as seen by a fault probe.
type Status int

const (
	StatusOK Status = iota
	StatusFault
)

func (s Status) String() string {
	if s == StatusFault {
		return "fault"
	}
	return "ok"
}

// Backend is the capability set spec.md §4.I's table describes. All
// nine methods are present on every implementation; the four optional
// capabilities (UpdateGroup, Sync, StatusCheck, EliminateNodes) may be
// no-ops for a backend that doesn't support them -- the core's fallback is an element-wise
// collective probe, which callers are expected to implement themselves
// when a backend's StatusCheck declines to participate.
type Backend interface {
	// Prepare runs once per compiled action.Sequence; a backend may
	// reorder, fuse, or pre-post recvs, and rewrite Reduce-to-root
	// actions into GroupReduce if it lacks a native root reduce.
	Prepare(seq *action.Sequence) error
	// Exec runs seq synchronously, returning only once every
	// participating peer has completed its part.
	Exec(seq *action.Sequence) error
	// Cleanup releases backend-specific resources bound to seq.
	Cleanup(seq *action.Sequence) error
	// Finalize drains outstanding communication at shutdown.
	Finalize() error
	// UpdateGroup rebuilds the backend's sub-communicator after a
	// group shrink.
	UpdateGroup(g *group.Group) error
	// Sync runs one collective all-to-all merge of store's change
	// journal against every other process.
	Sync(store *kvs.Store) error
	// StatusCheck fills per-process health and returns the fault
	// count.
	StatusCheck(g *group.Group) ([]Status, int, error)
	// EliminateNodes produces the group that results from dropping
	// every faulted rank in status.
	EliminateNodes(oldGroup, newGroup *group.Group, status []Status) (*group.Group, error)
	// NoDirectReduce reports whether this backend lacks a native
	// reduce-to-a-single-root primitive, forcing Prepare to rewrite
	// Reduce into GroupReduce.
	NoDirectReduce() bool
}
