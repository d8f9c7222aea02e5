// Package group implements the process group (component B): an
// immutable ordered set of process identities with parent/child lineage
// for shrink/grow, grounded on spec.md §3/§4.B and the repartitioning
// flow in original_source/tests/fault-tolerance/lulesh/laik-lulesh-repartition.cc.
package group

import (
	"fmt"
	"sort"

	"github.com/teris-io/shortid"
)

// Group is a reference-counted-by-the-GC, immutable ordered set of
// process identities. A Group never mutates after construction; Shrink
// produces a new child Group instead.
type Group struct {
	// ID correlates log lines across processes for this group,
	// mirroring the teacher's xreg.RenewBase.UUID() tagging of every
	// xaction instance.
	ID string

	n     int
	myID  int // -1 if not a member
	gen   int // generation counter: World()=0, bumped by each Shrink
	parent *Group

	// fromParent[i] = new id of old process i, or -1 if removed.
	// Only set on a group produced by Shrink.
	fromParent []int
	// toParent[j] = old id of new process j.
	toParent []int
}

func newID() string {
	id, err := shortid.Generate()
	if err != nil {
		return fmt.Sprintf("g%d", mono())
	}
	return id
}

var monoCtr int

func mono() int { monoCtr++; return monoCtr }

// World builds the root group handed out by a backend at startup: n
// processes, with the caller's own id myID (spec.md §4.B world()).
func World(n, myID int) (*Group, error) {
	if n <= 0 {
		return nil, fmt.Errorf("group: world size must be positive, got %d", n)
	}
	if myID < -1 || myID >= n {
		return nil, fmt.Errorf("group: myID %d out of range [-1,%d)", myID, n)
	}
	return &Group{ID: newID(), n: n, myID: myID}, nil
}

// Size returns the number of processes in the group.
func (g *Group) Size() int { return g.n }

// MyID returns the caller's local id in [0,n), or -1 if not a member.
func (g *Group) MyID() int { return g.myID }

// IsMember reports whether the caller is a member of this group.
func (g *Group) IsMember() bool { return g.myID >= 0 }

// Generation returns a counter bumped by every Shrink along this
// group's lineage, starting at 0 for World(); used by reservation and
// action-sequence caches to detect group identity changes cheaply.
func (g *Group) Generation() int { return g.gen }

// Parent returns the group this one was shrunk from, or nil for a world
// group. The parent is kept alive (never deallocated) because existing
// partitionings may still reference it, per spec.md §4.B.
func (g *Group) Parent() *Group { return g.parent }

// FromParent maps an old (parent) process id to its id in this child
// group, or -1 if that process was removed. Valid only on a group
// produced by Shrink.
func (g *Group) FromParent(oldID int) int {
	if g.fromParent == nil || oldID < 0 || oldID >= len(g.fromParent) {
		return -1
	}
	return g.fromParent[oldID]
}

// ToParent maps a new (child) process id back to its id in the parent
// group. Valid only on a group produced by Shrink.
func (g *Group) ToParent(newID int) int {
	if g.toParent == nil || newID < 0 || newID >= len(g.toParent) {
		return -1
	}
	return g.toParent[newID]
}

// Shrink produces a child Group with the processes in toRemove (sorted
// or not -- Shrink sorts its own copy) excluded, per spec.md §4.B. The
// parent group is retained via Parent(); Shrink itself never mutates g.
func (g *Group) Shrink(toRemove []int) (*Group, error) {
	removed := make(map[int]bool, len(toRemove))
	sorted := append([]int(nil), toRemove...)
	sort.Ints(sorted)
	for i, r := range sorted {
		if r < 0 || r >= g.n {
			return nil, fmt.Errorf("group: shrink: process id %d out of range", r)
		}
		if i > 0 && sorted[i-1] == r {
			return nil, fmt.Errorf("group: shrink: duplicate process id %d", r)
		}
		removed[r] = true
	}

	child := &Group{
		ID:         newID(),
		parent:     g,
		gen:        g.gen + 1,
		fromParent: make([]int, g.n),
	}

	nextID := 0
	for old := 0; old < g.n; old++ {
		if removed[old] {
			child.fromParent[old] = -1
			continue
		}
		child.fromParent[old] = nextID
		child.toParent = append(child.toParent, old)
		nextID++
	}
	child.n = nextID

	if g.myID < 0 {
		child.myID = -1
	} else {
		child.myID = child.fromParent[g.myID]
	}
	return child, nil
}

func (g *Group) String() string {
	return fmt.Sprintf("group(%s,n=%d,my=%d,gen=%d)", g.ID, g.n, g.myID, g.gen)
}
