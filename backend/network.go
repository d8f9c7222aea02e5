package backend

import (
	"sync"

	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/transition"
)

// network is the shared in-memory transport every SimNet rank talks
// through: point-to-point mailboxes plus lock-step collective
// rendezvous points for Reduce/GroupReduce/Sync. Grounded on
// golang.org/x/sync/errgroup's fan-out-then-await shape the teacher
// uses for its DataMover (xact/xs/tcb.go's Run/Quiesce pair) -- here the
// "quiesce" point is the condition-variable wait every collective call
// blocks on until its peers have all arrived.
type network struct {
	size int

	mailMu sync.Mutex
	mail   map[[2]int]*msgQueue

	reduceMu sync.Mutex
	reduces  map[int]*reduceState

	syncMu sync.Mutex
	syncs  map[int]*syncState
}

func newNetwork(size int) *network {
	return &network{
		size:    size,
		mail:    make(map[[2]int]*msgQueue),
		reduces: make(map[int]*reduceState),
		syncs:   make(map[int]*syncState),
	}
}

// msgQueue is an unbounded FIFO guarded by a condition variable --
// point-to-point actions only ever need per-peer FIFO ordering
// (spec.md §5), never a synchronous rendezvous.
type msgQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
	q    [][]byte
}

func newMsgQueue() *msgQueue {
	m := &msgQueue{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *msgQueue) push(b []byte) {
	m.mu.Lock()
	m.q = append(m.q, b)
	m.cond.Signal()
	m.mu.Unlock()
}

func (m *msgQueue) pop() []byte {
	m.mu.Lock()
	for len(m.q) == 0 {
		m.cond.Wait()
	}
	b := m.q[0]
	m.q = m.q[1:]
	m.mu.Unlock()
	return b
}

func (n *network) pipe(from, to int) *msgQueue {
	key := [2]int{from, to}
	n.mailMu.Lock()
	defer n.mailMu.Unlock()
	q, ok := n.mail[key]
	if !ok {
		q = newMsgQueue()
		n.mail[key] = q
	}
	return q
}

func (n *network) send(from, to int, data []byte) error {
	n.pipe(from, to).push(data)
	return nil
}

func (n *network) recv(from, to int) ([]byte, error) {
	return n.pipe(from, to).pop(), nil
}

// reduceState is one collective reduce rendezvous, keyed by the
// per-rank call ordinal (every rank's action.Sequence carries the same
// Reduce actions in the same order, so ranks agree on the key without
// any central coordination; see the backend entry in DESIGN.md).
type reduceState struct {
	mu            sync.Mutex
	cond          *sync.Cond
	contributions map[int][]float64
	expected      []int
	outGroup      []int
	op            transition.ReductionOp
	result        map[int][]float64
	ready         bool
}

func (n *network) reduceStateFor(callIdx int, inGroup, outGroup []int, op transition.ReductionOp) *reduceState {
	n.reduceMu.Lock()
	defer n.reduceMu.Unlock()
	st, ok := n.reduces[callIdx]
	if !ok {
		st = &reduceState{
			contributions: make(map[int][]float64),
			expected:      inGroup,
			outGroup:      outGroup,
			op:            op,
			result:        make(map[int][]float64),
		}
		st.cond = sync.NewCond(&st.mu)
		n.reduces[callIdx] = st
	}
	return st
}

// reduce performs one rank's contribution to the collective keyed by
// callIdx and blocks until every inGroup member has arrived, then
// returns this rank's share of the result (nil if rank is not in
// outGroup).
func (n *network) reduce(callIdx, rank int, data []float64, inGroup, outGroup []int, op transition.ReductionOp) ([]float64, error) {
	st := n.reduceStateFor(callIdx, inGroup, outGroup, op)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.contributions[rank] = data
	if len(st.contributions) == len(st.expected) {
		combined, err := combine(op, st.contributions, st.expected)
		if err != nil {
			return nil, err
		}
		for _, r := range st.outGroup {
			st.result[r] = combined
		}
		st.ready = true
		st.cond.Broadcast()
	} else {
		for !st.ready {
			st.cond.Wait()
		}
	}
	return st.result[rank], nil
}

// syncState is one collective KV-sync rendezvous: every one of size
// ranks contributes its local journal; each then receives every other
// rank's journal to merge.
type syncState struct {
	mu       sync.Mutex
	cond     *sync.Cond
	journals map[int]map[string][]byte
	ready    bool
}

func (n *network) syncStateFor(callIdx int) *syncState {
	n.syncMu.Lock()
	defer n.syncMu.Unlock()
	st, ok := n.syncs[callIdx]
	if !ok {
		st = &syncState{journals: make(map[int]map[string][]byte)}
		st.cond = sync.NewCond(&st.mu)
		n.syncs[callIdx] = st
	}
	return st
}

func (n *network) sync(callIdx, rank int, local map[string][]byte) ([]map[string][]byte, error) {
	st := n.syncStateFor(callIdx)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.journals[rank] = local
	if len(st.journals) == n.size {
		st.ready = true
		st.cond.Broadcast()
	} else {
		for !st.ready {
			st.cond.Wait()
		}
	}
	var peers []map[string][]byte
	for r, j := range st.journals {
		if r != rank {
			peers = append(peers, j)
		}
	}
	return peers, nil
}

// combine folds every expected contributor's vector together under op,
// element-wise; every contributor's vector must have the same length.
func combine(op transition.ReductionOp, contributions map[int][]float64, expected []int) ([]float64, error) {
	first := contributions[expected[0]]
	n := len(first)
	out := make([]float64, n)
	copy(out, first)
	for _, r := range expected[1:] {
		v := contributions[r]
		if len(v) != n {
			return nil, errs.NewInvalidFlow("backend: reduce contributors have mismatched lengths")
		}
		for i := range out {
			out[i] = applyOp(op, out[i], v[i])
		}
	}
	return out, nil
}

func applyOp(op transition.ReductionOp, a, b float64) float64 {
	switch op {
	case transition.OpSum:
		return a + b
	case transition.OpMin:
		if b < a {
			return b
		}
		return a
	case transition.OpMax:
		if b > a {
			return b
		}
		return a
	case transition.OpProd:
		return a * b
	case transition.OpAnd:
		if a != 0 && b != 0 {
			return 1
		}
		return 0
	case transition.OpOr:
		if a != 0 || b != 0 {
			return 1
		}
		return 0
	default:
		return b
	}
}
