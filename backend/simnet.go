package backend

import (
	"golang.org/x/sync/errgroup"

	"github.com/envelope-project/laik-go/action"
	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/cmn/nlog"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/kvs"
	"github.com/envelope-project/laik-go/transition"
)

// SimNet is the in-memory multi-process simulator spec.md §4.I
// [ADDED] describes: one SimNet value per simulated rank, sharing an
// underlying network so point-to-point sends/recvs and collective
// reduces/syncs actually rendezvous with their peers. Not the "actual
// network transport" the Non-goals exclude -- a test harness standing
// in for one, exactly as the teacher's own suites run DataMover against
// local/in-memory transports.
type SimNet struct {
	net  *network
	rank int
	size int
	log  *nlog.Logger

	noDirectReduce bool
	reduceSeq      int // persists across Exec calls: a container issues one Exec per SwitchTo, and network.reduces is keyed for the backend's whole lifetime, not just one Exec
	syncSeq        int
}

// NewSimNet builds size SimNet backends sharing one network, one per
// simulated rank. noDirectReduce mirrors a backend that lacks a native
// reduce-to-root primitive, exercising action.Sequence's Prepare-time
// GroupReduce rewrite.
func NewSimNet(size int, noDirectReduce bool, log *nlog.Logger) []*SimNet {
	net := newNetwork(size)
	out := make([]*SimNet, size)
	for r := 0; r < size; r++ {
		out[r] = &SimNet{net: net, rank: r, size: size, log: log, noDirectReduce: noDirectReduce}
	}
	return out
}

func (b *SimNet) Prepare(seq *action.Sequence) error {
	if b.noDirectReduce {
		seq.ConvertRootReduceToGroupReduce(b.rank)
	}
	return nil
}

func (b *SimNet) Exec(seq *action.Sequence) error {
	if b.log != nil {
		b.log.Infof("backend.SimNet: rank %d exec %d actions", b.rank, len(seq.Actions))
	}
	return seq.Exec(&simTransport{b: b})
}

func (b *SimNet) Cleanup(seq *action.Sequence) error { return nil }

func (b *SimNet) Finalize() error { return nil }

func (b *SimNet) UpdateGroup(g *group.Group) error {
	b.size = g.Size()
	return nil
}

func (b *SimNet) Sync(store *kvs.Store) error {
	idx := b.syncSeq
	b.syncSeq++
	return store.Exchange(func(local map[string][]byte) ([]map[string][]byte, error) {
		return b.net.sync(idx, b.rank, local)
	})
}

func (b *SimNet) StatusCheck(g *group.Group) ([]Status, int, error) {
	out := make([]Status, g.Size())
	return out, 0, nil
}

func (b *SimNet) EliminateNodes(oldGroup, newGroup *group.Group, status []Status) (*group.Group, error) {
	return newGroup, nil
}

func (b *SimNet) NoDirectReduce() bool { return b.noDirectReduce }

// RunAll fans every rank's prepared sequence out onto its own
// goroutine and waits for all to finish, using errgroup to collect the
// first error -- spec.md §5 [ADDED]: each simulated rank's core state
// is only ever touched from its own goroutine, so this does not
// violate "single-threaded per process."
func RunAll(backends []*SimNet, seqs []*action.Sequence) error {
	if len(backends) != len(seqs) {
		return errs.NewInvalidFlow("backend.SimNet: rank/sequence count mismatch")
	}
	var g errgroup.Group
	for i := range backends {
		i := i
		g.Go(func() error { return backends[i].Exec(seqs[i]) })
	}
	return g.Wait()
}

// simTransport implements action.Transport for one SimNet rank. Reduce
// calls are counted through b.reduceSeq, not a counter local to this
// transport, since that counter is this rank's position in the
// collective call order across the backend's whole lifetime (every
// rank agrees on it implicitly because every rank's action.Sequence
// carries the identical Reduce action list for a given Exec, and
// network.reduces is keyed by this same ordinal across every Exec the
// backend ever runs).
type simTransport struct {
	b *SimNet
}

func (t *simTransport) Send(peer int, data []byte) error {
	return t.b.net.send(t.b.rank, peer, data)
}

func (t *simTransport) Recv(peer int) ([]byte, error) {
	return t.b.net.recv(peer, t.b.rank)
}

func (t *simTransport) ReduceAll(data []float64, op transition.ReductionOp) ([]float64, error) {
	idx := t.b.reduceSeq
	t.b.reduceSeq++
	all := allRanks(t.b.size)
	return t.b.net.reduce(idx, t.b.rank, data, all, all, op)
}

func (t *simTransport) ReduceRoot(data []float64, inGroup []int, root int, op transition.ReductionOp) ([]float64, error) {
	idx := t.b.reduceSeq
	t.b.reduceSeq++
	return t.b.net.reduce(idx, t.b.rank, data, inGroup, []int{root}, op)
}

func (t *simTransport) GroupReduce(data []float64, inGroup, outGroup []int, op transition.ReductionOp) ([]float64, error) {
	idx := t.b.reduceSeq
	t.b.reduceSeq++
	return t.b.net.reduce(idx, t.b.rank, data, inGroup, outGroup, op)
}

func allRanks(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
