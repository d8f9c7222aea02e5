package backend

import (
	"github.com/envelope-project/laik-go/action"
	"github.com/envelope-project/laik-go/cmn/errs"
	"github.com/envelope-project/laik-go/cmn/nlog"
	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/kvs"
	"github.com/envelope-project/laik-go/transition"
)

// Local is the single-process loopback backend for n=1 groups: every
// action is local, so Send/Recv are never exercised and every reduce
// is a no-op fold over one contributor.
type Local struct {
	log *nlog.Logger
}

// NewLocal returns a Local backend; log may be nil.
func NewLocal(log *nlog.Logger) *Local { return &Local{log: log} }

func (b *Local) Prepare(seq *action.Sequence) error { return nil }

func (b *Local) Exec(seq *action.Sequence) error {
	if b.log != nil {
		b.log.Infof("backend.Local: exec %d actions", len(seq.Actions))
	}
	return seq.Exec(localTransport{})
}

func (b *Local) Cleanup(seq *action.Sequence) error { return nil }

func (b *Local) Finalize() error { return nil }

func (b *Local) UpdateGroup(g *group.Group) error {
	if g.Size() != 1 {
		return errs.NewInvalidFlow("backend.Local: group size %d, only n=1 is supported", g.Size())
	}
	return nil
}

// Sync has nothing to merge with since there are no peers; it still
// clears the local journal through the same Exchange path every
// backend uses, keeping kvs.Store's invariant (journal cleared after a
// sync round) true here too.
func (b *Local) Sync(store *kvs.Store) error {
	return store.Exchange(func(local map[string][]byte) ([]map[string][]byte, error) {
		return nil, nil
	})
}

func (b *Local) StatusCheck(g *group.Group) ([]Status, int, error) {
	return []Status{StatusOK}, 0, nil
}

func (b *Local) EliminateNodes(oldGroup, newGroup *group.Group, status []Status) (*group.Group, error) {
	return newGroup, nil
}

func (b *Local) NoDirectReduce() bool { return false }

// localTransport implements action.Transport for the single-process
// case: Send/Recv should never be called (there is no peer to address),
// and every reduce is the identity fold over its sole contributor.
type localTransport struct{}

func (localTransport) Send(peer int, data []byte) error {
	return errs.NewPeerGone(peer)
}

func (localTransport) Recv(peer int) ([]byte, error) {
	return nil, errs.NewPeerGone(peer)
}

func (localTransport) ReduceAll(data []float64, op transition.ReductionOp) ([]float64, error) {
	return data, nil
}

func (localTransport) ReduceRoot(data []float64, inGroup []int, root int, op transition.ReductionOp) ([]float64, error) {
	return data, nil
}

func (localTransport) GroupReduce(data []float64, inGroup, outGroup []int, op transition.ReductionOp) ([]float64, error) {
	return data, nil
}
