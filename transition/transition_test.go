package transition

import (
	"testing"

	"github.com/envelope-project/laik-go/group"
	"github.com/envelope-project/laik-go/part"
	"github.com/envelope-project/laik-go/space"
)

func mustSpace(t *testing.T, extents ...int64) *space.Space {
	t.Helper()
	sp, err := space.New("t", extents...)
	if err != nil {
		t.Fatal(err)
	}
	return sp
}

func mustGroup(t *testing.T, n, me int) *group.Group {
	t.Helper()
	g, err := group.World(n, me)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestCalcBlockToBlockIsSendRecv(t *testing.T) {
	sp := mustSpace(t, 100)
	g := mustGroup(t, 2, 0)
	from, err := part.Build(part.Block(0, 1), &part.Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	// swap halves: process 0 gets the upper half, process 1 the lower.
	to, err := part.Build(swapHalves{}, &part.Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := Calc(sp, from, to, FlowPreserve, OpNone)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Send) == 0 && len(plan.Recv) == 0 {
		t.Fatal("swapping halves must require send/recv for process 0")
	}
	if len(plan.Reduce) != 0 {
		t.Fatal("OpNone transition must never emit a reduce action")
	}
}

func TestCalcAllToAllSum(t *testing.T) {
	sp := mustSpace(t, 10)
	g := mustGroup(t, 3, 0)
	from, err := part.Build(part.All(), &part.Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	to, err := part.Build(part.All(), &part.Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := Calc(sp, from, to, FlowPreserve, OpSum)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Reduce) != 1 || plan.Reduce[0].Kind != ReduceAll {
		t.Fatalf("All->All Sum must collapse to a single ReduceAll action, got %+v", plan.Reduce)
	}
}

func TestCalcAllToSingleIsReduceRoot(t *testing.T) {
	sp := mustSpace(t, 10)
	g := mustGroup(t, 3, 0)
	from, err := part.Build(part.All(), &part.Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	to, err := part.Build(part.Single(0), &part.Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := Calc(sp, from, to, FlowPreserve, OpSum)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Reduce) != 1 || plan.Reduce[0].Kind != ReduceRoot || plan.Reduce[0].Root != 0 {
		t.Fatalf("All->Single(0) Sum must be a single ReduceRoot(0), got %+v", plan.Reduce)
	}
}

func TestCalcInitWithoutOpFails(t *testing.T) {
	sp := mustSpace(t, 10)
	g := mustGroup(t, 1, 0)
	p, err := part.Build(part.All(), &part.Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Calc(sp, p, p, FlowInit, OpNone); err == nil {
		t.Fatal("Init flow without a reduction op must be rejected")
	}
}

func TestCalcIdenticalPartitioningIsEmpty(t *testing.T) {
	sp := mustSpace(t, 10)
	g := mustGroup(t, 2, 0)
	p, err := part.Build(part.Block(0, 1), &part.Params{Space: sp, Group: g})
	if err != nil {
		t.Fatal(err)
	}
	plan, err := Calc(sp, p, p, FlowNone, OpNone)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.IsEmpty() {
		t.Fatalf("from==to with OpNone must produce the empty plan, got %+v", plan)
	}
}

// swapHalves assigns the space's lower half to process 1 and the upper
// half to process 0 (the inverse of Block's natural assignment), forcing
// a transition plan with no local-copy overlap.
type swapHalves struct{}

func (swapHalves) Name() string { return "swapHalves" }

func (swapHalves) Run(p *part.Params, recv part.Receiver) error {
	extent := p.Space.Extent(0)
	mid := extent / 2
	lo, _ := space.NewRange([]int64{0}, []int64{mid})
	hi, _ := space.NewRange([]int64{mid}, []int64{extent})
	recv.Add(1, lo, 0, 0)
	recv.Add(0, hi, 0, 0)
	return nil
}
