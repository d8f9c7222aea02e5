package instance

import (
	"testing"

	"github.com/envelope-project/laik-go/part"
	"github.com/envelope-project/laik-go/space"
	"github.com/envelope-project/laik-go/transition"
)

func TestInitWorldFinalizeRoundTrip(t *testing.T) {
	ins, err := Init("test")
	if err != nil {
		t.Fatal(err)
	}
	if got := ins.World().Size(); got != 1 {
		t.Fatalf("world size = %d, want 1", got)
	}
	if got := ins.World().MyID(); got != 0 {
		t.Fatalf("my id = %d, want 0", got)
	}
	if err := ins.Finalize(); err != nil {
		t.Fatal(err)
	}

	// Finalize must release the re-init guard so a fresh process (or,
	// here, a fresh test) can Init again.
	ins2, err := Init("test-again")
	if err != nil {
		t.Fatal(err)
	}
	if err := ins2.Finalize(); err != nil {
		t.Fatal(err)
	}
}

func TestInitRejectsConcurrentReinit(t *testing.T) {
	ins, err := Init()
	if err != nil {
		t.Fatal(err)
	}
	defer ins.Finalize()

	if _, err := Init(); err == nil {
		t.Fatal("second Init before Finalize: want error, got nil")
	}
}

func TestInitRejectsLAIKSizeOverOne(t *testing.T) {
	t.Setenv("LAIK_SIZE", "4")
	if _, err := Init(); err == nil {
		t.Fatal("LAIK_SIZE=4 against backend.Local: want error, got nil")
	}
}

func TestNewContainerSwitchesThroughInstanceWiring(t *testing.T) {
	ins, err := Init()
	if err != nil {
		t.Fatal(err)
	}
	defer ins.Finalize()

	sp, err := space.New("t", 8)
	if err != nil {
		t.Fatal(err)
	}
	c, err := ins.NewContainer(sp, 8, nil)
	if err != nil {
		t.Fatal(err)
	}

	p, err := part.Build(part.All(), &part.Params{Space: sp, Group: ins.World()})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SwitchTo(p, transition.FlowInit, transition.OpSum); err != nil {
		t.Fatal(err)
	}
	if got := ins.Metrics().Switches; got == nil {
		t.Fatal("instance metrics not wired into container")
	}
}

func TestAllowWorldResizeNoFaultReturnsSameGroup(t *testing.T) {
	ins, err := Init()
	if err != nil {
		t.Fatal(err)
	}
	defer ins.Finalize()

	g, err := ins.AllowWorldResize(0)
	if err != nil {
		t.Fatal(err)
	}
	if g != ins.World() {
		t.Fatal("AllowWorldResize with zero faults must return the unchanged current group")
	}
}
