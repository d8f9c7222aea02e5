package mapping

import (
	"testing"

	"github.com/envelope-project/laik-go/space"
)

func TestNewAllocatesEnoughBytes(t *testing.T) {
	r, err := space.NewRange([]int64{0, 0}, []int64{4, 5})
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(1, r, 8)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(m.Bytes())) != 4*5*8 {
		t.Fatalf("len(Bytes()) = %d, want %d", len(m.Bytes()), 4*5*8)
	}
	if m.ElemCount() != 20 {
		t.Fatalf("ElemCount() = %d, want 20", m.ElemCount())
	}
}

func TestStridesRowMajor(t *testing.T) {
	r, err := space.NewRange([]int64{0, 0, 0}, []int64{2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	m, err := New(1, r, 4)
	if err != nil {
		t.Fatal(err)
	}
	if m.Strides[2] != 1 || m.Strides[1] != 4 || m.Strides[0] != 12 {
		t.Fatalf("strides = %v, want [12 4 1 ...]", m.Strides)
	}
}

func TestFromBufferTooSmall(t *testing.T) {
	r, _ := space.NewRange([]int64{0}, []int64{10})
	_, err := FromBuffer(1, r, 8, make([]byte, 4), OwnerReservation)
	if err == nil {
		t.Fatal("FromBuffer with an undersized buffer must fail")
	}
}

func TestSetExternalRejectsUndersized(t *testing.T) {
	r, _ := space.NewRange([]int64{0}, []int64{10})
	m, err := New(1, r, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetExternal(make([]byte, 4)); err == nil {
		t.Fatal("SetExternal with an undersized buffer must fail")
	}
	if err := m.SetExternal(make([]byte, 80)); err != nil {
		t.Fatalf("SetExternal with a correctly sized buffer must succeed: %v", err)
	}
	if m.Owner != OwnerExternal {
		t.Fatal("SetExternal must mark the mapping OwnerExternal")
	}
}

func TestEmptyRangeZeroBytes(t *testing.T) {
	r, _ := space.NewRange([]int64{5}, []int64{5})
	m, err := New(1, r, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Bytes()) != 0 {
		t.Fatalf("empty range should allocate 0 bytes, got %d", len(m.Bytes()))
	}
}
