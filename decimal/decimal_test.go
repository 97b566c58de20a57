package decimal

import (
	"errors"
	"testing"

	"github.com/solendgo/lending-engine/errs"
)

func TestFromU64RoundTrip(t *testing.T) {
	d := FromU64(42)
	got, err := d.FloorU64()
	if err != nil {
		t.Fatalf("FloorU64: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestTrySubNegativeFails(t *testing.T) {
	a := FromU64(1)
	b := FromU64(2)
	if _, err := a.TrySub(b); !errors.Is(err, errs.ErrMathOverflow) {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
}

func TestTryDivByZeroFails(t *testing.T) {
	a := FromU64(1)
	if _, err := a.TryDiv(ZeroD()); !errors.Is(err, errs.ErrMathOverflow) {
		t.Fatalf("expected ErrMathOverflow, got %v", err)
	}
}

func TestTryMulScale(t *testing.T) {
	half := FromPercent(50)
	ten := FromU64(10)
	got, err := ten.TryMul(half)
	if err != nil {
		t.Fatalf("TryMul: %v", err)
	}
	want := FromU64(5)
	if got.Cmp(want) != 0 {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestCeilAndRound(t *testing.T) {
	// 2.5 wad units
	half := FromPercent(50)
	two := FromU64(2)
	v, err := two.TryAdd(half)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ceil, err := v.CeilU64()
	if err != nil {
		t.Fatalf("CeilU64: %v", err)
	}
	if ceil != 3 {
		t.Fatalf("CeilU64 got %d, want 3", ceil)
	}
	round, err := v.RoundU64()
	if err != nil {
		t.Fatalf("RoundU64: %v", err)
	}
	if round != 3 {
		t.Fatalf("RoundU64 got %d, want 3 (half-up)", round)
	}
	floor, err := v.FloorU64()
	if err != nil {
		t.Fatalf("FloorU64: %v", err)
	}
	if floor != 2 {
		t.Fatalf("FloorU64 got %d, want 2", floor)
	}
}

func TestRTryPow(t *testing.T) {
	base, err := FromPercent(100).TryAdd(FromPercent(10))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	r, err := base.ToRate()
	if err != nil {
		t.Fatalf("ToRate: %v", err)
	}
	got, err := r.TryPow(2)
	if err != nil {
		t.Fatalf("TryPow: %v", err)
	}
	// 1.1^2 = 1.21
	want, err := FromPercent(121).ToRate()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("got %s, want %s", got, want)
	}
}
