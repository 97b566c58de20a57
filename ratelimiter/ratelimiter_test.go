package ratelimiter

import (
	"errors"
	"testing"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
)

// TestBorrowMaxUnderLimiter checks that a limiter with W=20, M=1e9 allows
// exactly 1e9 on the first call within the window and rejects any more.
func TestBorrowMaxUnderLimiter(t *testing.T) {
	l := Limiter{Window: 20, Cap: decimal.FromU64(1_000_000_000)}
	st := NewState()

	next, err := l.Update(st, 0, decimal.FromU64(1_000_000_000))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	usage, err := l.Usage(next, 0)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.Cmp(decimal.FromU64(1_000_000_000)) != 0 {
		t.Fatalf("usage = %s, want 1e9", usage)
	}

	if _, err := l.Update(next, 0, decimal.FromU64(1)); !errors.Is(err, errs.ErrOutflowRateLimitExceeded) {
		t.Fatalf("expected exhausted limiter to reject further outflow, got %v", err)
	}
}

// TestRateLimiterDecay checks that once a window shifts, the outflow of the
// prior window decays linearly as the new window progresses, while outflow
// already recorded in the new window is never discounted.
func TestRateLimiterDecay(t *testing.T) {
	l := Limiter{Window: 20, Cap: decimal.FromU64(1_000_000_000)}
	st := NewState()
	st, err := l.Update(st, 0, decimal.FromU64(600_000_000))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Slot 25 is 5 slots into the next window; this shifts cur_qty into
	// prev_qty and opens a fresh cur_qty at cur_slot=20.
	shifted, err := l.Update(st, 25, decimal.ZeroD())
	if err != nil {
		t.Fatalf("Update (shift): %v", err)
	}
	if shifted.CurSlot != 20 {
		t.Fatalf("CurSlot = %d, want 20", shifted.CurSlot)
	}

	usage, err := l.Usage(shifted, 25)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	// prev_share = 600_000_000 * (20-5)/20 = 450_000_000
	want := decimal.FromU64(450_000_000)
	if usage.Cmp(want) != 0 {
		t.Fatalf("usage = %s, want %s", usage, want)
	}

	remaining, err := l.Remaining(shifted, 25)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	wantRemaining := decimal.FromU64(550_000_000)
	if remaining.Cmp(wantRemaining) != 0 {
		t.Fatalf("remaining = %s, want %s", remaining, wantRemaining)
	}

	if _, err := l.Update(shifted, 25, wantRemaining); err != nil {
		t.Fatalf("expected exact remaining allowance to succeed, got %v", err)
	}
	overBy1, err := wantRemaining.TryAdd(decimal.FromRawU64(1))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := l.Update(shifted, 25, overBy1); !errors.Is(err, errs.ErrOutflowRateLimitExceeded) {
		t.Fatalf("expected rejection just above the decayed allowance, got %v", err)
	}
}

func TestDisabledLimiterNeverRejects(t *testing.T) {
	l := Limiter{Window: 0, Cap: decimal.ZeroD()}
	st := NewState()
	next, err := l.Update(st, 100, decimal.FromU64(1_000_000_000_000))
	if err != nil {
		t.Fatalf("Update with W=0 should never reject: %v", err)
	}
	if next.CurQty.Cmp(decimal.FromU64(1_000_000_000_000)) != 0 {
		t.Fatalf("expected cumulative accounting even when disabled")
	}
}

func TestFarFutureSlotResets(t *testing.T) {
	l := Limiter{Window: 20, Cap: decimal.FromU64(1_000_000_000)}
	st := NewState()
	st, err := l.Update(st, 0, decimal.FromU64(1_000_000_000))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	// 2W in the future resets both cur and prev.
	reset, err := l.Update(st, 50, decimal.FromU64(1_000_000_000))
	if err != nil {
		t.Fatalf("Update after full reset: %v", err)
	}
	if reset.CurSlot != 50 {
		t.Fatalf("CurSlot = %d, want 50", reset.CurSlot)
	}
}
