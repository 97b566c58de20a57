package obligation

import (
	"errors"
	"testing"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
	"github.com/solendgo/lending-engine/reserve"
)

// TestIsolatedTierInvariant mirrors the isolated-asset scenario: an
// obligation already borrowing a Regular reserve cannot also borrow an
// Isolated reserve, and vice versa.
func TestIsolatedTierInvariant(t *testing.T) {
	o := New("market-1", "owner-1")
	one := decimal.FromU64(1)

	if err := o.AddBorrow("wsol", "wsol-mint", reserve.Regular, 0, one, one); err != nil {
		t.Fatalf("AddBorrow regular: %v", err)
	}
	err := o.AddBorrow("bonk", "bonk-mint", reserve.Isolated, 0, one, one)
	if !errors.Is(err, errs.ErrIsolatedTierAssetViolation) {
		t.Fatalf("expected IsolatedTierAssetViolation, got %v", err)
	}

	o2 := New("market-1", "owner-2")
	if err := o2.AddBorrow("bonk", "bonk-mint", reserve.Isolated, 0, one, one); err != nil {
		t.Fatalf("AddBorrow isolated: %v", err)
	}
	err = o2.AddBorrow("wsol", "wsol-mint", reserve.Regular, 0, one, one)
	if !errors.Is(err, errs.ErrIsolatedTierAssetViolation) {
		t.Fatalf("expected IsolatedTierAssetViolation, got %v", err)
	}
}

func TestNormalizeOrdersByWeightThenMint(t *testing.T) {
	o := New("market-1", "owner-1")
	o.Borrows = []Liquidity{
		{BorrowReserveID: "a", MintID: "bbb", AddedBorrowWeightBps: 100, BorrowedAmountWads: decimal.FromU64(1)},
		{BorrowReserveID: "b", MintID: "aaa", AddedBorrowWeightBps: 100, BorrowedAmountWads: decimal.FromU64(1)},
		{BorrowReserveID: "c", MintID: "zzz", AddedBorrowWeightBps: 500, BorrowedAmountWads: decimal.FromU64(1)},
		{BorrowReserveID: "d", MintID: "yyy", AddedBorrowWeightBps: 0, BorrowedAmountWads: decimal.ZeroD()},
	}
	o.Normalize()

	if len(o.Borrows) != 3 {
		t.Fatalf("expected zero-quantity borrow pruned, got %d entries", len(o.Borrows))
	}
	if o.Borrows[0].BorrowReserveID != "c" {
		t.Fatalf("expected highest weight first, got %s", o.Borrows[0].BorrowReserveID)
	}
	if o.Borrows[1].BorrowReserveID != "a" {
		t.Fatalf("expected tie broken by greatest mint id, got %s", o.Borrows[1].BorrowReserveID)
	}
}

func TestMaxLiquidationAmountBoundedByCloseFactor(t *testing.T) {
	o := New("market-1", "owner-1")
	o.BorrowedValue = decimal.FromU64(1_000)

	liq := &Liquidity{
		BorrowedAmountWads: decimal.FromU64(100),
		MarketValue:        decimal.FromU64(500),
	}
	got, err := o.MaxLiquidationAmount(liq)
	if err != nil {
		t.Fatalf("MaxLiquidationAmount: %v", err)
	}
	// close_factor_share = (1000*0.2/500) * 100 = 0.4 * 100 = 40
	// max_value_share = (500000/500) * 100 = 100000
	// min(borrowed=100, 40, 100000) = 40
	want := decimal.FromU64(40)
	if got.Cmp(want) != 0 {
		t.Fatalf("MaxLiquidationAmount = %s, want %s", got, want)
	}
}
