package reserve

import (
	"testing"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/ratelimiter"
)

func newTestReserve(t *testing.T) *Reserve {
	t.Helper()
	cfg := Config{
		OptimalUtilizationPct: 80,
		MaxUtilizationPct:     95,
		LoanToValuePct:        50,
		LiquidationBonusPct:    5,
		MaxLiquidationBonusPct: 10,
		LiquidationThresholdPct:    55,
		MaxLiquidationThresholdPct: 65,
		MinBorrowRatePct:     0,
		OptimalBorrowRatePct:  8,
		MaxBorrowRatePct:      50,
		SuperMaxBorrowRatePct: 200,
		BorrowFeeWad:          100_000_000_000, // 1e11 => 0.00001%
		HostFeePct:            20,
		FeeReceiverID:         "fee-receiver",
		ProtocolLiquidationFeeDecaBps: 10,
		ProtocolTakeRatePct:           10,
		ReserveType:                   Regular,
	}
	liq := Liquidity{
		MintID:                   "wsol",
		Decimals:                 9,
		AvailableAmount:          6_000_000_000,
		BorrowedAmountWads:       decimal.ZeroD(),
		CumulativeBorrowRateWads: decimal.OneD(),
		MarketPrice:              decimal.FromU64(10),
		SmoothedMarketPrice:      decimal.FromU64(10),
	}
	coll := Collateral{MintID: "wsol-c"}
	lim := ratelimiter.Limiter{Window: 0}
	r, err := New("market-1", liq, coll, cfg, lim)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

// TestCalculateBorrowFeeSplit reproduces the literal borrow/fee scenario:
// borrowing 4e9 wSOL native units out of a reserve with borrow_fee_wad=1e11
// and host_fee_pct=20 should yield a 400-unit total fee split 80/320
// between host and protocol.
func TestCalculateBorrowFeeSplit(t *testing.T) {
	r := newTestReserve(t)
	maxBorrowValue := decimal.FromU64(1_000_000_000_000)
	remainingCapacity := decimal.FromU64(1_000_000_000_000)

	result, err := r.CalculateBorrow(4_000_000_000, maxBorrowValue, remainingCapacity)
	if err != nil {
		t.Fatalf("CalculateBorrow: %v", err)
	}
	if result.ReceiveAmount != 4_000_000_000 {
		t.Fatalf("ReceiveAmount = %d, want 4e9", result.ReceiveAmount)
	}
	if result.BorrowFee != 400 {
		t.Fatalf("BorrowFee = %d, want 400", result.BorrowFee)
	}
	if result.HostFee != 80 {
		t.Fatalf("HostFee = %d, want 80", result.HostFee)
	}
	floor, err := result.BorrowAmount.FloorU64()
	if err != nil {
		t.Fatalf("FloorU64: %v", err)
	}
	if floor != 4_000_000_400 {
		t.Fatalf("BorrowAmount = %d, want 4000000400", floor)
	}
}

func TestCurrentBorrowRateAtKnees(t *testing.T) {
	r := newTestReserve(t)

	// Zero utilization: rate should equal min_borrow_rate.
	rate, err := r.CurrentBorrowRate()
	if err != nil {
		t.Fatalf("CurrentBorrowRate: %v", err)
	}
	want, err := decimal.FromPercent(r.Config.MinBorrowRatePct).ToRate()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if rate.Cmp(want) != 0 {
		t.Fatalf("rate at u=0 = %s, want %s", rate, want)
	}

	// At exactly optimal utilization, rate should equal optimal_borrow_rate.
	r.Liquidity.BorrowedAmountWads, err = decimal.FromU64(r.Liquidity.AvailableAmount).TryMulInt(4)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	// borrowed = 4x available means utilization = borrowed/(borrowed+available) = 4/5 = 80% = optimal.
	rate, err = r.CurrentBorrowRate()
	if err != nil {
		t.Fatalf("CurrentBorrowRate: %v", err)
	}
	wantOptimal, err := decimal.FromPercent(r.Config.OptimalBorrowRatePct).ToRate()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if rate.Cmp(wantOptimal) != 0 {
		t.Fatalf("rate at u=optimal = %s, want %s", rate, wantOptimal)
	}
}

func TestAccrueInterestIsMonotonic(t *testing.T) {
	r := newTestReserve(t)
	var err error
	r.Liquidity.BorrowedAmountWads, err = decimal.FromU64(1_000_000_000).TryAdd(decimal.ZeroD())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	before := r.Liquidity.CumulativeBorrowRateWads
	if err := r.AccrueInterest(1_000); err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	after := r.Liquidity.CumulativeBorrowRateWads
	if after.Cmp(before) < 0 {
		t.Fatalf("cumulative_borrow_rate_wads decreased: before=%s after=%s", before, after)
	}
	if r.LastUpdate.Slot != 1_000 {
		t.Fatalf("LastUpdate.Slot = %d, want 1000", r.LastUpdate.Slot)
	}
}

func TestCalculateBonusCappedAt25Percent(t *testing.T) {
	r := newTestReserve(t)
	r.Config.LiquidationBonusPct = 20
	r.Config.MaxLiquidationBonusPct = 24
	r.Config.ProtocolLiquidationFeeDecaBps = 50 // 5%

	bonus, err := r.CalculateBonus(BonusInputs{
		BorrowedValue:             decimal.FromU64(100),
		UnhealthyBorrowValue:      decimal.FromU64(100),
		SuperUnhealthyBorrowValue: decimal.FromU64(200),
	})
	if err != nil {
		t.Fatalf("CalculateBonus: %v", err)
	}
	cap := decimal.FromPercent(25)
	if bonus.Cmp(cap) != 0 {
		t.Fatalf("bonus = %s, want capped at 25%%", bonus)
	}
}

func TestCalculateBonusFailsWhenHealthy(t *testing.T) {
	r := newTestReserve(t)
	_, err := r.CalculateBonus(BonusInputs{
		BorrowedValue:             decimal.FromU64(50),
		UnhealthyBorrowValue:      decimal.FromU64(100),
		SuperUnhealthyBorrowValue: decimal.FromU64(200),
	})
	if err == nil {
		t.Fatal("expected ObligationHealthy error")
	}
}
