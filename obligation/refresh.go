package obligation

import (
	"fmt"
	"sort"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
	"github.com/solendgo/lending-engine/reserve"
)

// AddBorrow creates or increments the borrow line item for reserveID,
// enforcing the isolated-tier invariant before mutating state.
func (o *Obligation) AddBorrow(reserveID, mintID string, reserveType reserve.ReserveType, addedBorrowWeightBps uint64, cumulativeBorrowRateWads, amountWads decimal.D) error {
	if err := o.checkIsolatedTier(reserveID, reserveType); err != nil {
		return err
	}
	if b, ok := o.FindBorrow(reserveID); ok {
		newAmt, err := b.BorrowedAmountWads.TryAdd(amountWads)
		if err != nil {
			return err
		}
		b.BorrowedAmountWads = newAmt
		return nil
	}
	o.Borrows = append(o.Borrows, Liquidity{
		BorrowReserveID:          reserveID,
		MintID:                   mintID,
		ReserveType:              reserveType,
		AddedBorrowWeightBps:     addedBorrowWeightBps,
		CumulativeBorrowRateWads: cumulativeBorrowRateWads,
		BorrowedAmountWads:       amountWads,
		MarketValue:              decimal.ZeroD(),
		MarketValueUpperBound:    decimal.ZeroD(),
	})
	return nil
}

// RepayBorrow reduces the borrow line item for reserveID by
// min(settleAmountWads, its current balance).
func (o *Obligation) RepayBorrow(reserveID string, settleAmountWads decimal.D) error {
	b, ok := o.FindBorrow(reserveID)
	if !ok {
		return fmt.Errorf("%w: no borrow outstanding for reserve %s", errs.ErrInvalidAmount, reserveID)
	}
	reduce := settleAmountWads.Min(b.BorrowedAmountWads)
	newAmt, err := b.BorrowedAmountWads.TrySub(reduce)
	if err != nil {
		return err
	}
	b.BorrowedAmountWads = newAmt
	return nil
}

// checkIsolatedTier enforces invariant 6: an Isolated reserve may be
// borrowed only if it is the obligation's sole borrow, and a Regular
// reserve may be borrowed only while no Isolated borrow exists.
func (o *Obligation) checkIsolatedTier(reserveID string, reserveType reserve.ReserveType) error {
	if reserveType == reserve.Isolated {
		for _, b := range o.Borrows {
			if b.BorrowReserveID != reserveID {
				return fmt.Errorf("%w: isolated reserve must be the obligation's sole borrow", errs.ErrIsolatedTierAssetViolation)
			}
		}
		return nil
	}
	for _, b := range o.Borrows {
		if b.ReserveType == reserve.Isolated && b.BorrowReserveID != reserveID {
			return fmt.Errorf("%w: cannot open a regular borrow while an isolated borrow is outstanding", errs.ErrIsolatedTierAssetViolation)
		}
	}
	return nil
}

// Normalize removes zero-quantity deposit and borrow entries and reorders
// borrows so the first element carries the lexicographically greatest
// (added_borrow_weight_bps, mint_id) pair, matching invariants 4 and 5.
func (o *Obligation) Normalize() {
	deposits := make([]Collateral, 0, len(o.Deposits))
	for _, d := range o.Deposits {
		if d.DepositedAmount != 0 {
			deposits = append(deposits, d)
		}
	}
	o.Deposits = deposits

	borrows := make([]Liquidity, 0, len(o.Borrows))
	for _, b := range o.Borrows {
		if !b.BorrowedAmountWads.IsZero() {
			borrows = append(borrows, b)
		}
	}
	sort.SliceStable(borrows, func(i, j int) bool {
		if borrows[i].AddedBorrowWeightBps != borrows[j].AddedBorrowWeightBps {
			return borrows[i].AddedBorrowWeightBps > borrows[j].AddedBorrowWeightBps
		}
		return borrows[i].MintID > borrows[j].MintID
	})
	o.Borrows = borrows
}

// Refresh recomputes every aggregate from the given reserves (keyed by
// reserve id), advances each borrow's accrued interest against its
// reserve's current cumulative_borrow_rate_wads, normalizes, and clears
// staleness. Every referenced reserve is assumed already refreshed to
// nowSlot by the caller.
func (o *Obligation) Refresh(reserves map[string]*reserve.Reserve, nowSlot uint64) error {
	depositedValue := decimal.ZeroD()
	unhealthy := decimal.ZeroD()
	superUnhealthy := decimal.ZeroD()
	allowed := decimal.ZeroD()

	for i := range o.Deposits {
		dep := &o.Deposits[i]
		res, ok := reserves[dep.DepositReserveID]
		if !ok {
			return fmt.Errorf("%w: no reserve supplied for deposit %s", errs.ErrInvalidAccountInput, dep.DepositReserveID)
		}
		liquidityAmount, err := res.CollateralToLiquidity(dep.DepositedAmount)
		if err != nil {
			return err
		}
		marketValue, err := res.MarketValue(decimal.FromU64(liquidityAmount))
		if err != nil {
			return err
		}
		dep.MarketValue = marketValue

		depositedValue, err = depositedValue.TryAdd(marketValue)
		if err != nil {
			return err
		}

		liqThresholdWeighted, err := marketValue.TryMul(decimal.FromPercent(res.Config.LiquidationThresholdPct))
		if err != nil {
			return err
		}
		unhealthy, err = unhealthy.TryAdd(liqThresholdWeighted)
		if err != nil {
			return err
		}

		maxLiqThresholdWeighted, err := marketValue.TryMul(decimal.FromPercent(res.Config.MaxLiquidationThresholdPct))
		if err != nil {
			return err
		}
		superUnhealthy, err = superUnhealthy.TryAdd(maxLiqThresholdWeighted)
		if err != nil {
			return err
		}

		lowerBound, err := res.MarketValueLowerBound(decimal.FromU64(liquidityAmount))
		if err != nil {
			return err
		}
		ltvWeighted, err := lowerBound.TryMul(decimal.FromPercent(res.Config.LoanToValuePct))
		if err != nil {
			return err
		}
		allowed, err = allowed.TryAdd(ltvWeighted)
		if err != nil {
			return err
		}
	}

	borrowedValue := decimal.ZeroD()
	borrowedValueUpperBound := decimal.ZeroD()
	isolatedAsset := false

	for i := range o.Borrows {
		b := &o.Borrows[i]
		res, ok := reserves[b.BorrowReserveID]
		if !ok {
			return fmt.Errorf("%w: no reserve supplied for borrow %s", errs.ErrInvalidAccountInput, b.BorrowReserveID)
		}
		if res.Liquidity.CumulativeBorrowRateWads.Cmp(b.CumulativeBorrowRateWads) < 0 {
			return fmt.Errorf("%w: stored cumulative_borrow_rate_wads exceeds reserve's current value", errs.ErrMathOverflow)
		}

		ratio, err := res.Liquidity.CumulativeBorrowRateWads.TryDiv(b.CumulativeBorrowRateWads)
		if err != nil {
			return err
		}
		newBorrowed, err := b.BorrowedAmountWads.TryMul(ratio)
		if err != nil {
			return err
		}
		b.BorrowedAmountWads = newBorrowed
		b.CumulativeBorrowRateWads = res.Liquidity.CumulativeBorrowRateWads

		marketValue, err := res.MarketValue(b.BorrowedAmountWads)
		if err != nil {
			return err
		}
		upperValue, err := res.MarketValueUpperBound(b.BorrowedAmountWads)
		if err != nil {
			return err
		}
		b.MarketValue = marketValue
		b.MarketValueUpperBound = upperValue

		weight, err := res.Config.BorrowWeight()
		if err != nil {
			return err
		}
		weighted, err := marketValue.TryMul(weight)
		if err != nil {
			return err
		}
		borrowedValue, err = borrowedValue.TryAdd(weighted)
		if err != nil {
			return err
		}
		weightedUpper, err := upperValue.TryMul(weight)
		if err != nil {
			return err
		}
		borrowedValueUpperBound, err = borrowedValueUpperBound.TryAdd(weightedUpper)
		if err != nil {
			return err
		}

		if res.Config.ReserveType == reserve.Isolated {
			isolatedAsset = true
		}
		b.ReserveType = res.Config.ReserveType
		b.AddedBorrowWeightBps = res.Config.AddedBorrowWeightBps
	}

	o.Normalize()

	o.DepositedValue = depositedValue
	o.BorrowedValue = borrowedValue
	o.BorrowedValueUpperBound = borrowedValueUpperBound
	o.UnhealthyBorrowValue = unhealthy
	o.SuperUnhealthyBorrowValue = superUnhealthy
	o.AllowedBorrowValue = allowed
	o.BorrowingIsolatedAsset = isolatedAsset
	o.Closeable = o.IsUnhealthy() && o.BorrowedValue.Cmp(CloseableThreshold) <= 0
	o.LastUpdate.Slot = nowSlot
	o.LastUpdate.Stale = false
	return nil
}

// IsUnhealthy reports whether borrowed_value exceeds unhealthy_borrow_value.
func (o *Obligation) IsUnhealthy() bool {
	return o.BorrowedValue.Cmp(o.UnhealthyBorrowValue) > 0
}

// IsHealthy is the negation of IsUnhealthy.
func (o *Obligation) IsHealthy() bool { return !o.IsUnhealthy() }

// IsSuperUnhealthy reports whether borrowed_value has reached
// super_unhealthy_borrow_value.
func (o *Obligation) IsSuperUnhealthy() bool {
	return o.BorrowedValue.Cmp(o.SuperUnhealthyBorrowValue) >= 0
}

// MaxLiquidationAmount implements obligation.max_liquidation_amount(liquidity):
// the largest portion of a single borrow liquidatable in one call, bounded
// by the borrow itself, the close-factor share of total borrowed value, and
// the absolute max-liquidatable-value ceiling.
func (o *Obligation) MaxLiquidationAmount(liquidity *Liquidity) (decimal.D, error) {
	borrowed := liquidity.BorrowedAmountWads
	if liquidity.MarketValue.IsZero() {
		return borrowed, nil
	}

	closeFactorShare, err := o.BorrowedValue.TryMul(CloseFactor)
	if err != nil {
		return decimal.D{}, err
	}
	closeFactorShare, err = closeFactorShare.TryDiv(liquidity.MarketValue)
	if err != nil {
		return decimal.D{}, err
	}
	closeFactorShare, err = closeFactorShare.TryMul(borrowed)
	if err != nil {
		return decimal.D{}, err
	}

	maxValueShare, err := MaxLiquidatableValue.TryDiv(liquidity.MarketValue)
	if err != nil {
		return decimal.D{}, err
	}
	maxValueShare, err = maxValueShare.TryMul(borrowed)
	if err != nil {
		return decimal.D{}, err
	}

	return borrowed.Min(closeFactorShare).Min(maxValueShare), nil
}
