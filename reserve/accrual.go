package reserve

import (
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
)

// TotalSupply returns available + borrowed - protocol_fees, the liquidity
// side's solvency-proxy quantity.
func (r *Reserve) TotalSupply() (decimal.D, error) {
	total, err := decimal.FromU64(r.Liquidity.AvailableAmount).TryAdd(r.Liquidity.BorrowedAmountWads)
	if err != nil {
		return decimal.D{}, err
	}
	return total.TrySub(r.Liquidity.AccumulatedProtocolFeesWads)
}

// UtilizationRate returns borrowed / (borrowed + available - protocol_fees),
// or zero if the denominator is zero.
func (r *Reserve) UtilizationRate() (decimal.R, error) {
	denom, err := r.TotalSupply()
	if err != nil {
		return decimal.R{}, err
	}
	if denom.IsZero() {
		return decimal.ZeroR(), nil
	}
	u, err := r.Liquidity.BorrowedAmountWads.TryDiv(denom)
	if err != nil {
		return decimal.R{}, err
	}
	return u.ToRate()
}

// CurrentBorrowRate evaluates the four-knee piecewise curve described in
// §4.3 against the reserve's current utilization.
func (r *Reserve) CurrentBorrowRate() (decimal.R, error) {
	u, err := r.UtilizationRate()
	if err != nil {
		return decimal.R{}, err
	}
	uD, err := u.ToDecimal()
	if err != nil {
		return decimal.R{}, err
	}

	optimal := decimal.FromPercent(r.Config.OptimalUtilizationPct)
	maxUtil := decimal.FromPercent(r.Config.MaxUtilizationPct)
	rMin := decimal.FromPercent(r.Config.MinBorrowRatePct)
	rOpt := decimal.FromPercent(r.Config.OptimalBorrowRatePct)
	rMax := decimal.FromPercent(r.Config.MaxBorrowRatePct)
	rSuper := decimal.FromPercentU64(r.Config.SuperMaxBorrowRatePct)

	switch {
	case uD.Cmp(optimal) <= 0:
		if optimal.IsZero() {
			return rMin.ToRate()
		}
		span, err := rOpt.TrySub(rMin)
		if err != nil {
			return decimal.R{}, err
		}
		frac, err := uD.TryDiv(optimal)
		if err != nil {
			return decimal.R{}, err
		}
		add, err := frac.TryMul(span)
		if err != nil {
			return decimal.R{}, err
		}
		out, err := rMin.TryAdd(add)
		if err != nil {
			return decimal.R{}, err
		}
		return out.ToRate()

	case uD.Cmp(maxUtil) <= 0:
		span, err := rMax.TrySub(rOpt)
		if err != nil {
			return decimal.R{}, err
		}
		utilSpan, err := maxUtil.TrySub(optimal)
		if err != nil {
			return decimal.R{}, err
		}
		if utilSpan.IsZero() {
			return rMax.ToRate()
		}
		num, err := uD.TrySub(optimal)
		if err != nil {
			return decimal.R{}, err
		}
		frac, err := num.TryDiv(utilSpan)
		if err != nil {
			return decimal.R{}, err
		}
		add, err := frac.TryMul(span)
		if err != nil {
			return decimal.R{}, err
		}
		out, err := rOpt.TryAdd(add)
		if err != nil {
			return decimal.R{}, err
		}
		return out.ToRate()

	default:
		// Promote through D to avoid intermediate overflow in the tail
		// segment, then narrow back to R.
		span, err := rSuper.TrySub(rMax)
		if err != nil {
			return decimal.R{}, err
		}
		one := decimal.OneD()
		utilSpan, err := one.TrySub(maxUtil)
		if err != nil {
			return decimal.R{}, err
		}
		num, err := uD.TrySub(maxUtil)
		if err != nil {
			return decimal.R{}, err
		}
		if utilSpan.IsZero() {
			return rSuper.ToRate()
		}
		frac, err := num.TryDiv(utilSpan)
		if err != nil {
			return decimal.R{}, err
		}
		add, err := frac.TryMul(span)
		if err != nil {
			return decimal.R{}, err
		}
		out, err := rMax.TryAdd(add)
		if err != nil {
			return decimal.R{}, err
		}
		return out.ToRate()
	}
}

// AccrueInterest advances the reserve's cumulative borrow rate and
// protocol-fee bookkeeping to nowSlot, compounding per-slot since
// LastUpdate.Slot.
func (r *Reserve) AccrueInterest(nowSlot uint64) error {
	if nowSlot < r.LastUpdate.Slot {
		return fmt.Errorf("%w: now_slot precedes last update", errs.ErrInvalidAmount)
	}
	elapsed := nowSlot - r.LastUpdate.Slot
	if elapsed == 0 {
		return nil
	}

	rate, err := r.CurrentBorrowRate()
	if err != nil {
		return err
	}
	rateD, err := rate.ToDecimal()
	if err != nil {
		return err
	}
	perSlotD, err := rateD.TryDivInt(SlotsPerYear)
	if err != nil {
		return err
	}
	perSlot, err := perSlotD.ToRate()
	if err != nil {
		return err
	}
	base, err := decimal.OneR().TryAdd(perSlot)
	if err != nil {
		return err
	}
	factor, err := base.TryPow(elapsed)
	if err != nil {
		return err
	}
	factorD, err := factor.ToDecimal()
	if err != nil {
		return err
	}

	newCumulative, err := r.Liquidity.CumulativeBorrowRateWads.TryMul(factorD)
	if err != nil {
		return err
	}
	if newCumulative.Cmp(r.Liquidity.CumulativeBorrowRateWads) < 0 {
		return fmt.Errorf("%w: cumulative_borrow_rate_wads must be non-decreasing", errs.ErrMathOverflow)
	}

	factorMinusOne, err := factorD.TrySub(decimal.OneD())
	if err != nil {
		return err
	}
	newDebt, err := r.Liquidity.BorrowedAmountWads.TryMul(factorMinusOne)
	if err != nil {
		return err
	}
	takeRate := decimal.FromPercent(r.Config.ProtocolTakeRatePct)
	protocolCut, err := newDebt.TryMul(takeRate)
	if err != nil {
		return err
	}
	newFees, err := r.Liquidity.AccumulatedProtocolFeesWads.TryAdd(protocolCut)
	if err != nil {
		return err
	}
	newBorrowed, err := r.Liquidity.BorrowedAmountWads.TryAdd(newDebt)
	if err != nil {
		return err
	}

	r.Liquidity.CumulativeBorrowRateWads = newCumulative
	r.Liquidity.AccumulatedProtocolFeesWads = newFees
	r.Liquidity.BorrowedAmountWads = newBorrowed
	r.LastUpdate.Slot = nowSlot
	return nil
}

// ExchangeRate returns the collateral-per-liquidity rate, falling back to
// InitialExchangeRate when either side of the book is empty.
func (r *Reserve) ExchangeRate() (decimal.R, error) {
	if r.Collateral.MintTotalSupply == 0 {
		return InitialExchangeRate, nil
	}
	total, err := r.TotalSupply()
	if err != nil {
		return decimal.R{}, err
	}
	if total.IsZero() {
		return InitialExchangeRate, nil
	}
	rate, err := decimal.FromU64(r.Collateral.MintTotalSupply).TryDiv(total)
	if err != nil {
		return decimal.R{}, err
	}
	return rate.ToRate()
}

// CollateralToLiquidity converts a collateral-token amount to the
// underlying liquidity amount at the current exchange rate, flooring.
func (r *Reserve) CollateralToLiquidity(c uint64) (uint64, error) {
	rate, err := r.ExchangeRate()
	if err != nil {
		return 0, err
	}
	rateD, err := rate.ToDecimal()
	if err != nil {
		return 0, err
	}
	l, err := decimal.FromU64(c).TryDiv(rateD)
	if err != nil {
		return 0, err
	}
	return l.FloorU64()
}

// LiquidityToCollateral converts a liquidity amount to collateral-token
// units at the current exchange rate, flooring.
func (r *Reserve) LiquidityToCollateral(l uint64) (uint64, error) {
	rate, err := r.ExchangeRate()
	if err != nil {
		return 0, err
	}
	rateD, err := rate.ToDecimal()
	if err != nil {
		return 0, err
	}
	c, err := decimal.FromU64(l).TryMul(rateD)
	if err != nil {
		return 0, err
	}
	return c.FloorU64()
}
