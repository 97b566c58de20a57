package reserve

import (
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
)

// BorrowResult is the outcome of CalculateBorrow.
type BorrowResult struct {
	BorrowAmount  decimal.D
	ReceiveAmount uint64
	BorrowFee     uint64
	HostFee       uint64
}

// CalculateBorrow implements §4.3's calculate_borrow. amountToBorrow ==
// MaxU64 requests the largest borrow the obligation's remaining headroom,
// the reserve's rate-limiter capacity, and its available liquidity allow.
func (r *Reserve) CalculateBorrow(amountToBorrow uint64, maxBorrowValue decimal.D, remainingReserveCapacity decimal.D) (BorrowResult, error) {
	borrowWeight, err := r.Config.BorrowWeight()
	if err != nil {
		return BorrowResult{}, err
	}

	if amountToBorrow == MaxU64 {
		liqForValue, err := r.UsdToLiquidityLowerBound(maxBorrowValue)
		if err != nil {
			return BorrowResult{}, err
		}
		liqForValue, err = liqForValue.TryDiv(borrowWeight)
		if err != nil {
			return BorrowResult{}, err
		}
		availableD := decimal.FromU64(r.Liquidity.AvailableAmount)
		borrowAmount := liqForValue.Min(remainingReserveCapacity).Min(availableD)

		floored, err := borrowAmount.FloorU64()
		if err != nil {
			return BorrowResult{}, err
		}
		borrowFee, hostFee, err := r.calculateFees(decimal.FromU64(floored), Inclusive)
		if err != nil {
			return BorrowResult{}, err
		}
		return BorrowResult{
			BorrowAmount:  decimal.FromU64(floored),
			ReceiveAmount: floored - borrowFee,
			BorrowFee:     borrowFee,
			HostFee:       hostFee,
		}, nil
	}

	borrowFee, hostFee, err := r.calculateFees(decimal.FromU64(amountToBorrow), Exclusive)
	if err != nil {
		return BorrowResult{}, err
	}
	borrowAmount, err := decimal.FromU64(amountToBorrow).TryAdd(decimal.FromU64(borrowFee))
	if err != nil {
		return BorrowResult{}, err
	}

	upperValue, err := r.MarketValueUpperBound(borrowAmount)
	if err != nil {
		return BorrowResult{}, err
	}
	weighted, err := upperValue.TryMul(borrowWeight)
	if err != nil {
		return BorrowResult{}, err
	}
	if weighted.Cmp(maxBorrowValue) > 0 {
		return BorrowResult{}, fmt.Errorf("%w: requested borrow value %s exceeds remaining headroom %s", errs.ErrBorrowTooLarge, weighted, maxBorrowValue)
	}

	return BorrowResult{
		BorrowAmount:  borrowAmount,
		ReceiveAmount: amountToBorrow,
		BorrowFee:     borrowFee,
		HostFee:       hostFee,
	}, nil
}

// RepayResult is the outcome of CalculateRepay.
type RepayResult struct {
	SettleAmount decimal.D
	RepayAmount  uint64
}

// CalculateRepay implements §4.3's calculate_repay.
func (r *Reserve) CalculateRepay(amountToRepay uint64, owedWads decimal.D) (RepayResult, error) {
	settle := owedWads
	if amountToRepay != MaxU64 {
		settle = decimal.FromU64(amountToRepay).Min(owedWads)
	}
	repay, err := settle.CeilU64()
	if err != nil {
		return RepayResult{}, err
	}
	return RepayResult{SettleAmount: settle, RepayAmount: repay}, nil
}

// BonusInputs carries the obligation-level aggregates CalculateBonus needs,
// avoiding an import-cycle with the obligation package.
type BonusInputs struct {
	BorrowedValue             decimal.D
	UnhealthyBorrowValue      decimal.D
	SuperUnhealthyBorrowValue decimal.D
}

// CalculateBonus implements §4.3's calculate_bonus.
func (r *Reserve) CalculateBonus(in BonusInputs) (decimal.D, error) {
	if in.BorrowedValue.Cmp(in.UnhealthyBorrowValue) < 0 {
		return decimal.D{}, fmt.Errorf("%w: borrowed value %s is below the unhealthy threshold %s", errs.ErrObligationHealthy, in.BorrowedValue, in.UnhealthyBorrowValue)
	}

	lb := decimal.FromPercent(r.Config.LiquidationBonusPct)
	mlb := decimal.FromPercent(r.Config.MaxLiquidationBonusPct)
	plf := decimal.FromDecaBps(r.Config.ProtocolLiquidationFeeDecaBps)
	cap := decimal.FromPercent(25)

	if in.UnhealthyBorrowValue.Cmp(in.SuperUnhealthyBorrowValue) == 0 {
		sum, err := lb.TryAdd(plf)
		if err != nil {
			return decimal.D{}, err
		}
		return sum.Min(cap), nil
	}

	span, err := in.SuperUnhealthyBorrowValue.TrySub(in.UnhealthyBorrowValue)
	if err != nil {
		return decimal.D{}, err
	}
	num, err := in.BorrowedValue.TrySub(in.UnhealthyBorrowValue)
	if err != nil {
		return decimal.D{}, err
	}
	w, err := num.TryDiv(span)
	if err != nil {
		return decimal.D{}, err
	}
	w = w.Min(decimal.OneD())

	bonusSpan, err := mlb.TrySub(lb)
	if err != nil {
		return decimal.D{}, err
	}
	add, err := w.TryMul(bonusSpan)
	if err != nil {
		return decimal.D{}, err
	}
	bonus, err := lb.TryAdd(add)
	if err != nil {
		return decimal.D{}, err
	}
	bonus, err = bonus.TryAdd(plf)
	if err != nil {
		return decimal.D{}, err
	}
	return bonus.Min(cap), nil
}

// LiquidationInputs carries every obligation/liquidity/collateral-level
// value CalculateLiquidation needs.
type LiquidationInputs struct {
	BonusInputs

	LiquidityMarketValue        decimal.D
	LiquidityBorrowedAmountWads decimal.D

	CollateralMarketValue      decimal.D
	CollateralDepositedAmount  uint64

	// MaxLiquidationAmount is obligation.max_liquidation_amount(liquidity),
	// computed by the obligation package (it alone knows CLOSE_FACTOR's
	// interaction with the obligation's aggregate borrowed_value).
	MaxLiquidationAmount decimal.D
}

// LiquidationResult is the outcome of CalculateLiquidation.
type LiquidationResult struct {
	SettleAmount  decimal.D
	RepayAmount   uint64
	WithdrawAmount uint64
	BonusRate     decimal.D
}

// CalculateLiquidation implements §4.3's calculate_liquidation, including
// both the dust and normal regimes and their shared three-way comparison
// against collateral value.
func (r *Reserve) CalculateLiquidation(amountToLiquidate uint64, in LiquidationInputs) (LiquidationResult, error) {
	bonus, err := r.CalculateBonus(in.BonusInputs)
	if err != nil {
		return LiquidationResult{}, err
	}
	bonusRate, err := decimal.OneD().TryAdd(bonus)
	if err != nil {
		return LiquidationResult{}, err
	}

	if in.LiquidityMarketValue.Cmp(decimal.OneD()) <= 0 {
		return r.calculateDustLiquidation(in, bonusRate)
	}

	var amount decimal.D
	if amountToLiquidate == MaxU64 {
		amount = in.MaxLiquidationAmount
	} else {
		amount = decimal.FromU64(amountToLiquidate).Min(in.MaxLiquidationAmount)
	}

	frac, err := amount.TryDiv(in.LiquidityBorrowedAmountWads)
	if err != nil {
		return LiquidationResult{}, err
	}
	liqValue, err := in.LiquidityMarketValue.TryMul(frac)
	if err != nil {
		return LiquidationResult{}, err
	}
	liqValue, err = liqValue.TryMul(bonusRate)
	if err != nil {
		return LiquidationResult{}, err
	}

	switch liqValue.Cmp(in.CollateralMarketValue) {
	case 1:
		repayPct, err := in.CollateralMarketValue.TryDiv(liqValue)
		if err != nil {
			return LiquidationResult{}, err
		}
		settleAmount, err := amount.TryMul(repayPct)
		if err != nil {
			return LiquidationResult{}, err
		}
		repayAmt, err := settleAmount.CeilU64()
		if err != nil {
			return LiquidationResult{}, err
		}
		return LiquidationResult{settleAmount, repayAmt, in.CollateralDepositedAmount, bonusRate}, nil
	case 0:
		repayAmt, err := amount.CeilU64()
		if err != nil {
			return LiquidationResult{}, err
		}
		return LiquidationResult{amount, repayAmt, in.CollateralDepositedAmount, bonusRate}, nil
	default:
		repayAmt, err := amount.CeilU64()
		if err != nil {
			return LiquidationResult{}, err
		}
		withdrawAmt, err := withdrawFromPct(liqValue, in.CollateralMarketValue, in.CollateralDepositedAmount)
		if err != nil {
			return LiquidationResult{}, err
		}
		if repayAmt == 0 {
			return LiquidationResult{}, fmt.Errorf("%w: computed repay amount rounds to zero", errs.ErrLiquidationTooSmall)
		}
		return LiquidationResult{amount, repayAmt, withdrawAmt, bonusRate}, nil
	}
}

func (r *Reserve) calculateDustLiquidation(in LiquidationInputs, bonusRate decimal.D) (LiquidationResult, error) {
	liqValue, err := in.LiquidityMarketValue.TryMul(bonusRate)
	if err != nil {
		return LiquidationResult{}, err
	}

	switch liqValue.Cmp(in.CollateralMarketValue) {
	case 1:
		repayPct, err := in.CollateralMarketValue.TryDiv(liqValue)
		if err != nil {
			return LiquidationResult{}, err
		}
		settleAmount, err := in.LiquidityBorrowedAmountWads.TryMul(repayPct)
		if err != nil {
			return LiquidationResult{}, err
		}
		repayAmt, err := settleAmount.CeilU64()
		if err != nil {
			return LiquidationResult{}, err
		}
		return LiquidationResult{settleAmount, repayAmt, in.CollateralDepositedAmount, bonusRate}, nil
	case 0:
		repayAmt, err := in.LiquidityBorrowedAmountWads.CeilU64()
		if err != nil {
			return LiquidationResult{}, err
		}
		return LiquidationResult{in.LiquidityBorrowedAmountWads, repayAmt, in.CollateralDepositedAmount, bonusRate}, nil
	default:
		repayAmt, err := in.LiquidityBorrowedAmountWads.CeilU64()
		if err != nil {
			return LiquidationResult{}, err
		}
		withdrawAmt, err := withdrawFromPct(liqValue, in.CollateralMarketValue, in.CollateralDepositedAmount)
		if err != nil {
			return LiquidationResult{}, err
		}
		if repayAmt == 0 {
			return LiquidationResult{}, fmt.Errorf("%w: computed repay amount rounds to zero", errs.ErrLiquidationTooSmall)
		}
		return LiquidationResult{in.LiquidityBorrowedAmountWads, repayAmt, withdrawAmt, bonusRate}, nil
	}
}

func withdrawFromPct(liqValue, collateralValue decimal.D, deposited uint64) (uint64, error) {
	pct, err := liqValue.TryDiv(collateralValue)
	if err != nil {
		return 0, err
	}
	scaled, err := decimal.FromU64(deposited).TryMul(pct)
	if err != nil {
		return 0, err
	}
	floored, err := scaled.FloorU64()
	if err != nil {
		return 0, err
	}
	if floored < 1 {
		floored = 1
	}
	return floored, nil
}

// CalculateProtocolLiquidationFee implements §4.3's
// calculate_protocol_liquidation_fee on an already-settled liquidation.
func (r *Reserve) CalculateProtocolLiquidationFee(amountLiquidated uint64, bonusRate decimal.D) (uint64, error) {
	nonbonus, err := decimal.FromU64(amountLiquidated).TryDiv(bonusRate)
	if err != nil {
		return 0, err
	}
	feeDec, err := nonbonus.TryMul(decimal.FromDecaBps(r.Config.ProtocolLiquidationFeeDecaBps))
	if err != nil {
		return 0, err
	}
	fee, err := feeDec.CeilU64()
	if err != nil {
		return 0, err
	}
	if fee < 1 {
		fee = 1
	}
	return fee, nil
}

// CalculateRedeemFees returns min(available, floor(accumulated_protocol_fees)).
func (r *Reserve) CalculateRedeemFees() (uint64, error) {
	floored, err := r.Liquidity.AccumulatedProtocolFeesWads.FloorU64()
	if err != nil {
		return 0, err
	}
	if floored > r.Liquidity.AvailableAmount {
		floored = r.Liquidity.AvailableAmount
	}
	return floored, nil
}
