package reserve

import (
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
)

// DepositLiquidity mints collateral for a liquidity deposit and increases
// available_amount, failing if deposit_limit would be exceeded.
func (r *Reserve) DepositLiquidity(liquidityAmount uint64) (collateralAmount uint64, err error) {
	newAvailable := r.Liquidity.AvailableAmount + liquidityAmount
	if newAvailable < r.Liquidity.AvailableAmount {
		return 0, fmt.Errorf("%w: deposit overflows available_amount", errs.ErrMathOverflow)
	}
	if r.Config.DepositLimit != 0 && newAvailable > r.Config.DepositLimit {
		return 0, fmt.Errorf("%w: deposit would exceed deposit_limit %d", errs.ErrDepositLimitExceeded, r.Config.DepositLimit)
	}
	collateralAmount, err = r.LiquidityToCollateral(liquidityAmount)
	if err != nil {
		return 0, err
	}
	r.Liquidity.AvailableAmount = newAvailable
	r.Collateral.MintTotalSupply += collateralAmount
	return collateralAmount, nil
}

// RedeemCollateral burns collateral and releases the corresponding
// liquidity, failing if the reserve does not hold enough available
// liquidity.
func (r *Reserve) RedeemCollateral(collateralAmount uint64) (liquidityAmount uint64, err error) {
	liquidityAmount, err = r.CollateralToLiquidity(collateralAmount)
	if err != nil {
		return 0, err
	}
	if liquidityAmount > r.Liquidity.AvailableAmount {
		return 0, fmt.Errorf("%w: redeem requires %d, reserve has %d available", errs.ErrInsufficientLiquidity, liquidityAmount, r.Liquidity.AvailableAmount)
	}
	if collateralAmount > r.Collateral.MintTotalSupply {
		return 0, fmt.Errorf("%w: redeem exceeds collateral mint supply", errs.ErrInvalidAmount)
	}
	r.Liquidity.AvailableAmount -= liquidityAmount
	r.Collateral.MintTotalSupply -= collateralAmount
	return liquidityAmount, nil
}

// Borrow moves liquidity out of available_amount into borrowed_amount_wads.
func (r *Reserve) Borrow(borrowAmount decimal.D) error {
	floor, err := borrowAmount.FloorU64()
	if err != nil {
		return err
	}
	if floor > r.Liquidity.AvailableAmount {
		return fmt.Errorf("%w: borrow of %d exceeds available %d", errs.ErrInsufficientLiquidity, floor, r.Liquidity.AvailableAmount)
	}
	r.Liquidity.AvailableAmount -= floor
	newBorrowed, err := r.Liquidity.BorrowedAmountWads.TryAdd(borrowAmount)
	if err != nil {
		return err
	}
	r.Liquidity.BorrowedAmountWads = newBorrowed
	return nil
}

// Repay moves liquidity back into available_amount, reducing
// borrowed_amount_wads by min(settleAmount, borrowed_amount_wads).
func (r *Reserve) Repay(repayAmount uint64, settleAmount decimal.D) error {
	reduce := settleAmount.Min(r.Liquidity.BorrowedAmountWads)
	newBorrowed, err := r.Liquidity.BorrowedAmountWads.TrySub(reduce)
	if err != nil {
		return err
	}
	newAvailable := r.Liquidity.AvailableAmount + repayAmount
	if newAvailable < r.Liquidity.AvailableAmount {
		return fmt.Errorf("%w: repay overflows available_amount", errs.ErrMathOverflow)
	}
	r.Liquidity.AvailableAmount = newAvailable
	r.Liquidity.BorrowedAmountWads = newBorrowed
	return nil
}

// ForgiveDebt subtracts forgiveAmount from borrowed_amount_wads only,
// socializing the loss across every depositor of this reserve via the
// exchange rate (total_supply drops while mint_total_supply is unchanged).
func (r *Reserve) ForgiveDebt(forgiveAmount decimal.D) error {
	reduce := forgiveAmount.Min(r.Liquidity.BorrowedAmountWads)
	newBorrowed, err := r.Liquidity.BorrowedAmountWads.TrySub(reduce)
	if err != nil {
		return err
	}
	r.Liquidity.BorrowedAmountWads = newBorrowed
	return nil
}

// RedeemFees withdraws amount from accumulated_protocol_fees_wads and
// available_amount to the configured fee receiver.
func (r *Reserve) RedeemFees(amount uint64) error {
	if amount > r.Liquidity.AvailableAmount {
		return fmt.Errorf("%w: redeem fees of %d exceeds available %d", errs.ErrInsufficientLiquidity, amount, r.Liquidity.AvailableAmount)
	}
	newFees, err := r.Liquidity.AccumulatedProtocolFeesWads.TrySub(decimal.FromU64(amount))
	if err != nil {
		return err
	}
	r.Liquidity.AccumulatedProtocolFeesWads = newFees
	r.Liquidity.AvailableAmount -= amount
	return nil
}

// DepositFlashLoanFee credits the flash-loan fee into accumulated protocol
// fees without touching available_amount (the borrowed principal and fee
// were already added to available_amount by the caller).
func (r *Reserve) DepositFlashLoanFee(feeAmount decimal.D) error {
	newFees, err := r.Liquidity.AccumulatedProtocolFeesWads.TryAdd(feeAmount)
	if err != nil {
		return err
	}
	r.Liquidity.AccumulatedProtocolFeesWads = newFees
	return nil
}

// CalculateFlashLoanFee returns the flash_loan_fee_wad fraction of amount,
// ceiled.
func (r *Reserve) CalculateFlashLoanFee(amount uint64) (uint64, error) {
	rate := decimal.FromRawU64(r.Config.FlashLoanFeeWad)
	if rate.IsZero() {
		return 0, nil
	}
	feeDec, err := decimal.FromU64(amount).TryMul(rate)
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
