package market

import (
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
	"github.com/solendgo/lending-engine/native/common"
	"github.com/solendgo/lending-engine/obligation"
	"github.com/solendgo/lending-engine/ratelimiter"
	"github.com/solendgo/lending-engine/reserve"
)

// BorrowObligationLiquidity implements §4.5's borrow flow: compute the
// borrow via CalculateBorrow against the obligation's remaining headroom,
// move liquidity out of the reserve, record the new borrow line item
// (enforcing the isolated-tier invariant), and debit both rate limiters on
// the liquidity amount actually disbursed.
func (e *Engine) BorrowObligationLiquidity(r *reserve.Reserve, ob *obligation.Obligation, nowSlot uint64, ownerID AccountID, destAccountID AccountID, amountToBorrow uint64) (result reserve.BorrowResult, intents []TokenMovement, err error) {
	defer func() {
		e.record("borrow_obligation_liquidity", err, accountAttr("owner_id", ownerID), accountAttr("dest_account_id", destAccountID))
	}()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionBorrow); err != nil {
		return reserve.BorrowResult{}, nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return reserve.BorrowResult{}, nil, err
	}
	if err = requireObligationFresh(ob, nowSlot); err != nil {
		return reserve.BorrowResult{}, nil, err
	}

	remainingHeadroom, herr := ob.AllowedBorrowValue.TrySub(ob.BorrowedValueUpperBound)
	if herr != nil {
		remainingHeadroom = decimal.ZeroD()
	}

	remainingCapacity := decimal.FromU64(^uint64(0))
	if r.Config.BorrowLimit != 0 {
		currentBorrowed, cerr := r.Liquidity.BorrowedAmountWads.CeilU64()
		if cerr != nil {
			err = cerr
			return reserve.BorrowResult{}, nil, err
		}
		if currentBorrowed >= r.Config.BorrowLimit {
			err = fmt.Errorf("%w: reserve is already at borrow_limit %d", errs.ErrBorrowLimitExceeded, r.Config.BorrowLimit)
			return reserve.BorrowResult{}, nil, err
		}
		remainingCapacity = decimal.FromU64(r.Config.BorrowLimit - currentBorrowed)
	}
	if r.RateLimiter.Window != 0 {
		limiterRemaining, lerr := r.RateLimiter.Remaining(r.RateLimiterState, nowSlot)
		if lerr != nil {
			err = lerr
			return reserve.BorrowResult{}, nil, err
		}
		remainingCapacity = remainingCapacity.Min(limiterRemaining)
	}

	result, err = r.CalculateBorrow(amountToBorrow, remainingHeadroom, remainingCapacity)
	if err != nil {
		return reserve.BorrowResult{}, nil, err
	}

	floored, ferr := result.BorrowAmount.FloorU64()
	if ferr != nil {
		err = ferr
		return reserve.BorrowResult{}, nil, err
	}
	if r.Config.BorrowLimit != 0 {
		newBorrowed, oerr := r.Liquidity.BorrowedAmountWads.TryAdd(result.BorrowAmount)
		if oerr != nil {
			err = oerr
			return reserve.BorrowResult{}, nil, err
		}
		newBorrowedU64, cerr := newBorrowed.CeilU64()
		if cerr != nil {
			err = cerr
			return reserve.BorrowResult{}, nil, err
		}
		if newBorrowedU64 > r.Config.BorrowLimit {
			err = fmt.Errorf("%w: borrow would exceed reserve borrow_limit %d", errs.ErrBorrowLimitExceeded, r.Config.BorrowLimit)
			return reserve.BorrowResult{}, nil, err
		}
	}

	// Enforce the isolated-tier invariant before any mutation so a rejected
	// borrow never leaves the rate limiters or reserve book half-updated.
	if err = ob.AddBorrow(r.Liquidity.MintID, r.Liquidity.MintID, r.Config.ReserveType, r.Config.AddedBorrowWeightBps, r.Liquidity.CumulativeBorrowRateWads, result.BorrowAmount); err != nil {
		return reserve.BorrowResult{}, nil, err
	}

	marketLimiterState, err := e.Market.RateLimiter.Update(e.Market.RateLimiterState, nowSlot, remainingHeadroomValue(result, r))
	if err != nil {
		e.Metrics.RecordRateLimiterRejection("market")
		return reserve.BorrowResult{}, nil, err
	}
	reserveLimiterState, err := r.RateLimiter.Update(r.RateLimiterState, nowSlot, decimal.FromU64(floored))
	if err != nil {
		e.Metrics.RecordRateLimiterRejection("reserve")
		return reserve.BorrowResult{}, nil, err
	}
	e.Market.RateLimiterState = marketLimiterState
	r.RateLimiterState = reserveLimiterState

	if err = r.Borrow(result.BorrowAmount); err != nil {
		return reserve.BorrowResult{}, nil, err
	}
	r.LastUpdate.MarkStale()
	ob.LastUpdate.MarkStale()

	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: AccountID(r.Liquidity.SupplyAccountID), ToID: destAccountID, Amount: result.ReceiveAmount},
	}
	if result.BorrowFee > 0 {
		protocolFee := result.BorrowFee - result.HostFee
		intents = append(intents, TokenMovement{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: AccountID(r.Liquidity.SupplyAccountID), ToID: AccountID(r.Config.FeeReceiverID), Amount: protocolFee})
		if result.HostFee > 0 {
			intents = append(intents, TokenMovement{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: AccountID(r.Liquidity.SupplyAccountID), ToID: destAccountID, Amount: result.HostFee})
		}
	}
	return result, intents, nil
}

// remainingHeadroomValue converts the actually-disbursed borrow amount into
// the quote-currency value the market-level rate limiter tracks.
func remainingHeadroomValue(result reserve.BorrowResult, r *reserve.Reserve) decimal.D {
	v, err := r.MarketValueUpperBound(result.BorrowAmount)
	if err != nil {
		return decimal.ZeroD()
	}
	return v
}

// RepayObligationLiquidity implements §4.5's repay flow.
func (e *Engine) RepayObligationLiquidity(r *reserve.Reserve, ob *obligation.Obligation, nowSlot uint64, payerAccountID AccountID, amountToRepay uint64) (result reserve.RepayResult, intents []TokenMovement, err error) {
	defer func() { e.record("repay_obligation_liquidity", err, accountAttr("payer_account_id", payerAccountID)) }()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionRepay); err != nil {
		return reserve.RepayResult{}, nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return reserve.RepayResult{}, nil, err
	}

	b, ok := ob.FindBorrow(r.Liquidity.MintID)
	if !ok {
		err = fmt.Errorf("%w: no borrow outstanding for this reserve", errs.ErrInvalidAmount)
		return reserve.RepayResult{}, nil, err
	}

	result, err = r.CalculateRepay(amountToRepay, b.BorrowedAmountWads)
	if err != nil {
		return reserve.RepayResult{}, nil, err
	}
	if err = r.Repay(result.RepayAmount, result.SettleAmount); err != nil {
		return reserve.RepayResult{}, nil, err
	}
	if err = ob.RepayBorrow(r.Liquidity.MintID, result.SettleAmount); err != nil {
		return reserve.RepayResult{}, nil, err
	}
	ob.LastUpdate.MarkStale()

	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: payerAccountID, ToID: AccountID(r.Liquidity.SupplyAccountID), Amount: result.RepayAmount},
	}
	return result, intents, nil
}

// LiquidateObligation implements §4.5's liquidate flow: the repay reserve
// must be the obligation's highest-priority (first, post-normalization)
// borrow, and the withdraw reserve must have a deposit; both must already
// be fresh and the obligation must already be refreshed and unhealthy.
func (e *Engine) LiquidateObligation(
	repayReserve *reserve.Reserve,
	withdrawReserve *reserve.Reserve,
	ob *obligation.Obligation,
	nowSlot uint64,
	liquidatorID AccountID,
	amountToLiquidate uint64,
) (result reserve.LiquidationResult, protocolFee uint64, intents []TokenMovement, err error) {
	defer func() { e.record("liquidate_obligation", err, accountAttr("liquidator_id", liquidatorID)) }()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionLiquidate); err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}
	if e.Market.HasWhitelistedLiquidator() && liquidatorID != e.Market.WhitelistedLiquidatorID {
		err = fmt.Errorf("%w: liquidator is not the whitelisted address", errs.ErrNotWhitelistedLiquidator)
		return reserve.LiquidationResult{}, 0, nil, err
	}
	if err = requireReserveFresh(repayReserve, nowSlot); err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}
	if err = requireReserveFresh(withdrawReserve, nowSlot); err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}
	if err = requireObligationFresh(ob, nowSlot); err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}
	if !ob.IsUnhealthy() {
		err = fmt.Errorf("%w: obligation is not eligible for liquidation", errs.ErrObligationHealthy)
		return reserve.LiquidationResult{}, 0, nil, err
	}
	if len(ob.Borrows) == 0 || ob.Borrows[0].BorrowReserveID != repayReserve.Liquidity.MintID {
		err = fmt.Errorf("%w: repay reserve is not the obligation's highest-priority borrow", errs.ErrInvalidAccountInput)
		return reserve.LiquidationResult{}, 0, nil, err
	}
	dep, ok := ob.FindDeposit(withdrawReserve.Liquidity.MintID)
	if !ok {
		err = fmt.Errorf("%w: no collateral deposited for withdraw reserve", errs.ErrInvalidAccountInput)
		return reserve.LiquidationResult{}, 0, nil, err
	}

	maxLiquidation, merr := ob.MaxLiquidationAmount(&ob.Borrows[0])
	if merr != nil {
		err = merr
		return reserve.LiquidationResult{}, 0, nil, err
	}

	in := reserve.LiquidationInputs{
		BonusInputs: reserve.BonusInputs{
			BorrowedValue:             ob.BorrowedValue,
			UnhealthyBorrowValue:      ob.UnhealthyBorrowValue,
			SuperUnhealthyBorrowValue: ob.SuperUnhealthyBorrowValue,
		},
		LiquidityMarketValue:        ob.Borrows[0].MarketValue,
		LiquidityBorrowedAmountWads: ob.Borrows[0].BorrowedAmountWads,
		CollateralMarketValue:       dep.MarketValue,
		CollateralDepositedAmount:   dep.DepositedAmount,
		MaxLiquidationAmount:        maxLiquidation,
	}

	result, err = repayReserve.CalculateLiquidation(amountToLiquidate, in)
	if err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}

	protocolFee, err = withdrawReserve.CalculateProtocolLiquidationFee(result.WithdrawAmount, result.BonusRate)
	if err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}
	liquidatorWithdraw := result.WithdrawAmount - protocolFee

	if err = repayReserve.Repay(result.RepayAmount, result.SettleAmount); err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}
	if err = ob.RepayBorrow(repayReserve.Liquidity.MintID, result.SettleAmount); err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}
	if err = ob.WithdrawCollateral(withdrawReserve.Liquidity.MintID, result.WithdrawAmount); err != nil {
		return reserve.LiquidationResult{}, 0, nil, err
	}
	ob.LastUpdate.MarkStale()

	intents = []TokenMovement{
		{ReserveID: repayReserve.Liquidity.MintID, MintID: repayReserve.Liquidity.MintID, FromID: liquidatorID, ToID: AccountID(repayReserve.Liquidity.SupplyAccountID), Amount: result.RepayAmount},
		{ReserveID: withdrawReserve.Liquidity.MintID, MintID: withdrawReserve.Collateral.MintID, FromID: AccountID(withdrawReserve.Collateral.SupplyAccountID), ToID: liquidatorID, Amount: liquidatorWithdraw},
	}
	if protocolFee > 0 {
		intents = append(intents, TokenMovement{ReserveID: withdrawReserve.Liquidity.MintID, MintID: withdrawReserve.Collateral.MintID, FromID: AccountID(withdrawReserve.Collateral.SupplyAccountID), ToID: AccountID(withdrawReserve.Config.FeeReceiverID), Amount: protocolFee})
	}
	return result, protocolFee, intents, nil
}

// ForgiveDebt implements the owner-only debt write-off supplement: the
// obligation must hold zero collateral deposits (otherwise liquidation, not
// forgiveness, is the correct path), and the forgiven amount reduces only
// borrowed_amount_wads, socializing the loss across the reserve's
// depositors through the exchange rate.
func (e *Engine) ForgiveDebt(r *reserve.Reserve, ob *obligation.Obligation, callerID AccountID, forgiveAmountWads decimal.D) (err error) {
	defer func() { e.record("forgive_debt", err, accountAttr("caller_id", callerID)) }()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionForgiveDebt); err != nil {
		return err
	}
	if callerID != e.Market.OwnerID {
		err = fmt.Errorf("%w: forgive_debt requires the lending market owner", errs.ErrInvalidMarketOwner)
		return err
	}
	if len(ob.Deposits) != 0 {
		err = fmt.Errorf("%w: forgive_debt requires zero collateral deposits", errs.ErrInvalidAccountInput)
		return err
	}
	if _, ok := ob.FindBorrow(r.Liquidity.MintID); !ok {
		err = fmt.Errorf("%w: no borrow outstanding for this reserve", errs.ErrInvalidAmount)
		return err
	}

	if err = r.ForgiveDebt(forgiveAmountWads); err != nil {
		return err
	}
	if err = ob.RepayBorrow(r.Liquidity.MintID, forgiveAmountWads); err != nil {
		return err
	}
	ob.LastUpdate.MarkStale()
	return nil
}

// RedeemProtocolFees pays out accumulated_protocol_fees_wads to the
// reserve's configured fee receiver.
func (e *Engine) RedeemProtocolFees(r *reserve.Reserve, nowSlot uint64) (amount uint64, intents []TokenMovement, err error) {
	defer func() { e.record("redeem_protocol_fees", err) }()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionRedeemFees); err != nil {
		return 0, nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return 0, nil, err
	}
	amount, err = r.CalculateRedeemFees()
	if err != nil {
		return 0, nil, err
	}
	if err = r.RedeemFees(amount); err != nil {
		return 0, nil, err
	}
	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: AccountID(r.Liquidity.SupplyAccountID), ToID: AccountID(r.Config.FeeReceiverID), Amount: amount},
	}
	return amount, intents, nil
}

// FlashBorrow disburses amount without touching any obligation; the caller
// is responsible for pairing this with FlashRepay within the same
// transaction, a constraint the engine itself cannot enforce since it has
// no notion of transaction boundaries.
func (e *Engine) FlashBorrow(r *reserve.Reserve, nowSlot uint64, destAccountID AccountID, amount uint64) (intents []TokenMovement, err error) {
	defer func() { e.record("flash_borrow", err, accountAttr("dest_account_id", destAccountID)) }()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionFlashLoan); err != nil {
		return nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return nil, err
	}
	if amount > r.Liquidity.AvailableAmount {
		err = fmt.Errorf("%w: flash borrow of %d exceeds available %d", errs.ErrInsufficientLiquidity, amount, r.Liquidity.AvailableAmount)
		return nil, err
	}
	r.Liquidity.AvailableAmount -= amount
	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: AccountID(r.Liquidity.SupplyAccountID), ToID: destAccountID, Amount: amount},
	}
	return intents, nil
}

// FlashRepay settles a matching FlashBorrow: the borrower returns principal
// plus CalculateFlashLoanFee(principal), with the fee credited to
// accumulated protocol fees.
func (e *Engine) FlashRepay(r *reserve.Reserve, nowSlot uint64, payerAccountID AccountID, principal uint64) (fee uint64, intents []TokenMovement, err error) {
	defer func() { e.record("flash_repay", err, accountAttr("payer_account_id", payerAccountID)) }()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionFlashLoan); err != nil {
		return 0, nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return 0, nil, err
	}
	fee, err = r.CalculateFlashLoanFee(principal)
	if err != nil {
		return 0, nil, err
	}
	total := principal + fee
	if total < principal {
		err = fmt.Errorf("%w: flash repay total overflows", errs.ErrMathOverflow)
		return 0, nil, err
	}
	r.Liquidity.AvailableAmount += total
	if err = r.DepositFlashLoanFee(decimal.FromU64(fee)); err != nil {
		return 0, nil, err
	}
	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: payerAccountID, ToID: AccountID(r.Liquidity.SupplyAccountID), Amount: total},
	}
	return fee, intents, nil
}

// UpdateReserveConfig applies a validated config change. When asRiskAuthority
// is true the change is rejected unless deposit_limit and borrow_limit only
// shrink (a zero limit means unlimited), loan_to_value_pct and both
// liquidation thresholds are not raised, and liquidation_bonus_pct is not
// lowered. The risk authority's changes to other fields are not restricted.
func (e *Engine) UpdateReserveConfig(r *reserve.Reserve, callerID AccountID, asRiskAuthority bool, next reserve.Config) (err error) {
	defer func() { e.record("update_reserve_config", err, accountAttr("caller_id", callerID)) }()

	if asRiskAuthority {
		if callerID != e.Market.RiskAuthorityID {
			err = fmt.Errorf("%w: caller is not the configured risk authority", errs.ErrInvalidMarketOwner)
			return err
		}
		if conservativeErr := requireConservativeReserveChange(r.Config, next); conservativeErr != nil {
			err = conservativeErr
			return err
		}
	} else if callerID != e.Market.OwnerID {
		err = fmt.Errorf("%w: caller is not the lending market owner", errs.ErrInvalidMarketOwner)
		return err
	}

	next.EnsureDefaults()
	if verr := next.Validate(); verr != nil {
		err = verr
		return err
	}
	r.Config = next
	return nil
}

func requireConservativeReserveChange(cur, next reserve.Config) error {
	if cur.DepositLimit != 0 && (next.DepositLimit == 0 || next.DepositLimit > cur.DepositLimit) {
		return fmt.Errorf("%w: risk authority may only lower deposit_limit", errs.ErrInvalidConfig)
	}
	if cur.BorrowLimit != 0 && (next.BorrowLimit == 0 || next.BorrowLimit > cur.BorrowLimit) {
		return fmt.Errorf("%w: risk authority may only lower borrow_limit", errs.ErrInvalidConfig)
	}
	if next.LoanToValuePct > cur.LoanToValuePct {
		return fmt.Errorf("%w: risk authority may not raise loan_to_value_pct", errs.ErrInvalidConfig)
	}
	if next.LiquidationThresholdPct > cur.LiquidationThresholdPct {
		return fmt.Errorf("%w: risk authority may not raise liquidation_threshold_pct", errs.ErrInvalidConfig)
	}
	if next.MaxLiquidationThresholdPct > cur.MaxLiquidationThresholdPct {
		return fmt.Errorf("%w: risk authority may not raise max_liquidation_threshold_pct", errs.ErrInvalidConfig)
	}
	if next.LiquidationBonusPct < cur.LiquidationBonusPct {
		return fmt.Errorf("%w: risk authority may not lower liquidation_bonus_pct", errs.ErrInvalidConfig)
	}
	return nil
}

// UpdateMarketConfig applies an owner-only change to the lending market's
// own fields (risk authority, whitelisted liquidator, outflow rate limiter).
func (e *Engine) UpdateMarketConfig(callerID AccountID, riskAuthorityID, whitelistedLiquidatorID AccountID, limiter ratelimiter.Limiter) (err error) {
	defer func() { e.record("update_market_config", err, accountAttr("caller_id", callerID)) }()

	if callerID != e.Market.OwnerID {
		err = fmt.Errorf("%w: caller is not the lending market owner", errs.ErrInvalidMarketOwner)
		return err
	}
	e.Market.RiskAuthorityID = riskAuthorityID
	e.Market.WhitelistedLiquidatorID = whitelistedLiquidatorID
	e.Market.RateLimiter = limiter
	return nil
}
