package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
	"github.com/solendgo/lending-engine/native/common"
	"github.com/solendgo/lending-engine/obligation"
	"github.com/solendgo/lending-engine/observability/logging"
	"github.com/solendgo/lending-engine/oracle"
	"github.com/solendgo/lending-engine/reserve"
)

// Engine executes the top-level operations of §4.5 against explicit
// reserve and obligation arguments. It carries no state of its own beyond
// the lending market record, matching the "no process-wide mutable state"
// design note.
type Engine struct {
	Market  *LendingMarket
	Metrics MetricsRecorder
	Logger  *slog.Logger
	Pauses  common.PauseView
}

// NewEngine constructs an Engine for market m. A nil metrics recorder
// installs a no-op sink; a nil logger falls back to a fresh
// observability/logging.Setup logger scoped to this market's ID, so every
// Engine a caller runs (one per lending market) still logs with its own
// "component" tag even without explicit wiring.
func NewEngine(m *LendingMarket, metrics MetricsRecorder, logger *slog.Logger) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		marketID := ""
		if m != nil {
			marketID = m.ID
		}
		logger = logging.Setup("lending-engine", "", marketID)
	}
	return &Engine{Market: m, Metrics: metrics, Logger: logger}
}

// SetPauses installs the pause registry consulted by every fund-moving
// operation. A nil PauseView (the default) disables the check.
func (e *Engine) SetPauses(p common.PauseView) {
	e.Pauses = p
}

// record logs and counts the outcome of a market operation. Any supplied
// attrs carrying account or owner identifiers must already be masked via
// logging.MaskField before reaching here, since log lines from this engine
// may leave the engine's trust boundary.
func (e *Engine) record(op string, err error, attrs ...slog.Attr) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.Metrics.RecordOperation(op, outcome)

	args := make([]any, 0, len(attrs)*2+4)
	args = append(args, "operation", op)
	for _, a := range attrs {
		args = append(args, a)
	}
	if err != nil {
		args = append(args, "error", err)
		e.Logger.Warn("market operation rejected", args...)
		return
	}
	e.Logger.Info("market operation applied", args...)
}

// accountAttr returns a masked slog.Attr for an account identifier, named
// for the given role (e.g. "supplier_id", "liquidator_id").
func accountAttr(role string, id AccountID) slog.Attr {
	return logging.MaskField(role, string(id))
}

func requireReserveFresh(r *reserve.Reserve, nowSlot uint64) error {
	if !r.LastUpdate.Fresh(nowSlot) {
		return fmt.Errorf("%w: reserve for mint %s not refreshed at slot %d", errs.ErrReserveStale, r.Liquidity.MintID, nowSlot)
	}
	return nil
}

func requireObligationFresh(o *obligation.Obligation, nowSlot uint64) error {
	if !o.LastUpdate.Fresh(nowSlot) {
		return fmt.Errorf("%w: obligation not refreshed at slot %d", errs.ErrObligationStale, nowSlot)
	}
	return nil
}

// RefreshReserve pulls a fresh price from adapter, accrues interest, and
// clears staleness.
func (e *Engine) RefreshReserve(ctx context.Context, r *reserve.Reserve, adapter oracle.Adapter, nowSlot uint64) (err error) {
	defer func() { e.record("refresh_reserve", err) }()

	price, perr := adapter.Price(ctx, r.Liquidity.MintID, nowSlot)
	if perr != nil {
		return perr
	}
	r.Liquidity.MarketPrice = price.Market
	r.Liquidity.SmoothedMarketPrice = price.Smoothed

	if aerr := r.AccrueInterest(nowSlot); aerr != nil {
		return aerr
	}
	r.LastUpdate.Slot = nowSlot
	r.LastUpdate.Stale = false

	e.Metrics.RecordUtilization(r.Liquidity.MintID, utilizationFloat(r))
	return nil
}

func utilizationFloat(r *reserve.Reserve) float64 {
	u, err := r.UtilizationRate()
	if err != nil {
		return 0
	}
	uD, err := u.ToDecimal()
	if err != nil {
		return 0
	}
	f := new(big.Float).SetInt(uD.Raw())
	f.Quo(f, new(big.Float).SetInt(decimal.Wad))
	out, _ := f.Float64()
	return out
}

// RefreshObligation requires every reserve in reserves to already be fresh
// at nowSlot, then recomputes aggregates and clears staleness.
func (e *Engine) RefreshObligation(ob *obligation.Obligation, reserves map[string]*reserve.Reserve, nowSlot uint64) (err error) {
	defer func() { e.record("refresh_obligation", err) }()

	for id, r := range reserves {
		if rerr := requireReserveFresh(r, nowSlot); rerr != nil {
			return fmt.Errorf("reserve %s: %w", id, rerr)
		}
	}
	return ob.Refresh(reserves, nowSlot)
}

// DepositLiquidity implements the supplier-facing deposit flow: mint
// collateral for amount and credit supplierID.
func (e *Engine) DepositLiquidity(r *reserve.Reserve, nowSlot uint64, supplierID AccountID, amount uint64) (collateralAmount uint64, intents []TokenMovement, err error) {
	defer func() { e.record("deposit_liquidity", err, accountAttr("supplier_id", supplierID)) }()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionDeposit); err != nil {
		return 0, nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return 0, nil, err
	}
	if amount == 0 {
		err = fmt.Errorf("%w: deposit amount must be nonzero", errs.ErrInvalidAmount)
		return 0, nil, err
	}
	collateralAmount, err = r.DepositLiquidity(amount)
	if err != nil {
		return 0, nil, err
	}
	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: supplierID, ToID: AccountID(r.Liquidity.SupplyAccountID), Amount: amount},
		{ReserveID: r.Liquidity.MintID, MintID: r.Collateral.MintID, FromID: "", ToID: supplierID, Amount: collateralAmount},
	}
	return collateralAmount, intents, nil
}

// RedeemCollateral is the inverse of DepositLiquidity.
func (e *Engine) RedeemCollateral(r *reserve.Reserve, nowSlot uint64, supplierID AccountID, collateralAmount uint64) (liquidityAmount uint64, intents []TokenMovement, err error) {
	defer func() { e.record("redeem_collateral", err, accountAttr("supplier_id", supplierID)) }()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionRedeemCollateral); err != nil {
		return 0, nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return 0, nil, err
	}
	liquidityAmount, err = r.RedeemCollateral(collateralAmount)
	if err != nil {
		return 0, nil, err
	}
	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Collateral.MintID, FromID: supplierID, ToID: "", Amount: collateralAmount},
		{ReserveID: r.Liquidity.MintID, MintID: r.Liquidity.MintID, FromID: AccountID(r.Liquidity.SupplyAccountID), ToID: supplierID, Amount: liquidityAmount},
	}
	return liquidityAmount, intents, nil
}

// DepositObligationCollateral transfers collateral into the market and
// credits the obligation's deposit line item for reserve r.
func (e *Engine) DepositObligationCollateral(r *reserve.Reserve, ob *obligation.Obligation, nowSlot uint64, ownerID, fromAccountID AccountID, collateralAmount uint64) (intents []TokenMovement, err error) {
	defer func() {
		e.record("deposit_obligation_collateral", err, accountAttr("owner_id", ownerID), accountAttr("from_account_id", fromAccountID))
	}()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionDepositObligation); err != nil {
		return nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return nil, err
	}
	if collateralAmount == 0 {
		err = fmt.Errorf("%w: deposit amount must be nonzero", errs.ErrInvalidAmount)
		return nil, err
	}
	if err = ob.DepositCollateral(r.Liquidity.MintID, collateralAmount); err != nil {
		return nil, err
	}
	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Collateral.MintID, FromID: fromAccountID, ToID: AccountID(r.Collateral.SupplyAccountID), Amount: collateralAmount},
	}
	return intents, nil
}

// WithdrawObligationCollateral requires a refreshed obligation, limits the
// withdrawal by remaining allowed_borrow_value headroom, and debits both
// the reserve-scoped (native units) and market-scoped (quote value) rate
// limiters.
func (e *Engine) WithdrawObligationCollateral(r *reserve.Reserve, ob *obligation.Obligation, nowSlot uint64, ownerID AccountID, toAccountID AccountID, collateralAmount uint64) (intents []TokenMovement, err error) {
	defer func() {
		e.record("withdraw_obligation_collateral", err, accountAttr("owner_id", ownerID), accountAttr("to_account_id", toAccountID))
	}()

	if err = common.Guard(e.Pauses, e.Market.ID, common.ActionWithdraw); err != nil {
		return nil, err
	}
	if err = requireReserveFresh(r, nowSlot); err != nil {
		return nil, err
	}
	if err = requireObligationFresh(ob, nowSlot); err != nil {
		return nil, err
	}

	liquidityAmount, cerr := r.CollateralToLiquidity(collateralAmount)
	if cerr != nil {
		err = cerr
		return nil, err
	}
	withdrawValue, verr := r.MarketValueLowerBound(decimal.FromU64(liquidityAmount))
	if verr != nil {
		err = verr
		return nil, err
	}
	headroom, herr := ob.AllowedBorrowValue.TrySub(ob.BorrowedValueUpperBound)
	if herr != nil {
		headroom = decimal.ZeroD()
	}
	if withdrawValue.Cmp(headroom) > 0 {
		err = fmt.Errorf("%w: withdraw value %s exceeds allowed headroom %s", errs.ErrInvalidAmount, withdrawValue, headroom)
		return nil, err
	}

	marketLimiterState, err := e.Market.RateLimiter.Update(e.Market.RateLimiterState, nowSlot, withdrawValue)
	if err != nil {
		e.Metrics.RecordRateLimiterRejection("market")
		return nil, err
	}
	reserveLimiterState, err := r.RateLimiter.Update(r.RateLimiterState, nowSlot, decimal.FromU64(liquidityAmount))
	if err != nil {
		e.Metrics.RecordRateLimiterRejection("reserve")
		return nil, err
	}
	e.Market.RateLimiterState = marketLimiterState
	r.RateLimiterState = reserveLimiterState

	if err = ob.WithdrawCollateral(r.Liquidity.MintID, collateralAmount); err != nil {
		return nil, err
	}

	intents = []TokenMovement{
		{ReserveID: r.Liquidity.MintID, MintID: r.Collateral.MintID, FromID: AccountID(r.Collateral.SupplyAccountID), ToID: toAccountID, Amount: collateralAmount},
	}
	return intents, nil
}
