// Package obligation implements one borrower's cross-margined position:
// its collateral and borrow line items, the aggregates recomputed on every
// refresh, health checks, and the normalization/ordering invariants that
// keep liquidation targeting deterministic.
package obligation

import (
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
	"github.com/solendgo/lending-engine/reserve"
)

// CloseFactor bounds the fraction of a single borrow liquidatable in one
// call.
var CloseFactor = reserve.CloseFactor

// MaxLiquidatableValue is the absolute USD ceiling on a single liquidation.
var MaxLiquidatableValue = reserve.MaxLiquidatableValue

// CloseableThreshold is the policy hook bounding how small an unhealthy
// obligation's borrowed_value must be before it is considered "closeable"
// (eligible for final cleanup rather than partial liquidation).
var CloseableThreshold = decimal.FromU64(2)

// Collateral is one deposit line item.
type Collateral struct {
	DepositReserveID string
	DepositedAmount  uint64
	MarketValue      decimal.D
}

// Liquidity is one borrow line item. The reserve-derived fields are
// denormalized here because the obligation record must be evaluable without
// always having the reserve record at hand, and because they drive the
// deterministic liquidation-target ordering (invariant 5).
type Liquidity struct {
	BorrowReserveID          string
	MintID                   string
	ReserveType              reserve.ReserveType
	AddedBorrowWeightBps     uint64
	CumulativeBorrowRateWads decimal.D
	BorrowedAmountWads       decimal.D
	MarketValue              decimal.D
	MarketValueUpperBound    decimal.D
}

// Obligation is the full borrower position record.
type Obligation struct {
	Version         uint8
	LastUpdate      LastUpdate
	LendingMarketID string
	OwnerID         string

	Deposits []Collateral
	Borrows  []Liquidity

	DepositedValue            decimal.D
	BorrowedValue             decimal.D
	BorrowedValueUpperBound   decimal.D
	AllowedBorrowValue        decimal.D
	UnhealthyBorrowValue      decimal.D
	SuperUnhealthyBorrowValue decimal.D
	BorrowingIsolatedAsset    bool
	Closeable                 bool
}

// LastUpdate mirrors reserve.LastUpdate: the freshness token a
// risk-sensitive operation must re-establish via Refresh.
type LastUpdate struct {
	Slot  uint64
	Stale bool
}

func (lu *LastUpdate) MarkStale() { lu.Stale = true }

func (lu LastUpdate) Fresh(now uint64) bool {
	return !lu.Stale && lu.Slot == now
}

// New returns an empty obligation owned by ownerID on the given market.
func New(lendingMarketID, ownerID string) *Obligation {
	return &Obligation{
		LendingMarketID:           lendingMarketID,
		OwnerID:                   ownerID,
		DepositedValue:            decimal.ZeroD(),
		BorrowedValue:             decimal.ZeroD(),
		BorrowedValueUpperBound:   decimal.ZeroD(),
		AllowedBorrowValue:        decimal.ZeroD(),
		UnhealthyBorrowValue:      decimal.ZeroD(),
		SuperUnhealthyBorrowValue: decimal.ZeroD(),
	}
}

// FindDeposit returns the deposit line item for reserveID, if any.
func (o *Obligation) FindDeposit(reserveID string) (*Collateral, bool) {
	for i := range o.Deposits {
		if o.Deposits[i].DepositReserveID == reserveID {
			return &o.Deposits[i], true
		}
	}
	return nil, false
}

// FindBorrow returns the borrow line item for reserveID, if any.
func (o *Obligation) FindBorrow(reserveID string) (*Liquidity, bool) {
	for i := range o.Borrows {
		if o.Borrows[i].BorrowReserveID == reserveID {
			return &o.Borrows[i], true
		}
	}
	return nil, false
}

// DepositCollateral creates or increments the deposit line item for
// reserveID by amount.
func (o *Obligation) DepositCollateral(reserveID string, amount uint64) error {
	if dep, ok := o.FindDeposit(reserveID); ok {
		newAmt := dep.DepositedAmount + amount
		if newAmt < dep.DepositedAmount {
			return fmt.Errorf("%w: deposit overflows deposited_amount", errs.ErrMathOverflow)
		}
		dep.DepositedAmount = newAmt
		return nil
	}
	o.Deposits = append(o.Deposits, Collateral{
		DepositReserveID: reserveID,
		DepositedAmount:  amount,
		MarketValue:      decimal.ZeroD(),
	})
	return nil
}

// WithdrawCollateral decrements the deposit line item for reserveID by
// amount, failing if the line item does not exist or does not hold enough.
func (o *Obligation) WithdrawCollateral(reserveID string, amount uint64) error {
	dep, ok := o.FindDeposit(reserveID)
	if !ok {
		return fmt.Errorf("%w: no collateral deposited for reserve %s", errs.ErrInvalidAmount, reserveID)
	}
	if amount > dep.DepositedAmount {
		return fmt.Errorf("%w: withdraw of %d exceeds deposited %d", errs.ErrInvalidAmount, amount, dep.DepositedAmount)
	}
	dep.DepositedAmount -= amount
	return nil
}
