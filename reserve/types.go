// Package reserve implements the per-asset pool: configuration, interest
// accrual, the borrow-rate curve, price-bound valuation, and the
// borrow/repay/liquidation/protocol-fee calculations. It has no knowledge of
// obligations; callers (the market package) pass in whatever obligation
// aggregates a calculation needs as plain value structs.
package reserve

import (
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
	"github.com/solendgo/lending-engine/ratelimiter"
)

// SlotsPerYear is the host chain's slot-time convention used to annualize
// the borrow-rate curve into a per-slot compounding rate.
const SlotsPerYear uint64 = 63_072_000

// InitialExchangeRate is the collateral-per-liquidity rate used when a
// reserve has no liquidity or collateral minted yet.
var InitialExchangeRate = decimal.OneR()

// MaxProtocolLiquidationFeeDecaBps caps protocol_liquidation_fee on load,
// per the legacy-record backfill rule.
const MaxProtocolLiquidationFeeDecaBps uint8 = 50

// CloseFactor bounds the fraction of a single borrow liquidatable in one
// call, shared with the obligation package's max-liquidation-amount rule.
var CloseFactor = decimal.FromPercent(20)

// MaxLiquidatableValue is the absolute USD ceiling on a single liquidation,
// wad-scaled.
var MaxLiquidatableValue = decimal.FromU64(500_000)

// ReserveType tags whether a reserve may be cross-margined with others.
type ReserveType int

const (
	Regular ReserveType = iota
	Isolated
)

// FeeCalculation selects whether calculate_borrow treats the requested
// amount as pre-fee (Exclusive) or post-fee (Inclusive, used for max-borrow
// requests).
type FeeCalculation int

const (
	Exclusive FeeCalculation = iota
	Inclusive
)

// LastUpdate is the freshness token every risk-sensitive operation checks
// before acting.
type LastUpdate struct {
	Slot  uint64
	Stale bool
}

// MarkStale flags the reserve for mandatory refresh before further
// risk-sensitive use.
func (lu *LastUpdate) MarkStale() { lu.Stale = true }

// Fresh reports whether the reserve was refreshed at slot "now" and is not
// flagged stale.
func (lu LastUpdate) Fresh(now uint64) bool {
	return !lu.Stale && lu.Slot == now
}

// Liquidity is the liquidity side of a reserve's book.
type Liquidity struct {
	MintID              string
	Decimals            uint8
	SupplyAccountID     string
	PythOracleID        string
	SwitchboardOracleID string

	AvailableAmount             uint64
	BorrowedAmountWads          decimal.D
	CumulativeBorrowRateWads    decimal.D
	AccumulatedProtocolFeesWads decimal.D
	MarketPrice                 decimal.D
	SmoothedMarketPrice         decimal.D
}

// Scale returns 10^Decimals as a plain uint64 multiplier.
func (l Liquidity) Scale() uint64 {
	s := uint64(1)
	for i := uint8(0); i < l.Decimals; i++ {
		s *= 10
	}
	return s
}

// Collateral is the collateral-mint side of a reserve's book.
type Collateral struct {
	MintID          string
	MintTotalSupply uint64
	SupplyAccountID string
}

// Config holds every validated, operator-controlled parameter of a reserve.
type Config struct {
	OptimalUtilizationPct uint8
	MaxUtilizationPct     uint8

	LoanToValuePct uint8

	LiquidationBonusPct    uint8
	MaxLiquidationBonusPct uint8

	LiquidationThresholdPct    uint8
	MaxLiquidationThresholdPct uint8

	MinBorrowRatePct      uint8
	OptimalBorrowRatePct  uint8
	MaxBorrowRatePct      uint8
	SuperMaxBorrowRatePct uint64

	BorrowFeeWad    uint64
	FlashLoanFeeWad uint64
	HostFeePct      uint8

	DepositLimit  uint64
	BorrowLimit   uint64
	FeeReceiverID string

	ProtocolLiquidationFeeDecaBps uint8
	ProtocolTakeRatePct           uint8
	AddedBorrowWeightBps          uint64

	ReserveType ReserveType
}

// EnsureDefaults backfills legacy zero max_* fields from their non-max
// counterpart and clamps protocol_liquidation_fee, per the forward
// compatibility rule for records written by older configurations.
func (c *Config) EnsureDefaults() {
	if c.MaxLiquidationBonusPct == 0 {
		c.MaxLiquidationBonusPct = c.LiquidationBonusPct
	}
	if c.MaxLiquidationThresholdPct == 0 {
		c.MaxLiquidationThresholdPct = c.LiquidationThresholdPct
	}
	if c.SuperMaxBorrowRatePct == 0 || c.SuperMaxBorrowRatePct < uint64(c.MaxBorrowRatePct) {
		c.SuperMaxBorrowRatePct = uint64(c.MaxBorrowRatePct)
	}
	if c.ProtocolLiquidationFeeDecaBps > MaxProtocolLiquidationFeeDecaBps {
		c.ProtocolLiquidationFeeDecaBps = MaxProtocolLiquidationFeeDecaBps
	}
}

// Validate checks every inequality spec §3 requires of a reserve config.
func (c Config) Validate() error {
	if c.OptimalUtilizationPct > 100 || c.MaxUtilizationPct > 100 {
		return fmt.Errorf("%w: utilization knees must be in [0,100]", errs.ErrInvalidConfig)
	}
	if c.LoanToValuePct >= 100 {
		return fmt.Errorf("%w: ltv must be in [0,100)", errs.ErrInvalidConfig)
	}
	if !(c.LiquidationBonusPct <= c.MaxLiquidationBonusPct && c.MaxLiquidationBonusPct <= 100) {
		return fmt.Errorf("%w: liq_bonus <= max_liq_bonus <= 100 required", errs.ErrInvalidConfig)
	}
	if !(c.LoanToValuePct <= c.LiquidationThresholdPct &&
		c.LiquidationThresholdPct <= c.MaxLiquidationThresholdPct &&
		c.MaxLiquidationThresholdPct <= 100) {
		return fmt.Errorf("%w: ltv <= liq_threshold <= max_liq_threshold <= 100 required", errs.ErrInvalidConfig)
	}
	if !(uint64(c.MinBorrowRatePct) <= uint64(c.OptimalBorrowRatePct) &&
		uint64(c.OptimalBorrowRatePct) <= uint64(c.MaxBorrowRatePct) &&
		uint64(c.MaxBorrowRatePct) <= c.SuperMaxBorrowRatePct) {
		return fmt.Errorf("%w: min <= optimal <= max <= super_max borrow rate required", errs.ErrInvalidConfig)
	}
	if c.BorrowFeeWad >= 1_000_000_000_000_000_000 {
		return fmt.Errorf("%w: borrow_fee_wad must be < 1e18", errs.ErrInvalidConfig)
	}
	if c.FlashLoanFeeWad >= 1_000_000_000_000_000_000 {
		return fmt.Errorf("%w: flash_loan_fee_wad must be < 1e18", errs.ErrInvalidConfig)
	}
	if c.HostFeePct > 100 {
		return fmt.Errorf("%w: host_fee_pct must be in [0,100]", errs.ErrInvalidConfig)
	}
	if c.ProtocolLiquidationFeeDecaBps > MaxProtocolLiquidationFeeDecaBps {
		return fmt.Errorf("%w: protocol_liquidation_fee must be <= %d deca-bps", errs.ErrInvalidConfig, MaxProtocolLiquidationFeeDecaBps)
	}
	if c.ProtocolTakeRatePct > 100 {
		return fmt.Errorf("%w: protocol_take_rate must be in [0,100]", errs.ErrInvalidConfig)
	}
	if uint64(c.MaxLiquidationBonusPct)*100+uint64(c.ProtocolLiquidationFeeDecaBps)*10 > 25*100 {
		return fmt.Errorf("%w: max_liq_bonus*100 + protocol_liquidation_fee*10 must be <= 2500", errs.ErrInvalidConfig)
	}
	if c.ReserveType == Isolated && (c.LoanToValuePct != 0 || c.LiquidationThresholdPct != 0) {
		return fmt.Errorf("%w: isolated reserves require ltv = 0 and liq_threshold = 0", errs.ErrInvalidConfig)
	}
	return nil
}

// BorrowWeight returns 1 + added_borrow_weight_bps/10000, always >= 1.
func (c Config) BorrowWeight() (decimal.D, error) {
	bonus := decimal.FromBps(c.AddedBorrowWeightBps)
	return decimal.OneD().TryAdd(bonus)
}

// Reserve is the full per-asset pool record.
type Reserve struct {
	Version          uint8
	LastUpdate       LastUpdate
	LendingMarketID  string
	Liquidity        Liquidity
	Collateral       Collateral
	Config           Config
	RateLimiter      ratelimiter.Limiter
	RateLimiterState ratelimiter.State
}

// New validates cfg and constructs a reserve belonging to the given market
// from the supplied liquidity and collateral books, with a fresh rate-limiter
// state. An unset accumulated-fees field starts at zero.
func New(lendingMarketID string, liquidity Liquidity, collateral Collateral, cfg Config, limiter ratelimiter.Limiter) (*Reserve, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if liquidity.CumulativeBorrowRateWads.IsZero() {
		liquidity.CumulativeBorrowRateWads = decimal.OneD()
	}
	if liquidity.AccumulatedProtocolFeesWads == (decimal.D{}) {
		liquidity.AccumulatedProtocolFeesWads = decimal.ZeroD()
	}
	return &Reserve{
		LendingMarketID:  lendingMarketID,
		Liquidity:        liquidity,
		Collateral:       collateral,
		Config:           cfg,
		RateLimiter:      limiter,
		RateLimiterState: ratelimiter.NewState(),
	}, nil
}
