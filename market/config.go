package market

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/solendgo/lending-engine/reserve"
)

// ReserveDefaults is the starter configuration for a newly created reserve,
// loaded from (or written to) a TOML file the same way node configuration
// is handled elsewhere in this stack: read if present, else write defaults
// and return them.
type ReserveDefaults struct {
	OptimalUtilizationPct uint8 `toml:"optimal_utilization_pct"`
	MaxUtilizationPct     uint8 `toml:"max_utilization_pct"`

	LoanToValuePct uint8 `toml:"loan_to_value_pct"`

	LiquidationBonusPct    uint8 `toml:"liquidation_bonus_pct"`
	MaxLiquidationBonusPct uint8 `toml:"max_liquidation_bonus_pct"`

	LiquidationThresholdPct    uint8 `toml:"liquidation_threshold_pct"`
	MaxLiquidationThresholdPct uint8 `toml:"max_liquidation_threshold_pct"`

	MinBorrowRatePct      uint8  `toml:"min_borrow_rate_pct"`
	OptimalBorrowRatePct  uint8  `toml:"optimal_borrow_rate_pct"`
	MaxBorrowRatePct      uint8  `toml:"max_borrow_rate_pct"`
	SuperMaxBorrowRatePct uint64 `toml:"super_max_borrow_rate_pct"`

	BorrowFeeWad    uint64 `toml:"borrow_fee_wad"`
	FlashLoanFeeWad uint64 `toml:"flash_loan_fee_wad"`
	HostFeePct      uint8  `toml:"host_fee_pct"`

	DepositLimit uint64 `toml:"deposit_limit"`
	BorrowLimit  uint64 `toml:"borrow_limit"`

	ProtocolLiquidationFeeDecaBps uint8  `toml:"protocol_liquidation_fee_deca_bps"`
	ProtocolTakeRatePct           uint8  `toml:"protocol_take_rate_pct"`
	AddedBorrowWeightBps          uint64 `toml:"added_borrow_weight_bps"`
}

// ToReserveConfig converts the loaded defaults into a reserve.Config,
// applying legacy backfill before the caller validates and installs it.
func (d ReserveDefaults) ToReserveConfig(feeReceiverID string, reserveType reserve.ReserveType) reserve.Config {
	cfg := reserve.Config{
		OptimalUtilizationPct:         d.OptimalUtilizationPct,
		MaxUtilizationPct:             d.MaxUtilizationPct,
		LoanToValuePct:                d.LoanToValuePct,
		LiquidationBonusPct:           d.LiquidationBonusPct,
		MaxLiquidationBonusPct:        d.MaxLiquidationBonusPct,
		LiquidationThresholdPct:       d.LiquidationThresholdPct,
		MaxLiquidationThresholdPct:    d.MaxLiquidationThresholdPct,
		MinBorrowRatePct:              d.MinBorrowRatePct,
		OptimalBorrowRatePct:          d.OptimalBorrowRatePct,
		MaxBorrowRatePct:              d.MaxBorrowRatePct,
		SuperMaxBorrowRatePct:         d.SuperMaxBorrowRatePct,
		BorrowFeeWad:                  d.BorrowFeeWad,
		FlashLoanFeeWad:               d.FlashLoanFeeWad,
		HostFeePct:                    d.HostFeePct,
		DepositLimit:                  d.DepositLimit,
		BorrowLimit:                   d.BorrowLimit,
		FeeReceiverID:                 feeReceiverID,
		ProtocolLiquidationFeeDecaBps: d.ProtocolLiquidationFeeDecaBps,
		ProtocolTakeRatePct:           d.ProtocolTakeRatePct,
		AddedBorrowWeightBps:          d.AddedBorrowWeightBps,
		ReserveType:                   reserveType,
	}
	cfg.EnsureDefaults()
	return cfg
}

// DefaultReserveDefaults mirrors a conservative Regular-tier reserve.
func DefaultReserveDefaults() ReserveDefaults {
	return ReserveDefaults{
		OptimalUtilizationPct:      80,
		MaxUtilizationPct:          95,
		LoanToValuePct:             50,
		LiquidationBonusPct:        5,
		MaxLiquidationBonusPct:     10,
		LiquidationThresholdPct:    55,
		MaxLiquidationThresholdPct: 65,
		MinBorrowRatePct:           0,
		OptimalBorrowRatePct:       8,
		MaxBorrowRatePct:           50,
		SuperMaxBorrowRatePct:      200,
		BorrowFeeWad:               100_000_000_000,
		FlashLoanFeeWad:            300_000_000_000,
		HostFeePct:                 20,
		ProtocolLiquidationFeeDecaBps: 10,
		ProtocolTakeRatePct:           10,
	}
}

// LoadReserveDefaults reads path as TOML if it exists; otherwise it writes
// DefaultReserveDefaults() to path and returns them, matching the
// load-or-create-default convention used for node configuration elsewhere
// in this stack.
func LoadReserveDefaults(path string) (ReserveDefaults, error) {
	if _, err := os.Stat(path); err == nil {
		var d ReserveDefaults
		if _, err := toml.DecodeFile(path, &d); err != nil {
			return ReserveDefaults{}, err
		}
		return d, nil
	}

	defaults := DefaultReserveDefaults()
	f, err := os.Create(path)
	if err != nil {
		return ReserveDefaults{}, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(defaults); err != nil {
		return ReserveDefaults{}, err
	}
	return defaults, nil
}
