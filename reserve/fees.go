package reserve

import (
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
)

// MaxU64 is the borrow/repay/liquidate "use everything available" sentinel,
// equivalent to the source's u64::MAX convention.
const MaxU64 = ^uint64(0)

// calculateFees implements the borrow-fee and host-fee split shared by
// exclusive (caller requested a fixed receive amount) and inclusive (caller
// requested max-borrow) calculations. amount is the base the fee rate is
// applied to: the requested amount in the exclusive case, or the floored
// borrow amount before fee subtraction in the inclusive case.
func (r *Reserve) calculateFees(amount decimal.D, calc FeeCalculation) (borrowFee uint64, hostFee uint64, err error) {
	feeRate := decimal.FromRawU64(r.Config.BorrowFeeWad)
	if feeRate.IsZero() {
		return 0, 0, nil
	}

	var feeAmount decimal.D
	switch calc {
	case Inclusive:
		denom, err := feeRate.TryAdd(decimal.OneD())
		if err != nil {
			return 0, 0, err
		}
		adjusted, err := feeRate.TryDiv(denom)
		if err != nil {
			return 0, 0, err
		}
		feeAmount, err = amount.TryMul(adjusted)
		if err != nil {
			return 0, 0, err
		}
	default:
		feeAmount, err = amount.TryMul(feeRate)
		if err != nil {
			return 0, 0, err
		}
	}

	hostFeeNeeded := r.Config.HostFeePct > 0
	minimumFee := decimal.FromU64(1)
	if hostFeeNeeded {
		minimumFee = decimal.FromU64(2)
	}
	borrowFeeDec := feeAmount.Max(minimumFee)

	if borrowFeeDec.Cmp(amount) >= 0 {
		return 0, 0, fmt.Errorf("%w: borrow fee %s would consume the entire amount %s", errs.ErrBorrowTooSmall, borrowFeeDec, amount)
	}

	borrowFeeU64, err := borrowFeeDec.RoundU64()
	if err != nil {
		return 0, 0, err
	}

	hostFeeU64 := uint64(0)
	if hostFeeNeeded {
		hostFeeDec, err := borrowFeeDec.TryMul(decimal.FromPercent(r.Config.HostFeePct))
		if err != nil {
			return 0, 0, err
		}
		hostFeeU64, err = hostFeeDec.RoundU64()
		if err != nil {
			return 0, 0, err
		}
		if hostFeeU64 == 0 {
			hostFeeU64 = 1
		}
	}

	return borrowFeeU64, hostFeeU64, nil
}
