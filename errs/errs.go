// Package errs centralizes the engine's error taxonomy. Every operation in
// reserve, obligation, and market returns one of these sentinels (wrapped
// with context via fmt.Errorf's %w) rather than inventing ad hoc strings, so
// callers can classify failures with errors.Is. The one exception is a
// paused action, which market operations report as
// native/common.ErrActionPaused.
package errs

import "errors"

// Input errors: the caller supplied something invalid.
var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidConfig            = errors.New("invalid config")
	ErrInvalidAccountInput      = errors.New("invalid account input")
	ErrInvalidSigner            = errors.New("invalid signer")
	ErrInvalidMarketOwner       = errors.New("invalid market owner")
	ErrNotWhitelistedLiquidator = errors.New("not whitelisted liquidator")
	ErrInvalidOracleConfig      = errors.New("invalid oracle config")
)

// State errors: the request is well-formed but the current state forbids it.
var (
	ErrReserveStale               = errors.New("reserve stale")
	ErrObligationStale            = errors.New("obligation stale")
	ErrObligationHealthy          = errors.New("obligation healthy")
	ErrInsufficientLiquidity      = errors.New("insufficient liquidity")
	ErrIsolatedTierAssetViolation = errors.New("isolated tier asset violation")
)

// Policy errors: the request violates a configured limit.
var (
	ErrBorrowTooLarge           = errors.New("borrow too large")
	ErrBorrowTooSmall           = errors.New("borrow too small")
	ErrLiquidationTooSmall      = errors.New("liquidation too small")
	ErrOutflowRateLimitExceeded = errors.New("outflow rate limit exceeded")
	ErrDepositLimitExceeded     = errors.New("deposit limit exceeded")
	ErrBorrowLimitExceeded      = errors.New("borrow limit exceeded")
)

// Arithmetic errors: checked math failed. The engine never retries or
// recovers from these; they abort the operation whole.
var (
	ErrMathOverflow = errors.New("math overflow")
)

// StalePriceFeed and NullOracleConfig are produced by oracle adapters (§6)
// and surfaced verbatim by refresh operations.
var (
	ErrStalePriceFeed   = errors.New("stale price feed")
	ErrNullOracleConfig = errors.New("null oracle config")
)
