// Package market implements the top-level operations that coordinate
// reserves, an obligation, and both rate limiters: deposit, withdraw,
// borrow, repay, liquidate, redeem-fees, forgive-debt, refresh, and flash
// loans. The engine takes every reserve and obligation it touches as an
// explicit argument — there is no process-wide mutable state (§9) — so
// callers own persistence and concurrency control.
package market

import (
	"github.com/solendgo/lending-engine/ratelimiter"
)

// AccountID is an opaque identifier for any external account this engine
// references: an obligation owner, a lending-market owner or risk
// authority, a whitelisted liquidator, or a token-custody account. The
// engine never interprets its structure; account-layout and signature
// verification are external collaborators (§6).
type AccountID string

// TokenMovement is one leg of a token-custody intent the engine emits
// instead of executing: move Amount of the mint backing ReserveID's
// liquidity or collateral between two accounts. Token custody (§6) is
// responsible for actually executing these.
type TokenMovement struct {
	ReserveID string
	MintID    string
	FromID    AccountID
	ToID      AccountID
	Amount    uint64
}

// LendingMarket is the top-level container record.
type LendingMarket struct {
	ID                      string
	OwnerID                 AccountID
	RiskAuthorityID         AccountID
	WhitelistedLiquidatorID AccountID // empty means unrestricted liquidation
	QuoteCurrency           string
	RateLimiter             ratelimiter.Limiter
	RateLimiterState        ratelimiter.State
}

// HasWhitelistedLiquidator reports whether liquidation is restricted to a
// single designated account.
func (m *LendingMarket) HasWhitelistedLiquidator() bool {
	return m.WhitelistedLiquidatorID != ""
}
