// Package oracle defines the price-feed collaborator contract consumed by
// reserve refresh. This package contains only the adapter interface and a
// tagged-variant selector; concrete feed integrations (Pyth, Switchboard,
// or any other vendor) are external and out of scope here.
package oracle

import (
	"context"
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
)

// Kind tags which underlying feed backs an Adapter, mirroring the
// {Pyth, Switchboard, Null} tagged variant.
type Kind int

const (
	KindNull Kind = iota
	KindPyth
	KindSwitchboard
)

func (k Kind) String() string {
	switch k {
	case KindPyth:
		return "pyth"
	case KindSwitchboard:
		return "switchboard"
	default:
		return "null"
	}
}

// Price is the result of reading a feed: the instantaneous market price and
// a smoothed (e.g. TWAP/EMA) price, both in the market's quote currency and
// both wad-scaled D values.
type Price struct {
	Market   decimal.D
	Smoothed decimal.D
	Kind     Kind
}

// Adapter is the capability set a reserve needs from a price feed: given a
// mint identifier and the current slot, return a Price or fail with
// errs.ErrStalePriceFeed / errs.ErrNullOracleConfig.
type Adapter interface {
	Price(ctx context.Context, mintID string, slot uint64) (Price, error)
}

// Selector composes up to two underlying adapters (e.g. Pyth and
// Switchboard) behind the tagged-variant policy described in the design
// notes: at least one of the two configured feeds must resolve to a
// non-null price, and both may be present.
type Selector struct {
	Primary   Adapter
	Secondary Adapter
}

// Price tries Primary first, falling back to Secondary. It fails with
// errs.ErrNullOracleConfig if neither adapter is configured.
func (s Selector) Price(ctx context.Context, mintID string, slot uint64) (Price, error) {
	if s.Primary == nil && s.Secondary == nil {
		return Price{}, fmt.Errorf("%w: no oracle configured for mint %s", errs.ErrNullOracleConfig, mintID)
	}
	var firstErr error
	if s.Primary != nil {
		p, err := s.Primary.Price(ctx, mintID, slot)
		if err == nil {
			return p, nil
		}
		firstErr = err
	}
	if s.Secondary != nil {
		p, err := s.Secondary.Price(ctx, mintID, slot)
		if err == nil {
			return p, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return Price{}, firstErr
}

// NullAdapter always fails with errs.ErrNullOracleConfig; it models an
// unconfigured feed slot and is useful as a test double for the "at least
// one feed must be non-null" rule.
type NullAdapter struct{}

func (NullAdapter) Price(ctx context.Context, mintID string, slot uint64) (Price, error) {
	return Price{}, fmt.Errorf("%w: mint %s", errs.ErrNullOracleConfig, mintID)
}
