// Package ratelimiter implements the sliding-window outflow cap shared by
// every reserve (denominated in native token units) and the lending market
// (denominated in quote-currency value). The same Limiter type serves both;
// callers choose the unit by the decimal.D values they pass in.
package ratelimiter

import (
	"fmt"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
)

// Limiter holds the static configuration of a rate limiter: a window length
// in slots and a cap on cumulative outflow within any window. W = 0 disables
// the limiter entirely.
type Limiter struct {
	Window uint64
	Cap    decimal.D
}

// State is the mutable rolling state of a Limiter instance. It is owned by
// the reserve or market record the limiter guards and is passed by value in
// and out of every call here so the caller controls persistence.
type State struct {
	CurSlot uint64
	CurQty  decimal.D
	PrevQty decimal.D
}

// NewState returns a freshly initialized State with no accumulated outflow.
func NewState() State {
	return State{CurSlot: 0, CurQty: decimal.ZeroD(), PrevQty: decimal.ZeroD()}
}

// Usage returns the effective cumulative outflow at slot s per spec §4.2:
// the current window's quantity plus the decaying share of the previous
// window still inside a W-slot lookback from s.
func (l Limiter) Usage(st State, s uint64) (decimal.D, error) {
	if l.Window == 0 {
		return st.CurQty, nil
	}
	if s < st.CurSlot {
		return st.CurQty, nil
	}
	elapsed := s - st.CurSlot
	lastSlot := st.CurSlot + l.Window - 1
	prevShare := decimal.ZeroD()
	if s >= st.CurSlot && s < lastSlot+1 && elapsed < l.Window {
		remaining := l.Window - elapsed
		var err error
		prevShare, err = st.PrevQty.TryMulInt(remaining)
		if err != nil {
			return decimal.D{}, err
		}
		prevShare, err = prevShare.TryDivInt(l.Window)
		if err != nil {
			return decimal.D{}, err
		}
	}
	return prevShare.TryAdd(st.CurQty)
}

// Remaining returns max(0, Cap - Usage(s)).
func (l Limiter) Remaining(st State, s uint64) (decimal.D, error) {
	used, err := l.Usage(st, s)
	if err != nil {
		return decimal.D{}, err
	}
	if used.Cmp(l.Cap) >= 0 {
		return decimal.ZeroD(), nil
	}
	return l.Cap.TrySub(used)
}

// Update advances st to slot s, applying window-shift/reset rules, then
// debits q against the remaining allowance. It fails with
// errs.ErrOutflowRateLimitExceeded if usage(s)+q would exceed Cap. On any
// error it returns a zero State, which the caller must discard, keeping its
// prior state.
func (l Limiter) Update(st State, s uint64, q decimal.D) (State, error) {
	if l.Window == 0 {
		next := st
		var err error
		next.CurQty, err = next.CurQty.TryAdd(q)
		if err != nil {
			return State{}, err
		}
		return next, nil
	}

	next := st
	switch {
	case s >= next.CurSlot && s < next.CurSlot+2*l.Window:
		shift := (s - next.CurSlot) / l.Window
		if shift >= 1 {
			next.PrevQty = next.CurQty
			next.CurQty = decimal.ZeroD()
			next.CurSlot = next.CurSlot + l.Window*shift
		}
	case s >= next.CurSlot+2*l.Window:
		next.PrevQty = decimal.ZeroD()
		next.CurQty = decimal.ZeroD()
		next.CurSlot = s
	default:
		// s < CurSlot: slots never move backwards in practice; treat the
		// window as unchanged (elapsed 0 at the original CurSlot).
	}

	usage, err := l.Usage(next, s)
	if err != nil {
		return State{}, err
	}
	projected, err := usage.TryAdd(q)
	if err != nil {
		return State{}, err
	}
	if projected.Cmp(l.Cap) > 0 {
		return State{}, fmt.Errorf("%w: usage %s + request %s exceeds cap %s",
			errs.ErrOutflowRateLimitExceeded, usage, q, l.Cap)
	}
	next.CurQty, err = next.CurQty.TryAdd(q)
	if err != nil {
		return State{}, err
	}
	return next, nil
}
