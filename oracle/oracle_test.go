package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/solendgo/lending-engine/decimal"
	"github.com/solendgo/lending-engine/errs"
)

type fixedAdapter struct {
	price decimal.D
	err   error
}

func (f fixedAdapter) Price(_ context.Context, _ string, _ uint64) (Price, error) {
	if f.err != nil {
		return Price{}, f.err
	}
	return Price{Market: f.price, Smoothed: f.price, Kind: KindPyth}, nil
}

func TestSelectorRejectsWhenBothUnconfigured(t *testing.T) {
	var s Selector
	_, err := s.Price(context.Background(), "wsol-mint", 1)
	if !errors.Is(err, errs.ErrNullOracleConfig) {
		t.Fatalf("expected ErrNullOracleConfig, got %v", err)
	}
}

func TestSelectorFallsBackToSecondary(t *testing.T) {
	want := decimal.FromU64(5_500)
	s := Selector{
		Primary:   fixedAdapter{err: errs.ErrStalePriceFeed},
		Secondary: fixedAdapter{price: want},
	}
	p, err := s.Price(context.Background(), "wsol-mint", 1)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if p.Market.Cmp(want) != 0 {
		t.Fatalf("Market = %s, want %s", p.Market, want)
	}
}

func TestSelectorPrefersPrimary(t *testing.T) {
	primaryPrice := decimal.FromU64(1)
	s := Selector{
		Primary:   fixedAdapter{price: primaryPrice},
		Secondary: fixedAdapter{price: decimal.FromU64(2)},
	}
	p, err := s.Price(context.Background(), "usdc-mint", 1)
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if p.Market.Cmp(primaryPrice) != 0 {
		t.Fatalf("Market = %s, want primary price %s", p.Market, primaryPrice)
	}
}

func TestSelectorReturnsErrorWhenBothFail(t *testing.T) {
	s := Selector{
		Primary:   fixedAdapter{err: errs.ErrStalePriceFeed},
		Secondary: fixedAdapter{err: errs.ErrStalePriceFeed},
	}
	_, err := s.Price(context.Background(), "wsol-mint", 1)
	if !errors.Is(err, errs.ErrStalePriceFeed) {
		t.Fatalf("expected ErrStalePriceFeed, got %v", err)
	}
}

func TestNullAdapter(t *testing.T) {
	var a NullAdapter
	_, err := a.Price(context.Background(), "wsol-mint", 1)
	if !errors.Is(err, errs.ErrNullOracleConfig) {
		t.Fatalf("expected ErrNullOracleConfig, got %v", err)
	}
}
