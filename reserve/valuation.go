package reserve

import "github.com/solendgo/lending-engine/decimal"

// MarketValue returns market_price * amount / scale, the spot valuation of
// a liquidity-denominated amount.
func (r *Reserve) MarketValue(amount decimal.D) (decimal.D, error) {
	p, err := amount.TryMul(r.Liquidity.MarketPrice)
	if err != nil {
		return decimal.D{}, err
	}
	return p.TryDivInt(r.Liquidity.Scale())
}

// MarketValueUpperBound uses max(market, smoothed) - the conservative price
// for anything counted against a borrow limit.
func (r *Reserve) MarketValueUpperBound(amount decimal.D) (decimal.D, error) {
	price := r.Liquidity.MarketPrice.Max(r.Liquidity.SmoothedMarketPrice)
	p, err := amount.TryMul(price)
	if err != nil {
		return decimal.D{}, err
	}
	return p.TryDivInt(r.Liquidity.Scale())
}

// MarketValueLowerBound uses min(market, smoothed) - the conservative price
// for anything counted as collateral.
func (r *Reserve) MarketValueLowerBound(amount decimal.D) (decimal.D, error) {
	price := r.Liquidity.MarketPrice.Min(r.Liquidity.SmoothedMarketPrice)
	p, err := amount.TryMul(price)
	if err != nil {
		return decimal.D{}, err
	}
	return p.TryDivInt(r.Liquidity.Scale())
}

// UsdToLiquidityLowerBound converts a USD value to a liquidity amount using
// the conservative (higher) of the two prices, since it's used to bound how
// much liquidity a given USD borrow headroom can buy.
func (r *Reserve) UsdToLiquidityLowerBound(usd decimal.D) (decimal.D, error) {
	price := r.Liquidity.MarketPrice.Max(r.Liquidity.SmoothedMarketPrice)
	scaled, err := usd.TryMulInt(r.Liquidity.Scale())
	if err != nil {
		return decimal.D{}, err
	}
	return scaled.TryDiv(price)
}
