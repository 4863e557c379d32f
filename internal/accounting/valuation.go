// Package accounting derives position and portfolio values from ledger state and quotes.
// Nothing here is persisted; values are recomputed on demand.
package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

var hundred = decimal.NewFromInt(100)

// PositionValuation is an open position marked to a quote.
type PositionValuation struct {
	InstrumentID         string
	Symbol               string
	Side                 domain.PositionSide
	Quantity             decimal.Decimal // Signed
	AverageEntryPrice    decimal.Decimal
	CurrentPrice         decimal.Decimal
	PriorPrice           decimal.Decimal
	CostBasis            decimal.Decimal // AverageEntryPrice * |Quantity|
	MarketValue          decimal.Decimal // Quantity * CurrentPrice, negative for shorts
	UnrealizedPnL        decimal.Decimal
	UnrealizedPnLPercent decimal.Decimal
	RealizedPnL          decimal.Decimal
	DayChange            decimal.Decimal // Quantity * (CurrentPrice - PriorPrice)
	Weight               decimal.Decimal // |MarketValue| / TotalEquity * 100, set by ValuePortfolio
}

// PortfolioValuation aggregates all positions of a portfolio.
type PortfolioValuation struct {
	PortfolioID         string
	AsOf                time.Time
	InitialBalance      decimal.Decimal
	CashBalance         decimal.Decimal
	Positions           []PositionValuation // Sorted by symbol
	TotalPositionsValue decimal.Decimal
	TotalEquity         decimal.Decimal
	TotalReturn         decimal.Decimal
	TotalReturnPercent  decimal.Decimal
	UnrealizedPnL       decimal.Decimal
	RealizedPnL         decimal.Decimal // Over the full trade history, including closed positions
	DayChange           decimal.Decimal
}

// ValuePosition marks a position to the quote's current price.
func ValuePosition(pos *domain.Position, q domain.Quote) PositionValuation {
	cost := pos.AverageEntryPrice.Mul(pos.AbsQuantity())
	unrealized := q.CurrentPrice.Sub(pos.AverageEntryPrice).Mul(pos.Quantity)

	pct := decimal.Zero
	if !cost.IsZero() {
		pct = unrealized.Div(cost).Mul(hundred)
	}

	if q.PriorPrice.IsZero() {
		q.PriorPrice = q.CurrentPrice
	}

	return PositionValuation{
		InstrumentID:         pos.InstrumentID,
		Symbol:               pos.Symbol,
		Side:                 pos.Side(),
		Quantity:             pos.Quantity,
		AverageEntryPrice:    pos.AverageEntryPrice,
		CurrentPrice:         q.CurrentPrice,
		PriorPrice:           q.PriorPrice,
		CostBasis:            cost,
		MarketValue:          pos.Quantity.Mul(q.CurrentPrice),
		UnrealizedPnL:        unrealized,
		UnrealizedPnLPercent: pct,
		RealizedPnL:          pos.RealizedPnL,
		DayChange:            q.Change().Mul(pos.Quantity),
	}
}

// ValuePortfolio marks every open position of pf. quotes must hold a quote for each of them.
func ValuePortfolio(pf *domain.Portfolio, quotes map[string]domain.Quote, asOf time.Time) (*PortfolioValuation, error) {
	v := &PortfolioValuation{
		PortfolioID:    pf.ID,
		AsOf:           asOf,
		InitialBalance: pf.InitialBalance,
		CashBalance:    pf.CashBalance,
	}

	for _, pos := range pf.OpenPositions() {
		q, ok := quotes[pos.InstrumentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ports.ErrQuoteUnavailable, pos.InstrumentID)
		}
		pv := ValuePosition(pos, q)
		v.Positions = append(v.Positions, pv)
		v.TotalPositionsValue = v.TotalPositionsValue.Add(pv.MarketValue)
		v.UnrealizedPnL = v.UnrealizedPnL.Add(pv.UnrealizedPnL)
		v.DayChange = v.DayChange.Add(pv.DayChange)
	}

	for _, t := range pf.Trades {
		v.RealizedPnL = v.RealizedPnL.Add(t.RealizedPnL)
	}

	v.TotalEquity = v.CashBalance.Add(v.TotalPositionsValue)
	v.TotalReturn = v.TotalEquity.Sub(v.InitialBalance)
	if !v.InitialBalance.IsZero() {
		v.TotalReturnPercent = v.TotalReturn.Div(v.InitialBalance).Mul(hundred)
	}
	if v.TotalEquity.IsPositive() {
		for i := range v.Positions {
			v.Positions[i].Weight = v.Positions[i].MarketValue.Abs().Div(v.TotalEquity).Mul(hundred)
		}
	}
	return v, nil
}

// Snapshot turns a valuation into a point on the equity curve.
func (v *PortfolioValuation) Snapshot() domain.EquitySnapshot {
	return domain.NewEquitySnapshot(v.PortfolioID, v.AsOf, v.CashBalance, v.TotalPositionsValue)
}

// Snapshot values pf against quotes and returns the resulting equity point.
func Snapshot(pf *domain.Portfolio, quotes map[string]domain.Quote, asOf time.Time) (domain.EquitySnapshot, error) {
	v, err := ValuePortfolio(pf, quotes, asOf)
	if err != nil {
		return domain.EquitySnapshot{}, err
	}
	return v.Snapshot(), nil
}

// QuotesFor fetches a quote for every open position of pf.
func QuotesFor(ctx context.Context, src ports.QuoteSource, pf *domain.Portfolio) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(pf.Positions))
	for _, pos := range pf.OpenPositions() {
		q, err := src.GetQuote(ctx, pos.InstrumentID)
		if err != nil {
			return nil, fmt.Errorf("quote %s: %w", pos.InstrumentID, err)
		}
		out[pos.InstrumentID] = q
	}
	return out, nil
}
