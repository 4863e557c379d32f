package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquitySnapshot is a point on a portfolio's equity curve.
type EquitySnapshot struct {
	PortfolioID          string
	Timestamp            time.Time
	CashBalance          decimal.Decimal
	PositionsMarketValue decimal.Decimal
	TotalEquity          decimal.Decimal // CashBalance + PositionsMarketValue
}

// NewEquitySnapshot builds a snapshot, deriving TotalEquity.
func NewEquitySnapshot(portfolioID string, ts time.Time, cash, positionsValue decimal.Decimal) EquitySnapshot {
	return EquitySnapshot{
		PortfolioID:          portfolioID,
		Timestamp:            ts,
		CashBalance:          cash,
		PositionsMarketValue: positionsValue,
		TotalEquity:          cash.Add(positionsValue),
	}
}

// BenchmarkPoint is a closing level of the benchmark series (e.g. a market index or BTC).
type BenchmarkPoint struct {
	Symbol string
	Time   time.Time
	Close  decimal.Decimal
}
