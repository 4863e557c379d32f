package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRequest is a trade intent coming from the presentation layer.
// A zero Price means "execute at the current quote".
type TradeRequest struct {
	PortfolioID  string
	InstrumentID string
	Side         OrderSide
	Quantity     decimal.Decimal
	Price        decimal.Decimal
}

// Trade represents a committed (or proposed) execution. Committed trades are never edited;
// a correction is a new offsetting trade.
type Trade struct {
	ID           string          // ULID, sortable by creation time
	PortfolioID  string          // Owning portfolio
	InstrumentID string          // Instrument reference (identity only)
	Symbol       string          // Instrument symbol at execution time
	Side         OrderSide       // BUY or SELL
	Quantity     decimal.Decimal // Always > 0
	Price        decimal.Decimal // Execution price, > 0
	Commission   decimal.Decimal // TotalAmount * commission rate
	TotalAmount  decimal.Decimal // Quantity * Price
	RealizedPnL  decimal.Decimal // P&L locked in by the part of this trade that reduced a position
	Reducing     bool            // True when the trade reduced or closed an existing position
	ExecutedAt   time.Time
	Sequence     int64 // Insertion order within the portfolio, breaks ExecutedAt ties
}

// NetAmount is the cash impact of the trade: -(total+commission) for a Buy,
// +(total-commission) for a Sell.
func (t *Trade) NetAmount() decimal.Decimal {
	if t.Side == Buy {
		return t.TotalAmount.Add(t.Commission).Neg()
	}
	return t.TotalAmount.Sub(t.Commission)
}

// SignedQuantity returns the quantity with the trade direction applied.
func (t *Trade) SignedQuantity() decimal.Decimal {
	if t.Side == Sell {
		return t.Quantity.Neg()
	}
	return t.Quantity
}

// Before orders trades by ExecutedAt, then by Sequence.
func (t *Trade) Before(o *Trade) bool {
	if !t.ExecutedAt.Equal(o.ExecutedAt) {
		return t.ExecutedAt.Before(o.ExecutedAt)
	}
	return t.Sequence < o.Sequence
}
