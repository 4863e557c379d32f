package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an open holding of one instrument in a portfolio.
// Quantity is signed: positive for long, negative for short.
type Position struct {
	InstrumentID      string
	Symbol            string
	Quantity          decimal.Decimal
	AverageEntryPrice decimal.Decimal
	RealizedPnL       decimal.Decimal // Accumulated over the life of the position
	Status            PositionStatus
	OpenedAt          time.Time
	UpdatedAt         time.Time
	ClosedAt          time.Time // Zero while open
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Side derives the direction from the quantity sign.
func (p *Position) Side() PositionSide {
	switch p.Quantity.Sign() {
	case 1:
		return Long
	case -1:
		return Short
	default:
		return Flat
	}
}

// AbsQuantity returns |Quantity|.
func (p *Position) AbsQuantity() decimal.Decimal {
	return p.Quantity.Abs()
}

// Clone returns a copy safe to mutate independently.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
