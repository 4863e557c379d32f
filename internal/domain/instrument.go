package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time price for an instrument.
type Quote struct {
	InstrumentID string
	Symbol       string
	CurrentPrice decimal.Decimal
	PriorPrice   decimal.Decimal // Previous period close (or period open when no close exists)
	Timestamp    time.Time
}

// Age returns how old the quote is relative to now.
func (q Quote) Age(now time.Time) time.Duration {
	if q.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(q.Timestamp)
}

// Change returns CurrentPrice - PriorPrice.
func (q Quote) Change() decimal.Decimal {
	return q.CurrentPrice.Sub(q.PriorPrice)
}
