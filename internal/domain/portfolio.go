package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio holds cash, the active positions and the full trade history.
// Positions and Trades are owned by the portfolio.
type Portfolio struct {
	ID             string
	Name           string
	InitialBalance decimal.Decimal // Immutable after creation
	CashBalance    decimal.Decimal
	Positions      map[string]*Position // Active (open) positions keyed by instrument ID
	Trades         []*Trade             // Ordered by ExecutedAt, ties by Sequence
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64 // Stored revision this state was read at, zero until first persisted
}

// NewPortfolio creates an empty portfolio funded with initialBalance.
func NewPortfolio(id, name string, initialBalance decimal.Decimal, now time.Time) *Portfolio {
	return &Portfolio{
		ID:             id,
		Name:           name,
		InitialBalance: initialBalance,
		CashBalance:    initialBalance,
		Positions:      make(map[string]*Position),
		Trades:         make([]*Trade, 0),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Position returns the open position for an instrument or nil.
func (p *Portfolio) Position(instrumentID string) *Position {
	pos, ok := p.Positions[instrumentID]
	if !ok || !pos.IsOpen() {
		return nil
	}
	return pos
}

// OpenPositions returns the active positions sorted by symbol.
func (p *Portfolio) OpenPositions() []*Position {
	out := make([]*Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		if pos.IsOpen() {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].InstrumentID < out[j].InstrumentID
	})
	return out
}

// NextSequence returns the sequence number for the next appended trade.
func (p *Portfolio) NextSequence() int64 {
	var max int64
	for _, t := range p.Trades {
		if t.Sequence > max {
			max = t.Sequence
		}
	}
	return max + 1
}

// AppendTrade inserts a trade keeping history ordered by ExecutedAt then Sequence.
func (p *Portfolio) AppendTrade(t *Trade) {
	i := sort.Search(len(p.Trades), func(i int) bool { return t.Before(p.Trades[i]) })
	p.Trades = append(p.Trades, nil)
	copy(p.Trades[i+1:], p.Trades[i:])
	p.Trades[i] = t
}

// Clone deep-copies the mutable parts of the portfolio. Trades are immutable and shared.
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	c := *p
	c.Positions = make(map[string]*Position, len(p.Positions))
	for k, pos := range p.Positions {
		c.Positions[k] = pos.Clone()
	}
	c.Trades = make([]*Trade, len(p.Trades))
	copy(c.Trades, p.Trades)
	return &c
}
