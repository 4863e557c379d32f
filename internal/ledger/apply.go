package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
)

// applyTrade moves cash and updates the position for a validated trade. pf must be a private
// clone: it is mutated in place. The trade's RealizedPnL and Reducing fields are filled in.
func applyTrade(pf *domain.Portfolio, t *domain.Trade, now time.Time) {
	pf.CashBalance = pf.CashBalance.Add(t.NetAmount())

	pos := pf.Position(t.InstrumentID)
	if pos == nil {
		pf.Positions[t.InstrumentID] = &domain.Position{
			InstrumentID:      t.InstrumentID,
			Symbol:            t.Symbol,
			Quantity:          t.SignedQuantity(),
			AverageEntryPrice: t.Price,
			Status:            domain.StatusOpen,
			OpenedAt:          now,
			UpdatedAt:         now,
		}
		pf.AppendTrade(t)
		return
	}

	pos.UpdatedAt = now
	held := pos.AbsQuantity()

	if int64(pos.Quantity.Sign()) == t.Side.Sign() {
		cost := held.Mul(pos.AverageEntryPrice).Add(t.Quantity.Mul(t.Price))
		newQty := held.Add(t.Quantity)
		pos.AverageEntryPrice = cost.Div(newQty)
		pos.Quantity = pos.Quantity.Add(t.SignedQuantity())
		pf.AppendTrade(t)
		return
	}

	matched := decimal.Min(t.Quantity, held)
	direction := decimal.NewFromInt(int64(pos.Quantity.Sign()))
	pnl := t.Price.Sub(pos.AverageEntryPrice).Mul(matched).Mul(direction)
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	t.RealizedPnL = pnl
	t.Reducing = true

	remaining := held.Sub(matched)
	excess := t.Quantity.Sub(matched)
	switch {
	case remaining.IsPositive():
		pos.Quantity = remaining.Mul(direction)
	case excess.IsPositive():
		pos.Quantity = excess.Mul(decimal.NewFromInt(t.Side.Sign()))
		pos.AverageEntryPrice = t.Price
		pos.OpenedAt = now
	default:
		pos.Quantity = decimal.Zero
		pos.Status = domain.StatusClosed
		pos.ClosedAt = now
		delete(pf.Positions, t.InstrumentID)
	}
	pf.AppendTrade(t)
}
