package accounting

import (
	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
)

// ReplayEquity rebuilds an equity curve from trade history alone. Each instrument is marked at
// its last traded price, so the curve only moves on trades. The first point is the funding of
// the portfolio at CreatedAt.
func ReplayEquity(pf *domain.Portfolio) []domain.EquitySnapshot {
	out := make([]domain.EquitySnapshot, 0, len(pf.Trades)+1)
	out = append(out, domain.NewEquitySnapshot(pf.ID, pf.CreatedAt, pf.InitialBalance, decimal.Zero))

	cash := pf.InitialBalance
	holdings := make(map[string]decimal.Decimal)
	marks := make(map[string]decimal.Decimal)
	for _, t := range pf.Trades {
		cash = cash.Add(t.NetAmount())
		holdings[t.InstrumentID] = holdings[t.InstrumentID].Add(t.SignedQuantity())
		marks[t.InstrumentID] = t.Price

		value := decimal.Zero
		for id, qty := range holdings {
			value = value.Add(qty.Mul(marks[id]))
		}
		out = append(out, domain.NewEquitySnapshot(pf.ID, t.ExecutedAt, cash, value))
	}
	return out
}
