package analytics

import (
	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
)

// TradeStats summarises realized outcomes over the full trade history. Only trades that
// reduced or closed a position count as closed trades.
type TradeStats struct {
	TotalTrades          int
	ClosedTrades         int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64 // Percentage of closed trades with positive realized P&L
	TotalRealizedPnL     decimal.Decimal
	TotalCommission      decimal.Decimal
	AverageWin           decimal.Decimal
	AverageLoss          decimal.Decimal // Negative or zero
	ProfitFactor         float64         // Gross profit / gross loss, zero when there is no loss
	Expectancy           decimal.Decimal // Average realized P&L per closed trade
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
}

// AnalyzeTrades computes TradeStats. trades must be in execution order for the streak counts.
func AnalyzeTrades(trades []*domain.Trade) TradeStats {
	stats := TradeStats{TotalTrades: len(trades)}

	var grossProfit, grossLoss decimal.Decimal
	var wins, losses int
	for _, t := range trades {
		stats.TotalCommission = stats.TotalCommission.Add(t.Commission)
		if !t.Reducing {
			continue
		}
		stats.ClosedTrades++
		stats.TotalRealizedPnL = stats.TotalRealizedPnL.Add(t.RealizedPnL)

		if t.RealizedPnL.IsPositive() {
			stats.WinningTrades++
			grossProfit = grossProfit.Add(t.RealizedPnL)
			wins++
			losses = 0
		} else {
			stats.LosingTrades++
			grossLoss = grossLoss.Add(t.RealizedPnL)
			losses++
			wins = 0
		}
		if wins > stats.MaxConsecutiveWins {
			stats.MaxConsecutiveWins = wins
		}
		if losses > stats.MaxConsecutiveLosses {
			stats.MaxConsecutiveLosses = losses
		}
	}

	if stats.ClosedTrades == 0 {
		return stats
	}
	closed := decimal.NewFromInt(int64(stats.ClosedTrades))
	stats.WinRate = decimal.NewFromInt(int64(stats.WinningTrades)).Div(closed).Mul(hundred).InexactFloat64()
	stats.Expectancy = stats.TotalRealizedPnL.Div(closed)
	if stats.WinningTrades > 0 {
		stats.AverageWin = grossProfit.Div(decimal.NewFromInt(int64(stats.WinningTrades)))
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = grossLoss.Div(decimal.NewFromInt(int64(stats.LosingTrades)))
	}
	if grossLoss.IsNegative() {
		stats.ProfitFactor = grossProfit.Div(grossLoss.Neg()).InexactFloat64()
	}
	return stats
}
