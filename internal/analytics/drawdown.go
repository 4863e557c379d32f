package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Drawdown represents a drawdown period, from the peak until equity first regains it.
type Drawdown struct {
	StartTime    time.Time // Time of the peak
	TroughTime   time.Time
	EndTime      time.Time // Zero while not recovered
	Peak         decimal.Decimal
	Trough       decimal.Decimal
	DepthPercent float64
	Duration     time.Duration // Peak to recovery, or to the last observation if still open
}

// DrawdownSummary holds the drawdown statistics of an equity curve.
type DrawdownSummary struct {
	MaxPercent     float64         // Largest (peak - equity) / peak, as a positive percentage
	MaxAmount      decimal.Decimal // Peak - trough of the deepest drawdown
	CurrentPercent float64         // Drawdown of the last point against its running peak
	Periods        []Drawdown
}

// AnalyzeDrawdowns walks the equity curve tracking the running peak. Non-positive peaks are
// ignored since a percentage decline from them is undefined.
func AnalyzeDrawdowns(series []domain.EquitySnapshot) DrawdownSummary {
	var summary DrawdownSummary
	if len(series) == 0 {
		return summary
	}

	maxRatio := decimal.Zero
	peak := series[0].TotalEquity
	peakTime := series[0].Timestamp
	var current *Drawdown

	for _, s := range series {
		eq := s.TotalEquity
		if eq.GreaterThanOrEqual(peak) {
			if current != nil {
				current.EndTime = s.Timestamp
				current.Duration = current.EndTime.Sub(current.StartTime)
				summary.Periods = append(summary.Periods, *current)
				current = nil
			}
			peak, peakTime = eq, s.Timestamp
			continue
		}
		if !peak.IsPositive() {
			continue
		}

		ratio := peak.Sub(eq).Div(peak)
		if current == nil {
			current = &Drawdown{StartTime: peakTime, Peak: peak, Trough: eq, TroughTime: s.Timestamp}
		}
		if eq.LessThan(current.Trough) {
			current.Trough, current.TroughTime = eq, s.Timestamp
		}
		current.DepthPercent = current.Peak.Sub(current.Trough).Div(current.Peak).Mul(hundred).InexactFloat64()

		if ratio.GreaterThan(maxRatio) {
			maxRatio = ratio
			summary.MaxAmount = peak.Sub(eq)
		}
	}

	last := series[len(series)-1]
	if current != nil {
		current.Duration = last.Timestamp.Sub(current.StartTime)
		summary.Periods = append(summary.Periods, *current)
		summary.CurrentPercent = peak.Sub(last.TotalEquity).Div(peak).Mul(hundred).InexactFloat64()
	}
	summary.MaxPercent = maxRatio.Mul(hundred).InexactFloat64()
	return summary
}
