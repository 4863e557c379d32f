package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"paperTrader/internal/domain"
)

// Returns computes simple returns between consecutive levels. A pair whose earlier level is
// zero has no defined return and is skipped.
func Returns(levels []decimal.Decimal) []float64 {
	if len(levels) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(levels)-1)
	for i := 1; i < len(levels); i++ {
		prev := levels[i-1]
		if prev.IsZero() {
			continue
		}
		out = append(out, levels[i].Sub(prev).Div(prev).InexactFloat64())
	}
	return out
}

// EquityLevels extracts TotalEquity from a series.
func EquityLevels(series []domain.EquitySnapshot) []decimal.Decimal {
	out := make([]decimal.Decimal, len(series))
	for i, s := range series {
		out[i] = s.TotalEquity
	}
	return out
}

// DailyReturns is Returns over the equity series.
func DailyReturns(series []domain.EquitySnapshot) []float64 {
	return Returns(EquityLevels(series))
}

// DailyCloses keeps the last snapshot of every UTC day, ordered by time.
func DailyCloses(series []domain.EquitySnapshot) []domain.EquitySnapshot {
	sorted := make([]domain.EquitySnapshot, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	out := make([]domain.EquitySnapshot, 0, len(sorted))
	for _, s := range sorted {
		if n := len(out); n > 0 && dayKey(out[n-1].Timestamp) == dayKey(s.Timestamp) {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// alignedReturns matches equity and benchmark levels on UTC days they share and returns the
// returns of both over those common days.
func alignedReturns(equity []domain.EquitySnapshot, benchmark []domain.BenchmarkPoint) (port, bench []float64) {
	eq := make(map[string]decimal.Decimal, len(equity))
	for _, s := range equity {
		eq[dayKey(s.Timestamp)] = s.TotalEquity
	}
	bm := make(map[string]decimal.Decimal, len(benchmark))
	for _, p := range benchmark {
		bm[dayKey(p.Time)] = p.Close
	}

	days := make([]string, 0, len(eq))
	for d := range eq {
		if _, ok := bm[d]; ok {
			days = append(days, d)
		}
	}
	sort.Strings(days)

	for i := 1; i < len(days); i++ {
		pe, ce := eq[days[i-1]], eq[days[i]]
		pb, cb := bm[days[i-1]], bm[days[i]]
		if pe.IsZero() || pb.IsZero() {
			continue
		}
		port = append(port, ce.Sub(pe).Div(pe).InexactFloat64())
		bench = append(bench, cb.Sub(pb).Div(pb).InexactFloat64())
	}
	return port, bench
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// stdDev is the sample standard deviation, zero for fewer than two observations.
func stdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	sd := stat.StdDev(x, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

// percentile returns the empirical p-quantile (0 < p < 1) of x.
func percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// tailMean is the mean of the observations at or below the p-quantile.
func tailMean(x []float64, p float64) float64 {
	cut := percentile(x, p)
	var tail []float64
	for _, v := range x {
		if v <= cut {
			tail = append(tail, v)
		}
	}
	return mean(tail)
}
