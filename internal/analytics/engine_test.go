package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/domain"
)

var day0 = time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func curve(levels ...string) []domain.EquitySnapshot {
	out := make([]domain.EquitySnapshot, len(levels))
	for i, l := range levels {
		out[i] = domain.NewEquitySnapshot("p1", day0.AddDate(0, 0, i), dec(l), decimal.Zero)
	}
	return out
}

func bench(levels ...string) []domain.BenchmarkPoint {
	out := make([]domain.BenchmarkPoint, len(levels))
	for i, l := range levels {
		// Benchmark closes at midnight; alignment is by UTC day, not instant.
		out[i] = domain.BenchmarkPoint{Symbol: "IDX", Time: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC), Close: dec(l)}
	}
	return out
}

func TestComputeMetrics_MaxDrawdown(t *testing.T) {
	e := NewEngine(DefaultConfig())
	r := e.ComputeMetrics(curve("100", "90", "95", "80", "120"), nil, nil)

	assert.Equal(t, 20.0, r.MaxDrawdownPercent)
	assert.True(t, dec("20").Equal(r.MaxDrawdownAmount))
	assert.Equal(t, 0.0, r.CurrentDrawdownPercent)
	require.Len(t, r.Drawdowns, 1)
	dd := r.Drawdowns[0]
	assert.Equal(t, day0, dd.StartTime)
	assert.Equal(t, day0.AddDate(0, 0, 3), dd.TroughTime)
	assert.Equal(t, day0.AddDate(0, 0, 4), dd.EndTime)
	assert.Equal(t, 20.0, dd.DepthPercent)
}

func TestComputeMetrics_OpenDrawdown(t *testing.T) {
	r := NewEngine(DefaultConfig()).ComputeMetrics(curve("100", "120", "90", "96"), nil, nil)
	assert.Equal(t, 25.0, r.MaxDrawdownPercent)
	assert.Equal(t, 20.0, r.CurrentDrawdownPercent)
	require.Len(t, r.Drawdowns, 1)
	assert.True(t, r.Drawdowns[0].EndTime.IsZero())
}

func TestComputeMetrics_FlatEquityHasNoDivisionFault(t *testing.T) {
	r := NewEngine(DefaultConfig()).ComputeMetrics(curve("100", "100", "100"), bench("50", "50", "50"), nil)

	assert.Equal(t, 0.0, r.AnnualizedVolatility)
	assert.Equal(t, 0.0, r.SharpeRatio)
	assert.False(t, math.IsNaN(r.SharpeRatio))
	assert.Nil(t, r.Beta, "benchmark variance is zero")
	assert.Nil(t, r.Correlation)
	assert.True(t, r.VaR95.IsZero())
}

func TestComputeMetrics_SharpeAndVolatility(t *testing.T) {
	r := NewEngine(DefaultConfig()).ComputeMetrics(curve("100", "110", "99"), nil, nil)

	sd := math.Sqrt(0.02) // sample stddev of {0.1, -0.1}
	vol := sd * math.Sqrt(252)
	assert.InDelta(t, vol, r.AnnualizedVolatility, 1e-9)
	assert.InDelta(t, (0-0.02)/vol, r.SharpeRatio, 1e-9)
	assert.Equal(t, 2, r.ReturnCount)
}

func TestComputeMetrics_ValueAtRisk(t *testing.T) {
	r := NewEngine(DefaultConfig()).ComputeMetrics(curve("100", "120", "96", "115.2"), nil, nil)

	// Returns are 0.2, -0.2, 0.2; the 5th percentile is the worst of them.
	assert.True(t, dec("23.04").Equal(r.VaR95), "got %s", r.VaR95)
	assert.True(t, dec("23.04").Equal(r.VaR99), "got %s", r.VaR99)
	assert.True(t, dec("23.04").Equal(r.CVaR95), "got %s", r.CVaR95)
}

func TestComputeMetrics_BetaAgainstBenchmark(t *testing.T) {
	// Portfolio moves exactly twice as much as the benchmark.
	equity := curve("100", "120", "96", "115.2")
	r := NewEngine(DefaultConfig()).ComputeMetrics(equity, bench("100", "110", "99", "108.9"), nil)

	require.NotNil(t, r.Beta)
	assert.InDelta(t, 2.0, *r.Beta, 1e-9)
	require.NotNil(t, r.Correlation)
	assert.InDelta(t, 1.0, *r.Correlation, 1e-9)
	require.NotNil(t, r.TrackingError)
	assert.Equal(t, 3, r.BenchmarkPoints)
}

func TestComputeMetrics_BetaNeedsTwoOverlappingPoints(t *testing.T) {
	equity := curve("100", "120", "96")
	// Only the first two days overlap, giving one aligned return.
	r := NewEngine(DefaultConfig()).ComputeMetrics(equity, bench("100", "110"), nil)
	assert.Nil(t, r.Beta)
	assert.Nil(t, r.TrackingError)
	assert.Equal(t, 1, r.BenchmarkPoints)

	r = NewEngine(DefaultConfig()).ComputeMetrics(equity, nil, nil)
	assert.Nil(t, r.Beta)
}

func TestComputeMetrics_WinRateOverClosedTrades(t *testing.T) {
	trades := []*domain.Trade{
		{Side: domain.Buy, Commission: dec("1")},
		{Side: domain.Sell, Reducing: true, RealizedPnL: dec("10"), Commission: dec("1")},
		{Side: domain.Sell, Reducing: true, RealizedPnL: dec("-5"), Commission: dec("1")},
		{Side: domain.Sell, Reducing: true, RealizedPnL: dec("0"), Commission: dec("1")},
		{Side: domain.Sell, Reducing: true, RealizedPnL: dec("3"), Commission: dec("1")},
	}
	r := NewEngine(DefaultConfig()).ComputeMetrics(nil, nil, trades)

	assert.Equal(t, 50.0, r.WinRate)
	assert.Equal(t, 4, r.Trades.ClosedTrades)
	assert.Equal(t, 5, r.Trades.TotalTrades)
	assert.True(t, dec("8").Equal(r.Trades.TotalRealizedPnL))
	assert.True(t, dec("5").Equal(r.Trades.TotalCommission))
	assert.True(t, dec("6.5").Equal(r.Trades.AverageWin))
	assert.True(t, dec("-2.5").Equal(r.Trades.AverageLoss))
	assert.InDelta(t, 13.0/5.0, r.Trades.ProfitFactor, 1e-12)
	assert.Equal(t, 2, r.Trades.MaxConsecutiveLosses)
}

func TestComputeMetrics_NoTradesNoEquity(t *testing.T) {
	r := NewEngine(Config{}).ComputeMetrics(nil, nil, nil)
	assert.Equal(t, 0.0, r.WinRate)
	assert.Equal(t, 0, r.Observations)
	assert.Equal(t, 252, NewEngine(Config{}).Config().TradingDaysPerYear)
}

func TestComputeMetrics_Idempotent(t *testing.T) {
	e := NewEngine(DefaultConfig())
	equity := curve("100", "104", "101", "99", "107", "111")
	b := bench("10", "10.2", "10.1", "9.8", "10.5", "10.4")
	trades := []*domain.Trade{{Reducing: true, RealizedPnL: dec("4")}}

	first := e.ComputeMetrics(equity, b, trades)
	second := e.ComputeMetrics(equity, b, trades)
	assert.Equal(t, first, second)
}

func TestReturns_SkipsZeroBase(t *testing.T) {
	r := Returns([]decimal.Decimal{dec("0"), dec("100"), dec("110")})
	require.Len(t, r, 1)
	assert.InDelta(t, 0.1, r[0], 1e-12)
	assert.Empty(t, Returns([]decimal.Decimal{dec("1")}))
}

func TestDailyCloses(t *testing.T) {
	series := []domain.EquitySnapshot{
		domain.NewEquitySnapshot("p1", day0.Add(2*time.Hour), dec("102"), decimal.Zero),
		domain.NewEquitySnapshot("p1", day0, dec("100"), decimal.Zero),
		domain.NewEquitySnapshot("p1", day0.AddDate(0, 0, 1), dec("105"), decimal.Zero),
	}
	closes := DailyCloses(series)
	require.Len(t, closes, 2)
	assert.True(t, dec("102").Equal(closes[0].TotalEquity))
	assert.True(t, dec("105").Equal(closes[1].TotalEquity))
}

func TestMonthlyReturns(t *testing.T) {
	series := []domain.EquitySnapshot{
		domain.NewEquitySnapshot("p1", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), dec("100"), decimal.Zero),
		domain.NewEquitySnapshot("p1", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), dec("110"), decimal.Zero),
		domain.NewEquitySnapshot("p1", time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), dec("99"), decimal.Zero),
	}
	m := MonthlyReturns(series)
	require.Len(t, m, 2)
	assert.InDelta(t, 10.0, m[0].ReturnPercent, 1e-9)
	assert.InDelta(t, -10.0, m[1].ReturnPercent, 1e-9)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), m[1].Month)
}
