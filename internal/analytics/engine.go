// Package analytics computes portfolio risk and performance statistics from an equity curve,
// a benchmark series and the trade history. Every call is a pure function of its inputs.
package analytics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"paperTrader/internal/domain"
)

// Config holds the market conventions used for annualisation.
type Config struct {
	RiskFreeRate       float64 // Annual, e.g. 0.02
	TradingDaysPerYear int     // Defaults to 252
}

// DefaultConfig returns a 2% risk-free rate and 252 trading days.
func DefaultConfig() Config {
	return Config{RiskFreeRate: 0.02, TradingDaysPerYear: 252}
}

// RiskReport is the output of ComputeMetrics. Ratios are float64; money stays decimal.
// Benchmark-relative fields are nil when they are undefined for the given inputs.
type RiskReport struct {
	AsOf         time.Time
	Observations int // Number of equity points
	ReturnCount  int // Number of daily returns

	StartEquity        decimal.Decimal
	CurrentEquity      decimal.Decimal
	TotalReturnPercent float64

	MeanDailyReturn      float64
	AnnualizedReturn     float64 // mean(r) * trading days
	AnnualizedVolatility float64 // stddev(r) * sqrt(trading days)
	SharpeRatio          float64 // Zero when volatility is zero

	MaxDrawdownPercent     float64
	MaxDrawdownAmount      decimal.Decimal
	CurrentDrawdownPercent float64
	Drawdowns              []Drawdown

	VaR95  decimal.Decimal // Positive loss magnitude over one day
	VaR99  decimal.Decimal
	CVaR95 decimal.Decimal // Mean loss beyond VaR95

	BenchmarkPoints  int // Aligned benchmark returns
	Beta             *float64
	Correlation      *float64
	TrackingError    *float64
	InformationRatio *float64

	WinRate float64
	Trades  TradeStats

	MonthlyReturns []MonthlyReturn
}

// Engine computes RiskReports. It holds no state besides its configuration.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine, filling in defaults for zero config values.
func NewEngine(cfg Config) *Engine {
	if cfg.TradingDaysPerYear <= 0 {
		cfg.TradingDaysPerYear = 252
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine's conventions.
func (e *Engine) Config() Config {
	return e.cfg
}

// ComputeMetrics derives the full report. equity must be ordered by time; benchmark may be
// empty. Repeated calls with the same inputs return identical reports.
func (e *Engine) ComputeMetrics(equity []domain.EquitySnapshot, benchmark []domain.BenchmarkPoint, trades []*domain.Trade) *RiskReport {
	days := float64(e.cfg.TradingDaysPerYear)
	report := &RiskReport{
		Observations: len(equity),
		Trades:       AnalyzeTrades(trades),
	}
	report.WinRate = report.Trades.WinRate

	if len(equity) == 0 {
		return report
	}

	first, last := equity[0], equity[len(equity)-1]
	report.AsOf = last.Timestamp
	report.StartEquity = first.TotalEquity
	report.CurrentEquity = last.TotalEquity
	if !first.TotalEquity.IsZero() {
		report.TotalReturnPercent = last.TotalEquity.Sub(first.TotalEquity).Div(first.TotalEquity).Mul(hundred).InexactFloat64()
	}

	returns := DailyReturns(equity)
	report.ReturnCount = len(returns)
	report.MeanDailyReturn = mean(returns)
	report.AnnualizedReturn = report.MeanDailyReturn * days
	report.AnnualizedVolatility = stdDev(returns) * math.Sqrt(days)
	if report.AnnualizedVolatility > 0 {
		report.SharpeRatio = (report.AnnualizedReturn - e.cfg.RiskFreeRate) / report.AnnualizedVolatility
	}

	dd := AnalyzeDrawdowns(equity)
	report.MaxDrawdownPercent = dd.MaxPercent
	report.MaxDrawdownAmount = dd.MaxAmount
	report.CurrentDrawdownPercent = dd.CurrentPercent
	report.Drawdowns = dd.Periods

	if len(returns) > 0 {
		report.VaR95 = lossAmount(percentile(returns, 0.05), last.TotalEquity)
		report.VaR99 = lossAmount(percentile(returns, 0.01), last.TotalEquity)
		report.CVaR95 = lossAmount(tailMean(returns, 0.05), last.TotalEquity)
	}

	e.benchmarkMetrics(report, equity, benchmark)
	report.MonthlyReturns = MonthlyReturns(equity)
	return report
}

func (e *Engine) benchmarkMetrics(report *RiskReport, equity []domain.EquitySnapshot, benchmark []domain.BenchmarkPoint) {
	port, bench := alignedReturns(equity, benchmark)
	report.BenchmarkPoints = len(port)
	if len(port) < 2 {
		return
	}

	if variance := stat.Variance(bench, nil); variance > 0 {
		beta := stat.Covariance(port, bench, nil) / variance
		report.Beta = &beta
		if stdDev(port) > 0 {
			corr := stat.Correlation(port, bench, nil)
			report.Correlation = &corr
		}
	}

	active := make([]float64, len(port))
	floats.SubTo(active, port, bench)
	te := stdDev(active) * math.Sqrt(float64(e.cfg.TradingDaysPerYear))
	report.TrackingError = &te
	if te > 0 {
		ir := mean(active) * float64(e.cfg.TradingDaysPerYear) / te
		report.InformationRatio = &ir
	}
}

// lossAmount scales a return quantile into a positive loss. A non-negative quantile means no
// loss at that confidence, reported as zero.
func lossAmount(quantile float64, equity decimal.Decimal) decimal.Decimal {
	if quantile >= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(-quantile).Mul(equity)
}

// MonthlyReturn is the change of equity over one calendar month.
type MonthlyReturn struct {
	Month         time.Time // First day of the month, UTC
	ReturnPercent float64
}

// MonthlyReturns measures each month's last equity against the previous month's last equity
// (or the first observation for the first month).
func MonthlyReturns(equity []domain.EquitySnapshot) []MonthlyReturn {
	if len(equity) == 0 {
		return nil
	}
	var out []MonthlyReturn
	base := equity[0].TotalEquity
	for i, s := range equity {
		month := monthStart(s.Timestamp)
		if i+1 < len(equity) && monthStart(equity[i+1].Timestamp).Equal(month) {
			continue
		}
		r := MonthlyReturn{Month: month}
		if !base.IsZero() {
			r.ReturnPercent = s.TotalEquity.Sub(base).Div(base).Mul(hundred).InexactFloat64()
		}
		out = append(out, r)
		base = s.TotalEquity
	}
	return out
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
