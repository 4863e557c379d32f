package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"paperTrader/internal/accounting"
	"paperTrader/internal/adapters/metrics"
	"paperTrader/internal/analytics"
	"paperTrader/internal/domain"
	"paperTrader/internal/ledger"
	"paperTrader/internal/ports"
	"paperTrader/internal/risk"
)

// Config holds the collaborators of a PortfolioService.
type Config struct {
	Ledger     *ledger.Ledger
	Portfolios ports.PortfolioRepository
	History    ports.EquityHistory
	Quotes     ports.QuoteSource
	Engine     *analytics.Engine
	Monitor    *risk.Monitor
	Logger     ports.Logger

	// Optional
	Benchmark       ports.BenchmarkSource
	BenchmarkSymbol string
	BenchmarkDays   int
	Metrics         *metrics.Metrics
	Clock           ports.Clock
	Schedule        string // cron spec for RefreshAll, e.g. "@every 5m"
}

// PortfolioService ties the ledger, valuation, analytics and alerting together.
type PortfolioService struct {
	ledger     *ledger.Ledger
	portfolios ports.PortfolioRepository
	history    ports.EquityHistory
	quotes     ports.QuoteSource
	engine     *analytics.Engine
	monitor    *risk.Monitor
	logger     ports.Logger

	benchmark       ports.BenchmarkSource
	benchmarkSymbol string
	benchmarkDays   int
	metrics         *metrics.Metrics
	clock           ports.Clock
	schedule        string

	mu      sync.Mutex // Protects reports and gens
	reports map[string]*analytics.RiskReport
	gens    map[string]uint64 // Bumped on every invalidation
}

// NewPortfolioService creates a new application service instance.
func NewPortfolioService(cfg Config) (*PortfolioService, error) {
	// Validate dependencies
	if cfg.Ledger == nil || cfg.Portfolios == nil || cfg.History == nil || cfg.Quotes == nil ||
		cfg.Engine == nil || cfg.Monitor == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for PortfolioService", ports.ErrConfigurationError)
	}
	if cfg.Benchmark != nil && cfg.BenchmarkSymbol == "" {
		return nil, fmt.Errorf("%w: benchmark source configured without a symbol", ports.ErrConfigurationError)
	}
	if cfg.BenchmarkDays <= 0 {
		cfg.BenchmarkDays = 90
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}

	s := &PortfolioService{
		ledger:          cfg.Ledger,
		portfolios:      cfg.Portfolios,
		history:         cfg.History,
		quotes:          cfg.Quotes,
		engine:          cfg.Engine,
		monitor:         cfg.Monitor,
		logger:          cfg.Logger,
		benchmark:       cfg.Benchmark,
		benchmarkSymbol: cfg.BenchmarkSymbol,
		benchmarkDays:   cfg.BenchmarkDays,
		metrics:         cfg.Metrics,
		clock:           cfg.Clock,
		schedule:        cfg.Schedule,
		reports:         make(map[string]*analytics.RiskReport),
		gens:            make(map[string]uint64),
	}

	// A commit makes the cached report of its portfolio stale.
	s.ledger.Subscribe(ports.CommitObserverFunc(func(ctx context.Context, ev domain.CommitEvent) {
		s.invalidate(ev.PortfolioID)
	}))
	if s.metrics != nil {
		s.ledger.Subscribe(s.metrics)
	}
	return s, nil
}

// OpenPortfolio creates a portfolio and records its starting equity.
func (s *PortfolioService) OpenPortfolio(ctx context.Context, name string, initialBalance decimal.Decimal) (*domain.Portfolio, error) {
	pf, err := s.ledger.Open(ctx, name, initialBalance)
	if err != nil {
		return nil, err
	}
	if _, err := s.RecordEquity(ctx, pf.ID); err != nil {
		s.logger.Warn(ctx, "Failed to record starting equity", map[string]interface{}{
			"portfolioID": pf.ID,
			"error":       err.Error(),
		})
	}
	return pf, nil
}

// PlaceTrade executes a trade request against the ledger.
func (s *PortfolioService) PlaceTrade(ctx context.Context, req domain.TradeRequest) (*domain.Trade, error) {
	trade, err := s.ledger.Execute(ctx, req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveRejection(err)
		}
		return nil, err
	}
	return trade, nil
}

// Validate checks a trade request against the current quote and portfolio without placing it.
// The returned trade shows the price, total and commission it would execute at.
func (s *PortfolioService) Validate(ctx context.Context, req domain.TradeRequest) (*domain.Trade, error) {
	return s.ledger.Check(ctx, req)
}

// Portfolio returns a copy of the committed state of a portfolio.
func (s *PortfolioService) Portfolio(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	return s.ledger.Snapshot(ctx, portfolioID)
}

// Valuation marks a portfolio to the current quotes.
func (s *PortfolioService) Valuation(ctx context.Context, portfolioID string) (*accounting.PortfolioValuation, error) {
	pf, err := s.ledger.Snapshot(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	quotes, err := accounting.QuotesFor(ctx, s.quotes, pf)
	if err != nil {
		return nil, err
	}
	return accounting.ValuePortfolio(pf, quotes, s.clock.Now())
}

// RecordEquity appends the current equity of a portfolio to its history.
func (s *PortfolioService) RecordEquity(ctx context.Context, portfolioID string) (domain.EquitySnapshot, error) {
	v, err := s.Valuation(ctx, portfolioID)
	if err != nil {
		return domain.EquitySnapshot{}, err
	}
	snap := v.Snapshot()
	if err := s.history.SaveSnapshot(ctx, snap); err != nil {
		return domain.EquitySnapshot{}, fmt.Errorf("%w: %w", ports.ErrPersistenceFailure, err)
	}
	s.invalidate(portfolioID)
	if s.metrics != nil {
		s.metrics.ObserveEquity(snap)
	}
	s.logger.Debug(ctx, "Equity recorded", map[string]interface{}{
		"portfolioID": portfolioID,
		"totalEquity": snap.TotalEquity.String(),
	})
	return snap, nil
}

// EquityHistory returns the recorded equity points of a portfolio since the given time.
func (s *PortfolioService) EquityHistory(ctx context.Context, portfolioID string, since time.Time) ([]domain.EquitySnapshot, error) {
	if _, err := s.ledger.Snapshot(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.history.ListSnapshots(ctx, portfolioID, since)
}

// RiskReport returns the risk report of a portfolio. The report is cached until the next
// commit or recorded equity point of that portfolio.
func (s *PortfolioService) RiskReport(ctx context.Context, portfolioID string) (*analytics.RiskReport, error) {
	s.mu.Lock()
	cached, ok := s.reports[portfolioID]
	gen := s.gens[portfolioID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	pf, err := s.ledger.Snapshot(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	history, err := s.history.ListSnapshots(ctx, portfolioID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load equity history: %w", err)
	}

	var bench []domain.BenchmarkPoint
	if s.benchmark != nil {
		bench, err = s.benchmark.GetBenchmark(ctx, s.benchmarkSymbol, s.benchmarkDays)
		if err != nil {
			// Benchmark metrics are left empty, the rest of the report still holds.
			s.logger.Warn(ctx, "Benchmark unavailable", map[string]interface{}{
				"symbol": s.benchmarkSymbol,
				"error":  err.Error(),
			})
			bench = nil
		}
	}

	report := s.engine.ComputeMetrics(analytics.DailyCloses(history), bench, pf.Trades)
	if s.metrics != nil {
		s.metrics.ObserveReport(portfolioID, report)
	}

	s.mu.Lock()
	if s.gens[portfolioID] == gen {
		s.reports[portfolioID] = report
	}
	s.mu.Unlock()
	return report, nil
}

// EvaluateRisk checks a portfolio against the alert limits and returns the alerts raised.
func (s *PortfolioService) EvaluateRisk(ctx context.Context, portfolioID string) ([]domain.Alert, error) {
	report, err := s.RiskReport(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	v, err := s.Valuation(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return s.monitor.Evaluate(ctx, portfolioID, report, v), nil
}

// Breaches lists the limits a portfolio currently sits at or above warning level. Unlike
// EvaluateRisk it delivers nothing and leaves the alert state alone.
func (s *PortfolioService) Breaches(ctx context.Context, portfolioID string) ([]domain.Alert, error) {
	report, err := s.RiskReport(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	v, err := s.Valuation(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return s.monitor.Assess(portfolioID, report, v), nil
}

// Refresh records equity and evaluates risk for one portfolio. The portfolio is first reread
// from storage so trades placed by other processes are included.
func (s *PortfolioService) Refresh(ctx context.Context, portfolioID string) error {
	changed, err := s.ledger.Reload(ctx, portfolioID)
	if err != nil {
		return fmt.Errorf("reload %s: %w", portfolioID, err)
	}
	if changed {
		s.invalidate(portfolioID)
	}
	if _, err := s.RecordEquity(ctx, portfolioID); err != nil {
		return fmt.Errorf("record equity %s: %w", portfolioID, err)
	}
	if _, err := s.EvaluateRisk(ctx, portfolioID); err != nil {
		return fmt.Errorf("evaluate risk %s: %w", portfolioID, err)
	}
	return nil
}

// RefreshAll refreshes every stored portfolio. A failing portfolio does not stop the others.
func (s *PortfolioService) RefreshAll(ctx context.Context) error {
	ids, err := s.portfolios.ListPortfolioIDs(ctx)
	if err != nil {
		return fmt.Errorf("list portfolios: %w", err)
	}
	var errs []error
	for _, id := range ids {
		if err := s.Refresh(ctx, id); err != nil {
			s.logger.Error(ctx, err, "Portfolio refresh failed", map[string]interface{}{"portfolioID": id})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start runs RefreshAll on the configured schedule until ctx is done.
func (s *PortfolioService) Start(ctx context.Context) error {
	if s.schedule == "" {
		return fmt.Errorf("%w: no refresh schedule configured", ports.ErrConfigurationError)
	}
	s.logger.Info(ctx, "Starting Portfolio Service...", map[string]interface{}{"schedule": s.schedule})

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.RefreshAll(ctx); err != nil {
			s.logger.Warn(ctx, "Scheduled refresh finished with errors", map[string]interface{}{"error": err.Error()})
		}
	}); err != nil {
		return fmt.Errorf("%w: invalid schedule %q: %w", ports.ErrConfigurationError, s.schedule, err)
	}

	// Refresh once so the first report does not wait for the schedule.
	if err := s.RefreshAll(ctx); err != nil {
		s.logger.Warn(ctx, "Initial refresh finished with errors", map[string]interface{}{"error": err.Error()})
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()

	s.logger.Info(context.Background(), "Portfolio Service stopped")
	return nil
}

func (s *PortfolioService) invalidate(portfolioID string) {
	s.mu.Lock()
	delete(s.reports, portfolioID)
	s.gens[portfolioID]++
	s.mu.Unlock()
}
