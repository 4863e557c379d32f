package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"paperTrader/config"
	"paperTrader/internal/adapters/binanceclient"
	"paperTrader/internal/adapters/memory"
	"paperTrader/internal/adapters/metrics"
	"paperTrader/internal/adapters/notify"
	"paperTrader/internal/adapters/sqlite"
	"paperTrader/internal/analytics"
	"paperTrader/internal/ledger"
	"paperTrader/internal/ports"
	"paperTrader/internal/risk"
)

// Runtime is a fully wired PortfolioService with the resources it owns.
type Runtime struct {
	Service    *PortfolioService
	Portfolios ports.PortfolioRepository
	Market     *binanceclient.Client // Quote and benchmark source; nil outside Wire
	Alerts     *memory.AlertInbox    // Alerts raised during this process, newest last
	Metrics    *metrics.Metrics      // Nil when no registerer was given

	InitialBalance decimal.Decimal // Default funding of new portfolios
	closers        []func() error
}

// Close releases the database.
func (r *Runtime) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Wire builds the production object graph: SQLite storage, Binance market data, the ledger,
// analytics and alerting. A nil reg disables metrics.
func Wire(cfg *config.Config, log ports.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if cfg == nil || log == nil {
		return nil, fmt.Errorf("%w: config and logger are required", ports.ErrConfigurationError)
	}
	ctx := context.Background()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("initialize database repository: %w", err)
	}
	rt := &Runtime{
		Portfolios:     repo,
		Alerts:         &memory.AlertInbox{},
		InitialBalance: cfg.InitialBalance,
		closers:        []func() error{repo.Close},
	}

	breaker := binanceclient.DefaultBreakerConfig()
	breaker.Timeout = cfg.ReconnectDelay
	market, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     log,
		Breaker:    breaker,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("initialize Binance client: %w", err)
	}
	rt.Market = market

	l, err := ledger.New(ledger.Config{
		Repository: repo,
		Quotes:     market,
		Logger:     log,
		Policy: ledger.Policy{
			CommissionRate:    cfg.CommissionRate,
			AllowShortSelling: cfg.AllowShortSelling,
			MaxQuoteAge:       cfg.QuoteMaxAge,
		},
		LockTimeout: cfg.LockTimeout,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	var notifier ports.AlertNotifier = notify.Multi{notify.NewLogNotifier(log), rt.Alerts}
	if reg != nil {
		rt.Metrics = metrics.New(cfg.MetricsNamespace, reg)
		notifier = rt.Metrics.WrapNotifier(notifier)
	}
	monitor, err := risk.NewMonitor(risk.Config{
		Enabled:              cfg.AlertsEnabled,
		MaxDrawdownPercent:   cfg.AlertMaxDrawdownPercent,
		MaxVaR:               cfg.AlertMaxVaR,
		PositionLimitPercent: cfg.AlertPositionLimitPercent,
		WarnRatio:            cfg.AlertWarnRatio,
	}, notifier, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Service, err = NewPortfolioService(Config{
		Ledger:          l,
		Portfolios:      repo,
		History:         repo,
		Quotes:          market,
		Engine:          analytics.NewEngine(analytics.Config{RiskFreeRate: cfg.RiskFreeRate, TradingDaysPerYear: cfg.TradingDaysPerYear}),
		Monitor:         monitor,
		Logger:          log,
		Benchmark:       market,
		BenchmarkSymbol: cfg.BenchmarkSymbol,
		BenchmarkDays:   cfg.BenchmarkDays,
		Metrics:         rt.Metrics,
		Schedule:        cfg.RiskSchedule,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	log.Info(ctx, "Portfolio runtime wired", map[string]interface{}{
		"dbPath":    cfg.DBPath,
		"benchmark": cfg.BenchmarkSymbol,
		"metrics":   reg != nil,
	})
	return rt, nil
}
