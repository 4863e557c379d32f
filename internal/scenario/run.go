package scenario

import (
	"context"
	"fmt"
	"time"

	"paperTrader/internal/accounting"
	"paperTrader/internal/adapters/memory"
	"paperTrader/internal/analytics"
	"paperTrader/internal/app"
	"paperTrader/internal/domain"
	"paperTrader/internal/ledger"
	"paperTrader/internal/ports"
	"paperTrader/internal/risk"
)

// Outcome is the result of one scripted trade.
type Outcome struct {
	Step    int
	Request domain.TradeRequest
	Trade   *domain.Trade // Nil when the request failed
	Err     error
}

// Result is everything a replay produced.
type Result struct {
	Name      string
	Portfolio *domain.Portfolio
	Valuation *accounting.PortfolioValuation
	Report    *analytics.RiskReport
	Equity    []domain.EquitySnapshot
	Outcomes  []Outcome
	Alerts    []domain.Alert
}

// Rejected counts the trades that did not commit.
func (r *Result) Rejected() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Run replays sc against fresh in-memory adapters. Trade failures are recorded as outcomes;
// any other failure aborts the replay.
func Run(ctx context.Context, sc *Scenario, log ports.Logger) (*Result, error) {
	p, err := sc.compile()
	if err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := sc.loadBenchmarkFile(p); err != nil {
		return nil, err
	}

	clock := memory.NewFixedClock(p.start)
	quotes := memory.NewQuoteBook(clock)
	repo := memory.NewRepository()
	inbox := &memory.AlertInbox{}

	l, err := ledger.New(ledger.Config{
		Repository: repo,
		Quotes:     quotes,
		Logger:     log,
		Clock:      clock,
		Policy:     p.policy,
	})
	if err != nil {
		return nil, err
	}
	monitor, err := risk.NewMonitor(p.alerts, inbox, log)
	if err != nil {
		return nil, err
	}

	cfg := app.Config{
		Ledger:     l,
		Portfolios: repo,
		History:    repo,
		Quotes:     quotes,
		Engine:     analytics.NewEngine(analytics.DefaultConfig()),
		Monitor:    monitor,
		Logger:     log,
		Clock:      clock,
	}
	if len(p.benchmark) > 0 {
		cfg.Benchmark = memory.StaticBenchmark{Points: p.benchmark}
		cfg.BenchmarkSymbol = p.benchmarkSym
		cfg.BenchmarkDays = len(p.benchmark)
	}
	svc, err := app.NewPortfolioService(cfg)
	if err != nil {
		return nil, err
	}

	name := sc.Name
	if name == "" {
		name = "Scenario"
	}
	pf, err := svc.OpenPortfolio(ctx, name, p.initialBalance)
	if err != nil {
		return nil, err
	}

	res := &Result{Name: name}
	for i, st := range p.steps {
		clock.Advance(st.advance)
		for inst, price := range st.prices {
			quotes.SetPrice(inst, price)
		}
		for _, req := range st.trades {
			req.PortfolioID = pf.ID
			trade, err := svc.PlaceTrade(ctx, req)
			res.Outcomes = append(res.Outcomes, Outcome{Step: i + 1, Request: req, Trade: trade, Err: err})
		}
		if st.record {
			if err := svc.Refresh(ctx, pf.ID); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
		}
	}

	if res.Portfolio, err = svc.Portfolio(ctx, pf.ID); err != nil {
		return nil, err
	}
	if res.Valuation, err = svc.Valuation(ctx, pf.ID); err != nil {
		return nil, err
	}
	if res.Report, err = svc.RiskReport(ctx, pf.ID); err != nil {
		return nil, err
	}
	if res.Equity, err = repo.ListSnapshots(ctx, pf.ID, time.Time{}); err != nil {
		return nil, err
	}
	res.Alerts = inbox.Alerts()
	return res, nil
}
