package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/adapters/memory"
	"paperTrader/internal/adapters/sqlite"
	"paperTrader/internal/analytics"
	"paperTrader/internal/domain"
	"paperTrader/internal/ledger"
	"paperTrader/internal/risk"
)

// sqliteLedger opens its own connection to path, the way a separate process would.
func sqliteLedger(t *testing.T, path string, quotes *memory.QuoteBook, clock *memory.FixedClock) (*ledger.Ledger, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: path, Logger: logger.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	l, err := ledger.New(ledger.Config{Repository: repo, Quotes: quotes, Logger: logger.NewNop(), Clock: clock, Policy: ledger.DefaultPolicy()})
	require.NoError(t, err)
	return l, repo
}

func cashFromTrades(initial decimal.Decimal, trades []*domain.Trade) decimal.Decimal {
	cash := initial
	for _, tr := range trades {
		if tr.Side == domain.Buy {
			cash = cash.Sub(tr.TotalAmount).Sub(tr.Commission)
		} else {
			cash = cash.Add(tr.TotalAmount).Sub(tr.Commission)
		}
	}
	return cash
}

func TestSharedDatabase_NoLostTradesAcrossLedgers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "paper.db")
	clock := memory.NewFixedClock(t0)
	quotes := memory.NewQuoteBook(clock)
	quotes.SetPrice("AAPL", dec("100"))
	quotes.SetPrice("MSFT", dec("50"))

	// The long-running service.
	serviceLedger, serviceRepo := sqliteLedger(t, path, quotes, clock)
	mon, err := risk.NewMonitor(risk.DefaultConfig(), &memory.AlertInbox{}, logger.NewNop())
	require.NoError(t, err)
	svc, err := NewPortfolioService(Config{
		Ledger:     serviceLedger,
		Portfolios: serviceRepo,
		History:    serviceRepo,
		Quotes:     quotes,
		Engine:     analytics.NewEngine(analytics.DefaultConfig()),
		Monitor:    mon,
		Logger:     logger.NewNop(),
		Clock:      clock,
	})
	require.NoError(t, err)
	pf, err := svc.OpenPortfolio(ctx, "Main", dec("10000"))
	require.NoError(t, err)

	// A one-shot command against the same file.
	cliLedger, cliRepo := sqliteLedger(t, path, quotes, clock)
	_, err = cliLedger.Snapshot(ctx, pf.ID)
	require.NoError(t, err)
	_, err = cliLedger.Execute(ctx, domain.TradeRequest{PortfolioID: pf.ID, InstrumentID: "AAPL", Side: domain.Buy, Quantity: dec("10")})
	require.NoError(t, err)

	// The service still caches the state from OpenPortfolio.
	clock.Advance(time.Minute)
	tr, err := svc.PlaceTrade(ctx, domain.TradeRequest{PortfolioID: pf.ID, InstrumentID: "MSFT", Side: domain.Buy, Quantity: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), tr.Sequence)

	stored, err := cliRepo.LoadPortfolio(ctx, pf.ID)
	require.NoError(t, err)
	assert.True(t, dec("8498.5").Equal(stored.CashBalance), "cash %s", stored.CashBalance)
	assert.Len(t, stored.OpenPositions(), 2)
	require.Len(t, stored.Trades, 2)
	assert.True(t, stored.CashBalance.Equal(cashFromTrades(stored.InitialBalance, stored.Trades)))

	// Another command trade lands; the scheduled refresh must see it.
	clock.Advance(time.Minute)
	_, err = cliLedger.Execute(ctx, domain.TradeRequest{PortfolioID: pf.ID, InstrumentID: "AAPL", Side: domain.Sell, Quantity: dec("5")})
	require.NoError(t, err)
	require.NoError(t, svc.RefreshAll(ctx))

	view, err := svc.Portfolio(ctx, pf.ID)
	require.NoError(t, err)
	assert.Len(t, view.Trades, 3)
	assert.True(t, dec("8998").Equal(view.CashBalance), "cash %s", view.CashBalance)

	history, err := svc.EquityHistory(ctx, pf.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	last := history[len(history)-1]
	assert.True(t, dec("8998").Equal(last.CashBalance))
	assert.True(t, dec("9998").Equal(last.TotalEquity), "equity %s", last.TotalEquity)
}
