package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var t0 = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "paper-trader-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func samplePortfolio() *domain.Portfolio {
	pf := domain.NewPortfolio("pf-1", "main", dec("10000"), t0)
	pf.CashBalance = dec("8998.999")
	pf.Positions["AAPL"] = &domain.Position{
		InstrumentID:      "AAPL",
		Symbol:            "AAPL",
		Quantity:          dec("10.5"),
		AverageEntryPrice: dec("95.238095238095238"),
		RealizedPnL:       dec("-1.25"),
		Status:            domain.StatusOpen,
		OpenedAt:          t0,
		UpdatedAt:         t0.Add(time.Minute),
	}
	pf.Trades = []*domain.Trade{
		{ID: "01A", PortfolioID: "pf-1", InstrumentID: "AAPL", Symbol: "AAPL", Side: domain.Buy,
			Quantity: dec("10.5"), Price: dec("95.238095238095238"), Commission: dec("1"), TotalAmount: dec("1000"),
			ExecutedAt: t0, Sequence: 1},
	}
	return pf
}

func TestRepository_PersistAndLoad(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pf := samplePortfolio()
	require.NoError(t, repo.Persist(ctx, pf))

	got, err := repo.LoadPortfolio(ctx, "pf-1")
	require.NoError(t, err)
	assert.Equal(t, "main", got.Name)
	assert.True(t, pf.CashBalance.Equal(got.CashBalance))
	assert.True(t, pf.InitialBalance.Equal(got.InitialBalance))
	assert.True(t, pf.CreatedAt.Equal(got.CreatedAt))

	pos := got.Position("AAPL")
	require.NotNil(t, pos)
	assert.True(t, dec("10.5").Equal(pos.Quantity))
	assert.True(t, dec("95.238095238095238").Equal(pos.AverageEntryPrice), "decimals round-trip exactly")
	assert.True(t, dec("-1.25").Equal(pos.RealizedPnL))

	require.Len(t, got.Trades, 1)
	tr := got.Trades[0]
	assert.Equal(t, "01A", tr.ID)
	assert.Equal(t, domain.Buy, tr.Side)
	assert.True(t, dec("1").Equal(tr.Commission))
	assert.True(t, t0.Equal(tr.ExecutedAt))
	assert.False(t, tr.Reducing)
}

func TestRepository_LoadMissing(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.LoadPortfolio(context.Background(), "nope")
	assert.ErrorIs(t, err, ports.ErrPortfolioNotFound)
}

func TestRepository_PersistReplacesPositionsAndAppendsTrades(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pf := samplePortfolio()
	require.NoError(t, repo.Persist(ctx, pf))

	// Close AAPL and open MSFT.
	delete(pf.Positions, "AAPL")
	pf.Positions["MSFT"] = &domain.Position{InstrumentID: "MSFT", Symbol: "MSFT", Quantity: dec("-2"),
		AverageEntryPrice: dec("50"), Status: domain.StatusOpen, OpenedAt: t0, UpdatedAt: t0}
	pf.Trades = append(pf.Trades,
		&domain.Trade{ID: "01B", PortfolioID: "pf-1", InstrumentID: "AAPL", Symbol: "AAPL", Side: domain.Sell,
			Quantity: dec("10.5"), Price: dec("100"), Commission: dec("1.05"), TotalAmount: dec("1050"),
			RealizedPnL: dec("50"), Reducing: true, ExecutedAt: t0.Add(time.Hour), Sequence: 2},
		&domain.Trade{ID: "01C", PortfolioID: "pf-1", InstrumentID: "MSFT", Symbol: "MSFT", Side: domain.Sell,
			Quantity: dec("2"), Price: dec("50"), Commission: dec("0.1"), TotalAmount: dec("100"),
			ExecutedAt: t0.Add(time.Hour), Sequence: 3},
	)
	pf.CashBalance = dec("10147.849")
	require.NoError(t, repo.Persist(ctx, pf))

	got, err := repo.LoadPortfolio(ctx, "pf-1")
	require.NoError(t, err)
	assert.Nil(t, got.Position("AAPL"))
	require.NotNil(t, got.Position("MSFT"))
	assert.Equal(t, domain.Short, got.Position("MSFT").Side())
	require.Len(t, got.Trades, 3)
	assert.Equal(t, []string{"01A", "01B", "01C"}, []string{got.Trades[0].ID, got.Trades[1].ID, got.Trades[2].ID})
	assert.True(t, got.Trades[1].Reducing)
	assert.True(t, dec("50").Equal(got.Trades[1].RealizedPnL))
	assert.True(t, dec("10147.849").Equal(got.CashBalance))

	ids, err := repo.ListPortfolioIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pf-1"}, ids)
}

func TestRepository_EquitySnapshots(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i, eq := range []string{"100", "101.5", "99.25"} {
		snap := domain.NewEquitySnapshot("pf-1", t0.AddDate(0, 0, i), dec(eq), decimal.Zero)
		require.NoError(t, repo.SaveSnapshot(ctx, snap))
	}
	require.NoError(t, repo.SaveSnapshot(ctx, domain.NewEquitySnapshot("pf-2", t0, dec("5"), decimal.Zero)))

	all, err := repo.ListSnapshots(ctx, "pf-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, dec("101.5").Equal(all[1].TotalEquity))
	assert.True(t, t0.AddDate(0, 0, 2).Equal(all[2].Timestamp))

	recent, err := repo.ListSnapshots(ctx, "pf-1", t0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRepository_PersistRejectsStaleVersion(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Persist(ctx, samplePortfolio()))

	first, err := repo.LoadPortfolio(ctx, "pf-1")
	require.NoError(t, err)
	second, err := repo.LoadPortfolio(ctx, "pf-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	first.CashBalance = dec("1")
	require.NoError(t, repo.Persist(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.CashBalance = dec("2")
	err = repo.Persist(ctx, second)
	require.ErrorIs(t, err, ports.ErrConcurrentModification)
	assert.Equal(t, int64(1), second.Version)

	got, err := repo.LoadPortfolio(ctx, "pf-1")
	require.NoError(t, err)
	assert.True(t, dec("1").Equal(got.CashBalance))
	assert.Equal(t, int64(2), got.Version)
}

func TestRepository_PersistRejectsDuplicatePortfolio(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.Persist(ctx, samplePortfolio()))
	err := repo.Persist(ctx, samplePortfolio())
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
}

func TestRepository_TradeConflictFailsTransaction(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pf := samplePortfolio()
	require.NoError(t, repo.Persist(ctx, pf))

	// Same ID as the stored trade under a new sequence.
	pf.CashBalance = dec("0")
	pf.Trades = append(pf.Trades, &domain.Trade{ID: "01A", PortfolioID: "pf-1", InstrumentID: "AAPL", Symbol: "AAPL",
		Side: domain.Buy, Quantity: dec("1"), Price: dec("1"), Commission: dec("0"), TotalAmount: dec("1"),
		ExecutedAt: t0.Add(time.Hour), Sequence: 2})
	err := repo.Persist(ctx, pf)
	require.ErrorIs(t, err, ports.ErrDuplicateEntry)
	assert.ErrorIs(t, err, ports.ErrConcurrentModification)

	got, err := repo.LoadPortfolio(ctx, "pf-1")
	require.NoError(t, err)
	assert.Len(t, got.Trades, 1)
	assert.True(t, dec("8998.999").Equal(got.CashBalance), "rolled back")
	assert.Equal(t, int64(1), got.Version)
}

func TestRepository_AddsVersionColumnToOlderDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
	CREATE TABLE portfolios (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		initial_balance TEXT NOT NULL,
		cash_balance TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	INSERT INTO portfolios VALUES ('old', 'legacy', '100', '100', '2024-03-01 14:30:00+00:00', '2024-03-01 14:30:00+00:00');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := NewRepository(Config{DBPath: path, Logger: &mockLogger{}})
	require.NoError(t, err)
	defer repo.Close()

	pf, err := repo.LoadPortfolio(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pf.Version)
	assert.True(t, dec("100").Equal(pf.CashBalance))
}
