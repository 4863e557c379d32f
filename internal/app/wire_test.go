package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/config"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/ports"
)

func TestWire_MissingConfig(t *testing.T) {
	_, err := Wire(nil, logger.NewNop(), nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestWire_OpensPortfolioWithoutMarketAccess(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.DBPath = filepath.Join(t.TempDir(), "paper.db")
	cfg.ReconnectDelay = time.Second

	rt, err := Wire(cfg, logger.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.Metrics)
	require.NotNil(t, rt.Market)

	// A fresh portfolio holds no positions, so valuing it needs no quotes.
	ctx := context.Background()
	pf, err := rt.Service.OpenPortfolio(ctx, "Wired", cfg.InitialBalance)
	require.NoError(t, err)

	ids, err := rt.Portfolios.ListPortfolioIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, pf.ID)

	history, err := rt.Service.EquityHistory(ctx, pf.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
