package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/accounting"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/adapters/memory"
	"paperTrader/internal/analytics"
	"paperTrader/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newMonitor(t *testing.T, cfg Config) (*Monitor, *memory.AlertInbox) {
	t.Helper()
	inbox := &memory.AlertInbox{}
	m, err := NewMonitor(cfg, inbox, logger.NewNop())
	require.NoError(t, err)
	return m, inbox
}

func report(dd float64, var95 string) *analytics.RiskReport {
	return &analytics.RiskReport{AsOf: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), MaxDrawdownPercent: dd, VaR95: dec(var95)}
}

func TestMonitor_Classify(t *testing.T) {
	m, _ := newMonitor(t, DefaultConfig())
	limit := dec("10")
	assert.Equal(t, domain.SeverityNone, m.Classify(dec("7.99"), limit))
	assert.Equal(t, domain.SeverityWarning, m.Classify(dec("8"), limit))
	assert.Equal(t, domain.SeverityCritical, m.Classify(dec("10"), limit))
	assert.Equal(t, domain.SeverityNone, m.Classify(dec("50"), decimal.Zero), "zero limit disables")
}

func TestMonitor_AlertsOnlyOnCrossing(t *testing.T) {
	m, inbox := newMonitor(t, DefaultConfig())
	ctx := context.Background()

	assert.Empty(t, m.Evaluate(ctx, "p1", report(5, "0"), nil))

	raised := m.Evaluate(ctx, "p1", report(8.5, "0"), nil)
	require.Len(t, raised, 1)
	assert.Equal(t, domain.MetricMaxDrawdown, raised[0].Metric)
	assert.Equal(t, domain.SeverityWarning, raised[0].Severity)
	assert.False(t, raised[0].RaisedAt.IsZero())

	assert.Empty(t, m.Evaluate(ctx, "p1", report(9, "0"), nil), "still warning")

	raised = m.Evaluate(ctx, "p1", report(12, "0"), nil)
	require.Len(t, raised, 1)
	assert.Equal(t, domain.SeverityCritical, raised[0].Severity)

	assert.Empty(t, m.Evaluate(ctx, "p1", report(15, "0"), nil))

	// Recovery then a new breach alerts again.
	assert.Empty(t, m.Evaluate(ctx, "p1", report(2, "0"), nil))
	assert.Len(t, m.Evaluate(ctx, "p1", report(11, "0"), nil), 1)

	assert.Len(t, inbox.Alerts(), 3)
}

func TestMonitor_PortfoliosTrackedSeparately(t *testing.T) {
	m, _ := newMonitor(t, DefaultConfig())
	ctx := context.Background()
	assert.Len(t, m.Evaluate(ctx, "p1", report(11, "0"), nil), 1)
	assert.Len(t, m.Evaluate(ctx, "p2", report(11, "0"), nil), 1)

	// p2 stays remembered at critical while p1 recovers and breaches again.
	assert.Empty(t, m.Evaluate(ctx, "p1", report(11, "0"), nil))
	assert.Empty(t, m.Evaluate(ctx, "p1", report(2, "0"), nil))
	assert.Empty(t, m.Evaluate(ctx, "p2", report(16, "0"), nil))
	assert.Len(t, m.Evaluate(ctx, "p1", report(11, "0"), nil), 1)
}

func TestMonitor_VaRAndPositionLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxVaR = dec("1000")
	cfg.PositionLimitPercent = dec("5")
	m, _ := newMonitor(t, cfg)

	valuation := &accounting.PortfolioValuation{
		AsOf: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Positions: []accounting.PositionValuation{
			{Symbol: "AAPL", Weight: dec("6")},
			{Symbol: "MSFT", Weight: dec("4.2")},
			{Symbol: "TSLA", Weight: dec("1")},
		},
	}
	raised := m.Evaluate(context.Background(), "p1", report(0, "1200"), valuation)
	require.Len(t, raised, 3)

	bySubject := map[string]domain.AlertSeverity{}
	for _, a := range raised {
		bySubject[string(a.Metric)+":"+a.Subject] = a.Severity
	}
	assert.Equal(t, domain.SeverityCritical, bySubject["value_at_risk:"])
	assert.Equal(t, domain.SeverityCritical, bySubject["position_limit:AAPL"])
	assert.Equal(t, domain.SeverityWarning, bySubject["position_limit:MSFT"])

	// AAPL is sold, then bought back to the same weight: that is a new crossing.
	valuation.Positions = valuation.Positions[1:]
	assert.Empty(t, m.Evaluate(context.Background(), "p1", report(0, "1200"), valuation))
	valuation.Positions = append(valuation.Positions, accounting.PositionValuation{Symbol: "AAPL", Weight: dec("6")})
	assert.Len(t, m.Evaluate(context.Background(), "p1", report(0, "1200"), valuation), 1)
}

func TestMonitor_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	m, inbox := newMonitor(t, cfg)
	assert.Empty(t, m.Evaluate(context.Background(), "p1", report(50, "0"), nil))
	assert.Empty(t, inbox.Alerts())
	assert.Len(t, m.Assess("p1", report(50, "0"), nil), 1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func TestMonitor_DeliveryFailureIsLoggedNotReturned(t *testing.T) {
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.MatchedBy(func(a domain.Alert) bool {
		return a.Metric == domain.MetricMaxDrawdown
	})).Return(errors.New("smtp down")).Once()

	m, err := NewMonitor(DefaultConfig(), n, logger.NewNop())
	require.NoError(t, err)

	raised := m.Evaluate(context.Background(), "p1", report(20, "0"), nil)
	assert.Len(t, raised, 1)
	n.AssertExpectations(t)
}

func TestNewMonitor_Validation(t *testing.T) {
	_, err := NewMonitor(DefaultConfig(), nil, logger.NewNop())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.WarnRatio = dec("1.5")
	_, err = NewMonitor(cfg, &memory.AlertInbox{}, logger.NewNop())
	assert.Error(t, err)
}
