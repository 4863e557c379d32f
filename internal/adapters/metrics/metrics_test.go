package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"paperTrader/internal/adapters/memory"
	"paperTrader/internal/analytics"
	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

func TestMetrics_OnCommit(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	m.OnCommit(context.Background(), domain.CommitEvent{
		PortfolioID: "p1",
		CashBalance: decimal.NewFromInt(8999),
		Trade: &domain.Trade{
			Side:        domain.Buy,
			TotalAmount: decimal.NewFromInt(1000),
			Commission:  decimal.NewFromInt(1),
		},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesCommitted.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commission))
	assert.Equal(t, 8999.0, testutil.ToFloat64(m.CashBalance.WithLabelValues("p1")))
}

func TestMetrics_ObserveRejection(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	m.ObserveRejection(ports.Reject(ports.ReasonInsufficientFunds, ""))
	m.ObserveRejection(errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesRejected.WithLabelValues("InsufficientFunds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesRejected.WithLabelValues("error")))
}

func TestMetrics_ObserveReport(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	beta := 1.2
	m.ObserveReport("p1", &analytics.RiskReport{SharpeRatio: 0.5, MaxDrawdownPercent: 20, VaR95: decimal.NewFromInt(150), Beta: &beta})

	assert.Equal(t, 0.5, testutil.ToFloat64(m.Risk.WithLabelValues("p1", "sharpe_ratio")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.Risk.WithLabelValues("p1", "max_drawdown_percent")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.Risk.WithLabelValues("p1", "var95")))
	assert.Equal(t, 1.2, testutil.ToFloat64(m.Risk.WithLabelValues("p1", "beta")))
}

type failingNotifier struct{}

func (failingNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	return errors.New("unreachable")
}

func TestNotifier_CountsAlerts(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	inbox := &memory.AlertInbox{}
	alert := domain.Alert{Metric: domain.MetricMaxDrawdown, Severity: domain.SeverityCritical}

	assert.NoError(t, m.WrapNotifier(inbox).Notify(context.Background(), alert))
	assert.Error(t, m.WrapNotifier(failingNotifier{}).Notify(context.Background(), alert))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlertsRaised.WithLabelValues("max_drawdown", "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsFailed.WithLabelValues("max_drawdown")))
	assert.Len(t, inbox.Alerts(), 1)
}
