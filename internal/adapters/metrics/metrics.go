// Package metrics exposes ledger and risk activity as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"paperTrader/internal/analytics"
	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// Metrics contains the ledger, equity and alert metrics.
type Metrics struct {
	// Trade metrics
	TradesCommitted *prometheus.CounterVec
	TradesRejected  *prometheus.CounterVec
	TradeValue      *prometheus.HistogramVec
	Commission      prometheus.Counter

	// Portfolio metrics
	CashBalance *prometheus.GaugeVec
	Equity      *prometheus.GaugeVec
	Risk        *prometheus.GaugeVec

	// Alert metrics
	AlertsRaised *prometheus.CounterVec
	AlertsFailed *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		TradesCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_committed_total",
				Help:      "Total number of committed trades",
			},
			[]string{"side"},
		),
		TradesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_rejected_total",
				Help:      "Total number of rejected or failed trade requests",
			},
			[]string{"reason"},
		),
		TradeValue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trade_value",
				Help:      "Distribution of committed trade total amounts",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 10),
			},
			[]string{"side"},
		),
		Commission: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commission_total",
				Help:      "Total commission charged",
			},
		),
		CashBalance: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cash_balance",
				Help:      "Cash balance after the last commit",
			},
			[]string{"portfolio"},
		),
		Equity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "equity",
				Help:      "Total equity at the last recorded snapshot",
			},
			[]string{"portfolio"},
		),
		Risk: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "risk_metric",
				Help:      "Latest computed risk metrics",
			},
			[]string{"portfolio", "metric"},
		),
		AlertsRaised: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_raised_total",
				Help:      "Total number of risk alerts raised",
			},
			[]string{"metric", "severity"},
		),
		AlertsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_failed_total",
				Help:      "Total number of alerts that could not be delivered",
			},
			[]string{"metric"},
		),
	}
}

// OnCommit implements ports.CommitObserver.
func (m *Metrics) OnCommit(ctx context.Context, ev domain.CommitEvent) {
	if ev.Trade == nil {
		return
	}
	side := string(ev.Trade.Side)
	m.TradesCommitted.WithLabelValues(side).Inc()
	m.TradeValue.WithLabelValues(side).Observe(ev.Trade.TotalAmount.InexactFloat64())
	m.Commission.Add(ev.Trade.Commission.InexactFloat64())
	m.CashBalance.WithLabelValues(ev.PortfolioID).Set(ev.CashBalance.InexactFloat64())
}

// ObserveRejection counts a failed trade request by reason.
func (m *Metrics) ObserveRejection(err error) {
	reason := "error"
	if r, ok := ports.AsRejection(err); ok {
		reason = string(r.Reason)
	}
	m.TradesRejected.WithLabelValues(reason).Inc()
}

// ObserveEquity records the latest equity point of a portfolio.
func (m *Metrics) ObserveEquity(snap domain.EquitySnapshot) {
	m.Equity.WithLabelValues(snap.PortfolioID).Set(snap.TotalEquity.InexactFloat64())
}

// ObserveReport publishes the headline numbers of a risk report.
func (m *Metrics) ObserveReport(portfolioID string, r *analytics.RiskReport) {
	set := func(name string, v float64) {
		m.Risk.WithLabelValues(portfolioID, name).Set(v)
	}
	set("annualized_volatility", r.AnnualizedVolatility)
	set("sharpe_ratio", r.SharpeRatio)
	set("max_drawdown_percent", r.MaxDrawdownPercent)
	set("current_drawdown_percent", r.CurrentDrawdownPercent)
	set("var95", r.VaR95.InexactFloat64())
	set("win_rate", r.WinRate)
	if r.Beta != nil {
		set("beta", *r.Beta)
	}
}

// Notifier counts alerts on their way to the wrapped notifier.
type Notifier struct {
	next    ports.AlertNotifier
	metrics *Metrics
}

// WrapNotifier decorates next with alert counters.
func (m *Metrics) WrapNotifier(next ports.AlertNotifier) *Notifier {
	return &Notifier{next: next, metrics: m}
}

// Notify implements ports.AlertNotifier.
func (n *Notifier) Notify(ctx context.Context, alert domain.Alert) error {
	n.metrics.AlertsRaised.WithLabelValues(string(alert.Metric), alert.Severity.String()).Inc()
	if err := n.next.Notify(ctx, alert); err != nil {
		n.metrics.AlertsFailed.WithLabelValues(string(alert.Metric)).Inc()
		return err
	}
	return nil
}
