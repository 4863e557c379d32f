// Package risk decides when a portfolio's risk metrics warrant an alert. Delivery is left to
// the injected ports.AlertNotifier.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/accounting"
	"paperTrader/internal/analytics"
	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// Config holds the alert limits. A zero limit disables that check.
type Config struct {
	Enabled              bool
	MaxDrawdownPercent   decimal.Decimal // e.g. 10 for 10%
	MaxVaR               decimal.Decimal // Absolute VaR95 amount
	PositionLimitPercent decimal.Decimal // Max weight of one position in total equity
	WarnRatio            decimal.Decimal // Fraction of a limit at which a warning is raised, e.g. 0.8
}

// DefaultConfig mirrors the defaults of the risk settings screen: 10% drawdown, warnings at 80%.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MaxDrawdownPercent: decimal.NewFromInt(10),
		WarnRatio:          decimal.RequireFromString("0.8"),
	}
}

type levelKey struct {
	portfolioID string
	metric      domain.AlertMetric
	subject     string
}

// Monitor remembers the last alert level per portfolio and metric so that an alert fires once
// when a level is crossed, not on every evaluation.
type Monitor struct {
	cfg      Config
	notifier ports.AlertNotifier
	logger   ports.Logger

	mu     sync.Mutex
	levels map[levelKey]domain.AlertSeverity
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, notifier ports.AlertNotifier, logger ports.Logger) (*Monitor, error) {
	if notifier == nil || logger == nil {
		return nil, fmt.Errorf("%w: risk monitor requires a notifier and a logger", ports.ErrConfigurationError)
	}
	if cfg.WarnRatio.IsNegative() || cfg.WarnRatio.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: warn ratio must be within [0, 1]", ports.ErrConfigurationError)
	}
	return &Monitor{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		levels:   make(map[levelKey]domain.AlertSeverity),
	}, nil
}

// Config returns the monitor's limits.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Classify maps a value to a severity against a limit.
func (m *Monitor) Classify(value, limit decimal.Decimal) domain.AlertSeverity {
	if !limit.IsPositive() {
		return domain.SeverityNone
	}
	if value.GreaterThanOrEqual(limit) {
		return domain.SeverityCritical
	}
	if m.cfg.WarnRatio.IsPositive() && value.GreaterThanOrEqual(limit.Mul(m.cfg.WarnRatio)) {
		return domain.SeverityWarning
	}
	return domain.SeverityNone
}

// Assess returns every limit currently at Warning or above, without touching alert state.
// valuation may be nil, in which case position limits are skipped.
func (m *Monitor) Assess(portfolioID string, report *analytics.RiskReport, valuation *accounting.PortfolioValuation) []domain.Alert {
	var out []domain.Alert
	for _, c := range m.candidates(portfolioID, report, valuation) {
		if c.Severity > domain.SeverityNone {
			out = append(out, c)
		}
	}
	return out
}

func (m *Monitor) candidates(portfolioID string, report *analytics.RiskReport, valuation *accounting.PortfolioValuation) []domain.Alert {
	var out []domain.Alert
	if report != nil {
		dd := decimal.NewFromFloat(report.MaxDrawdownPercent)
		out = append(out, domain.Alert{
			PortfolioID: portfolioID,
			Metric:      domain.MetricMaxDrawdown,
			Severity:    m.Classify(dd, m.cfg.MaxDrawdownPercent),
			Value:       dd,
			Limit:       m.cfg.MaxDrawdownPercent,
			Message:     fmt.Sprintf("Max drawdown %s%% against limit %s%%", dd.StringFixed(2), m.cfg.MaxDrawdownPercent.StringFixed(2)),
		})
		out = append(out, domain.Alert{
			PortfolioID: portfolioID,
			Metric:      domain.MetricValueAtRisk,
			Severity:    m.Classify(report.VaR95, m.cfg.MaxVaR),
			Value:       report.VaR95,
			Limit:       m.cfg.MaxVaR,
			Message:     fmt.Sprintf("1-day VaR(95%%) %s against limit %s", report.VaR95.StringFixed(2), m.cfg.MaxVaR.StringFixed(2)),
		})
	}
	if valuation != nil {
		for _, p := range valuation.Positions {
			out = append(out, domain.Alert{
				PortfolioID: portfolioID,
				Metric:      domain.MetricPositionLimit,
				Severity:    m.Classify(p.Weight, m.cfg.PositionLimitPercent),
				Subject:     p.Symbol,
				Value:       p.Weight,
				Limit:       m.cfg.PositionLimitPercent,
				Message:     fmt.Sprintf("%s is %s%% of equity against limit %s%%", p.Symbol, p.Weight.StringFixed(2), m.cfg.PositionLimitPercent.StringFixed(2)),
			})
		}
	}
	return out
}

// Evaluate compares the report and valuation against the limits, updates the remembered levels
// and delivers an alert for every metric whose level rose. The delivered alerts are returned.
func (m *Monitor) Evaluate(ctx context.Context, portfolioID string, report *analytics.RiskReport, valuation *accounting.PortfolioValuation) []domain.Alert {
	if !m.cfg.Enabled {
		return nil
	}
	op := "Evaluate"

	var at time.Time
	if valuation != nil {
		at = valuation.AsOf
	} else if report != nil {
		at = report.AsOf
	}

	var raised []domain.Alert
	seen := make(map[levelKey]bool)

	m.mu.Lock()
	for _, c := range m.candidates(portfolioID, report, valuation) {
		key := levelKey{portfolioID: portfolioID, metric: c.Metric, subject: c.Subject}
		seen[key] = true
		prev := m.levels[key]
		m.levels[key] = c.Severity
		if c.Severity > prev {
			c.RaisedAt = at
			raised = append(raised, c)
		}
	}
	// A position that is no longer held starts from scratch if it is bought again.
	for key := range m.levels {
		if key.portfolioID == portfolioID && key.metric == domain.MetricPositionLimit && !seen[key] {
			delete(m.levels, key)
		}
	}
	m.mu.Unlock()

	for _, a := range raised {
		if err := m.notifier.Notify(ctx, a); err != nil {
			m.logger.Error(ctx, err, op+": Failed to deliver alert", map[string]interface{}{
				"portfolioID": portfolioID,
				"metric":      string(a.Metric),
				"severity":    a.Severity.String(),
			})
		}
	}
	return raised
}
