package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertMetric identifies which risk limit an alert refers to.
type AlertMetric string

const (
	MetricMaxDrawdown   AlertMetric = "max_drawdown"
	MetricValueAtRisk   AlertMetric = "value_at_risk"
	MetricPositionLimit AlertMetric = "position_limit"
)

// AlertSeverity is ordered: None < Warning < Critical.
type AlertSeverity int

const (
	SeverityNone AlertSeverity = iota
	SeverityWarning
	SeverityCritical
)

func (s AlertSeverity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// Alert is a threshold-crossing event produced by the risk monitor.
type Alert struct {
	PortfolioID string
	Metric      AlertMetric
	Severity    AlertSeverity
	Subject     string          // Instrument symbol for position alerts, empty otherwise
	Value       decimal.Decimal // Observed value
	Limit       decimal.Decimal // Configured limit
	Message     string
	RaisedAt    time.Time
}

// CommitEvent is the invalidation signal emitted after a trade is committed.
type CommitEvent struct {
	PortfolioID string
	Trade       *Trade
	CashBalance decimal.Decimal
	CommittedAt time.Time
}
