// Package notify delivers risk alerts.
package notify

import (
	"context"
	"errors"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// LogNotifier writes alerts to the application log. Critical alerts are logged at error level.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify implements ports.AlertNotifier.
func (n *LogNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	fields := map[string]interface{}{
		"portfolioID": alert.PortfolioID,
		"metric":      string(alert.Metric),
		"severity":    alert.Severity.String(),
		"value":       alert.Value.String(),
		"limit":       alert.Limit.String(),
		"raisedAt":    alert.RaisedAt,
	}
	if alert.Subject != "" {
		fields["subject"] = alert.Subject
	}
	if alert.Severity >= domain.SeverityCritical {
		n.logger.Error(ctx, errors.New(alert.Message), "Risk limit breached", fields)
		return nil
	}
	n.logger.Warn(ctx, "Risk limit approaching: "+alert.Message, fields)
	return nil
}

// Multi delivers each alert to every notifier, returning the joined errors.
type Multi []ports.AlertNotifier

// Notify implements ports.AlertNotifier.
func (m Multi) Notify(ctx context.Context, alert domain.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
