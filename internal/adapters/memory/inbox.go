package memory

import (
	"context"
	"sync"

	"paperTrader/internal/domain"
)

// AlertInbox collects alerts instead of delivering them.
type AlertInbox struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

// Notify implements ports.AlertNotifier.
func (i *AlertInbox) Notify(ctx context.Context, alert domain.Alert) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.alerts = append(i.alerts, alert)
	return nil
}

// Alerts returns a copy of everything received so far.
func (i *AlertInbox) Alerts() []domain.Alert {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]domain.Alert, len(i.alerts))
	copy(out, i.alerts)
	return out
}
