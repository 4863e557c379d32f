package ports

import (
	"context"

	"paperTrader/internal/domain"
)

// CommitObserver receives the invalidation signal after every committed trade.
// Observers are called outside the portfolio lock and must not block for long.
type CommitObserver interface {
	OnCommit(ctx context.Context, ev domain.CommitEvent)
}

// CommitObserverFunc adapts a function to CommitObserver.
type CommitObserverFunc func(ctx context.Context, ev domain.CommitEvent)

func (f CommitObserverFunc) OnCommit(ctx context.Context, ev domain.CommitEvent) { f(ctx, ev) }

// AlertNotifier delivers risk alerts. The core decides when to alert, not how.
type AlertNotifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}
