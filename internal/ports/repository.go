package ports

import (
	"context"
	"time"

	"paperTrader/internal/domain"
)

// PortfolioRepository is the persistence collaborator of the ledger.
type PortfolioRepository interface {
	// LoadPortfolio retrieves a portfolio with its open positions and full trade history.
	// Returns ErrPortfolioNotFound if no portfolio has that ID.
	LoadPortfolio(ctx context.Context, id string) (*domain.Portfolio, error)
	// Persist durably stores the complete portfolio state. Either everything is written or nothing.
	// A portfolio with a zero Version is inserted; otherwise the stored revision must still equal
	// pf.Version, or ErrConcurrentModification is returned and nothing is written. On success
	// pf.Version holds the new revision.
	Persist(ctx context.Context, pf *domain.Portfolio) error
	// ListPortfolioIDs returns the IDs of all stored portfolios.
	ListPortfolioIDs(ctx context.Context) ([]string, error)
}

// EquityHistory stores equity snapshots used as the input series for risk analytics.
type EquityHistory interface {
	// SaveSnapshot appends a snapshot to the portfolio's equity curve.
	SaveSnapshot(ctx context.Context, snap domain.EquitySnapshot) error
	// ListSnapshots returns snapshots at or after since, ordered by timestamp ascending.
	// A zero since returns the whole curve.
	ListSnapshots(ctx context.Context, portfolioID string, since time.Time) ([]domain.EquitySnapshot, error)
}
