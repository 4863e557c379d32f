// Package memory provides in-process implementations of the ledger's collaborators.
// They are used by the CLI replay command and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// Repository keeps portfolios and equity curves in memory. Stored values are copies.
type Repository struct {
	mu         sync.RWMutex
	portfolios map[string]*domain.Portfolio
	equity     map[string][]domain.EquitySnapshot
}

// NewRepository creates an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		portfolios: make(map[string]*domain.Portfolio),
		equity:     make(map[string][]domain.EquitySnapshot),
	}
}

// LoadPortfolio implements ports.PortfolioRepository.
func (r *Repository) LoadPortfolio(ctx context.Context, id string) (*domain.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	pf, ok := r.portfolios[id]
	if !ok {
		return nil, ports.ErrPortfolioNotFound
	}
	return pf.Clone(), nil
}

// Persist implements ports.PortfolioRepository.
func (r *Repository) Persist(ctx context.Context, pf *domain.Portfolio) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.portfolios[pf.ID]
	switch {
	case pf.Version == 0 && ok:
		return fmt.Errorf("%w: portfolio %s", ports.ErrDuplicateEntry, pf.ID)
	case pf.Version != 0 && (!ok || stored.Version != pf.Version):
		return fmt.Errorf("%w: portfolio %s changed since revision %d", ports.ErrConcurrentModification, pf.ID, pf.Version)
	}
	pf.Version++
	r.portfolios[pf.ID] = pf.Clone()
	return nil
}

// ListPortfolioIDs implements ports.PortfolioRepository.
func (r *Repository) ListPortfolioIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.portfolios))
	for id := range r.portfolios {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// SaveSnapshot implements ports.EquityHistory.
func (r *Repository) SaveSnapshot(ctx context.Context, snap domain.EquitySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	series := append(r.equity[snap.PortfolioID], snap)
	sort.SliceStable(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	r.equity[snap.PortfolioID] = series
	return nil
}

// ListSnapshots implements ports.EquityHistory.
func (r *Repository) ListSnapshots(ctx context.Context, portfolioID string, since time.Time) ([]domain.EquitySnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EquitySnapshot, 0, len(r.equity[portfolioID]))
	for _, s := range r.equity[portfolioID] {
		if !since.IsZero() && s.Timestamp.Before(since) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
