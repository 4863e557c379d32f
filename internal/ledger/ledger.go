// Package ledger is the authoritative holder of portfolio state. Trades are validated and
// applied as single atomic transitions, serialized per portfolio.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ids"
	"paperTrader/internal/ports"
)

// Config holds the dependencies and settings of a Ledger.
type Config struct {
	Repository  ports.PortfolioRepository
	Quotes      ports.QuoteSource
	Logger      ports.Logger
	Clock       ports.Clock   // Optional, defaults to the system clock
	Policy      Policy        // Trading rules, see DefaultPolicy
	LockTimeout time.Duration // Zero waits for the lock until the context is done
}

// book is the per-portfolio critical section. state is replaced, never mutated, once published.
type book struct {
	sem   chan struct{}
	state atomic.Pointer[domain.Portfolio]
}

func newBook() *book {
	return &book{sem: make(chan struct{}, 1)}
}

func (b *book) acquire(ctx context.Context, timeout time.Duration) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case b.sem <- struct{}{}:
		return nil
	case <-expired:
		return ports.ErrConcurrentModification
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
	}
}

func (b *book) release() {
	<-b.sem
}

// Ledger applies trades to portfolios.
type Ledger struct {
	repo        ports.PortfolioRepository
	quotes      ports.QuoteSource
	logger      ports.Logger
	clock       ports.Clock
	validator   *Validator
	lockTimeout time.Duration

	mu    sync.Mutex // Protects books
	books map[string]*book

	obsMu     sync.RWMutex
	observers []ports.CommitObserver
}

// New creates a Ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Repository == nil || cfg.Quotes == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("%w: ledger requires a repository, a quote source and a logger", ports.ErrConfigurationError)
	}
	if cfg.Policy.CommissionRate.IsNegative() {
		return nil, fmt.Errorf("%w: commission rate must not be negative", ports.ErrConfigurationError)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Ledger{
		repo:        cfg.Repository,
		quotes:      cfg.Quotes,
		logger:      cfg.Logger,
		clock:       clock,
		validator:   NewValidator(cfg.Policy, clock),
		lockTimeout: cfg.LockTimeout,
		books:       make(map[string]*book),
	}, nil
}

// Subscribe registers an observer notified after every committed trade.
func (l *Ledger) Subscribe(obs ports.CommitObserver) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.observers = append(l.observers, obs)
}

// Open creates and persists a new portfolio funded with initialBalance.
func (l *Ledger) Open(ctx context.Context, name string, initialBalance decimal.Decimal) (*domain.Portfolio, error) {
	op := "Open"
	if initialBalance.IsNegative() {
		return nil, fmt.Errorf("%s: %w: initial balance %s", op, ports.ErrInvalidRequest, initialBalance)
	}

	pf := domain.NewPortfolio(ids.NewPortfolioID(), name, initialBalance, l.clock.Now())
	if err := l.repo.Persist(ctx, pf); err != nil {
		l.logger.Error(ctx, err, op+": Failed to persist new portfolio", map[string]interface{}{"name": name})
		return nil, fmt.Errorf("%s: %w: %w", op, ports.ErrPersistenceFailure, err)
	}

	b := newBook()
	b.state.Store(pf)
	l.mu.Lock()
	l.books[pf.ID] = b
	l.mu.Unlock()

	l.logger.Info(ctx, op+": Portfolio opened", map[string]interface{}{
		"portfolioID":    pf.ID,
		"name":           name,
		"initialBalance": initialBalance.String(),
	})
	return pf.Clone(), nil
}

// Snapshot returns a consistent copy of the committed state of a portfolio.
func (l *Ledger) Snapshot(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	pf, err := l.current(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return pf.Clone(), nil
}

// Reload drops the published state of a portfolio and reads it again from the repository, so
// commits written by other processes become visible. It reports whether the stored revision
// differed from the one held.
func (l *Ledger) Reload(ctx context.Context, portfolioID string) (bool, error) {
	b := l.book(portfolioID)
	if err := b.acquire(ctx, l.lockTimeout); err != nil {
		return false, err
	}
	defer b.release()

	prev := b.state.Load()
	b.state.Store(nil)
	cur, err := l.loadLocked(ctx, portfolioID, b)
	if err != nil {
		if prev != nil && !errors.Is(err, ports.ErrPortfolioNotFound) {
			b.state.Store(prev)
		}
		return false, err
	}
	changed := prev == nil || prev.Version != cur.Version
	if changed && prev != nil {
		l.logger.Debug(ctx, "Portfolio reloaded with newer revision", map[string]interface{}{
			"portfolioID": portfolioID,
			"from":        prev.Version,
			"to":          cur.Version,
		})
	}
	return changed, nil
}

// current returns the published state, loading it from the repository on first access.
// The returned portfolio must not be mutated.
func (l *Ledger) current(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	b := l.book(portfolioID)
	if pf := b.state.Load(); pf != nil {
		return pf, nil
	}
	if err := b.acquire(ctx, l.lockTimeout); err != nil {
		return nil, err
	}
	defer b.release()
	return l.loadLocked(ctx, portfolioID, b)
}

func (l *Ledger) book(portfolioID string) *book {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.books[portfolioID]
	if !ok {
		b = newBook()
		l.books[portfolioID] = b
	}
	return b
}

// loadLocked must be called with the book's lock held.
func (l *Ledger) loadLocked(ctx context.Context, portfolioID string, b *book) (*domain.Portfolio, error) {
	if pf := b.state.Load(); pf != nil {
		return pf, nil
	}
	pf, err := l.repo.LoadPortfolio(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, ports.ErrPortfolioNotFound) || errors.Is(err, ports.ErrNotFound) {
			l.mu.Lock()
			if l.books[portfolioID] == b {
				delete(l.books, portfolioID)
			}
			l.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ports.ErrPortfolioNotFound, portfolioID)
		}
		return nil, fmt.Errorf("load portfolio %s: %w", portfolioID, err)
	}
	if pf.Positions == nil {
		pf.Positions = make(map[string]*domain.Position)
	}
	b.state.Store(pf)
	return pf, nil
}

// Execute validates a trade request against the latest quote and the current portfolio state
// and commits it. The returned trade is the committed record. Rejections are returned as
// *ports.TradeRejection and leave the portfolio untouched.
func (l *Ledger) Execute(ctx context.Context, req domain.TradeRequest) (*domain.Trade, error) {
	op := "Execute"
	proposal, quote, err := l.prepare(ctx, op, req)
	if err != nil {
		return nil, err
	}

	b := l.book(req.PortfolioID)
	if err := b.acquire(ctx, l.lockTimeout); err != nil {
		l.logger.Warn(ctx, op+": Could not acquire portfolio lock", map[string]interface{}{
			"portfolioID": req.PortfolioID,
			"error":       err.Error(),
		})
		return nil, err
	}
	committed, event, err := l.commitLocked(ctx, b, proposal, quote)
	b.release()
	if err != nil {
		return nil, err
	}

	l.notify(ctx, event)
	committedCopy := *committed
	return &committedCopy, nil
}

// Check runs the same validation as Execute without committing anything. The returned trade
// carries the price, total and commission the request would execute at; it has no ID.
func (l *Ledger) Check(ctx context.Context, req domain.TradeRequest) (*domain.Trade, error) {
	proposal, _, err := l.prepare(ctx, "Check", req)
	if err != nil {
		return nil, err
	}
	proposal.TotalAmount = proposal.Quantity.Mul(proposal.Price)
	proposal.Commission = l.validator.Commission(proposal.TotalAmount)
	return proposal, nil
}

// prepare resolves the quote and validates the request against the published state.
func (l *Ledger) prepare(ctx context.Context, op string, req domain.TradeRequest) (*domain.Trade, domain.Quote, error) {
	if req.PortfolioID == "" || req.InstrumentID == "" || !req.Side.Valid() {
		return nil, domain.Quote{}, fmt.Errorf("%s: %w: portfolio, instrument and side are required", op, ports.ErrInvalidRequest)
	}

	// The quote is resolved before the lock so a slow source never holds up other commits.
	quote, err := l.quotes.GetQuote(ctx, req.InstrumentID)
	if err != nil {
		l.logger.Error(ctx, err, op+": Failed to get quote", map[string]interface{}{"instrumentID": req.InstrumentID})
		return nil, domain.Quote{}, fmt.Errorf("%s: quote %s: %w", op, req.InstrumentID, err)
	}

	proposal := l.propose(req, quote)

	// Cheap rejection against the last published state, without queueing for the lock.
	pf, err := l.current(ctx, req.PortfolioID)
	if err != nil {
		return nil, domain.Quote{}, err
	}
	if err := l.validator.Validate(pf, pf.Position(req.InstrumentID), proposal, quote); err != nil {
		l.logRejection(ctx, op, proposal, err)
		return nil, domain.Quote{}, err
	}
	return proposal, quote, nil
}

func (l *Ledger) propose(req domain.TradeRequest, q domain.Quote) *domain.Trade {
	price := req.Price
	if price.IsZero() {
		price = q.CurrentPrice
	}
	symbol := q.Symbol
	if symbol == "" {
		symbol = req.InstrumentID
	}
	return &domain.Trade{
		PortfolioID:  req.PortfolioID,
		InstrumentID: req.InstrumentID,
		Symbol:       symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Price:        price,
	}
}

// commitLocked runs the state transition. The caller holds the book's lock. When the stored
// revision moved on under another process, the state is reloaded and the trade re-validated
// and retried once.
func (l *Ledger) commitLocked(ctx context.Context, b *book, proposal *domain.Trade, quote domain.Quote) (*domain.Trade, domain.CommitEvent, error) {
	op := "Execute"
	for attempt := 1; ; attempt++ {
		trade, next, err := l.transition(ctx, b, proposal, quote)
		if err != nil {
			return nil, domain.CommitEvent{}, err
		}

		err = l.repo.Persist(ctx, next)
		if err == nil {
			b.state.Store(next)
			l.logger.Info(ctx, op+": Trade committed", map[string]interface{}{
				"portfolioID": trade.PortfolioID,
				"tradeID":     trade.ID,
				"symbol":      trade.Symbol,
				"side":        string(trade.Side),
				"quantity":    trade.Quantity.String(),
				"price":       trade.Price.String(),
				"commission":  trade.Commission.String(),
				"realizedPnL": trade.RealizedPnL.String(),
				"cash":        next.CashBalance.String(),
				"version":     next.Version,
			})
			return trade, domain.CommitEvent{
				PortfolioID: trade.PortfolioID,
				Trade:       trade,
				CashBalance: next.CashBalance,
				CommittedAt: trade.ExecutedAt,
			}, nil
		}

		if errors.Is(err, ports.ErrConcurrentModification) {
			// Whatever is cached is behind storage now.
			b.state.Store(nil)
			if attempt < 2 {
				l.logger.Warn(ctx, op+": Portfolio changed in storage, reloading", map[string]interface{}{
					"portfolioID": trade.PortfolioID,
					"version":     next.Version,
				})
				continue
			}
			l.logger.Error(ctx, err, op+": Portfolio kept changing in storage, giving up", map[string]interface{}{
				"portfolioID": trade.PortfolioID,
			})
			return nil, domain.CommitEvent{}, fmt.Errorf("%s: %w", op, err)
		}

		l.logger.Error(ctx, err, op+": Failed to persist trade, state unchanged", map[string]interface{}{
			"portfolioID": trade.PortfolioID,
			"tradeID":     trade.ID,
		})
		return nil, domain.CommitEvent{}, fmt.Errorf("%s: %w: %w", op, ports.ErrPersistenceFailure, err)
	}
}

// transition builds the next state from the published one without publishing it.
func (l *Ledger) transition(ctx context.Context, b *book, proposal *domain.Trade, quote domain.Quote) (*domain.Trade, *domain.Portfolio, error) {
	cur, err := l.loadLocked(ctx, proposal.PortfolioID, b)
	if err != nil {
		return nil, nil, err
	}

	// Re-validate: another commit may have landed since the optimistic check.
	if err := l.validator.Validate(cur, cur.Position(proposal.InstrumentID), proposal, quote); err != nil {
		l.logRejection(ctx, "Execute", proposal, err)
		return nil, nil, err
	}

	now := l.clock.Now()
	trade := *proposal
	if trade.ID, err = ids.NewTradeID(now); err != nil {
		return nil, nil, err
	}
	trade.TotalAmount = trade.Quantity.Mul(trade.Price)
	trade.Commission = l.validator.Commission(trade.TotalAmount)
	trade.ExecutedAt = now
	trade.Sequence = cur.NextSequence()

	next := cur.Clone()
	applyTrade(next, &trade, now)
	next.UpdatedAt = now
	return &trade, next, nil
}

func (l *Ledger) logRejection(ctx context.Context, op string, t *domain.Trade, err error) {
	fields := map[string]interface{}{
		"portfolioID":  t.PortfolioID,
		"instrumentID": t.InstrumentID,
		"side":         string(t.Side),
		"quantity":     t.Quantity.String(),
		"price":        t.Price.String(),
	}
	if r, ok := ports.AsRejection(err); ok {
		fields["reason"] = string(r.Reason)
		fields["detail"] = r.Detail
	} else {
		fields["error"] = err.Error()
	}
	l.logger.Warn(ctx, op+": Trade rejected", fields)
}

// notify runs outside the portfolio lock.
func (l *Ledger) notify(ctx context.Context, ev domain.CommitEvent) {
	l.obsMu.RLock()
	observers := make([]ports.CommitObserver, len(l.observers))
	copy(observers, l.observers)
	l.obsMu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	for _, obs := range observers {
		obs.OnCommit(ctx, ev)
	}
}
