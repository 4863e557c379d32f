package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// QuoteBook is a QuoteSource whose prices are set by hand.
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
	clock  ports.Clock
}

// NewQuoteBook creates an empty QuoteBook. A nil clock means the system clock.
func NewQuoteBook(clock ports.Clock) *QuoteBook {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &QuoteBook{quotes: make(map[string]domain.Quote), clock: clock}
}

// SetPrice records a new current price, moving the previous one to PriorPrice.
func (b *QuoteBook) SetPrice(instrumentID string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[instrumentID]
	prior := price
	if ok {
		prior = q.CurrentPrice
	}
	b.quotes[instrumentID] = domain.Quote{
		InstrumentID: instrumentID,
		Symbol:       instrumentID,
		CurrentPrice: price,
		PriorPrice:   prior,
		Timestamp:    b.clock.Now(),
	}
}

// Set stores a quote as is.
func (b *QuoteBook) Set(q domain.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[q.InstrumentID] = q
}

// GetQuote implements ports.QuoteSource.
func (b *QuoteBook) GetQuote(ctx context.Context, instrumentID string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[instrumentID]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: %s", ports.ErrQuoteUnavailable, instrumentID)
	}
	return q, nil
}

// Prices returns the current price of every quoted instrument.
func (b *QuoteBook) Prices() map[string]decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(b.quotes))
	for id, q := range b.quotes {
		out[id] = q.CurrentPrice
	}
	return out
}

// StaticBenchmark is a BenchmarkSource over a fixed series.
type StaticBenchmark struct {
	Points []domain.BenchmarkPoint
}

// GetBenchmark implements ports.BenchmarkSource. The last days points are returned.
func (s StaticBenchmark) GetBenchmark(ctx context.Context, symbol string, days int) ([]domain.BenchmarkPoint, error) {
	pts := s.Points
	if days > 0 && len(pts) > days {
		pts = pts[len(pts)-days:]
	}
	out := make([]domain.BenchmarkPoint, len(pts))
	copy(out, pts)
	return out, nil
}

// FixedClock is a Clock that returns a settable instant.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock stopped at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
