package ports

import (
	"context"
	"time"

	"paperTrader/internal/domain"
)

// QuoteSource supplies point-in-time prices. Its answer is authoritative at call time.
type QuoteSource interface {
	// GetQuote returns the latest quote for an instrument.
	// Returns ErrQuoteUnavailable if the instrument is unknown to the source.
	GetQuote(ctx context.Context, instrumentID string) (domain.Quote, error)
}

// BenchmarkSource supplies the benchmark series used for beta and correlation.
type BenchmarkSource interface {
	// GetBenchmark returns up to days daily closes for symbol, oldest first.
	GetBenchmark(ctx context.Context, symbol string, days int) ([]domain.BenchmarkPoint, error)
}

// Clock abstracts time so ledger timestamps are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
