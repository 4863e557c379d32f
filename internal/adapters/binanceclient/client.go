package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	dailyInterval = "1d"
	maxKlineLimit = 1500
)

// marketAPI is the subset of the futures REST API the adapter needs.
type marketAPI interface {
	Ticker(ctx context.Context, symbol string) ([]*futures.PriceChangeStats, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error)
	Ping(ctx context.Context) error
}

type futuresAPI struct {
	client *futures.Client
}

func (f futuresAPI) Ticker(ctx context.Context, symbol string) ([]*futures.PriceChangeStats, error) {
	return f.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
}

func (f futuresAPI) Klines(ctx context.Context, symbol, interval string, limit int) ([]*futures.Kline, error) {
	return f.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
}

func (f futuresAPI) Ping(ctx context.Context) error {
	return f.client.NewPingService().Do(ctx)
}

// Client implements ports.QuoteSource and ports.BenchmarkSource over Binance public market data.
// Instrument IDs are exchange symbols such as BTCUSDT. All calls go through a circuit breaker
// so an unavailable exchange fails fast instead of stalling trade placement.
type Client struct {
	api     marketAPI
	breaker *gobreaker.CircuitBreaker
	logger  ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
	Breaker    BreakerConfig
}

// BreakerConfig tunes the circuit breaker around exchange calls.
type BreakerConfig struct {
	MaxRequests uint32        // Requests allowed through while half-open
	Interval    time.Duration // Period after which closed-state counts are cleared
	Timeout     time.Duration // Time spent open before probing again
}

// DefaultBreakerConfig returns 3 half-open requests, a 10s window and a 60s cool-down.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxRequests: 3, Interval: 10 * time.Second, Timeout: 60 * time.Second}
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Debug(context.Background(), "No Binance API keys configured, using public market data endpoints only")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance market data client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return newClient(futuresAPI{client: client}, cfg.Breaker, cfg.Logger), nil
}

func newClient(api marketAPI, bc BreakerConfig, logger ports.Logger) *Client {
	if bc == (BreakerConfig{}) {
		bc = DefaultBreakerConfig()
	}
	c := &Client{api: api, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-market-data",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Caller mistakes say nothing about exchange health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ports.ErrQuoteUnavailable) || errors.Is(err, ports.ErrInvalidRequest)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "Circuit breaker state changed", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return c
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// guard runs fn through the circuit breaker. fn must return errors already mapped by handleError.
func (c *Client) guard(op string, fn func() (interface{}, error)) (interface{}, error) {
	res, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrExchangeUnavailable, err)
	}
	return res, err
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1121: // Invalid symbol
			mappedErr = ports.ErrQuoteUnavailable
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -1000, -1001, -1006, -1007: // Unknown, disconnected, unexpected response, timeout
			mappedErr = ports.ErrExchangeUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	_, err := c.guard(op, func() (interface{}, error) {
		if err := c.api.Ping(ctx); err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		return nil, nil
	})
	return err
}

// GetQuote returns the 24h ticker of a symbol: the last price as current and the 24h open as
// prior price, stamped with the ticker's close time.
func (c *Client) GetQuote(ctx context.Context, instrumentID string) (domain.Quote, error) {
	op := "GetQuote"
	symbol := strings.ToUpper(instrumentID)

	res, err := c.guard(op, func() (interface{}, error) {
		tickers, err := c.api.Ticker(ctx, symbol)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(tickers) == 0 || tickers[0] == nil {
			return nil, fmt.Errorf("%s failed: %w: no ticker data for %s", op, ports.ErrQuoteUnavailable, symbol)
		}
		q, err := translateTicker(tickers[0], instrumentID)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		return q, nil
	})
	if err != nil {
		return domain.Quote{}, err
	}
	return res.(domain.Quote), nil
}

// GetBenchmark returns daily closes of symbol, oldest first. The still-open daily candle is
// dropped so every point is a final close.
func (c *Client) GetBenchmark(ctx context.Context, symbol string, days int) ([]domain.BenchmarkPoint, error) {
	op := "GetBenchmark"
	if days <= 0 {
		return nil, fmt.Errorf("%s failed: %w: days must be positive", op, ports.ErrInvalidRequest)
	}
	limit := days + 1
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	symbol = strings.ToUpper(symbol)

	res, err := c.guard(op, func() (interface{}, error) {
		klines, err := c.api.Klines(ctx, symbol, dailyInterval, limit)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		now := time.Now()
		points := make([]domain.BenchmarkPoint, 0, len(klines))
		for _, bk := range klines {
			if bk == nil || time.UnixMilli(bk.CloseTime).After(now) {
				continue
			}
			p, err := translateKline(bk, symbol)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
			}
			points = append(points, p)
		}
		if len(points) > days {
			points = points[len(points)-days:]
		}
		return points, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]domain.BenchmarkPoint), nil
}

func translateTicker(t *futures.PriceChangeStats, instrumentID string) (domain.Quote, error) {
	last, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parsing last price '%s': %w", t.LastPrice, err)
	}
	open, err := decimal.NewFromString(t.OpenPrice)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("parsing open price '%s': %w", t.OpenPrice, err)
	}
	ts := time.Now().UTC()
	if t.CloseTime > 0 {
		ts = time.UnixMilli(t.CloseTime).UTC()
	}
	return domain.Quote{
		InstrumentID: instrumentID,
		Symbol:       t.Symbol,
		CurrentPrice: last,
		PriorPrice:   open,
		Timestamp:    ts,
	}, nil
}

func translateKline(bk *futures.Kline, symbol string) (domain.BenchmarkPoint, error) {
	cls, err := decimal.NewFromString(bk.Close)
	if err != nil {
		return domain.BenchmarkPoint{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	return domain.BenchmarkPoint{
		Symbol: symbol,
		Time:   time.UnixMilli(bk.OpenTime).UTC(),
		Close:  cls,
	}, nil
}
