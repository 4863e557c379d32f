// Package scenario replays a scripted sequence of price moves and trades through an in-memory
// ledger and reports the resulting portfolio, equity curve and risk metrics.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"paperTrader/internal/domain"
	"paperTrader/internal/ledger"
	"paperTrader/internal/risk"
	"paperTrader/internal/utils"
)

// Scenario is the YAML document describing a replay.
type Scenario struct {
	Name           string          `yaml:"name"`
	Start          time.Time       `yaml:"start"`
	InitialBalance string          `yaml:"initial_balance"`
	Policy         PolicyConfig    `yaml:"policy"`
	Alerts         AlertConfig     `yaml:"alerts"`
	Benchmark      *BenchmarkInput `yaml:"benchmark,omitempty"`
	Steps          []Step          `yaml:"steps"`

	dir string // Directory of the scenario file, for relative paths
}

// PolicyConfig mirrors ledger.Policy. Empty fields keep the defaults.
type PolicyConfig struct {
	CommissionRate    string `yaml:"commission_rate,omitempty"`
	AllowShortSelling bool   `yaml:"allow_short_selling,omitempty"`
	MaxQuoteAge       string `yaml:"max_quote_age,omitempty"` // e.g. "30s"
}

// AlertConfig mirrors risk.Config. Empty fields keep the defaults.
type AlertConfig struct {
	MaxDrawdownPercent   string `yaml:"max_drawdown_percent,omitempty"`
	MaxVaR               string `yaml:"max_var,omitempty"`
	PositionLimitPercent string `yaml:"position_limit_percent,omitempty"`
	WarnRatio            string `yaml:"warn_ratio,omitempty"`
}

// BenchmarkInput is either an inline list of closes or a CSV file.
type BenchmarkInput struct {
	Symbol string         `yaml:"symbol"`
	File   string         `yaml:"file,omitempty"`
	Closes []ClosingPrice `yaml:"closes,omitempty"`
}

// ClosingPrice is one inline benchmark close.
type ClosingPrice struct {
	Date  string `yaml:"date"` // YYYY-MM-DD
	Close string `yaml:"close"`
}

// Step is applied in order: advance the clock, set prices, place trades, then record.
type Step struct {
	Advance string            `yaml:"advance,omitempty"` // e.g. "24h"
	Prices  map[string]string `yaml:"prices,omitempty"`
	Trades  []TradeStep       `yaml:"trades,omitempty"`
	Record  bool              `yaml:"record,omitempty"` // Record equity and evaluate risk alerts
}

// TradeStep is a trade request. An empty price trades at the current quote.
type TradeStep struct {
	Instrument string `yaml:"instrument"`
	Side       string `yaml:"side"`
	Quantity   string `yaml:"quantity"`
	Price      string `yaml:"price,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	return sc, nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if _, err := sc.compile(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return sc, nil
}

// plan is a validated scenario with every field parsed.
type plan struct {
	start          time.Time
	initialBalance decimal.Decimal
	policy         ledger.Policy
	alerts         risk.Config
	benchmark      []domain.BenchmarkPoint
	benchmarkSym   string
	steps          []plannedStep
}

type plannedStep struct {
	advance time.Duration
	prices  map[string]decimal.Decimal
	trades  []domain.TradeRequest
	record  bool
}

func (s *Scenario) compile() (*plan, error) {
	p := &plan{
		start:  s.Start,
		policy: ledger.DefaultPolicy(),
		alerts: risk.DefaultConfig(),
	}
	if p.start.IsZero() {
		p.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	var err error
	if s.InitialBalance == "" {
		return nil, fmt.Errorf("initial_balance is required")
	}
	if p.initialBalance, err = parseDecimal("initial_balance", s.InitialBalance); err != nil {
		return nil, err
	}
	if !p.initialBalance.IsPositive() {
		return nil, fmt.Errorf("initial_balance must be positive")
	}

	if s.Policy.CommissionRate != "" {
		if p.policy.CommissionRate, err = parseDecimal("policy.commission_rate", s.Policy.CommissionRate); err != nil {
			return nil, err
		}
	}
	p.policy.AllowShortSelling = s.Policy.AllowShortSelling
	if s.Policy.MaxQuoteAge != "" {
		if p.policy.MaxQuoteAge, err = time.ParseDuration(s.Policy.MaxQuoteAge); err != nil {
			return nil, fmt.Errorf("policy.max_quote_age: %w", err)
		}
	}

	for _, f := range []struct {
		name string
		raw  string
		dest *decimal.Decimal
	}{
		{"alerts.max_drawdown_percent", s.Alerts.MaxDrawdownPercent, &p.alerts.MaxDrawdownPercent},
		{"alerts.max_var", s.Alerts.MaxVaR, &p.alerts.MaxVaR},
		{"alerts.position_limit_percent", s.Alerts.PositionLimitPercent, &p.alerts.PositionLimitPercent},
		{"alerts.warn_ratio", s.Alerts.WarnRatio, &p.alerts.WarnRatio},
	} {
		if f.raw == "" {
			continue
		}
		if *f.dest, err = parseDecimal(f.name, f.raw); err != nil {
			return nil, err
		}
	}

	if b := s.Benchmark; b != nil {
		if b.Symbol == "" {
			return nil, fmt.Errorf("benchmark.symbol is required")
		}
		p.benchmarkSym = b.Symbol
		for i, c := range b.Closes {
			day, err := time.Parse(time.DateOnly, c.Date)
			if err != nil {
				return nil, fmt.Errorf("benchmark.closes[%d].date: %w", i, err)
			}
			closePrice, err := parseDecimal(fmt.Sprintf("benchmark.closes[%d].close", i), c.Close)
			if err != nil {
				return nil, err
			}
			p.benchmark = append(p.benchmark, domain.BenchmarkPoint{Symbol: b.Symbol, Time: day, Close: closePrice})
		}
	}

	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("at least one step is required")
	}
	for i, st := range s.Steps {
		ps := plannedStep{record: st.Record, prices: make(map[string]decimal.Decimal, len(st.Prices))}
		if st.Advance != "" {
			if ps.advance, err = time.ParseDuration(st.Advance); err != nil {
				return nil, fmt.Errorf("steps[%d].advance: %w", i, err)
			}
			if ps.advance < 0 {
				return nil, fmt.Errorf("steps[%d].advance cannot be negative", i)
			}
		}
		for inst, raw := range st.Prices {
			price, err := parseDecimal(fmt.Sprintf("steps[%d].prices.%s", i, inst), raw)
			if err != nil {
				return nil, err
			}
			ps.prices[inst] = price
		}
		for j, tr := range st.Trades {
			req, err := tr.request()
			if err != nil {
				return nil, fmt.Errorf("steps[%d].trades[%d]: %w", i, j, err)
			}
			ps.trades = append(ps.trades, req)
		}
		p.steps = append(p.steps, ps)
	}
	return p, nil
}

// loadBenchmarkFile fills the plan's benchmark from the CSV file, if one is named.
func (s *Scenario) loadBenchmarkFile(p *plan) error {
	if s.Benchmark == nil || s.Benchmark.File == "" {
		return nil
	}
	path := s.Benchmark.File
	if !filepath.IsAbs(path) && s.dir != "" {
		path = filepath.Join(s.dir, path)
	}
	points, err := utils.ReadBenchmarkFromCSV(path)
	if err != nil {
		return fmt.Errorf("benchmark file: %w", err)
	}
	p.benchmark = append(p.benchmark, points...)
	return nil
}

func (t TradeStep) request() (domain.TradeRequest, error) {
	if t.Instrument == "" {
		return domain.TradeRequest{}, fmt.Errorf("instrument is required")
	}
	side := domain.OrderSide(strings.ToUpper(t.Side))
	if !side.Valid() {
		return domain.TradeRequest{}, fmt.Errorf("unknown side %q", t.Side)
	}
	// Quantity and price are kept as given; non-positive values are for the validator to reject.
	qty, err := parseDecimal("quantity", t.Quantity)
	if err != nil {
		return domain.TradeRequest{}, err
	}
	req := domain.TradeRequest{InstrumentID: t.Instrument, Side: side, Quantity: qty}
	if t.Price != "" {
		if req.Price, err = parseDecimal("price", t.Price); err != nil {
			return domain.TradeRequest{}, err
		}
	}
	return req, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", field, raw)
	}
	return d, nil
}
