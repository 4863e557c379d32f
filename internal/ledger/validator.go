package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
)

// DefaultCommissionRate is charged on the total amount of every trade.
var DefaultCommissionRate = decimal.RequireFromString("0.001")

// Policy holds the trading rules enforced by the Validator.
type Policy struct {
	CommissionRate    decimal.Decimal
	AllowShortSelling bool          // Off by default; when off a Sell can never exceed the long quantity
	MaxQuoteAge       time.Duration // Zero disables the staleness check
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{CommissionRate: DefaultCommissionRate}
}

// Validator checks a proposed trade against a portfolio snapshot. It has no side effects.
type Validator struct {
	policy Policy
	clock  ports.Clock
}

// NewValidator creates a Validator. A nil clock means the system clock.
func NewValidator(policy Policy, clock ports.Clock) *Validator {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Validator{policy: policy, clock: clock}
}

// Policy returns the rules the validator enforces.
func (v *Validator) Policy() Policy {
	return v.policy
}

// Commission returns the commission charged on a trade of the given total amount.
func (v *Validator) Commission(total decimal.Decimal) decimal.Decimal {
	return total.Mul(v.policy.CommissionRate)
}

// Validate returns nil if trade may be applied to pf, or a *ports.TradeRejection.
// pos is the current open position for the trade's instrument, or nil.
func (v *Validator) Validate(pf *domain.Portfolio, pos *domain.Position, trade *domain.Trade, q domain.Quote) error {
	if !trade.Quantity.IsPositive() {
		return ports.Reject(ports.ReasonInvalidQuantity, "quantity %s", trade.Quantity)
	}
	if !trade.Price.IsPositive() {
		return ports.Reject(ports.ReasonInvalidPrice, "price %s", trade.Price)
	}
	if !trade.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ports.ErrInvalidRequest, trade.Side)
	}
	if v.policy.MaxQuoteAge > 0 {
		if q.Timestamp.IsZero() {
			return ports.Reject(ports.ReasonStaleQuote, "quote for %s has no timestamp", q.Symbol)
		}
		if age := q.Age(v.clock.Now()); age > v.policy.MaxQuoteAge {
			return ports.Reject(ports.ReasonStaleQuote, "quote for %s is %s old, limit %s", q.Symbol, age.Truncate(time.Millisecond), v.policy.MaxQuoteAge)
		}
	}

	total := trade.Quantity.Mul(trade.Price)
	commission := v.Commission(total)

	if trade.Side == domain.Buy {
		netCost := total.Add(commission)
		if netCost.GreaterThan(pf.CashBalance) {
			return ports.Reject(ports.ReasonInsufficientFunds, "need %s, have %s", netCost, pf.CashBalance)
		}
		return nil
	}

	var long decimal.Decimal
	if pos != nil && pos.Quantity.IsPositive() {
		long = pos.Quantity
	}
	if trade.Quantity.LessThanOrEqual(long) {
		return nil
	}
	if !v.policy.AllowShortSelling {
		if pos == nil {
			return ports.Reject(ports.ReasonInsufficientPosition, "no open position in %s", trade.Symbol)
		}
		return ports.Reject(ports.ReasonInsufficientPosition, "sell %s exceeds held %s", trade.Quantity, pos.Quantity)
	}

	// The newly shorted quantity must be collateralised by cash held before the sale.
	shorted := trade.Quantity.Sub(long)
	collateral := shorted.Mul(trade.Price).Add(commission)
	if collateral.GreaterThan(pf.CashBalance) {
		return ports.Reject(ports.ReasonInsufficientFunds, "short of %s needs collateral %s, have %s", shorted, collateral, pf.CashBalance)
	}
	return nil
}
