package cli

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// moneyFormatter renders decimal amounts in one currency.
type moneyFormatter struct {
	cur *money.Currency
}

func newMoneyFormatter(code string) (moneyFormatter, error) {
	cur := money.GetCurrency(code)
	if cur == nil {
		return moneyFormatter{}, fmt.Errorf("unknown currency %q", code)
	}
	return moneyFormatter{cur: cur}, nil
}

// Format rounds to the currency's minor unit, e.g. 1234.567 USD -> $1,234.57.
func (f moneyFormatter) Format(d decimal.Decimal) string {
	minor := d.Round(int32(f.cur.Fraction)).Shift(int32(f.cur.Fraction)).IntPart()
	return f.cur.Formatter().Format(minor)
}

// Signed prefixes positive amounts with a plus sign.
func (f moneyFormatter) Signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + f.Format(d)
	}
	return f.Format(d)
}

func percent(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

func percentFloat(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func ratio(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}
