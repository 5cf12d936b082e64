package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value stored as an integer count of minor units
// (cents). Arithmetic on Amount is exact; rounding happens only when a
// decimal value crosses the boundary via FromDecimal or PercentageOf.
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

var hundred = decimal.NewFromInt(100)

// FromDecimal converts a decimal currency value (major units) into minor
// units, rounding half up to two decimal places.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Mul(hundred).Round(0).IntPart())
}

// FromString parses a decimal string such as "10.00" into an Amount.
func FromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// Decimal returns the amount in major units with two decimal places.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// MulInt scales the amount by an integer quantity.
func (a Amount) MulInt(n int) Amount { return a * Amount(n) }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a == 0 }

// PercentageOf computes percent% of base, rounding half up to the
// nearest minor unit. This is the single rounding point for percentage
// discounts: callers must not round the result again.
func PercentageOf(base Amount, percent decimal.Decimal) Amount {
	if base <= 0 || percent.Sign() <= 0 {
		return 0
	}
	exact := decimal.NewFromInt(int64(base)).Mul(percent).Div(hundred)
	return Amount(exact.Round(0).IntPart())
}

// String renders the amount as a plain decimal, e.g. "12.50".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a decimal string with two places.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
