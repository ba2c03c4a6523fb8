package fiscal

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount represents an exact monetary value. The whole pipeline runs in a
// single display currency (USD); amounts stay decimal end to end so that
// roll-up sums are exact, never floating-point approximations.
type Amount struct {
	value decimal.Decimal
}

// newDecimal is a convenient factory for decimal.Decimal.
func newDecimal[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) decimal.Decimal {
	switch v := any(value).(type) {
	case decimal.Decimal:
		return v
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return decimal.NewFromUint64(uint64(v))
	case uint32:
		return decimal.NewFromUint64(uint64(v))
	case uint64:
		return decimal.NewFromUint64(v)
	default:
		panic("unsupported type")
	}
}

// A builds an Amount from any numeric type.
func A[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) Amount {
	return Amount{value: newDecimal(value)}
}

// displayCurrency is the currency used for rendering amounts.
const displayCurrency = "USD"

// currency returns the full display currency definition.
func (a Amount) currency() money.Currency {
	// the Money constructor is the only way to get a never-nil currency
	return *money.New(0, displayCurrency).Currency()
}

// String renders the amount in its display currency, e.g. "$1,015,000.00".
func (a Amount) String() string {
	cur := a.currency()
	dec := a.value.Shift(int32(cur.Fraction))
	return cur.Formatter().Format(dec.IntPart())
}

// SignedString renders the amount with an explicit sign; zero renders as "-".
func (a Amount) SignedString() string {
	if a.value.IsZero() {
		return "-"
	}
	if a.value.IsPositive() {
		return "+" + a.String()
	}
	return a.String()
}

func (a Amount) Equal(b Amount) bool       { return a.value.Equal(b.value) }
func (a Amount) IsZero() bool              { return a.value.IsZero() }
func (a Amount) IsPositive() bool          { return a.value.IsPositive() }
func (a Amount) IsNegative() bool          { return a.value.IsNegative() }
func (a Amount) LessThan(b Amount) bool    { return a.value.LessThan(b.value) }
func (a Amount) GreaterThan(b Amount) bool { return a.value.GreaterThan(b.value) }
func (a Amount) Neg() Amount               { return Amount{value: a.value.Neg()} }
func (a Amount) Abs() Amount               { return Amount{value: a.value.Abs()} }
func (a Amount) Add(b Amount) Amount       { return Amount{value: a.value.Add(b.value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{value: a.value.Sub(b.value)} }

// Decimal returns the underlying exact value.
func (a Amount) Decimal() decimal.Decimal { return a.value }

// Float returns the amount rounded to cents as a float64, the representation
// used in the columnar artifacts.
func (a Amount) Float() float64 {
	return a.value.Round(int32(a.currency().Fraction)).InexactFloat64()
}

// PercentOf returns this amount as a percentage of the base.
// The base must be nonzero.
func (a Amount) PercentOf(base Amount) Percent {
	ratio := a.value.Div(base.value).Mul(decimal.NewFromInt(100))
	return Percent(ratio.InexactFloat64())
}

// MarshalJSON writes the amount as a plain number rounded to cents.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.value.Round(int32(a.currency().Fraction)).String()), nil
}

// UnmarshalJSON reads a plain number.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	a.value = d
	return nil
}

// ParseAmount parses the currency tokens found in fiscal extracts. It
// tolerates a currency symbol, thousands separators and the
// parentheses-for-negative accounting convention: "$1,234.56", "(15,000)"
// and " 1234.5 " all parse.
func ParseAmount(str string) (Amount, error) {
	s := strings.TrimSpace(str)
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", str, err)
	}
	if negative {
		d = d.Neg()
	}
	return Amount{value: d}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(str string) Amount {
	a, err := ParseAmount(str)
	if err != nil {
		panic(err.Error())
	}
	return a
}
