package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount errors.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrSubMinorPrecision = errors.New("amount has sub-minor-unit precision")
	ErrCurrencyMismatch  = errors.New("currency precision mismatch")
)

// exponents maps ISO 4217 currency codes to their minor-unit exponent.
// Currencies not listed here use the common exponent of 2.
var exponents = map[string]int{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "MGA": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
	"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3,
	"TND": 3,
}

const defaultExponent = 2

// Exponent returns the minor-unit exponent for a currency code.
func Exponent(currency string) int {
	if e, ok := exponents[strings.ToUpper(currency)]; ok {
		return e
	}
	return defaultExponent
}

// Amount is a fixed-point monetary value: an integer count of minor
// units plus the decimal exponent those units carry. It never touches
// binary floating point.
type Amount struct {
	units    int64
	exponent int
}

// Parse parses a decimal string in the given currency's native
// precision. Sub-minor-unit precision is rejected rather than rounded.
func Parse(value, currency string) (Amount, error) {
	exp := Exponent(currency)
	a, err := parseWithExponent(value, exp)
	if err != nil {
		return Amount{}, err
	}
	return a, nil
}

// Infer parses a decimal string, deriving the exponent from the number
// of fraction digits present. Used when reading persisted records where
// the string already carries the currency's native precision.
func Infer(value string) (Amount, error) {
	exp := 0
	if i := strings.IndexByte(value, '.'); i >= 0 {
		exp = len(value) - i - 1
	}
	return parseWithExponent(value, exp)
}

// FromMinorUnits builds an Amount from an integer minor-unit count,
// e.g. cents for USD or whole yen for JPY.
func FromMinorUnits(units int64, currency string) Amount {
	return Amount{units: units, exponent: Exponent(currency)}
}

func parseWithExponent(value string, exp int) (Amount, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, value)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || (frac != "" && !digitsOnly(frac)) {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if len(frac) > exp {
		// Trailing zeros beyond the exponent are harmless.
		if strings.Trim(frac[exp:], "0") != "" {
			return Amount{}, fmt.Errorf("%w: %q allows %d fraction digits", ErrSubMinorPrecision, value, exp)
		}
		frac = frac[:exp]
	}
	for len(frac) < exp {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return Amount{units: units, exponent: exp}, nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MinorUnits returns the integer minor-unit count, the encoding Stripe
// expects.
func (a Amount) MinorUnits() int64 { return a.units }

// Exponent returns the decimal exponent the amount was parsed with.
func (a Amount) Exponent() int { return a.exponent }

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool { return a.units > 0 }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.units == 0 }

// Add returns the sum of two amounts of the same precision.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.exponent != b.exponent {
		return Amount{}, ErrCurrencyMismatch
	}
	return Amount{units: a.units + b.units, exponent: a.exponent}, nil
}

// String renders the amount as a decimal string in its native
// precision, the encoding PayPal expects.
func (a Amount) String() string {
	if a.exponent == 0 {
		return strconv.FormatInt(a.units, 10)
	}
	pow := int64(1)
	for i := 0; i < a.exponent; i++ {
		pow *= 10
	}
	return fmt.Sprintf("%d.%0*d", a.units/pow, a.exponent, a.units%pow)
}

// MarshalJSON encodes the amount as an exact decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a decimal string, inferring precision from the
// fraction digits present.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Infer(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
