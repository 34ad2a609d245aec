package util

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// decimalContext is wide enough for any uint256 value (78 digits) plus 18 fractional digits
var decimalContext = apd.BaseContext.WithPrecision(100)

// Zero returns a fresh zero value
func Zero() *uint256.Int {
	return new(uint256.Int)
}

// Copy returns a fresh copy of v, treating nil as zero
func Copy(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// IsZero reports whether v is nil or zero
func IsZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

// MulDiv returns x*y/d truncated toward zero, with a 512-bit intermediate product.
// overflow is true when d is zero or the quotient does not fit in 256 bits.
func MulDiv(x, y, d *uint256.Int) (result *uint256.Int, overflow bool) {
	if d.IsZero() {
		return new(uint256.Int), true
	}
	return new(uint256.Int).MulDivOverflow(x, y, d)
}

// MulDivUp is MulDiv rounded toward positive infinity
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, bool) {
	if d.IsZero() {
		return new(uint256.Int), true
	}
	q, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return q, true
	}
	if new(uint256.Int).MulMod(x, y, d).IsZero() {
		return q, false
	}
	return q.AddOverflow(q, uint256.NewInt(1))
}

// Add returns x+y, failing on overflow
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, errors.Errorf("uint256 overflow adding %s and %s", x.Dec(), y.Dec())
	}
	return sum, nil
}

// Sub returns x-y, failing on underflow
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, errors.Errorf("uint256 underflow subtracting %s from %s", y.Dec(), x.Dec())
	}
	return diff, nil
}

// Min returns the smaller of x and y as a fresh value
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Set(x)
	}
	return new(uint256.Int).Set(y)
}

// ParseUnits converts a human decimal string ("12.5") into base units for the given decimals.
// Fractional digits beyond decimals are rejected rather than rounded.
func ParseUnits(value string, decimals uint8) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("amount is required")
	}

	d, _, err := apd.NewFromString(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", value)
	}
	if d.Negative {
		return nil, errors.Errorf("amount must be non-negative, got %s", value)
	}

	scaled := new(apd.Decimal)
	if _, err := decimalContext.Mul(scaled, d, apd.New(1, int32(decimals))); err != nil {
		return nil, errors.Wrapf(err, "failed to scale amount %q", value)
	}

	integral := new(apd.Decimal)
	if _, err := decimalContext.RoundToIntegralExact(integral, scaled); err != nil {
		return nil, errors.Wrapf(err, "failed to round amount %q", value)
	}
	if integral.Cmp(scaled) != 0 {
		return nil, errors.Errorf("amount %s has more than %d fractional digits", value, decimals)
	}

	integral.Reduce(integral)
	text := integral.Text('f')
	out, err := uint256.FromDecimal(text)
	if err != nil {
		return nil, errors.Wrapf(err, "amount %s does not fit in 256 bits", value)
	}
	return out, nil
}

// MustParseUnits is ParseUnits for constants; it panics on malformed input
func MustParseUnits(value string, decimals uint8) *uint256.Int {
	out, err := ParseUnits(value, decimals)
	if err != nil {
		panic(err)
	}
	return out
}

// FormatUnits renders base units as a human decimal string, trimming trailing zeros
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	d, _, err := apd.NewFromString(amount.Dec())
	if err != nil {
		// Dec always yields a valid integer literal
		return amount.Dec()
	}

	out := new(apd.Decimal)
	if _, err := decimalContext.Quo(out, d, apd.New(1, int32(decimals))); err != nil {
		return fmt.Sprintf("%se-%d", amount.Dec(), decimals)
	}
	out.Reduce(out)
	return out.Text('f')
}
