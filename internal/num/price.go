// Package num provides the fixed-point price type used for all monetary
// arithmetic in the core. Prices are stored as int64 values scaled by Scale,
// so comparisons are exact and no floating-point representation drift can
// leak into trading decisions.
package num

import (
	"fmt"
	"strconv"
	"strings"
)

// Scale is the number of raw units per whole price unit.
const Scale = 10000

// Digits is the number of decimal digits carried after the point.
const Digits = 4

// Price is an exact decimal amount stored as a scaled integer.
// The zero value is an exact zero. Price values are immutable and safe to
// share across goroutines.
type Price int64

// FromRaw wraps an already-scaled raw value.
func FromRaw(raw int64) Price { return Price(raw) }

// FromInt converts a whole number of price units.
func FromInt(v int64) Price { return Price(v * Scale) }

// Parse converts a decimal string such as "2345.5" into a Price.
// Digits beyond the supported scale are truncated toward zero.
func Parse(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("num: empty price")
	}
	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("num: parse %q: %w", s, err)
	}
	if len(fracPart) > Digits {
		fracPart = fracPart[:Digits]
	}
	var frac int64
	if fracPart != "" {
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("num: parse %q: %w", s, err)
		}
		for i := len(fracPart); i < Digits; i++ {
			frac *= 10
		}
	}
	raw := whole*Scale + frac
	if neg {
		raw = -raw
	}
	return Price(raw), nil
}

// MustParse is Parse for literals in wiring code and tests.
func MustParse(s string) Price {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Raw returns the scaled integer representation.
func (p Price) Raw() int64 { return int64(p) }

func (p Price) Add(o Price) Price { return p + o }
func (p Price) Sub(o Price) Price { return p - o }
func (p Price) Neg() Price        { return -p }

// Cmp returns -1, 0 or 1 comparing p against o.
func (p Price) Cmp(o Price) int {
	switch {
	case p < o:
		return -1
	case p > o:
		return 1
	}
	return 0
}

func (p Price) Less(o Price) bool    { return p < o }
func (p Price) Greater(o Price) bool { return p > o }
func (p Price) IsZero() bool         { return p == 0 }

// DivVol divides a scaled amount by an unscaled volume, truncating toward
// zero. Used for average-price computation; Go integer division already
// truncates toward zero, which is the documented rounding rule.
func DivVol(amount Price, vol int64) Price {
	if vol == 0 {
		return 0
	}
	return Price(int64(amount) / vol)
}

// String renders the price as a decimal at the fixed scale with trailing
// fractional zeros trimmed, e.g. 23455000 -> "2345.5".
func (p Price) String() string {
	raw := int64(p)
	neg := raw < 0
	if neg {
		raw = -raw
	}
	whole := raw / Scale
	frac := raw % Scale
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatInt(whole, 10))
	if frac != 0 {
		fs := fmt.Sprintf("%0*d", Digits, frac)
		fs = strings.TrimRight(fs, "0")
		b.WriteByte('.')
		b.WriteString(fs)
	}
	return b.String()
}

// Float64 converts for display only; never feed the result back into
// trading arithmetic.
func (p Price) Float64() float64 { return float64(p) / Scale }
