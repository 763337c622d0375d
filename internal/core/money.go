// Package core provides amount parsing and rupee formatting utilities.
//
// Benefits and income ceilings are exact decimals; formatting only affects
// display and never the stored values.
package core

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrInvalidAmount = errors.New("invalid amount")

var (
	rupeePrinter = message.NewPrinter(language.English)
	maxInt64     = decimal.NewFromInt(math.MaxInt64)
)

// ParseAmount converts a dataset cell to an exact decimal.
//
// Thousands separators, a leading rupee sign and surrounding spaces are
// ignored. Negative values are rejected.
//
// Examples:
//
//	ParseAmount("5000")      -> 5000
//	ParseAmount("1,00,000")  -> 100000
//	ParseAmount("₹2,500.50") -> 2500.5
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// FormatRupees renders an amount with comma-grouped thousands ("5,000").
// The fractional part is appended only when it is non-zero.
func FormatRupees(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole := d.Truncate(0)
	var digits string
	if whole.LessThanOrEqual(maxInt64) {
		digits = rupeePrinter.Sprintf("%d", whole.IntPart())
	} else {
		digits = groupThousands(whole.String())
	}
	out := sign + digits
	if frac := d.Sub(whole); !frac.IsZero() {
		// "0.5" -> ".5"
		out += strings.TrimPrefix(frac.String(), "0")
	}
	return out
}

// groupThousands inserts commas into a plain digit string.
func groupThousands(digits string) string {
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatRupeesSymbol is FormatRupees prefixed with the rupee sign.
func FormatRupeesSymbol(d decimal.Decimal) string {
	return "₹" + FormatRupees(d)
}
