package math

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Boundary conversion between human decimal strings (wire/UI) and the scaled
// int64 representation used everywhere inside the engine. Arbitrary-precision
// decimals never leave this file.

// ParseScaled converts a decimal string like "95.50" into a scaled int64
// under the given config. Excess fractional digits are an error, not silently
// truncated — upstream producers must respect the configured precision.
func ParseScaled(s string, cfg DecimalConfig) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}

	shifted := d.Shift(int32(cfg.DecimalPrecision))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("decimal %q exceeds precision %d", s, cfg.DecimalPrecision)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("decimal %q overflows scaled int64", s)
	}

	return shifted.IntPart(), nil
}

// FormatScaled renders a scaled int64 back into a decimal string with the
// full configured precision, so "95.50" never degrades to "95.5" on the wire.
func FormatScaled(v int64, cfg DecimalConfig) string {
	return decimal.NewFromInt(v).Shift(-int32(cfg.DecimalPrecision)).StringFixed(int32(cfg.DecimalPrecision))
}

// ParsePrice parses a price string into price scale.
func ParsePrice(s string) (int64, error) { return ParseScaled(s, PriceConfig) }

// ParseQuantity parses a quantity string into quantity scale.
func ParseQuantity(s string) (int64, error) { return ParseScaled(s, QuantityConfig) }

// ParseQuote parses a quote-currency amount string into quote scale.
func ParseQuote(s string) (int64, error) { return ParseScaled(s, QuoteConfig) }

// FormatPrice renders a price-scale value.
func FormatPrice(v int64) string { return FormatScaled(v, PriceConfig) }

// FormatQuantity renders a quantity-scale value.
func FormatQuantity(v int64) string { return FormatScaled(v, QuantityConfig) }

// FormatQuote renders a quote-scale value.
func FormatQuote(v int64) string { return FormatScaled(v, QuoteConfig) }
