package postgres

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are stored as NUMERIC(12,2) major units and handled in minor units.

func numericStringToMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}

	return d.Shift(2).Round(0).IntPart(), nil
}

// numericStringToPercent parses a percent promotion value. Only whole
// percents are discounts the evaluator can apply exactly.
func numericStringToPercent(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("percent %s is not a whole number", d)
	}
	return d.IntPart(), nil
}

func minorToNumericString(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
