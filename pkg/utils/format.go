// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimal places.
func Round2(value float64) float64 {
	return RoundTo(value, 2)
}

// RoundTo rounds half away from zero to the given number of decimal places.
func RoundTo(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatThousands formats an integer with comma separators.
func FormatThousands(n int64) string {
	negative := n < 0
	if negative {
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

// FormatLots formats a share count as lots of 1000.
func FormatLots(shares int64) string {
	return FormatThousands(shares/1000) + " lots"
}

// FormatTWD formats an amount in compact Taiwanese units (億 = 1e8, 萬 = 1e4).
func FormatTWD(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 1e8:
		return fmt.Sprintf("%.2f億", amount/1e8)
	case abs >= 1e4:
		return fmt.Sprintf("%.1f萬", amount/1e4)
	default:
		return fmt.Sprintf("%.0f", amount)
	}
}

// ParseNumber parses numbers as printed by TWSE/TPEx: thousands separators,
// optional sign, "--" or "X" placeholders for missing values.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "+")
	if s == "" || s == "--" || s == "---" || s == "X" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
