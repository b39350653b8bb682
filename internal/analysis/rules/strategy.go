// Package rules evaluates the screening strategies against an enriched
// candle series. Everything in this package is pure: no I/O, no caching and
// no errors for short or sparse data.
package rules

import (
	"fmt"
	"strings"

	apperrors "tw-screener/internal/errors"
)

// Strategy identifies one of the screening rules.
type Strategy string

const (
	// ChipConcentration looks for institutional buying that is large relative to the day's volume.
	ChipConcentration Strategy = "chip"
	// VolumeLowPullback looks for a quiet retest of the 200-day average from above.
	VolumeLowPullback Strategy = "pullback"
	// FalseBreakdownRecovery looks for a close back above the 200-day average after a recent dip below it.
	FalseBreakdownRecovery Strategy = "breakdown"
)

var strategyLabels = map[Strategy]string{
	ChipConcentration:      "籌碼衝鋒 (集中度高)",
	VolumeLowPullback:      "蜻蜓點水 (縮量回測)",
	FalseBreakdownRecovery: "浴火重生 (假跌破)",
}

var strategyNotes = map[Strategy]string{
	ChipConcentration:      "attack: institutional net buy above the threshold share of today's volume",
	VolumeLowPullback:      "defence: volume dries up while price holds within 3% of the 200-day MA",
	FalseBreakdownRecovery: "reversal: price dipped under the 200-day MA and closed back above it",
}

// Strategies returns every strategy in display order.
func Strategies() []Strategy {
	return []Strategy{ChipConcentration, VolumeLowPullback, FalseBreakdownRecovery}
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	_, ok := strategyLabels[s]
	return ok
}

// Label returns the display label used in the history log.
func (s Strategy) Label() string {
	if label, ok := strategyLabels[s]; ok {
		return label
	}
	return string(s)
}

// Note returns a one-line description of the rule.
func (s Strategy) Note() string {
	return strategyNotes[s]
}

func (s Strategy) String() string {
	return string(s)
}

// ParseStrategy accepts a strategy key ("chip", "pullback", "breakdown") or
// its display label.
func ParseStrategy(value string) (Strategy, error) {
	v := strings.TrimSpace(value)
	candidate := Strategy(strings.ToLower(v))
	if candidate.Valid() {
		return candidate, nil
	}
	for s, label := range strategyLabels {
		if v == label {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownStrategy, value)
}
