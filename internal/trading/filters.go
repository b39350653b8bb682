package trading

import (
	"fmt"

	"tw-screener/internal/models"
)

// Default filter thresholds.
const (
	DefaultMarginSurgeLots = 500.0
	DefaultMinRevenueYoY   = -100.0
)

// FilterSet holds the post-match exclusions applied to live scan candidates.
type FilterSet struct {
	ExcludeMarginSurge bool
	MarginSurgeLots    float64
	MinRevenueYoY      float64
	ExcludeLoss        bool
}

// DefaultFilterSet matches the scan defaults: loss makers excluded, margin
// surge check off, revenue floor disabled at -100%.
func DefaultFilterSet() FilterSet {
	return FilterSet{
		MarginSurgeLots: DefaultMarginSurgeLots,
		MinRevenueYoY:   DefaultMinRevenueYoY,
		ExcludeLoss:     true,
	}
}

// FilterInput carries the auxiliary data for one candidate.
type FilterInput struct {
	Code         string
	Margin       models.MarginChange
	Revenue      models.RevenueMap
	Fundamentals models.Fundamentals
}

// FilterDecision explains whether a candidate survives.
type FilterDecision struct {
	Keep    bool
	Reason  string
	Revenue models.RevenueGrowth
}

// revenue returns the candidate's revenue growth, {0, 0} when missing.
func (in FilterInput) revenue() models.RevenueGrowth {
	if in.Revenue == nil {
		return models.RevenueGrowth{}
	}
	return in.Revenue[in.Code]
}

// MarginSurge reports whether the margin balance grew by more than the limit.
// A missing code counts as no change.
func (f FilterSet) MarginSurge(code string, margin models.MarginChange) (float64, bool) {
	change := 0.0
	if margin != nil {
		change = margin[code]
	}
	return change, change > f.MarginSurgeLots
}

// RevenueTooWeak reports whether YoY growth is under the floor.
func (f FilterSet) RevenueTooWeak(growth models.RevenueGrowth) bool {
	return growth.YoY < f.MinRevenueYoY
}

// LossMaker reports a negative EPS or a missing P/E.
func LossMaker(fund models.Fundamentals) bool {
	return (fund.EPS != nil && *fund.EPS < 0) || fund.PE == nil
}

// Apply runs margin, revenue and loss checks in that order and stops at the
// first failure.
func (f FilterSet) Apply(in FilterInput) FilterDecision {
	growth := in.revenue()

	if f.ExcludeMarginSurge {
		if change, surged := f.MarginSurge(in.Code, in.Margin); surged {
			return FilterDecision{Reason: fmt.Sprintf("margin surge %.0f lots", change), Revenue: growth}
		}
	}

	if f.RevenueTooWeak(growth) {
		return FilterDecision{Reason: fmt.Sprintf("revenue yoy %.1f%% below %.1f%%", growth.YoY, f.MinRevenueYoY), Revenue: growth}
	}

	if f.ExcludeLoss && LossMaker(in.Fundamentals) {
		return FilterDecision{Reason: "loss making or no P/E", Revenue: growth}
	}

	return FilterDecision{Keep: true, Revenue: growth}
}

// PreCheck runs the margin and revenue checks only, so callers can skip the
// per-stock fundamentals fetch for candidates that are already rejected.
func (f FilterSet) PreCheck(in FilterInput) FilterDecision {
	probe := f
	probe.ExcludeLoss = false
	return probe.Apply(in)
}
