package cli

import (
	"fmt"
	"strings"
	"time"

	"tw-screener/pkg/utils"
)

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	return utils.FormatPercent(value)
}

// FormatPrice formats a price with two decimals.
func FormatPrice(price float64) string {
	return fmt.Sprintf("%.2f", price)
}

// FormatOptional formats a nullable value, "-" when absent.
func FormatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

// FormatLots formats a lot count with thousands separators.
func FormatLots(lots int64) string {
	return utils.FormatThousands(lots)
}

// FormatChange formats a price change.
func FormatChange(change, changePct float64) string {
	sign := ""
	if change > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f (%s%.2f%%)", sign, change, sign, changePct)
}

// FormatDate formats a date in Asia/Taipei.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return utils.ISODate(t)
}

// FormatDateTime formats a datetime in Asia/Taipei.
func FormatDateTime(t time.Time) string {
	return t.In(utils.TaipeiLocation).Format("2006-01-02 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// TruncateString truncates s to at most maxWidth terminal cells with an ellipsis.
func TruncateString(s string, maxWidth int) string {
	if DisplayWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 0 {
		return ""
	}
	if maxWidth == 1 {
		return "…"
	}
	var sb strings.Builder
	used := 0
	for _, r := range s {
		w := DisplayWidth(string(r))
		if used+w > maxWidth-1 {
			break
		}
		sb.WriteRune(r)
		used += w
	}
	return sb.String() + "…"
}

// PadRight pads s with spaces to the given terminal width.
func PadRight(s string, length int) string {
	w := DisplayWidth(s)
	if w >= length {
		return s
	}
	return s + strings.Repeat(" ", length-w)
}

// PadLeft pads s with spaces on the left to the given terminal width.
func PadLeft(s string, length int) string {
	w := DisplayWidth(s)
	if w >= length {
		return s
	}
	return strings.Repeat(" ", length-w) + s
}
