package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaipeiLocation is the timezone of the Taiwan exchanges.
var TaipeiLocation *time.Location

func init() {
	var err error
	TaipeiLocation, err = time.LoadLocation("Asia/Taipei")
	if err != nil {
		TaipeiLocation = time.FixedZone("CST", 8*60*60)
	}
}

// Clock returns the current time; sources take one so tests can pin the date.
type Clock func() time.Time

// TaipeiNow returns the current time in Asia/Taipei.
func TaipeiNow() time.Time {
	return time.Now().In(TaipeiLocation)
}

// DayStart truncates t to midnight in Asia/Taipei.
func DayStart(t time.Time) time.Time {
	t = t.In(TaipeiLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, TaipeiLocation)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsMarketOpen reports whether the regular session (09:00-13:30) is running.
func IsMarketOpen(t time.Time) bool {
	t = t.In(TaipeiLocation)
	if IsWeekend(t) {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 9*60 && minutes < 13*60+30
}

// LastTradingDay returns the closest weekday strictly before t.
func LastTradingDay(t time.Time) time.Time {
	d := DayStart(t).AddDate(0, 0, -1)
	for IsWeekend(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// CandidateDates lists the dates to try, newest first, when looking for the
// latest published daily report. Before cutoffHour the current day is not
// published yet and the search starts from yesterday. Each of the attempts
// covers one calendar day, and weekend days are dropped rather than replaced.
func CandidateDates(now time.Time, cutoffHour, attempts int) []time.Time {
	d := DayStart(now)
	if now.In(TaipeiLocation).Hour() < cutoffHour {
		d = d.AddDate(0, 0, -1)
	}
	dates := make([]time.Time, 0, attempts)
	for i := 0; i < attempts; i++ {
		if !IsWeekend(d) {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	return dates
}

// RevenueMonths lists report months to try, newest first. Monthly revenue is
// due by the 10th, so before the 12th the search starts two months back.
func RevenueMonths(now time.Time, attempts int) []time.Time {
	now = now.In(TaipeiLocation)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, TaipeiLocation)
	back := 1
	if now.Day() < 12 {
		back = 2
	}
	months := make([]time.Time, 0, attempts)
	for i := 0; i < attempts; i++ {
		months = append(months, first.AddDate(0, -(back+i), 0))
	}
	return months
}

// ROCYear converts a Gregorian year to the Minguo calendar year.
func ROCYear(t time.Time) int {
	return t.Year() - 1911
}

// ROCDate formats t as yyy/mm/dd in the Minguo calendar, as used by TPEx.
func ROCDate(t time.Time) string {
	return fmt.Sprintf("%d/%02d/%02d", ROCYear(t), int(t.Month()), t.Day())
}

// ParseROCDate parses yyy/mm/dd in the Minguo calendar.
func ParseROCDate(s string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid ROC date %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid ROC date %q: %w", s, err)
		}
		nums[i] = n
	}
	return time.Date(nums[0]+1911, time.Month(nums[1]), nums[2], 0, 0, 0, 0, TaipeiLocation), nil
}

// DateKey formats t as YYYYMMDD, the TWSE query format.
func DateKey(t time.Time) string {
	return t.In(TaipeiLocation).Format("20060102")
}

// ParseDateKey parses YYYYMMDD in Asia/Taipei.
func ParseDateKey(s string) (time.Time, error) {
	return time.ParseInLocation("20060102", strings.TrimSpace(s), TaipeiLocation)
}

// ISODate formats t as YYYY-MM-DD in Asia/Taipei.
func ISODate(t time.Time) string {
	return t.In(TaipeiLocation).Format("2006-01-02")
}

// ParseISODate parses YYYY-MM-DD in Asia/Taipei.
func ParseISODate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", strings.TrimSpace(s), TaipeiLocation)
}
