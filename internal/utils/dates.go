package utils

import "time"

const DateLayout = "2006-01-02"

// DateRange is an inclusive [From, To] pair of YYYY-MM-DD days.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

const (
	PresetLast7Days    = "last7Days"
	PresetThisWeek     = "thisWeek"
	PresetLast30Days   = "last30Days"
	PresetThisMonth    = "thisMonth"
	PresetLast90Days   = "last90Days"
	PresetLast6Months  = "last6Months"
	PresetLast12Months = "last12Months"
	PresetThisYear     = "thisYear"
)

func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// Presets computes every named range ending on the local day of now.
// Weeks start on Monday.
func Presets(now time.Time) map[string]DateRange {
	y, m, d := now.Date()
	loc := now.Location()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := FormatDay(today)
	rng := func(start time.Time) DateRange {
		return DateRange{From: FormatDay(start), To: end}
	}

	weekday := int(today.Weekday())
	if weekday == 0 {
		weekday = 7
	}

	return map[string]DateRange{
		PresetLast7Days:    rng(today.AddDate(0, 0, -6)),
		PresetThisWeek:     rng(today.AddDate(0, 0, -(weekday - 1))),
		PresetLast30Days:   rng(today.AddDate(0, 0, -29)),
		PresetThisMonth:    rng(time.Date(y, m, 1, 0, 0, 0, 0, loc)),
		PresetLast90Days:   rng(today.AddDate(0, 0, -89)),
		PresetLast6Months:  rng(time.Date(y, m-5, d, 0, 0, 0, 0, loc)),
		PresetLast12Months: rng(time.Date(y, m-11, d, 0, 0, 0, 0, loc)),
		PresetThisYear:     rng(time.Date(y, 1, 1, 0, 0, 0, 0, loc)),
	}
}

func Preset(name string, now time.Time) (DateRange, bool) {
	r, ok := Presets(now)[name]
	return r, ok
}

// LastDays is the n-day window ending today.
func LastDays(n int, now time.Time) DateRange {
	if n <= 0 {
		n = 1
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return DateRange{From: FormatDay(today.AddDate(0, 0, -(n - 1))), To: FormatDay(today)}
}

// ValidRange reports whether both ends parse and From is not after To.
func ValidRange(r DateRange) bool {
	from, err := time.Parse(DateLayout, r.From)
	if err != nil {
		return false
	}
	to, err := time.Parse(DateLayout, r.To)
	if err != nil {
		return false
	}
	return !from.After(to)
}
