package engine

import "time"

// =============================================================================
// PAY PERIOD - the cadence a worker is paid on
// =============================================================================

// PayPeriod is the payroll cadence. It drives allowance proration and the
// date range a calculation covers. The engine itself does not model
// scheduling; it only needs to know how long "one period" is.
type PayPeriod string

const (
	PeriodMonthly     PayPeriod = "monthly"
	PeriodSemiMonthly PayPeriod = "semi_monthly"
	PeriodBiweekly    PayPeriod = "biweekly"
	PeriodWeekly      PayPeriod = "weekly"
)

// PeriodsPerYear returns how many pay periods a year holds.
func (p PayPeriod) PeriodsPerYear() int {
	switch p {
	case PeriodSemiMonthly:
		return 24
	case PeriodBiweekly:
		return 26
	case PeriodWeekly:
		return 52
	default: // monthly or unset
		return 12
	}
}

// Range returns the [start, end] dates of the period containing date.
// Biweekly and weekly periods are anchored to the ISO week (Monday start);
// semi-monthly splits on the 15th.
func (p PayPeriod) Range(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	loc := date.Location()
	switch p {
	case PeriodSemiMonthly:
		if d <= 15 {
			return time.Date(y, m, 1, 0, 0, 0, 0, loc), time.Date(y, m, 15, 0, 0, 0, 0, loc)
		}
		return time.Date(y, m, 16, 0, 0, 0, 0, loc), endOfMonth(y, m, loc)
	case PeriodWeekly:
		start := startOfISOWeek(date)
		return start, start.AddDate(0, 0, 6)
	case PeriodBiweekly:
		// Anchor biweekly periods to the first ISO week of the year.
		start := startOfISOWeek(date)
		anchor := startOfISOWeek(time.Date(y, time.January, 4, 0, 0, 0, 0, loc))
		weeks := int(start.Sub(anchor).Hours() / 24 / 7)
		if weeks%2 != 0 {
			start = start.AddDate(0, 0, -7)
		}
		return start, start.AddDate(0, 0, 13)
	default: // monthly
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), endOfMonth(y, m, loc)
	}
}

func endOfMonth(y int, m time.Month, loc *time.Location) time.Time {
	return time.Date(y, m+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
}

func startOfISOWeek(date time.Time) time.Time {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	wd := int(day.Weekday())
	if wd == 0 {
		wd = 7 // Sunday
	}
	return day.AddDate(0, 0, 1-wd)
}

// =============================================================================
// DATE HELPERS - effective-range checks shared by assignments and overrides
// =============================================================================

// DateOnly truncates a timestamp to its calendar day in UTC. Effective
// ranges are day-granular.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// withinRange reports whether at falls inside [from, to]; to == nil means
// open-ended.
func withinRange(at, from time.Time, to *time.Time) bool {
	at, from = DateOnly(at), DateOnly(from)
	if at.Before(from) {
		return false
	}
	if to != nil && at.After(DateOnly(*to)) {
		return false
	}
	return true
}
