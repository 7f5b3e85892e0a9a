package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/payroll-engine/engine"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPayPeriod_PeriodsPerYear(t *testing.T) {
	assert.Equal(t, 12, engine.PeriodMonthly.PeriodsPerYear())
	assert.Equal(t, 24, engine.PeriodSemiMonthly.PeriodsPerYear())
	assert.Equal(t, 26, engine.PeriodBiweekly.PeriodsPerYear())
	assert.Equal(t, 52, engine.PeriodWeekly.PeriodsPerYear())

	// Unset behaves as monthly, the dominant cadence.
	assert.Equal(t, 12, engine.PayPeriod("").PeriodsPerYear())
}

func TestPayPeriod_MonthlyRange(t *testing.T) {
	start, end := engine.PeriodMonthly.Range(date(2026, time.February, 17))
	assert.Equal(t, date(2026, time.February, 1), start)
	assert.Equal(t, date(2026, time.February, 28), end)

	// Month-length arithmetic, not a hardcoded day count.
	_, end = engine.PeriodMonthly.Range(date(2024, time.February, 10))
	assert.Equal(t, date(2024, time.February, 29), end)
}

func TestPayPeriod_SemiMonthlySplitsOnThe15th(t *testing.T) {
	start, end := engine.PeriodSemiMonthly.Range(date(2026, time.March, 15))
	assert.Equal(t, date(2026, time.March, 1), start)
	assert.Equal(t, date(2026, time.March, 15), end)

	start, end = engine.PeriodSemiMonthly.Range(date(2026, time.March, 16))
	assert.Equal(t, date(2026, time.March, 16), start)
	assert.Equal(t, date(2026, time.March, 31), end)
}

func TestPayPeriod_WeeklyAnchorsToMonday(t *testing.T) {
	// 2026-01-07 is a Wednesday; its ISO week runs Mon 5th - Sun 11th.
	start, end := engine.PeriodWeekly.Range(date(2026, time.January, 7))
	assert.Equal(t, date(2026, time.January, 5), start)
	assert.Equal(t, date(2026, time.January, 11), end)

	// A Sunday belongs to the week that started the previous Monday.
	start, _ = engine.PeriodWeekly.Range(date(2026, time.January, 11))
	assert.Equal(t, date(2026, time.January, 5), start)
}

func TestPayPeriod_BiweeklyCoversFourteenDays(t *testing.T) {
	start, end := engine.PeriodBiweekly.Range(date(2026, time.January, 20))
	assert.Equal(t, 13, int(end.Sub(start).Hours()/24))

	// Every date inside the period maps to the same period.
	s2, e2 := engine.PeriodBiweekly.Range(start.AddDate(0, 0, 9))
	assert.Equal(t, start, s2)
	assert.Equal(t, end, e2)
}

func TestDateOnly_TruncatesToUTCDay(t *testing.T) {
	stamp := time.Date(2026, time.June, 3, 23, 59, 58, 0, time.UTC)
	assert.Equal(t, date(2026, time.June, 3), engine.DateOnly(stamp))
}
