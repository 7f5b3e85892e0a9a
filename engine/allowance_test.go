package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/engine"
)

func TestStandardAllowances_ProratesAcrossPeriods(t *testing.T) {
	// GIVEN: a yearly tax-free sum of 12000
	// WHEN: resolving one period's allowance per cadence
	// THEN: monthly 1000, semi-monthly 500, weekly 12000/52

	s := &engine.StandardAllowances{AnnualAllowance: m("12000")}
	payDate := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)

	got, err := s.CalculateAllowance(context.Background(), m("5000"), payDate, engine.PeriodMonthly, true)
	require.NoError(t, err)
	assert.True(t, m("1000").Equal(got))

	got, err = s.CalculateAllowance(context.Background(), m("5000"), payDate, engine.PeriodSemiMonthly, true)
	require.NoError(t, err)
	assert.True(t, m("500").Equal(got))

	got, err = s.CalculateAllowance(context.Background(), m("5000"), payDate, engine.PeriodWeekly, true)
	require.NoError(t, err)
	assert.True(t, m("12000").Div(m("52")).Equal(got))
}

func TestStandardAllowances_NeverExceedsTheEarning(t *testing.T) {
	s := &engine.StandardAllowances{AnnualAllowance: m("12000")}

	got, err := s.CalculateAllowance(context.Background(), m("600"), time.Now(), engine.PeriodMonthly, true)
	require.NoError(t, err)
	assert.True(t, m("600").Equal(got), "allowance is capped at the amount it offsets")
}

func TestStandardAllowances_NonResidentFactor(t *testing.T) {
	half := decimal.NewFromFloat(0.5)
	s := &engine.StandardAllowances{AnnualAllowance: m("12000"), NonResidentFactor: &half}

	got, err := s.CalculateAllowance(context.Background(), m("5000"), time.Now(), engine.PeriodMonthly, false)
	require.NoError(t, err)
	assert.True(t, m("500").Equal(got))

	// Residents are unaffected by the factor.
	got, err = s.CalculateAllowance(context.Background(), m("5000"), time.Now(), engine.PeriodMonthly, true)
	require.NoError(t, err)
	assert.True(t, m("1000").Equal(got))
}

func TestStandardAllowances_YearlyCapAccumulates(t *testing.T) {
	// GIVEN: a 1500 holiday cap
	// WHEN: applying 1000 twice in the same year
	// THEN: the second application only gets the remaining 500, and the
	//       third gets nothing

	s := &engine.StandardAllowances{HolidayCap: m("1500")}
	ctx := context.Background()

	got, err := s.ApplyYearlyCap(ctx, "w-1", m("1000"), 2026, engine.CapHoliday)
	require.NoError(t, err)
	assert.True(t, m("1000").Equal(got))

	got, err = s.ApplyYearlyCap(ctx, "w-1", m("1000"), 2026, engine.CapHoliday)
	require.NoError(t, err)
	assert.True(t, m("500").Equal(got))

	got, err = s.ApplyYearlyCap(ctx, "w-1", m("1000"), 2026, engine.CapHoliday)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestStandardAllowances_CapsAreScopedPerWorkerYearAndKind(t *testing.T) {
	s := &engine.StandardAllowances{HolidayCap: m("1000"), BonusCap: m("1000")}
	ctx := context.Background()

	_, err := s.ApplyYearlyCap(ctx, "w-1", m("1000"), 2026, engine.CapHoliday)
	require.NoError(t, err)

	// Different worker, different year, different kind: all untouched.
	got, _ := s.ApplyYearlyCap(ctx, "w-2", m("1000"), 2026, engine.CapHoliday)
	assert.True(t, m("1000").Equal(got))

	got, _ = s.ApplyYearlyCap(ctx, "w-1", m("1000"), 2027, engine.CapHoliday)
	assert.True(t, m("1000").Equal(got))

	got, _ = s.ApplyYearlyCap(ctx, "w-1", m("1000"), 2026, engine.CapBonus)
	assert.True(t, m("1000").Equal(got))
}

func TestStandardAllowances_ZeroCapMeansUncapped(t *testing.T) {
	s := &engine.StandardAllowances{}
	got, err := s.ApplyYearlyCap(context.Background(), "w-1", m("99999"), 2026, engine.CapHoliday)
	require.NoError(t, err)
	assert.True(t, m("99999").Equal(got))
}
