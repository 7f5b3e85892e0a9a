package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

func wageBrackets() engine.TaxRuleSet {
	top := m("2000")
	return engine.TaxRuleSet{
		ID:           "wage-v1",
		Jurisdiction: "XX",
		TaxType:      engine.TaxWage,
		Method:       engine.MethodBracket,
		Brackets: []engine.TaxBracket{
			{IncomeMin: m("0"), IncomeMax: &top, RatePercentage: m("0")},
			{IncomeMin: m("2000"), RatePercentage: m("10")},
		},
		Version:       1,
		EffectiveFrom: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func flatRuleSet(taxType engine.TaxType, percent string) engine.TaxRuleSet {
	return engine.TaxRuleSet{
		ID:                 string(taxType) + "-flat",
		Jurisdiction:       "XX",
		TaxType:            taxType,
		Method:             engine.MethodFlatRate,
		FlatRatePercentage: m(percent),
		Version:            1,
		EffectiveFrom:      time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func taxInput(ruleSets []engine.TaxRuleSet, lines ...engine.TaxableLine) engine.TaxInput {
	return engine.TaxInput{
		WorkerID: "w-1",
		Lines:    lines,
		PayDate:  time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC),
		Period:   engine.PeriodMonthly,
		Resident: true,
		RuleSets: ruleSets,
	}
}

func taxable(code string, amount string) engine.TaxableLine {
	return engine.TaxableLine{
		ComponentCode: engine.ComponentCode(code),
		Amount:        m(amount),
		IsTaxable:     true,
		AllowanceType: engine.AllowanceNone,
	}
}

// failingAllowances always errors.
type failingAllowances struct{}

func (failingAllowances) CalculateAllowance(context.Context, engine.Money, time.Time, engine.PayPeriod, bool) (engine.Money, error) {
	return engine.Money{}, errors.New("allowance service unavailable")
}

func (failingAllowances) ApplyYearlyCap(context.Context, engine.WorkerID, engine.Money, int, engine.CapKind) (engine.Money, error) {
	return engine.Money{}, errors.New("allowance service unavailable")
}

// =============================================================================
// PROPORTIONAL DISTRIBUTION
// =============================================================================

func TestTax_Proportional_SharesSumToAggregate(t *testing.T) {
	// GIVEN: taxable components 3000 and 1000 under a progressive schedule
	//        (0% to 2000, 10% above)
	// WHEN: apportioning (bracket rule sets default to proportional)
	// THEN: tax is computed ONCE on 4000 (= 200) and split 150/50

	te := &engine.TaxEngine{}
	result, err := te.Apportion(context.Background(),
		taxInput([]engine.TaxRuleSet{wageBrackets()}, taxable("SALARY", "3000"), taxable("BONUS", "1000")))
	require.NoError(t, err)

	assert.True(t, m("200").Equal(result.Summary.TotalTax), "got %s", result.Summary.TotalTax)
	assert.Equal(t, engine.ModeProportional, result.Summary.ModeByType[engine.TaxWage])

	salary, ok := result.TaxByComponent("SALARY")
	require.True(t, ok)
	assert.True(t, m("150").Equal(salary.Taxes[engine.TaxWage]), "got %s", salary.Taxes[engine.TaxWage])

	bonus, _ := result.TaxByComponent("BONUS")
	assert.True(t, m("50").Equal(bonus.Taxes[engine.TaxWage]))

	// Proportional never under-collects: splitting 4000 into 3000+1000
	// before the brackets would have yielded 100+0.
	assert.Empty(t, result.Summary.Warnings)
}

func TestTax_Proportional_RemainderAbsorbedByLastComponent(t *testing.T) {
	// Three equal thirds of an aggregate that does not split evenly in
	// cents: shares must still sum exactly to the rounded aggregate.
	rs := flatRuleSet(engine.TaxWage, "10")
	rs.Mode = engine.ModeProportional

	te := &engine.TaxEngine{}
	result, err := te.Apportion(context.Background(),
		taxInput([]engine.TaxRuleSet{rs}, taxable("A", "33.33"), taxable("B", "33.33"), taxable("C", "33.34")))
	require.NoError(t, err)

	sum := engine.Money{}
	for _, c := range result.Components {
		sum = sum.Add(c.Taxes[engine.TaxWage])
	}
	assert.True(t, sum.Equal(result.Summary.TotalByType[engine.TaxWage]),
		"per-component shares (%s) must sum to the aggregate (%s)", sum, result.Summary.TotalByType[engine.TaxWage])
}

// =============================================================================
// COMPONENT-BASED
// =============================================================================

func TestTax_ComponentBased_FlatRatePerComponent(t *testing.T) {
	// Flat-rate rule sets default to component_based; for a flat rate the
	// per-component math equals the aggregate math.
	te := &engine.TaxEngine{}
	result, err := te.Apportion(context.Background(),
		taxInput([]engine.TaxRuleSet{flatRuleSet(engine.TaxOldAge, "5")}, taxable("SALARY", "3000"), taxable("BONUS", "1000")))
	require.NoError(t, err)

	assert.Equal(t, engine.ModeComponentBased, result.Summary.ModeByType[engine.TaxOldAge])
	assert.True(t, m("200").Equal(result.Summary.TotalTax))

	salary, _ := result.TaxByComponent("SALARY")
	assert.True(t, m("150").Equal(salary.Taxes[engine.TaxOldAge]))
}

func TestTax_ComponentBasedOnBrackets_WarnsAndProceeds(t *testing.T) {
	// GIVEN: a bracket rule set explicitly configured component_based
	// WHEN: apportioning
	// THEN: a warning is recorded but the calculation proceeds - the
	//       permissive behavior is deliberate

	rs := wageBrackets()
	rs.Mode = engine.ModeComponentBased

	te := &engine.TaxEngine{}
	result, err := te.Apportion(context.Background(),
		taxInput([]engine.TaxRuleSet{rs}, taxable("SALARY", "3000"), taxable("BONUS", "1000")))
	require.NoError(t, err, "misconfiguration warns, never errors")

	require.NotEmpty(t, result.Summary.Warnings)
	assert.Contains(t, result.Summary.Warnings[0], "component_based")

	// Per-component brackets under-collect: 3000 -> 100, 1000 -> 0.
	assert.True(t, m("100").Equal(result.Summary.TotalTax), "got %s", result.Summary.TotalTax)
}

// =============================================================================
// AGGREGATED
// =============================================================================

func TestTax_Aggregated_SummaryOnlyNoApportionment(t *testing.T) {
	rs := wageBrackets()
	rs.Mode = engine.ModeAggregated

	te := &engine.TaxEngine{}
	result, err := te.Apportion(context.Background(),
		taxInput([]engine.TaxRuleSet{rs}, taxable("SALARY", "3000"), taxable("BONUS", "1000")))
	require.NoError(t, err)

	assert.True(t, m("200").Equal(result.Summary.TotalByType[engine.TaxWage]))
	for _, c := range result.Components {
		assert.True(t, c.Taxes[engine.TaxWage].IsZero(), "aggregated mode leaves components unapportioned")
	}
}

// =============================================================================
// MULTIPLE TAX TYPES
// =============================================================================

func TestTax_IndependentModePerTaxType(t *testing.T) {
	// Wage tax on brackets (proportional) alongside flat old-age and
	// survivor taxes (component_based), one pass.
	te := &engine.TaxEngine{}
	result, err := te.Apportion(context.Background(),
		taxInput(
			[]engine.TaxRuleSet{wageBrackets(), flatRuleSet(engine.TaxOldAge, "5"), flatRuleSet(engine.TaxSurvivor, "1")},
			taxable("SALARY", "3000"), taxable("BONUS", "1000")))
	require.NoError(t, err)

	assert.True(t, m("200").Equal(result.Summary.TotalByType[engine.TaxWage]))
	assert.True(t, m("200").Equal(result.Summary.TotalByType[engine.TaxOldAge]))
	assert.True(t, m("40").Equal(result.Summary.TotalByType[engine.TaxSurvivor]))
	assert.True(t, m("440").Equal(result.Summary.TotalTax))

	salary, _ := result.TaxByComponent("SALARY")
	assert.True(t, m("330").Equal(salary.TotalTax), "150 + 150 + 30")

	// EffectiveRate = 440 / 4000
	assert.True(t, m("0.11").Equal(result.Summary.EffectiveRate))
}

// =============================================================================
// ALLOWANCES
// =============================================================================

func TestTax_AllowanceReducesTaxableIncome(t *testing.T) {
	// GIVEN: a monthly allowance of 1000 (12000/year) on the salary line
	// WHEN: apportioning 5000 gross under the progressive schedule
	// THEN: taxable income is 4000 and tax is 200

	te := &engine.TaxEngine{Allowances: &engine.StandardAllowances{AnnualAllowance: m("12000")}}

	line := taxable("SALARY", "5000")
	line.AllowanceType = engine.AllowanceMonthly

	result, err := te.Apportion(context.Background(), taxInput([]engine.TaxRuleSet{wageBrackets()}, line))
	require.NoError(t, err)

	salary, _ := result.TaxByComponent("SALARY")
	assert.True(t, m("1000").Equal(salary.Allowance))
	assert.True(t, m("4000").Equal(salary.TaxableIncome))
	assert.True(t, m("200").Equal(result.Summary.TotalTax))
}

func TestTax_AllowanceNeverExceedsTheEarning(t *testing.T) {
	// taxableIncome = max(0, amount - allowance): a small holiday bonus
	// with a big allowance taxes at zero, never negative.
	te := &engine.TaxEngine{Allowances: &engine.StandardAllowances{AnnualAllowance: m("24000")}}

	line := taxable("SALARY", "800")
	line.AllowanceType = engine.AllowanceMonthly

	result, err := te.Apportion(context.Background(), taxInput([]engine.TaxRuleSet{wageBrackets()}, line))
	require.NoError(t, err)

	salary, _ := result.TaxByComponent("SALARY")
	assert.True(t, salary.TaxableIncome.IsZero())
	assert.False(t, salary.TaxableIncome.IsNegative())
}

func TestTax_AllowanceFailureDegradesToZeroWithWarning(t *testing.T) {
	// GIVEN: an allowance collaborator that errors
	// WHEN: apportioning
	// THEN: the component is taxed with zero allowance, a warning is
	//       recorded, and the calculation completes

	te := &engine.TaxEngine{Allowances: failingAllowances{}}

	line := taxable("SALARY", "5000")
	line.AllowanceType = engine.AllowanceMonthly

	result, err := te.Apportion(context.Background(), taxInput([]engine.TaxRuleSet{wageBrackets()}, line))
	require.NoError(t, err, "allowance failures degrade, never abort")

	salary, _ := result.TaxByComponent("SALARY")
	assert.True(t, salary.Allowance.IsZero())
	assert.True(t, m("5000").Equal(salary.TaxableIncome))
	require.NotEmpty(t, result.Summary.Warnings)
	assert.Contains(t, result.Summary.Warnings[0], "allowance")
}

func TestTax_NonTaxableComponentPassesThrough(t *testing.T) {
	reimb := engine.TaxableLine{ComponentCode: "EXPENSES", Amount: m("300"), IsTaxable: false}

	te := &engine.TaxEngine{}
	result, err := te.Apportion(context.Background(), taxInput([]engine.TaxRuleSet{wageBrackets()}, taxable("SALARY", "3000"), reimb))
	require.NoError(t, err)

	expenses, ok := result.TaxByComponent("EXPENSES")
	require.True(t, ok, "non-taxable components stay in the output for transparency")
	assert.True(t, expenses.TaxableIncome.IsZero())
	assert.True(t, expenses.TotalTax.IsZero())

	// Gross still counts the non-taxable line.
	assert.True(t, m("3300").Equal(result.Summary.TotalGrossPay))
}

// =============================================================================
// LEGACY AGGREGATE-ONLY PATH
// =============================================================================

func TestTax_ApportionGross_MatchesSingleLineEquivalent(t *testing.T) {
	// The legacy path treats one gross figure as a single synthetic
	// component with the monthly allowance.
	te := &engine.TaxEngine{Allowances: &engine.StandardAllowances{AnnualAllowance: m("12000")}}

	result, err := te.ApportionGross(context.Background(), "w-1", m("5000"),
		time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC),
		engine.PeriodMonthly, true, []engine.TaxRuleSet{wageBrackets()})
	require.NoError(t, err)

	require.Len(t, result.Components, 1)
	assert.Equal(t, engine.ComponentCode("GROSS_PAY"), result.Components[0].ComponentCode)
	assert.True(t, m("200").Equal(result.Summary.TotalTax))
}

// =============================================================================
// RULE SET MECHANICS
// =============================================================================

func TestTaxRuleSet_FixedAmountAddsOnTopOfSlices(t *testing.T) {
	// Jurisdictions publishing "fixed fee + rate over threshold" schedules:
	// the fixed charge of the bracket the basis lands in is additive.
	top := m("2000")
	rs := wageBrackets()
	rs.Brackets = []engine.TaxBracket{
		{IncomeMin: m("0"), IncomeMax: &top, RatePercentage: m("0")},
		{IncomeMin: m("2000"), RatePercentage: m("10"), FixedAmount: m("25")},
	}

	// 4000 -> progressive 200 + fixed 25
	assert.True(t, m("225").Equal(rs.TaxOn(m("4000"))))
	// 1500 stays in the first bracket: no fixed charge
	assert.True(t, rs.TaxOn(m("1500")).IsZero())
}

func TestTaxRuleSet_Validate(t *testing.T) {
	bad := wageBrackets()
	bad.Brackets[1].IncomeMin = m("0") // duplicate threshold
	assert.Error(t, bad.Validate())

	unknown := wageBrackets()
	unknown.Mode = "guesswork"
	assert.Error(t, unknown.Validate())

	negative := flatRuleSet(engine.TaxWage, "5")
	negative.FlatRatePercentage = m("-5")
	assert.Error(t, negative.Validate())

	assert.NoError(t, wageBrackets().Validate())
}
