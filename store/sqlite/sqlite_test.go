package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func m(s string) engine.Money { return engine.MustMoney(s) }

func date(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "payroll.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleTemplate(t *testing.T) engine.PayStructureTemplate {
	t.Helper()
	rate := m("10")
	tmpl := engine.PayStructureTemplate{
		ID: "tmpl-1", OrgID: "org-1", TemplateCode: "monthly", Name: "Monthly",
		Version: engine.Version{Major: 1},
		Components: []engine.Component{{
			Code: "HOUSING", Name: "Housing Allowance",
			Category: engine.CategoryEarning, Type: engine.CalcPercentage,
			SequenceOrder: 2, Rate: &rate, Basis: engine.VarBaseSalary,
			AffectsGrossPay: true, AffectsNetPay: true, IsTaxable: true,
		}},
	}
	require.NoError(t, tmpl.Publish())
	return tmpl
}

func sampleAssignment(id string, from time.Time) engine.WorkerStructureAssignment {
	salary := m("5000")
	return engine.WorkerStructureAssignment{
		ID: id, OrgID: "org-1", WorkerID: "w-1",
		TemplateID: "tmpl-1", Version: engine.Version{Major: 1},
		EffectiveFrom: from, BaseSalary: &salary,
	}
}

// =============================================================================
// TEMPLATES
// =============================================================================

func TestSQLite_TemplateRoundTrip(t *testing.T) {
	// GIVEN: a published template with a JSON-document component set
	// WHEN: saving and loading it back
	// THEN: every field survives, including nested component parameters

	st := newStore(t)
	ctx := context.Background()
	tmpl := sampleTemplate(t)

	require.NoError(t, st.SaveTemplate(ctx, tmpl))

	got, err := st.GetTemplate(ctx, "tmpl-1", engine.Version{Major: 1})
	require.NoError(t, err)

	assert.Equal(t, tmpl.Name, got.Name)
	assert.Equal(t, engine.StatusActive, got.Status)
	assert.Equal(t, "1.0.0", got.Version.String())
	require.Len(t, got.Components, 1)
	housing := got.Components[0]
	assert.Equal(t, engine.CalcPercentage, housing.Type)
	require.NotNil(t, housing.Rate)
	assert.True(t, m("10").Equal(*housing.Rate))
	assert.True(t, housing.IsTaxable)
}

func TestSQLite_SaveTemplateUpsertsSameVersion(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	tmpl := sampleTemplate(t)
	require.NoError(t, st.SaveTemplate(ctx, tmpl))

	tmpl.Name = "Monthly (renamed)"
	require.NoError(t, st.SaveTemplate(ctx, tmpl))

	list, err := st.ListTemplates(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, list, 1, "same (id, version) must update, not duplicate")
	assert.Equal(t, "Monthly (renamed)", list[0].Name)
}

func TestSQLite_GetTemplateUnknownVersionIsNotFound(t *testing.T) {
	st := newStore(t)
	_, err := st.GetTemplate(context.Background(), "tmpl-1", engine.Version{Major: 9})
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestSQLite_ResolveCurrentAssignment(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveTemplate(ctx, sampleTemplate(t)))
	require.NoError(t, st.CreateAssignment(ctx, sampleAssignment("asg-1", date(2025, time.January, 1))))

	resolved, err := st.ResolveCurrentAssignment(ctx, "org-1", "w-1", date(2026, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, "asg-1", resolved.Assignment.ID)
	require.NotNil(t, resolved.Assignment.BaseSalary)
	assert.True(t, m("5000").Equal(*resolved.Assignment.BaseSalary))
	assert.Equal(t, engine.TemplateID("tmpl-1"), resolved.Template.ID)

	// Before the assignment starts there is nothing to resolve.
	_, err = st.ResolveCurrentAssignment(ctx, "org-1", "w-1", date(2024, time.June, 1))
	assert.True(t, engine.IsNotFound(err))
}

func TestSQLite_CreateAssignmentRejectsOverlap(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateAssignment(ctx, sampleAssignment("asg-1", date(2025, time.January, 1))))

	err := st.CreateAssignment(ctx, sampleAssignment("asg-2", date(2026, time.March, 1)))
	assert.ErrorIs(t, err, engine.ErrOverlappingAssignment)
}

func TestSQLite_ReassignWorkerIsTransactional(t *testing.T) {
	// GIVEN: an open-ended assignment
	// WHEN: reassigning effective 2026-03-01
	// THEN: exactly one assignment covers any date - the old one ends
	//       2026-02-28, the new one starts 2026-03-01

	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveTemplate(ctx, sampleTemplate(t)))
	require.NoError(t, st.CreateAssignment(ctx, sampleAssignment("asg-1", date(2025, time.January, 1))))

	next := sampleAssignment("asg-2", date(2026, time.March, 1))
	raise := m("6000")
	next.BaseSalary = &raise
	require.NoError(t, st.ReassignWorker(ctx, next))

	before, err := st.ResolveCurrentAssignment(ctx, "org-1", "w-1", date(2026, time.February, 28))
	require.NoError(t, err)
	assert.Equal(t, "asg-1", before.Assignment.ID)
	require.NotNil(t, before.Assignment.EffectiveTo)
	assert.Equal(t, date(2026, time.February, 28), engine.DateOnly(*before.Assignment.EffectiveTo))

	after, err := st.ResolveCurrentAssignment(ctx, "org-1", "w-1", date(2026, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, "asg-2", after.Assignment.ID)
	assert.True(t, m("6000").Equal(*after.Assignment.BaseSalary))
}

// =============================================================================
// OVERRIDES
// =============================================================================

func TestSQLite_OverrideRoundTripAndEffectiveWindow(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveTemplate(ctx, sampleTemplate(t)))
	require.NoError(t, st.CreateAssignment(ctx, sampleAssignment("asg-1", date(2025, time.January, 1))))

	amount := m("250.50")
	expiredTo := date(2025, time.June, 30)
	require.NoError(t, st.SaveOverride(ctx, engine.ComponentOverride{
		ID: "ov-old", WorkerID: "w-1", ComponentCode: "HOUSING", Disabled: true,
		Reason: "probation", EffectiveFrom: date(2025, time.January, 1), EffectiveTo: &expiredTo,
	}))
	require.NoError(t, st.SaveOverride(ctx, engine.ComponentOverride{
		ID: "ov-current", WorkerID: "w-1", ComponentCode: "HOUSING", Amount: &amount,
		Reason: "relocation", EffectiveFrom: date(2025, time.July, 1),
	}))

	// Resolution filters to the active window.
	resolved, err := st.ResolveCurrentAssignment(ctx, "org-1", "w-1", date(2026, time.January, 31))
	require.NoError(t, err)
	require.Len(t, resolved.Overrides, 1)
	assert.Equal(t, "ov-current", resolved.Overrides[0].ID)
	require.NotNil(t, resolved.Overrides[0].Amount)
	assert.True(t, m("250.50").Equal(*resolved.Overrides[0].Amount))

	// The full list still shows both.
	all, err := st.ListOverrides(ctx, "w-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, st.DeleteOverride(ctx, "w-1", "ov-old"))
	err = st.DeleteOverride(ctx, "w-1", "ov-old")
	assert.True(t, engine.IsNotFound(err))
}

// =============================================================================
// TAX RULE SETS
// =============================================================================

func TestSQLite_TaxRuleSetRoundTripLatestVersionWins(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	top := m("2000")
	brackets := []engine.TaxBracket{
		{IncomeMin: m("0"), IncomeMax: &top, RatePercentage: m("0")},
		{IncomeMin: m("2000"), RatePercentage: m("10")},
	}
	require.NoError(t, st.SaveTaxRuleSet(ctx, engine.TaxRuleSet{
		ID: "wage-v1", Jurisdiction: "XX", TaxType: engine.TaxWage,
		Method: engine.MethodBracket, Brackets: brackets,
		Version: 1, EffectiveFrom: date(2024, time.January, 1),
	}))
	require.NoError(t, st.SaveTaxRuleSet(ctx, engine.TaxRuleSet{
		ID: "wage-v2", Jurisdiction: "XX", TaxType: engine.TaxWage,
		Method: engine.MethodBracket, Brackets: brackets,
		Version: 2, EffectiveFrom: date(2025, time.January, 1),
	}))
	require.NoError(t, st.SaveTaxRuleSet(ctx, engine.TaxRuleSet{
		ID: "oldage-v1", Jurisdiction: "XX", TaxType: engine.TaxOldAge,
		Method: engine.MethodFlatRate, FlatRatePercentage: m("17.9"),
		Version: 1, EffectiveFrom: date(2024, time.January, 1),
	}))

	found, err := st.FindTaxRuleSets(ctx, "XX", date(2026, time.January, 31))
	require.NoError(t, err)
	require.Len(t, found, 2)

	byType := make(map[engine.TaxType]engine.TaxRuleSet)
	for _, rs := range found {
		byType[rs.TaxType] = rs
	}
	assert.Equal(t, 2, byType[engine.TaxWage].Version)
	require.Len(t, byType[engine.TaxWage].Brackets, 2)
	require.NotNil(t, byType[engine.TaxWage].Brackets[0].IncomeMax)
	assert.True(t, m("17.9").Equal(byType[engine.TaxOldAge].FlatRatePercentage))

	// The loaded schedule still computes: (4000-2000) x 10%.
	assert.True(t, m("200").Equal(byType[engine.TaxWage].TaxOn(m("4000"))))
}
