package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func fixedComponent(code string, seq int, amount string) engine.Component {
	v := m(amount)
	return engine.Component{
		Code:            engine.ComponentCode(code),
		Name:            code,
		Category:        engine.CategoryEarning,
		Type:            engine.CalcFixed,
		SequenceOrder:   seq,
		DefaultAmount:   &v,
		AffectsGrossPay: true,
		AffectsNetPay:   true,
		IsTaxable:       true,
	}
}

func draftTemplate(components ...engine.Component) *engine.PayStructureTemplate {
	return &engine.PayStructureTemplate{
		ID:           "tmpl-1",
		OrgID:        "org-1",
		TemplateCode: "test",
		Name:         "Test Template",
		Version:      engine.Version{Major: 1},
		Status:       engine.StatusDraft,
		Components:   components,
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestTemplate_Lifecycle_DraftToArchived(t *testing.T) {
	// GIVEN: a valid draft
	// WHEN: walking draft -> active -> deprecated -> archived
	// THEN: every step succeeds and no step can be reversed

	tmpl := draftTemplate(fixedComponent("BONUS", 1, "100"))

	require.NoError(t, tmpl.Publish())
	assert.Equal(t, engine.StatusActive, tmpl.Status)

	require.NoError(t, tmpl.TransitionTo(engine.StatusDeprecated))
	require.NoError(t, tmpl.TransitionTo(engine.StatusArchived))

	// No transitions out of archived.
	assert.Error(t, tmpl.TransitionTo(engine.StatusActive))
	assert.Error(t, tmpl.TransitionTo(engine.StatusDraft))
}

func TestTemplate_PublishedVersionIsFrozen(t *testing.T) {
	// Publishing freezes the component set forever; changes require a new
	// draft version.
	tmpl := draftTemplate(fixedComponent("BONUS", 1, "100"))
	require.NoError(t, tmpl.Publish())

	err := tmpl.AddComponent(fixedComponent("EXTRA", 2, "50"))
	assert.ErrorIs(t, err, engine.ErrTemplateFrozen)

	err = tmpl.RemoveComponent("BONUS")
	assert.ErrorIs(t, err, engine.ErrTemplateFrozen)

	assert.ErrorIs(t, tmpl.Publish(), engine.ErrTemplateFrozen, "re-publish is rejected")
}

func TestTemplate_PublishValidatesFirst(t *testing.T) {
	// An invalid draft cannot go active.
	tmpl := draftTemplate(
		fixedComponent("BONUS", 1, "100"),
		fixedComponent("BONUS", 2, "200"), // duplicate code
	)
	err := tmpl.Publish()
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
	assert.Equal(t, engine.StatusDraft, tmpl.Status, "failed publish leaves the draft mutable")
}

func TestTemplate_NewDraftBumpsMinorAndCopies(t *testing.T) {
	// GIVEN: a published v1.0.0
	// WHEN: cutting a new draft
	// THEN: the draft is 1.1.0, mutable, and independent of the original

	tmpl := draftTemplate(fixedComponent("BONUS", 1, "100"))
	require.NoError(t, tmpl.Publish())

	draft := tmpl.NewDraft()
	assert.Equal(t, "1.1.0", draft.Version.String())
	assert.Equal(t, engine.StatusDraft, draft.Status)
	require.NoError(t, draft.AddComponent(fixedComponent("EXTRA", 2, "50")))

	assert.Len(t, tmpl.Components, 1, "published version must be untouched")
	assert.Len(t, draft.Components, 2)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestTemplate_Validate_DuplicateSequenceOrder(t *testing.T) {
	a := fixedComponent("A", 1, "10")
	b := fixedComponent("B", 1, "20")
	err := draftTemplate(a, b).Validate()
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
}

func TestTemplate_Validate_TieredRequiresBasisAndTiers(t *testing.T) {
	tiered := engine.Component{
		Code: "PENSION", Category: engine.CategoryDeduction,
		Type: engine.CalcTiered, SequenceOrder: 1,
	}
	err := draftTemplate(tiered).Validate()
	require.Error(t, err, "tiered component without tiers must be rejected")

	tiered.Tiers = twoTiers()
	err = draftTemplate(tiered).Validate()
	require.Error(t, err, "tiered component without a basis must be rejected")

	tiered.Basis = engine.VarGrossEarnings
	assert.NoError(t, draftTemplate(tiered).Validate())
}

func TestTemplate_Validate_DependencyMustEvaluateEarlier(t *testing.T) {
	// Component B at order 1 cannot depend on A at order 2: the evaluator
	// walks ascending sequence order, so the value would not exist yet.
	a := fixedComponent("A", 2, "10")
	b := fixedComponent("B", 1, "20")
	b.DependsOn = []engine.ComponentCode{"A"}

	err := draftTemplate(a, b).Validate()
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))

	// Flip the order and the same dependency is fine.
	a.SequenceOrder, b.SequenceOrder = 1, 2
	assert.NoError(t, draftTemplate(a, b).Validate())
}

func TestTemplate_Validate_UnknownCategoryAndType(t *testing.T) {
	bad := fixedComponent("A", 1, "10")
	bad.Category = "mystery"
	assert.Error(t, draftTemplate(bad).Validate())

	bad = fixedComponent("A", 1, "10")
	bad.Type = "telepathy"
	assert.Error(t, draftTemplate(bad).Validate())
}

func TestVersion_CompareAndBump(t *testing.T) {
	v1 := engine.Version{Major: 1, Minor: 2, Patch: 3}
	assert.Equal(t, "1.2.3", v1.String())
	assert.Equal(t, "1.3.0", v1.BumpMinor().String())
	assert.Equal(t, "2.0.0", v1.BumpMajor().String())

	assert.Equal(t, -1, engine.Version{Major: 1}.Compare(engine.Version{Major: 2}))
	assert.Equal(t, 1, engine.Version{Major: 1, Minor: 1}.Compare(engine.Version{Major: 1}))
	assert.Equal(t, 0, v1.Compare(v1))
}
