package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func m(s string) engine.Money { return engine.MustMoney(s) }

func twoTiers() []engine.Tier {
	return []engine.Tier{
		{Threshold: m("0"), Rate: m("0.10")},
		{Threshold: m("1000"), Rate: m("0.20")},
	}
}

// =============================================================================
// PROGRESSIVE CALCULATION
// =============================================================================

func TestProgressiveAmount_SlicesAcrossTiers(t *testing.T) {
	// GIVEN: tiers [{0, 10%}, {1000, 20%}]
	// WHEN: the basis spans both tiers
	// THEN: each slice is charged at its own rate
	//   1500 -> 1000×0.10 + 500×0.20 = 200

	got := engine.ProgressiveAmount(twoTiers(), m("1500"))
	assert.True(t, m("200").Equal(got), "expected 200, got %s", got)
}

func TestProgressiveAmount_BasisInsideFirstTier(t *testing.T) {
	// GIVEN: the same two tiers
	// WHEN: the basis stays below the second threshold
	// THEN: only the first rate applies: 800×0.10 = 80

	got := engine.ProgressiveAmount(twoTiers(), m("800"))
	assert.True(t, m("80").Equal(got), "expected 80, got %s", got)
}

func TestProgressiveAmount_BasisExactlyOnThreshold(t *testing.T) {
	// A basis exactly at a threshold pays nothing in the upper tier.
	got := engine.ProgressiveAmount(twoTiers(), m("1000"))
	assert.True(t, m("100").Equal(got), "expected 100, got %s", got)
}

func TestProgressiveAmount_ZeroAndNegativeBasis(t *testing.T) {
	assert.True(t, engine.ProgressiveAmount(twoTiers(), m("0")).IsZero())
	assert.True(t, engine.ProgressiveAmount(twoTiers(), m("-500")).IsZero())
}

func TestProgressiveAmount_EmptyTiers(t *testing.T) {
	// A missing schedule means "no charge", not an error.
	assert.True(t, engine.ProgressiveAmount(nil, m("1500")).IsZero())
}

func TestProgressiveAmount_UnsortedTiersAreSortedFirst(t *testing.T) {
	// The calculator sorts defensively: tier order in the template must
	// not change the result.
	reversed := []engine.Tier{
		{Threshold: m("1000"), Rate: m("0.20")},
		{Threshold: m("0"), Rate: m("0.10")},
	}
	got := engine.ProgressiveAmount(reversed, m("1500"))
	assert.True(t, m("200").Equal(got), "expected 200, got %s", got)
}

func TestProgressiveAmount_ThreeTiers(t *testing.T) {
	tiers := []engine.Tier{
		{Threshold: m("0"), Rate: m("0")},
		{Threshold: m("2000"), Rate: m("0.10")},
		{Threshold: m("5000"), Rate: m("0.25")},
	}
	// 8000 -> 2000×0 + 3000×0.10 + 3000×0.25 = 1050
	got := engine.ProgressiveAmount(tiers, m("8000"))
	assert.True(t, m("1050").Equal(got), "expected 1050, got %s", got)
}

// =============================================================================
// TIER VALIDATION
// =============================================================================

func TestValidateTiers_RejectsEmptyAndDuplicates(t *testing.T) {
	assert.Error(t, engine.ValidateTiers(nil), "empty tier list is a configuration error")

	dup := []engine.Tier{
		{Threshold: m("0"), Rate: m("0.10")},
		{Threshold: m("0"), Rate: m("0.20")},
	}
	err := engine.ValidateTiers(dup)
	assert.Error(t, err)
	assert.True(t, engine.IsValidation(err))
}

func TestValidateTiers_RejectsNegativeRate(t *testing.T) {
	bad := []engine.Tier{{Threshold: m("0"), Rate: m("-0.10")}}
	assert.Error(t, engine.ValidateTiers(bad))
}

func TestValidateTiers_AcceptsWellFormed(t *testing.T) {
	assert.NoError(t, engine.ValidateTiers(twoTiers()))
}
