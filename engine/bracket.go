/*
bracket.go - Shared tiered/progressive bracket calculator

PURPOSE:
  One routine computes every progressive schedule in the system: tiered
  pay components (e.g. graduated commission) AND progressive tax brackets
  both delegate here. A divergent second implementation of slice-by-slice
  math is a correctness risk, so this is deliberately the ONLY place it
  exists.

ALGORITHM:
  Tiers are sorted ascending by threshold. For tier i with a next tier,
  the taxed slice is min(basis, nextThreshold) - threshold, applied only
  to the portion of the basis above the tier's threshold. The final tier
  is unbounded and consumes everything above its threshold.

  tiers: [{0, 10%}, {1000, 20%}], basis 1500
    slice 1: (1000 - 0)    × 0.10 = 100
    slice 2: (1500 - 1000) × 0.20 = 100
    total: 200

EDGE CASES:
  - basis at or below the first threshold → 0
  - empty tier list → 0
  - negative basis → 0 (a negative earning line has no progressive charge)

SEE ALSO:
  - tax.go: converts TaxBracket rows into tiers before calling here
  - evaluator.go: tiered components call here with Component.Tiers
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER - one step of a progressive schedule
// =============================================================================

// Tier is one step of a progressive schedule. Rate is a fraction
// (0.10 = 10%), unlike TaxBracket.RatePercentage which follows the
// percent convention of published tax tables.
type Tier struct {
	Threshold Money
	Rate      decimal.Decimal
}

// SortTiers returns a copy sorted ascending by threshold. The calculator
// sorts defensively; callers holding already-sorted tiers lose nothing.
func SortTiers(tiers []Tier) []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Threshold.LessThan(out[j].Threshold)
	})
	return out
}

// ValidateTiers checks that tiers are well-formed: non-empty, strictly
// ascending thresholds, non-negative rates.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return &ValidationError{Message: "tier list is empty"}
	}
	sorted := SortTiers(tiers)
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Threshold.GreaterThan(sorted[i-1].Threshold) {
			return &ValidationError{Message: "tier thresholds must be strictly ascending"}
		}
	}
	for _, t := range sorted {
		if t.Rate.IsNegative() {
			return &ValidationError{Message: "tier rate must not be negative"}
		}
	}
	return nil
}

// =============================================================================
// PROGRESSIVE CALCULATION
// =============================================================================

// ProgressiveAmount computes the progressive charge for basis against the
// given tiers. Malformed input (empty tiers, non-positive basis) yields
// zero rather than an error: a missing schedule means "no charge", and
// configuration-level validation happens upstream at authoring time.
func ProgressiveAmount(tiers []Tier, basis Money) Money {
	if len(tiers) == 0 || !basis.IsPositive() {
		return decimal.Zero
	}

	sorted := SortTiers(tiers)
	total := decimal.Zero

	for i, tier := range sorted {
		if basis.LessThanOrEqual(tier.Threshold) {
			break
		}

		// Upper bound of this tier's slice: next threshold, or the basis
		// itself for the final (unbounded) tier.
		upper := basis
		if i+1 < len(sorted) && sorted[i+1].Threshold.LessThan(basis) {
			upper = sorted[i+1].Threshold
		}

		slice := upper.Sub(tier.Threshold)
		total = total.Add(slice.Mul(tier.Rate))
	}

	return total
}
