/*
evaluator.go - Ordered component evaluation pipeline

PURPOSE:
  Walks a template's components in ascending sequence order, computes
  each value, and grows a running context so later components can
  reference earlier results. This is strictly sequential by contract:
  component N may read component 1..N-1's value, so no reordering or
  parallel evaluation is permitted inside one worker's pipeline.

PIPELINE (per component):
  1. Disabled override?            -> skip (excluded from output AND totals)
  2. Temporal eligibility?         -> external collaborator, fail-closed
  3. Compute by calculation type      (fixed/percentage/formula/hourly/
                                       tiered/external)
  4. Clamp                            (min before max, independent checks)
  5. Round to 2 decimals, register under the component's code, accumulate
     GROSS_EARNINGS for gross-affecting earnings

SYNTHETIC BASE:
  Before template components run, exactly one base entry is injected:
  BASE_SALARY when a salary is present, else REGULAR_PAY = rate x hours.
  This guarantees base compensation is visible to later formula and
  percentage components even when the template defines no explicit base
  component. A template that DOES define a component with the same code
  suppresses the injection - there is never more than one base entry.

FAILURE:
  Any error while evaluating one component aborts the whole worker
  calculation with a CalculationError naming that component. Eligibility
  evaluation failures are the one exception: they degrade to "not
  qualified" and the component is skipped.
*/
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVALUATION INPUT
// =============================================================================

// EvaluationInput is everything one pipeline run consumes.
type EvaluationInput struct {
	WorkerID   WorkerID
	Components []Component // evaluated in ascending SequenceOrder
	Overrides  OverrideMap
	Seed       *Context // cloned before use; caller's copy is untouched
	AsOf       time.Time

	// Pay basis, also mirrored into the seed context.
	BaseSalary  *Money
	HourlyRate  *Money
	HoursWorked Money
}

// =============================================================================
// COMPONENT EVALUATOR
// =============================================================================

// ComponentEvaluator runs the ordered pipeline. Formulas is required when
// any component uses formula calculation; Eligibility is optional (nil
// means every conditioned component qualifies).
type ComponentEvaluator struct {
	Formulas    *FormulaEvaluator
	Eligibility EligibilityEvaluator
}

// Evaluate runs the pipeline and returns the ordered calculation lines.
func (e *ComponentEvaluator) Evaluate(ctx context.Context, in EvaluationInput) ([]CalculationLine, error) {
	cctx := in.Seed
	if cctx == nil {
		cctx = NewContext()
	} else {
		cctx = cctx.Clone()
	}

	if in.HourlyRate != nil && !cctx.Has(VarHourlyRate) {
		cctx.Set(VarHourlyRate, *in.HourlyRate)
	}
	if !cctx.Has(VarHoursWorked) {
		cctx.Set(VarHoursWorked, in.HoursWorked)
	}

	components := orderComponents(in.Components)

	var lines []CalculationLine
	if base, ok := syntheticBase(in, components); ok {
		lines = append(lines, base)
		cctx.Set(string(base.Code), base.Amount)
		cctx.Add(VarGrossEarnings, base.Amount)
	}

	// computed holds per-component results for basis lookup; components
	// win over seed variables of the same name.
	computed := make(map[string]Money)
	for _, line := range lines {
		computed[string(line.Code)] = line.Amount
	}

	for _, comp := range components {
		override, hasOverride := in.Overrides[comp.Code]

		if hasOverride && override.Disabled {
			continue // excluded from output and from gross-pay totals
		}

		if comp.Eligibility != nil && !e.qualifies(ctx, in.WorkerID, comp, in.AsOf) {
			continue
		}

		raw, meta, err := e.compute(comp, override, hasOverride, cctx, computed)
		if err != nil {
			return nil, &CalculationError{ComponentCode: comp.Code, Message: "evaluation failed", Cause: err}
		}

		clamped, wasClamped := ClampMoney(raw, comp.MinAmount, comp.MaxAmount)
		amount := Round2(clamped)

		meta[MetaCalculationType] = string(effectiveType(comp, override, hasOverride))
		if wasClamped {
			meta[MetaClamped] = "true"
		}
		if hasOverride {
			meta[MetaOverridden] = "true"
		}

		line := CalculationLine{
			Code:            comp.Code,
			Name:            comp.Name,
			Category:        comp.Category,
			Amount:          amount,
			IsTaxable:       comp.IsTaxable,
			AllowanceType:   comp.AllowanceType,
			AffectsGrossPay: comp.AffectsGrossPay,
			AffectsNetPay:   comp.AffectsNetPay,
			Metadata:        meta,
		}
		lines = append(lines, line)

		// Register under the component's code for downstream reference.
		cctx.Set(string(comp.Code), amount)
		computed[string(comp.Code)] = amount

		if comp.Category == CategoryEarning && comp.AffectsGrossPay {
			cctx.Add(VarGrossEarnings, amount)
		}
	}

	return lines, nil
}

// =============================================================================
// SYNTHETIC BASE ENTRY
// =============================================================================

// syntheticBase builds the injected base compensation line, unless the
// template already defines a component under the same code.
func syntheticBase(in EvaluationInput, components []Component) (CalculationLine, bool) {
	var code ComponentCode
	var name string
	var amount Money

	switch {
	case in.BaseSalary != nil:
		code, name = ComponentCode(VarBaseSalary), "Base Salary"
		amount = *in.BaseSalary
	case in.HourlyRate != nil:
		code, name = ComponentCode(VarRegularPay), "Regular Pay"
		amount = in.HourlyRate.Mul(in.HoursWorked)
	default:
		return CalculationLine{}, false
	}

	for _, c := range components {
		if c.Code == code {
			return CalculationLine{}, false
		}
	}

	return CalculationLine{
		Code:            code,
		Name:            name,
		Category:        CategoryEarning,
		Amount:          Round2(amount),
		IsTaxable:       true,
		AllowanceType:   AllowanceMonthly,
		AffectsGrossPay: true,
		AffectsNetPay:   true,
		Metadata:        map[string]string{MetaSource: SourceSynthetic},
	}, true
}

// =============================================================================
// PER-TYPE COMPUTATION
// =============================================================================

func effectiveType(comp Component, o ComponentOverride, hasOverride bool) CalculationType {
	if hasOverride && o.Type != nil {
		return *o.Type
	}
	return comp.Type
}

func (e *ComponentEvaluator) compute(
	comp Component,
	override ComponentOverride,
	hasOverride bool,
	cctx *Context,
	computed map[string]Money,
) (Money, map[string]string, error) {
	meta := map[string]string{MetaSource: SourceTemplate}

	switch effectiveType(comp, override, hasOverride) {
	case CalcFixed:
		return e.computeFixed(comp, override, hasOverride), meta, nil

	case CalcPercentage:
		return e.computePercentage(comp, override, hasOverride, cctx, computed, meta)

	case CalcHourlyRate:
		return e.computeHourly(comp, override, hasOverride, cctx, meta), meta, nil

	case CalcFormula:
		return e.computeFormula(comp, override, hasOverride, cctx, computed, meta)

	case CalcTiered:
		return e.computeTiered(comp, cctx, computed, meta)

	case CalcExternal:
		// Value produced by an out-of-scope collaborator (benefits feed,
		// expense system) and handed in via the seed context under the
		// component's code. Absent means zero, not an error.
		meta[MetaSource] = SourceExternal
		return cctx.Get(string(comp.Code)), meta, nil

	default:
		return decimal.Zero, meta, &ValidationError{ComponentCode: comp.Code,
			Message: fmt.Sprintf("unsupported calculation type %q", comp.Type)}
	}
}

func (e *ComponentEvaluator) computeFixed(comp Component, o ComponentOverride, hasOverride bool) Money {
	if hasOverride && o.Amount != nil {
		return *o.Amount
	}
	if comp.DefaultAmount != nil {
		return *comp.DefaultAmount
	}
	return decimal.Zero
}

func (e *ComponentEvaluator) computePercentage(
	comp Component, o ComponentOverride, hasOverride bool,
	cctx *Context, computed map[string]Money, meta map[string]string,
) (Money, map[string]string, error) {
	basis, ok := lookupBasis(comp.Basis, cctx, computed)
	if !ok {
		return decimal.Zero, meta, &ValidationError{ComponentCode: comp.Code,
			Message: fmt.Sprintf("basis %q is not a computed component or context variable", comp.Basis)}
	}

	rate := decimal.Zero
	if comp.Rate != nil {
		rate = *comp.Rate
	}
	if hasOverride && o.Percentage != nil {
		rate = *o.Percentage
	}

	meta[MetaBasis] = comp.Basis
	meta[MetaBasisValue] = basis.String()
	meta[MetaRate] = rate.String()

	// Rate follows the percent convention (10 = 10%).
	return basis.Mul(rate).Div(decimal.NewFromInt(100)), meta, nil
}

func (e *ComponentEvaluator) computeHourly(
	comp Component, o ComponentOverride, hasOverride bool,
	cctx *Context, meta map[string]string,
) Money {
	rate := cctx.Get(VarHourlyRate)
	if hasOverride && o.Rate != nil {
		rate = *o.Rate
	}

	multiplier := decimal.NewFromInt(1)
	if comp.RateMultiplier != nil {
		multiplier = *comp.RateMultiplier
	}

	hours := cctx.Get(VarHoursWorked)
	meta[MetaRate] = rate.String()
	meta[MetaMultiplier] = multiplier.String()

	return hours.Mul(rate).Mul(multiplier)
}

func (e *ComponentEvaluator) computeFormula(
	comp Component, o ComponentOverride, hasOverride bool,
	cctx *Context, computed map[string]Money, meta map[string]string,
) (Money, map[string]string, error) {
	if e.Formulas == nil {
		return decimal.Zero, meta, &ValidationError{ComponentCode: comp.Code,
			Message: "formula component but no formula evaluator configured"}
	}

	formula := comp.Formula
	if hasOverride && o.Formula != nil {
		formula = *o.Formula
	}
	if formula == "" {
		return decimal.Zero, meta, &ValidationError{ComponentCode: comp.Code, Message: "empty formula"}
	}

	// Context variables first, then computed component values on top:
	// a component's computed value shadows any same-named seed variable.
	vars := cctx.Vars()
	for name, value := range computed {
		vars[name] = value
	}

	meta[MetaFormula] = formula
	value, err := e.Formulas.Evaluate(formula, vars)
	if err != nil {
		return decimal.Zero, meta, err
	}
	return value, meta, nil
}

func (e *ComponentEvaluator) computeTiered(
	comp Component, cctx *Context, computed map[string]Money, meta map[string]string,
) (Money, map[string]string, error) {
	basis, ok := lookupBasis(comp.Basis, cctx, computed)
	if !ok {
		return decimal.Zero, meta, &ValidationError{ComponentCode: comp.Code,
			Message: fmt.Sprintf("basis %q is not a computed component or context variable", comp.Basis)}
	}

	meta[MetaBasis] = comp.Basis
	meta[MetaBasisValue] = basis.String()

	return ProgressiveAmount(comp.Tiers, basis), meta, nil
}

// lookupBasis finds a named basis: already-computed component values take
// precedence over seed context variables. A forward reference to a
// component that has not evaluated yet falls through to the seed context,
// never to a stale or garbage value.
func lookupBasis(name string, cctx *Context, computed map[string]Money) (Money, bool) {
	if v, ok := computed[name]; ok {
		return v, true
	}
	return cctx.Lookup(name)
}

// =============================================================================
// ELIGIBILITY (fail-closed)
// =============================================================================

func (e *ComponentEvaluator) qualifies(ctx context.Context, workerID WorkerID, comp Component, asOf time.Time) bool {
	if e.Eligibility == nil {
		return true
	}
	qualified, err := e.Eligibility.EvaluateEligibility(ctx, workerID, *comp.Eligibility, asOf)
	if err != nil {
		// Fail-closed: an eligibility evaluation failure means the worker
		// does not qualify. It never aborts the calculation.
		log.Printf("eligibility evaluation failed for worker=%s component=%s: %v (treating as not qualified)",
			workerID, comp.Code, err)
		return false
	}
	return qualified
}

func orderComponents(components []Component) []Component {
	out := make([]Component, len(components))
	copy(out, components)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceOrder < out[j].SequenceOrder
	})
	return out
}
