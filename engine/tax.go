/*
tax.go - Tax rule sets and the apportionment engine

PURPOSE:
  Consumes the evaluator's earning lines and computes wage/old-age/
  survivor taxes under a selectable apportionment mode, per tax type:

  proportional_distribution (default for bracket rule sets)
    Tax is computed ONCE on the sum of all components' taxable income,
    then allocated back to components in proportion to their share of the
    base. Mandatory for progressive schedules: pre-splitting the base
    before applying brackets understates the true marginal tax.

  component_based (default for flat-rate rule sets)
    Tax is computed independently per component. Correct only when the
    rate is flat. Configuring it on a bracket rule set under-collects;
    the engine emits a warning and proceeds - the permissive behavior is
    deliberate, intent of such configurations being ambiguous.

  aggregated
    Same total as proportional_distribution but reported only as a
    summary figure, with no per-component apportionment.

ALLOWANCES:
  Before any tax math, each taxable component's tax-free allowance is
  resolved through the external AllowanceService, keyed by the
  component's allowance type (per-period sum, holiday yearly cap, bonus
  yearly cap, or none). taxableIncome = max(0, amount - allowance).
  Collaborator failures degrade to a zero allowance with a warning; they
  never abort the calculation.

ROUNDING:
  Per-component shares are rounded to 2 decimals; the final component
  with taxable income absorbs the remainder so shares sum exactly to the
  rounded aggregate.

SEE ALSO:
  - bracket.go: the one and only progressive slice calculator
  - aggregate.go: folds tax totals into the worker summary
*/
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TAX TYPES, METHODS, MODES
// =============================================================================

// TaxType identifies one tax levied on earnings.
type TaxType string

const (
	TaxWage     TaxType = "wage"
	TaxOldAge   TaxType = "old_age"
	TaxSurvivor TaxType = "survivor"
)

// CalculationMethod is how a rule set derives tax from a basis.
type CalculationMethod string

const (
	MethodBracket  CalculationMethod = "bracket"
	MethodFlatRate CalculationMethod = "flat_rate"
)

// CalculationMode is the apportionment policy.
type CalculationMode string

const (
	ModeAggregated     CalculationMode = "aggregated"
	ModeProportional   CalculationMode = "proportional_distribution"
	ModeComponentBased CalculationMode = "component_based"
)

// =============================================================================
// TAX RULE SET
// =============================================================================

// TaxBracket is one ordered row of a progressive schedule.
// RatePercentage follows the percent convention of published tables
// (10 = 10%). FixedAmount, when set, is an additive fixed charge for the
// bracket the basis lands in (some jurisdictions publish schedules as
// "fixed fee + rate over threshold"); the progressive slice math itself
// always runs through the shared bracket calculator.
type TaxBracket struct {
	IncomeMin      Money
	IncomeMax      *Money // nil = unbounded top bracket
	RatePercentage Money
	FixedAmount    Money
}

// TaxRuleSet is a versioned tax schedule scoped to one jurisdiction and
// tax type. Mode is optional; empty means the method's default.
type TaxRuleSet struct {
	ID           string
	Jurisdiction string
	TaxType      TaxType
	Method       CalculationMethod
	Mode         CalculationMode

	FlatRatePercentage Money        // flat_rate method
	Brackets           []TaxBracket // bracket method

	Version       int
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

// IsActive reports whether the rule set covers the given date.
func (rs TaxRuleSet) IsActive(at time.Time) bool {
	return withinRange(at, rs.EffectiveFrom, rs.EffectiveTo)
}

// ResolvedMode returns the effective apportionment mode: the configured
// one, or the method's default.
func (rs TaxRuleSet) ResolvedMode() CalculationMode {
	if rs.Mode != "" {
		return rs.Mode
	}
	if rs.Method == MethodBracket {
		return ModeProportional
	}
	return ModeComponentBased
}

// Validate checks the rule set is well-formed.
func (rs TaxRuleSet) Validate() error {
	switch rs.Method {
	case MethodFlatRate:
		if rs.FlatRatePercentage.IsNegative() {
			return &ValidationError{Message: fmt.Sprintf("rule set %s: negative flat rate", rs.ID)}
		}
	case MethodBracket:
		if err := ValidateTiers(rs.tiers()); err != nil {
			return &ValidationError{Message: fmt.Sprintf("rule set %s: %v", rs.ID, err)}
		}
	default:
		return &ValidationError{Message: fmt.Sprintf("rule set %s: unknown method %q", rs.ID, rs.Method)}
	}
	switch rs.Mode {
	case "", ModeAggregated, ModeProportional, ModeComponentBased:
	default:
		return &ValidationError{Message: fmt.Sprintf("rule set %s: unknown mode %q", rs.ID, rs.Mode)}
	}
	return nil
}

// tiers converts bracket rows into shared-calculator tiers.
func (rs TaxRuleSet) tiers() []Tier {
	tiers := make([]Tier, 0, len(rs.Brackets))
	for _, b := range rs.Brackets {
		tiers = append(tiers, Tier{
			Threshold: b.IncomeMin,
			Rate:      b.RatePercentage.Div(decimal.NewFromInt(100)),
		})
	}
	return tiers
}

// TaxOn computes the rule set's tax on a single basis amount.
func (rs TaxRuleSet) TaxOn(basis Money) Money {
	if !basis.IsPositive() {
		return decimal.Zero
	}
	if rs.Method == MethodFlatRate {
		return basis.Mul(rs.FlatRatePercentage).Div(decimal.NewFromInt(100))
	}

	tax := ProgressiveAmount(rs.tiers(), basis)

	// Additive fixed charge of the bracket containing the basis.
	var fixed Money
	for _, b := range SortBrackets(rs.Brackets) {
		if basis.GreaterThan(b.IncomeMin) {
			fixed = b.FixedAmount
		}
	}
	return tax.Add(fixed)
}

// SortBrackets returns a copy sorted ascending by income minimum.
func SortBrackets(brackets []TaxBracket) []TaxBracket {
	out := make([]TaxBracket, len(brackets))
	copy(out, brackets)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].IncomeMin.LessThan(out[j-1].IncomeMin); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// =============================================================================
// TAX INPUT / OUTPUT
// =============================================================================

// TaxableLine is one earning line entering the apportionment stage.
type TaxableLine struct {
	ComponentCode ComponentCode
	Amount        Money
	IsTaxable     bool
	AllowanceType AllowanceType
}

// TaxableLinesFrom extracts the earning lines from a calculation. Only
// earnings enter tax apportionment; deduction/tax/benefit lines never do.
func TaxableLinesFrom(lines []CalculationLine) []TaxableLine {
	var out []TaxableLine
	for _, l := range lines {
		if l.Category != CategoryEarning {
			continue
		}
		out = append(out, TaxableLine{
			ComponentCode: l.Code,
			Amount:        l.Amount,
			IsTaxable:     l.IsTaxable,
			AllowanceType: l.AllowanceType,
		})
	}
	return out
}

// TaxInput is everything one apportionment run consumes. RuleSets is the
// jurisdiction's snapshot for the pay date, at most one per tax type.
type TaxInput struct {
	WorkerID WorkerID
	Lines    []TaxableLine
	PayDate  time.Time
	Period   PayPeriod
	Resident bool
	RuleSets []TaxRuleSet
}

// ComponentTaxBreakdown is the per-component output: allowance, taxable
// income, and the apportioned share of each tax type.
type ComponentTaxBreakdown struct {
	ComponentCode ComponentCode
	GrossAmount   Money
	Allowance     Money
	TaxableIncome Money
	Taxes         map[TaxType]Money
	TotalTax      Money
}

// TaxSummary carries totals and the resolved mode per tax type, for audit.
type TaxSummary struct {
	TotalByType   map[TaxType]Money
	ModeByType    map[TaxType]CalculationMode
	TotalTax      Money
	TotalGrossPay Money

	// EffectiveRate = TotalTax / TotalGrossPay (zero when gross is zero).
	EffectiveRate decimal.Decimal

	Warnings []string
}

// TaxResult is the apportionment engine's full output.
type TaxResult struct {
	Components []ComponentTaxBreakdown
	Summary    TaxSummary
}

// TaxByComponent returns the breakdown for one component, if present.
func (r *TaxResult) TaxByComponent(code ComponentCode) (ComponentTaxBreakdown, bool) {
	for _, c := range r.Components {
		if c.ComponentCode == code {
			return c, true
		}
	}
	return ComponentTaxBreakdown{}, false
}

// =============================================================================
// TAX APPORTIONMENT ENGINE
// =============================================================================

// TaxEngine apportions taxes across earning components. Allowances is
// required; a nil service means zero allowances everywhere.
type TaxEngine struct {
	Allowances AllowanceService
}

// Apportion runs the allowance stage, then every rule set's mode, and
// folds the results into per-component breakdowns plus a summary.
func (te *TaxEngine) Apportion(ctx context.Context, in TaxInput) (*TaxResult, error) {
	result := &TaxResult{
		Summary: TaxSummary{
			TotalByType: make(map[TaxType]Money),
			ModeByType:  make(map[TaxType]CalculationMode),
		},
	}

	// ---- Allowance stage -------------------------------------------------
	breakdowns := make([]ComponentTaxBreakdown, 0, len(in.Lines))
	totalGross := decimal.Zero
	for _, line := range in.Lines {
		totalGross = totalGross.Add(line.Amount)

		b := ComponentTaxBreakdown{
			ComponentCode: line.ComponentCode,
			GrossAmount:   line.Amount,
			Taxes:         make(map[TaxType]Money),
		}
		if line.IsTaxable {
			allowance := te.resolveAllowance(ctx, in, line, &result.Summary)
			b.Allowance = allowance
			b.TaxableIncome = decimal.Max(decimal.Zero, line.Amount.Sub(allowance))
		}
		// Non-taxable components pass through with zero tax but stay in
		// the output for transparency.
		breakdowns = append(breakdowns, b)
	}

	// ---- Mode resolution, independently per tax type ---------------------
	for _, rs := range in.RuleSets {
		if err := rs.Validate(); err != nil {
			return nil, err
		}
		mode := rs.ResolvedMode()
		result.Summary.ModeByType[rs.TaxType] = mode

		if mode == ModeComponentBased && rs.Method == MethodBracket {
			warning := fmt.Sprintf(
				"tax type %s: component_based mode on a bracket rule set under-collects relative to the aggregate",
				rs.TaxType)
			result.Summary.Warnings = append(result.Summary.Warnings, warning)
			log.Printf("tax apportionment warning: %s", warning)
		}

		var typeTotal Money
		switch mode {
		case ModeComponentBased:
			typeTotal = applyComponentBased(rs, breakdowns)
		case ModeAggregated:
			// Reporting-only total: same math as proportional but not
			// broken into a per-component apportionment.
			typeTotal = Round2(rs.TaxOn(sumTaxable(breakdowns)))
		default: // proportional_distribution
			typeTotal = applyProportional(rs, breakdowns)
		}

		result.Summary.TotalByType[rs.TaxType] = result.Summary.TotalByType[rs.TaxType].Add(typeTotal)
		result.Summary.TotalTax = result.Summary.TotalTax.Add(typeTotal)
	}

	// ---- Per-component and summary totals --------------------------------
	for i := range breakdowns {
		total := decimal.Zero
		for _, amount := range breakdowns[i].Taxes {
			total = total.Add(amount)
		}
		breakdowns[i].TotalTax = total
	}
	result.Components = breakdowns
	result.Summary.TotalGrossPay = totalGross
	if totalGross.IsPositive() {
		result.Summary.EffectiveRate = result.Summary.TotalTax.Div(totalGross)
	}

	return result, nil
}

// ApportionGross is the legacy aggregate-only path: a single gross-pay
// figure is treated as one synthetic component after subtracting one
// period allowance.
func (te *TaxEngine) ApportionGross(ctx context.Context, workerID WorkerID, gross Money, payDate time.Time, period PayPeriod, resident bool, ruleSets []TaxRuleSet) (*TaxResult, error) {
	return te.Apportion(ctx, TaxInput{
		WorkerID: workerID,
		Lines: []TaxableLine{{
			ComponentCode: "GROSS_PAY",
			Amount:        gross,
			IsTaxable:     true,
			AllowanceType: AllowanceMonthly,
		}},
		PayDate:  payDate,
		Period:   period,
		Resident: resident,
		RuleSets: ruleSets,
	})
}

// =============================================================================
// ALLOWANCE RESOLUTION (degrades, never aborts)
// =============================================================================

func (te *TaxEngine) resolveAllowance(ctx context.Context, in TaxInput, line TaxableLine, summary *TaxSummary) Money {
	if te.Allowances == nil || line.AllowanceType == AllowanceNone || line.AllowanceType == "" {
		return decimal.Zero
	}

	allowance, err := te.Allowances.CalculateAllowance(ctx, line.Amount, in.PayDate, in.Period, in.Resident)
	if err != nil {
		te.degrade(summary, line.ComponentCode, err)
		return decimal.Zero
	}

	switch line.AllowanceType {
	case AllowanceHoliday:
		allowance, err = te.Allowances.ApplyYearlyCap(ctx, in.WorkerID, allowance, in.PayDate.Year(), CapHoliday)
	case AllowanceBonus:
		allowance, err = te.Allowances.ApplyYearlyCap(ctx, in.WorkerID, allowance, in.PayDate.Year(), CapBonus)
	}
	if err != nil {
		te.degrade(summary, line.ComponentCode, err)
		return decimal.Zero
	}

	return allowance
}

func (te *TaxEngine) degrade(summary *TaxSummary, code ComponentCode, err error) {
	warning := fmt.Sprintf("allowance lookup failed for %s, using zero allowance: %v", code, err)
	summary.Warnings = append(summary.Warnings, warning)
	log.Printf("tax apportionment warning: %s", warning)
}

// =============================================================================
// MODE IMPLEMENTATIONS
// =============================================================================

func sumTaxable(breakdowns []ComponentTaxBreakdown) Money {
	total := decimal.Zero
	for _, b := range breakdowns {
		total = total.Add(b.TaxableIncome)
	}
	return total
}

// applyProportional computes tax once on the summed taxable income, then
// allocates it back by share of the base. The last component with taxable
// income absorbs the rounding remainder so shares sum exactly to the
// rounded aggregate.
func applyProportional(rs TaxRuleSet, breakdowns []ComponentTaxBreakdown) Money {
	total := sumTaxable(breakdowns)
	if !total.IsPositive() {
		return decimal.Zero
	}

	aggregate := Round2(rs.TaxOn(total))

	lastTaxable := -1
	for i, b := range breakdowns {
		if b.TaxableIncome.IsPositive() {
			lastTaxable = i
		}
	}

	allocated := decimal.Zero
	for i := range breakdowns {
		if !breakdowns[i].TaxableIncome.IsPositive() {
			continue
		}
		var share Money
		if i == lastTaxable {
			share = aggregate.Sub(allocated)
		} else {
			share = Round2(aggregate.Mul(breakdowns[i].TaxableIncome).Div(total))
			allocated = allocated.Add(share)
		}
		breakdowns[i].Taxes[rs.TaxType] = breakdowns[i].Taxes[rs.TaxType].Add(share)
	}

	return aggregate
}

// applyComponentBased computes the full rule-set function independently
// per component. Only correct for flat rates; callers have already warned
// when the rule set is progressive.
func applyComponentBased(rs TaxRuleSet, breakdowns []ComponentTaxBreakdown) Money {
	total := decimal.Zero
	for i := range breakdowns {
		if !breakdowns[i].TaxableIncome.IsPositive() {
			continue
		}
		tax := Round2(rs.TaxOn(breakdowns[i].TaxableIncome))
		breakdowns[i].Taxes[rs.TaxType] = breakdowns[i].Taxes[rs.TaxType].Add(tax)
		total = total.Add(tax)
	}
	return total
}
