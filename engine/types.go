/*
Package engine provides the core compensation calculation engine.

PURPOSE:
  This package contains the domain types and algorithms for turning a
  worker's versioned pay-structure template plus per-worker overrides
  into an ordered set of monetary components, then apportioning taxes
  across those components under configurable calculation modes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal-based monetary math (no floats, ever)
  - Component: one named earning/deduction/tax/benefit line with a
    calculation rule
  - Context: the ephemeral variable map a calculation runs against
  - CalculationLine: one computed line of a worker's paycheck

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Determinism: Same inputs always produce bit-identical output
  3. Purity: The engine reads snapshots and writes nothing
  4. Fail-fast: A broken component aborts the whole worker calculation;
     no partial paycheck is ever emitted

USAGE:
  eng := engine.New(repo, engine.Collaborators{Allowances: allowances})
  result, err := eng.CalculateWorker(ctx, engine.CalculateRequest{
      OrgID:    "org-1",
      WorkerID: "worker-42",
      AsOf:     payDate,
  })

SEE ALSO:
  - evaluator.go: Ordered component evaluation pipeline
  - bracket.go: Shared tiered/progressive calculator
  - tax.go: Tax apportionment engine
  - template.go: Versioned pay-structure templates
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal helpers (all monetary values are decimal.Decimal)
// =============================================================================

// Money is the canonical monetary type. A plain decimal is enough here:
// the engine is single-currency by design (currency conversion is an
// external collaborator), so a value+currency wrapper would carry no
// information.
type Money = decimal.Decimal

// MoneyFromFloat builds a Money from a float input value. Only for
// boundary conversion (JSON/YAML input); internal math stays decimal.
func MoneyFromFloat(v float64) Money { return decimal.NewFromFloat(v) }

// ParseMoney parses a decimal string.
func ParseMoney(s string) (Money, error) { return decimal.NewFromString(s) }

// MustMoney parses a decimal string, returning zero on malformed input.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Round2 rounds to 2 decimal places, the engine's output precision.
// Intermediate math is kept at full precision; rounding happens once per
// component, at the moment its value is stored.
func Round2(m Money) Money { return m.Round(2) }

// ClampMoney applies independent min/max clamps: min is applied before max.
func ClampMoney(m Money, min, max *Money) (Money, bool) {
	clamped := false
	if min != nil && m.LessThan(*min) {
		m = *min
		clamped = true
	}
	if max != nil && m.GreaterThan(*max) {
		m = *max
		clamped = true
	}
	return m, clamped
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type OrgID string
type TemplateID string
type ComponentCode string

// =============================================================================
// COMPONENT - one line of a pay structure with a calculation rule
// =============================================================================

// ComponentCategory classifies a component for aggregation.
type ComponentCategory string

const (
	CategoryEarning      ComponentCategory = "earning"
	CategoryDeduction    ComponentCategory = "deduction"
	CategoryTax          ComponentCategory = "tax"
	CategoryBenefit      ComponentCategory = "benefit"
	CategoryEmployerCost ComponentCategory = "employer_cost"
	CategoryReimbursement ComponentCategory = "reimbursement"
)

// KnownCategories lists every valid component category.
var KnownCategories = []ComponentCategory{
	CategoryEarning, CategoryDeduction, CategoryTax,
	CategoryBenefit, CategoryEmployerCost, CategoryReimbursement,
}

// CalculationType selects how a component's value is computed.
type CalculationType string

const (
	CalcFixed      CalculationType = "fixed"       // defaultAmount (or override amount)
	CalcPercentage CalculationType = "percentage"  // named basis × rate
	CalcFormula    CalculationType = "formula"     // expression against the context
	CalcHourlyRate CalculationType = "hourly_rate" // hours × rate × multiplier
	CalcTiered     CalculationType = "tiered"      // progressive tiers against a basis
	CalcExternal   CalculationType = "external"    // value supplied by a collaborator via seed context
)

// KnownCalculationTypes lists every valid calculation type.
var KnownCalculationTypes = []CalculationType{
	CalcFixed, CalcPercentage, CalcFormula, CalcHourlyRate, CalcTiered, CalcExternal,
}

// AllowanceType selects which tax-free allowance applies to an earning
// component. The allowance amounts themselves come from the external
// AllowanceService collaborator.
type AllowanceType string

const (
	AllowanceNone    AllowanceType = "none"
	AllowanceMonthly AllowanceType = "monthly" // general per-period allowance
	AllowanceHoliday AllowanceType = "holiday" // holiday allowance, yearly-capped
	AllowanceBonus   AllowanceType = "bonus"   // bonus allowance, yearly-capped
)

// Component is one named line of a pay-structure template.
//
// SequenceOrder defines evaluation order and must be unique within a
// template version: component N may reference the computed value of any
// component 1..N-1 by code (percentage basis, formula variable, tier basis).
type Component struct {
	Code          ComponentCode
	Name          string
	Category      ComponentCategory
	Type          CalculationType
	SequenceOrder int

	// Calculation parameters. Which ones apply depends on Type.
	DefaultAmount  *Money  // fixed
	Rate           *Money  // percentage: percent value (10 = 10%)
	Basis          string  // percentage/tiered: name of basis variable or component code
	Formula        string  // formula: expression text
	RateMultiplier *Money  // hourly_rate: overtime-style multiplier, default 1.0
	Tiers          []Tier  // tiered: ascending thresholds

	// Clamps, applied after calculation (min before max).
	MinAmount *Money
	MaxAmount *Money

	// DependsOn documents explicit upstream components. The evaluator
	// orders by SequenceOrder regardless; this list exists for template
	// validation (a dependency must have a lower sequence order).
	DependsOn []ComponentCode

	AffectsGrossPay bool
	AffectsNetPay   bool
	IsTaxable       bool
	AllowanceType   AllowanceType

	// Optional temporal-eligibility condition. Evaluated by the external
	// temporal-pattern collaborator; evaluation failure means NOT qualified.
	Eligibility *EligibilityPattern
}

// EligibilityPattern is the opaque configuration handed to the external
// temporal-pattern evaluator (tenure thresholds, seasonal windows, ...).
// The engine never interprets it.
type EligibilityPattern struct {
	Kind   string
	Config map[string]string
}

// =============================================================================
// CONTEXT - ephemeral variable map for one calculation
// =============================================================================

// Well-known context variable names. One canonical (upper-snake) naming
// convention is enforced at template-authoring time; the engine does not
// carry alternate-cased copies of any variable.
const (
	VarBaseSalary    = "BASE_SALARY"
	VarRegularPay    = "REGULAR_PAY"
	VarHourlyRate    = "HOURLY_RATE"
	VarHoursWorked   = "HOURS_WORKED"
	VarGrossEarnings = "GROSS_EARNINGS"
)

// Context is the ephemeral variable-name → value map a calculation runs
// against. It is seeded from input (salary, rate, hours) and grows as each
// component's value is computed. Never persisted; created fresh per call.
type Context struct {
	vars map[string]Money
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{vars: make(map[string]Money)}
}

// Set stores a variable value.
func (c *Context) Set(name string, value Money) { c.vars[name] = value }

// Lookup returns the value and whether the variable exists.
func (c *Context) Lookup(name string) (Money, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Get returns the value, or zero if absent.
func (c *Context) Get(name string) Money {
	return c.vars[name]
}

// Has reports whether the variable exists.
func (c *Context) Has(name string) bool {
	_, ok := c.vars[name]
	return ok
}

// Add accumulates into a variable (used for GROSS_EARNINGS).
func (c *Context) Add(name string, delta Money) {
	c.vars[name] = c.vars[name].Add(delta)
}

// Clone returns an independent copy. The evaluator clones the seed so a
// failed calculation cannot leak state into a retry.
func (c *Context) Clone() *Context {
	out := NewContext()
	for k, v := range c.vars {
		out.vars[k] = v
	}
	return out
}

// Vars returns the underlying variables as a plain map copy, for handing
// to the formula sub-evaluator.
func (c *Context) Vars() map[string]Money {
	out := make(map[string]Money, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// =============================================================================
// CALCULATION LINE - one computed component of a worker's paycheck
// =============================================================================

// CalculationLine is one computed line in a calculation result.
// Amount is already clamped and rounded to 2 decimal places.
type CalculationLine struct {
	Code     ComponentCode
	Name     string
	Category ComponentCategory
	Amount   Money

	// Tax-relevant attributes carried through to the apportionment stage.
	IsTaxable     bool
	AllowanceType AllowanceType

	AffectsGrossPay bool
	AffectsNetPay   bool

	// Metadata records how the amount was produced (calculation type,
	// basis used, clamping, formula text) for audit and payslip detail.
	Metadata map[string]string
}

// Metadata keys used by the evaluator.
const (
	MetaCalculationType = "calculation_type"
	MetaSource          = "source"
	MetaBasis           = "basis"
	MetaBasisValue      = "basis_value"
	MetaFormula         = "formula"
	MetaRate            = "rate"
	MetaMultiplier      = "multiplier"
	MetaClamped         = "clamped"
	MetaOverridden      = "overridden"

	SourceSynthetic = "synthetic_base"
	SourceTemplate  = "template"
	SourceExternal  = "external"
)
