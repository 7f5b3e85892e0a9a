/*
Package factory provides JSON/YAML to Go pay-structure conversion.

PURPOSE:
  Converts JSON or YAML template definitions into engine.PayStructureTemplate
  and engine.TaxRuleSet objects. This enables pay-structure configuration
  without code changes - HR can define structures in JSON/YAML, and the
  factory creates the proper Go structs, applies defaults, and validates.

WHY JSON/YAML?
  - Non-developers can modify pay structures
  - Easy integration with admin UI
  - Version control for structure definitions
  - Database storage of template configs

JSON SCHEMA:
  {
    "id": "tmpl-monthly",
    "org_id": "org-1",
    "code": "monthly-salary",
    "name": "Monthly Salaried Staff",
    "version": "1.0.0",
    "components": [
      {
        "code": "HOUSING_ALLOW",
        "name": "Housing Allowance",
        "category": "earning",
        "type": "percentage",
        "sequence": 2,
        "rate": 10,
        "basis": "BASE_SALARY",
        "taxable": true
      },
      {
        "code": "PENSION",
        "category": "deduction",
        "type": "tiered",
        "sequence": 5,
        "basis": "GROSS_EARNINGS",
        "tiers": [
          {"threshold": 0, "rate": 0.05},
          {"threshold": 3000, "rate": 0.08}
        ]
      }
    ]
  }

KEY FEATURES:
  - Validates structure (delegates to PayStructureTemplate.Validate)
  - Sets sensible defaults (earnings affect gross/net and are taxable
    unless told otherwise; deductions affect net only)
  - Float-to-decimal conversion happens here, once, at the boundary
  - Same schema parses from JSON and YAML

USAGE:
  f := factory.NewTemplateFactory()

  // From JSON string
  tmpl, err := f.ParseTemplate(jsonString)

  // From YAML (same schema)
  tmpl, err := f.ParseTemplateYAML(yamlBytes)

  // Prebuilt presets
  tmpl := factory.MonthlySalaryTemplate("tmpl-1", "org-1")

SEE ALSO:
  - engine/template.go: PayStructureTemplate type and validation
  - engine/tax.go: TaxRuleSet type and validation
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// SCHEMA TYPES (shared by JSON and YAML)
// =============================================================================

// TemplateDef is the wire representation of a pay-structure template.
type TemplateDef struct {
	ID         string         `json:"id" yaml:"id"`
	OrgID      string         `json:"org_id" yaml:"org_id"`
	Code       string         `json:"code" yaml:"code"`
	Name       string         `json:"name" yaml:"name"`
	Version    string         `json:"version,omitempty" yaml:"version,omitempty"` // "major.minor.patch", default 1.0.0
	Components []ComponentDef `json:"components" yaml:"components"`
}

// ComponentDef is the wire representation of one component.
type ComponentDef struct {
	Code     string `json:"code" yaml:"code"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Category string `json:"category" yaml:"category"`
	Type     string `json:"type" yaml:"type"`
	Sequence int    `json:"sequence" yaml:"sequence"`

	Amount     *float64 `json:"amount,omitempty" yaml:"amount,omitempty"`
	Rate       *float64 `json:"rate,omitempty" yaml:"rate,omitempty"` // percent: 10 = 10%
	Basis      string   `json:"basis,omitempty" yaml:"basis,omitempty"`
	Formula    string   `json:"formula,omitempty" yaml:"formula,omitempty"`
	Multiplier *float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	Tiers      []TierDef `json:"tiers,omitempty" yaml:"tiers,omitempty"`

	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Pointers so "absent" is distinguishable from "false"; defaults depend
	// on the category.
	AffectsGross *bool  `json:"affects_gross,omitempty" yaml:"affects_gross,omitempty"`
	AffectsNet   *bool  `json:"affects_net,omitempty" yaml:"affects_net,omitempty"`
	Taxable      *bool  `json:"taxable,omitempty" yaml:"taxable,omitempty"`
	Allowance    string `json:"allowance,omitempty" yaml:"allowance,omitempty"`

	Eligibility *EligibilityDef `json:"eligibility,omitempty" yaml:"eligibility,omitempty"`
}

// TierDef is one progressive tier. Rate is a fraction (0.05 = 5%).
type TierDef struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Rate      float64 `json:"rate" yaml:"rate"`
}

// EligibilityDef is the opaque temporal-eligibility condition.
type EligibilityDef struct {
	Kind   string            `json:"kind" yaml:"kind"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// TaxRuleSetDef is the wire representation of a tax rule set.
type TaxRuleSetDef struct {
	ID           string       `json:"id,omitempty" yaml:"id,omitempty"`
	Jurisdiction string       `json:"jurisdiction" yaml:"jurisdiction"`
	TaxType      string       `json:"tax_type" yaml:"tax_type"`
	Method       string       `json:"method" yaml:"method"` // bracket, flat_rate
	Mode         string       `json:"mode,omitempty" yaml:"mode,omitempty"`
	FlatRate     *float64     `json:"flat_rate,omitempty" yaml:"flat_rate,omitempty"` // percent
	Brackets     []BracketDef `json:"brackets,omitempty" yaml:"brackets,omitempty"`

	Version       int    `json:"version,omitempty" yaml:"version,omitempty"`
	EffectiveFrom string `json:"effective_from" yaml:"effective_from"` // YYYY-MM-DD
	EffectiveTo   string `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`
}

// BracketDef is one tax bracket. Rate is a percent (10 = 10%); Fixed is an
// additive charge applied when income lands in this bracket.
type BracketDef struct {
	Min   float64  `json:"min" yaml:"min"`
	Max   *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Rate  float64  `json:"rate" yaml:"rate"`
	Fixed float64  `json:"fixed,omitempty" yaml:"fixed,omitempty"`
}

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// TemplateFactory converts wire definitions to engine structs.
type TemplateFactory struct{}

// NewTemplateFactory creates a new template factory.
func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{}
}

// ParseTemplate parses a JSON string into a validated template.
func (f *TemplateFactory) ParseTemplate(jsonStr string) (*engine.PayStructureTemplate, error) {
	var def TemplateDef
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("failed to parse template JSON: %w", err)
	}
	return f.FromDef(def)
}

// ParseTemplateYAML parses YAML bytes using the same schema.
func (f *TemplateFactory) ParseTemplateYAML(data []byte) (*engine.PayStructureTemplate, error) {
	var def TemplateDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse template YAML: %w", err)
	}
	return f.FromDef(def)
}

// FromDef converts a TemplateDef to a validated PayStructureTemplate.
func (f *TemplateFactory) FromDef(def TemplateDef) (*engine.PayStructureTemplate, error) {
	version := engine.Version{Major: 1}
	if def.Version != "" {
		if _, err := fmt.Sscanf(def.Version, "%d.%d.%d", &version.Major, &version.Minor, &version.Patch); err != nil {
			return nil, fmt.Errorf("invalid version %q: %w", def.Version, err)
		}
	}

	t := &engine.PayStructureTemplate{
		ID:           engine.TemplateID(def.ID),
		OrgID:        engine.OrgID(def.OrgID),
		TemplateCode: def.Code,
		Name:         def.Name,
		Version:      version,
		Status:       engine.StatusDraft,
	}

	for _, cd := range def.Components {
		c, err := parseComponent(cd)
		if err != nil {
			return nil, err
		}
		t.Components = append(t.Components, c)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func parseComponent(cd ComponentDef) (engine.Component, error) {
	c := engine.Component{
		Code:          engine.ComponentCode(cd.Code),
		Name:          cd.Name,
		Category:      engine.ComponentCategory(cd.Category),
		Type:          engine.CalculationType(cd.Type),
		SequenceOrder: cd.Sequence,
		Basis:         cd.Basis,
		Formula:       cd.Formula,
		DefaultAmount: moneyPtr(cd.Amount),
		Rate:          moneyPtr(cd.Rate),
		RateMultiplier: moneyPtr(cd.Multiplier),
		MinAmount:     moneyPtr(cd.Min),
		MaxAmount:     moneyPtr(cd.Max),
	}
	if c.Name == "" {
		c.Name = cd.Code
	}

	for _, td := range cd.Tiers {
		c.Tiers = append(c.Tiers, engine.Tier{
			Threshold: engine.MoneyFromFloat(td.Threshold),
			Rate:      engine.MoneyFromFloat(td.Rate),
		})
	}
	for _, dep := range cd.DependsOn {
		c.DependsOn = append(c.DependsOn, engine.ComponentCode(dep))
	}

	// Category defaults: earnings count toward gross, net, and taxable
	// income; everything else affects net only and is never taxable.
	isEarning := c.Category == engine.CategoryEarning
	c.AffectsGrossPay = boolOr(cd.AffectsGross, isEarning)
	c.AffectsNetPay = boolOr(cd.AffectsNet, c.Category != engine.CategoryBenefit && c.Category != engine.CategoryEmployerCost)
	c.IsTaxable = boolOr(cd.Taxable, isEarning)

	c.AllowanceType = engine.AllowanceNone
	if cd.Allowance != "" {
		c.AllowanceType = engine.AllowanceType(cd.Allowance)
	}

	if cd.Eligibility != nil {
		c.Eligibility = &engine.EligibilityPattern{
			Kind:   cd.Eligibility.Kind,
			Config: cd.Eligibility.Config,
		}
	}
	return c, nil
}

// ToDef converts a template back to its wire representation.
func (f *TemplateFactory) ToDef(t *engine.PayStructureTemplate) TemplateDef {
	def := TemplateDef{
		ID:      string(t.ID),
		OrgID:   string(t.OrgID),
		Code:    t.TemplateCode,
		Name:    t.Name,
		Version: t.Version.String(),
	}
	for _, c := range t.Components {
		cd := ComponentDef{
			Code:       string(c.Code),
			Name:       c.Name,
			Category:   string(c.Category),
			Type:       string(c.Type),
			Sequence:   c.SequenceOrder,
			Basis:      c.Basis,
			Formula:    c.Formula,
			Amount:     floatPtr(c.DefaultAmount),
			Rate:       floatPtr(c.Rate),
			Multiplier: floatPtr(c.RateMultiplier),
			Min:        floatPtr(c.MinAmount),
			Max:        floatPtr(c.MaxAmount),
		}
		for _, t := range c.Tiers {
			cd.Tiers = append(cd.Tiers, TierDef{
				Threshold: t.Threshold.InexactFloat64(),
				Rate:      t.Rate.InexactFloat64(),
			})
		}
		for _, dep := range c.DependsOn {
			cd.DependsOn = append(cd.DependsOn, string(dep))
		}
		cd.AffectsGross = &c.AffectsGrossPay
		cd.AffectsNet = &c.AffectsNetPay
		cd.Taxable = &c.IsTaxable
		if c.AllowanceType != engine.AllowanceNone {
			cd.Allowance = string(c.AllowanceType)
		}
		def.Components = append(def.Components, cd)
	}
	return def
}

// =============================================================================
// TAX RULE SETS
// =============================================================================

// ParseTaxRuleSet parses a JSON string into a validated tax rule set.
func (f *TemplateFactory) ParseTaxRuleSet(jsonStr string) (*engine.TaxRuleSet, error) {
	var def TaxRuleSetDef
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("failed to parse tax rule set JSON: %w", err)
	}
	return f.FromTaxDef(def)
}

// ParseTaxRuleSetYAML parses YAML bytes using the same schema.
func (f *TemplateFactory) ParseTaxRuleSetYAML(data []byte) (*engine.TaxRuleSet, error) {
	var def TaxRuleSetDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse tax rule set YAML: %w", err)
	}
	return f.FromTaxDef(def)
}

// FromTaxDef converts a TaxRuleSetDef to a validated TaxRuleSet.
func (f *TemplateFactory) FromTaxDef(def TaxRuleSetDef) (*engine.TaxRuleSet, error) {
	rs := &engine.TaxRuleSet{
		ID:           def.ID,
		Jurisdiction: def.Jurisdiction,
		TaxType:      engine.TaxType(def.TaxType),
		Method:       engine.CalculationMethod(def.Method),
		Mode:         engine.CalculationMode(def.Mode),
		Version:      def.Version,
	}
	if rs.Version == 0 {
		rs.Version = 1
	}
	if def.FlatRate != nil {
		rs.FlatRatePercentage = engine.MoneyFromFloat(*def.FlatRate)
	}
	for _, bd := range def.Brackets {
		b := engine.TaxBracket{
			IncomeMin:      engine.MoneyFromFloat(bd.Min),
			RatePercentage: engine.MoneyFromFloat(bd.Rate),
			FixedAmount:    engine.MoneyFromFloat(bd.Fixed),
		}
		if bd.Max != nil {
			max := engine.MoneyFromFloat(*bd.Max)
			b.IncomeMax = &max
		}
		rs.Brackets = append(rs.Brackets, b)
	}

	var err error
	if rs.EffectiveFrom, err = time.Parse(time.DateOnly, def.EffectiveFrom); err != nil {
		return nil, fmt.Errorf("invalid effective_from: %w", err)
	}
	if def.EffectiveTo != "" {
		to, err := time.Parse(time.DateOnly, def.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("invalid effective_to: %w", err)
		}
		rs.EffectiveTo = &to
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// =============================================================================
// PRESETS
// =============================================================================

// MonthlySalaryTemplate is a ready-made structure for salaried staff:
// base salary, a 10% housing allowance, and a tiered pension deduction.
func MonthlySalaryTemplate(id engine.TemplateID, orgID engine.OrgID) *engine.PayStructureTemplate {
	housingRate := engine.MustMoney("10")
	return &engine.PayStructureTemplate{
		ID:           id,
		OrgID:        orgID,
		TemplateCode: "monthly-salary",
		Name:         "Monthly Salaried Staff",
		Version:      engine.Version{Major: 1},
		Status:       engine.StatusDraft,
		Components: []engine.Component{
			{
				Code: "HOUSING_ALLOW", Name: "Housing Allowance",
				Category: engine.CategoryEarning, Type: engine.CalcPercentage,
				SequenceOrder: 2, Rate: &housingRate, Basis: engine.VarBaseSalary,
				AffectsGrossPay: true, AffectsNetPay: true, IsTaxable: true,
				AllowanceType: engine.AllowanceNone,
			},
			{
				Code: "PENSION", Name: "Pension Contribution",
				Category: engine.CategoryDeduction, Type: engine.CalcTiered,
				SequenceOrder: 5, Basis: engine.VarGrossEarnings,
				Tiers: []engine.Tier{
					{Threshold: engine.MustMoney("0"), Rate: engine.MustMoney("0.05")},
					{Threshold: engine.MustMoney("3000"), Rate: engine.MustMoney("0.08")},
				},
				AffectsNetPay: true,
			},
		},
	}
}

// HourlyTemplate is a ready-made structure for hourly staff: regular pay
// comes from the synthetic base, plus a 1.5x overtime formula component
// driven by an OVERTIME_HOURS seed variable.
func HourlyTemplate(id engine.TemplateID, orgID engine.OrgID) *engine.PayStructureTemplate {
	return &engine.PayStructureTemplate{
		ID:           id,
		OrgID:        orgID,
		TemplateCode: "hourly",
		Name:         "Hourly Staff",
		Version:      engine.Version{Major: 1},
		Status:       engine.StatusDraft,
		Components: []engine.Component{
			{
				Code: "OVERTIME", Name: "Overtime Pay",
				Category: engine.CategoryEarning, Type: engine.CalcFormula,
				SequenceOrder: 2,
				Formula:       "OVERTIME_HOURS * HOURLY_RATE * 1.5",
				AffectsGrossPay: true, AffectsNetPay: true, IsTaxable: true,
			},
		},
	}
}

// ProgressiveWageTaxRules is a ready-made two-bracket wage-tax rule set:
// 0% up to 2000, 10% above.
func ProgressiveWageTaxRules(jurisdiction string, from time.Time) engine.TaxRuleSet {
	top := engine.MustMoney("2000")
	return engine.TaxRuleSet{
		ID:           fmt.Sprintf("%s-wage-v1", jurisdiction),
		Jurisdiction: jurisdiction,
		TaxType:      engine.TaxWage,
		Method:       engine.MethodBracket,
		Brackets: []engine.TaxBracket{
			{IncomeMin: engine.MustMoney("0"), IncomeMax: &top, RatePercentage: engine.MustMoney("0")},
			{IncomeMin: top, RatePercentage: engine.MustMoney("10")},
		},
		Version:       1,
		EffectiveFrom: from,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func moneyPtr(v *float64) *engine.Money {
	if v == nil {
		return nil
	}
	m := engine.MoneyFromFloat(*v)
	return &m
}

func floatPtr(m *engine.Money) *float64 {
	if m == nil {
		return nil
	}
	v := m.InexactFloat64()
	return &v
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}
