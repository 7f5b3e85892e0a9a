/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Monetary amounts are serialized as decimal strings ("1234.56"), never
  floats - the decimal type's own JSON marshaling handles this. Request
  bodies accept plain JSON numbers where float precision is acceptable
  (rates, hours).

SEE ALSO:
  - handlers.go: Uses these types
  - factory/template.go: TemplateDef / TaxRuleSetDef wire schemas
*/
package api

import (
	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
)

// =============================================================================
// CALCULATION
// =============================================================================

// CalculateRequest is the request body for a single-worker calculation.
type CalculateRequest struct {
	OrgID        string             `json:"org_id"`
	WorkerID     string             `json:"worker_id"`
	AsOf         string             `json:"as_of"` // YYYY-MM-DD, default today
	Period       string             `json:"period,omitempty"`
	Jurisdiction string             `json:"jurisdiction,omitempty"`
	Resident     *bool              `json:"resident,omitempty"` // default true
	HoursWorked  float64            `json:"hours_worked,omitempty"`
	Extra        map[string]float64 `json:"extra,omitempty"`
	AllowedEarnings []string        `json:"allowed_earnings,omitempty"`
}

// BatchCalculateRequest runs the same parameters for many workers.
type BatchCalculateRequest struct {
	CalculateRequest
	WorkerIDs []string `json:"worker_ids"`
}

// CalculationLineDTO is one computed paycheck line.
type CalculationLineDTO struct {
	Code     string            `json:"code"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Amount   engine.Money      `json:"amount"`
	Taxable  bool              `json:"taxable"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ComponentTaxDTO is one component's share of the tax apportionment.
type ComponentTaxDTO struct {
	Code          string                      `json:"code"`
	GrossAmount   engine.Money                `json:"gross_amount"`
	Allowance     engine.Money                `json:"allowance"`
	TaxableIncome engine.Money                `json:"taxable_income"`
	Taxes         map[engine.TaxType]engine.Money `json:"taxes,omitempty"`
	TotalTax      engine.Money                `json:"total_tax"`
}

// TaxSummaryDTO carries tax totals and audit detail.
type TaxSummaryDTO struct {
	TotalByType   map[engine.TaxType]engine.Money           `json:"total_by_type,omitempty"`
	ModeByType    map[engine.TaxType]engine.CalculationMode `json:"mode_by_type,omitempty"`
	TotalTax      engine.Money                              `json:"total_tax"`
	EffectiveRate engine.Money                              `json:"effective_rate"`
	Warnings      []string                                  `json:"warnings,omitempty"`
}

// CalculationResultDTO is the full result of one worker's calculation.
type CalculationResultDTO struct {
	WorkerID        string               `json:"worker_id"`
	StructureID     string               `json:"structure_id"`
	TemplateVersion string               `json:"template_version"`
	Lines           []CalculationLineDTO `json:"lines"`
	ComponentTaxes  []ComponentTaxDTO    `json:"component_taxes,omitempty"`
	TaxSummary      *TaxSummaryDTO       `json:"tax_summary,omitempty"`
	TotalEarnings   engine.Money         `json:"total_earnings"`
	TotalDeductions engine.Money         `json:"total_deductions"`
	TotalTaxes      engine.Money         `json:"total_taxes"`
	NetPay          engine.Money         `json:"net_pay"`
}

// BatchResultDTO is the outcome of a batch run.
type BatchResultDTO struct {
	Results  []CalculationResultDTO `json:"results"`
	Failures []WorkerFailureDTO     `json:"failures,omitempty"`
}

// WorkerFailureDTO records one skipped worker.
type WorkerFailureDTO struct {
	WorkerID string `json:"worker_id"`
	Error    string `json:"error"`
}

// =============================================================================
// STRUCTURE RESOLUTION
// =============================================================================

// ResolvedStructureDTO describes a worker's effective pay structure.
type ResolvedStructureDTO struct {
	WorkerID        string                `json:"worker_id"`
	TemplateID      string                `json:"template_id"`
	TemplateVersion string                `json:"template_version"`
	TemplateName    string                `json:"template_name"`
	EffectiveFrom   string                `json:"effective_from"`
	EffectiveTo     *string               `json:"effective_to,omitempty"`
	BaseSalary      *engine.Money         `json:"base_salary,omitempty"`
	HourlyRate      *engine.Money         `json:"hourly_rate,omitempty"`
	Components      []factory.ComponentDef `json:"components"`
	Overrides       []OverrideDTO         `json:"overrides,omitempty"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// CreateAssignmentRequest binds a worker to a template version.
type CreateAssignmentRequest struct {
	OrgID           string   `json:"org_id"`
	WorkerID        string   `json:"worker_id"`
	TemplateID      string   `json:"template_id"`
	TemplateVersion string   `json:"template_version"`
	EffectiveFrom   string   `json:"effective_from"` // YYYY-MM-DD
	EffectiveTo     *string  `json:"effective_to,omitempty"`
	BaseSalary      *float64 `json:"base_salary,omitempty"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty"`

	// Reassign ends any overlapping assignment instead of rejecting.
	Reassign bool `json:"reassign,omitempty"`
}

// OverrideDTO represents a component override in both directions.
type OverrideDTO struct {
	ID            string   `json:"id,omitempty"`
	WorkerID      string   `json:"worker_id,omitempty"`
	ComponentCode string   `json:"component_code"`
	Type          *string  `json:"type,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
	Percentage    *float64 `json:"percentage,omitempty"`
	Rate          *float64 `json:"rate,omitempty"`
	Formula       *string  `json:"formula,omitempty"`
	Disabled      bool     `json:"disabled,omitempty"`
	Reason        string   `json:"reason"`
	EffectiveFrom string   `json:"effective_from"`
	EffectiveTo   *string  `json:"effective_to,omitempty"`
}

// TemplateSummaryDTO is the list view of a template version.
type TemplateSummaryDTO struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	Status         string `json:"status"`
	ComponentCount int    `json:"component_count"`
}

// ValidateFormulaRequest asks for static validation of an expression.
type ValidateFormulaRequest struct {
	Formula   string   `json:"formula"`
	Variables []string `json:"variables,omitempty"`
}

// ValidateFormulaResponse is the validation report.
type ValidateFormulaResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
