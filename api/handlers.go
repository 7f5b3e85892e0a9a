/*
handlers.go - HTTP API handlers for the compensation engine

PURPOSE:
  Exposes the calculation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Calculation:
    POST   /api/calculate              Calculate one worker's pay
    POST   /api/calculate/batch        Sequential batch run (log-and-skip)
    POST   /api/formulas/validate      Static formula validation

  Workers:
    GET    /api/workers/{id}/structure Resolved structure + overrides
    GET    /api/workers/{id}/overrides List overrides
    POST   /api/workers/{id}/overrides Create an override
    DELETE /api/workers/{id}/overrides/{overrideID}

  Templates:
    GET    /api/templates              List templates for an org
    POST   /api/templates              Create a draft from a definition
    GET    /api/templates/{id}/{version}
    POST   /api/templates/{id}/{version}/publish

  Admin:
    POST   /api/admin/assignments      Assign (or reassign) a worker
    POST   /api/admin/tax-rules        Install a tax rule set

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Storage: Repository + AdminStore (SQLite in production, memory in tests)
  - Engine: the calculation pipeline
  - Factory: wire definitions -> domain structs

ERROR HANDLING:
  Domain errors map to HTTP status via the error taxonomy:
  - NotFound    -> 404
  - Validation  -> 400
  - Calculation -> 422
  - Overlap     -> 409
  - anything else -> 500

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/payroll-engine/engine"
	"github.com/warp/payroll-engine/factory"
)

// Storage is the persistence surface the API needs: snapshot reads for
// calculations plus the administrative writes.
type Storage interface {
	engine.Repository
	engine.AdminStore
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Storage Storage
	Engine  *engine.Engine
	Factory *factory.TemplateFactory
}

// NewHandler creates a new handler over a storage backend and engine.
func NewHandler(storage Storage, eng *engine.Engine) *Handler {
	return &Handler{
		Storage: storage,
		Engine:  eng,
		Factory: factory.NewTemplateFactory(),
	}
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// Calculate runs one worker's pay calculation.
// POST /api/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	engineReq, err := toEngineRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	result, err := h.Engine.CalculateWorker(r.Context(), engineReq)
	if err != nil {
		writeDomainError(w, "Calculation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// CalculateBatch runs the same calculation parameters for many workers,
// sequentially, skipping failures.
// POST /api/calculate/batch
func (h *Handler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchCalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.WorkerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "worker_ids is required", nil)
		return
	}

	template, err := toEngineRequest(req.CalculateRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	workers := make([]engine.WorkerID, len(req.WorkerIDs))
	for i, id := range req.WorkerIDs {
		workers[i] = engine.WorkerID(id)
	}

	runner := engine.Runner{Engine: h.Engine}
	run := runner.Run(r.Context(), workers, template, nil)

	out := BatchResultDTO{}
	for _, result := range run.Results {
		out.Results = append(out.Results, toResultDTO(result))
	}
	for _, f := range run.Failures {
		out.Failures = append(out.Failures, WorkerFailureDTO{
			WorkerID: string(f.WorkerID),
			Error:    f.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ValidateFormula statically validates a formula expression.
// POST /api/formulas/validate
func (h *Handler) ValidateFormula(w http.ResponseWriter, r *http.Request) {
	var req ValidateFormulaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Formula == "" {
		writeError(w, http.StatusBadRequest, "formula is required", nil)
		return
	}

	report := engine.NewFormulaEvaluator().Validate(req.Formula, req.Variables)
	writeJSON(w, http.StatusOK, ValidateFormulaResponse{
		Valid:    report.Valid,
		Errors:   report.Errors,
		Warnings: report.Warnings,
	})
}

// =============================================================================
// WORKER STRUCTURE HANDLERS
// =============================================================================

// GetStructure returns the worker's resolved structure for a date.
// GET /api/workers/{id}/structure?org_id=...&as_of=YYYY-MM-DD
func (h *Handler) GetStructure(w http.ResponseWriter, r *http.Request) {
	workerID := engine.WorkerID(chi.URLParam(r, "id"))
	orgID := engine.OrgID(r.URL.Query().Get("org_id"))
	asOf, err := parseDateOrToday(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date", err)
		return
	}

	resolved, err := h.Storage.ResolveCurrentAssignment(r.Context(), orgID, workerID, asOf)
	if err != nil {
		writeDomainError(w, "Failed to resolve structure", err)
		return
	}

	dto := ResolvedStructureDTO{
		WorkerID:        string(workerID),
		TemplateID:      string(resolved.Template.ID),
		TemplateVersion: resolved.Template.Version.String(),
		TemplateName:    resolved.Template.Name,
		EffectiveFrom:   resolved.Assignment.EffectiveFrom.Format(time.DateOnly),
		BaseSalary:      resolved.Assignment.BaseSalary,
		HourlyRate:      resolved.Assignment.HourlyRate,
		Components:      h.Factory.ToDef(&resolved.Template).Components,
	}
	if resolved.Assignment.EffectiveTo != nil {
		s := resolved.Assignment.EffectiveTo.Format(time.DateOnly)
		dto.EffectiveTo = &s
	}
	for _, o := range resolved.Overrides {
		dto.Overrides = append(dto.Overrides, toOverrideDTO(o))
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListOverrides returns a worker's overrides.
// GET /api/workers/{id}/overrides
func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	workerID := engine.WorkerID(chi.URLParam(r, "id"))
	overrides, err := h.Storage.ListOverrides(r.Context(), workerID)
	if err != nil {
		writeDomainError(w, "Failed to list overrides", err)
		return
	}
	dtos := make([]OverrideDTO, 0, len(overrides))
	for _, o := range overrides {
		dtos = append(dtos, toOverrideDTO(o))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOverride records a component override for a worker.
// POST /api/workers/{id}/overrides
func (h *Handler) CreateOverride(w http.ResponseWriter, r *http.Request) {
	workerID := engine.WorkerID(chi.URLParam(r, "id"))

	var dto OverrideDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	o, err := fromOverrideDTO(workerID, dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid override", err)
		return
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	if err := h.Storage.SaveOverride(r.Context(), o); err != nil {
		writeDomainError(w, "Failed to save override", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOverrideDTO(o))
}

// DeleteOverride removes an override.
// DELETE /api/workers/{id}/overrides/{overrideID}
func (h *Handler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	workerID := engine.WorkerID(chi.URLParam(r, "id"))
	overrideID := chi.URLParam(r, "overrideID")

	if err := h.Storage.DeleteOverride(r.Context(), workerID, overrideID); err != nil {
		writeDomainError(w, "Failed to delete override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TEMPLATE HANDLERS
// =============================================================================

// ListTemplates lists template versions for an org.
// GET /api/templates?org_id=...
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	orgID := engine.OrgID(r.URL.Query().Get("org_id"))
	templates, err := h.Storage.ListTemplates(r.Context(), orgID)
	if err != nil {
		writeDomainError(w, "Failed to list templates", err)
		return
	}

	dtos := make([]TemplateSummaryDTO, 0, len(templates))
	for _, t := range templates {
		dtos = append(dtos, TemplateSummaryDTO{
			ID:             string(t.ID),
			Code:           t.TemplateCode,
			Name:           t.Name,
			Version:        t.Version.String(),
			Status:         string(t.Status),
			ComponentCount: len(t.Components),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTemplate creates a draft template from a wire definition.
// POST /api/templates
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var def factory.TemplateDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	tmpl, err := h.Factory.FromDef(def)
	if err != nil {
		writeDomainError(w, "Invalid template", err)
		return
	}
	if err := h.Storage.SaveTemplate(r.Context(), *tmpl); err != nil {
		writeDomainError(w, "Failed to save template", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Factory.ToDef(tmpl))
}

// GetTemplate returns one template version as its wire definition.
// GET /api/templates/{id}/{version}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.loadTemplate(r)
	if err != nil {
		writeDomainError(w, "Failed to load template", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToDef(tmpl))
}

// PublishTemplate validates and activates a draft version, freezing it.
// POST /api/templates/{id}/{version}/publish
func (h *Handler) PublishTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.loadTemplate(r)
	if err != nil {
		writeDomainError(w, "Failed to load template", err)
		return
	}
	if err := tmpl.Publish(); err != nil {
		writeDomainError(w, "Publish rejected", err)
		return
	}
	if err := h.Storage.SaveTemplate(r.Context(), *tmpl); err != nil {
		writeDomainError(w, "Failed to save template", err)
		return
	}
	writeJSON(w, http.StatusOK, TemplateSummaryDTO{
		ID:             string(tmpl.ID),
		Code:           tmpl.TemplateCode,
		Name:           tmpl.Name,
		Version:        tmpl.Version.String(),
		Status:         string(tmpl.Status),
		ComponentCount: len(tmpl.Components),
	})
}

func (h *Handler) loadTemplate(r *http.Request) (*engine.PayStructureTemplate, error) {
	id := engine.TemplateID(chi.URLParam(r, "id"))
	var v engine.Version
	if _, err := fmt.Sscanf(chi.URLParam(r, "version"), "%d.%d.%d", &v.Major, &v.Minor, &v.Patch); err != nil {
		return nil, &engine.ValidationError{Message: "malformed version in path"}
	}
	return h.Storage.GetTemplate(r.Context(), id, v)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAssignment binds a worker to a template version. With
// reassign=true, any overlapping assignment is ended the day before the
// new one starts (atomically).
// POST /api/admin/assignments
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := toAssignment(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid assignment", err)
		return
	}

	if req.Reassign {
		err = h.Storage.ReassignWorker(r.Context(), a)
	} else {
		err = h.Storage.CreateAssignment(r.Context(), a)
	}
	if err != nil {
		writeDomainError(w, "Failed to create assignment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": a.ID})
}

// CreateTaxRuleSet installs a tax rule set from a wire definition.
// POST /api/admin/tax-rules
func (h *Handler) CreateTaxRuleSet(w http.ResponseWriter, r *http.Request) {
	var def factory.TaxRuleSetDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rs, err := h.Factory.FromTaxDef(def)
	if err != nil {
		writeDomainError(w, "Invalid tax rule set", err)
		return
	}
	if err := h.Storage.SaveTaxRuleSet(r.Context(), *rs); err != nil {
		writeDomainError(w, "Failed to save tax rule set", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": rs.ID})
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toEngineRequest(req CalculateRequest) (engine.CalculateRequest, error) {
	asOf, err := parseDateOrToday(req.AsOf)
	if err != nil {
		return engine.CalculateRequest{}, err
	}

	period := engine.PeriodMonthly
	if req.Period != "" {
		period = engine.PayPeriod(req.Period)
	}

	resident := true
	if req.Resident != nil {
		resident = *req.Resident
	}

	out := engine.CalculateRequest{
		OrgID:        engine.OrgID(req.OrgID),
		WorkerID:     engine.WorkerID(req.WorkerID),
		AsOf:         asOf,
		Period:       period,
		Jurisdiction: req.Jurisdiction,
		Resident:     resident,
		HoursWorked:  engine.MoneyFromFloat(req.HoursWorked),
	}
	if len(req.Extra) > 0 {
		out.Extra = make(map[string]engine.Money, len(req.Extra))
		for name, v := range req.Extra {
			out.Extra[name] = engine.MoneyFromFloat(v)
		}
	}
	for _, code := range req.AllowedEarnings {
		out.AllowedEarnings = append(out.AllowedEarnings, engine.ComponentCode(code))
	}
	return out, nil
}

func toResultDTO(result *engine.CalculationResult) CalculationResultDTO {
	dto := CalculationResultDTO{
		WorkerID:        string(result.WorkerID),
		StructureID:     string(result.StructureID),
		TemplateVersion: result.TemplateVersion,
		TotalEarnings:   result.Summary.TotalEarnings,
		TotalDeductions: result.Summary.TotalDeductions,
		TotalTaxes:      result.Summary.TotalTaxes,
		NetPay:          result.Summary.NetPay,
	}
	for _, line := range result.Calculations {
		dto.Lines = append(dto.Lines, CalculationLineDTO{
			Code:     string(line.Code),
			Name:     line.Name,
			Category: string(line.Category),
			Amount:   line.Amount,
			Taxable:  line.IsTaxable,
			Metadata: line.Metadata,
		})
	}
	if result.Taxes != nil {
		for _, c := range result.Taxes.Components {
			dto.ComponentTaxes = append(dto.ComponentTaxes, ComponentTaxDTO{
				Code:          string(c.ComponentCode),
				GrossAmount:   c.GrossAmount,
				Allowance:     c.Allowance,
				TaxableIncome: c.TaxableIncome,
				Taxes:         c.Taxes,
				TotalTax:      c.TotalTax,
			})
		}
		s := result.Taxes.Summary
		dto.TaxSummary = &TaxSummaryDTO{
			TotalByType:   s.TotalByType,
			ModeByType:    s.ModeByType,
			TotalTax:      s.TotalTax,
			EffectiveRate: s.EffectiveRate,
			Warnings:      s.Warnings,
		}
	}
	return dto
}

func toOverrideDTO(o engine.ComponentOverride) OverrideDTO {
	dto := OverrideDTO{
		ID:            o.ID,
		WorkerID:      string(o.WorkerID),
		ComponentCode: string(o.ComponentCode),
		Formula:       o.Formula,
		Disabled:      o.Disabled,
		Reason:        o.Reason,
		EffectiveFrom: o.EffectiveFrom.Format(time.DateOnly),
	}
	if o.Type != nil {
		s := string(*o.Type)
		dto.Type = &s
	}
	dto.Amount = moneyToFloatPtr(o.Amount)
	dto.Percentage = moneyToFloatPtr(o.Percentage)
	dto.Rate = moneyToFloatPtr(o.Rate)
	if o.EffectiveTo != nil {
		s := o.EffectiveTo.Format(time.DateOnly)
		dto.EffectiveTo = &s
	}
	return dto
}

func fromOverrideDTO(workerID engine.WorkerID, dto OverrideDTO) (engine.ComponentOverride, error) {
	o := engine.ComponentOverride{
		ID:            dto.ID,
		WorkerID:      workerID,
		ComponentCode: engine.ComponentCode(dto.ComponentCode),
		Formula:       dto.Formula,
		Disabled:      dto.Disabled,
		Reason:        dto.Reason,
	}
	if dto.Type != nil {
		t := engine.CalculationType(*dto.Type)
		o.Type = &t
	}
	o.Amount = floatToMoneyPtr(dto.Amount)
	o.Percentage = floatToMoneyPtr(dto.Percentage)
	o.Rate = floatToMoneyPtr(dto.Rate)

	var err error
	if o.EffectiveFrom, err = time.Parse(time.DateOnly, dto.EffectiveFrom); err != nil {
		return o, fmt.Errorf("invalid effective_from: %w", err)
	}
	if dto.EffectiveTo != nil {
		to, err := time.Parse(time.DateOnly, *dto.EffectiveTo)
		if err != nil {
			return o, fmt.Errorf("invalid effective_to: %w", err)
		}
		o.EffectiveTo = &to
	}
	return o, nil
}

func toAssignment(req CreateAssignmentRequest) (engine.WorkerStructureAssignment, error) {
	a := engine.WorkerStructureAssignment{
		ID:         uuid.NewString(),
		OrgID:      engine.OrgID(req.OrgID),
		WorkerID:   engine.WorkerID(req.WorkerID),
		TemplateID: engine.TemplateID(req.TemplateID),
	}
	if _, err := fmt.Sscanf(req.TemplateVersion, "%d.%d.%d", &a.Version.Major, &a.Version.Minor, &a.Version.Patch); err != nil {
		return a, fmt.Errorf("invalid template_version: %w", err)
	}

	var err error
	if a.EffectiveFrom, err = time.Parse(time.DateOnly, req.EffectiveFrom); err != nil {
		return a, fmt.Errorf("invalid effective_from: %w", err)
	}
	if req.EffectiveTo != nil {
		to, err := time.Parse(time.DateOnly, *req.EffectiveTo)
		if err != nil {
			return a, fmt.Errorf("invalid effective_to: %w", err)
		}
		a.EffectiveTo = &to
	}
	a.BaseSalary = floatToMoneyPtr(req.BaseSalary)
	a.HourlyRate = floatToMoneyPtr(req.HourlyRate)
	return a, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDateOrToday(s string) (time.Time, error) {
	if s == "" {
		return engine.DateOnly(time.Now().UTC()), nil
	}
	return time.Parse(time.DateOnly, s)
}

func moneyToFloatPtr(m *engine.Money) *float64 {
	if m == nil {
		return nil
	}
	v := m.InexactFloat64()
	return &v
}

func floatToMoneyPtr(v *float64) *engine.Money {
	if v == nil {
		return nil
	}
	m := engine.MoneyFromFloat(*v)
	return &m
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case engine.IsNotFound(err):
		status = http.StatusNotFound
	case engine.IsValidation(err):
		status = http.StatusBadRequest
	case engine.IsCalculation(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrOverlappingAssignment):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrTemplateFrozen):
		status = http.StatusConflict
	}
	writeError(w, status, message, err)
}
