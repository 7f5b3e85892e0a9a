/*
engine.go - The calculation engine facade

PURPOSE:
  Ties the pipeline together for one worker and one pay period:

    Resolver -> Component Evaluator -> Tax Apportionment -> Aggregator

  A calculation is a pure, synchronous function of its resolved inputs:
  all reads are snapshot-read-only, nothing is written, and identical
  inputs yield bit-identical output. There is no retry logic anywhere -
  the engine is deterministic, so retrying without changed input cannot
  change the outcome.
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// ENGINE
// =============================================================================

// Collaborators bundles the external services the engine consumes.
// Allowances defaults to zero allowances when nil; Eligibility defaults
// to "always qualified"; Formulas defaults to a fresh evaluator.
type Collaborators struct {
	Allowances  AllowanceService
	Eligibility EligibilityEvaluator
	Formulas    *FormulaEvaluator
}

// Engine is the compensation calculation engine. Safe for concurrent use
// across workers; within one worker's calculation evaluation is strictly
// sequential.
type Engine struct {
	resolver  Resolver
	evaluator ComponentEvaluator
	taxes     TaxEngine
	repo      Repository
}

// New builds an engine over a repository and its collaborators.
func New(repo Repository, c Collaborators) *Engine {
	formulas := c.Formulas
	if formulas == nil {
		formulas = NewFormulaEvaluator()
	}
	return &Engine{
		resolver:  Resolver{Repo: repo},
		evaluator: ComponentEvaluator{Formulas: formulas, Eligibility: c.Eligibility},
		taxes:     TaxEngine{Allowances: c.Allowances},
		repo:      repo,
	}
}

// CalculateRequest identifies one worker calculation.
type CalculateRequest struct {
	OrgID    OrgID
	WorkerID WorkerID
	AsOf     time.Time // pay date; also the assignment/override as-of date

	Period       PayPeriod
	Jurisdiction string
	Resident     bool

	// HoursWorked feeds hourly components and the REGULAR_PAY base for
	// hourly-only workers.
	HoursWorked Money

	// Extra seed variables: timesheet aggregates, external component
	// values, prior-period figures formulas may reference.
	Extra map[string]Money

	// AllowedEarnings optionally restricts which earning components count
	// toward totalEarnings (orchestrator-supplied filter).
	AllowedEarnings []ComponentCode
}

// CalculateWorker resolves the worker's structure and runs the full
// pipeline. Any component-level error aborts with an error naming that
// component; no partial result is ever returned.
func (e *Engine) CalculateWorker(ctx context.Context, req CalculateRequest) (*CalculationResult, error) {
	resolved, err := e.resolver.Resolve(ctx, req.OrgID, req.WorkerID, req.AsOf)
	if err != nil {
		return nil, err
	}
	return e.Calculate(ctx, resolved, req)
}

// Calculate runs the pipeline against an already-resolved structure.
// Exposed so the orchestrator can resolve once and recalculate (what-if
// runs, retro adjustments) without re-reading.
func (e *Engine) Calculate(ctx context.Context, resolved *ResolvedStructure, req CalculateRequest) (*CalculationResult, error) {
	seed := NewContext()
	for name, value := range req.Extra {
		seed.Set(name, value)
	}

	assignment := resolved.Assignment
	lines, err := e.evaluator.Evaluate(ctx, EvaluationInput{
		WorkerID:    req.WorkerID,
		Components:  resolved.Template.OrderedComponents(),
		Overrides:   BuildOverrideMap(resolved.Overrides, req.AsOf),
		Seed:        seed,
		AsOf:        req.AsOf,
		BaseSalary:  assignment.BaseSalary,
		HourlyRate:  assignment.HourlyRate,
		HoursWorked: req.HoursWorked,
	})
	if err != nil {
		return nil, err
	}

	var taxResult *TaxResult
	if req.Jurisdiction != "" {
		ruleSets, err := e.repo.FindTaxRuleSets(ctx, req.Jurisdiction, req.AsOf)
		if err != nil {
			return nil, err
		}
		taxResult, err = e.taxes.Apportion(ctx, TaxInput{
			WorkerID: req.WorkerID,
			Lines:    TaxableLinesFrom(lines),
			PayDate:  req.AsOf,
			Period:   req.Period,
			Resident: req.Resident,
			RuleSets: ruleSets,
		})
		if err != nil {
			return nil, err
		}
	}

	return &CalculationResult{
		WorkerID:        req.WorkerID,
		StructureID:     resolved.Template.ID,
		TemplateVersion: resolved.Template.Version.String(),
		Calculations:    lines,
		Taxes:           taxResult,
		Summary:         Aggregate(lines, taxResult, req.AllowedEarnings),
	}, nil
}

// TaxOnGross exposes the legacy aggregate-only tax path: one gross figure
// instead of component lines.
func (e *Engine) TaxOnGross(ctx context.Context, req CalculateRequest, gross Money) (*TaxResult, error) {
	ruleSets, err := e.repo.FindTaxRuleSets(ctx, req.Jurisdiction, req.AsOf)
	if err != nil {
		return nil, err
	}
	return e.taxes.ApportionGross(ctx, req.WorkerID, gross, req.AsOf, req.Period, req.Resident, ruleSets)
}
