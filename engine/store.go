/*
store.go - Collaborator contracts consumed by the engine

PURPOSE:
  The engine is an in-process computation library: it persists nothing
  and owns no wire format. Everything it needs from the outside world
  arrives through the interfaces in this file.

  Repository           read-only snapshot source (assignments, templates,
                       overrides, tax rule sets)
  AdminStore           administrative writes, including the transactional
                       worker reassignment that preserves the
                       single-current-assignment invariant
  AllowanceService     tax-free allowance amounts and yearly caps
  EligibilityEvaluator optional temporal-pattern collaborator

IMPLEMENTATIONS:
  - engine/store: in-memory (tests, demo server)
  - store/sqlite: SQLite-backed

CONCURRENCY:
  All Repository reads must be snapshot-consistent for the duration of
  one calculation. The engine holds no locks; a calculation is a pure,
  synchronous function of its resolved inputs, safe to run in parallel
  across workers.
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// REPOSITORY - read-only persistence contract
// =============================================================================

// Repository is the read-only persistence contract the engine consumes.
type Repository interface {
	// ResolveCurrentAssignment returns the worker's assignment covering
	// asOf, together with its template version and the worker's overrides.
	// Returns a NotFound error when no assignment covers the date.
	ResolveCurrentAssignment(ctx context.Context, orgID OrgID, workerID WorkerID, asOf time.Time) (*ResolvedStructure, error)

	// FindTaxRuleSets returns the tax rule sets (with brackets) effective
	// in the jurisdiction on the given date, at most one per tax type.
	FindTaxRuleSets(ctx context.Context, jurisdiction string, at time.Time) ([]TaxRuleSet, error)
}

// =============================================================================
// ADMIN STORE - administrative writes (outside the calculation path)
// =============================================================================

// AdminStore is the write-side contract. The engine never calls it during
// a calculation; it exists for the API surface and seeding.
type AdminStore interface {
	SaveTemplate(ctx context.Context, t PayStructureTemplate) error
	GetTemplate(ctx context.Context, id TemplateID, version Version) (*PayStructureTemplate, error)
	ListTemplates(ctx context.Context, orgID OrgID) ([]PayStructureTemplate, error)

	// CreateAssignment stores a new assignment. Implementations must
	// reject it with ErrOverlappingAssignment when an open-ended or
	// overlapping assignment already exists for the worker.
	CreateAssignment(ctx context.Context, a WorkerStructureAssignment) error

	// ReassignWorker atomically ends the worker's current assignment the
	// day before next.EffectiveFrom and creates next. This is THE
	// operation that preserves the single-current-assignment invariant,
	// and it must be wrapped in a storage-level transaction.
	ReassignWorker(ctx context.Context, next WorkerStructureAssignment) error

	SaveOverride(ctx context.Context, o ComponentOverride) error
	DeleteOverride(ctx context.Context, workerID WorkerID, overrideID string) error
	ListOverrides(ctx context.Context, workerID WorkerID) ([]ComponentOverride, error)

	SaveTaxRuleSet(ctx context.Context, rs TaxRuleSet) error
}

// =============================================================================
// ALLOWANCE SERVICE - tax-free allowance collaborator
// =============================================================================

// CapKind selects which yearly allowance cap applies.
type CapKind string

const (
	CapHoliday CapKind = "holiday"
	CapBonus   CapKind = "bonus"
)

// AllowanceService resolves tax-free allowances. Failures here degrade to
// a safe default inside the tax engine (zero allowance, resident rates)
// instead of aborting the calculation: they affect eligibility, not raw
// arithmetic.
type AllowanceService interface {
	// CalculateAllowance returns the tax-free allowance for one earning
	// amount in one pay period.
	CalculateAllowance(ctx context.Context, amount Money, payDate time.Time, period PayPeriod, resident bool) (Money, error)

	// ApplyYearlyCap returns the portion of amount still inside the
	// worker's yearly cap of the given kind, and records the usage.
	ApplyYearlyCap(ctx context.Context, workerID WorkerID, amount Money, year int, kind CapKind) (Money, error)
}

// =============================================================================
// ELIGIBILITY EVALUATOR - optional temporal-pattern collaborator
// =============================================================================

// EligibilityEvaluator answers whether a worker qualifies for a component
// carrying a temporal-eligibility condition. A nil evaluator means every
// conditioned component qualifies; an evaluation ERROR means the worker
// does not qualify (fail-closed).
type EligibilityEvaluator interface {
	EvaluateEligibility(ctx context.Context, workerID WorkerID, pattern EligibilityPattern, asOf time.Time) (bool, error)
}
