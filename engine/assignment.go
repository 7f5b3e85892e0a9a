/*
assignment.go - Worker-to-structure assignments, overrides, and resolution

PURPOSE:
  A WorkerStructureAssignment binds one worker to one template version
  over an effective date range and carries the worker-specific pay basis
  (base salary and/or hourly rate). At most one assignment is "current"
  for a worker at any instant - the administrative reassignment that ends
  one and starts another is a transactional operation owned by the
  persistence layer, never performed here.

  A ComponentOverride is a worker-scoped replacement of one component's
  calculation parameters (or a disable flag), referenced by component
  code, with its own effective range and a mandatory reason.

  The Resolver is the read-only entry point: given (org, worker, as-of
  date) it loads the current assignment, the template's ordered
  components, and the overrides active on that date. It fails with
  NotFound when no assignment exists.

SEE ALSO:
  - store.go: the Repository interface the Resolver reads from
  - evaluator.go: consumes the resolved structure
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// WORKER STRUCTURE ASSIGNMENT
// =============================================================================

// WorkerStructureAssignment binds a worker to a template version over an
// effective range. EffectiveTo == nil means open-ended (current).
type WorkerStructureAssignment struct {
	ID         string
	OrgID      OrgID
	WorkerID   WorkerID
	TemplateID TemplateID
	Version    Version

	EffectiveFrom time.Time
	EffectiveTo   *time.Time

	// Worker-specific pay basis. At least one must be set; when both are,
	// BaseSalary wins as the synthetic base (salaried worker with an
	// auxiliary hourly rate for overtime components).
	BaseSalary *Money
	HourlyRate *Money
}

// IsActive reports whether the assignment covers the given date.
func (a WorkerStructureAssignment) IsActive(at time.Time) bool {
	return withinRange(at, a.EffectiveFrom, a.EffectiveTo)
}

// =============================================================================
// COMPONENT OVERRIDE
// =============================================================================

// ComponentOverride replaces one component's calculation parameters for a
// single worker, or disables the component outright. Reason is mandatory:
// overrides are audit-sensitive.
type ComponentOverride struct {
	ID            string
	WorkerID      WorkerID
	ComponentCode ComponentCode

	// Optional parameter replacements. Nil fields leave the template
	// component's parameter in place.
	Type       *CalculationType
	Amount     *Money
	Percentage *Money // percent value (10 = 10%)
	Rate       *Money // hourly rate replacement
	Formula    *string

	Disabled bool
	Reason   string

	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

// IsActive reports whether the override covers the given date.
func (o ComponentOverride) IsActive(at time.Time) bool {
	return withinRange(at, o.EffectiveFrom, o.EffectiveTo)
}

// Validate checks the override is well-formed.
func (o ComponentOverride) Validate() error {
	if o.ComponentCode == "" {
		return &ValidationError{Message: "override requires a component code"}
	}
	if o.Reason == "" {
		return &ValidationError{ComponentCode: o.ComponentCode, Message: "override requires a reason"}
	}
	if o.Type != nil && !knownCalculationType(*o.Type) {
		return &ValidationError{ComponentCode: o.ComponentCode,
			Message: "override replaces calculation type with unsupported value"}
	}
	return nil
}

// OverrideMap indexes active overrides by component code for the evaluator.
type OverrideMap map[ComponentCode]ComponentOverride

// BuildOverrideMap filters overrides to those active at the given date and
// indexes them by component code. Later entries for the same code win,
// matching the persistence layer's ordering (most recently created last).
func BuildOverrideMap(overrides []ComponentOverride, at time.Time) OverrideMap {
	m := make(OverrideMap)
	for _, o := range overrides {
		if o.IsActive(at) {
			m[o.ComponentCode] = o
		}
	}
	return m
}

// =============================================================================
// RESOLVED STRUCTURE - what one calculation consumes
// =============================================================================

// ResolvedStructure is the snapshot a single worker calculation runs
// against: one assignment, its template version with ordered components,
// and the overrides active on the as-of date.
type ResolvedStructure struct {
	Assignment WorkerStructureAssignment
	Template   PayStructureTemplate
	Overrides  []ComponentOverride
}

// =============================================================================
// RESOLVER - pure read of a worker's current structure
// =============================================================================

// Resolver loads a worker's current (or as-of) structure from the
// Repository. It is a pure read: ending or creating assignments is an
// external transactional operation.
type Resolver struct {
	Repo Repository
}

// Resolve returns the worker's structure as of the given date, or
// NotFound when no assignment covers it.
func (r *Resolver) Resolve(ctx context.Context, orgID OrgID, workerID WorkerID, asOf time.Time) (*ResolvedStructure, error) {
	resolved, err := r.Repo.ResolveCurrentAssignment(ctx, orgID, workerID, asOf)
	if err != nil {
		return nil, err
	}
	if resolved == nil || !resolved.Assignment.IsActive(asOf) {
		return nil, &NotFoundError{Kind: "assignment", ID: string(workerID)}
	}
	return resolved, nil
}
