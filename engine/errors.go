/*
errors.go - Centralized error types for the compensation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The taxonomy is deliberately small:

  1. NotFound    - no assignment/template/rule set for the worker
  2. Validation  - malformed configuration (bad formula, unknown
                   calculation type, non-ascending tiers)
  3. Calculation - arithmetic/formula failure on a specific component

PROPAGATION:
  Any Validation or Calculation error on a single component aborts the
  entire worker calculation (fail-fast; no partial paycheck). The batch
  runner logs and continues with remaining workers. Allowance and
  eligibility collaborator errors are NOT part of this taxonomy: they are
  caught locally and degrade to a safe default.

USAGE:
  if engine.IsNotFound(err) {
      // worker has no current assignment
  }
  var calcErr *engine.CalculationError
  if errors.As(err, &calcErr) {
      log.Printf("component %s failed", calcErr.ComponentCode)
  }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a worker has no current assignment, or
	// a referenced template or tax rule set does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed configuration: bad formulas,
	// unsupported calculation types, misordered tiers, duplicate sequence
	// orders. Deterministic given the configuration; retrying cannot help.
	ErrValidation = errors.New("validation failed")

	// ErrCalculation is returned when computing a specific component fails.
	ErrCalculation = errors.New("calculation failed")

	// ErrTemplateFrozen is returned when mutating a template that has left
	// draft status. Published versions are immutable; create a new draft.
	ErrTemplateFrozen = errors.New("template version is frozen")

	// ErrOverlappingAssignment is returned by persistence implementations
	// when creating an assignment would violate the single-current invariant.
	ErrOverlappingAssignment = errors.New("worker already has a current assignment")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError reports which entity was missing.
type NotFoundError struct {
	Kind string // "assignment", "template", "tax_rule_set"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports a configuration problem, optionally tied to a
// component code.
type ValidationError struct {
	ComponentCode ComponentCode // empty when template-level
	Message       string
}

func (e *ValidationError) Error() string {
	if e.ComponentCode != "" {
		return fmt.Sprintf("invalid component %s: %s", e.ComponentCode, e.Message)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// CalculationError names the component whose evaluation failed. The whole
// worker calculation is aborted when one of these surfaces.
type CalculationError struct {
	ComponentCode ComponentCode
	Message       string
	Cause         error
}

func (e *CalculationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("component %s: %s: %v", e.ComponentCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("component %s: %s", e.ComponentCode, e.Message)
}

func (e *CalculationError) Unwrap() error { return ErrCalculation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation returns true if the error is a configuration problem.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsCalculation returns true if the error is a per-component calculation
// failure.
func IsCalculation(err error) bool { return errors.Is(err, ErrCalculation) }
