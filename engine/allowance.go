/*
allowance.go - Standard allowance collaborator implementation

PURPOSE:
  The AllowanceService contract belongs to an external collaborator, but
  the repo ships a standard implementation so the engine runs standalone
  (demo server, CLI, tests): a yearly tax-free sum prorated per pay
  period, with in-memory yearly caps for holiday and bonus allowances.

  Production deployments replace this with a jurisdiction-aware service;
  the engine only ever sees the interface.
*/
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STANDARD ALLOWANCES
// =============================================================================

// StandardAllowances prorates a yearly tax-free sum across pay periods
// and tracks yearly caps in memory. Safe for concurrent use.
type StandardAllowances struct {
	// AnnualAllowance is the general yearly tax-free sum; one pay period
	// receives AnnualAllowance / periodsPerYear.
	AnnualAllowance Money

	// NonResidentFactor scales the allowance for non-residents
	// (0 = none, 1 = same as residents). Nil means 1.
	NonResidentFactor *decimal.Decimal

	// Yearly caps for the capped allowance kinds. Zero means no cap.
	HolidayCap Money
	BonusCap   Money

	mu   sync.Mutex
	used map[capKey]Money
}

type capKey struct {
	worker WorkerID
	year   int
	kind   CapKind
}

// CalculateAllowance returns one pay period's share of the yearly
// allowance, never exceeding the earning amount it offsets.
func (s *StandardAllowances) CalculateAllowance(_ context.Context, amount Money, _ time.Time, period PayPeriod, resident bool) (Money, error) {
	perPeriod := s.AnnualAllowance.Div(decimal.NewFromInt(int64(period.PeriodsPerYear())))
	if !resident && s.NonResidentFactor != nil {
		perPeriod = perPeriod.Mul(*s.NonResidentFactor)
	}
	return decimal.Min(perPeriod, amount), nil
}

// ApplyYearlyCap returns the portion of amount still inside the worker's
// yearly cap and records the usage.
func (s *StandardAllowances) ApplyYearlyCap(_ context.Context, workerID WorkerID, amount Money, year int, kind CapKind) (Money, error) {
	cap := s.HolidayCap
	if kind == CapBonus {
		cap = s.BonusCap
	}
	if cap.IsZero() {
		return amount, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used == nil {
		s.used = make(map[capKey]Money)
	}

	key := capKey{worker: workerID, year: year, kind: kind}
	remaining := cap.Sub(s.used[key])
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	applied := decimal.Min(amount, remaining)
	s.used[key] = s.used[key].Add(applied)
	return applied, nil
}

var _ AllowanceService = (*StandardAllowances)(nil)
