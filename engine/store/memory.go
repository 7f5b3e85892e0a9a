// Package store provides Repository implementations.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/payroll-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.Repository and engine.AdminStore in memory.
// Reads taken under the lock are snapshot-consistent for one call, which
// is all the engine requires.
type Memory struct {
	mu          sync.RWMutex
	templates   map[templateKey]engine.PayStructureTemplate
	assignments map[engine.WorkerID][]engine.WorkerStructureAssignment
	overrides   map[engine.WorkerID][]engine.ComponentOverride
	taxRuleSets []engine.TaxRuleSet
}

type templateKey struct {
	ID      engine.TemplateID
	Version string
}

func NewMemory() *Memory {
	return &Memory{
		templates:   make(map[templateKey]engine.PayStructureTemplate),
		assignments: make(map[engine.WorkerID][]engine.WorkerStructureAssignment),
		overrides:   make(map[engine.WorkerID][]engine.ComponentOverride),
	}
}

// =============================================================================
// REPOSITORY (read side)
// =============================================================================

func (m *Memory) ResolveCurrentAssignment(_ context.Context, orgID engine.OrgID, workerID engine.WorkerID, asOf time.Time) (*engine.ResolvedStructure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var current *engine.WorkerStructureAssignment
	for i := range m.assignments[workerID] {
		a := m.assignments[workerID][i]
		if a.OrgID == orgID && a.IsActive(asOf) {
			current = &a
			break
		}
	}
	if current == nil {
		return nil, &engine.NotFoundError{Kind: "assignment", ID: string(workerID)}
	}

	tmpl, ok := m.templates[templateKey{ID: current.TemplateID, Version: current.Version.String()}]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "template", ID: string(current.TemplateID)}
	}

	var active []engine.ComponentOverride
	for _, o := range m.overrides[workerID] {
		if o.IsActive(asOf) {
			active = append(active, o)
		}
	}

	return &engine.ResolvedStructure{
		Assignment: *current,
		Template:   tmpl,
		Overrides:  active,
	}, nil
}

func (m *Memory) FindTaxRuleSets(_ context.Context, jurisdiction string, at time.Time) ([]engine.TaxRuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Latest active version wins per tax type.
	byType := make(map[engine.TaxType]engine.TaxRuleSet)
	for _, rs := range m.taxRuleSets {
		if rs.Jurisdiction != jurisdiction || !rs.IsActive(at) {
			continue
		}
		if existing, ok := byType[rs.TaxType]; !ok || rs.Version > existing.Version {
			byType[rs.TaxType] = rs
		}
	}

	out := make([]engine.TaxRuleSet, 0, len(byType))
	for _, taxType := range []engine.TaxType{engine.TaxWage, engine.TaxOldAge, engine.TaxSurvivor} {
		if rs, ok := byType[taxType]; ok {
			out = append(out, rs)
			delete(byType, taxType)
		}
	}
	for _, rs := range byType {
		out = append(out, rs)
	}
	return out, nil
}

// =============================================================================
// ADMIN STORE (write side)
// =============================================================================

func (m *Memory) SaveTemplate(_ context.Context, t engine.PayStructureTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[templateKey{ID: t.ID, Version: t.Version.String()}] = t
	return nil
}

func (m *Memory) GetTemplate(_ context.Context, id engine.TemplateID, version engine.Version) (*engine.PayStructureTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[templateKey{ID: id, Version: version.String()}]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "template", ID: fmt.Sprintf("%s@%s", id, version)}
	}
	return &t, nil
}

func (m *Memory) ListTemplates(_ context.Context, orgID engine.OrgID) ([]engine.PayStructureTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.PayStructureTemplate
	for _, t := range m.templates {
		if t.OrgID == orgID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) CreateAssignment(_ context.Context, a engine.WorkerStructureAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAssignmentLocked(a)
}

func (m *Memory) createAssignmentLocked(a engine.WorkerStructureAssignment) error {
	for _, existing := range m.assignments[a.WorkerID] {
		if overlaps(existing, a) {
			return engine.ErrOverlappingAssignment
		}
	}
	m.assignments[a.WorkerID] = append(m.assignments[a.WorkerID], a)
	return nil
}

// ReassignWorker atomically ends the current assignment the day before
// the new one starts, then creates the new one. The single lock makes the
// pair atomic; the SQLite implementation uses a database transaction.
func (m *Memory) ReassignWorker(_ context.Context, next engine.WorkerStructureAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := engine.DateOnly(next.EffectiveFrom).AddDate(0, 0, -1)
	for i := range m.assignments[next.WorkerID] {
		a := &m.assignments[next.WorkerID][i]
		if a.EffectiveTo == nil || a.EffectiveTo.After(cutoff) {
			if !a.EffectiveFrom.After(cutoff) {
				end := cutoff
				a.EffectiveTo = &end
			}
		}
	}
	return m.createAssignmentLocked(next)
}

func (m *Memory) SaveOverride(_ context.Context, o engine.ComponentOverride) error {
	if err := o.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.WorkerID] = append(m.overrides[o.WorkerID], o)
	return nil
}

func (m *Memory) DeleteOverride(_ context.Context, workerID engine.WorkerID, overrideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.overrides[workerID]
	for i, o := range list {
		if o.ID == overrideID {
			m.overrides[workerID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return &engine.NotFoundError{Kind: "override", ID: overrideID}
}

func (m *Memory) ListOverrides(_ context.Context, workerID engine.WorkerID) ([]engine.ComponentOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.ComponentOverride, len(m.overrides[workerID]))
	copy(out, m.overrides[workerID])
	return out, nil
}

func (m *Memory) SaveTaxRuleSet(_ context.Context, rs engine.TaxRuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taxRuleSets = append(m.taxRuleSets, rs)
	return nil
}

func overlaps(a, b engine.WorkerStructureAssignment) bool {
	aEnd := openEnd(a.EffectiveTo)
	bEnd := openEnd(b.EffectiveTo)
	return !engine.DateOnly(a.EffectiveFrom).After(bEnd) && !engine.DateOnly(b.EffectiveFrom).After(aEnd)
}

func openEnd(t *time.Time) time.Time {
	if t == nil {
		return time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	return engine.DateOnly(*t)
}

var (
	_ engine.Repository = (*Memory)(nil)
	_ engine.AdminStore = (*Memory)(nil)
)
