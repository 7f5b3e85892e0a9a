/*
template.go - Versioned pay-structure templates

PURPOSE:
  A PayStructureTemplate is the versioned, ordered set of components that
  defines how a worker category is compensated. Versions move through a
  strict lifecycle:

    draft -> active -> deprecated -> archived

  A version is mutable ONLY while draft. Publishing freezes it forever;
  changes happen by cutting a new draft (copy-and-modify, version bump).
  Exactly one active version per (organization, templateCode) is
  assignable at a time - enforced by the persistence layer, since the
  engine itself holds no global view. Older versions stay readable so
  historical calculations remain reproducible.

SEE ALSO:
  - assignment.go: binds a worker to one template version
  - factory/: JSON/YAML definitions -> templates
*/
package engine

import (
	"fmt"
	"sort"
)

// =============================================================================
// VERSION - semantic template versioning
// =============================================================================

// Version is a semantic major.minor.patch template version.
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// BumpMinor returns the next minor version (the default bump when cutting
// a new draft from a published version).
func (v Version) BumpMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// BumpMajor returns the next major version.
func (v Version) BumpMajor() Version {
	return Version{Major: v.Major + 1}
}

// Compare returns -1, 0, or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// TEMPLATE STATUS - lifecycle state
// =============================================================================

type TemplateStatus string

const (
	StatusDraft      TemplateStatus = "draft"
	StatusActive     TemplateStatus = "active"
	StatusDeprecated TemplateStatus = "deprecated"
	StatusArchived   TemplateStatus = "archived"
)

// validTransitions is the allowed lifecycle graph.
var validTransitions = map[TemplateStatus][]TemplateStatus{
	StatusDraft:      {StatusActive, StatusArchived},
	StatusActive:     {StatusDeprecated},
	StatusDeprecated: {StatusArchived},
}

// =============================================================================
// PAY STRUCTURE TEMPLATE
// =============================================================================

// PayStructureTemplate owns an ordered set of components. The zero-value
// status is draft.
type PayStructureTemplate struct {
	ID           TemplateID
	OrgID        OrgID
	TemplateCode string
	Name         string
	Version      Version
	Status       TemplateStatus
	Components   []Component
}

// OrderedComponents returns the components sorted ascending by sequence
// order. The stored slice is not modified.
func (t *PayStructureTemplate) OrderedComponents() []Component {
	out := make([]Component, len(t.Components))
	copy(out, t.Components)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceOrder < out[j].SequenceOrder
	})
	return out
}

// ComponentByCode returns the component with the given code, if present.
func (t *PayStructureTemplate) ComponentByCode(code ComponentCode) (Component, bool) {
	for _, c := range t.Components {
		if c.Code == code {
			return c, true
		}
	}
	return Component{}, false
}

// IsDraft reports whether the version is still mutable.
func (t *PayStructureTemplate) IsDraft() bool {
	return t.Status == StatusDraft || t.Status == ""
}

// AddComponent appends a component to a draft version. Frozen versions
// reject mutation.
func (t *PayStructureTemplate) AddComponent(c Component) error {
	if !t.IsDraft() {
		return ErrTemplateFrozen
	}
	t.Components = append(t.Components, c)
	return nil
}

// RemoveComponent removes a component from a draft version by code.
func (t *PayStructureTemplate) RemoveComponent(code ComponentCode) error {
	if !t.IsDraft() {
		return ErrTemplateFrozen
	}
	for i, c := range t.Components {
		if c.Code == code {
			t.Components = append(t.Components[:i], t.Components[i+1:]...)
			return nil
		}
	}
	return &NotFoundError{Kind: "component", ID: string(code)}
}

// Publish validates the template and moves it from draft to active.
func (t *PayStructureTemplate) Publish() error {
	if !t.IsDraft() {
		return ErrTemplateFrozen
	}
	if err := t.Validate(); err != nil {
		return err
	}
	t.Status = StatusActive
	return nil
}

// TransitionTo moves the template along the lifecycle graph.
func (t *PayStructureTemplate) TransitionTo(next TemplateStatus) error {
	current := t.Status
	if current == "" {
		current = StatusDraft
	}
	if current == StatusDraft && next == StatusActive {
		return t.Publish()
	}
	for _, allowed := range validTransitions[current] {
		if allowed == next {
			t.Status = next
			return nil
		}
	}
	return &ValidationError{Message: fmt.Sprintf("illegal status transition %s -> %s", current, next)}
}

// NewDraft returns a mutable copy with a bumped minor version. This is the
// only way to change a published template: published versions are frozen.
func (t *PayStructureTemplate) NewDraft() *PayStructureTemplate {
	draft := &PayStructureTemplate{
		ID:           t.ID,
		OrgID:        t.OrgID,
		TemplateCode: t.TemplateCode,
		Name:         t.Name,
		Version:      t.Version.BumpMinor(),
		Status:       StatusDraft,
		Components:   make([]Component, len(t.Components)),
	}
	copy(draft.Components, t.Components)
	return draft
}

// =============================================================================
// TEMPLATE VALIDATION
// =============================================================================

// Validate checks structural invariants: unique codes, unique sequence
// orders, known categories and calculation types, well-formed tier
// configurations, and dependencies pointing strictly backwards in the
// evaluation order.
func (t *PayStructureTemplate) Validate() error {
	seenCodes := make(map[ComponentCode]bool)
	seenOrder := make(map[int]ComponentCode)
	orderByCode := make(map[ComponentCode]int)

	for _, c := range t.Components {
		if c.Code == "" {
			return &ValidationError{Message: "component code is required"}
		}
		if seenCodes[c.Code] {
			return &ValidationError{ComponentCode: c.Code, Message: "duplicate component code"}
		}
		seenCodes[c.Code] = true

		if prev, dup := seenOrder[c.SequenceOrder]; dup {
			return &ValidationError{ComponentCode: c.Code,
				Message: fmt.Sprintf("sequence order %d already used by %s", c.SequenceOrder, prev)}
		}
		seenOrder[c.SequenceOrder] = c.Code
		orderByCode[c.Code] = c.SequenceOrder

		if !knownCategory(c.Category) {
			return &ValidationError{ComponentCode: c.Code,
				Message: fmt.Sprintf("unknown category %q", c.Category)}
		}
		if !knownCalculationType(c.Type) {
			return &ValidationError{ComponentCode: c.Code,
				Message: fmt.Sprintf("unsupported calculation type %q", c.Type)}
		}

		switch c.Type {
		case CalcTiered:
			if err := ValidateTiers(c.Tiers); err != nil {
				return &ValidationError{ComponentCode: c.Code, Message: err.Error()}
			}
			if c.Basis == "" {
				return &ValidationError{ComponentCode: c.Code, Message: "tiered component requires a basis"}
			}
		case CalcPercentage:
			if c.Basis == "" {
				return &ValidationError{ComponentCode: c.Code, Message: "percentage component requires a basis"}
			}
		case CalcFormula:
			if c.Formula == "" {
				return &ValidationError{ComponentCode: c.Code, Message: "formula component requires an expression"}
			}
		}
	}

	// Dependencies must reference existing components that evaluate earlier.
	for _, c := range t.Components {
		for _, dep := range c.DependsOn {
			depOrder, ok := orderByCode[dep]
			if !ok {
				return &ValidationError{ComponentCode: c.Code,
					Message: fmt.Sprintf("depends on unknown component %s", dep)}
			}
			if depOrder >= c.SequenceOrder {
				return &ValidationError{ComponentCode: c.Code,
					Message: fmt.Sprintf("depends on %s which does not evaluate earlier", dep)}
			}
		}
	}

	return nil
}

func knownCategory(c ComponentCategory) bool {
	for _, k := range KnownCategories {
		if c == k {
			return true
		}
	}
	return false
}

func knownCalculationType(t CalculationType) bool {
	for _, k := range KnownCalculationTypes {
		if t == k {
			return true
		}
	}
	return false
}
