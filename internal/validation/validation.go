// Package validation checks candidate attribute sets against a servertype's
// schema. It collects every violation in one pass instead of stopping at the
// first, so callers can report all problems at once.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"evalgo.org/serverhub/models"
)

// Violations groups schema-conformance failures by category. Each slice
// holds attribute names.
type Violations struct {
	// Unknown lists attributes not declared on the servertype.
	Unknown []string

	// Required lists required scalar attributes without a value.
	Required []string

	// Pattern lists string attributes whose value (or any element, for
	// multi attributes) fails the configured regexp.
	Pattern []string
}

// Empty reports whether no violation was collected.
func (v Violations) Empty() bool {
	return len(v.Unknown) == 0 && len(v.Required) == 0 && len(v.Pattern) == 0
}

// Error is the structured validation failure naming every offending
// attribute per category.
type Error struct {
	Violations
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown attributes: "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Required) > 0 {
		parts = append(parts, "missing required attributes: "+strings.Join(e.Required, ", "))
	}
	if len(e.Pattern) > 0 {
		parts = append(parts, "pattern mismatch: "+strings.Join(e.Pattern, ", "))
	}
	if len(parts) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// Validate checks a full candidate attribute set against the servertype
// schema. Identity fields are exempt; computed attributes are never stored
// and therefore never required. Never short-circuits.
func Validate(st *models.ServerType, attrs map[string]models.Value) Violations {
	var v Violations

	for _, sa := range st.Attributes {
		attr := sa.Attribute
		if attr.Computed() {
			continue
		}
		val, present := attrs[attr.Name]
		if !present {
			if sa.Required && !attr.Multi {
				v.Required = append(v.Required, attr.Name)
			}
			continue
		}
		if attr.Type == models.TypeString && sa.Regexp != nil {
			if !matchesPattern(sa, val) {
				v.Pattern = append(v.Pattern, attr.Name)
			}
		}
	}

	for name := range attrs {
		if models.IsIdentityAttr(name) {
			continue
		}
		if st.Constraint(name) == nil {
			v.Unknown = append(v.Unknown, name)
		}
	}

	sort.Strings(v.Unknown)
	sort.Strings(v.Required)
	sort.Strings(v.Pattern)
	return v
}

// CheckPattern validates a single value against a constraint's regexp,
// honoring multi semantics. Constraints without a pattern always pass.
func CheckPattern(sa *models.ServertypeAttribute, val models.Value) bool {
	if sa.Regexp == nil || sa.Attribute.Type != models.TypeString {
		return true
	}
	return matchesPattern(sa, val)
}

func matchesPattern(sa *models.ServertypeAttribute, val models.Value) bool {
	if val.Kind == models.KindMulti {
		for _, e := range val.Elems {
			if !sa.Regexp.MatchString(e.String()) {
				return false
			}
		}
		return true
	}
	return sa.Regexp.MatchString(val.String())
}

// HandleViolations is the single validation gate used by both creation and
// commit. With skip set, every violation is silently accepted; this is how
// administrative restores and trusted imports bypass schema drift.
func HandleViolations(skip bool, v Violations) error {
	if skip || v.Empty() {
		return nil
	}
	return &Error{Violations: v}
}
