// Package filter compiles declarative filter specifications into pure
// predicates over attribute values. Specs arrive as decoded JSON; compiling
// them validates operator arity and operator/type compatibility up front so
// evaluation never fails.
package filter

import (
	"fmt"
	"regexp"

	"evalgo.org/serverhub/internal/typecast"
	"evalgo.org/serverhub/models"
)

// ValueError reports a malformed filter specification: wrong arity, an
// unknown operator, or an operator applied to an incompatible attribute
// type.
type ValueError struct {
	Attribute string
	Reason    string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid filter for %q: %s", e.Attribute, e.Reason)
}

// Predicate evaluates a single attribute's value. Implementations are pure
// and side-effect free; present is false when the object carries no value
// for the attribute.
type Predicate interface {
	Matches(v models.Value, present bool) bool
}

// FromSpec compiles a specification for one attribute. Literal scalars are
// shorthand for {"value": ...}. Composite operators nest arbitrarily.
func FromSpec(attr *models.Attribute, spec any) (Predicate, error) {
	m, ok := spec.(map[string]any)
	if !ok {
		// Bare literal: exact match.
		want, err := typecast.Literal(attr, spec)
		if err != nil {
			return nil, &ValueError{Attribute: attr.Name, Reason: err.Error()}
		}
		return exact{want: want}, nil
	}

	if len(m) != 1 {
		return nil, &ValueError{Attribute: attr.Name, Reason: "spec must have exactly one operator"}
	}

	for op, arg := range m {
		switch op {
		case "value":
			want, err := typecast.Literal(attr, arg)
			if err != nil {
				return nil, &ValueError{Attribute: attr.Name, Reason: err.Error()}
			}
			return exact{want: want}, nil

		case "any":
			items, ok := arg.([]any)
			if !ok {
				return nil, &ValueError{Attribute: attr.Name, Reason: "\"any\" takes a list"}
			}
			p := membership{}
			for _, item := range items {
				want, err := typecast.Literal(attr, item)
				if err != nil {
					return nil, &ValueError{Attribute: attr.Name, Reason: err.Error()}
				}
				p.wants = append(p.wants, want)
			}
			return p, nil

		case "regexp":
			if attr.Type != models.TypeString && attr.Type != models.TypeRelation &&
				attr.Type != models.TypeDomain {
				return nil, &ValueError{Attribute: attr.Name, Reason: fmt.Sprintf("regexp filter on %s attribute", attr.Type)}
			}
			pat, ok := arg.(string)
			if !ok {
				return nil, &ValueError{Attribute: attr.Name, Reason: "\"regexp\" takes a pattern string"}
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, &ValueError{Attribute: attr.Name, Reason: fmt.Sprintf("bad pattern: %v", err)}
			}
			return match{re: re}, nil

		case "range":
			if attr.Type != models.TypeNumber && attr.Type != models.TypeString &&
				attr.Type != models.TypeDatetime {
				return nil, &ValueError{Attribute: attr.Name, Reason: fmt.Sprintf("range filter on %s attribute", attr.Type)}
			}
			bounds, ok := arg.(map[string]any)
			if !ok {
				return nil, &ValueError{Attribute: attr.Name, Reason: "\"range\" takes {min, max}"}
			}
			p := between{}
			for key, raw := range bounds {
				want, err := typecast.Literal(attr, raw)
				if err != nil {
					return nil, &ValueError{Attribute: attr.Name, Reason: err.Error()}
				}
				switch key {
				case "min":
					p.min = &want
				case "max":
					p.max = &want
				default:
					return nil, &ValueError{Attribute: attr.Name, Reason: fmt.Sprintf("unknown range bound %q", key)}
				}
			}
			if p.min == nil && p.max == nil {
				return nil, &ValueError{Attribute: attr.Name, Reason: "range needs min or max"}
			}
			return p, nil

		case "not":
			inner, err := FromSpec(attr, arg)
			if err != nil {
				return nil, err
			}
			return negation{inner: inner}, nil

		case "and", "or":
			items, ok := arg.([]any)
			if !ok || len(items) == 0 {
				return nil, &ValueError{Attribute: attr.Name, Reason: fmt.Sprintf("%q takes a non-empty list", op)}
			}
			var inner []Predicate
			for _, item := range items {
				p, err := FromSpec(attr, item)
				if err != nil {
					return nil, err
				}
				inner = append(inner, p)
			}
			if op == "and" {
				return conjunction{inner: inner}, nil
			}
			return disjunction{inner: inner}, nil

		default:
			return nil, &ValueError{Attribute: attr.Name, Reason: fmt.Sprintf("unknown operator %q", op)}
		}
	}
	return nil, &ValueError{Attribute: attr.Name, Reason: "empty spec"}
}

// eachElement applies fn over scalar elements: a multi value matches when
// any element matches.
func eachElement(v models.Value, present bool, fn func(models.Value) bool) bool {
	if !present {
		return false
	}
	if v.Kind == models.KindMulti {
		for _, e := range v.Elems {
			if fn(e) {
				return true
			}
		}
		return false
	}
	return fn(v)
}

type exact struct{ want models.Value }

func (p exact) Matches(v models.Value, present bool) bool {
	return eachElement(v, present, func(e models.Value) bool { return e.Equal(p.want) })
}

type membership struct{ wants []models.Value }

func (p membership) Matches(v models.Value, present bool) bool {
	return eachElement(v, present, func(e models.Value) bool {
		for _, w := range p.wants {
			if e.Equal(w) {
				return true
			}
		}
		return false
	})
}

type match struct{ re *regexp.Regexp }

func (p match) Matches(v models.Value, present bool) bool {
	return eachElement(v, present, func(e models.Value) bool { return p.re.MatchString(e.String()) })
}

type between struct{ min, max *models.Value }

func (p between) Matches(v models.Value, present bool) bool {
	return eachElement(v, present, func(e models.Value) bool {
		if p.min != nil && e.Compare(*p.min) < 0 {
			return false
		}
		if p.max != nil && e.Compare(*p.max) > 0 {
			return false
		}
		return true
	})
}

type negation struct{ inner Predicate }

func (p negation) Matches(v models.Value, present bool) bool {
	return !p.inner.Matches(v, present)
}

type conjunction struct{ inner []Predicate }

func (p conjunction) Matches(v models.Value, present bool) bool {
	for _, inner := range p.inner {
		if !inner.Matches(v, present) {
			return false
		}
	}
	return true
}

type disjunction struct{ inner []Predicate }

func (p disjunction) Matches(v models.Value, present bool) bool {
	for _, inner := range p.inner {
		if inner.Matches(v, present) {
			return true
		}
	}
	return false
}
