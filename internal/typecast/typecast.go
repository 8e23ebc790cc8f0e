// Package typecast converts loosely-typed client input into the canonical
// typed values an attribute declares. Casting is idempotent: feeding a
// canonical value back in returns an equal value.
package typecast

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"evalgo.org/serverhub/models"
)

// Error reports a value that does not match its attribute's declared type.
type Error struct {
	Attribute string
	Reason    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid value for attribute %q: %s", e.Attribute, e.Reason)
}

// UnknownReferenceError reports a relation value whose target hostname does
// not exist within the relation's target servertype.
type UnknownReferenceError struct {
	Attribute string
	Hostname  string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("attribute %q references unknown object %q", e.Attribute, e.Hostname)
}

// RelationResolver resolves relation targets against the object store.
type RelationResolver interface {
	// HostnameExistsInType reports whether a hostname exists within the
	// given servertype. An empty servertype matches any type.
	HostnameExistsInType(ctx context.Context, hostname, servertype string) (bool, error)
}

// Caster casts raw input for attributes, resolving relation references
// through the injected resolver.
type Caster struct {
	resolver RelationResolver
}

// New returns a Caster using the given relation resolver.
func New(resolver RelationResolver) *Caster {
	return &Caster{resolver: resolver}
}

// Cast converts raw input into the attribute's canonical typed value. For
// multi attributes the input may be a slice (cast element-wise, order kept)
// or a single scalar, which becomes a one-element sequence. Relation values
// are resolved; a missing target fails with UnknownReferenceError.
func (c *Caster) Cast(ctx context.Context, attr *models.Attribute, raw any) (models.Value, error) {
	if attr.Multi {
		elems, err := c.castElements(ctx, attr, raw)
		if err != nil {
			return models.Value{}, err
		}
		return models.MultiValue(elems), nil
	}
	return c.castScalar(ctx, attr, raw)
}

// CastDefault casts a configured default. Defaults are stored as untyped
// strings; for multi attributes the string is literally split on commas and
// each piece cast independently. The string is never reinterpreted as a
// container format.
func (c *Caster) CastDefault(ctx context.Context, attr *models.Attribute, def string) (models.Value, error) {
	if !attr.Multi {
		return c.castScalar(ctx, attr, def)
	}
	parts := strings.Split(def, ",")
	elems := make([]models.Value, 0, len(parts))
	for _, part := range parts {
		v, err := c.castScalar(ctx, attr, strings.TrimSpace(part))
		if err != nil {
			return models.Value{}, err
		}
		elems = append(elems, v)
	}
	return models.MultiValue(elems), nil
}

func (c *Caster) castElements(ctx context.Context, attr *models.Attribute, raw any) ([]models.Value, error) {
	var items []any
	switch rv := raw.(type) {
	case []any:
		items = rv
	case []string:
		for _, s := range rv {
			items = append(items, s)
		}
	case models.Value:
		if rv.Kind == models.KindMulti {
			for _, e := range rv.Elems {
				items = append(items, e)
			}
		} else {
			items = []any{rv}
		}
	default:
		items = []any{raw}
	}
	elems := make([]models.Value, 0, len(items))
	for _, item := range items {
		v, err := c.castScalar(ctx, attr, item)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return elems, nil
}

func (c *Caster) castScalar(ctx context.Context, attr *models.Attribute, raw any) (models.Value, error) {
	v, err := Literal(attr, raw)
	if err != nil {
		return models.Value{}, err
	}
	if attr.Type == models.TypeRelation {
		ok, rerr := c.resolver.HostnameExistsInType(ctx, v.Str, attr.TargetServertype)
		if rerr != nil {
			return models.Value{}, rerr
		}
		if !ok {
			return models.Value{}, &UnknownReferenceError{Attribute: attr.Name, Hostname: v.Str}
		}
	}
	return v, nil
}

// Literal casts a scalar without touching the store: relation values are
// accepted as bare hostnames, unresolved. This is what filter compilation
// and value rehydration from storage use.
func Literal(attr *models.Attribute, raw any) (models.Value, error) {
	// Already-canonical input passes through unchanged.
	if v, ok := raw.(models.Value); ok {
		if kindMatches(attr.Type, v.Kind) {
			return v, nil
		}
		return models.Value{}, &Error{Attribute: attr.Name, Reason: "typed value of wrong kind"}
	}

	switch attr.Type {
	case models.TypeString:
		s, ok := raw.(string)
		if !ok {
			return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("expected string, got %T", raw)}
		}
		return models.StringValue(s), nil

	case models.TypeNumber:
		return castNumber(attr, raw)

	case models.TypeBoolean:
		return castBool(attr, raw)

	case models.TypeIP:
		switch rv := raw.(type) {
		case netip.Addr:
			return models.IPValue(rv), nil
		case string:
			addr, err := netip.ParseAddr(rv)
			if err != nil {
				return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("invalid IP address %q", rv)}
			}
			return models.IPValue(addr), nil
		}
		return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("expected IP address, got %T", raw)}

	case models.TypeNetwork, models.TypeSupernet:
		switch rv := raw.(type) {
		case netip.Prefix:
			return models.NetworkValue(rv), nil
		case string:
			prefix, err := netip.ParsePrefix(rv)
			if err != nil {
				return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("invalid network %q", rv)}
			}
			return models.NetworkValue(prefix), nil
		}
		return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("expected network, got %T", raw)}

	case models.TypeRelation, models.TypeReverseRelation, models.TypeDomain:
		s, ok := raw.(string)
		if !ok {
			return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("expected hostname, got %T", raw)}
		}
		return models.RelationValue(s), nil

	case models.TypeDatetime:
		switch rv := raw.(type) {
		case time.Time:
			return models.DatetimeValue(rv), nil
		case string:
			t, err := time.Parse(time.RFC3339, rv)
			if err != nil {
				return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("invalid ISO-8601 datetime %q", rv)}
			}
			return models.DatetimeValue(t), nil
		}
		return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("expected datetime, got %T", raw)}
	}

	return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("unsupported attribute type %q", attr.Type)}
}

func castNumber(attr *models.Attribute, raw any) (models.Value, error) {
	switch rv := raw.(type) {
	case int:
		return models.NumberValue(float64(rv)), nil
	case int64:
		return models.NumberValue(float64(rv)), nil
	case float64:
		return models.NumberValue(rv), nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(rv), 64)
		if err != nil {
			return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("non-numeric value %q", rv)}
		}
		return models.NumberValue(n), nil
	}
	return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("expected number, got %T", raw)}
}

// Boolean casting accepts a closed token set only; anything ambiguous is
// rejected rather than guessed at.
var (
	truthyTokens = map[string]bool{"true": true, "1": true, "yes": true, "on": true}
	falsyTokens  = map[string]bool{"false": true, "0": true, "no": true, "off": true}
)

func castBool(attr *models.Attribute, raw any) (models.Value, error) {
	switch rv := raw.(type) {
	case bool:
		return models.BoolValue(rv), nil
	case string:
		token := strings.ToLower(strings.TrimSpace(rv))
		if truthyTokens[token] {
			return models.BoolValue(true), nil
		}
		if falsyTokens[token] {
			return models.BoolValue(false), nil
		}
		return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("ambiguous boolean %q", rv)}
	case float64:
		if rv == 0 || rv == 1 {
			return models.BoolValue(rv == 1), nil
		}
	}
	return models.Value{}, &Error{Attribute: attr.Name, Reason: fmt.Sprintf("expected boolean, got %T", raw)}
}

func kindMatches(t models.AttributeType, k models.Kind) bool {
	switch t {
	case models.TypeString:
		return k == models.KindString
	case models.TypeNumber:
		return k == models.KindNumber
	case models.TypeBoolean:
		return k == models.KindBool
	case models.TypeIP:
		return k == models.KindIP
	case models.TypeNetwork, models.TypeSupernet:
		return k == models.KindNetwork
	case models.TypeRelation, models.TypeReverseRelation, models.TypeDomain:
		return k == models.KindRelation
	case models.TypeDatetime:
		return k == models.KindDatetime
	}
	return false
}
