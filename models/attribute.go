package models

import "regexp"

// AttributeType enumerates the value types an attribute can declare.
type AttributeType string

const (
	TypeString          AttributeType = "string"
	TypeNumber          AttributeType = "number"
	TypeBoolean         AttributeType = "boolean"
	TypeIP              AttributeType = "ip"
	TypeNetwork         AttributeType = "network"
	TypeRelation        AttributeType = "relation"
	TypeReverseRelation AttributeType = "reverse_relation"
	TypeSupernet        AttributeType = "supernet"
	TypeDomain          AttributeType = "domain"
	TypeDatetime        AttributeType = "datetime"
)

// Valid reports whether t is a known attribute type.
func (t AttributeType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeIP, TypeNetwork,
		TypeRelation, TypeReverseRelation, TypeSupernet, TypeDomain,
		TypeDatetime:
		return true
	}
	return false
}

// Attribute is a globally-defined, typed property that servertypes may
// declare. Attributes are immutable once referenced by stored data; deleting
// one cascades to every stored value.
type Attribute struct {
	ID int64 `json:"-"`

	// Name is the unique attribute token.
	Name string `json:"name"`

	// Type determines how raw input is cast and how values compare.
	Type AttributeType `json:"type"`

	// Multi marks the attribute as set-valued. Multi attributes store an
	// ordered sequence; duplicates are allowed.
	Multi bool `json:"multi"`

	// TargetServertype names the servertype a relation, supernet or domain
	// attribute resolves against. Empty for plain value types.
	TargetServertype string `json:"target_servertype,omitempty"`

	// ReverseOf names the relation attribute a reverse_relation attribute
	// inverts. Empty for every other type.
	ReverseOf string `json:"reverse_of,omitempty"`
}

// Computed reports whether the attribute is materialized by reverse lookup
// at query time instead of being stored on the object itself.
func (a *Attribute) Computed() bool {
	switch a.Type {
	case TypeReverseRelation, TypeSupernet, TypeDomain:
		return true
	}
	return false
}

// ServertypeAttribute is the per-servertype constraint row joining a
// servertype with one of its declared attributes. An attribute appears at
// most once per servertype.
type ServertypeAttribute struct {
	ID         int64
	Servertype string
	Attribute  *Attribute

	// Required marks a scalar attribute that must carry a value.
	Required bool

	// Default is the untyped default, type-cast lazily when filling.
	Default string

	// Regexp constrains string attribute values. Nil means unconstrained.
	Regexp *regexp.Regexp
}

// ServerType is the named schema governing which attributes an object of
// this type may and must carry.
type ServerType struct {
	ID   int64
	Name string

	// Attributes is the ordered set of constraint rows for this type.
	Attributes []*ServertypeAttribute
}

// Constraint returns the constraint row for the named attribute, or nil if
// the servertype does not declare it.
func (st *ServerType) Constraint(attribute string) *ServertypeAttribute {
	for _, sa := range st.Attributes {
		if sa.Attribute.Name == attribute {
			return sa
		}
	}
	return nil
}

// Identity attribute names fixed on every server object. They live on the
// object row itself, not in the attribute value table, and are legal in
// filters and projections for every servertype.
const (
	AttrObjectID   = "object_id"
	AttrHostname   = "hostname"
	AttrServertype = "servertype"
	AttrProject    = "project"
	AttrInternIP   = "intern_ip"
	AttrSegment    = "segment"
)

// IsIdentityAttr reports whether name is one of the fixed identity fields.
func IsIdentityAttr(name string) bool {
	switch name {
	case AttrObjectID, AttrHostname, AttrServertype, AttrProject,
		AttrInternIP, AttrSegment:
		return true
	}
	return false
}
