package models

import "net/netip"

// ServerObject is a managed entity in the inventory: a fixed identity
// (hostname, servertype, project, internal IP, segment) plus the typed
// attribute values legal for its servertype.
//
// Objects are created by the creation pipeline and mutated only through the
// commit engine; direct attribute mutation would break the audit trail.
type ServerObject struct {
	// ID is the generated numeric object id.
	ID int64

	// Hostname is the globally unique, case-sensitive object name.
	Hostname string

	// Servertype names the governing schema. Immutable after creation.
	Servertype string

	Project string

	// InternIP is the internal address the segment was derived from.
	InternIP netip.Addr

	// Segment is the network partition assigned by IP-range containment.
	Segment string

	// Attributes maps attribute name to its typed value. Multi attributes
	// hold a KindMulti value. Keys are always declared on Servertype.
	Attributes map[string]Value
}
