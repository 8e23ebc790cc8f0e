package models

import (
	"encoding/json"
	"time"
)

// ChangeKind tags the variant of a change record.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeCommit is one atomically-applied batch of changes together with its
// attribution. Commits and their records are append-only; a record is never
// rewritten after the commit lands.
type ChangeCommit struct {
	// ID is the monotonic commit id.
	ID int64 `json:"id"`

	// App identifies the acting application, if any.
	App string `json:"app,omitempty"`

	// User identifies the acting user, if any.
	User string `json:"user,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Records are the per-object changes, in application order.
	Records []ChangeRecord `json:"records"`
}

// ChangeRecord describes one object's change within a commit.
//
// The payload layout depends on Kind:
//   - add:    full JSON snapshot of the created attributes
//   - update: {attribute: {"old": ..., "new": ...}} pairs
//   - delete: full JSON snapshot at the time of deletion; this is the sole
//     input for restoring the object later
type ChangeRecord struct {
	ID       int64           `json:"id"`
	Kind     ChangeKind      `json:"kind"`
	Hostname string          `json:"hostname"`
	Payload  json.RawMessage `json:"payload"`
}

// IPRange maps a network prefix to the segment assigned to addresses it
// contains. Overlapping ranges are resolved narrowest-prefix-first.
type IPRange struct {
	ID      int64
	Segment string
	CIDR    string
}
