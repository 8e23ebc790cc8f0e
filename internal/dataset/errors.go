// Package dataset implements the creation pipeline, the commit/audit engine
// and the query materializer over the object store. The three share one
// data model and one validation gate and are deliberately kept in a single
// package.
package dataset

import "fmt"

// CommitError reports a structural problem with a creation or commit
// request: missing identity fields, an unknown servertype, a duplicate
// hostname, an undeterminable segment. Not retryable without changing the
// input.
type CommitError struct {
	Reason string
}

func (e *CommitError) Error() string { return e.Reason }

func commitErrorf(format string, args ...any) *CommitError {
	return &CommitError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports an optimistic-concurrency mismatch: the client's
// stated old value no longer matches the stored value. The caller should
// re-read and retry.
type ConflictError struct {
	ObjectID  int64
	Hostname  string
	Attribute string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent change on %q attribute %q, re-read and retry",
		e.Hostname, e.Attribute)
}
