// Package schema provides read access to servertype and attribute
// definitions behind a process-wide, versioned snapshot cache.
//
// Readers always work on a consistent Snapshot handle. Any schema mutation
// bumps the backing store's version token and invalidates the cache, so a
// committed schema change is never observed stale; a reader may keep using
// an older snapshot it already holds, but never a torn one.
package schema

import (
	"context"
	"fmt"
	"sync"

	"evalgo.org/serverhub/models"
)

// NotFoundError reports an unknown servertype or attribute. It is not
// recoverable without fixing the input.
type NotFoundError struct {
	Kind string // "servertype", "attribute" or "constraint"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.Name)
}

// Loader is the backing schema store the registry reloads from on a cache
// miss.
type Loader interface {
	// SchemaVersion returns the current schema version token.
	SchemaVersion(ctx context.Context) (string, error)

	// LoadSchema returns all attributes and servertypes, with constraint
	// rows attached to their servertypes.
	LoadSchema(ctx context.Context) ([]*models.Attribute, []*models.ServerType, error)
}

// Registry caches schema snapshots keyed by the store's version token.
type Registry struct {
	loader Loader

	mu   sync.Mutex
	snap *Snapshot
}

// NewRegistry returns a registry over the given backing store.
func NewRegistry(loader Loader) *Registry {
	return &Registry{loader: loader}
}

// Snapshot returns the current schema snapshot, reloading from the store
// when the cached version token no longer matches.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	version, err := r.loader.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema version: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snap != nil && r.snap.Version == version {
		return r.snap, nil
	}

	attrs, servertypes, err := r.loader.LoadSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	r.snap = NewSnapshot(version, attrs, servertypes)
	return r.snap, nil
}

// Invalidate drops the cached snapshot. Schema-edit paths call this after
// bumping the store's version token.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.snap = nil
	r.mu.Unlock()
}

// Snapshot is an immutable view of the schema at one version. Tests can
// build one directly with NewSnapshot instead of going through a store.
type Snapshot struct {
	Version string

	attributes  map[string]*models.Attribute
	servertypes map[string]*models.ServerType
}

// NewSnapshot builds a snapshot from loaded definitions.
func NewSnapshot(version string, attrs []*models.Attribute, servertypes []*models.ServerType) *Snapshot {
	s := &Snapshot{
		Version:     version,
		attributes:  make(map[string]*models.Attribute, len(attrs)),
		servertypes: make(map[string]*models.ServerType, len(servertypes)),
	}
	for _, a := range attrs {
		s.attributes[a.Name] = a
	}
	for _, st := range servertypes {
		s.servertypes[st.Name] = st
	}
	return s
}

// Servertype resolves a servertype by name.
func (s *Snapshot) Servertype(name string) (*models.ServerType, error) {
	st, ok := s.servertypes[name]
	if !ok {
		return nil, &NotFoundError{Kind: "servertype", Name: name}
	}
	return st, nil
}

// Attribute resolves an attribute by name.
func (s *Snapshot) Attribute(name string) (*models.Attribute, error) {
	a, ok := s.attributes[name]
	if !ok {
		return nil, &NotFoundError{Kind: "attribute", Name: name}
	}
	return a, nil
}

// Constraint resolves the per-servertype constraint row for an attribute.
func (s *Snapshot) Constraint(servertype, attribute string) (*models.ServertypeAttribute, error) {
	st, err := s.Servertype(servertype)
	if err != nil {
		return nil, err
	}
	if sa := st.Constraint(attribute); sa != nil {
		return sa, nil
	}
	return nil, &NotFoundError{Kind: "constraint", Name: servertype + "." + attribute}
}

// Attributes returns every attribute in the snapshot.
func (s *Snapshot) Attributes() []*models.Attribute {
	out := make([]*models.Attribute, 0, len(s.attributes))
	for _, a := range s.attributes {
		out = append(out, a)
	}
	return out
}

// Servertypes returns every servertype in the snapshot.
func (s *Snapshot) Servertypes() []*models.ServerType {
	out := make([]*models.ServerType, 0, len(s.servertypes))
	for _, st := range s.servertypes {
		out = append(out, st)
	}
	return out
}
