package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"evalgo.org/serverhub/internal/schema"
	"evalgo.org/serverhub/internal/storage"
	"evalgo.org/serverhub/internal/typecast"
	"evalgo.org/serverhub/internal/validation"
	"evalgo.org/serverhub/models"
)

// AttributeChange is one attribute's old/new pair as stated by the client.
// Old is the value the client last read; New is the desired value, nil
// meaning removal.
type AttributeChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Batch is one commit request: deletions by hostname and per-object
// attribute changes keyed by object id.
type Batch struct {
	Deleted []string
	Changes map[int64]map[string]AttributeChange
}

// CommitOptions control validation and concurrency checking.
type CommitOptions struct {
	// SkipValidation accepts every violation on the resulting sets.
	SkipValidation bool

	// ForceChanges disables the optimistic old-value check.
	ForceChanges bool

	App  string
	User string
}

type stagedUpdate struct {
	server  *storage.RawServer
	values  map[string][]string // attribute name -> canonical texts; nil slice removes
	fields  map[string]string   // identity columns to update
	payload map[string]AttributeChange
}

type stagedDelete struct {
	server   *storage.RawServer
	snapshot map[string]any
}

// CommitChanges applies a batch of attribute changes and deletions under
// optimistic concurrency control. The whole batch is one store transaction:
// the old-value check, the writes and the audit append either all land or
// none do. First committer wins; a later committer whose stated old values
// are stale gets a ConflictError and must re-read and retry.
func (e *Engine) CommitChanges(ctx context.Context, batch Batch, opts CommitOptions) error {
	snap, err := e.registry.Snapshot(ctx)
	if err != nil {
		return err
	}

	return e.store.Transaction(ctx, func(tx *storage.Store) error {
		caster := e.caster(tx)

		ids := make([]int64, 0, len(batch.Changes))
		for id := range batch.Changes {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		var updates []stagedUpdate
		for _, id := range ids {
			staged, err := e.stageUpdate(ctx, tx, snap, caster, id, batch.Changes[id], opts)
			if err != nil {
				return err
			}
			if staged != nil {
				updates = append(updates, *staged)
			}
		}

		var deletes []stagedDelete
		for _, hostname := range batch.Deleted {
			srv, err := tx.GetServerByHostname(ctx, hostname)
			if err != nil {
				return err
			}
			if srv == nil {
				return commitErrorf("cannot delete unknown server %q", hostname)
			}
			deletes = append(deletes, stagedDelete{
				server:   srv,
				snapshot: deleteSnapshot(snap, srv),
			})
		}

		// Everything validated: apply the whole batch.
		for _, u := range updates {
			for name, texts := range u.values {
				if err := tx.ReplaceValues(ctx, u.server.ID, name, texts); err != nil {
					return err
				}
			}
			for column, value := range u.fields {
				if err := tx.UpdateServerField(ctx, u.server.ID, column, value); err != nil {
					return err
				}
			}
		}
		for _, d := range deletes {
			if err := tx.DeleteServer(ctx, d.server.ID); err != nil {
				return err
			}
		}

		commit := &models.ChangeCommit{App: opts.App, User: opts.User}
		for _, u := range updates {
			payload, err := json.Marshal(u.payload)
			if err != nil {
				return fmt.Errorf("encode update record: %w", err)
			}
			commit.Records = append(commit.Records, models.ChangeRecord{
				Kind:     models.ChangeUpdate,
				Hostname: u.server.Hostname,
				Payload:  payload,
			})
		}
		for _, d := range deletes {
			payload, err := json.Marshal(d.snapshot)
			if err != nil {
				return fmt.Errorf("encode delete record: %w", err)
			}
			commit.Records = append(commit.Records, models.ChangeRecord{
				Kind:     models.ChangeDelete,
				Hostname: d.server.Hostname,
				Payload:  payload,
			})
		}
		if len(commit.Records) == 0 {
			return nil
		}
		_, err := tx.AppendCommit(ctx, commit)
		return err
	})
}

func (e *Engine) stageUpdate(
	ctx context.Context,
	tx *storage.Store,
	snap *schema.Snapshot,
	caster *typecast.Caster,
	id int64,
	changes map[string]AttributeChange,
	opts CommitOptions,
) (*stagedUpdate, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	srv, err := tx.GetServer(ctx, id)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, commitErrorf("no server with id %d", id)
	}
	servertype, err := snap.Servertype(srv.Servertype)
	if err != nil {
		return nil, err
	}

	current := currentTyped(snap, srv)
	scratch := make(map[string]models.Value, len(current))
	for name, v := range current {
		scratch[name] = v
	}

	staged := &stagedUpdate{
		server:  srv,
		values:  make(map[string][]string),
		fields:  make(map[string]string),
		payload: make(map[string]AttributeChange),
	}

	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		change := changes[name]

		if name == models.AttrHostname || name == models.AttrServertype || name == models.AttrObjectID {
			return nil, commitErrorf("attribute %q is immutable", name)
		}

		attr := identityAttrs[name]
		if attr == nil {
			attr, err = snap.Attribute(name)
			if err != nil {
				return nil, commitErrorf("unknown attribute %q", name)
			}
		}
		if attr.Computed() {
			return nil, commitErrorf("attribute %q is computed and cannot be changed", name)
		}

		if !opts.ForceChanges {
			if err := checkOldValue(ctx, caster, attr, name, srv, current, change.Old); err != nil {
				return nil, err
			}
		}

		oldNative := any(nil)
		if models.IsIdentityAttr(name) {
			if cur, ok := identityValue(srv, name); ok {
				oldNative = cur.Native()
			}
		} else if cur, ok := current[name]; ok {
			oldNative = cur.Native()
		}

		if change.New == nil {
			if models.IsIdentityAttr(name) {
				return nil, commitErrorf("identity field %q cannot be removed", name)
			}
			delete(scratch, name)
			staged.values[name] = nil
			staged.payload[name] = AttributeChange{Old: oldNative, New: nil}
			continue
		}

		var v models.Value
		if name == models.AttrInternIP {
			v, err = castInternIP(change.New)
		} else {
			v, err = caster.Cast(ctx, attr, change.New)
		}
		if err != nil {
			return nil, err
		}

		if models.IsIdentityAttr(name) {
			staged.fields[name] = v.String()
		} else {
			scratch[name] = v
			staged.values[name] = canonicalTexts(v)
		}
		staged.payload[name] = AttributeChange{Old: oldNative, New: v.Native()}
	}

	violations := validation.Validate(servertype, scratch)
	if err := validation.HandleViolations(opts.SkipValidation, violations); err != nil {
		return nil, err
	}
	return staged, nil
}

// checkOldValue compares the client's stated old value with the stored one
// inside the commit transaction. Both sides are cast before comparing so
// textual variants of the same canonical value do not count as conflicts.
func checkOldValue(
	ctx context.Context,
	caster *typecast.Caster,
	attr *models.Attribute,
	name string,
	srv *storage.RawServer,
	current map[string]models.Value,
	old any,
) error {
	cur, present := current[name]
	if models.IsIdentityAttr(name) {
		cur, present = identityValue(srv, name)
	}
	// A declared multi attribute with no stored rows is an empty set, so
	// both null and [] on the client side match it.
	if attr.Multi && !present {
		cur, present = models.MultiValue(nil), true
	}
	if old == nil {
		if !present || (attr.Multi && len(cur.Elems) == 0) {
			return nil
		}
		return &ConflictError{ObjectID: srv.ID, Hostname: srv.Hostname, Attribute: name}
	}
	var want models.Value
	var err error
	if name == models.AttrInternIP {
		want, err = castInternIP(old)
	} else if attr.Multi {
		want, err = literalMulti(attr, old)
	} else {
		want, err = typecast.Literal(attr, old)
	}
	if err != nil {
		return err
	}
	if !present || !cur.Equal(want) {
		return &ConflictError{ObjectID: srv.ID, Hostname: srv.Hostname, Attribute: name}
	}
	return nil
}

func literalMulti(attr *models.Attribute, raw any) (models.Value, error) {
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	elems := make([]models.Value, 0, len(items))
	for _, item := range items {
		v, err := typecast.Literal(attr, item)
		if err != nil {
			return models.Value{}, err
		}
		elems = append(elems, v)
	}
	return models.MultiValue(elems), nil
}

// currentTyped rehydrates the stored canonical texts into typed values
// against the schema snapshot. Attributes no longer in the schema are
// skipped; their rows are gone once the deletion cascade ran.
func currentTyped(snap *schema.Snapshot, srv *storage.RawServer) map[string]models.Value {
	out := make(map[string]models.Value, len(srv.Values))
	for name, texts := range srv.Values {
		attr, err := snap.Attribute(name)
		if err != nil {
			continue
		}
		if v, ok := rehydrate(attr, texts); ok {
			out[name] = v
		}
	}
	return out
}

func rehydrate(attr *models.Attribute, texts []string) (models.Value, bool) {
	if attr.Multi {
		elems := make([]models.Value, 0, len(texts))
		for _, text := range texts {
			v, err := typecast.Literal(attr, text)
			if err != nil {
				return models.Value{}, false
			}
			elems = append(elems, v)
		}
		return models.MultiValue(elems), true
	}
	if len(texts) == 0 {
		return models.Value{}, false
	}
	v, err := typecast.Literal(attr, texts[0])
	if err != nil {
		return models.Value{}, false
	}
	return v, true
}

// deleteSnapshot captures the full restorable state of an object: identity
// fields plus stored attributes, computed attributes excluded. Feeding it
// back into CreateServer recreates the object.
func deleteSnapshot(snap *schema.Snapshot, srv *storage.RawServer) map[string]any {
	out := make(map[string]any, len(srv.Values)+5)
	for name, v := range currentTyped(snap, srv) {
		out[name] = v.Native()
	}
	out[models.AttrHostname] = srv.Hostname
	out[models.AttrServertype] = srv.Servertype
	out[models.AttrProject] = srv.Project
	out[models.AttrInternIP] = srv.InternIP
	out[models.AttrSegment] = srv.Segment
	return out
}
