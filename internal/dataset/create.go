package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"evalgo.org/serverhub/internal/storage"
	"evalgo.org/serverhub/internal/typecast"
	"evalgo.org/serverhub/internal/validation"
	"evalgo.org/serverhub/models"
)

// CreateOptions control validation and default filling during creation.
type CreateOptions struct {
	// SkipValidation accepts every violation. Used for administrative
	// restores and trusted imports.
	SkipValidation bool

	// FillDefaults fills configured defaults for absent required scalar
	// attributes.
	FillDefaults bool

	// FillDefaultsAll additionally fills defaults for absent optional
	// scalar attributes.
	FillDefaultsAll bool

	// App and User attribute the audit record.
	App  string
	User string
}

// CreateServer synthesizes a fully-populated, schema-conformant object from
// partial input, persists it and appends an Add audit record. The persist
// and the audit append are one transaction: either both exist afterwards or
// neither does.
func (e *Engine) CreateServer(ctx context.Context, attributes map[string]any, opts CreateOptions) (int64, error) {
	snap, err := e.registry.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	for _, key := range []string{models.AttrHostname, models.AttrServertype, models.AttrProject, models.AttrInternIP} {
		if _, ok := attributes[key]; !ok {
			return 0, commitErrorf("%s is required", key)
		}
	}

	hostname, err := identityString(models.AttrHostname, attributes[models.AttrHostname])
	if err != nil {
		return 0, err
	}
	servertypeName, err := identityString(models.AttrServertype, attributes[models.AttrServertype])
	if err != nil {
		return 0, err
	}
	project, err := identityString(models.AttrProject, attributes[models.AttrProject])
	if err != nil {
		return 0, err
	}
	internIP, err := castInternIP(attributes[models.AttrInternIP])
	if err != nil {
		return 0, err
	}

	servertype, err := snap.Servertype(servertypeName)
	if err != nil {
		return 0, commitErrorf("unknown servertype: %s", servertypeName)
	}

	segment := ""
	if raw, ok := attributes[models.AttrSegment]; ok && raw != nil && raw != "" {
		segment, err = identityString(models.AttrSegment, raw)
		if err != nil {
			return 0, err
		}
	} else {
		segment, err = e.store.SegmentForIP(ctx, internIPAddr(internIP))
		if errors.Is(err, storage.ErrNoSegment) {
			return 0, commitErrorf("could not determine segment for %s", internIP)
		}
		if err != nil {
			return 0, err
		}
	}

	real := make(map[string]any, len(attributes))
	for key, value := range attributes {
		if models.IsIdentityAttr(key) {
			continue
		}
		real[key] = value
	}

	caster := e.caster(e.store)
	typed := make(map[string]models.Value, len(real))
	var violations validation.Violations

	for _, sa := range servertype.Attributes {
		attr := sa.Attribute
		if attr.Computed() {
			// Computed attributes are materialized at query time and
			// never stored; input for them is dropped.
			delete(real, attr.Name)
			continue
		}

		raw, present := real[attr.Name]
		if !present {
			switch {
			case attr.Multi:
				if sa.Default == "" {
					typed[attr.Name] = models.MultiValue(nil)
				} else {
					v, err := caster.CastDefault(ctx, attr, sa.Default)
					if err != nil {
						return 0, err
					}
					typed[attr.Name] = v
				}
			case sa.Required:
				if opts.FillDefaults && sa.Default != "" {
					v, err := caster.CastDefault(ctx, attr, sa.Default)
					if err != nil {
						return 0, err
					}
					typed[attr.Name] = v
				} else {
					violations.Required = append(violations.Required, attr.Name)
				}
			default:
				if opts.FillDefaultsAll && sa.Default != "" {
					v, err := caster.CastDefault(ctx, attr, sa.Default)
					if err != nil {
						return 0, err
					}
					typed[attr.Name] = v
				}
			}
			delete(real, attr.Name)
			continue
		}

		v, err := caster.Cast(ctx, attr, raw)
		if err != nil {
			return 0, err
		}
		if !validation.CheckPattern(sa, v) {
			violations.Pattern = append(violations.Pattern, attr.Name)
		}
		typed[attr.Name] = v
		delete(real, attr.Name)
	}

	// Whatever is left was not declared on the servertype. Globally known
	// attributes are still cast so skip_validation restores keep them;
	// globally unknown ones cannot be stored at all.
	for name, raw := range real {
		violations.Unknown = append(violations.Unknown, name)
		attr, err := snap.Attribute(name)
		if err != nil {
			continue
		}
		v, err := caster.Cast(ctx, attr, raw)
		if err != nil {
			return 0, err
		}
		typed[name] = v
	}

	if err := validation.HandleViolations(opts.SkipValidation, violations); err != nil {
		return 0, err
	}

	storable := make(map[string][]string, len(typed))
	for name, v := range typed {
		if _, err := snap.Attribute(name); err != nil {
			continue
		}
		storable[name] = canonicalTexts(v)
	}

	var serverID int64
	err = e.store.Transaction(ctx, func(tx *storage.Store) error {
		exists, err := tx.HostnameExists(ctx, hostname)
		if err != nil {
			return err
		}
		if exists {
			return commitErrorf("server with hostname %q already exists", hostname)
		}

		serverID, err = tx.InsertServer(ctx, storage.ServerInsert{
			Hostname:   hostname,
			Servertype: servertypeName,
			Project:    project,
			InternIP:   internIP.String(),
			Segment:    segment,
			Values:     storable,
		})
		if err != nil {
			return err
		}

		snapshot := make(map[string]any, len(typed)+5)
		for name, v := range typed {
			snapshot[name] = v.Native()
		}
		snapshot[models.AttrHostname] = hostname
		snapshot[models.AttrServertype] = servertypeName
		snapshot[models.AttrProject] = project
		snapshot[models.AttrInternIP] = internIP.String()
		snapshot[models.AttrSegment] = segment

		payload, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("encode add record: %w", err)
		}
		_, err = tx.AppendCommit(ctx, &models.ChangeCommit{
			App:  opts.App,
			User: opts.User,
			Records: []models.ChangeRecord{
				{Kind: models.ChangeAdd, Hostname: hostname, Payload: payload},
			},
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return serverID, nil
}

func identityString(name string, raw any) (string, error) {
	v, err := typecast.Literal(identityAttrs[name], raw)
	if err != nil {
		return "", err
	}
	return v.Str, nil
}

func canonicalTexts(v models.Value) []string {
	if v.Kind == models.KindMulti {
		texts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			texts[i] = e.String()
		}
		return texts
	}
	return []string{v.String()}
}

// RestoreDeleted replays a Delete record from the audit trail through the
// creation pipeline, recreating the object with a new id. Hostname
// uniqueness is re-checked; schema drift since the deletion is tolerated
// via skip_validation.
func (e *Engine) RestoreDeleted(ctx context.Context, commitID int64, hostname string, app, user string) (int64, error) {
	commit, err := e.store.GetCommit(ctx, commitID)
	if err != nil {
		return 0, err
	}
	if commit == nil {
		return 0, commitErrorf("no commit with id %d", commitID)
	}
	for _, rec := range commit.Records {
		if rec.Kind != models.ChangeDelete || rec.Hostname != hostname {
			continue
		}
		var attributes map[string]any
		if err := json.Unmarshal(rec.Payload, &attributes); err != nil {
			return 0, fmt.Errorf("decode delete record: %w", err)
		}
		return e.CreateServer(ctx, attributes, CreateOptions{
			SkipValidation: true,
			App:            app,
			User:           user,
		})
	}
	return 0, commitErrorf("commit %d has no delete record for %q", commitID, hostname)
}
