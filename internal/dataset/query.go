package dataset

import (
	"context"
	"net/netip"
	"sort"
	"strings"

	"evalgo.org/serverhub/internal/filter"
	"evalgo.org/serverhub/internal/schema"
	"evalgo.org/serverhub/internal/storage"
	"evalgo.org/serverhub/models"
)

// QueryRequest selects objects by attribute filters and shapes the result.
type QueryRequest struct {
	// Filters maps attribute names to filter specifications. An empty map
	// matches every object.
	Filters map[string]any

	// Restrict limits the projected attributes. Empty means identity
	// fields plus everything the object's servertype declares.
	Restrict []string

	// OrderBy names the attribute result rows sort on. Empty keeps the
	// insertion order (ascending object id).
	OrderBy string
}

// Record is one projected result object.
type Record map[string]any

type compiledFilter struct {
	attr *models.Attribute
	pred filter.Predicate
}

// Query materializes the objects matching the request. Candidate
// servertypes are those declaring every filtered non-identity attribute;
// identity filters apply across all types.
func (e *Engine) Query(ctx context.Context, req QueryRequest) ([]Record, error) {
	snap, err := e.registry.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	filters, err := compileFilters(snap, req.Filters)
	if err != nil {
		return nil, err
	}
	if err := checkRestrict(snap, req.Restrict); err != nil {
		return nil, err
	}
	var orderAttr *models.Attribute
	if req.OrderBy != "" {
		orderAttr, err = resolveAttr(snap, req.OrderBy)
		if err != nil {
			return nil, err
		}
	}

	candidates := candidateServertypes(snap, filters)
	if len(candidates) == 0 {
		return nil, nil
	}
	servers, err := e.store.ListServers(ctx, candidates)
	if err != nil {
		return nil, err
	}

	resolver := newComputedResolver(e.store, snap)

	type row struct {
		rec     Record
		sortKey models.Value
		sorted  bool
		id      int64
	}
	var rows []row
	for _, srv := range servers {
		servertype, err := snap.Servertype(srv.Servertype)
		if err != nil {
			return nil, err
		}
		obj := &liveObject{snap: snap, servertype: servertype, server: srv}

		matched := true
		for _, f := range filters {
			v, present := obj.value(f.attr)
			if !f.pred.Matches(v, present) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		rec, err := e.project(ctx, resolver, obj, req.Restrict)
		if err != nil {
			return nil, err
		}
		r := row{rec: rec, id: srv.ID}
		if orderAttr != nil {
			r.sortKey, r.sorted = obj.value(orderAttr)
		}
		rows = append(rows, r)
	}

	if orderAttr != nil {
		// Objects without a sort value come first; object id breaks ties
		// so the order is total and repeatable.
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i], rows[j]
			if a.sorted != b.sorted {
				return !a.sorted
			}
			if a.sorted {
				if c := a.sortKey.Compare(b.sortKey); c != 0 {
					return c < 0
				}
			}
			return a.id < b.id
		})
	}

	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.rec)
	}
	return out, nil
}

// GetByHostname materializes a single object with its full projection.
// It returns nil when no object carries the hostname.
func (e *Engine) GetByHostname(ctx context.Context, hostname string) (Record, error) {
	records, err := e.Query(ctx, QueryRequest{
		Filters: map[string]any{models.AttrHostname: hostname},
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func compileFilters(snap *schema.Snapshot, specs map[string]any) ([]compiledFilter, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]compiledFilter, 0, len(names))
	for _, name := range names {
		attr, err := resolveAttr(snap, name)
		if err != nil {
			return nil, err
		}
		if attr.Computed() {
			return nil, &filter.ValueError{Attribute: name, Reason: "computed attributes cannot be filtered"}
		}
		pred, err := filter.FromSpec(attr, specs[name])
		if err != nil {
			return nil, err
		}
		out = append(out, compiledFilter{attr: attr, pred: pred})
	}
	return out, nil
}

func checkRestrict(snap *schema.Snapshot, restrict []string) error {
	for _, name := range restrict {
		if _, err := resolveAttr(snap, name); err != nil {
			return err
		}
	}
	return nil
}

func resolveAttr(snap *schema.Snapshot, name string) (*models.Attribute, error) {
	if attr, ok := identityAttrs[name]; ok {
		return attr, nil
	}
	attr, err := snap.Attribute(name)
	if err != nil {
		return nil, &filter.ValueError{Attribute: name, Reason: "unknown attribute"}
	}
	return attr, nil
}

// candidateServertypes narrows the scan to servertypes declaring every
// filtered non-identity attribute. No such filter means every servertype.
func candidateServertypes(snap *schema.Snapshot, filters []compiledFilter) []string {
	var required []string
	for _, f := range filters {
		if !models.IsIdentityAttr(f.attr.Name) {
			required = append(required, f.attr.Name)
		}
	}

	var out []string
	for _, st := range snap.Servertypes() {
		declaresAll := true
		for _, name := range required {
			if st.Constraint(name) == nil {
				declaresAll = false
				break
			}
		}
		if declaresAll {
			out = append(out, st.Name)
		}
	}
	sort.Strings(out)
	return out
}

// liveObject is one stored server with lazy typed-value access against a
// schema snapshot.
type liveObject struct {
	snap       *schema.Snapshot
	servertype *models.ServerType
	server     *storage.RawServer
}

func (o *liveObject) value(attr *models.Attribute) (models.Value, bool) {
	if models.IsIdentityAttr(attr.Name) {
		return o.identityValue(attr.Name)
	}
	texts, ok := o.server.Values[attr.Name]
	if !ok {
		// A declared multi attribute with no rows is an empty set, not
		// an absent value.
		if attr.Multi && o.servertype.Constraint(attr.Name) != nil {
			return models.MultiValue(nil), true
		}
		return models.Value{}, false
	}
	v, ok := rehydrate(attr, texts)
	return v, ok
}

func (o *liveObject) identityValue(name string) (models.Value, bool) {
	return identityValue(o.server, name)
}

// project shapes one matched object into a result record.
func (e *Engine) project(ctx context.Context, resolver *computedResolver, obj *liveObject, restrict []string) (Record, error) {
	names := restrict
	if len(names) == 0 {
		names = make([]string, 0, len(obj.servertype.Attributes)+6)
		names = append(names,
			models.AttrObjectID, models.AttrHostname, models.AttrServertype,
			models.AttrProject, models.AttrInternIP, models.AttrSegment)
		for _, sa := range obj.servertype.Attributes {
			names = append(names, sa.Attribute.Name)
		}
	}

	rec := make(Record, len(names))
	for _, name := range names {
		attr, err := resolveAttr(obj.snap, name)
		if err != nil {
			return nil, err
		}
		// Attributes the object's servertype does not declare are left
		// out of the record rather than reported as null.
		if !models.IsIdentityAttr(name) && obj.servertype.Constraint(name) == nil {
			continue
		}
		if attr.Computed() {
			native, err := resolver.resolve(ctx, attr, obj)
			if err != nil {
				return nil, err
			}
			rec[name] = native
			continue
		}
		v, present := obj.value(attr)
		if !present {
			rec[name] = nil
			continue
		}
		rec[name] = v.Native()
	}
	return rec, nil
}

// computedResolver materializes reverse_relation, supernet and domain
// attributes at query time. Target-type scans are cached for the duration
// of one query.
type computedResolver struct {
	store *storage.Store
	snap  *schema.Snapshot

	targets map[string][]*storage.RawServer
}

func newComputedResolver(store *storage.Store, snap *schema.Snapshot) *computedResolver {
	return &computedResolver{
		store:   store,
		snap:    snap,
		targets: make(map[string][]*storage.RawServer),
	}
}

func (r *computedResolver) resolve(ctx context.Context, attr *models.Attribute, obj *liveObject) (any, error) {
	switch attr.Type {
	case models.TypeReverseRelation:
		hostnames, err := r.store.ReferencingHostnames(ctx, attr.ReverseOf, obj.server.Hostname)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(hostnames))
		for _, h := range hostnames {
			out = append(out, h)
		}
		return out, nil

	case models.TypeSupernet:
		return r.supernet(ctx, attr, obj)

	case models.TypeDomain:
		return r.domain(ctx, attr, obj)
	}
	return nil, nil
}

func (r *computedResolver) targetServers(ctx context.Context, servertype string) ([]*storage.RawServer, error) {
	if cached, ok := r.targets[servertype]; ok {
		return cached, nil
	}
	servers, err := r.store.ListServers(ctx, []string{servertype})
	if err != nil {
		return nil, err
	}
	r.targets[servertype] = servers
	return servers, nil
}

// supernet resolves to the hostname of the target-type network object whose
// intern_ip prefix contains this object's address. When prefixes overlap
// the narrowest containing prefix wins.
func (r *computedResolver) supernet(ctx context.Context, attr *models.Attribute, obj *liveObject) (any, error) {
	self, err := castInternIP(obj.server.InternIP)
	if err != nil {
		return nil, nil
	}
	addr := internIPAddr(self)

	targets, err := r.targetServers(ctx, attr.TargetServertype)
	if err != nil {
		return nil, err
	}

	var best *storage.RawServer
	var bestPrefix netip.Prefix
	for _, target := range targets {
		prefix, err := netip.ParsePrefix(target.InternIP)
		if err != nil {
			continue
		}
		if !prefix.Contains(addr.Unmap()) {
			continue
		}
		if best == nil || prefix.Bits() > bestPrefix.Bits() {
			best, bestPrefix = target, prefix
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Hostname, nil
}

// domain resolves to the hostname of the target-type object whose hostname
// is the longest dot-separated suffix of this object's hostname.
func (r *computedResolver) domain(ctx context.Context, attr *models.Attribute, obj *liveObject) (any, error) {
	targets, err := r.targetServers(ctx, attr.TargetServertype)
	if err != nil {
		return nil, err
	}

	var best string
	for _, target := range targets {
		if !strings.HasSuffix(obj.server.Hostname, "."+target.Hostname) {
			continue
		}
		if len(target.Hostname) > len(best) {
			best = target.Hostname
		}
	}
	if best == "" {
		return nil, nil
	}
	return best, nil
}
