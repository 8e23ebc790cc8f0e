package dataset

import (
	"context"
	"encoding/json"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/serverhub/internal/filter"
	"evalgo.org/serverhub/internal/schema"
	"evalgo.org/serverhub/internal/storage"
	"evalgo.org/serverhub/internal/typecast"
	"evalgo.org/serverhub/internal/validation"
	"evalgo.org/serverhub/models"
)

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	require.NoError(t, err)
	return p
}

// newTestEngine builds a store with a vm/hypervisor schema, two route
// networks worth of IP ranges and the computed attributes wired up.
func newTestEngine(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()
	ctx := context.Background()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, storage.RunMigrations(ctx, db))
	store := storage.NewWithDB(db)

	attrs := []*models.Attribute{
		{Name: "state", Type: models.TypeString},
		{Name: "cores", Type: models.TypeNumber},
		{Name: "tags", Type: models.TypeString, Multi: true},
		{Name: "hypervisor", Type: models.TypeRelation, TargetServertype: "hypervisor"},
		{Name: "guests", Type: models.TypeReverseRelation, ReverseOf: "hypervisor"},
		{Name: "route_network", Type: models.TypeSupernet, TargetServertype: "route_network"},
		{Name: "dns_domain", Type: models.TypeDomain, TargetServertype: "domain"},
	}
	for _, a := range attrs {
		require.NoError(t, store.UpsertAttribute(ctx, a))
	}
	for _, name := range []string{"vm", "hypervisor", "route_network", "domain"} {
		require.NoError(t, store.UpsertServertype(ctx, name))
	}
	require.NoError(t, store.LinkAttribute(ctx, "vm", "state", true, "online", "^(online|offline|maintenance)$"))
	require.NoError(t, store.LinkAttribute(ctx, "vm", "cores", false, "4", ""))
	require.NoError(t, store.LinkAttribute(ctx, "vm", "tags", false, "", ""))
	require.NoError(t, store.LinkAttribute(ctx, "vm", "hypervisor", false, "", ""))
	require.NoError(t, store.LinkAttribute(ctx, "vm", "route_network", false, "", ""))
	require.NoError(t, store.LinkAttribute(ctx, "vm", "dns_domain", false, "", ""))
	require.NoError(t, store.LinkAttribute(ctx, "hypervisor", "state", false, "", ""))
	require.NoError(t, store.LinkAttribute(ctx, "hypervisor", "guests", false, "", ""))

	for segment, cidr := range map[string]string{
		"dc0":     "10.0.0.0/16",
		"dc0-app": "10.0.1.0/24",
	} {
		require.NoError(t, store.UpsertIPRange(ctx, segment, mustPrefix(t, cidr)))
	}
	require.NoError(t, store.BumpSchemaVersion(ctx))

	return New(store, schema.NewRegistry(store)), store
}

func create(t *testing.T, e *Engine, attributes map[string]any) int64 {
	t.Helper()
	id, err := e.CreateServer(context.Background(), attributes, CreateOptions{
		FillDefaults: true,
		App:          "test",
	})
	require.NoError(t, err)
	return id
}

func vmAttrs(hostname, ip string, extra map[string]any) map[string]any {
	attributes := map[string]any{
		"hostname":   hostname,
		"servertype": "vm",
		"project":    "web",
		"intern_ip":  ip,
	}
	for k, v := range extra {
		attributes[k] = v
	}
	return attributes
}

func TestCreateServer(t *testing.T) {
	ctx := context.Background()

	t.Run("fills defaults and derives the segment", func(t *testing.T) {
		engine, store := newTestEngine(t)
		create(t, engine, vmAttrs("vm1.dc0", "10.0.1.5", nil))

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		require.NotNil(t, srv)
		assert.Equal(t, "dc0-app", srv.Segment)
		assert.Equal(t, []string{"online"}, srv.Values["state"])
		// FillDefaults only covers required attributes.
		assert.NotContains(t, srv.Values, "cores")
	})

	t.Run("fill defaults all covers optional attributes", func(t *testing.T) {
		engine, store := newTestEngine(t)
		_, err := engine.CreateServer(ctx, vmAttrs("vm1.dc0", "10.0.1.5", nil), CreateOptions{
			FillDefaults:    true,
			FillDefaultsAll: true,
		})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, []string{"4"}, srv.Values["cores"])
	})

	t.Run("explicit segment wins over the range lookup", func(t *testing.T) {
		engine, store := newTestEngine(t)
		create(t, engine, vmAttrs("vm1.dc0", "10.0.1.5", map[string]any{"segment": "dc9"}))

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, "dc9", srv.Segment)
	})

	t.Run("missing required attribute", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		_, err := engine.CreateServer(ctx, vmAttrs("vm1.dc0", "10.0.1.5", nil), CreateOptions{})
		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Violations.Required, "state")
	})

	t.Run("unknown attribute", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		_, err := engine.CreateServer(ctx,
			vmAttrs("vm1.dc0", "10.0.1.5", map[string]any{"flavor": "large"}),
			CreateOptions{FillDefaults: true})
		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Violations.Unknown, "flavor")
	})

	t.Run("missing identity key", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		attributes := vmAttrs("vm1.dc0", "10.0.1.5", nil)
		delete(attributes, "intern_ip")
		_, err := engine.CreateServer(ctx, attributes, CreateOptions{FillDefaults: true})
		var cerr *CommitError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("unknown servertype", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		attributes := vmAttrs("vm1.dc0", "10.0.1.5", nil)
		attributes["servertype"] = "mainframe"
		_, err := engine.CreateServer(ctx, attributes, CreateOptions{FillDefaults: true})
		var cerr *CommitError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("duplicate hostname", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		create(t, engine, vmAttrs("vm1.dc0", "10.0.1.5", nil))
		_, err := engine.CreateServer(ctx, vmAttrs("vm1.dc0", "10.0.1.6", nil),
			CreateOptions{FillDefaults: true})
		var cerr *CommitError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("relation to unknown target", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		_, err := engine.CreateServer(ctx,
			vmAttrs("vm1.dc0", "10.0.1.5", map[string]any{"hypervisor": "hv9.dc0"}),
			CreateOptions{FillDefaults: true})
		var uerr *typecast.UnknownReferenceError
		require.ErrorAs(t, err, &uerr)
	})

	t.Run("computed input is dropped", func(t *testing.T) {
		engine, store := newTestEngine(t)
		_, err := engine.CreateServer(ctx, map[string]any{
			"hostname":   "hv1.dc0",
			"servertype": "hypervisor",
			"project":    "infra",
			"intern_ip":  "10.0.0.2",
			"guests":     []any{"vm1.dc0"},
		}, CreateOptions{FillDefaults: true})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "hv1.dc0")
		require.NoError(t, err)
		assert.NotContains(t, srv.Values, "guests")
	})

	t.Run("appends an add record", func(t *testing.T) {
		engine, store := newTestEngine(t)
		create(t, engine, vmAttrs("vm1.dc0", "10.0.1.5", map[string]any{"tags": []any{"web"}}))

		commits, total, err := store.ListCommits(ctx, 10, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, commits, 1)
		assert.Equal(t, "test", commits[0].App)
		require.Len(t, commits[0].Records, 1)
		record := commits[0].Records[0]
		assert.Equal(t, models.ChangeAdd, record.Kind)
		assert.Equal(t, "vm1.dc0", record.Hostname)

		var snapshot map[string]any
		require.NoError(t, json.Unmarshal(record.Payload, &snapshot))
		assert.Equal(t, "online", snapshot["state"])
		assert.Equal(t, "10.0.1.5", snapshot["intern_ip"])
	})
}

// queryFixture creates a small estate: one hypervisor, three vms, two
// route networks and two DNS domains.
func queryFixture(t *testing.T) (*Engine, map[string]int64) {
	t.Helper()
	engine, _ := newTestEngine(t)

	ids := map[string]int64{}
	ids["hv1.dc0"] = create(t, engine, map[string]any{
		"hostname": "hv1.dc0", "servertype": "hypervisor",
		"project": "infra", "intern_ip": "10.0.0.2", "state": "online",
	})
	ids["vm1.sub.example.com"] = create(t, engine, vmAttrs("vm1.sub.example.com", "10.0.1.5", map[string]any{
		"cores": 2, "tags": []any{"web", "db"}, "hypervisor": "hv1.dc0",
	}))
	ids["vm2.example.com"] = create(t, engine, vmAttrs("vm2.example.com", "10.0.2.7", map[string]any{
		"state": "offline", "cores": 8, "hypervisor": "hv1.dc0",
	}))
	ids["vm3.dc0"] = create(t, engine, vmAttrs("vm3.dc0", "10.0.3.9", nil))

	for hostname, prefix := range map[string]string{
		"net-dc0": "10.0.0.0/16",
		"net-app": "10.0.1.0/24",
	} {
		ids[hostname] = create(t, engine, map[string]any{
			"hostname": hostname, "servertype": "route_network",
			"project": "net", "intern_ip": prefix,
		})
	}
	for hostname, ip := range map[string]string{
		"example.com":     "10.0.9.1",
		"sub.example.com": "10.0.9.2",
	} {
		ids[hostname] = create(t, engine, map[string]any{
			"hostname": hostname, "servertype": "domain",
			"project": "net", "intern_ip": ip,
		})
	}
	return engine, ids
}

func hostnames(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r["hostname"].(string))
	}
	return out
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	engine, ids := queryFixture(t)

	t.Run("no filters returns everything", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{})
		require.NoError(t, err)
		assert.Len(t, records, len(ids))
	})

	t.Run("exact match", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters:  map[string]any{"servertype": "vm", "state": "online"},
			Restrict: []string{"hostname"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"vm1.sub.example.com", "vm3.dc0"}, hostnames(records))
	})

	t.Run("membership", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters:  map[string]any{"cores": map[string]any{"any": []any{2, 8}}},
			Restrict: []string{"hostname"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"vm1.sub.example.com", "vm2.example.com"}, hostnames(records))
	})

	t.Run("regexp on hostname", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters:  map[string]any{"hostname": map[string]any{"regexp": "^vm[12]\\."}},
			Restrict: []string{"hostname"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"vm1.sub.example.com", "vm2.example.com"}, hostnames(records))
	})

	t.Run("numeric range", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters:  map[string]any{"cores": map[string]any{"range": map[string]any{"min": 4}}},
			Restrict: []string{"hostname"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"vm2.example.com"}, hostnames(records))
	})

	t.Run("negation matches absent values", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters: map[string]any{
				"servertype": "vm",
				"cores":      map[string]any{"not": map[string]any{"value": 8}},
			},
			Restrict: []string{"hostname"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"vm1.sub.example.com", "vm3.dc0"}, hostnames(records))
	})

	t.Run("order by puts absent values first", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters:  map[string]any{"servertype": "vm"},
			Restrict: []string{"hostname", "cores"},
			OrderBy:  "cores",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"vm3.dc0", "vm1.sub.example.com", "vm2.example.com"}, hostnames(records))
	})

	t.Run("object id filter", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters:  map[string]any{"object_id": float64(ids["vm2.example.com"])},
			Restrict: []string{"hostname", "object_id"},
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, ids["vm2.example.com"], records[0]["object_id"])
	})

	t.Run("restricted projection", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters:  map[string]any{"hostname": "vm1.sub.example.com"},
			Restrict: []string{"hostname", "tags"},
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Len(t, records[0], 2)
		assert.Equal(t, []any{"web", "db"}, records[0]["tags"])
	})

	t.Run("declared multi without values projects empty", func(t *testing.T) {
		records, err := engine.Query(ctx, QueryRequest{
			Filters:  map[string]any{"hostname": "vm3.dc0"},
			Restrict: []string{"tags"},
		})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []any{}, records[0]["tags"])
	})

	t.Run("reverse relation", func(t *testing.T) {
		record, err := engine.GetByHostname(ctx, "hv1.dc0")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, []any{"vm1.sub.example.com", "vm2.example.com"}, record["guests"])
	})

	t.Run("supernet picks the narrowest containing network", func(t *testing.T) {
		vm1, err := engine.GetByHostname(ctx, "vm1.sub.example.com")
		require.NoError(t, err)
		assert.Equal(t, "net-app", vm1["route_network"])

		vm2, err := engine.GetByHostname(ctx, "vm2.example.com")
		require.NoError(t, err)
		assert.Equal(t, "net-dc0", vm2["route_network"])
	})

	t.Run("domain picks the longest matching suffix", func(t *testing.T) {
		vm1, err := engine.GetByHostname(ctx, "vm1.sub.example.com")
		require.NoError(t, err)
		assert.Equal(t, "sub.example.com", vm1["dns_domain"])

		vm2, err := engine.GetByHostname(ctx, "vm2.example.com")
		require.NoError(t, err)
		assert.Equal(t, "example.com", vm2["dns_domain"])

		vm3, err := engine.GetByHostname(ctx, "vm3.dc0")
		require.NoError(t, err)
		assert.Nil(t, vm3["dns_domain"])
	})

	t.Run("unknown attribute filter", func(t *testing.T) {
		_, err := engine.Query(ctx, QueryRequest{Filters: map[string]any{"flavor": "large"}})
		var verr *filter.ValueError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("computed attribute filter", func(t *testing.T) {
		_, err := engine.Query(ctx, QueryRequest{Filters: map[string]any{"guests": "vm1.sub.example.com"}})
		var verr *filter.ValueError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("get by unknown hostname", func(t *testing.T) {
		record, err := engine.GetByHostname(ctx, "nope.dc0")
		require.NoError(t, err)
		assert.Nil(t, record)
	})
}

func TestCommitChanges(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Engine, *storage.Store, int64) {
		engine, store := newTestEngine(t)
		id := create(t, engine, vmAttrs("vm1.dc0", "10.0.1.5", map[string]any{
			"cores": 2, "tags": []any{"web"},
		}))
		return engine, store, id
	}

	t.Run("applies an update and journals old and new", func(t *testing.T) {
		engine, store, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"state": {Old: "online", New: "offline"}},
			},
		}, CommitOptions{App: "deploy", User: "alice"})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, []string{"offline"}, srv.Values["state"])

		commits, _, err := store.ListCommits(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, commits, 1)
		assert.Equal(t, "alice", commits[0].User)
		require.Len(t, commits[0].Records, 1)
		assert.Equal(t, models.ChangeUpdate, commits[0].Records[0].Kind)

		var payload map[string]AttributeChange
		require.NoError(t, json.Unmarshal(commits[0].Records[0].Payload, &payload))
		assert.Equal(t, "online", payload["state"].Old)
		assert.Equal(t, "offline", payload["state"].New)
	})

	t.Run("stale old value conflicts", func(t *testing.T) {
		engine, store, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"state": {Old: "maintenance", New: "offline"}},
			},
		}, CommitOptions{})
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "state", conflict.Attribute)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, []string{"online"}, srv.Values["state"])
	})

	t.Run("force changes skips the old value check", func(t *testing.T) {
		engine, store, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"state": {Old: "maintenance", New: "offline"}},
			},
		}, CommitOptions{ForceChanges: true})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, []string{"offline"}, srv.Values["state"])
	})

	t.Run("nil new removes the attribute", func(t *testing.T) {
		engine, store, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"cores": {Old: 2, New: nil}},
			},
		}, CommitOptions{})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.NotContains(t, srv.Values, "cores")
	})

	t.Run("required attributes cannot be removed", func(t *testing.T) {
		engine, _, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"state": {Old: "online", New: nil}},
			},
		}, CommitOptions{})
		var verr *validation.Error
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Violations.Required, "state")
	})

	t.Run("hostname is immutable", func(t *testing.T) {
		engine, _, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"hostname": {Old: "vm1.dc0", New: "vm9.dc0"}},
			},
		}, CommitOptions{})
		var cerr *CommitError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("unknown object id", func(t *testing.T) {
		engine, _, _ := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				9999: {"state": {Old: "online", New: "offline"}},
			},
		}, CommitOptions{})
		var cerr *CommitError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("one bad change rejects the whole batch", func(t *testing.T) {
		engine, store, id := setup(t)
		other := create(t, engine, vmAttrs("vm2.dc0", "10.0.1.6", nil))

		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id:    {"state": {Old: "online", New: "offline"}},
				other: {"state": {Old: "online", New: "broken"}},
			},
		}, CommitOptions{})
		require.Error(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, []string{"online"}, srv.Values["state"])
	})

	t.Run("identity old values compare against the stored columns", func(t *testing.T) {
		engine, store, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"project": {Old: "web", New: "shop"}},
			},
		}, CommitOptions{})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, "shop", srv.Project)

		commits, _, err := store.ListCommits(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, commits, 1)
		var payload map[string]AttributeChange
		require.NoError(t, json.Unmarshal(commits[0].Records[0].Payload, &payload))
		assert.Equal(t, "web", payload["project"].Old)

		err = engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"project": {Old: "web", New: "lab"}},
			},
		}, CommitOptions{})
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "project", conflict.Attribute)
	})

	t.Run("empty multi old matches an empty set", func(t *testing.T) {
		engine, store, id := setup(t)
		require.NoError(t, engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"tags": {Old: []any{"web"}, New: nil}},
			},
		}, CommitOptions{}))

		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"tags": {Old: []any{}, New: []any{"db"}}},
			},
		}, CommitOptions{})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, []string{"db"}, srv.Values["tags"])

		// A non-empty stated old still conflicts with an empty set.
		err = engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"tags": {Old: []any{}, New: []any{"cache"}}},
			},
		}, CommitOptions{})
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("intern_ip updates through the identity column", func(t *testing.T) {
		engine, store, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{
			Changes: map[int64]map[string]AttributeChange{
				id: {"intern_ip": {Old: "10.0.1.5", New: "10.0.1.99"}},
			},
		}, CommitOptions{})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Equal(t, "10.0.1.99", srv.InternIP)
	})

	t.Run("delete and restore", func(t *testing.T) {
		engine, store, id := setup(t)
		err := engine.CommitChanges(ctx, Batch{Deleted: []string{"vm1.dc0"}},
			CommitOptions{App: "cleanup"})
		require.NoError(t, err)

		srv, err := store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		assert.Nil(t, srv)

		commits, _, err := store.ListCommits(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, commits, 1)
		require.Len(t, commits[0].Records, 1)
		assert.Equal(t, models.ChangeDelete, commits[0].Records[0].Kind)

		restored, err := engine.RestoreDeleted(ctx, commits[0].ID, "vm1.dc0", "restore", "bob")
		require.NoError(t, err)
		assert.NotEqual(t, id, restored)

		srv, err = store.GetServerByHostname(ctx, "vm1.dc0")
		require.NoError(t, err)
		require.NotNil(t, srv)
		assert.Equal(t, "10.0.1.5", srv.InternIP)
		assert.Equal(t, []string{"web"}, srv.Values["tags"])
		assert.Equal(t, []string{"2"}, srv.Values["cores"])
	})

	t.Run("deleting an unknown server", func(t *testing.T) {
		engine, _, _ := setup(t)
		err := engine.CommitChanges(ctx, Batch{Deleted: []string{"ghost.dc0"}}, CommitOptions{})
		var cerr *CommitError
		require.ErrorAs(t, err, &cerr)
	})
}
