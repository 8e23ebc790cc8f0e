package dataset

import (
	"net/netip"

	"evalgo.org/serverhub/internal/schema"
	"evalgo.org/serverhub/internal/storage"
	"evalgo.org/serverhub/internal/typecast"
	"evalgo.org/serverhub/models"
)

// Engine binds the dataset operations to a store and a schema registry.
type Engine struct {
	store    *storage.Store
	registry *schema.Registry
}

// New returns an engine over the given store and registry.
func New(store *storage.Store, registry *schema.Registry) *Engine {
	return &Engine{store: store, registry: registry}
}

// caster builds a typecast engine whose relation lookups run against the
// given store handle, so casts inside a transaction see the transaction's
// view.
func (e *Engine) caster(store *storage.Store) *typecast.Caster {
	return typecast.New(store)
}

// Pseudo-attribute definitions for the fixed identity fields, so filters
// and typecasting treat them uniformly with declared attributes.
var identityAttrs = map[string]*models.Attribute{
	models.AttrObjectID:   {Name: models.AttrObjectID, Type: models.TypeNumber},
	models.AttrHostname:   {Name: models.AttrHostname, Type: models.TypeString},
	models.AttrServertype: {Name: models.AttrServertype, Type: models.TypeString},
	models.AttrProject:    {Name: models.AttrProject, Type: models.TypeString},
	models.AttrInternIP:   {Name: models.AttrInternIP, Type: models.TypeIP},
	models.AttrSegment:    {Name: models.AttrSegment, Type: models.TypeString},
}

// castInternIP accepts an address or a network: network objects carry their
// prefix in the intern_ip field, everything else a plain address.
func castInternIP(raw any) (models.Value, error) {
	switch rv := raw.(type) {
	case models.Value:
		if rv.Kind == models.KindIP || rv.Kind == models.KindNetwork {
			return rv, nil
		}
	case netip.Addr:
		return models.IPValue(rv), nil
	case netip.Prefix:
		return models.NetworkValue(rv), nil
	case string:
		if addr, err := netip.ParseAddr(rv); err == nil {
			return models.IPValue(addr), nil
		}
		if prefix, err := netip.ParsePrefix(rv); err == nil {
			return models.NetworkValue(prefix), nil
		}
	}
	return models.Value{}, &typecast.Error{
		Attribute: models.AttrInternIP,
		Reason:    "expected an IP address or network",
	}
}

// internIPAddr extracts the address used for segment and supernet
// containment checks.
func internIPAddr(v models.Value) netip.Addr {
	if v.Kind == models.KindNetwork {
		return v.Net.Masked().Addr()
	}
	return v.IP
}

// identityValue types one of the fixed identity columns of a stored row.
// Identity attributes live on the server row, not in the value table, so
// both projection and old-value checks read them from here.
func identityValue(srv *storage.RawServer, name string) (models.Value, bool) {
	switch name {
	case models.AttrObjectID:
		return models.NumberValue(float64(srv.ID)), true
	case models.AttrHostname:
		return models.StringValue(srv.Hostname), true
	case models.AttrServertype:
		return models.StringValue(srv.Servertype), true
	case models.AttrProject:
		return models.StringValue(srv.Project), true
	case models.AttrSegment:
		return models.StringValue(srv.Segment), true
	case models.AttrInternIP:
		v, err := castInternIP(srv.InternIP)
		if err != nil {
			return models.Value{}, false
		}
		return v, true
	}
	return models.Value{}, false
}
