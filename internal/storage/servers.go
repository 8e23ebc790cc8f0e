package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// RawServer is a server object as stored: fixed identity columns plus the
// canonical text values per attribute name, in position order. Typed views
// are built by the dataset engine against a schema snapshot.
type RawServer struct {
	ID         int64
	Hostname   string
	Servertype string
	Project    string
	InternIP   string
	Segment    string
	Values     map[string][]string `gorm:"-"`
}

// ServerInsert carries everything needed to persist a new server object.
type ServerInsert struct {
	Hostname   string
	Servertype string
	Project    string
	InternIP   string
	Segment    string

	// Values maps attribute name to ordered canonical texts.
	Values map[string][]string
}

// HostnameExists reports whether any object uses the hostname.
func (s *Store) HostnameExists(ctx context.Context, hostname string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ServerModel{}).
		Where("hostname = ?", hostname).Count(&n).Error
	return n > 0, err
}

// HostnameExistsInType reports whether a hostname exists within a
// servertype. An empty servertype matches any type. This is the relation
// resolver used by the typecast engine.
func (s *Store) HostnameExistsInType(ctx context.Context, hostname, servertype string) (bool, error) {
	q := s.db.WithContext(ctx).Model(&ServerModel{}).Where("hostname = ?", hostname)
	if servertype != "" {
		q = q.Joins("JOIN servertypes st ON st.id = servers.servertype_id").
			Where("st.name = ?", servertype)
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

// GetServer loads one object by id, or nil if absent.
func (s *Store) GetServer(ctx context.Context, id int64) (*RawServer, error) {
	return s.getServer(ctx, "servers.id = ?", id)
}

// GetServerByHostname loads one object by hostname, or nil if absent.
func (s *Store) GetServerByHostname(ctx context.Context, hostname string) (*RawServer, error) {
	return s.getServer(ctx, "servers.hostname = ?", hostname)
}

func (s *Store) getServer(ctx context.Context, cond string, arg any) (*RawServer, error) {
	var rows []RawServer
	err := s.db.WithContext(ctx).Model(&ServerModel{}).
		Select("servers.id, servers.hostname, st.name AS servertype, servers.project, servers.intern_ip, servers.segment").
		Joins("JOIN servertypes st ON st.id = servers.servertype_id").
		Where(cond, arg).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	srv := &rows[0]
	if err := s.loadValues(ctx, []*RawServer{srv}); err != nil {
		return nil, err
	}
	return srv, nil
}

// ListServers loads every object of the given servertypes, values included,
// ordered by id. An empty list yields no objects.
func (s *Store) ListServers(ctx context.Context, servertypes []string) ([]*RawServer, error) {
	if len(servertypes) == 0 {
		return nil, nil
	}
	var rows []RawServer
	err := s.db.WithContext(ctx).Model(&ServerModel{}).
		Select("servers.id, servers.hostname, st.name AS servertype, servers.project, servers.intern_ip, servers.segment").
		Joins("JOIN servertypes st ON st.id = servers.servertype_id").
		Where("st.name IN ?", servertypes).
		Order("servers.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	servers := make([]*RawServer, len(rows))
	for i := range rows {
		servers[i] = &rows[i]
	}
	if err := s.loadValues(ctx, servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (s *Store) loadValues(ctx context.Context, servers []*RawServer) error {
	if len(servers) == 0 {
		return nil
	}
	ids := make([]int64, len(servers))
	byID := make(map[int64]*RawServer, len(servers))
	for i, srv := range servers {
		ids[i] = srv.ID
		byID[srv.ID] = srv
		srv.Values = make(map[string][]string)
	}
	type valueRow struct {
		ServerID int64
		Name     string
		Value    string
	}
	var vals []valueRow
	err := s.db.WithContext(ctx).Model(&AttributeValueModel{}).
		Select("attribute_values.server_id, a.name, attribute_values.value").
		Joins("JOIN attributes a ON a.id = attribute_values.attribute_id").
		Where("attribute_values.server_id IN ?", ids).
		Order("attribute_values.server_id, attribute_values.attribute_id, attribute_values.position").
		Scan(&vals).Error
	if err != nil {
		return err
	}
	for _, v := range vals {
		srv := byID[v.ServerID]
		srv.Values[v.Name] = append(srv.Values[v.Name], v.Value)
	}
	return nil
}

// InsertServer persists a new object row and its attribute values. Callers
// run it inside Transaction together with the audit append.
func (s *Store) InsertServer(ctx context.Context, ins ServerInsert) (int64, error) {
	var st ServertypeModel
	if err := s.db.WithContext(ctx).First(&st, "name = ?", ins.Servertype).Error; err != nil {
		return 0, fmt.Errorf("servertype %q: %w", ins.Servertype, err)
	}
	row := ServerModel{
		Hostname:     ins.Hostname,
		ServertypeID: st.ID,
		Project:      ins.Project,
		InternIP:     ins.InternIP,
		Segment:      ins.Segment,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	for name, values := range ins.Values {
		if err := s.ReplaceValues(ctx, row.ID, name, values); err != nil {
			return 0, err
		}
	}
	return row.ID, nil
}

// ReplaceValues rewrites the stored values of one attribute on one object.
func (s *Store) ReplaceValues(ctx context.Context, serverID int64, attributeName string, values []string) error {
	var attr AttributeModel
	if err := s.db.WithContext(ctx).First(&attr, "name = ?", attributeName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("attribute %q not in store", attributeName)
		}
		return err
	}
	if err := s.db.WithContext(ctx).
		Delete(&AttributeValueModel{}, "server_id = ? AND attribute_id = ?", serverID, attr.ID).Error; err != nil {
		return err
	}
	for i, v := range values {
		row := AttributeValueModel{
			ServerID:    serverID,
			AttributeID: attr.ID,
			Value:       v,
			Position:    i,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// UpdateServerField updates one fixed identity column (project, intern_ip
// or segment).
func (s *Store) UpdateServerField(ctx context.Context, serverID int64, column, value string) error {
	switch column {
	case "project", "intern_ip", "segment":
	default:
		return fmt.Errorf("column %q is not updatable", column)
	}
	return s.db.WithContext(ctx).Model(&ServerModel{}).
		Where("id = ?", serverID).Update(column, value).Error
}

// DeleteServer removes the object row and all its values.
func (s *Store) DeleteServer(ctx context.Context, serverID int64) error {
	if err := s.db.WithContext(ctx).
		Delete(&AttributeValueModel{}, "server_id = ?", serverID).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&ServerModel{}, "id = ?", serverID).Error
}

// ReferencingHostnames returns, in object id order, the hostnames of every
// server carrying the given relation attribute with the given target. This
// is the indexed reverse lookup behind reverse-relation projections.
func (s *Store) ReferencingHostnames(ctx context.Context, attributeName, target string) ([]string, error) {
	var hostnames []string
	err := s.db.WithContext(ctx).Model(&AttributeValueModel{}).
		Select("srv.hostname").
		Joins("JOIN attributes a ON a.id = attribute_values.attribute_id").
		Joins("JOIN servers srv ON srv.id = attribute_values.server_id").
		Where("a.name = ? AND attribute_values.value = ?", attributeName, target).
		Order("srv.id").
		Scan(&hostnames).Error
	return hostnames, err
}
