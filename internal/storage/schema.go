package storage

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"regexp"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"evalgo.org/serverhub/models"
)

// SchemaVersion returns the current schema version token, creating an
// initial one if the store is fresh.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	var meta SchemaMetaModel
	err := s.db.WithContext(ctx).First(&meta, "id = 1").Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		meta = SchemaMetaModel{ID: 1, Version: uuid.NewString()}
		if err := s.db.WithContext(ctx).Create(&meta).Error; err != nil {
			return "", err
		}
		return meta.Version, nil
	}
	if err != nil {
		return "", err
	}
	return meta.Version, nil
}

// BumpSchemaVersion installs a fresh version token. Every registry snapshot
// keyed on the old token becomes stale immediately.
func (s *Store) BumpSchemaVersion(ctx context.Context) error {
	if _, err := s.SchemaVersion(ctx); err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Model(&SchemaMetaModel{}).
		Where("id = 1").
		Update("version", uuid.NewString()).Error
}

// LoadSchema reads the full schema: all attributes plus all servertypes with
// their constraint rows attached.
func (s *Store) LoadSchema(ctx context.Context) ([]*models.Attribute, []*models.ServerType, error) {
	var attrRows []AttributeModel
	if err := s.db.WithContext(ctx).Order("name").Find(&attrRows).Error; err != nil {
		return nil, nil, err
	}
	attrsByID := make(map[int64]*models.Attribute, len(attrRows))
	attrs := make([]*models.Attribute, 0, len(attrRows))
	for _, row := range attrRows {
		a := &models.Attribute{
			ID:               row.ID,
			Name:             row.Name,
			Type:             models.AttributeType(row.Type),
			Multi:            row.Multi,
			TargetServertype: row.TargetServertype,
			ReverseOf:        row.ReverseOf,
		}
		attrsByID[a.ID] = a
		attrs = append(attrs, a)
	}

	var stRows []ServertypeModel
	if err := s.db.WithContext(ctx).Order("name").Find(&stRows).Error; err != nil {
		return nil, nil, err
	}
	byID := make(map[int64]*models.ServerType, len(stRows))
	servertypes := make([]*models.ServerType, 0, len(stRows))
	for _, row := range stRows {
		st := &models.ServerType{ID: row.ID, Name: row.Name}
		byID[st.ID] = st
		servertypes = append(servertypes, st)
	}

	var linkRows []ServertypeAttributeModel
	if err := s.db.WithContext(ctx).Order("id").Find(&linkRows).Error; err != nil {
		return nil, nil, err
	}
	for _, row := range linkRows {
		st := byID[row.ServertypeID]
		attr := attrsByID[row.AttributeID]
		if st == nil || attr == nil {
			return nil, nil, fmt.Errorf("dangling servertype_attributes row %d", row.ID)
		}
		sa := &models.ServertypeAttribute{
			ID:         row.ID,
			Servertype: st.Name,
			Attribute:  attr,
			Required:   row.Required,
			Default:    row.DefaultValue,
		}
		if row.Regexp != "" {
			re, err := regexp.Compile(row.Regexp)
			if err != nil {
				return nil, nil, fmt.Errorf("constraint %s.%s: bad regexp: %w", st.Name, attr.Name, err)
			}
			sa.Regexp = re
		}
		st.Attributes = append(st.Attributes, sa)
	}
	return attrs, servertypes, nil
}

// UpsertAttribute creates or updates an attribute definition by name.
func (s *Store) UpsertAttribute(ctx context.Context, attr *models.Attribute) error {
	row := AttributeModel{
		Name:             attr.Name,
		Type:             string(attr.Type),
		Multi:            attr.Multi,
		TargetServertype: attr.TargetServertype,
		ReverseOf:        attr.ReverseOf,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "multi", "target_servertype", "reverse_of"}),
	}).Create(&row).Error
}

// DeleteAttribute removes an attribute, its constraint rows and every stored
// value. The cascade is what makes attribute deletion safe for readers: no
// object ever carries a value for an undeclared attribute.
func (s *Store) DeleteAttribute(ctx context.Context, name string) error {
	return s.Transaction(ctx, func(tx *Store) error {
		var row AttributeModel
		if err := tx.db.First(&row, "name = ?", name).Error; err != nil {
			return err
		}
		if err := tx.db.Delete(&AttributeValueModel{}, "attribute_id = ?", row.ID).Error; err != nil {
			return err
		}
		if err := tx.db.Delete(&ServertypeAttributeModel{}, "attribute_id = ?", row.ID).Error; err != nil {
			return err
		}
		return tx.db.Delete(&row).Error
	})
}

// UpsertServertype creates a servertype if it does not exist.
func (s *Store) UpsertServertype(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&ServertypeModel{Name: name}).Error
}

// LinkAttribute creates or updates the constraint row joining a servertype
// and an attribute.
func (s *Store) LinkAttribute(ctx context.Context, servertype, attribute string, required bool, def, pattern string) error {
	var st ServertypeModel
	if err := s.db.WithContext(ctx).First(&st, "name = ?", servertype).Error; err != nil {
		return fmt.Errorf("servertype %q: %w", servertype, err)
	}
	var attr AttributeModel
	if err := s.db.WithContext(ctx).First(&attr, "name = ?", attribute).Error; err != nil {
		return fmt.Errorf("attribute %q: %w", attribute, err)
	}
	row := ServertypeAttributeModel{
		ServertypeID: st.ID,
		AttributeID:  attr.ID,
		Required:     required,
		DefaultValue: def,
		Regexp:       pattern,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "servertype_id"}, {Name: "attribute_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"required", "default_value", "regexp"}),
	}).Create(&row).Error
}

// UnlinkAttribute removes a constraint row and the stored values of that
// attribute on servers of that servertype.
func (s *Store) UnlinkAttribute(ctx context.Context, servertype, attribute string) error {
	return s.Transaction(ctx, func(tx *Store) error {
		var st ServertypeModel
		if err := tx.db.First(&st, "name = ?", servertype).Error; err != nil {
			return err
		}
		var attr AttributeModel
		if err := tx.db.First(&attr, "name = ?", attribute).Error; err != nil {
			return err
		}
		err := tx.db.Exec(
			`DELETE FROM attribute_values WHERE attribute_id = ?
			 AND server_id IN (SELECT id FROM servers WHERE servertype_id = ?)`,
			attr.ID, st.ID,
		).Error
		if err != nil {
			return err
		}
		return tx.db.Delete(&ServertypeAttributeModel{},
			"servertype_id = ? AND attribute_id = ?", st.ID, attr.ID).Error
	})
}

// UpsertIPRange installs or updates the segment mapping for a CIDR.
func (s *Store) UpsertIPRange(ctx context.Context, segment string, prefix netip.Prefix) error {
	minKey, maxKey := rangeBounds(prefix)
	row := IPRangeModel{
		Segment:   segment,
		CIDR:      prefix.String(),
		MinIP:     minKey,
		MaxIP:     maxKey,
		PrefixLen: normalizedPrefixLen(prefix),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cidr"}},
		DoUpdates: clause.AssignmentColumns([]string{"segment", "min_ip", "max_ip", "prefix_len"}),
	}).Create(&row).Error
}
