package schema

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"evalgo.org/serverhub/models"
)

// SeedDocument is the yaml schema definition consumed by `serverhub schema
// load`. It declares attributes, servertypes with their constraint rows, and
// the IP-range table used for segment assignment.
type SeedDocument struct {
	Attributes  []SeedAttribute  `yaml:"attributes" validate:"dive"`
	Servertypes []SeedServertype `yaml:"servertypes" validate:"dive"`
	IPRanges    []SeedIPRange    `yaml:"ip_ranges" validate:"dive"`
}

// SeedAttribute declares one global attribute.
type SeedAttribute struct {
	Name             string `yaml:"name" validate:"required"`
	Type             string `yaml:"type" validate:"required,oneof=string number boolean ip network relation reverse_relation supernet domain datetime"`
	Multi            bool   `yaml:"multi"`
	TargetServertype string `yaml:"target_servertype"`
	ReverseOf        string `yaml:"reverse_of"`
}

// SeedServertype declares one servertype and its attribute constraints.
type SeedServertype struct {
	Name       string           `yaml:"name" validate:"required"`
	Attributes []SeedConstraint `yaml:"attributes" validate:"dive"`
}

// SeedConstraint is one servertype-attribute link.
type SeedConstraint struct {
	Name     string `yaml:"name" validate:"required"`
	Required bool   `yaml:"required"`
	Default  string `yaml:"default"`
	Regexp   string `yaml:"regexp"`
}

// SeedIPRange maps a CIDR to a segment.
type SeedIPRange struct {
	Segment string `yaml:"segment" validate:"required"`
	CIDR    string `yaml:"cidr" validate:"required,cidr"`
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(data []byte) (*SeedDocument, error) {
	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed document: %w", err)
	}
	if err := validator.New().Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid seed document: %w", err)
	}
	// Regexps and constraint targets are checked beyond what struct tags
	// can express.
	names := make(map[string]bool, len(doc.Attributes))
	for _, a := range doc.Attributes {
		names[a.Name] = true
	}
	for _, st := range doc.Servertypes {
		seen := make(map[string]bool, len(st.Attributes))
		for _, c := range st.Attributes {
			if !names[c.Name] {
				return nil, fmt.Errorf("servertype %q links undeclared attribute %q", st.Name, c.Name)
			}
			if seen[c.Name] {
				return nil, fmt.Errorf("servertype %q links attribute %q twice", st.Name, c.Name)
			}
			seen[c.Name] = true
			if c.Regexp != "" {
				if _, err := regexp.Compile(c.Regexp); err != nil {
					return nil, fmt.Errorf("servertype %q attribute %q: bad regexp: %w", st.Name, c.Name, err)
				}
			}
		}
	}
	return &doc, nil
}

// Writer is the schema-edit surface of the backing store. Every mutation is
// followed by a version bump so registry caches invalidate.
type Writer interface {
	UpsertAttribute(ctx context.Context, attr *models.Attribute) error
	UpsertServertype(ctx context.Context, name string) error
	LinkAttribute(ctx context.Context, servertype, attribute string, required bool, def, pattern string) error
	UpsertIPRange(ctx context.Context, segment string, prefix netip.Prefix) error
	BumpSchemaVersion(ctx context.Context) error
}

// ApplySeed writes a parsed seed document to the store and bumps the schema
// version exactly once at the end.
func ApplySeed(ctx context.Context, w Writer, doc *SeedDocument) error {
	for _, a := range doc.Attributes {
		attr := &models.Attribute{
			Name:             a.Name,
			Type:             models.AttributeType(a.Type),
			Multi:            a.Multi,
			TargetServertype: a.TargetServertype,
			ReverseOf:        a.ReverseOf,
		}
		if err := w.UpsertAttribute(ctx, attr); err != nil {
			return fmt.Errorf("attribute %q: %w", a.Name, err)
		}
	}
	for _, st := range doc.Servertypes {
		if err := w.UpsertServertype(ctx, st.Name); err != nil {
			return fmt.Errorf("servertype %q: %w", st.Name, err)
		}
		for _, c := range st.Attributes {
			if err := w.LinkAttribute(ctx, st.Name, c.Name, c.Required, c.Default, c.Regexp); err != nil {
				return fmt.Errorf("servertype %q attribute %q: %w", st.Name, c.Name, err)
			}
		}
	}
	for _, r := range doc.IPRanges {
		prefix, err := netip.ParsePrefix(r.CIDR)
		if err != nil {
			return fmt.Errorf("ip range %q: %w", r.CIDR, err)
		}
		if err := w.UpsertIPRange(ctx, r.Segment, prefix); err != nil {
			return fmt.Errorf("ip range %q: %w", r.CIDR, err)
		}
	}
	return w.BumpSchemaVersion(ctx)
}
