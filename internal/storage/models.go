package storage

import "time"

// Row models for the gorm layer. Tables are created by the goose migrations;
// these structs only map columns.

type ServertypeModel struct {
	ID   int64
	Name string
}

func (ServertypeModel) TableName() string { return "servertypes" }

type AttributeModel struct {
	ID               int64
	Name             string
	Type             string
	Multi            bool
	TargetServertype string
	ReverseOf        string
}

func (AttributeModel) TableName() string { return "attributes" }

type ServertypeAttributeModel struct {
	ID           int64
	ServertypeID int64
	AttributeID  int64
	Required     bool
	DefaultValue string
	Regexp       string
}

func (ServertypeAttributeModel) TableName() string { return "servertype_attributes" }

type ServerModel struct {
	ID           int64
	Hostname     string
	ServertypeID int64
	Project      string
	InternIP     string
	Segment      string
}

func (ServerModel) TableName() string { return "servers" }

type AttributeValueModel struct {
	ID          int64
	ServerID    int64
	AttributeID int64
	Value       string
	Position    int
}

func (AttributeValueModel) TableName() string { return "attribute_values" }

// IPRangeModel keys ranges by 16-byte hex bounds so containment is a plain
// BETWEEN on strings regardless of address family. PrefixLen is normalized
// to a /128 scale so narrower always sorts higher.
type IPRangeModel struct {
	ID      int64
	Segment string
	// gorm's initialism handling would map an untagged CIDR to c_id_r.
	CIDR      string `gorm:"column:cidr"`
	MinIP     string
	MaxIP     string
	PrefixLen int
}

func (IPRangeModel) TableName() string { return "ip_ranges" }

type SchemaMetaModel struct {
	ID      int64
	Version string
}

func (SchemaMetaModel) TableName() string { return "schema_meta" }

type ChangeCommitModel struct {
	ID        int64
	App       string
	User      string
	CreatedAt time.Time
}

func (ChangeCommitModel) TableName() string { return "change_commits" }

type ChangeRecordModel struct {
	ID       int64
	CommitID int64
	Kind     string
	Hostname string
	Payload  string
	Position int
}

func (ChangeRecordModel) TableName() string { return "change_records" }
