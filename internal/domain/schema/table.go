package schema

import (
	"fmt"
	"strings"
)

// PrimaryKeyColumn is the auto-defined primary key every table gets unless
// CREATE TABLE names another one
const PrimaryKeyColumn = "_id"

// AutoDefine describes values the engine fills in on insert
type AutoDefine string

const (
	AutoDefineNone      AutoDefine = "NONE"
	AutoDefineUUID      AutoDefine = "UUID"
	AutoDefineTimestamp AutoDefine = "TIMESTAMP"
)

// Column describes one column of a table
type Column struct {
	Name       string     `json:"name"`
	Type       FieldType  `json:"type"`
	Index      IndexType  `json:"index"`
	AutoDefine AutoDefine `json:"auto_define,omitempty"`
}

// Indexed reports whether the column carries a secondary index
func (c *Column) Indexed() bool {
	return c.Index != IndexNone && c.Index != ""
}

// Schema is the definition of a table
type Schema struct {
	Table   string    `json:"table"`
	Primary string    `json:"primary"`
	Columns []*Column `json:"columns"`
}

// New creates a schema holding only the default primary key column
func New(table string) *Schema {
	return &Schema{
		Table:   table,
		Primary: PrimaryKeyColumn,
		Columns: []*Column{{
			Name:       PrimaryKeyColumn,
			Type:       TypeString,
			Index:      IndexUnique,
			AutoDefine: AutoDefineUUID,
		}},
	}
}

// Column looks up a column by name
func (s *Schema) Column(name string) (*Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in declaration order
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// IsPrimary reports whether name is the primary key column
func (s *Schema) IsPrimary(name string) bool {
	return s.Primary == name
}

// IndexedColumns returns the secondary-indexed columns, excluding the primary key
// whose row files already act as its index
func (s *Schema) IndexedColumns() []*Column {
	var cols []*Column
	for _, c := range s.Columns {
		if c.Indexed() && !s.IsPrimary(c.Name) {
			cols = append(cols, c)
		}
	}
	return cols
}

// AddColumn appends a column, failing if the name is taken
func (s *Schema) AddColumn(c *Column) error {
	if _, ok := s.Column(c.Name); ok {
		return fmt.Errorf("column %s already exists in %s", c.Name, s.Table)
	}
	if c.Index == "" {
		c.Index = IndexNone
	}
	if c.AutoDefine == "" {
		c.AutoDefine = AutoDefineNone
	}
	s.Columns = append(s.Columns, c)
	return nil
}

// DropColumn removes a column. The primary key cannot be dropped.
func (s *Schema) DropColumn(name string) error {
	if s.IsPrimary(name) {
		return fmt.Errorf("primary key column %s cannot be dropped", name)
	}
	for i, c := range s.Columns {
		if c.Name == name {
			s.Columns = append(s.Columns[:i], s.Columns[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("column %s does not exist in %s", name, s.Table)
}

// SetPrimary makes name the primary key, replacing the default _id column
func (s *Schema) SetPrimary(name string) error {
	col, ok := s.Column(name)
	if !ok {
		return fmt.Errorf("column %s does not exist in %s", name, s.Table)
	}
	previous := s.Primary
	s.Primary = name
	col.Index = IndexUnique
	if previous == PrimaryKeyColumn && name != PrimaryKeyColumn {
		_ = s.DropColumn(PrimaryKeyColumn)
	}
	return nil
}

// Clone returns a deep copy that can be mutated and persisted independently
func (s *Schema) Clone() *Schema {
	out := &Schema{Table: s.Table, Primary: s.Primary, Columns: make([]*Column, len(s.Columns))}
	for i, c := range s.Columns {
		cc := *c
		out.Columns[i] = &cc
	}
	return out
}

// Validate checks structural consistency of a loaded schema
func (s *Schema) Validate() error {
	if strings.TrimSpace(s.Table) == "" {
		return fmt.Errorf("schema has no table name")
	}
	if _, ok := s.Column(s.Primary); !ok {
		return fmt.Errorf("primary key column %q is not defined in %s", s.Primary, s.Table)
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %s in %s", c.Name, s.Table)
		}
		seen[c.Name] = true
	}
	return nil
}
