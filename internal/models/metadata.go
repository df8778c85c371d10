// internal/models/metadata.go
package models

import (
	"strings"
	"time"
)

// SemanticMetadata is the enriched schema snapshot produced upstream.
// The resolver never mutates it.
type SemanticMetadata struct {
	Tables        []TableMetadata `json:"tables" yaml:"tables"`
	Relationships []Relationship  `json:"relationships" yaml:"relationships"`
	Indexes       []IndexMetadata `json:"indexes" yaml:"indexes"`
	GeneratedAt   time.Time       `json:"generatedAt" yaml:"generated_at"`
}

type TableMetadata struct {
	Name         string           `json:"name" yaml:"name"`
	Description  string           `json:"description,omitempty" yaml:"description"`
	Columns      []ColumnMetadata `json:"columns" yaml:"columns"`
	BusinessTags []string         `json:"businessTags,omitempty" yaml:"business_tags"`
	Confidence   float64          `json:"confidence" yaml:"confidence"`
}

type ColumnMetadata struct {
	Name         string   `json:"name" yaml:"name"`
	DataType     string   `json:"dataType" yaml:"data_type"`
	BusinessTags []string `json:"businessTags,omitempty" yaml:"business_tags"`
	IsPrimaryKey bool     `json:"isPrimaryKey,omitempty" yaml:"is_primary_key"`
	IsForeignKey bool     `json:"isForeignKey,omitempty" yaml:"is_foreign_key"`
	Nullable     bool     `json:"nullable,omitempty" yaml:"nullable"`
}

type Relationship struct {
	FromTable  string `json:"fromTable" yaml:"from_table"`
	FromColumn string `json:"fromColumn" yaml:"from_column"`
	ToTable    string `json:"toTable" yaml:"to_table"`
	ToColumn   string `json:"toColumn" yaml:"to_column"`
	Type       string `json:"type,omitempty" yaml:"type"`
}

type IndexMetadata struct {
	Name    string   `json:"name" yaml:"name"`
	Table   string   `json:"table" yaml:"table"`
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique,omitempty" yaml:"unique"`
}

// Table looks a table up by case-insensitive name.
func (m *SemanticMetadata) Table(name string) (*TableMetadata, bool) {
	if m == nil {
		return nil, false
	}
	for i := range m.Tables {
		if strings.EqualFold(m.Tables[i].Name, name) {
			return &m.Tables[i], true
		}
	}
	return nil, false
}

func (m *SemanticMetadata) TableNames() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Tables))
	for _, t := range m.Tables {
		names = append(names, t.Name)
	}
	return names
}

func (m *SemanticMetadata) HasColumn(table, column string) bool {
	t, ok := m.Table(table)
	if !ok {
		return false
	}
	_, ok = t.Column(column)
	return ok
}

// IsIndexed reports whether column is the leading column of a known index
// or the table's primary key.
func (m *SemanticMetadata) IsIndexed(table, column string) bool {
	if m == nil {
		return false
	}
	for _, idx := range m.Indexes {
		if strings.EqualFold(idx.Table, table) && len(idx.Columns) > 0 && strings.EqualFold(idx.Columns[0], column) {
			return true
		}
	}
	if t, ok := m.Table(table); ok {
		if c, ok := t.Column(column); ok && c.IsPrimaryKey {
			return true
		}
	}
	return false
}

func (t *TableMetadata) Column(name string) (*ColumnMetadata, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

func (t *TableMetadata) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// IsNumeric reports whether the column's declared type holds numbers.
func (c ColumnMetadata) IsNumeric() bool {
	dt := strings.ToLower(c.DataType)
	for _, k := range []string{"int", "numeric", "decimal", "float", "double", "real", "money", "number"} {
		if strings.Contains(dt, k) {
			return true
		}
	}
	return false
}

func (c ColumnMetadata) IsTemporal() bool {
	dt := strings.ToLower(c.DataType)
	return strings.Contains(dt, "date") || strings.Contains(dt, "time")
}
