package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Column describes a single column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// ForeignKey describes a foreign key constraint on a table.
type ForeignKey struct {
	ConstrainedColumns []string `json:"constrained_columns"`
	ReferredTable      string   `json:"referred_table"`
	ReferredColumns    []string `json:"referred_columns"`
}

// Index describes a secondary index on a table.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// Table holds the columns, foreign keys, and indexes of one table. Column
// order is the order of ingestion and is preserved through conversion.
type Table struct {
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
}

// Relationship is a flattened foreign key edge between two tables.
type Relationship struct {
	FromTable   string   `json:"from_table"`
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table"`
	ToColumns   []string `json:"to_columns"`
}

// Schema is the ingested description of one database. TableOrder preserves
// insertion order since Go maps do not.
type Schema struct {
	Database      string           `json:"database"`
	Tables        map[string]Table `json:"tables"`
	TableOrder    []string         `json:"table_order"`
	Relationships []Relationship   `json:"relationships,omitempty"`
	Version       string           `json:"version,omitempty"`
}

// TableNames returns table names in insertion order, falling back to sorted
// map iteration when no explicit order was recorded.
func (s *Schema) TableNames() []string {
	if len(s.TableOrder) == len(s.Tables) {
		return s.TableOrder
	}

	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}

	sortStrings(names)

	return names
}

// Table returns the named table and whether it exists.
func (s *Schema) Table(name string) (Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// HasColumn reports whether the named table contains the named column.
func (s *Schema) HasColumn(table, column string) bool {
	t, ok := s.Tables[table]
	if !ok {
		return false
	}

	for _, c := range t.Columns {
		if c.Name == column {
			return true
		}
	}

	return false
}

// Fingerprint computes the 16-character version identifier: the first 16 hex
// characters of a SHA-256 over the canonical JSON of the schema. The canonical
// form is built from nested maps so that encoding/json emits sorted keys, and
// excludes Version itself and the insertion-order bookkeeping; two schemas
// with the same tables, columns, and relationships fingerprint identically no
// matter how they were assembled.
func (s *Schema) Fingerprint() string {
	canonical := map[string]any{
		"database": s.Database,
		"tables":   canonicalTables(s.Tables),
	}

	if len(s.Relationships) > 0 {
		canonical["relationships"] = s.Relationships
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshal of map/string/bool data cannot fail; keep the signature total.
		return ""
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])[:16]
}

// Stamp sets Version from Fingerprint and returns the schema for chaining.
func (s *Schema) Stamp() *Schema {
	s.Version = s.Fingerprint()
	return s
}

func canonicalTables(tables map[string]Table) map[string]any {
	out := make(map[string]any, len(tables))

	for name, t := range tables {
		cols := make([]map[string]any, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, map[string]any{
				"name":        c.Name,
				"type":        c.Type,
				"nullable":    c.Nullable,
				"primary_key": c.PrimaryKey,
			})
		}

		entry := map[string]any{"columns": cols}
		if len(t.ForeignKeys) > 0 {
			entry["foreign_keys"] = t.ForeignKeys
		}

		out[name] = entry
	}

	return out
}

func sortStrings(s []string) {
	for i := range len(s) - 1 {
		for j := i + 1; j < len(s); j++ {
			if s[j] < s[i] {
				s[i], s[j] = s[j], s[i]
			}
		}
	}
}
