// Package spider converts the ingested schema model into the canonical
// Spider-style view consumed by the GAT ranker.
package spider

import (
	"strings"

	"github.com/ashmay29/NL2SQL/internal/logging"
	"github.com/ashmay29/NL2SQL/internal/types"
)

// Column type classes of the canonical view.
const (
	TypeNumber  = "number"
	TypeText    = "text"
	TypeTime    = "time"
	TypeBoolean = "boolean"
	TypeOthers  = "others"
)

// Schema is the canonical (Spider-style) view of a database schema. Column
// indices are stable: index 0 is the sentinel star column, then columns in
// table order, each table's columns in their ingested order.
type Schema struct {
	DBID                string      `json:"db_id"`
	TableNamesOriginal  []string    `json:"table_names_original"`
	ColumnNamesOriginal []ColumnRef `json:"column_names_original"`
	ColumnTypes         []string    `json:"column_types"`
	PrimaryKeys         []int       `json:"primary_keys"`
	ForeignKeys         [][2]int    `json:"foreign_keys"`

	// ColumnSQLTypes carries the original SQL type string per column so the
	// prompt renderer does not need to re-resolve it against the raw schema.
	ColumnSQLTypes []string `json:"-"`
}

// ColumnRef is one entry of ColumnNamesOriginal: the owning table index and
// the column name. The sentinel star column has TableIndex -1.
type ColumnRef struct {
	TableIndex int
	Name       string
}

// TableIndex returns the index of the named table, or -1.
func (s *Schema) TableIndex(name string) int {
	for i, t := range s.TableNamesOriginal {
		if t == name {
			return i
		}
	}

	return -1
}

// ColumnIndex returns the canonical index of table.column, or -1.
func (s *Schema) ColumnIndex(table, column string) int {
	ti := s.TableIndex(table)
	if ti < 0 {
		return -1
	}

	for i, c := range s.ColumnNamesOriginal {
		if c.TableIndex == ti && c.Name == column {
			return i
		}
	}

	return -1
}

// typeClasses maps SQL base types to canonical type classes.
var typeClasses = map[string]string{
	"int": TypeNumber, "integer": TypeNumber, "bigint": TypeNumber,
	"smallint": TypeNumber, "tinyint": TypeNumber, "mediumint": TypeNumber,
	"decimal": TypeNumber, "numeric": TypeNumber, "float": TypeNumber,
	"double": TypeNumber, "real": TypeNumber,

	"char": TypeText, "varchar": TypeText, "text": TypeText,
	"tinytext": TypeText, "mediumtext": TypeText, "longtext": TypeText,
	"enum": TypeText, "set": TypeText, "json": TypeText, "blob": TypeText,

	"date": TypeTime, "datetime": TypeTime, "timestamp": TypeTime,
	"time": TypeTime, "year": TypeTime,

	"boolean": TypeBoolean, "bool": TypeBoolean, "bit": TypeBoolean,
}

// prefixClasses handles vendor variants like int4, decimal64, datetime2.
var prefixClasses = []struct {
	prefix string
	class  string
}{
	{"int", TypeNumber},
	{"dec", TypeNumber},
	{"num", TypeNumber},
	{"float", TypeNumber},
	{"double", TypeNumber},
	{"date", TypeTime},
	{"time", TypeTime},
	{"bool", TypeBoolean},
	{"bit", TypeBoolean},
	{"varchar", TypeText},
	{"char", TypeText},
	{"text", TypeText},
}

// ClassifyType maps a SQL type string (possibly with a size suffix like
// varchar(255)) to one of the canonical type classes. Unrecognized types map
// to "others".
func ClassifyType(sqlType string) string {
	base := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	if class, ok := typeClasses[base]; ok {
		return class
	}

	for _, p := range prefixClasses {
		if strings.HasPrefix(base, p.prefix) {
			return p.class
		}
	}

	return TypeOthers
}

// Convert produces the canonical view of a schema. It is a pure function:
// tables and columns are emitted in their ingested order, the sentinel star
// column occupies index 0, and foreign keys referring to unknown columns are
// dropped with a warning.
func Convert(schema *types.Schema) *Schema {
	out := &Schema{
		DBID:        schema.Database,
		PrimaryKeys: []int{},
		ForeignKeys: [][2]int{},
	}

	// Sentinel star column.
	out.ColumnNamesOriginal = append(out.ColumnNamesOriginal, ColumnRef{TableIndex: -1, Name: "*"})
	out.ColumnTypes = append(out.ColumnTypes, TypeText)
	out.ColumnSQLTypes = append(out.ColumnSQLTypes, "")

	tableNames := schema.TableNames()

	type colKey struct {
		table  string
		column string
	}

	position := make(map[colKey]int)

	for ti, name := range tableNames {
		table := schema.Tables[name]
		out.TableNamesOriginal = append(out.TableNamesOriginal, name)

		for _, col := range table.Columns {
			idx := len(out.ColumnNamesOriginal)
			position[colKey{name, col.Name}] = idx

			out.ColumnNamesOriginal = append(out.ColumnNamesOriginal, ColumnRef{TableIndex: ti, Name: col.Name})
			out.ColumnTypes = append(out.ColumnTypes, ClassifyType(col.Type))
			out.ColumnSQLTypes = append(out.ColumnSQLTypes, col.Type)

			if col.PrimaryKey {
				out.PrimaryKeys = append(out.PrimaryKeys, idx)
			}
		}
	}

	for _, name := range tableNames {
		table := schema.Tables[name]

		for _, fk := range table.ForeignKeys {
			for i, constrained := range fk.ConstrainedColumns {
				if i >= len(fk.ReferredColumns) {
					break
				}

				src, okSrc := position[colKey{name, constrained}]
				dst, okDst := position[colKey{fk.ReferredTable, fk.ReferredColumns[i]}]

				if !okSrc || !okDst {
					logging.Warnf("dropping unresolvable foreign key %s.%s -> %s.%s",
						name, constrained, fk.ReferredTable, fk.ReferredColumns[i])
					continue
				}

				out.ForeignKeys = append(out.ForeignKeys, [2]int{src, dst})
			}
		}
	}

	return out
}
