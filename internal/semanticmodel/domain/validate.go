package domain

import (
	"fmt"
	"strings"
)

// Validate checks the structure of a semantic model document. Relationship
// ends must name a table of the document, by name or source_table, and one
// of its columns.
func Validate(doc map[string]any) error {
	rawTables, ok := doc["tables"]
	if !ok {
		return invalid("tables is required")
	}
	tables, ok := rawTables.([]any)
	if !ok {
		return invalid("tables must be a list")
	}

	columnsByTable := make(map[string]map[string]bool, len(tables)*2)
	for i, rawTable := range tables {
		table, ok := rawTable.(map[string]any)
		if !ok {
			return invalid("tables[%d] must be an object", i)
		}
		name := stringField(table, "name")
		if name == "" {
			return invalid("tables[%d].name is required", i)
		}
		columns, ok := table["columns"].([]any)
		if !ok {
			return invalid("tables[%d].columns must be a list", i)
		}

		known := make(map[string]bool, len(columns)*2)
		for j, rawColumn := range columns {
			column, ok := rawColumn.(map[string]any)
			if !ok {
				return invalid("tables[%d].columns[%d] must be an object", i, j)
			}
			columnName := stringField(column, "name")
			if columnName == "" {
				return invalid("tables[%d].columns[%d].name is required", i, j)
			}
			known[columnName] = true
			if source := stringField(column, "source_column"); source != "" {
				known[source] = true
			}
		}

		columnsByTable[name] = known
		if source := stringField(table, "source_table"); source != "" {
			columnsByTable[source] = known
		}
	}

	rawRelationships, ok := doc["relationships"]
	if !ok || rawRelationships == nil {
		return nil
	}
	relationships, ok := rawRelationships.([]any)
	if !ok {
		return invalid("relationships must be a list")
	}
	for i, rawRel := range relationships {
		rel, ok := rawRel.(map[string]any)
		if !ok {
			return invalid("relationships[%d] must be an object", i)
		}
		for _, end := range [][2]string{{"from_table", "from_column"}, {"to_table", "to_column"}} {
			tableName := stringField(rel, end[0])
			columnName := stringField(rel, end[1])
			if tableName == "" || columnName == "" {
				return invalid("relationships[%d].%s and %s are required", i, end[0], end[1])
			}
			known, ok := columnsByTable[tableName]
			if !ok {
				return invalid("relationships[%d].%s %q is not a table of the model", i, end[0], tableName)
			}
			if !known[columnName] {
				return invalid("relationships[%d].%s %q is not a column of %s", i, end[1], columnName, tableName)
			}
		}
	}
	return nil
}

// TableCount returns the number of entries in doc["tables"].
func TableCount(doc map[string]any) int {
	tables, _ := doc["tables"].([]any)
	return len(tables)
}

// CheckConsistency reports ErrInconsistent when m.TableCount drifted from its
// document.
func CheckConsistency(m *SemanticModel) error {
	if actual := TableCount(m.Model); actual != m.TableCount {
		return fmt.Errorf("%w: table_count %d, document has %d tables", ErrInconsistent, m.TableCount, actual)
	}
	return nil
}

func stringField(doc map[string]any, key string) string {
	value, _ := doc[key].(string)
	return strings.TrimSpace(value)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidModel}, args...)...)
}
