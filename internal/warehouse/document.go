package warehouse

import (
	"strings"
)

// ColumnRow is one row of information_schema.columns.
type ColumnRow struct {
	Schema   string
	Table    string
	Column   string
	DataType string
	Nullable bool
}

// ForeignKeyRow is one column pair of a foreign key constraint.
type ForeignKeyRow struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// BuildDocument turns introspected rows into a semantic model document.
// Tables keep the order of the rows; relationships are kept only when both
// ends are part of the document.
func BuildDocument(schema string, columns []ColumnRow, foreignKeys []ForeignKeyRow, opts ScanOptions) map[string]any {
	wanted := tableFilter(schema, opts.Tables)

	var order []string
	byName := map[string][]any{}
	for _, col := range columns {
		if wanted != nil && !wanted[col.Table] {
			continue
		}
		if _, ok := byName[col.Table]; !ok {
			order = append(order, col.Table)
		}
		semanticType, aggregation := classifyColumn(col.DataType)
		column := map[string]any{
			"name":          col.Column,
			"source_column": col.Column,
			"type":          col.DataType,
			"mode":          mode(col.Nullable),
			"semantic_type": semanticType,
		}
		if aggregation != "" {
			column["aggregation"] = aggregation
		}
		byName[col.Table] = append(byName[col.Table], column)
	}

	tables := make([]any, 0, len(order))
	for _, name := range order {
		tables = append(tables, map[string]any{
			"name":         name,
			"source_table": schema + "." + name,
			"columns":      byName[name],
		})
	}

	relationships := make([]any, 0, len(foreignKeys))
	for _, fk := range foreignKeys {
		if _, ok := byName[fk.FromTable]; !ok {
			continue
		}
		if _, ok := byName[fk.ToTable]; !ok {
			continue
		}
		relationships = append(relationships, map[string]any{
			"from_table":        fk.FromTable,
			"from_column":       fk.FromColumn,
			"to_table":          fk.ToTable,
			"to_column":         fk.ToColumn,
			"relationship_type": "many-to-one",
			"confidence":        "high",
		})
	}

	return map[string]any{
		"tables":        tables,
		"relationships": relationships,
	}
}

func tableFilter(schema string, tables []string) map[string]bool {
	if len(tables) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(tables))
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if prefix := schema + "."; strings.HasPrefix(t, prefix) {
			t = strings.TrimPrefix(t, prefix)
		}
		if t != "" {
			wanted[t] = true
		}
	}
	return wanted
}

// classifyColumn maps a warehouse data type onto a semantic role.
func classifyColumn(dataType string) (string, string) {
	t := strings.ToLower(dataType)
	switch {
	case strings.Contains(t, "timestamp"), strings.Contains(t, "date"), strings.HasPrefix(t, "time"):
		return "time", ""
	case strings.HasPrefix(t, "int"), strings.HasSuffix(t, "int"), strings.Contains(t, "numeric"), strings.Contains(t, "decimal"),
		strings.Contains(t, "double"), strings.Contains(t, "real"), strings.Contains(t, "float"),
		strings.Contains(t, "money"):
		return "measure", "SUM"
	default:
		return "dimension", ""
	}
}

func mode(nullable bool) string {
	if nullable {
		return "NULLABLE"
	}
	return "REQUIRED"
}
