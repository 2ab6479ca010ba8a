package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDocumentGroupsColumnsByTable(t *testing.T) {
	columns := []ColumnRow{
		{Schema: "public", Table: "orders", Column: "id", DataType: "bigint"},
		{Schema: "public", Table: "orders", Column: "customer_id", DataType: "uuid"},
		{Schema: "public", Table: "orders", Column: "placed_at", DataType: "timestamp with time zone", Nullable: true},
		{Schema: "public", Table: "orders", Column: "total", DataType: "numeric"},
		{Schema: "public", Table: "customers", Column: "id", DataType: "uuid"},
		{Schema: "public", Table: "customers", Column: "email", DataType: "text", Nullable: true},
	}

	doc := BuildDocument("public", columns, nil, ScanOptions{})

	tables, ok := doc["tables"].([]any)
	require.True(t, ok)
	require.Len(t, tables, 2)

	orders := tables[0].(map[string]any)
	assert.Equal(t, "orders", orders["name"])
	assert.Equal(t, "public.orders", orders["source_table"])

	cols := orders["columns"].([]any)
	require.Len(t, cols, 4)
	id := cols[0].(map[string]any)
	assert.Equal(t, "measure", id["semantic_type"])
	assert.Equal(t, "REQUIRED", id["mode"])
	placedAt := cols[2].(map[string]any)
	assert.Equal(t, "time", placedAt["semantic_type"])
	assert.Equal(t, "NULLABLE", placedAt["mode"])
	_, hasAgg := placedAt["aggregation"]
	assert.False(t, hasAgg)
	total := cols[3].(map[string]any)
	assert.Equal(t, "SUM", total["aggregation"])

	customers := tables[1].(map[string]any)
	email := customers["columns"].([]any)[1].(map[string]any)
	assert.Equal(t, "dimension", email["semantic_type"])
}

func TestBuildDocumentHonorsTableFilter(t *testing.T) {
	columns := []ColumnRow{
		{Schema: "public", Table: "orders", Column: "id", DataType: "integer"},
		{Schema: "public", Table: "customers", Column: "id", DataType: "integer"},
		{Schema: "public", Table: "audit", Column: "id", DataType: "integer"},
	}

	doc := BuildDocument("public", columns, nil, ScanOptions{Tables: []string{"public.orders", " customers "}})

	tables := doc["tables"].([]any)
	require.Len(t, tables, 2)
	names := []string{
		tables[0].(map[string]any)["name"].(string),
		tables[1].(map[string]any)["name"].(string),
	}
	assert.Equal(t, []string{"orders", "customers"}, names)
}

func TestBuildDocumentDropsRelationshipsToMissingTables(t *testing.T) {
	columns := []ColumnRow{
		{Schema: "public", Table: "orders", Column: "customer_id", DataType: "uuid"},
		{Schema: "public", Table: "customers", Column: "id", DataType: "uuid"},
	}
	fks := []ForeignKeyRow{
		{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"},
		{FromTable: "orders", FromColumn: "region_id", ToTable: "regions", ToColumn: "id"},
	}

	doc := BuildDocument("public", columns, fks, ScanOptions{})

	rels := doc["relationships"].([]any)
	require.Len(t, rels, 1)
	rel := rels[0].(map[string]any)
	assert.Equal(t, "orders", rel["from_table"])
	assert.Equal(t, "customers", rel["to_table"])
	assert.Equal(t, "many-to-one", rel["relationship_type"])
}

func TestBuildDocumentEmptySchema(t *testing.T) {
	doc := BuildDocument("public", nil, nil, ScanOptions{})
	assert.Empty(t, doc["tables"])
	assert.Empty(t, doc["relationships"])
}

func TestClassifyColumn(t *testing.T) {
	cases := []struct {
		dataType     string
		semanticType string
		aggregation  string
	}{
		{"date", "time", ""},
		{"timestamp without time zone", "time", ""},
		{"integer", "measure", "SUM"},
		{"smallint", "measure", "SUM"},
		{"double precision", "measure", "SUM"},
		{"interval", "dimension", ""},
		{"character varying", "dimension", ""},
		{"boolean", "dimension", ""},
	}
	for _, tc := range cases {
		t.Run(tc.dataType, func(t *testing.T) {
			semanticType, aggregation := classifyColumn(tc.dataType)
			assert.Equal(t, tc.semanticType, semanticType)
			assert.Equal(t, tc.aggregation, aggregation)
		})
	}
}
