package migration

import (
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRunAppliesSQLiteSchema(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()

	require.NoError(t, Run(conn))
	// Re-running is a no-op.
	require.NoError(t, Run(conn))

	for _, table := range []string{
		"organizations",
		"profiles",
		"projects",
		"data_sources",
		"data_source_credentials",
		"semantic_models",
		"agents",
		"artifacts",
		"audit_logs",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql"} {
		entries, err := embeddedMigrations.ReadDir(migrationsDir + "/" + dialect)
		require.NoError(t, err)

		ups, downs := 0, 0
		for _, entry := range entries {
			switch {
			case strings.HasSuffix(entry.Name(), ".up.sql"):
				ups++
			case strings.HasSuffix(entry.Name(), ".down.sql"):
				downs++
			}
		}
		assert.Equal(t, ups, downs, dialect)
		assert.NotZero(t, ups, dialect)
	}
}

func TestSQLiteSchemaRejectsUnknownEnums(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_enum_test?mode=memory&cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, ApplySQLiteSchema(conn))

	now := time.Now().UTC()
	require.NoError(t, conn.Exec(`INSERT INTO organizations (id, name, slug, created_at) VALUES ('org', 'Acme', 'acme', ?)`, now).Error)
	require.NoError(t, conn.Exec(`INSERT INTO projects (id, organization_id, name, created_at, updated_at) VALUES ('prj', 'org', 'Reporting', ?, ?)`, now, now).Error)

	tests := []struct {
		name string
		sql  string
	}{
		{"semantic model source type", `INSERT INTO semantic_models (id, project_id, name, model, source_type, table_count, created_at, updated_at)
			VALUES ('sm', 'prj', 'Orders', '{}', 'manual', 0, ?, ?)`},
		{"data source type", `INSERT INTO data_sources (id, project_id, type, name, config, status, created_at, updated_at)
			VALUES ('ds', 'prj', 'oracle', 'Warehouse', '{}', 'pending', ?, ?)`},
		{"data source status", `INSERT INTO data_sources (id, project_id, type, name, config, status, created_at, updated_at)
			VALUES ('ds', 'prj', 'postgres', 'Warehouse', '{}', 'unknown', ?, ?)`},
		{"artifact type", `INSERT INTO artifacts (id, project_id, type, name, content, status, created_by, created_at, updated_at)
			VALUES ('a', 'prj', 'memo', 'Q1', '{}', 'draft', 'alice', ?, ?)`},
		{"artifact status", `INSERT INTO artifacts (id, project_id, type, name, content, status, created_by, created_at, updated_at)
			VALUES ('a', 'prj', 'report', 'Q1', '{}', 'archived', 'alice', ?, ?)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, conn.Exec(tt.sql, now, now).Error)
		})
	}
}
