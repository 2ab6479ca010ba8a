package service

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/clock"
	"github.com/smallbiznis/lunara/internal/config"
	"github.com/smallbiznis/lunara/internal/credential/domain"
	"github.com/smallbiznis/lunara/internal/credential/repository"
	"github.com/smallbiznis/lunara/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func seedDataSource(t *testing.T, db *gorm.DB, sourceType string) uuid.UUID {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	orgID, projectID, dsID := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, db.Exec(`INSERT INTO organizations (id, name, slug, created_at) VALUES (?, 'Acme', 'acme', ?)`, orgID, now).Error)
	require.NoError(t, db.Exec(`INSERT INTO projects (id, organization_id, name, created_at, updated_at) VALUES (?, ?, 'Reporting', ?, ?)`, projectID, orgID, now, now).Error)
	require.NoError(t, db.Exec(`INSERT INTO data_sources (id, project_id, type, name, config, status, created_at, updated_at)
		VALUES (?, ?, ?, 'Warehouse', '{}', 'pending', ?, ?)`, dsID, projectID, sourceType, now, now).Error)
	return dsID
}

func newStore(t *testing.T, db *gorm.DB, cfg config.Config) domain.Store {
	t.Helper()
	store, err := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   cfg,
		Clock: clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	require.NoError(t, err)
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	db := dbtest.Open(t)
	dsID := seedDataSource(t, db, "postgres")
	store := newStore(t, db, config.Config{EncryptionKey: "correct horse battery staple"})
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, dsID, map[string]any{"user": "analyst", "password": "s3cret"}))
	secret, err := store.Get(ctx, dsID, "postgres")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "analyst", "password": "s3cret"}, secret)

	require.NoError(t, store.Put(ctx, dsID, map[string]any{"password": "rotated"}))
	secret, err = store.Get(ctx, dsID, "postgres")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"password": "rotated"}, secret)

	var sealed string
	require.NoError(t, db.Raw(`SELECT sealed FROM data_source_credentials WHERE data_source_id = ?`, dsID).Scan(&sealed).Error)
	assert.NotContains(t, sealed, "rotated")

	require.NoError(t, store.Delete(ctx, dsID))
	_, err = store.Get(ctx, dsID, "postgres")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPutWithoutKeyFails(t *testing.T) {
	db := dbtest.Open(t)
	dsID := seedDataSource(t, db, "postgres")
	store := newStore(t, db, config.Config{})

	err := store.Put(context.Background(), dsID, map[string]any{"password": "x"})
	assert.ErrorIs(t, err, domain.ErrEncryptionKeyMissing)
	assert.ErrorIs(t, store.Put(context.Background(), dsID, nil), domain.ErrInvalidSecret)
}

func TestOpenWithDifferentKeyIsCorrupted(t *testing.T) {
	db := dbtest.Open(t)
	dsID := seedDataSource(t, db, "postgres")
	ctx := context.Background()

	require.NoError(t, newStore(t, db, config.Config{EncryptionKey: "first"}).Put(ctx, dsID, map[string]any{"token": "abc"}))
	_, err := newStore(t, db, config.Config{EncryptionKey: "second"}).Get(ctx, dsID, "postgres")
	assert.ErrorIs(t, err, domain.ErrCorrupted)
}

func TestBigQueryFallbackCredentials(t *testing.T) {
	db := dbtest.Open(t)
	dsID := seedDataSource(t, db, "bigquery")
	account := base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account","project_id":"acme-prod"}`))
	store := newStore(t, db, config.Config{BigQueryCredentialsBase64: account})

	secret, err := store.Get(context.Background(), dsID, "bigquery")
	require.NoError(t, err)
	assert.Equal(t, "acme-prod", secret["project_id"])

	_, err = store.Get(context.Background(), dsID, "postgres")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
