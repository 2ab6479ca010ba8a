package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/access"
	"github.com/smallbiznis/lunara/internal/clock"
	"github.com/smallbiznis/lunara/internal/config"
	credentialdomain "github.com/smallbiznis/lunara/internal/credential/domain"
	credentialrepository "github.com/smallbiznis/lunara/internal/credential/repository"
	credentialservice "github.com/smallbiznis/lunara/internal/credential/service"
	dsdomain "github.com/smallbiznis/lunara/internal/datasource/domain"
	"github.com/smallbiznis/lunara/internal/datasource/repository"
	orgrepository "github.com/smallbiznis/lunara/internal/organization/repository"
	orgservice "github.com/smallbiznis/lunara/internal/organization/service"
	"github.com/smallbiznis/lunara/internal/orgcontext"
	"github.com/smallbiznis/lunara/internal/warehouse"
	"github.com/smallbiznis/lunara/internal/warehouse/mock"
	"github.com/smallbiznis/lunara/pkg/db"
	"github.com/smallbiznis/lunara/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	prober   *mock.MockProber
	lister   *mock.MockLister
	store    credentialdomain.Store
	access   access.Evaluator
	svc      dsdomain.Service
	projectA uuid.UUID
	projectB uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	ctrl := gomock.NewController(t)

	enforcer, err := access.NewEnforcer(db, zap.NewNop())
	require.NoError(t, err)
	evaluator := access.NewEvaluator(access.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Enforcer:  enforcer,
		Directory: orgservice.NewDirectory(orgrepository.NewRepository(db)),
	})

	store, err := credentialservice.New(credentialservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Cfg:   config.Config{EncryptionKey: "test-encryption-key"},
		Clock: clk,
		Repo:  credentialrepository.Provide(),
	})
	require.NoError(t, err)

	prober := mock.NewMockProber(ctrl)
	lister := mock.NewMockLister(ctrl)
	f := &fixture{
		db:     db,
		clock:  clk,
		prober: prober,
		lister: lister,
		store:  store,
		access: evaluator,
		svc: New(Params{
			DB:          db,
			Log:         zap.NewNop(),
			Clock:       clk,
			Repo:        repository.Provide(),
			Access:      evaluator,
			Credentials: store,
			Prober:      prober,
			Lister:      lister,
		}),
		projectA: uuid.New(),
		projectB: uuid.New(),
	}

	now := clk.Now()
	seed := []struct {
		principal string
		projectID uuid.UUID
	}{
		{"alice", f.projectA},
		{"bob", f.projectB},
	}
	for _, s := range seed {
		orgID := uuid.New()
		require.NoError(t, db.Exec(`INSERT INTO organizations (id, name, slug, created_at) VALUES (?, ?, ?, ?)`,
			orgID, s.principal, s.principal, now).Error)
		require.NoError(t, db.Exec(`INSERT INTO profiles (principal_id, organization_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			s.principal, orgID, now, now).Error)
		require.NoError(t, db.Exec(`INSERT INTO projects (id, organization_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			s.projectID, orgID, "Reporting", now, now).Error)
	}
	return f
}

func as(principal string) context.Context {
	return orgcontext.WithPrincipal(context.Background(), principal)
}

func (f *fixture) register(t *testing.T, cfg map[string]any) *dsdomain.Response {
	t.Helper()
	resp, err := f.svc.Register(as("alice"), dsdomain.RegisterRequest{
		ProjectID: f.projectA.String(),
		Type:      "postgres",
		Name:      "Warehouse",
		Config:    cfg,
	})
	require.NoError(t, err)
	return resp
}

func TestRegisterStartsPending(t *testing.T) {
	f := newFixture(t)

	resp := f.register(t, map[string]any{"host": "db.internal", "database": "analytics"})
	assert.Equal(t, dsdomain.StatusPending, resp.Status)
	assert.Equal(t, "postgres", resp.Type)
	assert.Equal(t, f.projectA.String(), resp.ProjectID)
	assert.Nil(t, resp.LastError)
	assert.Equal(t, resp.CreatedAt, resp.UpdatedAt)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  dsdomain.RegisterRequest
		want error
	}{
		{"bad project", dsdomain.RegisterRequest{ProjectID: "nope", Type: "postgres", Name: "x"}, dsdomain.ErrInvalidProject},
		{"blank name", dsdomain.RegisterRequest{ProjectID: f.projectA.String(), Type: "postgres", Name: " "}, dsdomain.ErrInvalidName},
		{"unknown type", dsdomain.RegisterRequest{ProjectID: f.projectA.String(), Type: "oracle", Name: "x"}, dsdomain.ErrInvalidType},
		{"foreign project", dsdomain.RegisterRequest{ProjectID: f.projectB.String(), Type: "postgres", Name: "x"}, dsdomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(as("alice"), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestConfigRoundTrips(t *testing.T) {
	f := newFixture(t)

	cfg := map[string]any{
		"host":     "db.internal",
		"port":     5432,
		"database": "analytics",
		"options": map[string]any{
			"sslmode":  "require",
			"replicas": []any{"r1", "r2"},
		},
		"primary_key": "id",
	}
	created := f.register(t, cfg)

	got, err := f.svc.GetByID(as("alice"), created.ID)
	require.NoError(t, err)

	want, err := json.Marshal(cfg)
	require.NoError(t, err)
	actual, err := json.Marshal(got.Config)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(actual))
}

func TestConfigRejectsCredentialKeys(t *testing.T) {
	f := newFixture(t)

	cases := map[string]map[string]any{
		"top level":    {"host": "h", "password": "hunter2"},
		"camel case":   {"host": "h", "apiKey": "k"},
		"suffix":       {"host": "h", "service_token": "t"},
		"nested":       {"host": "h", "auth": map[string]any{"client_secret": "s"}},
		"inside slice": {"replicas": []any{map[string]any{"host": "r1", "private_key": "pk"}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Register(as("alice"), dsdomain.RegisterRequest{
				ProjectID: f.projectA.String(),
				Type:      "postgres",
				Name:      "Warehouse",
				Config:    cfg,
			})
			assert.ErrorIs(t, err, dsdomain.ErrCredentialInConfig)
		})
	}

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM data_sources`).Scan(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateRejectsCredentialKeys(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h"})

	_, err := f.svc.Update(as("alice"), dsdomain.UpdateRequest{
		ID:     created.ID,
		Config: map[string]any{"host": "h", "secret": "s"},
	})
	assert.ErrorIs(t, err, dsdomain.ErrCredentialInConfig)
}

func TestTestAndActivateConnects(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "db.internal", "database": "analytics"})
	require.NoError(t, f.svc.SetCredentials(as("alice"), created.ID, map[string]any{"password": "hunter2"}))

	f.prober.EXPECT().
		Probe(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ds warehouse.DataSource, creds warehouse.Credentials) error {
			assert.Equal(t, created.ID, ds.ID.String())
			assert.Equal(t, "postgres", ds.Type)
			assert.Equal(t, "hunter2", creds["password"])
			return nil
		})

	f.clock.Advance(time.Minute)
	resp, err := f.svc.TestAndActivate(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, dsdomain.StatusConnected, resp.Status)
	assert.Nil(t, resp.LastError)
	require.NotNil(t, resp.LastProbedAt)
	assert.True(t, resp.UpdatedAt.After(created.UpdatedAt))
}

func TestTestAndActivateRecordsFailure(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "db.internal", "database": "analytics"})

	f.prober.EXPECT().
		Probe(gomock.Any(), gomock.Any(), gomock.Nil()).
		Return(errors.New("connection refused"))

	_, err := f.svc.TestAndActivate(as("alice"), created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, warehouse.ErrCollaborator)

	stored, err := f.svc.GetByID(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, dsdomain.StatusError, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "connection refused")

	f.prober.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	resp, err := f.svc.TestAndActivate(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, dsdomain.StatusConnected, resp.Status)
	assert.Nil(t, resp.LastError)
}

func TestTestAndActivateForeignIsNotFound(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h"})

	_, err := f.svc.TestAndActivate(as("bob"), created.ID)
	assert.ErrorIs(t, err, dsdomain.ErrNotFound)
}

func TestUpdateTimestamps(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h", "port": 5432})

	f.clock.Advance(time.Second)
	same := "Warehouse"
	unchanged, err := f.svc.Update(as("alice"), dsdomain.UpdateRequest{
		ID:     created.ID,
		Name:   &same,
		Config: map[string]any{"port": 5432, "host": "h"},
	})
	require.NoError(t, err)
	assert.Equal(t, created.UpdatedAt, unchanged.UpdatedAt)

	f.clock.Advance(time.Second)
	renamed := "Analytics"
	updated, err := f.svc.Update(as("alice"), dsdomain.UpdateRequest{ID: created.ID, Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "Analytics", updated.Name)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
}

func TestUpdateConfigKeepsStatus(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h"})

	f.prober.EXPECT().Probe(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	probed, err := f.svc.TestAndActivate(as("alice"), created.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	updated, err := f.svc.Update(as("alice"), dsdomain.UpdateRequest{
		ID:     created.ID,
		Config: map[string]any{"host": "replica"},
	})
	require.NoError(t, err)
	assert.Equal(t, dsdomain.StatusConnected, updated.Status)
	assert.Equal(t, "replica", updated.Config["host"])
	assert.Equal(t, probed.LastProbedAt, updated.LastProbedAt)
	assert.True(t, updated.UpdatedAt.After(probed.UpdatedAt))
}

func TestTestAndActivateDiscardsOutcomeWhenConfigChanges(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "good"})

	f.prober.EXPECT().
		Probe(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ds warehouse.DataSource, _ warehouse.Credentials) error {
			assert.Equal(t, "good", ds.Config["host"])
			_, err := f.svc.Update(as("alice"), dsdomain.UpdateRequest{
				ID:     created.ID,
				Config: map[string]any{"host": "unreachable"},
			})
			require.NoError(t, err)
			return nil
		})

	_, err := f.svc.TestAndActivate(as("alice"), created.ID)
	require.ErrorIs(t, err, dsdomain.ErrConfigChanged)

	stored, err := f.svc.GetByID(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "unreachable", stored.Config["host"])
	assert.Equal(t, dsdomain.StatusPending, stored.Status)
	assert.Nil(t, stored.LastProbedAt)
}

func TestTestAndActivateRecordsUnreadableCredentials(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h"})
	require.NoError(t, f.svc.SetCredentials(as("alice"), created.ID, map[string]any{"password": "p"}))
	require.NoError(t, f.db.Exec(`UPDATE data_source_credentials SET sealed = 'garbage' WHERE data_source_id = ?`, created.ID).Error)

	_, err := f.svc.TestAndActivate(as("alice"), created.ID)
	require.ErrorIs(t, err, credentialdomain.ErrCorrupted)

	stored, err := f.svc.GetByID(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, dsdomain.StatusError, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "credentials unavailable")
	assert.NotContains(t, *stored.LastError, "garbage")
	assert.NotNil(t, stored.LastProbedAt)
}

// racingRepository lets another writer bump the row right before each of the
// first `races` conditional updates.
type racingRepository struct {
	dsdomain.Repository
	db       *gorm.DB
	races    int
	attempts int
}

func (r *racingRepository) Update(ctx context.Context, db *gorm.DB, ds *dsdomain.DataSource, prev time.Time) *gorm.DB {
	r.attempts++
	if r.attempts <= r.races {
		r.db.Exec(`UPDATE data_sources SET name = ?, updated_at = ? WHERE id = ?`,
			"Concurrent", prev.Add(time.Duration(r.attempts)*time.Millisecond), ds.ID)
	}
	return r.Repository.Update(ctx, db, ds, prev)
}

func (f *fixture) serviceWithRepo(repo dsdomain.Repository) dsdomain.Service {
	return New(Params{
		DB:          f.db,
		Log:         zap.NewNop(),
		Clock:       f.clock,
		Repo:        repo,
		Access:      f.access,
		Credentials: f.store,
		Prober:      f.prober,
		Lister:      f.lister,
	})
}

func TestUpdateRetriesAfterConcurrentWrite(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h"})
	repo := &racingRepository{Repository: repository.Provide(), db: f.db, races: 1}
	svc := f.serviceWithRepo(repo)

	f.clock.Advance(time.Second)
	updated, err := svc.Update(as("alice"), dsdomain.UpdateRequest{
		ID:     created.ID,
		Config: map[string]any{"host": "replica"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.attempts)
	assert.Equal(t, "Concurrent", updated.Name)
	assert.Equal(t, "replica", updated.Config["host"])

	stored, err := f.svc.GetByID(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Concurrent", stored.Name)
	assert.Equal(t, "replica", stored.Config["host"])
	assert.Equal(t, updated.UpdatedAt, stored.UpdatedAt)
}

func TestUpdateGivesUpOnPersistentContention(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h"})
	repo := &racingRepository{Repository: repository.Provide(), db: f.db, races: 100}
	svc := f.serviceWithRepo(repo)

	_, err := svc.Update(as("alice"), dsdomain.UpdateRequest{
		ID:     created.ID,
		Config: map[string]any{"host": "replica"},
	})
	require.ErrorIs(t, err, db.ErrStaleWrite)
	assert.Equal(t, db.MaxWriteAttempts, repo.attempts)

	stored, err := f.svc.GetByID(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "h", stored.Config["host"])
}

func TestDeleteRemovesCredentials(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h"})
	require.NoError(t, f.svc.SetCredentials(as("alice"), created.ID, map[string]any{"password": "p"}))

	assert.ErrorIs(t, f.svc.Delete(as("bob"), created.ID), dsdomain.ErrNotFound)
	require.NoError(t, f.svc.Delete(as("alice"), created.ID))

	_, err := f.svc.GetByID(as("alice"), created.ID)
	assert.ErrorIs(t, err, dsdomain.ErrNotFound)

	id := uuid.MustParse(created.ID)
	_, err = f.store.Get(context.Background(), id, "postgres")
	assert.ErrorIs(t, err, credentialdomain.ErrNotFound)
}

func TestClearCredentials(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "h"})
	id := uuid.MustParse(created.ID)

	assert.ErrorIs(t, f.svc.SetCredentials(as("alice"), created.ID, nil), dsdomain.ErrInvalidSecret)
	require.NoError(t, f.svc.SetCredentials(as("alice"), created.ID, map[string]any{"password": "p"}))
	assert.ErrorIs(t, f.svc.ClearCredentials(as("bob"), created.ID), dsdomain.ErrNotFound)
	require.NoError(t, f.svc.ClearCredentials(as("alice"), created.ID))

	_, err := f.store.Get(context.Background(), id, "postgres")
	assert.ErrorIs(t, err, credentialdomain.ErrNotFound)
}

func TestListScopedToProject(t *testing.T) {
	f := newFixture(t)
	first := f.register(t, map[string]any{"host": "a"})
	f.clock.Advance(time.Second)
	second := f.register(t, map[string]any{"host": "b"})

	list, err := f.svc.List(as("alice"), dsdomain.ListRequest{ProjectID: f.projectA.String()})
	require.NoError(t, err)
	require.Len(t, list.DataSources, 2)
	assert.Equal(t, first.ID, list.DataSources[0].ID)
	assert.Equal(t, second.ID, list.DataSources[1].ID)

	_, err = f.svc.List(as("bob"), dsdomain.ListRequest{ProjectID: f.projectA.String()})
	assert.ErrorIs(t, err, dsdomain.ErrNotFound)
}

func TestListTables(t *testing.T) {
	f := newFixture(t)
	created := f.register(t, map[string]any{"host": "db.internal", "database": "analytics"})
	require.NoError(t, f.svc.SetCredentials(as("alice"), created.ID, map[string]any{"password": "hunter2"}))

	f.lister.EXPECT().
		ListTables(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ds warehouse.DataSource, creds warehouse.Credentials) ([]warehouse.Table, error) {
			assert.Equal(t, created.ID, ds.ID.String())
			assert.Equal(t, "hunter2", creds["password"])
			return []warehouse.Table{
				{Schema: "public", Name: "customers", Type: warehouse.TableTypeTable},
				{Schema: "public", Name: "orders", Type: warehouse.TableTypeTable},
			}, nil
		})

	resp, err := f.svc.ListTables(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, resp.DataSourceID)
	assert.Equal(t, []dsdomain.Table{
		{Schema: "public", Name: "customers", Type: "table"},
		{Schema: "public", Name: "orders", Type: "table"},
	}, resp.Tables)

	_, err = f.svc.ListTables(as("bob"), created.ID)
	assert.ErrorIs(t, err, dsdomain.ErrNotFound)

	f.lister.EXPECT().ListTables(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
	_, err = f.svc.ListTables(as("alice"), created.ID)
	assert.ErrorIs(t, err, warehouse.ErrCollaborator)
}
