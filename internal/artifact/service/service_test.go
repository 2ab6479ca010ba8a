package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/access"
	artifactdomain "github.com/smallbiznis/lunara/internal/artifact/domain"
	"github.com/smallbiznis/lunara/internal/artifact/repository"
	"github.com/smallbiznis/lunara/internal/clock"
	orgrepository "github.com/smallbiznis/lunara/internal/organization/repository"
	orgservice "github.com/smallbiznis/lunara/internal/organization/service"
	"github.com/smallbiznis/lunara/internal/orgcontext"
	"github.com/smallbiznis/lunara/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	svc      artifactdomain.Service
	projectA uuid.UUID
	projectB uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 7, 30, 0, 0, time.UTC))

	enforcer, err := access.NewEnforcer(db, zap.NewNop())
	require.NoError(t, err)
	evaluator := access.NewEvaluator(access.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Enforcer:  enforcer,
		Directory: orgservice.NewDirectory(orgrepository.NewRepository(db)),
	})

	f := &fixture{
		db:    db,
		clock: clk,
		svc: New(Params{
			DB:     db,
			Log:    zap.NewNop(),
			Clock:  clk,
			Repo:   repository.Provide(),
			Access: evaluator,
		}),
		projectA: uuid.New(),
		projectB: uuid.New(),
	}

	now := clk.Now()
	for principal, projectID := range map[string]uuid.UUID{"alice": f.projectA, "bob": f.projectB} {
		orgID := uuid.New()
		require.NoError(t, db.Exec(`INSERT INTO organizations (id, name, slug, created_at) VALUES (?, ?, ?, ?)`,
			orgID, principal, principal, now).Error)
		require.NoError(t, db.Exec(`INSERT INTO profiles (principal_id, organization_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			principal, orgID, now, now).Error)
		require.NoError(t, db.Exec(`INSERT INTO projects (id, organization_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			projectID, orgID, "Reporting", now, now).Error)
	}
	return f
}

func as(principal string) context.Context {
	return orgcontext.WithPrincipal(context.Background(), principal)
}

func ptr(s string) *string { return &s }

func TestDashboardPublishKeepsType(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(as("alice"), artifactdomain.CreateRequest{
		ProjectID: f.projectA.String(),
		Type:      "dashboard",
		Name:      "Weekly KPIs",
		Content:   map[string]any{"widgets": []any{}},
	})
	require.NoError(t, err)
	assert.Equal(t, artifactdomain.StatusDraft, created.Status)
	assert.Equal(t, "alice", created.CreatedBy)

	f.clock.Advance(time.Minute)
	published, err := f.svc.Update(as("alice"), artifactdomain.UpdateRequest{
		ID:     created.ID,
		Status: ptr(artifactdomain.StatusPublished),
	})
	require.NoError(t, err)
	assert.Equal(t, artifactdomain.StatusPublished, published.Status)
	assert.True(t, published.UpdatedAt.After(created.UpdatedAt))

	got, err := f.svc.GetByID(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", got.Type)
	assert.Equal(t, artifactdomain.StatusPublished, got.Status)
	assert.Empty(t, got.Content["widgets"])

	_, err = f.svc.Update(as("alice"), artifactdomain.UpdateRequest{ID: created.ID, Type: ptr("report")})
	assert.ErrorIs(t, err, artifactdomain.ErrTypeImmutable)

	same, err := f.svc.Update(as("alice"), artifactdomain.UpdateRequest{ID: created.ID, Type: ptr("dashboard")})
	require.NoError(t, err)
	assert.Equal(t, published.UpdatedAt, same.UpdatedAt)

	draft, err := f.svc.Update(as("alice"), artifactdomain.UpdateRequest{ID: created.ID, Status: ptr("draft")})
	require.NoError(t, err)
	assert.Equal(t, artifactdomain.StatusDraft, draft.Status)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  artifactdomain.CreateRequest
		want error
	}{
		{"bad type", artifactdomain.CreateRequest{ProjectID: f.projectA.String(), Type: "memo", Name: "x"}, artifactdomain.ErrInvalidType},
		{"bad status", artifactdomain.CreateRequest{ProjectID: f.projectA.String(), Type: "report", Name: "x", Status: "archived"}, artifactdomain.ErrInvalidStatus},
		{"blank name", artifactdomain.CreateRequest{ProjectID: f.projectA.String(), Type: "report", Name: ""}, artifactdomain.ErrInvalidName},
		{"bad project", artifactdomain.CreateRequest{ProjectID: "x", Type: "report", Name: "x"}, artifactdomain.ErrInvalidProject},
		{"foreign project", artifactdomain.CreateRequest{ProjectID: f.projectB.String(), Type: "report", Name: "x"}, artifactdomain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(as("alice"), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), artifactdomain.CreateRequest{
		ProjectID: f.projectA.String(),
		Type:      "report",
		Name:      "Q1",
	})
	assert.ErrorIs(t, err, access.ErrUnauthenticated)
}

func TestUpdateRejectsInvalidStatus(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(as("alice"), artifactdomain.CreateRequest{ProjectID: f.projectA.String(), Type: "slide", Name: "Deck"})
	require.NoError(t, err)

	_, err = f.svc.Update(as("alice"), artifactdomain.UpdateRequest{ID: created.ID, Status: ptr("archived")})
	assert.ErrorIs(t, err, artifactdomain.ErrInvalidStatus)
}

func TestListFiltersAndScopes(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []string{"report", "dashboard", "dashboard"} {
		_, err := f.svc.Create(as("alice"), artifactdomain.CreateRequest{ProjectID: f.projectA.String(), Type: typ, Name: typ})
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	all, err := f.svc.List(as("alice"), artifactdomain.ListRequest{ProjectID: f.projectA.String()})
	require.NoError(t, err)
	assert.Len(t, all.Artifacts, 3)

	dashboards, err := f.svc.List(as("alice"), artifactdomain.ListRequest{ProjectID: f.projectA.String(), Type: "dashboard"})
	require.NoError(t, err)
	assert.Len(t, dashboards.Artifacts, 2)

	_, err = f.svc.List(as("alice"), artifactdomain.ListRequest{ProjectID: f.projectA.String(), Type: "memo"})
	assert.ErrorIs(t, err, artifactdomain.ErrInvalidType)

	_, err = f.svc.List(as("bob"), artifactdomain.ListRequest{ProjectID: f.projectA.String()})
	assert.ErrorIs(t, err, artifactdomain.ErrNotFound)
}

func TestDeleteArtifact(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(as("alice"), artifactdomain.CreateRequest{ProjectID: f.projectA.String(), Type: "report", Name: "Q1"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(as("bob"), created.ID), artifactdomain.ErrNotFound)
	require.NoError(t, f.svc.Delete(as("alice"), created.ID))
	_, err = f.svc.GetByID(as("alice"), created.ID)
	assert.ErrorIs(t, err, artifactdomain.ErrNotFound)
}

func TestContentReturnsTypedView(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(as("alice"), artifactdomain.CreateRequest{
		ProjectID: f.projectA.String(),
		Type:      "dashboard",
		Name:      "Ops",
		Content: map[string]any{
			"widgets":          []any{map[string]any{"kind": "kpi"}},
			"layout":           "grid",
			"refresh_interval": 60,
		},
	})
	require.NoError(t, err)

	got, err := f.svc.Content(as("alice"), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", got.Type)
	view, ok := got.Content.(*artifactdomain.DashboardContent)
	require.True(t, ok)
	assert.Equal(t, "grid", view.Layout)
	assert.Equal(t, 60, view.RefreshInterval)
	require.Len(t, view.Widgets, 1)

	_, err = f.svc.Content(as("bob"), created.ID)
	assert.ErrorIs(t, err, artifactdomain.ErrNotFound)
}

func TestContentRejectsMisshapenDocument(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(as("alice"), artifactdomain.CreateRequest{
		ProjectID: f.projectA.String(),
		Type:      "slide",
		Name:      "Deck",
		Content:   map[string]any{"slides": "not a list"},
	})
	require.NoError(t, err)

	_, err = f.svc.Content(as("alice"), created.ID)
	assert.ErrorIs(t, err, artifactdomain.ErrInvalidContent)
}
