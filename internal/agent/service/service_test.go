package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/access"
	agentdomain "github.com/smallbiznis/lunara/internal/agent/domain"
	"github.com/smallbiznis/lunara/internal/agent/repository"
	"github.com/smallbiznis/lunara/internal/clock"
	dsrepository "github.com/smallbiznis/lunara/internal/datasource/repository"
	orgrepository "github.com/smallbiznis/lunara/internal/organization/repository"
	orgservice "github.com/smallbiznis/lunara/internal/organization/service"
	"github.com/smallbiznis/lunara/internal/orgcontext"
	smdomain "github.com/smallbiznis/lunara/internal/semanticmodel/domain"
	smrepository "github.com/smallbiznis/lunara/internal/semanticmodel/repository"
	smservice "github.com/smallbiznis/lunara/internal/semanticmodel/service"
	"github.com/smallbiznis/lunara/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	svc      agentdomain.Service
	models   smdomain.Service
	projectA uuid.UUID
	projectB uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))

	enforcer, err := access.NewEnforcer(db, zap.NewNop())
	require.NoError(t, err)
	evaluator := access.NewEvaluator(access.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Enforcer:  enforcer,
		Directory: orgservice.NewDirectory(orgrepository.NewRepository(db)),
	})
	models := smservice.New(smservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clk,
		Repo:        smrepository.Provide(),
		DataSources: dsrepository.Provide(),
		Access:      evaluator,
	})

	f := &fixture{
		db:     db,
		clock:  clk,
		models: models,
		svc: New(Params{
			DB:             db,
			Log:            zap.NewNop(),
			Clock:          clk,
			Repo:           repository.Provide(),
			Access:         evaluator,
			SemanticModels: models,
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

func (f *fixture) model(t *testing.T, principal string, projectID uuid.UUID) *smdomain.Response {
	t.Helper()
	resp, err := f.models.Create(as(principal), smdomain.CreateRequest{
		ProjectID: projectID.String(),
		Name:      "Sales",
		Model: map[string]any{"tables": []any{
			map[string]any{"name": "orders", "columns": []any{map[string]any{"name": "id"}}},
		}},
	})
	require.NoError(t, err)
	return resp
}

func TestCreatePreservesUnknownConfigKeys(t *testing.T) {
	f := newFixture(t)
	instructions := "Answer in British English.\nPrefer weekly grain."

	created, err := f.svc.Create(as("alice"), agentdomain.CreateRequest{
		ProjectID:    f.projectA.String(),
		Name:         "Analyst",
		Instructions: &instructions,
		Config: map[string]any{
			"temperature": 0.2,
			"x-ui":        map[string]any{"color": "teal", "pinned": true},
		},
	})
	require.NoError(t, err)

	got, err := f.svc.GetByID(as("alice"), created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Instructions)
	assert.Equal(t, instructions, *got.Instructions)
	ui, ok := got.Config["x-ui"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "teal", ui["color"])
	assert.Equal(t, true, ui["pinned"])
	assert.Contains(t, got.Config, "temperature")
}

func TestGetForeignAgentMatchesMissing(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(as("alice"), agentdomain.CreateRequest{ProjectID: f.projectA.String(), Name: "Analyst"})
	require.NoError(t, err)

	_, foreignErr := f.svc.GetByID(as("bob"), created.ID)
	_, missingErr := f.svc.GetByID(as("bob"), uuid.NewString())
	assert.ErrorIs(t, foreignErr, agentdomain.ErrNotFound)
	assert.Equal(t, missingErr, foreignErr)
}

func TestUpdateTimestamps(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(as("alice"), agentdomain.CreateRequest{
		ProjectID: f.projectA.String(),
		Name:      "Analyst",
		Config:    map[string]any{"temperature": 0.2},
	})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	same, err := f.svc.Update(as("alice"), agentdomain.UpdateRequest{
		ID:     created.ID,
		Config: map[string]any{"temperature": 0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, created.UpdatedAt, same.UpdatedAt)

	f.clock.Advance(time.Second)
	instructions := "Be brief."
	updated, err := f.svc.Update(as("alice"), agentdomain.UpdateRequest{ID: created.ID, Instructions: &instructions})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestResolveSemanticModel(t *testing.T) {
	f := newFixture(t)
	model := f.model(t, "alice", f.projectA)

	agent, err := f.svc.Create(as("alice"), agentdomain.CreateRequest{
		ProjectID: f.projectA.String(),
		Name:      "Analyst",
		Config:    map[string]any{agentdomain.ConfigSemanticModelID: model.ID},
	})
	require.NoError(t, err)

	resolved, err := f.svc.ResolveSemanticModel(as("alice"), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ID, resolved.ID)

	require.NoError(t, f.models.Delete(as("alice"), model.ID))
	_, err = f.svc.ResolveSemanticModel(as("alice"), agent.ID)
	assert.ErrorIs(t, err, agentdomain.ErrUnresolvedReference)

	_, err = f.svc.GetByID(as("alice"), agent.ID)
	require.NoError(t, err)
}

func TestResolveSemanticModelUnresolved(t *testing.T) {
	f := newFixture(t)
	foreign := f.model(t, "bob", f.projectB)

	cases := map[string]map[string]any{
		"missing key":   {},
		"not a string":  {agentdomain.ConfigSemanticModelID: 42},
		"malformed id":  {agentdomain.ConfigSemanticModelID: "orders"},
		"foreign model": {agentdomain.ConfigSemanticModelID: foreign.ID},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			agent, err := f.svc.Create(as("alice"), agentdomain.CreateRequest{
				ProjectID: f.projectA.String(),
				Name:      "Analyst",
				Config:    cfg,
			})
			require.NoError(t, err)

			_, err = f.svc.ResolveSemanticModel(as("alice"), agent.ID)
			assert.ErrorIs(t, err, agentdomain.ErrUnresolvedReference)
		})
	}
}

func TestDeleteAgent(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(as("alice"), agentdomain.CreateRequest{ProjectID: f.projectA.String(), Name: "Analyst"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(as("bob"), created.ID), agentdomain.ErrNotFound)
	require.NoError(t, f.svc.Delete(as("alice"), created.ID))

	list, err := f.svc.List(as("alice"), agentdomain.ListRequest{ProjectID: f.projectA.String()})
	require.NoError(t, err)
	assert.Empty(t, list.Agents)
}
