package access

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
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
	db          *gorm.DB
	evaluator   Evaluator
	orgA        uuid.UUID
	orgB        uuid.UUID
	projectA    uuid.UUID
	dataSourceA uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	enforcer, err := NewEnforcer(db, zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		db: db,
		evaluator: NewEvaluator(Params{
			DB:        db,
			Log:       zap.NewNop(),
			Enforcer:  enforcer,
			Directory: orgservice.NewDirectory(orgrepository.NewRepository(db)),
		}),
		orgA:        uuid.New(),
		orgB:        uuid.New(),
		projectA:    uuid.New(),
		dataSourceA: uuid.New(),
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	exec := func(sql string, args ...any) {
		require.NoError(t, db.Exec(sql, args...).Error)
	}
	exec(`INSERT INTO organizations (id, name, slug, created_at) VALUES (?, 'Acme', 'acme', ?)`, f.orgA, now)
	exec(`INSERT INTO organizations (id, name, slug, created_at) VALUES (?, 'Globex', 'globex', ?)`, f.orgB, now)
	exec(`INSERT INTO profiles (principal_id, organization_id, created_at, updated_at) VALUES ('alice', ?, ?, ?)`, f.orgA, now, now)
	exec(`INSERT INTO profiles (principal_id, organization_id, created_at, updated_at) VALUES ('bob', ?, ?, ?)`, f.orgB, now, now)
	exec(`INSERT INTO projects (id, organization_id, name, created_at, updated_at) VALUES (?, ?, 'Reporting', ?, ?)`, f.projectA, f.orgA, now, now)
	exec(`INSERT INTO data_sources (id, project_id, type, name, config, status, created_at, updated_at)
		VALUES (?, ?, 'postgres', 'Warehouse', '{}', 'pending', ?, ?)`, f.dataSourceA, f.projectA, now, now)
	return f
}

func as(principal string) context.Context {
	return orgcontext.WithPrincipal(context.Background(), principal)
}

func TestEvaluateAllowsOwnOrganization(t *testing.T) {
	f := newFixture(t)

	decision, err := f.evaluator.Require(as("alice"), Request{
		Operation: OperationRead,
		Kind:      KindDataSource,
		TargetID:  f.dataSourceA,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, f.orgA, decision.OwnerOrganizationID)
	assert.Equal(t, f.projectA, decision.ProjectID)
}

func TestCrossTenantIsIndistinguishableFromMissing(t *testing.T) {
	f := newFixture(t)

	_, crossErr := f.evaluator.Require(as("bob"), Request{
		Operation: OperationRead,
		Kind:      KindDataSource,
		TargetID:  f.dataSourceA,
	})
	_, missingErr := f.evaluator.Require(as("bob"), Request{
		Operation: OperationRead,
		Kind:      KindDataSource,
		TargetID:  uuid.New(),
	})

	require.ErrorIs(t, crossErr, ErrNotFound)
	require.ErrorIs(t, missingErr, ErrNotFound)
	assert.Equal(t, crossErr.Error(), missingErr.Error())
}

func TestEvaluateDenyReasons(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		ctx    context.Context
		req    Request
		reason string
	}{
		{
			name:   "no principal",
			ctx:    context.Background(),
			req:    Request{Operation: OperationRead, Kind: KindProject, TargetID: f.projectA},
			reason: ReasonUnauthenticated,
		},
		{
			name:   "principal without profile",
			ctx:    as("mallory"),
			req:    Request{Operation: OperationRead, Kind: KindProject, TargetID: f.projectA},
			reason: ReasonNoProfile,
		},
		{
			name:   "other organization",
			ctx:    as("bob"),
			req:    Request{Operation: OperationUpdate, Kind: KindProject, TargetID: f.projectA},
			reason: ReasonCrossTenant,
		},
		{
			name:   "child create under foreign project",
			ctx:    as("bob"),
			req:    Request{Operation: OperationCreate, Kind: KindAgent, ProjectID: f.projectA},
			reason: ReasonCrossTenant,
		},
		{
			name:   "project create in foreign organization",
			ctx:    as("alice"),
			req:    Request{Operation: OperationCreate, Kind: KindProject, OrganizationID: f.orgB},
			reason: ReasonCrossTenant,
		},
		{
			name:   "unknown project",
			ctx:    as("alice"),
			req:    Request{Operation: OperationCreate, Kind: KindArtifact, ProjectID: uuid.New()},
			reason: ReasonNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := f.evaluator.Evaluate(tt.ctx, tt.req)
			require.NoError(t, err)
			assert.False(t, decision.Allowed)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}
}

func TestRequireUnauthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.evaluator.Require(context.Background(), Request{
		Operation: OperationRead,
		Kind:      KindProject,
		TargetID:  f.projectA,
	})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestOwnerIsDerivedFromLiveProjectRow(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Exec(`UPDATE projects SET organization_id = ? WHERE id = ?`, f.orgB, f.projectA).Error)

	_, err := f.evaluator.Require(as("alice"), Request{
		Operation: OperationRead,
		Kind:      KindDataSource,
		TargetID:  f.dataSourceA,
	})
	assert.ErrorIs(t, err, ErrNotFound)

	decision, err := f.evaluator.Require(as("bob"), Request{
		Operation: OperationRead,
		Kind:      KindDataSource,
		TargetID:  f.dataSourceA,
	})
	require.NoError(t, err)
	assert.Equal(t, f.orgB, decision.OwnerOrganizationID)
}

func TestRemovedPolicyRowDeniesAndSurvivesRestart(t *testing.T) {
	f := newFixture(t)

	enforcer, err := NewEnforcer(f.db, zap.NewNop())
	require.NoError(t, err)
	removed, err := enforcer.RemovePolicy(string(KindDataSource), string(OperationDelete))
	require.NoError(t, err)
	require.True(t, removed)

	reloaded, err := NewEnforcer(f.db, zap.NewNop())
	require.NoError(t, err)
	has, err := reloaded.HasPolicy(string(KindDataSource), string(OperationDelete))
	require.NoError(t, err)
	assert.False(t, has)

	evaluator := NewEvaluator(Params{
		DB:        f.db,
		Log:       zap.NewNop(),
		Enforcer:  reloaded,
		Directory: orgservice.NewDirectory(orgrepository.NewRepository(f.db)),
	})
	decision, err := evaluator.Evaluate(as("alice"), Request{
		Operation: OperationDelete,
		Kind:      KindDataSource,
		TargetID:  f.dataSourceA,
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonPolicy, decision.Reason)

	_, err = evaluator.Require(as("alice"), Request{
		Operation: OperationRead,
		Kind:      KindDataSource,
		TargetID:  f.dataSourceA,
	})
	assert.NoError(t, err)
}

func TestCallerOrganization(t *testing.T) {
	f := newFixture(t)

	orgID, err := f.evaluator.CallerOrganization(as("alice"))
	require.NoError(t, err)
	assert.Equal(t, f.orgA, orgID)

	_, err = f.evaluator.CallerOrganization(as("mallory"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.evaluator.CallerOrganization(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
