package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/google/uuid"
	obsmetrics "github.com/smallbiznis/lunara/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/lunara/internal/organization/domain"
	"github.com/smallbiznis/lunara/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Enforcer  *casbin.SyncedEnforcer
	Directory organizationdomain.Directory
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type evaluator struct {
	db        *gorm.DB
	log       *zap.Logger
	enforcer  *casbin.SyncedEnforcer
	directory organizationdomain.Directory
	metrics   *obsmetrics.Metrics
	repo      *repo
}

func NewEvaluator(p Params) Evaluator {
	return &evaluator{
		db:        p.DB,
		log:       p.Log.Named("access.evaluator"),
		enforcer:  p.Enforcer,
		directory: p.Directory,
		metrics:   p.Metrics,
		repo:      &repo{},
	}
}

func (e *evaluator) Evaluate(ctx context.Context, req Request) (Decision, error) {
	principal := strings.TrimSpace(req.PrincipalID)
	if principal == "" {
		principal, _ = orgcontext.PrincipalFromContext(ctx)
	}
	decision := Decision{PrincipalID: principal}
	if principal == "" {
		return e.deny(ctx, req, decision, ReasonUnauthenticated), nil
	}

	callerOrg, err := e.directory.OrganizationOf(ctx, principal)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrNoProfile) {
			return e.deny(ctx, req, decision, ReasonNoProfile), nil
		}
		return decision, err
	}
	decision.CallerOrganizationID = callerOrg

	switch {
	case req.TargetID != uuid.Nil:
		owner, err := e.repo.ownerOfTarget(ctx, e.db, req.Kind, req.TargetID)
		if err != nil {
			return decision, err
		}
		if owner == nil {
			return e.deny(ctx, req, decision, ReasonNotFound), nil
		}
		decision.OwnerOrganizationID = owner.OrganizationID
		decision.ProjectID = owner.ProjectID
	case req.ProjectID != uuid.Nil:
		owner, err := e.repo.ownerOfProject(ctx, e.db, req.ProjectID)
		if err != nil {
			return decision, err
		}
		if owner == nil {
			return e.deny(ctx, req, decision, ReasonNotFound), nil
		}
		decision.OwnerOrganizationID = owner.OrganizationID
		decision.ProjectID = owner.ProjectID
	case req.OrganizationID != uuid.Nil:
		exists, err := e.repo.organizationExists(ctx, e.db, req.OrganizationID)
		if err != nil {
			return decision, err
		}
		if !exists {
			return e.deny(ctx, req, decision, ReasonNotFound), nil
		}
		decision.OwnerOrganizationID = req.OrganizationID
	default:
		return decision, ErrInvalidRequest
	}

	if decision.OwnerOrganizationID != callerOrg {
		return e.deny(ctx, req, decision, ReasonCrossTenant), nil
	}

	allowed, err := e.enforcer.Enforce(
		orgSubject(callerOrg),
		orgSubject(decision.OwnerOrganizationID),
		string(req.Kind),
		string(req.Operation),
	)
	if err != nil {
		return decision, err
	}
	if !allowed {
		return e.deny(ctx, req, decision, ReasonPolicy), nil
	}

	decision.Allowed = true
	return decision, nil
}

func (e *evaluator) Require(ctx context.Context, req Request) (Decision, error) {
	decision, err := e.Evaluate(ctx, req)
	if err != nil {
		return decision, err
	}
	if decision.Allowed {
		return decision, nil
	}
	if decision.Reason == ReasonUnauthenticated {
		return decision, ErrUnauthenticated
	}
	return decision, ErrNotFound
}

func (e *evaluator) CallerOrganization(ctx context.Context) (uuid.UUID, error) {
	principal, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok {
		return uuid.Nil, ErrUnauthenticated
	}
	orgID, err := e.directory.OrganizationOf(ctx, principal)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrNoProfile) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return orgID, nil
}

func (e *evaluator) deny(ctx context.Context, req Request, decision Decision, reason string) Decision {
	decision.Allowed = false
	decision.Reason = reason
	e.metrics.RecordAccessDenied(ctx, string(req.Kind), string(req.Operation), reason)
	e.log.Debug("access denied",
		zap.String("principal_id", decision.PrincipalID),
		zap.String("kind", string(req.Kind)),
		zap.String("operation", string(req.Operation)),
		zap.String("reason", reason),
	)
	return decision
}

func orgSubject(orgID uuid.UUID) string {
	return fmt.Sprintf("org:%s", orgID)
}
