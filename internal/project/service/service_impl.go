package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/access"
	auditdomain "github.com/smallbiznis/lunara/internal/audit/domain"
	"github.com/smallbiznis/lunara/internal/clock"
	obsmetrics "github.com/smallbiznis/lunara/internal/observability/metrics"
	"github.com/smallbiznis/lunara/internal/orgcontext"
	projectdomain "github.com/smallbiznis/lunara/internal/project/domain"
	"github.com/smallbiznis/lunara/pkg/db"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
	"github.com/smallbiznis/lunara/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     projectdomain.Repository
	Access   access.Evaluator
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     projectdomain.Repository
	access   access.Evaluator
	auditSvc auditdomain.Service
	metrics  *obsmetrics.Metrics
}

func New(p Params) projectdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("project.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		access:   p.Access,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req projectdomain.CreateRequest) (*projectdomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, projectdomain.ErrInvalidName
	}

	orgID, err := s.access.CallerOrganization(ctx)
	if err != nil {
		return nil, accessError(err)
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation:      access.OperationCreate,
		Kind:           access.KindProject,
		OrganizationID: orgID,
	}); err != nil {
		return nil, accessError(err)
	}

	now := s.clock.Now()
	project := &projectdomain.Project{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           name,
		Description:    normalizeOptional(req.Description),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if principal, ok := orgcontext.PrincipalFromContext(ctx); ok {
		project.CreatedBy = &principal
	}

	if err := s.repo.Insert(ctx, s.db, project); err != nil {
		return nil, err
	}

	s.recordWrite(ctx, orgID, "project.create", project.ID, map[string]any{"name": name})
	return toResponse(project), nil
}

func (s *Service) List(ctx context.Context, req projectdomain.ListRequest) (*projectdomain.ListResponse, error) {
	orgID, err := s.access.CallerOrganization(ctx)
	if err != nil {
		return nil, accessError(err)
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation:      access.OperationRead,
		Kind:           access.KindProject,
		OrganizationID: orgID,
	}); err != nil {
		return nil, accessError(err)
	}

	var cursor *projectdomain.ListCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, projectdomain.ErrInvalidPageToken
		}
		createdAt, err := decoded.CreatedAtTime()
		if err != nil {
			return nil, projectdomain.ErrInvalidPageToken
		}
		id, err := projectdomain.ParseID(decoded.ID)
		if err != nil {
			return nil, projectdomain.ErrInvalidPageToken
		}
		cursor = &projectdomain.ListCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, orgID, cursor, limit)
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(p *projectdomain.Project) string {
		token, err := pagination.EncodeCursor(pagination.CursorFor(p.ID.String(), p.CreatedAt))
		if err != nil {
			return ""
		}
		return token
	})

	resp := &projectdomain.ListResponse{Projects: make([]projectdomain.Response, 0, len(items))}
	for _, item := range items {
		resp.Projects = append(resp.Projects, *toResponse(item))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*projectdomain.Response, error) {
	projectID, err := projectdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, projectdomain.ErrInvalidID
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindProject,
		TargetID:  projectID,
	}); err != nil {
		return nil, accessError(err)
	}

	item, err := s.repo.FindByID(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, projectdomain.ErrNotFound
	}
	return toResponse(item), nil
}

func (s *Service) Update(ctx context.Context, req projectdomain.UpdateRequest) (*projectdomain.Response, error) {
	projectID, err := projectdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, projectdomain.ErrInvalidID
	}

	var name *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, projectdomain.ErrInvalidName
		}
		name = &trimmed
	}

	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationUpdate,
		Kind:      access.KindProject,
		TargetID:  projectID,
	}); err != nil {
		return nil, accessError(err)
	}

	var (
		item    *projectdomain.Project
		changed bool
	)
	err = db.RetryStale(func() error {
		current, err := s.repo.FindByID(ctx, s.db, projectID)
		if err != nil {
			return err
		}
		if current == nil {
			return projectdomain.ErrNotFound
		}

		item = current
		changed = false
		if name != nil && *name != current.Name {
			item.Name = *name
			changed = true
		}
		if req.Description != nil {
			description := normalizeOptional(req.Description)
			if !equalOptional(description, current.Description) {
				item.Description = description
				changed = true
			}
		}
		if !changed {
			return nil
		}

		prev := item.UpdatedAt
		item.UpdatedAt = clock.NextUpdate(s.clock, prev)
		return db.CheckAffected(s.repo.Update(ctx, s.db, item, prev))
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recordWrite(ctx, item.OrganizationID, "project.update", item.ID, map[string]any{"name": item.Name})
	}
	return toResponse(item), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	projectID, err := projectdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return projectdomain.ErrInvalidID
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationDelete,
		Kind:      access.KindProject,
		TargetID:  projectID,
	})
	if err != nil {
		return accessError(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrganization(tx, decision.OwnerOrganizationID.String()); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, projectID)
	})
	if err != nil {
		s.log.Error("project cascade delete failed", zap.String("project_id", projectID.String()), zap.Error(err))
		return err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "project.delete", projectID, nil)
	return nil
}

func (s *Service) recordWrite(ctx context.Context, orgID uuid.UUID, action string, targetID uuid.UUID, metadata map[string]any) {
	s.metrics.RecordEntityWrite(ctx, string(access.KindProject), action)
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, string(access.KindProject), &target, metadata)
}

func accessError(err error) error {
	if errors.Is(err, access.ErrNotFound) {
		return projectdomain.ErrNotFound
	}
	return err
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func toResponse(p *projectdomain.Project) *projectdomain.Response {
	return &projectdomain.Response{
		ID:             p.ID.String(),
		OrganizationID: p.OrganizationID.String(),
		Name:           p.Name,
		Description:    p.Description,
		CreatedBy:      p.CreatedBy,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}
