package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/access"
	artifactdomain "github.com/smallbiznis/lunara/internal/artifact/domain"
	auditdomain "github.com/smallbiznis/lunara/internal/audit/domain"
	"github.com/smallbiznis/lunara/internal/clock"
	obsmetrics "github.com/smallbiznis/lunara/internal/observability/metrics"
	"github.com/smallbiznis/lunara/internal/orgcontext"
	"github.com/smallbiznis/lunara/pkg/db"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
	"github.com/smallbiznis/lunara/pkg/jsondoc"
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
	Repo     artifactdomain.Repository
	Access   access.Evaluator
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     artifactdomain.Repository
	access   access.Evaluator
	auditSvc auditdomain.Service
	metrics  *obsmetrics.Metrics
}

func New(p Params) artifactdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("artifact.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		access:   p.Access,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req artifactdomain.CreateRequest) (*artifactdomain.Response, error) {
	projectID, err := artifactdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, artifactdomain.ErrInvalidProject
	}
	artifactType := strings.ToLower(strings.TrimSpace(req.Type))
	if !artifactdomain.IsValidType(artifactType) {
		return nil, artifactdomain.ErrInvalidType
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, artifactdomain.ErrInvalidName
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = artifactdomain.StatusDraft
	}
	if !artifactdomain.IsValidStatus(status) {
		return nil, artifactdomain.ErrInvalidStatus
	}
	content, err := jsondoc.Normalize(req.Content)
	if err != nil {
		return nil, artifactdomain.ErrInvalidContent
	}

	principal, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || strings.TrimSpace(principal) == "" {
		return nil, access.ErrUnauthenticated
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationCreate,
		Kind:      access.KindArtifact,
		ProjectID: projectID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	now := s.clock.Now()
	item := &artifactdomain.Artifact{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Type:        artifactType,
		Name:        name,
		Description: normalizeOptional(req.Description),
		Content:     content,
		Status:      status,
		CreatedBy:   principal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, item); err != nil {
		return nil, err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "artifact.create", item.ID, map[string]any{
		"name":   name,
		"type":   artifactType,
		"status": status,
	})
	return toResponse(item), nil
}

func (s *Service) List(ctx context.Context, req artifactdomain.ListRequest) (*artifactdomain.ListResponse, error) {
	projectID, err := artifactdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, artifactdomain.ErrInvalidProject
	}
	filter := artifactdomain.ListFilter{
		ProjectID: projectID,
		Type:      strings.ToLower(strings.TrimSpace(req.Type)),
		Status:    strings.ToLower(strings.TrimSpace(req.Status)),
		Limit:     req.Limit(),
	}
	if filter.Type != "" && !artifactdomain.IsValidType(filter.Type) {
		return nil, artifactdomain.ErrInvalidType
	}
	if filter.Status != "" && !artifactdomain.IsValidStatus(filter.Status) {
		return nil, artifactdomain.ErrInvalidStatus
	}

	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindArtifact,
		ProjectID: projectID,
	}); err != nil {
		return nil, accessError(err)
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, artifactdomain.ErrInvalidPageToken
		}
		createdAt, err := decoded.CreatedAtTime()
		if err != nil {
			return nil, artifactdomain.ErrInvalidPageToken
		}
		id, err := artifactdomain.ParseID(decoded.ID)
		if err != nil {
			return nil, artifactdomain.ErrInvalidPageToken
		}
		filter.Cursor = &artifactdomain.ListCursor{ID: id, CreatedAt: createdAt}
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(a *artifactdomain.Artifact) string {
		token, err := pagination.EncodeCursor(pagination.CursorFor(a.ID.String(), a.CreatedAt))
		if err != nil {
			return ""
		}
		return token
	})

	resp := &artifactdomain.ListResponse{Artifacts: make([]artifactdomain.Response, 0, len(items))}
	for _, item := range items {
		resp.Artifacts = append(resp.Artifacts, *toResponse(item))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*artifactdomain.Response, error) {
	artifactID, err := artifactdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, artifactdomain.ErrInvalidID
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindArtifact,
		TargetID:  artifactID,
	}); err != nil {
		return nil, accessError(err)
	}

	item, err := s.repo.FindByID(ctx, s.db, artifactID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, artifactdomain.ErrNotFound
	}
	return toResponse(item), nil
}

func (s *Service) Content(ctx context.Context, id string) (*artifactdomain.ContentResponse, error) {
	artifactID, err := artifactdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, artifactdomain.ErrInvalidID
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindArtifact,
		TargetID:  artifactID,
	}); err != nil {
		return nil, accessError(err)
	}

	item, err := s.repo.FindByID(ctx, s.db, artifactID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, artifactdomain.ErrNotFound
	}

	view, err := item.View()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", artifactdomain.ErrInvalidContent, err)
	}
	return &artifactdomain.ContentResponse{
		ID:        item.ID.String(),
		Type:      item.Type,
		Status:    item.Status,
		Content:   view,
		UpdatedAt: item.UpdatedAt.UTC(),
	}, nil
}

func (s *Service) Update(ctx context.Context, req artifactdomain.UpdateRequest) (*artifactdomain.Response, error) {
	artifactID, err := artifactdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, artifactdomain.ErrInvalidID
	}

	var name *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, artifactdomain.ErrInvalidName
		}
		name = &trimmed
	}
	var status *string
	if req.Status != nil {
		normalized := strings.ToLower(strings.TrimSpace(*req.Status))
		if !artifactdomain.IsValidStatus(normalized) {
			return nil, artifactdomain.ErrInvalidStatus
		}
		status = &normalized
	}
	var content map[string]any
	if req.Content != nil {
		content, err = jsondoc.Normalize(req.Content)
		if err != nil {
			return nil, artifactdomain.ErrInvalidContent
		}
	}

	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationUpdate,
		Kind:      access.KindArtifact,
		TargetID:  artifactID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	var (
		item    *artifactdomain.Artifact
		changed bool
	)
	err = db.RetryStale(func() error {
		current, err := s.repo.FindByID(ctx, s.db, artifactID)
		if err != nil {
			return err
		}
		if current == nil {
			return artifactdomain.ErrNotFound
		}
		if req.Type != nil && strings.ToLower(strings.TrimSpace(*req.Type)) != current.Type {
			return artifactdomain.ErrTypeImmutable
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
		if content != nil && !jsondoc.Equal(content, current.Content) {
			item.Content = content
			changed = true
		}
		if status != nil && *status != current.Status {
			item.Status = *status
			changed = true
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
		s.recordWrite(ctx, decision.OwnerOrganizationID, "artifact.update", item.ID, map[string]any{
			"name":   item.Name,
			"status": item.Status,
		})
	}
	return toResponse(item), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	artifactID, err := artifactdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return artifactdomain.ErrInvalidID
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationDelete,
		Kind:      access.KindArtifact,
		TargetID:  artifactID,
	})
	if err != nil {
		return accessError(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrganization(tx, decision.OwnerOrganizationID.String()); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, artifactID)
	})
	if err != nil {
		return err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "artifact.delete", artifactID, nil)
	return nil
}

func (s *Service) recordWrite(ctx context.Context, orgID uuid.UUID, action string, targetID uuid.UUID, metadata map[string]any) {
	s.metrics.RecordEntityWrite(ctx, string(access.KindArtifact), action)
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, string(access.KindArtifact), &target, metadata)
}

func accessError(err error) error {
	if errors.Is(err, access.ErrNotFound) {
		return artifactdomain.ErrNotFound
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

func toResponse(a *artifactdomain.Artifact) *artifactdomain.Response {
	resp := &artifactdomain.Response{
		ID:          a.ID.String(),
		ProjectID:   a.ProjectID.String(),
		Type:        a.Type,
		Name:        a.Name,
		Description: a.Description,
		Content:     map[string]any(a.Content),
		Status:      a.Status,
		CreatedBy:   a.CreatedBy,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
	if resp.Content == nil {
		resp.Content = map[string]any{}
	}
	return resp
}
