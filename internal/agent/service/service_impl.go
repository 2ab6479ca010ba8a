package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/access"
	agentdomain "github.com/smallbiznis/lunara/internal/agent/domain"
	auditdomain "github.com/smallbiznis/lunara/internal/audit/domain"
	"github.com/smallbiznis/lunara/internal/clock"
	obsmetrics "github.com/smallbiznis/lunara/internal/observability/metrics"
	smdomain "github.com/smallbiznis/lunara/internal/semanticmodel/domain"
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

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	Repo           agentdomain.Repository
	Access         access.Evaluator
	SemanticModels smdomain.Service
	AuditSvc       auditdomain.Service `optional:"true"`
	Metrics        *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	repo           agentdomain.Repository
	access         access.Evaluator
	semanticModels smdomain.Service
	auditSvc       auditdomain.Service
	metrics        *obsmetrics.Metrics
}

func New(p Params) agentdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("agent.service"),
		clock:          p.Clock,
		repo:           p.Repo,
		access:         p.Access,
		semanticModels: p.SemanticModels,
		auditSvc:       p.AuditSvc,
		metrics:        p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req agentdomain.CreateRequest) (*agentdomain.Response, error) {
	projectID, err := agentdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, agentdomain.ErrInvalidProject
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, agentdomain.ErrInvalidName
	}
	cfg, err := jsondoc.Normalize(req.Config)
	if err != nil {
		return nil, agentdomain.ErrInvalidConfig
	}

	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationCreate,
		Kind:      access.KindAgent,
		ProjectID: projectID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	now := s.clock.Now()
	item := &agentdomain.Agent{
		ID:           uuid.New(),
		ProjectID:    projectID,
		Name:         name,
		Description:  normalizeOptional(req.Description),
		Instructions: req.Instructions,
		Config:       cfg,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, item); err != nil {
		return nil, err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "agent.create", item.ID, map[string]any{"name": name})
	return toResponse(item), nil
}

func (s *Service) List(ctx context.Context, req agentdomain.ListRequest) (*agentdomain.ListResponse, error) {
	projectID, err := agentdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, agentdomain.ErrInvalidProject
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindAgent,
		ProjectID: projectID,
	}); err != nil {
		return nil, accessError(err)
	}

	var cursor *agentdomain.ListCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, agentdomain.ErrInvalidPageToken
		}
		createdAt, err := decoded.CreatedAtTime()
		if err != nil {
			return nil, agentdomain.ErrInvalidPageToken
		}
		id, err := agentdomain.ParseID(decoded.ID)
		if err != nil {
			return nil, agentdomain.ErrInvalidPageToken
		}
		cursor = &agentdomain.ListCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, projectID, cursor, limit)
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(a *agentdomain.Agent) string {
		token, err := pagination.EncodeCursor(pagination.CursorFor(a.ID.String(), a.CreatedAt))
		if err != nil {
			return ""
		}
		return token
	})

	resp := &agentdomain.ListResponse{Agents: make([]agentdomain.Response, 0, len(items))}
	for _, item := range items {
		resp.Agents = append(resp.Agents, *toResponse(item))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*agentdomain.Response, error) {
	item, err := s.load(ctx, id, access.OperationRead)
	if err != nil {
		return nil, err
	}
	return toResponse(item), nil
}

func (s *Service) Update(ctx context.Context, req agentdomain.UpdateRequest) (*agentdomain.Response, error) {
	agentID, err := agentdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, agentdomain.ErrInvalidID
	}

	var name *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, agentdomain.ErrInvalidName
		}
		name = &trimmed
	}
	var cfg map[string]any
	if req.Config != nil {
		cfg, err = jsondoc.Normalize(req.Config)
		if err != nil {
			return nil, agentdomain.ErrInvalidConfig
		}
	}

	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationUpdate,
		Kind:      access.KindAgent,
		TargetID:  agentID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	var (
		item    *agentdomain.Agent
		changed bool
	)
	err = db.RetryStale(func() error {
		current, err := s.repo.FindByID(ctx, s.db, agentID)
		if err != nil {
			return err
		}
		if current == nil {
			return agentdomain.ErrNotFound
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
		if req.Instructions != nil && !equalOptional(req.Instructions, current.Instructions) {
			item.Instructions = req.Instructions
			changed = true
		}
		if cfg != nil && !jsondoc.Equal(cfg, current.Config) {
			item.Config = cfg
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
		s.recordWrite(ctx, decision.OwnerOrganizationID, "agent.update", item.ID, map[string]any{"name": item.Name})
	}
	return toResponse(item), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	agentID, err := agentdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return agentdomain.ErrInvalidID
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationDelete,
		Kind:      access.KindAgent,
		TargetID:  agentID,
	})
	if err != nil {
		return accessError(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrganization(tx, decision.OwnerOrganizationID.String()); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, agentID)
	})
	if err != nil {
		return err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "agent.delete", agentID, nil)
	return nil
}

func (s *Service) ResolveSemanticModel(ctx context.Context, id string) (*smdomain.Response, error) {
	item, err := s.load(ctx, id, access.OperationRead)
	if err != nil {
		return nil, err
	}

	ref, _ := item.Config[agentdomain.ConfigSemanticModelID].(string)
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, agentdomain.ErrUnresolvedReference
	}

	model, err := s.semanticModels.GetByID(ctx, ref)
	if err != nil {
		if errors.Is(err, smdomain.ErrNotFound) || errors.Is(err, smdomain.ErrInvalidID) {
			s.log.Debug("agent references a missing semantic model",
				zap.String("agent_id", item.ID.String()),
				zap.String("semantic_model_id", ref),
			)
			return nil, agentdomain.ErrUnresolvedReference
		}
		return nil, err
	}
	return model, nil
}

func (s *Service) load(ctx context.Context, id string, op access.Operation) (*agentdomain.Agent, error) {
	agentID, err := agentdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, agentdomain.ErrInvalidID
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: op,
		Kind:      access.KindAgent,
		TargetID:  agentID,
	}); err != nil {
		return nil, accessError(err)
	}

	item, err := s.repo.FindByID(ctx, s.db, agentID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, agentdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) recordWrite(ctx context.Context, orgID uuid.UUID, action string, targetID uuid.UUID, metadata map[string]any) {
	s.metrics.RecordEntityWrite(ctx, string(access.KindAgent), action)
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, string(access.KindAgent), &target, metadata)
}

func accessError(err error) error {
	if errors.Is(err, access.ErrNotFound) {
		return agentdomain.ErrNotFound
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

func toResponse(a *agentdomain.Agent) *agentdomain.Response {
	resp := &agentdomain.Response{
		ID:           a.ID.String(),
		ProjectID:    a.ProjectID.String(),
		Name:         a.Name,
		Description:  a.Description,
		Instructions: a.Instructions,
		Config:       map[string]any(a.Config),
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
	if resp.Config == nil {
		resp.Config = map[string]any{}
	}
	return resp
}
