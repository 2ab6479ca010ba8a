package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/access"
	auditdomain "github.com/smallbiznis/lunara/internal/audit/domain"
	"github.com/smallbiznis/lunara/internal/clock"
	credentialdomain "github.com/smallbiznis/lunara/internal/credential/domain"
	dsdomain "github.com/smallbiznis/lunara/internal/datasource/domain"
	obsmetrics "github.com/smallbiznis/lunara/internal/observability/metrics"
	"github.com/smallbiznis/lunara/internal/ratelimit"
	smdomain "github.com/smallbiznis/lunara/internal/semanticmodel/domain"
	"github.com/smallbiznis/lunara/internal/warehouse"
	"github.com/smallbiznis/lunara/pkg/db"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
	"github.com/smallbiznis/lunara/pkg/jsondoc"
	"github.com/smallbiznis/lunara/pkg/rls"
	"github.com/smallbiznis/lunara/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        smdomain.Repository
	DataSources dsdomain.Repository
	Access      access.Evaluator
	Credentials credentialdomain.Store
	Scanner     warehouse.Scanner
	Limiter     *ratelimit.GenerateLimiter `optional:"true"`
	Telemetry   *telemetry.Metrics         `optional:"true"`
	AuditSvc    auditdomain.Service        `optional:"true"`
	Metrics     *obsmetrics.Metrics        `optional:"true"`
}

type generateLimiter interface {
	Allow(ctx context.Context, orgID string) (time.Duration, error)
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        smdomain.Repository
	dataSources dsdomain.Repository
	access      access.Evaluator
	credentials credentialdomain.Store
	scanner     warehouse.Scanner
	limiter     generateLimiter
	telemetry   *telemetry.Metrics
	auditSvc    auditdomain.Service
	metrics     *obsmetrics.Metrics
}

func New(p Params) smdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("semanticmodel.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		dataSources: p.DataSources,
		access:      p.Access,
		credentials: p.Credentials,
		scanner:     p.Scanner,
		limiter:     p.Limiter,
		telemetry:   p.Telemetry,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) Generate(ctx context.Context, req smdomain.GenerateRequest) (*smdomain.Response, error) {
	projectID, err := smdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, smdomain.ErrInvalidProject
	}
	dsID, err := smdomain.ParseID(strings.TrimSpace(req.DataSourceID))
	if err != nil {
		return nil, smdomain.ErrInvalidDataSource
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, smdomain.ErrInvalidName
	}
	var modelID *uuid.UUID
	if req.ID != nil {
		parsed, err := smdomain.ParseID(strings.TrimSpace(*req.ID))
		if err != nil {
			return nil, smdomain.ErrInvalidID
		}
		modelID = &parsed
	}

	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationCreate,
		Kind:      access.KindSemanticModel,
		ProjectID: projectID,
	})
	if err != nil {
		return nil, accessError(err)
	}
	if modelID != nil {
		existing, err := s.access.Require(ctx, access.Request{
			Operation: access.OperationUpdate,
			Kind:      access.KindSemanticModel,
			TargetID:  *modelID,
		})
		if err != nil {
			return nil, accessError(err)
		}
		if existing.ProjectID != projectID {
			return nil, smdomain.ErrNotFound
		}
	}

	source, err := s.dataSource(ctx, projectID, dsID)
	if err != nil {
		return nil, err
	}

	orgID := decision.OwnerOrganizationID.String()
	if wait, err := s.limiter.Allow(ctx, orgID); err != nil {
		s.telemetry.RecordGenerateThrottled("org_bucket_empty")
		return nil, &ratelimit.RetryAfterError{RetryAfter: wait}
	}

	creds, err := s.credentials.Get(ctx, source.ID, source.Type)
	if err != nil && !errors.Is(err, credentialdomain.ErrNotFound) {
		return nil, err
	}

	doc, err := s.scanner.Scan(ctx, warehouse.DataSource{
		ID:     source.ID,
		Type:   source.Type,
		Config: map[string]any(source.Config),
	}, warehouse.Credentials(creds), warehouse.ScanOptions{Tables: req.Tables})
	if err != nil {
		if !errors.Is(err, warehouse.ErrCollaborator) {
			err = fmt.Errorf("%w: %w", warehouse.ErrCollaborator, err)
		}
		return nil, err
	}

	model, err := normalizeModel(doc)
	if err != nil {
		s.log.Warn("scanner returned an invalid semantic model",
			zap.String("data_source_id", dsID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	item := &smdomain.SemanticModel{
		ProjectID:    projectID,
		DataSourceID: &source.ID,
		Name:         name,
		Description:  normalizeOptional(req.Description),
		Model:        model,
		SourceType:   source.Type,
		TableCount:   smdomain.TableCount(model),
	}
	if modelID == nil {
		now := s.clock.Now()
		item.ID = uuid.New()
		item.CreatedAt = now
		item.UpdatedAt = now
		if err := s.repo.Insert(ctx, s.db, item); err != nil {
			return nil, err
		}
	} else {
		item, err = s.replace(ctx, *modelID, item, req.Description != nil)
		if err != nil {
			return nil, err
		}
	}

	s.telemetry.ObserveModelTables(item.SourceType, item.TableCount)
	s.recordWrite(ctx, decision.OwnerOrganizationID, "semantic_model.generate", item.ID, map[string]any{
		"data_source_id": dsID.String(),
		"table_count":    item.TableCount,
		"regenerated":    modelID != nil,
	})
	return toResponse(item), nil
}

// replace overwrites the generated fields of model id with next, keeping id
// and created_at.
func (s *Service) replace(ctx context.Context, id uuid.UUID, next *smdomain.SemanticModel, withDescription bool) (*smdomain.SemanticModel, error) {
	var item *smdomain.SemanticModel
	err := db.RetryStale(func() error {
		current, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return err
		}
		if current == nil {
			return smdomain.ErrNotFound
		}

		item = current
		changed := false
		if next.Name != current.Name {
			item.Name = next.Name
			changed = true
		}
		if withDescription && !equalOptional(next.Description, current.Description) {
			item.Description = next.Description
			changed = true
		}
		if !equalUUID(next.DataSourceID, current.DataSourceID) {
			item.DataSourceID = next.DataSourceID
			changed = true
		}
		if next.SourceType != current.SourceType {
			item.SourceType = next.SourceType
			changed = true
		}
		if !jsondoc.Equal(next.Model, current.Model) || current.TableCount != next.TableCount {
			item.Model = next.Model
			item.TableCount = next.TableCount
			changed = true
		}
		if !changed {
			return nil
		}

		prev := item.UpdatedAt
		item.UpdatedAt = clock.NextUpdate(s.clock, prev)
		return db.CheckAffected(s.repo.Update(ctx, s.db, item, prev))
	})
	return item, err
}

func (s *Service) Create(ctx context.Context, req smdomain.CreateRequest) (*smdomain.Response, error) {
	projectID, err := smdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, smdomain.ErrInvalidProject
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, smdomain.ErrInvalidName
	}
	var dsID *uuid.UUID
	if req.DataSourceID != nil && strings.TrimSpace(*req.DataSourceID) != "" {
		parsed, err := smdomain.ParseID(strings.TrimSpace(*req.DataSourceID))
		if err != nil {
			return nil, smdomain.ErrInvalidDataSource
		}
		dsID = &parsed
	}
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	if sourceType != "" && !dsdomain.IsValidType(sourceType) {
		return nil, smdomain.ErrInvalidSourceType
	}
	if sourceType == "" && dsID == nil {
		return nil, smdomain.ErrInvalidSourceType
	}
	model, err := normalizeModel(req.Model)
	if err != nil {
		return nil, err
	}

	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationCreate,
		Kind:      access.KindSemanticModel,
		ProjectID: projectID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	if dsID != nil {
		source, err := s.dataSource(ctx, projectID, *dsID)
		if err != nil {
			return nil, err
		}
		if sourceType != "" && sourceType != source.Type {
			return nil, smdomain.ErrInvalidSourceType
		}
		sourceType = source.Type
	}

	now := s.clock.Now()
	item := &smdomain.SemanticModel{
		ID:           uuid.New(),
		ProjectID:    projectID,
		DataSourceID: dsID,
		Name:         name,
		Description:  normalizeOptional(req.Description),
		Model:        model,
		SourceType:   sourceType,
		TableCount:   smdomain.TableCount(model),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, item); err != nil {
		return nil, err
	}

	s.telemetry.ObserveModelTables(item.SourceType, item.TableCount)
	s.recordWrite(ctx, decision.OwnerOrganizationID, "semantic_model.create", item.ID, map[string]any{
		"name":        name,
		"table_count": item.TableCount,
	})
	return toResponse(item), nil
}

func (s *Service) List(ctx context.Context, req smdomain.ListRequest) (*smdomain.ListResponse, error) {
	projectID, err := smdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, smdomain.ErrInvalidProject
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindSemanticModel,
		ProjectID: projectID,
	}); err != nil {
		return nil, accessError(err)
	}

	var cursor *smdomain.ListCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, smdomain.ErrInvalidPageToken
		}
		createdAt, err := decoded.CreatedAtTime()
		if err != nil {
			return nil, smdomain.ErrInvalidPageToken
		}
		id, err := smdomain.ParseID(decoded.ID)
		if err != nil {
			return nil, smdomain.ErrInvalidPageToken
		}
		cursor = &smdomain.ListCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, projectID, cursor, limit)
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(m *smdomain.SemanticModel) string {
		token, err := pagination.EncodeCursor(pagination.CursorFor(m.ID.String(), m.CreatedAt))
		if err != nil {
			return ""
		}
		return token
	})

	resp := &smdomain.ListResponse{SemanticModels: make([]smdomain.Response, 0, len(items))}
	for _, item := range items {
		if err := smdomain.CheckConsistency(item); err != nil {
			s.log.Error("semantic model is inconsistent", zap.String("semantic_model_id", item.ID.String()), zap.Error(err))
		}
		resp.SemanticModels = append(resp.SemanticModels, *toResponse(item))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*smdomain.Response, error) {
	modelID, err := smdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, smdomain.ErrInvalidID
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindSemanticModel,
		TargetID:  modelID,
	}); err != nil {
		return nil, accessError(err)
	}

	item, err := s.repo.FindByID(ctx, s.db, modelID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, smdomain.ErrNotFound
	}
	if err := smdomain.CheckConsistency(item); err != nil {
		s.log.Error("semantic model is inconsistent", zap.String("semantic_model_id", item.ID.String()), zap.Error(err))
		return nil, err
	}
	return toResponse(item), nil
}

func (s *Service) Update(ctx context.Context, req smdomain.UpdateRequest) (*smdomain.Response, error) {
	modelID, err := smdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, smdomain.ErrInvalidID
	}

	var name *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, smdomain.ErrInvalidName
		}
		name = &trimmed
	}
	var model map[string]any
	if req.Model != nil {
		model, err = normalizeModel(req.Model)
		if err != nil {
			return nil, err
		}
	}

	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationUpdate,
		Kind:      access.KindSemanticModel,
		TargetID:  modelID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	var (
		item    *smdomain.SemanticModel
		changed bool
	)
	err = db.RetryStale(func() error {
		current, err := s.repo.FindByID(ctx, s.db, modelID)
		if err != nil {
			return err
		}
		if current == nil {
			return smdomain.ErrNotFound
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
		if model != nil && !jsondoc.Equal(model, current.Model) {
			item.Model = model
			item.TableCount = smdomain.TableCount(model)
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
		if model != nil {
			s.telemetry.ObserveModelTables(item.SourceType, item.TableCount)
		}
		s.recordWrite(ctx, decision.OwnerOrganizationID, "semantic_model.update", item.ID, map[string]any{
			"name":        item.Name,
			"table_count": item.TableCount,
		})
	}
	return toResponse(item), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	modelID, err := smdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return smdomain.ErrInvalidID
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationDelete,
		Kind:      access.KindSemanticModel,
		TargetID:  modelID,
	})
	if err != nil {
		return accessError(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrganization(tx, decision.OwnerOrganizationID.String()); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, modelID)
	})
	if err != nil {
		return err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "semantic_model.delete", modelID, nil)
	return nil
}

// dataSource loads the data source and checks that it belongs to projectID.
func (s *Service) dataSource(ctx context.Context, projectID, dsID uuid.UUID) (*dsdomain.DataSource, error) {
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindDataSource,
		TargetID:  dsID,
	}); err != nil {
		return nil, accessError(err)
	}
	source, err := s.dataSources.FindByID(ctx, s.db, dsID)
	if err != nil {
		return nil, err
	}
	if source == nil || source.ProjectID != projectID {
		return nil, smdomain.ErrNotFound
	}
	return source, nil
}

func (s *Service) recordWrite(ctx context.Context, orgID uuid.UUID, action string, targetID uuid.UUID, metadata map[string]any) {
	s.metrics.RecordEntityWrite(ctx, string(access.KindSemanticModel), action)
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, string(access.KindSemanticModel), &target, metadata)
}

func normalizeModel(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: model is required", smdomain.ErrInvalidModel)
	}
	model, err := jsondoc.Normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", smdomain.ErrInvalidModel, err)
	}
	if err := smdomain.Validate(model); err != nil {
		return nil, err
	}
	return model, nil
}

func accessError(err error) error {
	if errors.Is(err, access.ErrNotFound) {
		return smdomain.ErrNotFound
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

func equalUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func toResponse(m *smdomain.SemanticModel) *smdomain.Response {
	resp := &smdomain.Response{
		ID:          m.ID.String(),
		ProjectID:   m.ProjectID.String(),
		Name:        m.Name,
		Description: m.Description,
		Model:       map[string]any(m.Model),
		SourceType:  m.SourceType,
		TableCount:  m.TableCount,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
	if m.DataSourceID != nil {
		dsID := m.DataSourceID.String()
		resp.DataSourceID = &dsID
	}
	return resp
}
