package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/access"
	auditdomain "github.com/smallbiznis/lunara/internal/audit/domain"
	"github.com/smallbiznis/lunara/internal/clock"
	"github.com/smallbiznis/lunara/internal/config"
	credentialdomain "github.com/smallbiznis/lunara/internal/credential/domain"
	dsdomain "github.com/smallbiznis/lunara/internal/datasource/domain"
	obsmetrics "github.com/smallbiznis/lunara/internal/observability/metrics"
	"github.com/smallbiznis/lunara/internal/warehouse"
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

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        dsdomain.Repository
	Access      access.Evaluator
	Credentials credentialdomain.Store
	Prober      warehouse.Prober
	Lister      warehouse.Lister
	Policy      *config.CredentialPolicyHolder `optional:"true"`
	AuditSvc    auditdomain.Service            `optional:"true"`
	Metrics     *obsmetrics.Metrics            `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        dsdomain.Repository
	access      access.Evaluator
	credentials credentialdomain.Store
	prober      warehouse.Prober
	lister      warehouse.Lister
	policy      *config.CredentialPolicyHolder
	auditSvc    auditdomain.Service
	metrics     *obsmetrics.Metrics
}

func New(p Params) dsdomain.Service {
	policy := p.Policy
	if policy == nil {
		policy = config.NewStaticCredentialPolicyHolder(config.DefaultCredentialPolicy())
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("datasource.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		access:      p.Access,
		credentials: p.Credentials,
		prober:      p.Prober,
		lister:      p.Lister,
		policy:      policy,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) Register(ctx context.Context, req dsdomain.RegisterRequest) (*dsdomain.Response, error) {
	projectID, err := dsdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, dsdomain.ErrInvalidProject
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, dsdomain.ErrInvalidName
	}
	sourceType := strings.ToLower(strings.TrimSpace(req.Type))
	if !dsdomain.IsValidType(sourceType) {
		return nil, dsdomain.ErrInvalidType
	}
	cfg, err := s.validateConfig(req.Config)
	if err != nil {
		return nil, err
	}

	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationCreate,
		Kind:      access.KindDataSource,
		ProjectID: projectID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	now := s.clock.Now()
	ds := &dsdomain.DataSource{
		ID:        uuid.New(),
		ProjectID: projectID,
		Type:      sourceType,
		Name:      name,
		Config:    cfg,
		Status:    dsdomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, ds); err != nil {
		return nil, err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "data_source.create", ds.ID, map[string]any{
		"name": name,
		"type": sourceType,
	})
	return toResponse(ds), nil
}

func (s *Service) TestAndActivate(ctx context.Context, id string) (*dsdomain.Response, error) {
	dsID, err := dsdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, dsdomain.ErrInvalidID
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationUpdate,
		Kind:      access.KindDataSource,
		TargetID:  dsID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	current, err := s.repo.FindByID(ctx, s.db, dsID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, dsdomain.ErrNotFound
	}

	// outcome is what gets recorded on the row; failure is what the caller
	// sees. They differ only when stored credentials cannot be opened.
	var outcome, failure error
	creds, err := s.credentials.Get(ctx, dsID, current.Type)
	switch {
	case err == nil, errors.Is(err, credentialdomain.ErrNotFound):
		outcome = s.prober.Probe(ctx, warehouse.DataSource{
			ID:     current.ID,
			Type:   current.Type,
			Config: map[string]any(current.Config),
		}, warehouse.Credentials(creds))
		if outcome != nil && !errors.Is(outcome, warehouse.ErrCollaborator) {
			outcome = fmt.Errorf("%w: %w", warehouse.ErrCollaborator, outcome)
		}
		failure = outcome
	case errors.Is(err, credentialdomain.ErrCorrupted), errors.Is(err, credentialdomain.ErrEncryptionKeyMissing):
		outcome = fmt.Errorf("credentials unavailable: %w", err)
		failure = err
	default:
		return nil, err
	}

	var item *dsdomain.DataSource
	err = db.RetryStale(func() error {
		latest, err := s.repo.FindByID(ctx, s.db, dsID)
		if err != nil {
			return err
		}
		if latest == nil {
			return dsdomain.ErrNotFound
		}
		if latest.Type != current.Type || !jsondoc.Equal(latest.Config, current.Config) {
			return dsdomain.ErrConfigChanged
		}

		item = latest
		probedAt := clock.NextUpdate(s.clock, latest.UpdatedAt)
		item.LastProbedAt = &probedAt
		if outcome != nil {
			message := outcome.Error()
			item.Status = dsdomain.StatusError
			item.LastError = &message
		} else {
			item.Status = dsdomain.StatusConnected
			item.LastError = nil
		}

		prev := item.UpdatedAt
		item.UpdatedAt = probedAt
		return db.CheckAffected(s.repo.Update(ctx, s.db, item, prev))
	})
	if err != nil {
		if errors.Is(err, dsdomain.ErrConfigChanged) {
			s.log.Info("data source config changed during probe, outcome discarded",
				zap.String("data_source_id", dsID.String()),
			)
		}
		return nil, err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "data_source.probe", dsID, map[string]any{
		"status": item.Status,
	})
	if failure != nil {
		s.log.Info("data source probe failed",
			zap.String("data_source_id", dsID.String()),
			zap.String("type", item.Type),
			zap.Error(outcome),
		)
		return nil, failure
	}
	return toResponse(item), nil
}

func (s *Service) List(ctx context.Context, req dsdomain.ListRequest) (*dsdomain.ListResponse, error) {
	projectID, err := dsdomain.ParseID(strings.TrimSpace(req.ProjectID))
	if err != nil {
		return nil, dsdomain.ErrInvalidProject
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindDataSource,
		ProjectID: projectID,
	}); err != nil {
		return nil, accessError(err)
	}

	var cursor *dsdomain.ListCursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, dsdomain.ErrInvalidPageToken
		}
		createdAt, err := decoded.CreatedAtTime()
		if err != nil {
			return nil, dsdomain.ErrInvalidPageToken
		}
		id, err := dsdomain.ParseID(decoded.ID)
		if err != nil {
			return nil, dsdomain.ErrInvalidPageToken
		}
		cursor = &dsdomain.ListCursor{ID: id, CreatedAt: createdAt}
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, projectID, cursor, limit)
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(ds *dsdomain.DataSource) string {
		token, err := pagination.EncodeCursor(pagination.CursorFor(ds.ID.String(), ds.CreatedAt))
		if err != nil {
			return ""
		}
		return token
	})

	resp := &dsdomain.ListResponse{DataSources: make([]dsdomain.Response, 0, len(items))}
	for _, item := range items {
		resp.DataSources = append(resp.DataSources, *toResponse(item))
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*dsdomain.Response, error) {
	dsID, err := dsdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, dsdomain.ErrInvalidID
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindDataSource,
		TargetID:  dsID,
	}); err != nil {
		return nil, accessError(err)
	}

	item, err := s.repo.FindByID(ctx, s.db, dsID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, dsdomain.ErrNotFound
	}
	return toResponse(item), nil
}

// Update applies name and config patches. Status and last_error only move on
// TestAndActivate, so a replaced config keeps the previous probe outcome until
// it is probed again.
func (s *Service) Update(ctx context.Context, req dsdomain.UpdateRequest) (*dsdomain.Response, error) {
	dsID, err := dsdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, dsdomain.ErrInvalidID
	}

	var name *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, dsdomain.ErrInvalidName
		}
		name = &trimmed
	}
	var cfg map[string]any
	if req.Config != nil {
		cfg, err = s.validateConfig(req.Config)
		if err != nil {
			return nil, err
		}
	}

	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationUpdate,
		Kind:      access.KindDataSource,
		TargetID:  dsID,
	})
	if err != nil {
		return nil, accessError(err)
	}

	var (
		item    *dsdomain.DataSource
		changed bool
	)
	err = db.RetryStale(func() error {
		current, err := s.repo.FindByID(ctx, s.db, dsID)
		if err != nil {
			return err
		}
		if current == nil {
			return dsdomain.ErrNotFound
		}

		item = current
		changed = false
		if name != nil && *name != current.Name {
			item.Name = *name
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
		s.recordWrite(ctx, decision.OwnerOrganizationID, "data_source.update", dsID, map[string]any{"name": item.Name})
	}
	return toResponse(item), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	dsID, err := dsdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return dsdomain.ErrInvalidID
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationDelete,
		Kind:      access.KindDataSource,
		TargetID:  dsID,
	})
	if err != nil {
		return accessError(err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrganization(tx, decision.OwnerOrganizationID.String()); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, dsID)
	})
	if err != nil {
		return err
	}

	s.recordWrite(ctx, decision.OwnerOrganizationID, "data_source.delete", dsID, nil)
	return nil
}

func (s *Service) SetCredentials(ctx context.Context, id string, secret map[string]any) error {
	dsID, err := dsdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return dsdomain.ErrInvalidID
	}
	if len(secret) == 0 {
		return dsdomain.ErrInvalidSecret
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationUpdate,
		Kind:      access.KindDataSource,
		TargetID:  dsID,
	})
	if err != nil {
		return accessError(err)
	}

	if err := s.credentials.Put(ctx, dsID, secret); err != nil {
		if errors.Is(err, credentialdomain.ErrInvalidSecret) {
			return dsdomain.ErrInvalidSecret
		}
		return err
	}

	keys := make([]string, 0, len(secret))
	for key := range secret {
		keys = append(keys, key)
	}
	s.recordWrite(ctx, decision.OwnerOrganizationID, "data_source.credentials.set", dsID, map[string]any{"keys": keys})
	return nil
}

func (s *Service) ClearCredentials(ctx context.Context, id string) error {
	dsID, err := dsdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return dsdomain.ErrInvalidID
	}
	decision, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationUpdate,
		Kind:      access.KindDataSource,
		TargetID:  dsID,
	})
	if err != nil {
		return accessError(err)
	}

	if err := s.credentials.Delete(ctx, dsID); err != nil {
		return err
	}
	s.recordWrite(ctx, decision.OwnerOrganizationID, "data_source.credentials.clear", dsID, nil)
	return nil
}

func (s *Service) ListTables(ctx context.Context, id string) (*dsdomain.TablesResponse, error) {
	dsID, err := dsdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, dsdomain.ErrInvalidID
	}
	if _, err := s.access.Require(ctx, access.Request{
		Operation: access.OperationRead,
		Kind:      access.KindDataSource,
		TargetID:  dsID,
	}); err != nil {
		return nil, accessError(err)
	}

	item, err := s.repo.FindByID(ctx, s.db, dsID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, dsdomain.ErrNotFound
	}

	creds, err := s.credentials.Get(ctx, dsID, item.Type)
	if err != nil && !errors.Is(err, credentialdomain.ErrNotFound) {
		return nil, err
	}

	tables, err := s.lister.ListTables(ctx, warehouse.DataSource{
		ID:     item.ID,
		Type:   item.Type,
		Config: map[string]any(item.Config),
	}, warehouse.Credentials(creds))
	if err != nil {
		if !errors.Is(err, warehouse.ErrCollaborator) {
			err = fmt.Errorf("%w: %w", warehouse.ErrCollaborator, err)
		}
		return nil, err
	}

	resp := &dsdomain.TablesResponse{
		DataSourceID: dsID.String(),
		Tables:       make([]dsdomain.Table, 0, len(tables)),
	}
	for _, t := range tables {
		resp.Tables = append(resp.Tables, dsdomain.Table{Schema: t.Schema, Name: t.Name, Type: t.Type})
	}
	return resp, nil
}

func (s *Service) validateConfig(doc map[string]any) (map[string]any, error) {
	cfg, err := normalizeConfig(doc)
	if err != nil {
		return nil, err
	}
	if err := checkConfig(s.policy.Get(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Service) recordWrite(ctx context.Context, orgID uuid.UUID, action string, targetID uuid.UUID, metadata map[string]any) {
	s.metrics.RecordEntityWrite(ctx, string(access.KindDataSource), action)
	if s.auditSvc == nil {
		return
	}
	target := targetID.String()
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, string(access.KindDataSource), &target, metadata)
}

func accessError(err error) error {
	if errors.Is(err, access.ErrNotFound) {
		return dsdomain.ErrNotFound
	}
	return err
}

func toResponse(ds *dsdomain.DataSource) *dsdomain.Response {
	resp := &dsdomain.Response{
		ID:        ds.ID.String(),
		ProjectID: ds.ProjectID.String(),
		Type:      ds.Type,
		Name:      ds.Name,
		Config:    map[string]any(ds.Config),
		Status:    ds.Status,
		LastError: ds.LastError,
		CreatedAt: ds.CreatedAt.UTC(),
		UpdatedAt: ds.UpdatedAt.UTC(),
	}
	if resp.Config == nil {
		resp.Config = map[string]any{}
	}
	if ds.LastProbedAt != nil {
		probedAt := ds.LastProbedAt.UTC()
		resp.LastProbedAt = &probedAt
	}
	return resp
}
