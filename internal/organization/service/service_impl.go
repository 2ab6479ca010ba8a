package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/lunara/internal/audit/domain"
	"github.com/smallbiznis/lunara/internal/clock"
	obsmetrics "github.com/smallbiznis/lunara/internal/observability/metrics"
	"github.com/smallbiznis/lunara/internal/organization/domain"
	"github.com/smallbiznis/lunara/internal/orgcontext"
	projectdomain "github.com/smallbiznis/lunara/internal/project/domain"
	"github.com/smallbiznis/lunara/pkg/db"
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
	Repo        domain.Repository
	ProjectRepo projectdomain.Repository
	AuditSvc    auditdomain.Service `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	projectRepo projectdomain.Repository
	auditSvc    auditdomain.Service
	metrics     *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("organization.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		projectRepo: p.ProjectRepo,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
	}
}

// Create bootstraps an organization together with the caller's profile.
func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	principal, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidPrincipal
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	org := domain.Organization{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug.Make(name),
		CreatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindProfile(ctx, principal)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyMember
		}

		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}
		return repo.CreateProfile(ctx, domain.Profile{
			PrincipalID:    principal,
			OrganizationID: org.ID,
			Email:          normalizeOptional(req.Email),
			DisplayName:    normalizeOptional(req.DisplayName),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyMember
		}
		return nil, err
	}

	s.recordWrite(ctx, org.ID, "organization.create", "organization", org.ID.String(), map[string]any{
		"name": org.Name,
		"slug": org.Slug,
	})
	return toOrganizationResponse(&org), nil
}

func (s *service) Current(ctx context.Context) (*domain.OrganizationResponse, error) {
	orgID, err := s.callerOrganization(ctx)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, orgID)
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	orgID, err := s.authorizeOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, orgID)
}

// Delete removes the organization, its profiles and every project with all
// of their children in a single transaction.
func (s *service) Delete(ctx context.Context, id string) error {
	orgID, err := s.authorizeOrganization(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrganization(tx, orgID.String()); err != nil {
			return err
		}
		if err := s.projectRepo.DeleteByOrganization(ctx, tx, orgID); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteProfiles(ctx, orgID); err != nil {
			return err
		}
		return repo.DeleteOrganization(ctx, orgID)
	})
	if err != nil {
		s.log.Error("organization cascade delete failed", zap.String("organization_id", orgID.String()), zap.Error(err))
		return err
	}

	s.recordWrite(ctx, orgID, "organization.delete", "organization", orgID.String(), nil)
	return nil
}

func (s *service) AddMember(ctx context.Context, id string, req domain.AddMemberRequest) (*domain.ProfileResponse, error) {
	orgID, err := s.authorizeOrganization(ctx, id)
	if err != nil {
		return nil, err
	}

	principal := strings.TrimSpace(req.PrincipalID)
	if principal == "" {
		return nil, domain.ErrInvalidPrincipal
	}

	existing, err := s.repo.FindProfile(ctx, principal)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAlreadyMember
	}

	now := s.clock.Now()
	profile := domain.Profile{
		PrincipalID:    principal,
		OrganizationID: orgID,
		Email:          normalizeOptional(req.Email),
		DisplayName:    normalizeOptional(req.DisplayName),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateProfile(ctx, profile); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyMember
		}
		return nil, err
	}

	s.recordWrite(ctx, orgID, "organization.member_add", "profile", principal, nil)
	return toProfileResponse(&profile), nil
}

func (s *service) ListMembers(ctx context.Context, id string) ([]domain.ProfileResponse, error) {
	orgID, err := s.authorizeOrganization(ctx, id)
	if err != nil {
		return nil, err
	}

	profiles, err := s.repo.ListProfiles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.ProfileResponse, 0, len(profiles))
	for i := range profiles {
		resp = append(resp, *toProfileResponse(&profiles[i]))
	}
	return resp, nil
}

// UpdateProfile patches the caller's own profile.
func (s *service) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) (*domain.ProfileResponse, error) {
	principal, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidPrincipal
	}

	var (
		profile *domain.Profile
		changed bool
	)
	err := db.RetryStale(func() error {
		current, err := s.repo.FindProfile(ctx, principal)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		profile = current
		changed = false
		if req.Email != nil {
			email := normalizeOptional(req.Email)
			if !equalOptional(email, current.Email) {
				profile.Email = email
				changed = true
			}
		}
		if req.DisplayName != nil {
			displayName := normalizeOptional(req.DisplayName)
			if !equalOptional(displayName, current.DisplayName) {
				profile.DisplayName = displayName
				changed = true
			}
		}
		if !changed {
			return nil
		}

		prev := profile.UpdatedAt
		profile.UpdatedAt = clock.NextUpdate(s.clock, prev)
		return db.CheckAffected(s.repo.UpdateProfile(ctx, *profile, prev))
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recordWrite(ctx, profile.OrganizationID, "profile.update", "profile", principal, nil)
	}
	return toProfileResponse(profile), nil
}

func (s *service) load(ctx context.Context, orgID uuid.UUID) (*domain.OrganizationResponse, error) {
	org, err := s.repo.FindOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return toOrganizationResponse(org), nil
}

// authorizeOrganization parses id and returns it only when it is the
// caller's own organization. Any other organization is reported as missing.
func (s *service) authorizeOrganization(ctx context.Context, id string) (uuid.UUID, error) {
	orgID, err := domain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, domain.ErrInvalidOrganization
	}
	callerOrg, err := s.callerOrganization(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if callerOrg != orgID {
		return uuid.Nil, domain.ErrNotFound
	}
	return orgID, nil
}

func (s *service) callerOrganization(ctx context.Context) (uuid.UUID, error) {
	principal, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok {
		return uuid.Nil, domain.ErrInvalidPrincipal
	}
	profile, err := s.repo.FindProfile(ctx, principal)
	if err != nil {
		return uuid.Nil, err
	}
	if profile == nil {
		return uuid.Nil, domain.ErrNotFound
	}
	return profile.OrganizationID, nil
}

func (s *service) recordWrite(ctx context.Context, orgID uuid.UUID, action, targetType, targetID string, metadata map[string]any) {
	s.metrics.RecordEntityWrite(ctx, targetType, action)
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, targetType, &targetID, metadata)
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

func toOrganizationResponse(org *domain.Organization) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		CreatedAt: org.CreatedAt.UTC(),
	}
}

func toProfileResponse(p *domain.Profile) *domain.ProfileResponse {
	return &domain.ProfileResponse{
		PrincipalID:    p.PrincipalID,
		OrganizationID: p.OrganizationID.String(),
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
}
