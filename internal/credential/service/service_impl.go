package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/clock"
	"github.com/smallbiznis/lunara/internal/config"
	"github.com/smallbiznis/lunara/internal/credential/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sourceTypeBigQuery = "bigquery"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	sealer   *sealer
	fallback map[string]any
}

func New(p Params) (domain.Store, error) {
	s, err := newSealer(strings.TrimSpace(p.Cfg.EncryptionKey))
	if err != nil {
		return nil, err
	}
	log := p.Log.Named("credential.store")
	if s.key == nil {
		log.Warn("ENCRYPTION_KEY is not set, data source credentials cannot be stored")
	}

	fallback, err := decodeServiceAccount(p.Cfg.BigQueryCredentialsBase64)
	if err != nil {
		log.Warn("ignoring invalid BIGQUERY_CREDENTIALS_BASE64", zap.Error(err))
	}

	return &Service{
		db:       p.DB,
		log:      log,
		clock:    p.Clock,
		repo:     p.Repo,
		sealer:   s,
		fallback: fallback,
	}, nil
}

func (s *Service) Put(ctx context.Context, dataSourceID uuid.UUID, secret map[string]any) error {
	if len(secret) == 0 {
		return domain.ErrInvalidSecret
	}
	sealed, err := s.sealer.seal(secret)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	return s.repo.Upsert(ctx, s.db, &domain.Credential{
		DataSourceID: dataSourceID,
		Sealed:       sealed,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (s *Service) Get(ctx context.Context, dataSourceID uuid.UUID, sourceType string) (map[string]any, error) {
	cred, err := s.repo.Find(ctx, s.db, dataSourceID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		if sourceType == sourceTypeBigQuery && len(s.fallback) > 0 {
			return copyDocument(s.fallback), nil
		}
		return nil, domain.ErrNotFound
	}

	secret, err := s.sealer.open(cred.Sealed)
	if err != nil {
		s.log.Error("failed to open stored credentials",
			zap.String("data_source_id", dataSourceID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return secret, nil
}

func (s *Service) Delete(ctx context.Context, dataSourceID uuid.UUID) error {
	return s.repo.Delete(ctx, s.db, dataSourceID)
}

func decodeServiceAccount(encoded string) (map[string]any, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	var account map[string]any
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, err
	}
	return account, nil
}

func copyDocument(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
