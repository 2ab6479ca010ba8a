package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/credential/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, cred *domain.Credential) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "data_source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sealed", "updated_at"}),
	}).Create(cred).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, dataSourceID uuid.UUID) (*domain.Credential, error) {
	var cred domain.Credential
	err := db.WithContext(ctx).Raw(
		`SELECT data_source_id, sealed, created_at, updated_at
		 FROM data_source_credentials WHERE data_source_id = ?`,
		dataSourceID,
	).Scan(&cred).Error
	if err != nil {
		return nil, err
	}
	if cred.DataSourceID == uuid.Nil {
		return nil, nil
	}
	return &cred, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, dataSourceID uuid.UUID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM data_source_credentials WHERE data_source_id = ?`,
		dataSourceID,
	).Error
}
