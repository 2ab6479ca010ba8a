package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	smdomain "github.com/smallbiznis/lunara/internal/semanticmodel/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() smdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *smdomain.SemanticModel) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO semantic_models (id, project_id, data_source_id, name, description, model, source_type, table_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.ProjectID,
		m.DataSourceID,
		m.Name,
		m.Description,
		m.Model,
		m.SourceType,
		m.TableCount,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, m *smdomain.SemanticModel, prevUpdatedAt time.Time) *gorm.DB {
	return db.WithContext(ctx).Exec(
		`UPDATE semantic_models
		 SET data_source_id = ?, name = ?, description = ?, model = ?, source_type = ?, table_count = ?, updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		m.DataSourceID,
		m.Name,
		m.Description,
		m.Model,
		m.SourceType,
		m.TableCount,
		m.UpdatedAt,
		m.ID,
		prevUpdatedAt,
	)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*smdomain.SemanticModel, error) {
	var m smdomain.SemanticModel
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, data_source_id, name, description, model, source_type, table_count, created_at, updated_at
		 FROM semantic_models WHERE id = ?`,
		id,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, projectID uuid.UUID, cursor *smdomain.ListCursor, limit int) ([]*smdomain.SemanticModel, error) {
	var items []*smdomain.SemanticModel
	stmt := db.WithContext(ctx).Model(&smdomain.SemanticModel{}).
		Where("project_id = ?", projectID)
	if cursor != nil {
		stmt = stmt.Where("((created_at > ?) OR (created_at = ? AND id > ?))",
			cursor.CreatedAt,
			cursor.CreatedAt,
			cursor.ID,
		)
	}
	stmt = stmt.Order("created_at asc, id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM semantic_models WHERE id = ?`, id).Error
}
