package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	dsdomain "github.com/smallbiznis/lunara/internal/datasource/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() dsdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ds *dsdomain.DataSource) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO data_sources (id, project_id, type, name, config, status, last_error, last_probed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.ID,
		ds.ProjectID,
		ds.Type,
		ds.Name,
		ds.Config,
		ds.Status,
		ds.LastError,
		ds.LastProbedAt,
		ds.CreatedAt,
		ds.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, ds *dsdomain.DataSource, prevUpdatedAt time.Time) *gorm.DB {
	return db.WithContext(ctx).Exec(
		`UPDATE data_sources
		 SET name = ?, config = ?, status = ?, last_error = ?, last_probed_at = ?, updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		ds.Name,
		ds.Config,
		ds.Status,
		ds.LastError,
		ds.LastProbedAt,
		ds.UpdatedAt,
		ds.ID,
		prevUpdatedAt,
	)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*dsdomain.DataSource, error) {
	var ds dsdomain.DataSource
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, type, name, config, status, last_error, last_probed_at, created_at, updated_at
		 FROM data_sources WHERE id = ?`,
		id,
	).Scan(&ds).Error
	if err != nil {
		return nil, err
	}
	if ds.ID == uuid.Nil {
		return nil, nil
	}
	return &ds, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, projectID uuid.UUID, cursor *dsdomain.ListCursor, limit int) ([]*dsdomain.DataSource, error) {
	var items []*dsdomain.DataSource
	stmt := db.WithContext(ctx).Model(&dsdomain.DataSource{}).
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
	if err := db.WithContext(ctx).Exec(`DELETE FROM data_source_credentials WHERE data_source_id = ?`, id).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM data_sources WHERE id = ?`, id).Error
}
