package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	artifactdomain "github.com/smallbiznis/lunara/internal/artifact/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() artifactdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, a *artifactdomain.Artifact) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO artifacts (id, project_id, type, name, description, content, status, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.ProjectID,
		a.Type,
		a.Name,
		a.Description,
		a.Content,
		a.Status,
		a.CreatedBy,
		a.CreatedAt,
		a.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, a *artifactdomain.Artifact, prevUpdatedAt time.Time) *gorm.DB {
	return db.WithContext(ctx).Exec(
		`UPDATE artifacts
		 SET name = ?, description = ?, content = ?, status = ?, updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		a.Name,
		a.Description,
		a.Content,
		a.Status,
		a.UpdatedAt,
		a.ID,
		prevUpdatedAt,
	)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*artifactdomain.Artifact, error) {
	var a artifactdomain.Artifact
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, type, name, description, content, status, created_by, created_at, updated_at
		 FROM artifacts WHERE id = ?`,
		id,
	).Scan(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == uuid.Nil {
		return nil, nil
	}
	return &a, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, f artifactdomain.ListFilter) ([]*artifactdomain.Artifact, error) {
	var items []*artifactdomain.Artifact
	stmt := db.WithContext(ctx).Model(&artifactdomain.Artifact{}).
		Where("project_id = ?", f.ProjectID)
	if f.Type != "" {
		stmt = stmt.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		stmt = stmt.Where("status = ?", f.Status)
	}
	if f.Cursor != nil {
		stmt = stmt.Where("((created_at > ?) OR (created_at = ? AND id > ?))",
			f.Cursor.CreatedAt,
			f.Cursor.CreatedAt,
			f.Cursor.ID,
		)
	}
	stmt = stmt.Order("created_at asc, id asc")
	if f.Limit > 0 {
		stmt = stmt.Limit(f.Limit + 1)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM artifacts WHERE id = ?`, id).Error
}
