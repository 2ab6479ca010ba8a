package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	agentdomain "github.com/smallbiznis/lunara/internal/agent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() agentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, a *agentdomain.Agent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO agents (id, project_id, name, description, instructions, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.ProjectID,
		a.Name,
		a.Description,
		a.Instructions,
		a.Config,
		a.CreatedAt,
		a.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, a *agentdomain.Agent, prevUpdatedAt time.Time) *gorm.DB {
	return db.WithContext(ctx).Exec(
		`UPDATE agents
		 SET name = ?, description = ?, instructions = ?, config = ?, updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		a.Name,
		a.Description,
		a.Instructions,
		a.Config,
		a.UpdatedAt,
		a.ID,
		prevUpdatedAt,
	)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*agentdomain.Agent, error) {
	var a agentdomain.Agent
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, name, description, instructions, config, created_at, updated_at
		 FROM agents WHERE id = ?`,
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

func (r *repo) List(ctx context.Context, db *gorm.DB, projectID uuid.UUID, cursor *agentdomain.ListCursor, limit int) ([]*agentdomain.Agent, error) {
	var items []*agentdomain.Agent
	stmt := db.WithContext(ctx).Model(&agentdomain.Agent{}).
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
	return db.WithContext(ctx).Exec(`DELETE FROM agents WHERE id = ?`, id).Error
}
