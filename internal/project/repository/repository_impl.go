package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	projectdomain "github.com/smallbiznis/lunara/internal/project/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() projectdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *projectdomain.Project) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO projects (id, organization_id, name, description, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.OrganizationID,
		p.Name,
		p.Description,
		p.CreatedBy,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *projectdomain.Project, prevUpdatedAt time.Time) *gorm.DB {
	return db.WithContext(ctx).Exec(
		`UPDATE projects
		 SET name = ?, description = ?, updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		p.Name,
		p.Description,
		p.UpdatedAt,
		p.ID,
		prevUpdatedAt,
	)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uuid.UUID) (*projectdomain.Project, error) {
	var project projectdomain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, name, description, created_by, created_at, updated_at
		 FROM projects WHERE id = ?`,
		id,
	).Scan(&project).Error
	if err != nil {
		return nil, err
	}
	if project.ID == uuid.Nil {
		return nil, nil
	}
	return &project, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID uuid.UUID, cursor *projectdomain.ListCursor, limit int) ([]*projectdomain.Project, error) {
	var projects []*projectdomain.Project
	stmt := db.WithContext(ctx).Model(&projectdomain.Project{}).
		Where("organization_id = ?", orgID)
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
	if err := stmt.Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id uuid.UUID) error {
	if err := deleteChildren(ctx, db, "project_id = ?", id); err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM projects WHERE id = ?`, id).Error
}

func (r *repo) DeleteByOrganization(ctx context.Context, db *gorm.DB, orgID uuid.UUID) error {
	scope := "project_id IN (SELECT id FROM projects WHERE organization_id = ?)"
	if err := deleteChildren(ctx, db, scope, orgID); err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(`DELETE FROM projects WHERE organization_id = ?`, orgID).Error
}

// deleteChildren removes every child row matched by scope, credentials first.
func deleteChildren(ctx context.Context, db *gorm.DB, scope string, arg any) error {
	statements := []string{
		`DELETE FROM data_source_credentials WHERE data_source_id IN (SELECT id FROM data_sources WHERE ` + scope + `)`,
		`DELETE FROM data_sources WHERE ` + scope,
		`DELETE FROM semantic_models WHERE ` + scope,
		`DELETE FROM agents WHERE ` + scope,
		`DELETE FROM artifacts WHERE ` + scope,
	}
	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt, arg).Error; err != nil {
			return err
		}
	}
	return nil
}
