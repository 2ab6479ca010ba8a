package access

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var childTables = map[Kind]string{
	KindDataSource:    "data_sources",
	KindSemanticModel: "semantic_models",
	KindAgent:         "agents",
	KindArtifact:      "artifacts",
}

type ownerRow struct {
	ProjectID      uuid.UUID `gorm:"column:project_id"`
	OrganizationID uuid.UUID `gorm:"column:organization_id"`
}

type repo struct{}

// ownerOfTarget returns the live owning project and organization of a resource.
func (r *repo) ownerOfTarget(ctx context.Context, db *gorm.DB, kind Kind, id uuid.UUID) (*ownerRow, error) {
	var row ownerRow
	var err error
	if kind == KindProject {
		err = db.WithContext(ctx).Raw(
			`SELECT id AS project_id, organization_id FROM projects WHERE id = ?`,
			id,
		).Scan(&row).Error
	} else {
		table, ok := childTables[kind]
		if !ok {
			return nil, ErrInvalidRequest
		}
		err = db.WithContext(ctx).Raw(
			`SELECT c.project_id, p.organization_id
			 FROM `+table+` c
			 JOIN projects p ON p.id = c.project_id
			 WHERE c.id = ?`,
			id,
		).Scan(&row).Error
	}
	if err != nil {
		return nil, err
	}
	if row.OrganizationID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) ownerOfProject(ctx context.Context, db *gorm.DB, projectID uuid.UUID) (*ownerRow, error) {
	return r.ownerOfTarget(ctx, db, KindProject, projectID)
}

func (r *repo) organizationExists(ctx context.Context, db *gorm.DB, orgID uuid.UUID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM organizations WHERE id = ?`,
		orgID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
