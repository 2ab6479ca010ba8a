package rls

import (
	"strings"

	"github.com/smallbiznis/lunara/pkg/db"
	"gorm.io/gorm"
)

// WithOrganization scopes the current postgres transaction to orgID so the
// row security policies on tenant tables apply. Other dialects are left as is.
func WithOrganization(tx *gorm.DB, orgID string) error {
	if !db.IsPostgres(tx) {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_org_id', ?, true)",
		strings.TrimSpace(orgID),
	).Error
}
