package access

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// NewEnforcer loads the (kind, operation) policy through the gorm adapter.
// The table is seeded with every pair only when it is empty, so rows removed
// by an operator stay removed across restarts.
func NewEnforcer(db *gorm.DB, log *zap.Logger) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}

	existing, err := enforcer.GetPolicy()
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		if err := seedPolicies(enforcer); err != nil {
			return nil, err
		}
		log.Info("seeded access policy", zap.Int("rules", len(Kinds)*len(Operations)))
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for _, kind := range Kinds {
		for _, op := range Operations {
			if _, err := enforcer.AddPolicy(string(kind), string(op)); err != nil {
				return err
			}
		}
	}
	return nil
}
