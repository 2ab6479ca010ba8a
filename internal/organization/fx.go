package organization

import (
	"github.com/smallbiznis/lunara/internal/organization/repository"
	"github.com/smallbiznis/lunara/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewDirectory),
	fx.Provide(service.NewService),
)
