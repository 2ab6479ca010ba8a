package datasource

import (
	"github.com/smallbiznis/lunara/internal/datasource/repository"
	"github.com/smallbiznis/lunara/internal/datasource/service"
	"go.uber.org/fx"
)

var Module = fx.Module("datasource.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
