package artifact

import (
	"github.com/smallbiznis/lunara/internal/artifact/repository"
	"github.com/smallbiznis/lunara/internal/artifact/service"
	"go.uber.org/fx"
)

var Module = fx.Module("artifact.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
