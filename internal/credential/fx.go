package credential

import (
	"github.com/smallbiznis/lunara/internal/credential/repository"
	"github.com/smallbiznis/lunara/internal/credential/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credential.store",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
