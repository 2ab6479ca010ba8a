package semanticmodel

import (
	"github.com/smallbiznis/lunara/internal/semanticmodel/repository"
	"github.com/smallbiznis/lunara/internal/semanticmodel/service"
	"go.uber.org/fx"
)

var Module = fx.Module("semanticmodel.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
