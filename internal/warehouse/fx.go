package warehouse

import "go.uber.org/fx"

var Module = fx.Module("warehouse",
	fx.Provide(NewRegistry),
	fx.Provide(func(r *Registry) Prober { return r }),
	fx.Provide(func(r *Registry) Scanner { return r }),
	fx.Provide(func(r *Registry) Lister { return r }),
)
