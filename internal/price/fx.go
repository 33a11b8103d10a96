package price

import "go.uber.org/fx"

var Module = fx.Module("price",
	fx.Provide(NewRounder),
)
