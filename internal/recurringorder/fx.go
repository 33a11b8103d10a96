package recurringorder

import "go.uber.org/fx"

var Module = fx.Module("recurringorder.manager",
	fx.Provide(New),
)
