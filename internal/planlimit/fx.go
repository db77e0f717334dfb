package planlimit

import "go.uber.org/fx"

var Module = fx.Module("planlimit",
	fx.Provide(NewEnforcer),
)
