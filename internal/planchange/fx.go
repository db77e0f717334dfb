package planchange

import (
	"github.com/smallbiznis/carelog/internal/planchange/repository"
	"github.com/smallbiznis/carelog/internal/planchange/service"
	"go.uber.org/fx"
)

var Module = fx.Module("planchange.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
