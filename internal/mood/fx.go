package mood

import (
	"github.com/smallbiznis/carelog/internal/mood/repository"
	"github.com/smallbiznis/carelog/internal/mood/service"
	"go.uber.org/fx"
)

var Module = fx.Module("mood.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
