package sessionnote

import (
	"github.com/smallbiznis/carelog/internal/sessionnote/repository"
	"github.com/smallbiznis/carelog/internal/sessionnote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sessionnote.service",
	fx.Provide(NewSealer),
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
