package clinicalentry

import (
	"github.com/smallbiznis/carelog/internal/clinicalentry/repository"
	"github.com/smallbiznis/carelog/internal/clinicalentry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("clinicalentry.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
