package patient

import (
	"github.com/smallbiznis/carelog/internal/patient/repository"
	"github.com/smallbiznis/carelog/internal/patient/service"
	"go.uber.org/fx"
)

var Module = fx.Module("patient.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
