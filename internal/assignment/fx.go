package assignment

import (
	"github.com/smallbiznis/carelog/internal/assignment/repository"
	"github.com/smallbiznis/carelog/internal/assignment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("assignment.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
