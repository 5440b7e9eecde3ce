package workorder

import (
	"github.com/smallbiznis/fieldops/internal/workorder/repository"
	"github.com/smallbiznis/fieldops/internal/workorder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("workorder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
