package generation

import (
	"github.com/smallbiznis/pixora/internal/generation/repository"
	"github.com/smallbiznis/pixora/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(repository.NewStore),
	fx.Provide(service.NewReconciler),
	fx.Provide(service.New),
)
