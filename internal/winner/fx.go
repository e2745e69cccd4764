package winner

import (
	"github.com/briefworks/briefworks/internal/winner/repository"
	"github.com/briefworks/briefworks/internal/winner/service"
	"go.uber.org/fx"
)

var Module = fx.Module("winner",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
