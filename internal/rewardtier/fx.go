package rewardtier

import (
	"github.com/briefworks/briefworks/internal/rewardtier/repository"
	"github.com/briefworks/briefworks/internal/rewardtier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rewardtier",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
