package wallet

import (
	"github.com/briefworks/briefworks/internal/wallet/repository"
	"github.com/briefworks/briefworks/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
