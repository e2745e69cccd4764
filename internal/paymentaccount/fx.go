package paymentaccount

import (
	"github.com/briefworks/briefworks/internal/paymentaccount/repository"
	"github.com/briefworks/briefworks/internal/paymentaccount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentaccount",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
