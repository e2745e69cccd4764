package audit

import (
	"github.com/briefworks/briefworks/internal/audit/repository"
	"github.com/briefworks/briefworks/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
