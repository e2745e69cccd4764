package funding

import (
	"github.com/briefworks/briefworks/internal/funding/repository"
	"github.com/briefworks/briefworks/internal/funding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("funding",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
