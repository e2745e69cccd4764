package stripe

import (
	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/processor"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("processor.stripe",
	fx.Provide(func(cfg config.Config, log *zap.Logger) (processor.Client, error) {
		return New(cfg, log)
	}),
)
