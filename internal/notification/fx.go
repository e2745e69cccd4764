package notification

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(func(lc fx.Lifecycle, log *zap.Logger) Sink {
		dispatcher := NewDispatcher(log, NewLogSink(log))
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				dispatcher.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				dispatcher.Stop(ctx)
				return nil
			},
		})
		return dispatcher
	}),
)
