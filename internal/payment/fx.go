package payment

import (
	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/payment/adapters"
	stripeadapter "github.com/briefworks/briefworks/internal/payment/adapters/stripe"
	"github.com/briefworks/briefworks/internal/payment/domain"
	"github.com/briefworks/briefworks/internal/payment/repository"
	"github.com/briefworks/briefworks/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) (*adapters.Registry, error) {
		var list []domain.Adapter
		if cfg.StripeWebhookSecret != "" {
			adapter, err := stripeadapter.NewAdapter(cfg.StripeWebhookSecret)
			if err != nil {
				return nil, err
			}
			list = append(list, adapter)
		}
		return adapters.NewRegistry(list...), nil
	}),
	fx.Provide(webhook.NewService),
)
