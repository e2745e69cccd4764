package brief

import (
	"github.com/briefworks/briefworks/internal/brief/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("brief",
	fx.Provide(repository.Provide),
)
