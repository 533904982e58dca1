package subscription

import (
	"go.uber.org/fx"

	"github.com/insightlabs/orrery/internal/subscription/repository"
	"github.com/insightlabs/orrery/internal/subscription/service"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
