package entitlement

import (
	"go.uber.org/fx"

	"github.com/insightlabs/orrery/internal/entitlement/repository"
	"github.com/insightlabs/orrery/internal/entitlement/service"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
