package billing

import (
	"go.uber.org/fx"

	"github.com/insightlabs/orrery/internal/billing/ingress"
	"github.com/insightlabs/orrery/internal/billing/service"
)

var Module = fx.Module("billing.service",
	fx.Provide(ingress.New),
	fx.Provide(service.NewService),
)
