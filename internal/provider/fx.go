package provider

import (
	"go.uber.org/fx"

	"github.com/insightlabs/orrery/internal/provider/stripe"
)

var Module = fx.Module("provider",
	fx.Provide(stripe.Provide),
)
