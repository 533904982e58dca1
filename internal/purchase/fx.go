package purchase

import (
	"go.uber.org/fx"

	"github.com/insightlabs/orrery/internal/purchase/repository"
)

var Module = fx.Module("purchase",
	fx.Provide(repository.Provide),
)
