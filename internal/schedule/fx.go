package schedule

import (
	"go.uber.org/fx"

	"github.com/insightlabs/orrery/internal/schedule/service"
)

var Module = fx.Module("schedule.service",
	fx.Provide(service.NewService),
)
