package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/insightlabs/orrery/internal/clock"
	"github.com/insightlabs/orrery/internal/config"
	"github.com/insightlabs/orrery/internal/migration"
	"github.com/insightlabs/orrery/internal/observability"
	"github.com/insightlabs/orrery/internal/server"
	"github.com/insightlabs/orrery/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
