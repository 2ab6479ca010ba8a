package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/lunara/internal/clock"
	"github.com/smallbiznis/lunara/internal/config"
	"github.com/smallbiznis/lunara/internal/migration"
	"github.com/smallbiznis/lunara/internal/observability"
	"github.com/smallbiznis/lunara/internal/server"
	"github.com/smallbiznis/lunara/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake provides the id generator for audit log rows.
func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
