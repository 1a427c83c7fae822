package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pixora/internal/cache"
	"github.com/smallbiznis/pixora/internal/clock"
	"github.com/smallbiznis/pixora/internal/config"
	"github.com/smallbiznis/pixora/internal/genai"
	"github.com/smallbiznis/pixora/internal/generation"
	"github.com/smallbiznis/pixora/internal/logger"
	"github.com/smallbiznis/pixora/internal/migration"
	"github.com/smallbiznis/pixora/internal/observability"
	"github.com/smallbiznis/pixora/internal/profile"
	"github.com/smallbiznis/pixora/internal/quota"
	"github.com/smallbiznis/pixora/internal/scheduler"
	"github.com/smallbiznis/pixora/internal/seed"
	"github.com/smallbiznis/pixora/internal/server"
	"github.com/smallbiznis/pixora/internal/storage"
	"github.com/smallbiznis/pixora/internal/uploader"
	"github.com/smallbiznis/pixora/internal/usage"
	"github.com/smallbiznis/pixora/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		migration.Module,
		seed.Module,
		scheduler.Module,

		// Pipeline domains
		usage.Module,
		quota.Module,
		profile.Module,
		genai.Module,
		storage.Module,
		uploader.Module,
		generation.Module,

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
