package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/catalog"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/gateway"
	"github.com/smallbiznis/boxoffice/internal/notification"
	"github.com/smallbiznis/boxoffice/internal/observability"
	"github.com/smallbiznis/boxoffice/internal/order"
	"github.com/smallbiznis/boxoffice/internal/promocode"
	"github.com/smallbiznis/boxoffice/internal/providers"
	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"github.com/smallbiznis/boxoffice/internal/scheduler"
	"github.com/smallbiznis/boxoffice/internal/ticketcode"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Order service and what it needs to send reminders and recover
		// confirmations.
		catalog.Module,
		promocode.Module,
		ticketcode.Module,
		providers.Module,
		notification.Module,
		events.Module,
		gateway.Module,
		order.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
