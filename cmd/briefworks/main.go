package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/briefworks/briefworks/internal/audit"
	"github.com/briefworks/briefworks/internal/brief"
	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/funding"
	"github.com/briefworks/briefworks/internal/migration"
	"github.com/briefworks/briefworks/internal/notification"
	"github.com/briefworks/briefworks/internal/observability"
	"github.com/briefworks/briefworks/internal/payment"
	"github.com/briefworks/briefworks/internal/paymentaccount"
	"github.com/briefworks/briefworks/internal/payout"
	stripeprocessor "github.com/briefworks/briefworks/internal/processor/stripe"
	"github.com/briefworks/briefworks/internal/ratelimit"
	"github.com/briefworks/briefworks/internal/rewardtier"
	"github.com/briefworks/briefworks/internal/server"
	"github.com/briefworks/briefworks/internal/wallet"
	"github.com/briefworks/briefworks/internal/winner"
	"github.com/briefworks/briefworks/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		notification.Module,
		stripeprocessor.Module,

		audit.Module,
		brief.Module,
		paymentaccount.Module,
		funding.Module,
		rewardtier.Module,
		winner.Module,
		payout.Module,
		wallet.Module,
		payment.Module,

		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
