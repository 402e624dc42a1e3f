package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/audit"
	"github.com/smallbiznis/duesledger/internal/auth/token"
	"github.com/smallbiznis/duesledger/internal/authorization"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	"github.com/smallbiznis/duesledger/internal/expense"
	"github.com/smallbiznis/duesledger/internal/fundraiser"
	"github.com/smallbiznis/duesledger/internal/invoice"
	"github.com/smallbiznis/duesledger/internal/ledger"
	"github.com/smallbiznis/duesledger/internal/migration"
	"github.com/smallbiznis/duesledger/internal/observability"
	"github.com/smallbiznis/duesledger/internal/onlinepayment"
	"github.com/smallbiznis/duesledger/internal/overdue"
	"github.com/smallbiznis/duesledger/internal/payment"
	"github.com/smallbiznis/duesledger/internal/ratelimit"
	"github.com/smallbiznis/duesledger/internal/remotemetrics"
	"github.com/smallbiznis/duesledger/internal/scheduler"
	"github.com/smallbiznis/duesledger/internal/seed"
	"github.com/smallbiznis/duesledger/internal/server"
	"github.com/smallbiznis/duesledger/internal/settlement"
	"github.com/smallbiznis/duesledger/internal/user"
	"github.com/smallbiznis/duesledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Access control
		token.Module,
		authorization.Module,
		ratelimit.Module,

		// Domains
		audit.Module,
		user.Module,
		invoice.Module,
		payment.Module,
		onlinepayment.Module,
		ledger.Module,
		settlement.Module,
		expense.Module,
		fundraiser.Module,
		overdue.Module,

		seed.Module,
		remotemetrics.Module,
		scheduler.Module,
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
