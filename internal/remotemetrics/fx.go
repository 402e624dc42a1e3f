package remotemetrics

import (
	"context"
	"time"

	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	onlinepaymentdomain "github.com/smallbiznis/duesledger/internal/onlinepayment/domain"
	settlementdomain "github.com/smallbiznis/duesledger/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("remote.metrics",
	fx.Provide(NewPusher),
	fx.Invoke(register),
)

type registerParams struct {
	fx.In

	Lifecycle     fx.Lifecycle
	Cfg           config.Config
	Log           *zap.Logger
	Pusher        Pusher
	Clock         clock.Clock `optional:"true"`
	SettlementSvc settlementdomain.Service
	ClaimSvc      onlinepaymentdomain.Service
}

func register(p registerParams) {
	if p.Pusher == nil {
		return
	}
	log := p.Log.Named("remote.metrics")
	worker := NewWorker(
		log,
		p.Clock,
		NewTreasuryGauges(p.Cfg.InstanceID),
		p.Pusher,
		p.SettlementSvc,
		p.ClaimSvc,
		time.Duration(p.Cfg.Remote.IntervalSeconds)*time.Second,
	)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting remote metrics worker", zap.String("exporter", p.Cfg.Remote.Exporter))
			worker.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return worker.Stop(ctx)
		},
	})
}
