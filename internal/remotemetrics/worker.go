package remotemetrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/duesledger/internal/clock"
	"go.uber.org/zap"
)

const defaultInterval = 5 * time.Minute

// Worker snapshots the treasury and pushes it on a fixed interval. A failed
// tick is logged once until a later tick succeeds.
type Worker struct {
	log      *zap.Logger
	clock    clock.Clock
	gauges   *TreasuryGauges
	pusher   Pusher
	treasury treasurySource
	claims   claimSource
	interval time.Duration

	failing atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewWorker(log *zap.Logger, c clock.Clock, gauges *TreasuryGauges, pusher Pusher, treasury treasurySource, claims claimSource, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = defaultInterval
	}
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Worker{
		log:      log,
		clock:    c,
		gauges:   gauges,
		pusher:   pusher,
		treasury: treasury,
		claims:   claims,
		interval: interval,
	}
}

func (w *Worker) Start() {
	if w == nil || w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.Tick(context.Background())
		for {
			select {
			case <-ticker.C:
				w.Tick(context.Background())
			case <-w.stopCh:
				return
			}
		}
	}()
}

func (w *Worker) Stop(ctx context.Context) error {
	if w == nil || w.stopCh == nil {
		return nil
	}
	close(w.stopCh)
	select {
	case <-w.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	if closer, ok := w.pusher.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Tick collects one snapshot and pushes it.
func (w *Worker) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	snapshot, err := Collect(ctx, w.clock, w.treasury, w.claims)
	if err == nil {
		w.gauges.Set(snapshot, w.clock.Now())
		err = w.pusher.Push(ctx, w.gauges.Registry())
	}
	if err != nil {
		if w.failing.CompareAndSwap(false, true) {
			w.log.Warn("remote metrics push failed", zap.Error(err))
		}
		return err
	}
	if w.failing.CompareAndSwap(true, false) {
		w.log.Info("remote metrics push recovered")
	}
	return nil
}
