package remotemetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/duesledger/internal/clock"
	settlementdomain "github.com/smallbiznis/duesledger/internal/settlement/domain"
)

// Snapshot is the treasury state pushed on every tick.
type Snapshot struct {
	UnionBalance       decimal.Decimal
	OutstandingTotal   decimal.Decimal
	TodayCollected     decimal.Decimal
	ThisMonthCollected decimal.Decimal
	UnpaidInvoices     int64
	PendingClaims      int64
}

// TreasuryGauges holds the pushed gauges on a registry of their own so
// request-scoped series never leave the process.
type TreasuryGauges struct {
	registry *prometheus.Registry

	unionBalance     prometheus.Gauge
	outstanding      prometheus.Gauge
	todayCollected   prometheus.Gauge
	monthCollected   prometheus.Gauge
	unpaidInvoices   prometheus.Gauge
	pendingClaims    prometheus.Gauge
	memoryBytes      prometheus.Gauge
	lastSnapshotTime prometheus.Gauge
}

func NewTreasuryGauges(instanceID string) *TreasuryGauges {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"instance_id": normalizeLabel(instanceID)}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "duesledger",
			Subsystem:   "treasury",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		registry.MustRegister(g)
		return g
	}

	return &TreasuryGauges{
		registry:         registry,
		unionBalance:     gauge("union_balance", "Running balance at the union ledger tail."),
		outstanding:      gauge("outstanding_total", "Cash collected by field admins and not yet settled."),
		todayCollected:   gauge("today_collected", "Payments recorded since the start of the day."),
		monthCollected:   gauge("month_collected", "Payments recorded since the start of the month."),
		unpaidInvoices:   gauge("unpaid_invoices", "Invoices not yet paid."),
		pendingClaims:    gauge("pending_claims", "Online payment claims awaiting review."),
		memoryBytes:      gauge("process_memory_bytes", "Bytes obtained from the OS."),
		lastSnapshotTime: gauge("last_snapshot_timestamp_seconds", "Unix time of the last snapshot."),
	}
}

func (g *TreasuryGauges) Registry() *prometheus.Registry {
	if g == nil {
		return nil
	}
	return g.registry
}

func (g *TreasuryGauges) Set(s Snapshot, at time.Time) {
	if g == nil {
		return
	}
	g.unionBalance.Set(s.UnionBalance.InexactFloat64())
	g.outstanding.Set(s.OutstandingTotal.InexactFloat64())
	g.todayCollected.Set(s.TodayCollected.InexactFloat64())
	g.monthCollected.Set(s.ThisMonthCollected.InexactFloat64())
	g.unpaidInvoices.Set(float64(s.UnpaidInvoices))
	g.pendingClaims.Set(float64(s.PendingClaims))
	g.lastSnapshotTime.Set(float64(at.Unix()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	g.memoryBytes.Set(float64(m.Sys))
}

type treasurySource interface {
	TreasurySummary(ctx context.Context, today time.Time) (settlementdomain.TreasurySummary, error)
}

type claimSource interface {
	CountPending(ctx context.Context) (int64, error)
}

// Collect reads the current treasury state.
func Collect(ctx context.Context, c clock.Clock, treasury treasurySource, claims claimSource) (Snapshot, error) {
	summary, err := treasury.TreasurySummary(ctx, clock.Today(c))
	if err != nil {
		return Snapshot{}, err
	}
	pending, err := claims.CountPending(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		UnionBalance:       summary.UnionBalance,
		OutstandingTotal:   summary.TotalCollected.Sub(summary.TotalSettled),
		TodayCollected:     summary.TodayCollected,
		ThisMonthCollected: summary.ThisMonthCollected,
		UnpaidInvoices:     summary.UnpaidInvoices,
		PendingClaims:      pending,
	}, nil
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
