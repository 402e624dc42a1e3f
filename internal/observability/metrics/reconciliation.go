package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Operations that move money and run inside one transaction.
const (
	OpCollectCash     = "collect_cash"
	OpApproveClaim    = "approve_claim"
	OpOverride        = "override"
	OpRecordSettle    = "record_settlement"
	OpRecordExpense   = "record_expense"
	OpFundraiser      = "fundraiser"
	OpFundraiserPatch = "fundraiser_adjust"
	OpOnboard         = "onboard"
)

// Row or range locks waited on by those operations.
const (
	LockLedgerTail = "ledger_tail"
	LockInvoiceRow = "invoice_row"
	LockCollector  = "collector_row"
	LockClaimRow   = "claim_row"
	LockFundraiser = "fundraiser_row"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonDB                   = "db"
	ReasonRejected             = "rejected"
)

// ReconciliationMetrics are prometheus series for money-moving transactions,
// exposed on /metrics and read by the remote pusher.
type ReconciliationMetrics struct {
	txDuration    *prometheus.HistogramVec
	txErrors      *prometheus.CounterVec
	lockWait      *prometheus.HistogramVec
	ledgerBalance prometheus.Gauge
	outstanding   prometheus.Gauge
	overdueUnits  prometheus.Gauge
}

var (
	reconciliationOnce    sync.Once
	reconciliationMetrics *ReconciliationMetrics
)

// Reconciliation returns the process-wide series registered on the default registerer.
func Reconciliation() *ReconciliationMetrics {
	return ReconciliationWithConfig(Config{})
}

func ReconciliationWithConfig(cfg Config) *ReconciliationMetrics {
	reconciliationOnce.Do(func() {
		reconciliationMetrics = newReconciliationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconciliationMetrics
}

func newReconciliationMetrics(registerer prometheus.Registerer, cfg Config) *ReconciliationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName(cfg),
		"env":     environment,
	}

	m := &ReconciliationMetrics{
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "duesledger_tx_duration_seconds",
			Help:        "Duration of money-moving transactions.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"operation"}),
		txErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "duesledger_tx_errors_total",
			Help:        "Failed money-moving transactions by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"operation", "reason"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "duesledger_db_lock_wait_seconds",
			Help:        "Time spent acquiring row and ledger tail locks.",
			Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}, []string{"resource"}),
		ledgerBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "duesledger_union_ledger_balance",
			Help:        "Running balance after the latest ledger entry.",
			ConstLabels: constLabels,
		}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "duesledger_collector_outstanding_total",
			Help:        "Sum of collector outstanding balances at the last treasury summary.",
			ConstLabels: constLabels,
		}),
		overdueUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "duesledger_overdue_residents",
			Help:        "Residents flagged by the last overdue report.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(m.txDuration, m.txErrors, m.lockWait, m.ledgerBalance, m.outstanding, m.overdueUnits)
	return m
}

// ObserveTx records duration and, on failure, the classified reason.
func (m *ReconciliationMetrics) ObserveTx(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.txDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		m.txErrors.WithLabelValues(operation, ClassifyTxError(err)).Inc()
	}
}

func (m *ReconciliationMetrics) ObserveLockWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.lockWait.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *ReconciliationMetrics) SetLedgerBalance(v float64) {
	if m == nil {
		return
	}
	m.ledgerBalance.Set(v)
}

func (m *ReconciliationMetrics) SetOutstandingTotal(v float64) {
	if m == nil {
		return
	}
	m.outstanding.Set(v)
}

func (m *ReconciliationMetrics) SetOverdueResidents(n int) {
	if m == nil {
		return
	}
	m.overdueUnits.Set(float64(n))
}

// ClassifyTxError maps a transaction error to a metric reason.
func ClassifyTxError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return ReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	case IsUniqueViolation(err):
		return ReasonUniqueViolation
	case isDBError(err):
		return ReasonDB
	default:
		return ReasonRejected
	}
}

// IsUniqueViolation reports a duplicate key from gorm, postgres or sqlite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
