package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyTxError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: ReasonSerializationFailure},
		{name: "duplicate_gorm", err: gorm.ErrDuplicatedKey, want: ReasonUniqueViolation},
		{name: "duplicate_pg", err: &pgconn.PgError{Code: "23505"}, want: ReasonUniqueViolation},
		{name: "duplicate_sqlite", err: errors.New("UNIQUE constraint failed: union_ledger_entries.seq"), want: ReasonUniqueViolation},
		{name: "other_pg", err: &pgconn.PgError{Code: "42P01"}, want: ReasonDB},
		{name: "domain", err: errors.New("invoice_not_payable"), want: ReasonRejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyTxError(tc.err))
		})
	}
}

func TestObserveTxCountsFailures(t *testing.T) {
	m := newReconciliationMetrics(prometheus.NewRegistry(), Config{ServiceName: "duesledger", Environment: "test"})

	m.ObserveTx(OpCollectCash, time.Now(), nil)
	m.ObserveTx(OpCollectCash, time.Now(), &pgconn.PgError{Code: "55P03"})
	m.ObserveTx(OpCollectCash, time.Now(), errors.New("amount_exceeds_remaining"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.txErrors.WithLabelValues(OpCollectCash, ReasonDBLockTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.txErrors.WithLabelValues(OpCollectCash, ReasonRejected)))
}

func TestGaugesTrackLatestValue(t *testing.T) {
	m := newReconciliationMetrics(prometheus.NewRegistry(), Config{})

	m.SetLedgerBalance(1200)
	m.SetLedgerBalance(950.5)
	m.SetOverdueResidents(4)

	assert.Equal(t, 950.5, testutil.ToFloat64(m.ledgerBalance))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.overdueUnits))
}

func TestNilReconciliationMetricsIsSafe(t *testing.T) {
	var m *ReconciliationMetrics
	assert.NotPanics(t, func() {
		m.ObserveTx(OpOverride, time.Now(), errors.New("x"))
		m.ObserveLockWait(LockLedgerTail, time.Second)
		m.SetLedgerBalance(1)
	})
}

func TestSchedulerMetrics(t *testing.T) {
	m := newSchedulerMetrics(prometheus.NewRegistry(), Config{Environment: "test"})

	m.IncJobRun("ledger_verify")
	m.IncJobError("ledger_verify", &pgconn.PgError{Code: "40001"})
	m.IncJobError("ledger_verify", nil)
	m.AddProcessed("stale_claims", 3)
	m.SetFindings("stale_claims", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("ledger_verify")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobErrors.WithLabelValues("ledger_verify", ReasonSerializationFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.batchProcessed.WithLabelValues("stale_claims")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.findings.WithLabelValues("stale_claims")))

	var nilMetrics *SchedulerMetrics
	nilMetrics.IncJobRun("noop")
}
