// Package dbtest opens in-memory sqlite databases carrying the service schema
// and seeds the rows most tests need.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/duesledger/internal/audit/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE person_details (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL UNIQUE,
		building TEXT NOT NULL,
		floor TEXT NOT NULL DEFAULT '',
		apartment TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE collector_buildings (
		collector_id INTEGER NOT NULL,
		building TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (collector_id, building)
	)`,
	`CREATE TABLE maintenance_invoices (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL,
		due_date DATE NOT NULL,
		paid_date DATE,
		notes TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_invoices_user_period ON maintenance_invoices (user_id, year, month)`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		invoice_id INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		method TEXT NOT NULL,
		notes TEXT,
		collected_by INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE online_payments (
		id INTEGER PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		invoice_id INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		sender_reference TEXT NOT NULL,
		transaction_reference TEXT NOT NULL,
		status TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		reviewed_at DATETIME,
		reviewed_by INTEGER,
		review_notes TEXT
	)`,
	`CREATE UNIQUE INDEX ux_online_payments_one_pending ON online_payments (invoice_id) WHERE status = 'PENDING'`,
	`CREATE TABLE settlements (
		id INTEGER PRIMARY KEY,
		collector_id INTEGER NOT NULL,
		treasurer_id INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		notes TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE union_ledger_entries (
		id INTEGER PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		entry_type TEXT NOT NULL,
		debit NUMERIC NOT NULL DEFAULT 0,
		credit NUMERIC NOT NULL DEFAULT 0,
		balance_after NUMERIC NOT NULL,
		description TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE expenses (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		amount NUMERIC NOT NULL,
		spent_on DATE NOT NULL,
		notes TEXT,
		created_by INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE fund_raisers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		notes TEXT,
		created_by INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_fund_raisers_slug_period ON fund_raisers (slug, year, month)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a private in-memory database with the full schema. A single
// connection keeps the shared cache free of table locks.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func Node(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Seeder inserts fixture rows with ids from its own node.
type Seeder struct {
	t    *testing.T
	db   *gorm.DB
	node *snowflake.Node
	now  time.Time
}

func NewSeeder(t *testing.T, db *gorm.DB) *Seeder {
	t.Helper()
	node, err := snowflake.NewNode(900)
	require.NoError(t, err)
	return &Seeder{t: t, db: db, node: node, now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *Seeder) User(username, role string) snowflake.ID {
	s.t.Helper()
	id := s.node.Generate()
	require.NoError(s.t, s.db.Exec(
		`INSERT INTO users (id, username, full_name, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, username, strings.ToUpper(username[:1])+username[1:], role, s.now, s.now,
	).Error)
	return id
}

func (s *Seeder) Resident(username, building, floor, apartment string) snowflake.ID {
	s.t.Helper()
	id := s.User(username, "RESIDENT")
	require.NoError(s.t, s.db.Exec(
		`INSERT INTO person_details (id, user_id, building, floor, apartment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.node.Generate(), id, building, floor, apartment, s.now,
	).Error)
	return id
}

func (s *Seeder) Building(collectorID snowflake.ID, building string) {
	s.t.Helper()
	require.NoError(s.t, s.db.Exec(
		`INSERT INTO collector_buildings (collector_id, building, created_at) VALUES (?, ?, ?)`,
		collectorID, building, s.now,
	).Error)
}

func (s *Seeder) Invoice(userID snowflake.ID, year, month int, amount, status string) snowflake.ID {
	s.t.Helper()
	id := s.node.Generate()
	due := time.Date(year, time.Month(month), 5, 0, 0, 0, 0, time.UTC)
	require.NoError(s.t, s.db.Exec(
		`INSERT INTO maintenance_invoices (id, user_id, year, month, amount, status, due_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, year, month, Dec(amount), status, due, s.now, s.now,
	).Error)
	return id
}

func (s *Seeder) Payment(userID, invoiceID, collectorID snowflake.ID, amount, method string) snowflake.ID {
	s.t.Helper()
	id := s.node.Generate()
	require.NoError(s.t, s.db.Exec(
		`INSERT INTO payments (id, user_id, invoice_id, amount, method, collected_by, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, invoiceID, Dec(amount), method, collectorID, s.now,
	).Error)
	return id
}

func (s *Seeder) Claim(userID, invoiceID snowflake.ID, amount, status string) snowflake.ID {
	s.t.Helper()
	id := s.node.Generate()
	require.NoError(s.t, s.db.Exec(
		`INSERT INTO online_payments (id, reference, user_id, invoice_id, amount, sender_reference, transaction_reference, status, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, "REF-"+id.String(), userID, invoiceID, Dec(amount), "sender", "txn-"+id.String(), status, s.now,
	).Error)
	return id
}

func (s *Seeder) Settlement(collectorID, treasurerID snowflake.ID, amount string) snowflake.ID {
	s.t.Helper()
	id := s.node.Generate()
	require.NoError(s.t, s.db.Exec(
		`INSERT INTO settlements (id, collector_id, treasurer_id, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, collectorID, treasurerID, Dec(amount), s.now,
	).Error)
	return id
}

// InvoiceStatus reads the stored status and paid date of an invoice.
func InvoiceStatus(t *testing.T, db *gorm.DB, invoiceID snowflake.ID) (string, *time.Time) {
	t.Helper()
	var row struct {
		Status   string
		PaidDate *time.Time
	}
	require.NoError(t, db.Raw(`SELECT status, paid_date FROM maintenance_invoices WHERE id = ?`, invoiceID).Scan(&row).Error)
	return row.Status, row.PaidDate
}

// Count runs a COUNT(1) query.
func Count(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Raw(query, args...).Scan(&n).Error)
	return n
}

// AuditRecorder is an audit service that keeps actions in memory.
type AuditRecorder struct {
	Actions []string
}

func (a *AuditRecorder) AuditLog(_ context.Context, _ string, _ *string, action string, _ string, _ *string, _ map[string]any) error {
	a.Actions = append(a.Actions, action)
	return nil
}

func (a *AuditRecorder) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}
