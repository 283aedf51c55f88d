/*
Package sqlite provides a SQLite-backed implementation of the payments storage interfaces.

PURPOSE:
  Implements payments.TxStore plus the collaborators the engine talks to
  (category resolver, audit sink, auto-attribution run log) using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  payments.TxStore:          Payments, income events, attribution ledger
  payments.CategoryResolver: Active category lookup
  payments.AuditSink:        audit_log rows
  payments.RunLog:           attribution_runs rows

KEY TABLES:
  households:        Tenancy root
  categories:        Household taxonomy (resolver only)
  payments:          Obligations; "overdue" is never stored
  income_events:     Inflows with allocated/remaining balances
  attributions:      Ledger rows, inserted and deleted, never updated
  audit_log:         Payment changes with JSON before/after snapshots
  attribution_runs:  Scheduler history

MONEY AND DATES:
  Amounts are stored as decimal TEXT (shopspring/decimal), never REAL.
  Calendar dates are TEXT "YYYY-MM-DD", instants fixed-width UTC with nanoseconds.

CONCURRENCY:
  Writers serialize on a store mutex held for the whole WithTx call, and
  every transaction begins IMMEDIATE so a second process is refused the
  write lock up front. SQLITE_BUSY/SQLITE_LOCKED and deadline expiry
  surface as generic.ErrConflict. Reads outside a transaction do not take
  the mutex; WAL lets them run beside the writer.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := payments.NewEngine(store, store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payments/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/household-payments/generic"
	"github.com/warp/household-payments/payments"
)

// Store implements the payments storage interfaces using SQLite.
type Store struct {
	queries // reads outside a transaction

	db *sql.DB
	mu sync.Mutex
}

// DefaultBusyTimeout is how long a writer waits for another process's
// write lock before the transaction fails with generic.ErrConflict.
const DefaultBusyTimeout = 5 * time.Second

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(dbPath, DefaultBusyTimeout)
}

// Open is New with an explicit busy timeout.
func Open(dbPath string, busyTimeout time.Duration) (*Store, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		dbPath, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS households (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL REFERENCES households(id),
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_categories_household
		ON categories(household_id);

	-- Payments (status 'overdue' is derived at read time, never written)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL REFERENCES households(id),
		payee TEXT NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		kind TEXT NOT NULL,
		frequency TEXT NOT NULL,
		next_due_date TEXT,
		status TEXT NOT NULL CHECK (status IN ('scheduled', 'partial', 'paid', 'cancelled')),
		paid_date TEXT,
		paid_amount TEXT,
		category_id TEXT NOT NULL,
		auto_pay BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		spawned_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: upcoming/overdue/summary scans
	CREATE INDEX IF NOT EXISTS idx_payments_household_due
		ON payments(household_id, due_date);
	CREATE INDEX IF NOT EXISTS idx_payments_household_status
		ON payments(household_id, status);

	CREATE TABLE IF NOT EXISTS income_events (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL REFERENCES households(id),
		source TEXT NOT NULL DEFAULT '',
		total_amount TEXT NOT NULL,
		allocated_amount TEXT NOT NULL,
		remaining_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		scheduled_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_income_household_date
		ON income_events(household_id, scheduled_date);

	-- Attribution ledger (insert/delete only)
	CREATE TABLE IF NOT EXISTS attributions (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL REFERENCES households(id),
		payment_id TEXT NOT NULL REFERENCES payments(id),
		income_event_id TEXT NOT NULL REFERENCES income_events(id),
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attributions_payment
		ON attributions(household_id, payment_id);
	CREATE INDEX IF NOT EXISTS idx_attributions_income
		ON attributions(income_event_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		household_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		before_json TEXT,
		after_json TEXT,
		actor_id TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_household
		ON audit_log(household_id, id);

	-- Auto-attribution scheduler history
	CREATE TABLE IF NOT EXISTS attribution_runs (
		id TEXT PRIMARY KEY,
		household_id TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		attributed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_attribution_runs_household
		ON attribution_runs(household_id, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (payments.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store payments.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", conflict(err))
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: queries{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", conflict(err))
	}
	return nil
}

// txStore is the view handed to WithTx callbacks. Every statement runs on
// the open *sql.Tx, never on the pool.
type txStore struct {
	queries
}

// Writes outside WithTx run in their own transaction.

func (s *Store) SavePayment(ctx context.Context, p payments.Payment) error {
	return s.WithTx(ctx, func(tx payments.Store) error { return tx.SavePayment(ctx, p) })
}

func (s *Store) DeletePayment(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) error {
	return s.WithTx(ctx, func(tx payments.Store) error { return tx.DeletePayment(ctx, householdID, id) })
}

func (s *Store) AdjustIncomeBalances(ctx context.Context, householdID generic.HouseholdID, id generic.IncomeEventID, deltaAllocated, deltaRemaining decimal.Decimal) error {
	return s.WithTx(ctx, func(tx payments.Store) error {
		return tx.AdjustIncomeBalances(ctx, householdID, id, deltaAllocated, deltaRemaining)
	})
}

func (s *Store) InsertAttribution(ctx context.Context, a payments.Attribution) error {
	return s.WithTx(ctx, func(tx payments.Store) error { return tx.InsertAttribution(ctx, a) })
}

func (s *Store) DeleteAttribution(ctx context.Context, householdID generic.HouseholdID, id generic.AttributionID) error {
	return s.WithTx(ctx, func(tx payments.Store) error { return tx.DeleteAttribution(ctx, householdID, id) })
}

// =============================================================================
// QUERIES - shared by the pool and the transaction view
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

func (qs queries) HouseholdExists(ctx context.Context, householdID generic.HouseholdID) (bool, error) {
	var count int
	err := qs.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM households WHERE id = ?", householdID).Scan(&count)
	if err != nil {
		return false, conflict(err)
	}
	return count > 0, nil
}

const paymentColumns = `id, household_id, payee, amount, due_date, kind, frequency, next_due_date,
	status, paid_date, paid_amount, category_id, auto_pay, notes, spawned_id, created_at, updated_at`

func (qs queries) GetPayment(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) (*payments.Payment, error) {
	rows, err := qs.q.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE household_id = ? AND id = ?",
		householdID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", conflict(err))
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPayment(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (qs queries) ListPayments(ctx context.Context, householdID generic.HouseholdID, filter payments.PaymentFilter) ([]payments.Payment, error) {
	query := "SELECT " + paymentColumns + " FROM payments WHERE household_id = ?"
	args := []any{householdID}
	if filter.DueFrom != nil {
		query += " AND due_date >= ?"
		args = append(args, filter.DueFrom.String())
	}
	if filter.DueTo != nil {
		query += " AND due_date <= ?"
		args = append(args, filter.DueTo.String())
	}
	if len(filter.Statuses) > 0 {
		query += " AND status IN (?" + strings.Repeat(", ?", len(filter.Statuses)-1) + ")"
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY due_date ASC, id ASC"

	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", conflict(err))
	}
	defer rows.Close()

	var out []payments.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (qs queries) SavePayment(ctx context.Context, p payments.Payment) error {
	if p.Status == payments.StatusOverdue {
		return fmt.Errorf("payment %s: overdue is a derived status and is never stored", p.ID)
	}
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payee = excluded.payee,
			amount = excluded.amount,
			due_date = excluded.due_date,
			kind = excluded.kind,
			frequency = excluded.frequency,
			next_due_date = excluded.next_due_date,
			status = excluded.status,
			paid_date = excluded.paid_date,
			paid_amount = excluded.paid_amount,
			category_id = excluded.category_id,
			auto_pay = excluded.auto_pay,
			notes = excluded.notes,
			spawned_id = excluded.spawned_id,
			updated_at = excluded.updated_at
		WHERE payments.household_id = excluded.household_id
	`
	res, err := qs.q.ExecContext(ctx, query,
		p.ID, p.HouseholdID, p.Payee, p.Amount.String(), p.DueDate.String(),
		string(p.Kind), string(p.Frequency), nullDate(p.NextDueDate),
		string(p.Status), nullDate(p.PaidDate), nullDecimal(p.PaidAmount),
		p.CategoryID, p.AutoPay, p.Notes, nullPaymentID(p.SpawnedID),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", conflict(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment %s belongs to another household", p.ID)
	}
	return nil
}

func (qs queries) DeletePayment(ctx context.Context, householdID generic.HouseholdID, id generic.PaymentID) error {
	res, err := qs.q.ExecContext(ctx, "DELETE FROM payments WHERE household_id = ? AND id = ?", householdID, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", conflict(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound(generic.EntityPayment, id)
	}
	return nil
}

const incomeColumns = `id, household_id, source, total_amount, allocated_amount, remaining_amount,
	status, scheduled_date, created_at`

func (qs queries) GetIncomeEvent(ctx context.Context, householdID generic.HouseholdID, id generic.IncomeEventID) (*payments.IncomeEvent, error) {
	rows, err := qs.q.QueryContext(ctx,
		"SELECT "+incomeColumns+" FROM income_events WHERE household_id = ? AND id = ?",
		householdID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get income event: %w", conflict(err))
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	ev, err := scanIncome(rows)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (qs queries) ListIncomeEvents(ctx context.Context, householdID generic.HouseholdID) ([]payments.IncomeEvent, error) {
	rows, err := qs.q.QueryContext(ctx,
		"SELECT "+incomeColumns+" FROM income_events WHERE household_id = ? ORDER BY scheduled_date ASC, id ASC",
		householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to query income events: %w", conflict(err))
	}
	defer rows.Close()

	var out []payments.IncomeEvent
	for rows.Next() {
		ev, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// AdjustIncomeBalances reads the event, applies the deltas in decimal and
// writes both balances back. Callers are inside a transaction.
func (qs queries) AdjustIncomeBalances(ctx context.Context, householdID generic.HouseholdID, id generic.IncomeEventID, deltaAllocated, deltaRemaining decimal.Decimal) error {
	ev, err := qs.GetIncomeEvent(ctx, householdID, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return generic.NotFound(generic.EntityIncomeEvent, id)
	}
	next := *ev
	next.AllocatedAmount = ev.AllocatedAmount.Add(deltaAllocated)
	next.RemainingAmount = ev.RemainingAmount.Add(deltaRemaining)
	if next.RemainingAmount.IsNegative() {
		return &generic.InsufficientIncomeError{
			IncomeEventID: id,
			Remaining:     ev.RemainingAmount,
			Requested:     deltaRemaining.Neg(),
		}
	}
	if !next.Balanced() {
		return fmt.Errorf("income event %s: balance adjustment breaks conservation (allocated %s, remaining %s, total %s)",
			id, next.AllocatedAmount, next.RemainingAmount, next.TotalAmount)
	}

	_, err = qs.q.ExecContext(ctx,
		"UPDATE income_events SET allocated_amount = ?, remaining_amount = ? WHERE household_id = ? AND id = ?",
		next.AllocatedAmount.String(), next.RemainingAmount.String(), householdID, id)
	if err != nil {
		return fmt.Errorf("failed to adjust income balances: %w", conflict(err))
	}
	return nil
}

const attributionColumns = `id, household_id, payment_id, income_event_id, amount, kind, created_by, created_at`

func (qs queries) GetAttribution(ctx context.Context, householdID generic.HouseholdID, id generic.AttributionID) (*payments.Attribution, error) {
	list, err := qs.queryAttributions(ctx,
		"SELECT "+attributionColumns+" FROM attributions WHERE household_id = ? AND id = ?",
		householdID, id)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (qs queries) ListAttributions(ctx context.Context, householdID generic.HouseholdID, paymentID generic.PaymentID) ([]payments.Attribution, error) {
	return qs.queryAttributions(ctx,
		"SELECT "+attributionColumns+" FROM attributions WHERE household_id = ? AND payment_id = ? ORDER BY rowid ASC",
		householdID, paymentID)
}

func (qs queries) ListHouseholdAttributions(ctx context.Context, householdID generic.HouseholdID) ([]payments.Attribution, error) {
	return qs.queryAttributions(ctx,
		"SELECT "+attributionColumns+" FROM attributions WHERE household_id = ? ORDER BY rowid ASC",
		householdID)
}

func (qs queries) InsertAttribution(ctx context.Context, a payments.Attribution) error {
	_, err := qs.q.ExecContext(ctx,
		"INSERT INTO attributions ("+attributionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		a.ID, a.HouseholdID, a.PaymentID, a.IncomeEventID, a.Amount.String(),
		string(a.Kind), a.CreatedBy, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert attribution: %w", conflict(err))
	}
	return nil
}

func (qs queries) DeleteAttribution(ctx context.Context, householdID generic.HouseholdID, id generic.AttributionID) error {
	res, err := qs.q.ExecContext(ctx, "DELETE FROM attributions WHERE household_id = ? AND id = ?", householdID, id)
	if err != nil {
		return fmt.Errorf("failed to delete attribution: %w", conflict(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound(generic.EntityAttribution, id)
	}
	return nil
}

func (qs queries) queryAttributions(ctx context.Context, query string, args ...any) ([]payments.Attribution, error) {
	rows, err := qs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributions: %w", conflict(err))
	}
	defer rows.Close()

	var out []payments.Attribution
	for rows.Next() {
		var (
			a         payments.Attribution
			amount    string
			kind      string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.HouseholdID, &a.PaymentID, &a.IncomeEventID,
			&amount, &kind, &a.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attribution: %w", err)
		}
		if a.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("attribution %s: bad amount %q: %w", a.ID, amount, err)
		}
		a.Kind = payments.AttributionKind(kind)
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNERS
// =============================================================================

func scanPayment(rows *sql.Rows) (payments.Payment, error) {
	var (
		p                     payments.Payment
		amount, due           string
		kind, freq, status    string
		nextDue, paidDate     sql.NullString
		paidAmount, spawnedID sql.NullString
		createdAt, updatedAt  string
	)
	err := rows.Scan(
		&p.ID, &p.HouseholdID, &p.Payee, &amount, &due, &kind, &freq, &nextDue,
		&status, &paidDate, &paidAmount, &p.CategoryID, &p.AutoPay, &p.Notes, &spawnedID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return p, fmt.Errorf("payment %s: bad amount %q: %w", p.ID, amount, err)
	}
	if p.DueDate, err = generic.ParseDate(due); err != nil {
		return p, fmt.Errorf("payment %s: bad due date: %w", p.ID, err)
	}
	p.Kind = payments.Kind(kind)
	p.Frequency = generic.Frequency(freq)
	p.Status = payments.Status(status)
	if nextDue.Valid {
		d, err := generic.ParseDate(nextDue.String)
		if err != nil {
			return p, fmt.Errorf("payment %s: bad next due date: %w", p.ID, err)
		}
		p.NextDueDate = &d
	}
	if paidDate.Valid {
		d, err := generic.ParseDate(paidDate.String)
		if err != nil {
			return p, fmt.Errorf("payment %s: bad paid date: %w", p.ID, err)
		}
		p.PaidDate = &d
	}
	if paidAmount.Valid {
		v, err := decimal.NewFromString(paidAmount.String)
		if err != nil {
			return p, fmt.Errorf("payment %s: bad paid amount: %w", p.ID, err)
		}
		p.PaidAmount = &v
	}
	if spawnedID.Valid {
		id := generic.PaymentID(spawnedID.String)
		p.SpawnedID = &id
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func scanIncome(rows *sql.Rows) (payments.IncomeEvent, error) {
	var (
		ev                       payments.IncomeEvent
		total, allocated, remain string
		status, scheduled        string
		createdAt                string
	)
	err := rows.Scan(&ev.ID, &ev.HouseholdID, &ev.Source, &total, &allocated, &remain,
		&status, &scheduled, &createdAt)
	if err != nil {
		return ev, fmt.Errorf("failed to scan income event: %w", err)
	}
	if ev.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return ev, fmt.Errorf("income event %s: bad total: %w", ev.ID, err)
	}
	if ev.AllocatedAmount, err = decimal.NewFromString(allocated); err != nil {
		return ev, fmt.Errorf("income event %s: bad allocated: %w", ev.ID, err)
	}
	if ev.RemainingAmount, err = decimal.NewFromString(remain); err != nil {
		return ev, fmt.Errorf("income event %s: bad remaining: %w", ev.ID, err)
	}
	if ev.ScheduledDate, err = generic.ParseDate(scheduled); err != nil {
		return ev, fmt.Errorf("income event %s: bad scheduled date: %w", ev.ID, err)
	}
	ev.Status = payments.IncomeStatus(status)
	ev.CreatedAt = parseTime(createdAt)
	return ev, nil
}

// =============================================================================
// HOUSEHOLDS & CATEGORIES
// =============================================================================

func (s *Store) CreateHousehold(ctx context.Context, h payments.Household) (*payments.Household, error) {
	if h.Name == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "required"}
	}
	if h.ID == "" {
		h.ID = generic.HouseholdID(uuid.NewString())
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO households (id, name, created_at) VALUES (?, ?, ?)",
		h.ID, h.Name, formatTime(h.CreatedAt))
	if isUniqueConstraintError(err) {
		return nil, &generic.ValidationError{Field: "id", Message: "household already exists"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create household: %w", conflict(err))
	}
	return &h, nil
}

func (s *Store) ListHouseholds(ctx context.Context) ([]payments.Household, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at FROM households ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query households: %w", conflict(err))
	}
	defer rows.Close()

	var out []payments.Household
	for rows.Next() {
		var h payments.Household
		var createdAt string
		if err := rows.Scan(&h.ID, &h.Name, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, c payments.Category) (*payments.Category, error) {
	if c.Name == "" {
		return nil, &generic.ValidationError{Field: "name", Message: "required"}
	}
	if c.ID == "" {
		c.ID = generic.CategoryID(uuid.NewString())
	}
	err := s.WithTx(ctx, func(tx payments.Store) error {
		ok, err := tx.HouseholdExists(ctx, c.HouseholdID)
		if err != nil {
			return err
		}
		if !ok {
			return generic.NotFound(generic.EntityHousehold, c.HouseholdID)
		}
		_, err = tx.(*txStore).q.ExecContext(ctx,
			"INSERT INTO categories (id, household_id, name, active) VALUES (?, ?, ?, ?)",
			c.ID, c.HouseholdID, c.Name, c.Active)
		if err != nil {
			return fmt.Errorf("failed to create category: %w", conflict(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ResolveActiveCategory implements payments.CategoryResolver.
func (s *Store) ResolveActiveCategory(ctx context.Context, householdID generic.HouseholdID, id generic.CategoryID) (*payments.Category, error) {
	var c payments.Category
	err := s.db.QueryRowContext(ctx,
		"SELECT id, household_id, name, active FROM categories WHERE id = ? AND household_id = ? AND active",
		id, householdID,
	).Scan(&c.ID, &c.HouseholdID, &c.Name, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category: %w", conflict(err))
	}
	return &c, nil
}

// =============================================================================
// INCOME EVENTS (created by the income collaborator)
// =============================================================================

// CreateIncomeEvent registers an income event with nothing allocated.
func (s *Store) CreateIncomeEvent(ctx context.Context, ev payments.IncomeEvent) (*payments.IncomeEvent, error) {
	if err := generic.RequirePositive("total_amount", ev.TotalAmount); err != nil {
		return nil, err
	}
	if ev.ScheduledDate.IsZero() {
		return nil, &generic.ValidationError{Field: "scheduled_date", Message: "required"}
	}
	if ev.ID == "" {
		ev.ID = generic.IncomeEventID(uuid.NewString())
	}
	if ev.Status == "" {
		ev.Status = payments.IncomeScheduled
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	ev.AllocatedAmount = decimal.Zero
	ev.RemainingAmount = ev.TotalAmount

	err := s.WithTx(ctx, func(tx payments.Store) error {
		ok, err := tx.HouseholdExists(ctx, ev.HouseholdID)
		if err != nil {
			return err
		}
		if !ok {
			return generic.NotFound(generic.EntityHousehold, ev.HouseholdID)
		}
		_, err = tx.(*txStore).q.ExecContext(ctx,
			"INSERT INTO income_events ("+incomeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			ev.ID, ev.HouseholdID, ev.Source, ev.TotalAmount.String(),
			ev.AllocatedAmount.String(), ev.RemainingAmount.String(),
			string(ev.Status), ev.ScheduledDate.String(), formatTime(ev.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to create income event: %w", conflict(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// =============================================================================
// AUDIT LOG (payments.AuditSink)
// =============================================================================

// Record implements payments.AuditSink.
func (s *Store) Record(ctx context.Context, entry payments.AuditEntry) error {
	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (household_id, action, entity_type, entity_id, before_json, after_json, actor_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.HouseholdID, string(entry.Action), entry.EntityType, entry.EntityID,
		before, after, entry.ActorID, formatTime(entry.At))
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", conflict(err))
	}
	return nil
}

// ListAuditEntries returns the household's audit trail, oldest first.
func (s *Store) ListAuditEntries(ctx context.Context, householdID generic.HouseholdID) ([]payments.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT household_id, action, entity_type, entity_id, before_json, after_json, actor_id, at
		FROM audit_log WHERE household_id = ? ORDER BY id ASC`, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", conflict(err))
	}
	defer rows.Close()

	var out []payments.AuditEntry
	for rows.Next() {
		var (
			e             payments.AuditEntry
			action, at    string
			before, after sql.NullString
		)
		if err := rows.Scan(&e.HouseholdID, &action, &e.EntityType, &e.EntityID,
			&before, &after, &e.ActorID, &at); err != nil {
			return nil, err
		}
		e.Action = payments.AuditAction(action)
		e.At = parseTime(at)
		if e.Before, err = unmarshalSnapshot(before); err != nil {
			return nil, err
		}
		if e.After, err = unmarshalSnapshot(after); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalSnapshot(p *payments.Payment) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode audit snapshot: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalSnapshot(s sql.NullString) (*payments.Payment, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var p payments.Payment
	if err := json.Unmarshal([]byte(s.String), &p); err != nil {
		return nil, fmt.Errorf("failed to decode audit snapshot: %w", err)
	}
	return &p, nil
}

// =============================================================================
// ATTRIBUTION RUNS (payments.RunLog)
// =============================================================================

// SaveAttributionRun saves a scheduler run.
func (s *Store) SaveAttributionRun(ctx context.Context, r payments.AttributionRun) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attribution_runs (id, household_id, started_at, finished_at, attributed, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			attributed = excluded.attributed,
			error = excluded.error`,
		r.ID, r.HouseholdID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Attributed, r.Error)
	if err != nil {
		return fmt.Errorf("failed to save attribution run: %w", conflict(err))
	}
	return nil
}

// ListAttributionRuns returns the household's most recent runs first.
func (s *Store) ListAttributionRuns(ctx context.Context, householdID generic.HouseholdID, limit int) ([]payments.AttributionRun, error) {
	query := `
		SELECT id, household_id, started_at, finished_at, attributed, error
		FROM attribution_runs
		WHERE household_id = ?
		ORDER BY started_at DESC, rowid DESC
	`
	args := []any{householdID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attribution runs: %w", conflict(err))
	}
	defer rows.Close()

	var runs []payments.AttributionRun
	for rows.Next() {
		var r payments.AttributionRun
		var startedAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.HouseholdID, &startedAt, &finishedAt, &r.Attributed, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Helper functions

// conflict maps lock contention and deadline expiry to generic.ErrConflict
// so callers can retry the whole operation.
func conflict(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", generic.ErrConflict, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", generic.ErrConflict, err)
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// timeLayout is fixed width so stored instants sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullDate(d *generic.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDecimal(v *decimal.Decimal) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullPaymentID(id *generic.PaymentID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

// =============================================================================
// Interface checks
// =============================================================================

var (
	_ payments.TxStore          = (*Store)(nil)
	_ payments.CategoryResolver = (*Store)(nil)
	_ payments.AuditSink        = (*Store)(nil)
	_ payments.RunLog           = (*Store)(nil)
	_ payments.Store            = (*txStore)(nil)
)
