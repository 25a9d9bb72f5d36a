/*
Package sqlite provides the SQLite-backed implementation of the schedule
stores.

PURPOSE:
  Implements schedule.ClassRecordStore, schedule.MembershipLedgerStore,
  schedule.MonthlySubmissionStore and schedule.TxRunner, plus the member and
  payment tables the surrounding application needs. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

CONCURRENCY:
  The one counter genuinely shared across concurrent callers is
  membership_ledgers.used_sessions. AdjustUsed is a single conditional
  UPDATE guarded by the row version and the counter bounds - never a
  read-modify-write. monthly_submissions carries the same version guard so
  a submit racing a review loses deterministically.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, a single writer at a time, better crash
  recovery.

USAGE:
  st, err := sqlite.New("./data/gym.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  svc := schedule.NewService(st.Stores(), st)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - schedule/store.go: Interface definitions
  - schedule/store/memory.go: In-memory implementation for testing
  - members.go: Member and payment persistence
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fitdesk/gym-engine/schedule"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same query code
// serves ambient and transactional calls.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

// Stores returns the bundle view backed by the ambient connection.
func (s *Store) Stores() schedule.Stores {
	return storesOver(s.db)
}

func storesOver(q dbtx) schedule.Stores {
	return schedule.Stores{
		Records:     &recordStore{q},
		Ledgers:     &ledgerStore{q},
		Submissions: &submissionStore{q},
	}
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Schedule entries (classes and personal blocks)
	CREATE TABLE IF NOT EXISTS class_records (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		member_id TEXT NOT NULL DEFAULT '',
		discipline TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		sub_type TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		last_charged_consumed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_class_records_staff_start
		ON class_records(staff_id, start_time);
	CREATE INDEX IF NOT EXISTS idx_class_records_member
		ON class_records(member_id) WHERE member_id != '';

	-- Membership session counters
	CREATE TABLE IF NOT EXISTS membership_ledgers (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		total_sessions INTEGER NOT NULL,
		used_sessions INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		CHECK (used_sessions >= 0),
		CHECK (used_sessions <= total_sessions)
	);

	CREATE INDEX IF NOT EXISTS idx_ledgers_member_status
		ON membership_ledgers(member_id, status, created_at DESC);

	-- Monthly submission records, one per (staff, month)
	CREATE TABLE IF NOT EXISTS monthly_submissions (
		staff_id TEXT NOT NULL,
		year_month TEXT NOT NULL,
		status TEXT NOT NULL,
		submitted_at TEXT,
		reviewed_at TEXT,
		reviewed_by TEXT NOT NULL DEFAULT '',
		admin_memo TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (staff_id, year_month)
	);

	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		joined_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Captured payments (records only; processing lives elsewhere)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		ledger_id TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		captured_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_member
		ON payments(member_id, captured_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (schedule.TxRunner interface)
// =============================================================================

// WithTx executes fn within a database transaction spanning all stores.
func (s *Store) WithTx(ctx context.Context, fn func(schedule.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(storesOver(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// CLASS RECORD STORE
// =============================================================================

type recordStore struct {
	q dbtx
}

const recordColumns = `id, staff_id, member_id, discipline, status, sub_type,
	start_time, end_time, last_charged_consumed, created_at, updated_at`

func (rs *recordStore) Get(ctx context.Context, id schedule.RecordID) (*schedule.ClassRecord, error) {
	row := rs.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM class_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (rs *recordStore) ListByStaff(ctx context.Context, staffID schedule.StaffID) ([]schedule.ClassRecord, error) {
	return rs.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM class_records
		 WHERE staff_id = ? ORDER BY start_time, id`, staffID)
}

func (rs *recordStore) ListByStaffInRange(ctx context.Context, staffID schedule.StaffID, from, to time.Time) ([]schedule.ClassRecord, error) {
	return rs.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM class_records
		 WHERE staff_id = ? AND start_time >= ? AND start_time < ?
		 ORDER BY start_time, id`,
		staffID, formatTime(from), formatTime(to))
}

func (rs *recordStore) Save(ctx context.Context, rec *schedule.ClassRecord) error {
	_, err := rs.q.ExecContext(ctx, `
		INSERT INTO class_records
		(id, staff_id, member_id, discipline, status, sub_type,
		 start_time, end_time, last_charged_consumed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			staff_id = excluded.staff_id,
			member_id = excluded.member_id,
			discipline = excluded.discipline,
			status = excluded.status,
			sub_type = excluded.sub_type,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			last_charged_consumed = excluded.last_charged_consumed,
			updated_at = excluded.updated_at`,
		rec.ID, rec.StaffID, rec.MemberID, rec.Discipline, rec.Status, rec.SubType,
		formatTime(rec.StartTime), formatTime(rec.EndTime),
		boolInt(rec.LastChargedConsumed),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save class record: %w", err)
	}
	return nil
}

func (rs *recordStore) Delete(ctx context.Context, id schedule.RecordID) error {
	res, err := rs.q.ExecContext(ctx, `DELETE FROM class_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete class record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schedule.ErrRecordNotFound
	}
	return nil
}

func (rs *recordStore) queryRecords(ctx context.Context, query string, args ...any) ([]schedule.ClassRecord, error) {
	rows, err := rs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query class records: %w", err)
	}
	defer rows.Close()

	var records []schedule.ClassRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*schedule.ClassRecord, error) {
	var (
		rec                 schedule.ClassRecord
		startTime, endTime  string
		charged             int
		createdAt, updated  string
	)
	err := row.Scan(
		&rec.ID, &rec.StaffID, &rec.MemberID, &rec.Discipline, &rec.Status,
		&rec.SubType, &startTime, &endTime, &charged, &createdAt, &updated,
	)
	if err != nil {
		return nil, err
	}

	rec.StartTime = parseTime(startTime)
	rec.EndTime = parseTime(endTime)
	rec.LastChargedConsumed = charged != 0
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}

// =============================================================================
// MEMBERSHIP LEDGER STORE
// =============================================================================

type ledgerStore struct {
	q dbtx
}

const ledgerColumns = `id, member_id, total_sessions, used_sessions, status, version, created_at`

func (ls *ledgerStore) ActiveForMember(ctx context.Context, memberID schedule.MemberID) (*schedule.MembershipLedger, error) {
	row := ls.q.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM membership_ledgers
		 WHERE member_id = ? AND status = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		memberID, schedule.LedgerActive)
	led, err := scanLedger(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return led, nil
}

func (ls *ledgerStore) ListByMember(ctx context.Context, memberID schedule.MemberID) ([]schedule.MembershipLedger, error) {
	rows, err := ls.q.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM membership_ledgers
		 WHERE member_id = ? ORDER BY created_at DESC, id DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledgers: %w", err)
	}
	defer rows.Close()

	var ledgers []schedule.MembershipLedger
	for rows.Next() {
		led, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		ledgers = append(ledgers, *led)
	}
	return ledgers, rows.Err()
}

func (ls *ledgerStore) Save(ctx context.Context, l *schedule.MembershipLedger) error {
	_, err := ls.q.ExecContext(ctx, `
		INSERT INTO membership_ledgers
		(id, member_id, total_sessions, used_sessions, status, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_sessions = excluded.total_sessions,
			used_sessions = excluded.used_sessions,
			status = excluded.status,
			version = excluded.version`,
		l.ID, l.MemberID, l.TotalSessions, l.UsedSessions, l.Status, l.Version,
		formatTime(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}

// AdjustUsed is the atomic counter update. The WHERE clause carries the
// version guard and the ceiling bound; the floor is clamped with MAX so a
// refund against an already-zero counter stays a no-op instead of failing.
func (ls *ledgerStore) AdjustUsed(ctx context.Context, id schedule.LedgerID, delta int, version int64) (*schedule.MembershipLedger, error) {
	res, err := ls.q.ExecContext(ctx, `
		UPDATE membership_ledgers
		SET used_sessions = MAX(0, used_sessions + ?), version = version + 1
		WHERE id = ? AND version = ? AND used_sessions + ? <= total_sessions`,
		delta, id, version, delta)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust ledger: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 1 {
		return ls.get(ctx, id)
	}

	// Nothing updated: work out which guard failed.
	led, err := ls.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if led == nil {
		return nil, schedule.ErrNoActiveMembership
	}
	if led.Version != version {
		return nil, schedule.ErrConcurrentModification
	}
	return nil, &schedule.OverconsumptionError{
		LedgerID: id,
		Used:     led.UsedSessions,
		Total:    led.TotalSessions,
		Delta:    delta,
	}
}

func (ls *ledgerStore) get(ctx context.Context, id schedule.LedgerID) (*schedule.MembershipLedger, error) {
	row := ls.q.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM membership_ledgers WHERE id = ?`, id)
	led, err := scanLedger(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return led, nil
}

func scanLedger(row scanner) (*schedule.MembershipLedger, error) {
	var (
		led       schedule.MembershipLedger
		createdAt string
	)
	err := row.Scan(&led.ID, &led.MemberID, &led.TotalSessions, &led.UsedSessions,
		&led.Status, &led.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	led.CreatedAt = parseTime(createdAt)
	return &led, nil
}

// =============================================================================
// MONTHLY SUBMISSION STORE
// =============================================================================

type submissionStore struct {
	q dbtx
}

func (ss *submissionStore) Get(ctx context.Context, staffID schedule.StaffID, ym schedule.YearMonth) (*schedule.MonthlySubmission, error) {
	row := ss.q.QueryRowContext(ctx, `
		SELECT staff_id, year_month, status, submitted_at, reviewed_at,
		       reviewed_by, admin_memo, version
		FROM monthly_submissions WHERE staff_id = ? AND year_month = ?`,
		staffID, ym.String())

	var (
		sub                      schedule.MonthlySubmission
		yearMonth                string
		submittedAt, reviewedAt  sql.NullString
	)
	err := row.Scan(&sub.StaffID, &yearMonth, &sub.Status, &submittedAt,
		&reviewedAt, &sub.ReviewedBy, &sub.AdminMemo, &sub.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	sub.YearMonth, err = schedule.ParseYearMonth(yearMonth)
	if err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		sub.SubmittedAt = parseTime(submittedAt.String)
	}
	if reviewedAt.Valid {
		sub.ReviewedAt = parseTime(reviewedAt.String)
	}
	return &sub, nil
}

func (ss *submissionStore) Upsert(ctx context.Context, sub *schedule.MonthlySubmission) error {
	// Version 0 means the caller believes the row doesn't exist yet; the
	// unique primary key rejects a racing first-submit.
	if sub.Version == 0 {
		_, err := ss.q.ExecContext(ctx, `
			INSERT INTO monthly_submissions
			(staff_id, year_month, status, submitted_at, reviewed_at,
			 reviewed_by, admin_memo, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			sub.StaffID, sub.YearMonth.String(), sub.Status,
			nullTime(sub.SubmittedAt), nullTime(sub.ReviewedAt),
			sub.ReviewedBy, sub.AdminMemo)
		if err != nil {
			if isUniqueConstraintError(err) {
				return schedule.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert submission: %w", err)
		}
		sub.Version = 1
		return nil
	}

	res, err := ss.q.ExecContext(ctx, `
		UPDATE monthly_submissions
		SET status = ?, submitted_at = ?, reviewed_at = ?,
		    reviewed_by = ?, admin_memo = ?, version = version + 1
		WHERE staff_id = ? AND year_month = ? AND version = ?`,
		sub.Status, nullTime(sub.SubmittedAt), nullTime(sub.ReviewedAt),
		sub.ReviewedBy, sub.AdminMemo,
		sub.StaffID, sub.YearMonth.String(), sub.Version)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schedule.ErrConcurrentModification
	}
	sub.Version++
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
