/*
store.go - Persistence interfaces for the attendance engine

PURPOSE:
  Defines the interface between the domain logic and the database. The core
  consumes three stores - class records, membership ledgers, monthly
  submissions - plus a transaction runner that spans all three so that a
  status change and its ledger adjustment commit or roll back together.

CONCURRENCY CONTRACT:
  MembershipLedgerStore.AdjustUsed is a conditional update: it applies only
  against the Version the caller read and returns ErrConcurrentModification
  otherwise. Read-modify-write against UsedSessions is never safe - the one
  entity here genuinely shared across concurrent schedulers is the ledger.

BOUNDS CONTRACT:
  AdjustUsed clamps the floor at zero (a credit against an already-zero
  counter is a no-op) and rejects the ceiling with OverconsumptionError.

IMPLEMENTATIONS:
  - store/sqlite:          Production SQLite
  - schedule/store/memory: In-memory for testing

SEE ALSO:
  - ledger.go:  Engine built on MembershipLedgerStore
  - gate.go:    Gate built on MonthlySubmissionStore
  - service.go: Orchestrator using WithTx for two-phase applies
*/
package schedule

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

// ClassRecordStore persists schedule entries.
type ClassRecordStore interface {
	// Get returns the record or nil if it doesn't exist.
	Get(ctx context.Context, id RecordID) (*ClassRecord, error)

	// ListByStaff returns all records owned by a staff, ordered by StartTime.
	ListByStaff(ctx context.Context, staffID StaffID) ([]ClassRecord, error)

	// ListByStaffInRange returns records with StartTime in [from, to).
	ListByStaffInRange(ctx context.Context, staffID StaffID, from, to time.Time) ([]ClassRecord, error)

	// Save inserts or replaces a record.
	Save(ctx context.Context, rec *ClassRecord) error

	// Delete removes a record. Missing records return ErrRecordNotFound.
	Delete(ctx context.Context, id RecordID) error
}

// MembershipLedgerStore persists per-membership session counters.
type MembershipLedgerStore interface {
	// ActiveForMember returns the member's current ledger - the most
	// recently created one with status active - or nil if none exists.
	ActiveForMember(ctx context.Context, memberID MemberID) (*MembershipLedger, error)

	// ListByMember returns all ledgers for a member, newest first.
	ListByMember(ctx context.Context, memberID MemberID) ([]MembershipLedger, error)

	// Save inserts or replaces a ledger (membership purchase/renewal path).
	Save(ctx context.Context, l *MembershipLedger) error

	// AdjustUsed atomically applies delta to UsedSessions, conditional on
	// version. Returns the updated ledger. Floor is clamped at zero;
	// exceeding TotalSessions fails with OverconsumptionError; a version
	// mismatch fails with ErrConcurrentModification.
	AdjustUsed(ctx context.Context, id LedgerID, delta int, version int64) (*MembershipLedger, error)
}

// MonthlySubmissionStore persists per-(staff, month) submission records.
type MonthlySubmissionStore interface {
	// Get returns the submission or nil if the month has never been submitted.
	Get(ctx context.Context, staffID StaffID, ym YearMonth) (*MonthlySubmission, error)

	// Upsert writes the submission, conditional on sub.Version matching the
	// stored version (0 for a new row). On success the stored version is
	// incremented and reflected back into sub.Version. A mismatch fails
	// with ErrConcurrentModification.
	Upsert(ctx context.Context, sub *MonthlySubmission) error
}

// =============================================================================
// STORE BUNDLE + TRANSACTIONS
// =============================================================================

// Stores bundles the three stores the engine consumes. Inside WithTx all
// three are views over the same database transaction.
type Stores struct {
	Records     ClassRecordStore
	Ledgers     MembershipLedgerStore
	Submissions MonthlySubmissionStore
}

// TxRunner executes fn atomically across all three stores.
// If fn returns an error the transaction is rolled back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(Stores) error) error
}
