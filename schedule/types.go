/*
Package schedule provides the core class-attendance and session-ledger engine.

PURPOSE:
  This package contains the domain types and algorithms behind the staff
  scheduler: attendance status transitions, membership session accounting,
  chronological session numbering, and the monthly submit/approve workflow.
  The surrounding application (member CRUD, payments, calendar UI) is
  plumbing around these four pieces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Discipline: The category of a class block (PT, OT, Consulting, Personal)
  - Status: Attendance outcome of a class; legal values depend on Discipline
  - ClassRecord: One scheduled or past class/personal block
  - MembershipLedger: A membership's session counter (used vs purchased)
  - MonthlySubmission: A staff's lock/approval record for one calendar month

DESIGN PRINCIPLES:
  1. Closed enums: statuses are typed constants checked against per-discipline
     domains, never free-form strings
  2. Derived facts: whether a status consumes a paid session is a predicate
     over the status, not a stored field
  3. Idempotence: the ledger is charged from the record's persisted
     LastChargedConsumed fact, never from a caller-supplied delta

USAGE:
  rec, _ := recordStore.Get(ctx, id)
  tr, err := schedule.ApplyTransition(rec, schedule.StatusCompleted)
  // tr.LedgerDelta is -1, 0 or +1

SEE ALSO:
  - transition.go: Attendance state machine
  - ledger.go: Session ledger engine
  - indexer.go: Chronological session numbering
  - gate.go: Monthly submission gate
*/
package schedule

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string
type StaffID string
type MemberID string
type LedgerID string

// =============================================================================
// DISCIPLINE - Category of a class block
// =============================================================================

type Discipline string

const (
	DisciplinePT         Discipline = "PT"
	DisciplineOT         Discipline = "OT"
	DisciplineConsulting Discipline = "Consulting"
	DisciplinePersonal   Discipline = "Personal"
)

// HasAttendance reports whether the discipline carries an attendance status.
// Consulting and Personal blocks are classified by SubType only.
func (d Discipline) HasAttendance() bool {
	return d == DisciplinePT || d == DisciplineOT
}

// Valid reports whether d is a known discipline.
func (d Discipline) Valid() bool {
	switch d {
	case DisciplinePT, DisciplineOT, DisciplineConsulting, DisciplinePersonal:
		return true
	}
	return false
}

// =============================================================================
// STATUS - Attendance outcome, domain depends on discipline
// =============================================================================

type Status string

const (
	StatusReserved       Status = "reserved"
	StatusCompleted      Status = "completed"
	StatusNoShowDeducted Status = "no_show_deducted"
	StatusNoShow         Status = "no_show"
	StatusService        Status = "service"
	StatusCancelled      Status = "cancelled"
	StatusConverted      Status = "converted" // OT only: trial converted to a PT membership

	// StatusNone is carried by Consulting/Personal blocks, which have no
	// attendance status of their own.
	StatusNone Status = ""
)

// statusDomains lists the legal statuses per discipline. Any current status
// may move to any other status in the same domain; the per-discipline set is
// the only structural restriction.
var statusDomains = map[Discipline]map[Status]bool{
	DisciplinePT: {
		StatusReserved:       true,
		StatusCompleted:      true,
		StatusNoShowDeducted: true,
		StatusNoShow:         true,
		StatusService:        true,
		StatusCancelled:      true,
	},
	DisciplineOT: {
		StatusReserved:  true,
		StatusCompleted: true,
		StatusNoShow:    true,
		StatusCancelled: true,
		StatusConverted: true,
	},
}

// InDomain reports whether s is a legal status for discipline d.
// Consulting/Personal have an empty domain: only StatusNone is legal.
func (d Discipline) InDomain(s Status) bool {
	if !d.HasAttendance() {
		return s == StatusNone
	}
	return statusDomains[d][s]
}

// ConsumesSession reports whether a status debits the member's paid session
// counter. This predicate - not the raw status - is what the ledger engine
// cares about: completed and no_show_deducted both bill one session, so a
// transition between them produces no ledger delta.
func ConsumesSession(s Status) bool {
	return s == StatusCompleted || s == StatusNoShowDeducted
}

// CountsForIndex reports whether a status advances the chronological session
// counter used for display numbering. Deliberately wider than
// ConsumesSession: service sessions are numbered as used for scheduling
// continuity but are not billed against the paid counter.
func CountsForIndex(s Status) bool {
	return s == StatusCompleted || s == StatusService || s == StatusNoShowDeducted
}

// =============================================================================
// CLASS RECORD - One scheduled or past class/personal block
// =============================================================================

type ClassRecord struct {
	ID         RecordID
	StaffID    StaffID
	MemberID   MemberID // empty for Personal/administrative blocks
	Discipline Discipline
	Status     Status
	SubType    string // free classification tag, Consulting/Personal only
	StartTime  time.Time
	EndTime    time.Time

	// LastChargedConsumed is the consumed-fact this record last charged
	// against the member's ledger. The ledger engine settles against this
	// persisted fact, which makes retried transitions idempotent.
	LastChargedConsumed bool

	// Locked is derived from the owning month's submission state when the
	// record is loaded. Never persisted.
	Locked bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the structural invariants of a record.
func (r *ClassRecord) Validate() error {
	if !r.Discipline.Valid() {
		return &InvalidTransitionError{RecordID: r.ID, Discipline: r.Discipline, To: r.Status}
	}
	if !r.Discipline.InDomain(r.Status) {
		return &InvalidTransitionError{RecordID: r.ID, Discipline: r.Discipline, From: r.Status, To: r.Status}
	}
	if r.Discipline.HasAttendance() && r.MemberID == "" {
		return ErrMemberRequired
	}
	if !r.EndTime.After(r.StartTime) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Month returns the calendar month the record belongs to, which is the
// granularity at which the submission gate locks it.
func (r *ClassRecord) Month() YearMonth {
	return YearMonthOf(r.StartTime)
}

// =============================================================================
// MEMBERSHIP LEDGER - Session counter owned by a member
// =============================================================================

type LedgerStatus string

const (
	LedgerActive  LedgerStatus = "active"
	LedgerExpired LedgerStatus = "expired"
	LedgerPaused  LedgerStatus = "paused"
)

// MembershipLedger tracks sessions used against sessions purchased for one
// membership. A member may accumulate several ledgers over time; only the
// most recently created active one is charged.
type MembershipLedger struct {
	ID            LedgerID
	MemberID      MemberID
	TotalSessions int
	UsedSessions  int
	Status        LedgerStatus

	// Version supports optimistic concurrency: AdjustUsed only applies
	// against the version it read, so concurrent trainers recording
	// attendance for the same member cannot race on UsedSessions.
	Version int64

	CreatedAt time.Time
}

// Remaining returns the sessions still available on this ledger.
func (l *MembershipLedger) Remaining() int {
	return l.TotalSessions - l.UsedSessions
}

// =============================================================================
// MONTHLY SUBMISSION - Lock/approval record per (staff, month)
// =============================================================================

type SubmissionStatus string

const (
	SubmissionNone      SubmissionStatus = "none"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionApproved  SubmissionStatus = "approved"
	SubmissionRejected  SubmissionStatus = "rejected"
)

// Locks reports whether the status makes the month's records immutable.
func (s SubmissionStatus) Locks() bool {
	return s == SubmissionSubmitted || s == SubmissionApproved
}

type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

type MonthlySubmission struct {
	StaffID     StaffID
	YearMonth   YearMonth
	Status      SubmissionStatus
	SubmittedAt time.Time
	ReviewedAt  time.Time
	ReviewedBy  string
	AdminMemo   string

	// Version supports the submit/review race: an upsert only applies
	// against the version it read.
	Version int64
}

// =============================================================================
// INDEXED RECORD - Read-time projection, never persisted
// =============================================================================

// IndexedRecord is a ClassRecord annotated with its chronological session
// number within the (member, discipline) group. Pending marks records whose
// status does not yet count toward the sequence; they display the number
// they will take once they do.
type IndexedRecord struct {
	ClassRecord
	SessionNumber int
	Pending       bool
}
