/*
service.go - Orchestrator for the attendance engine

PURPOSE:
  Wires the four subsystems together behind the operations the API layer
  calls. Every mutating operation follows the same shape:

    1. Open one transaction spanning records, ledgers and submissions
    2. Re-check the monthly lock inside that transaction (server-side;
       the caller's earlier check is advisory only)
    3. Validate the transition against the record's fresh state
    4. Settle the ledger FIRST, then persist the record

  Ordering ledger-then-status inside a single transaction means a ledger
  failure (no active membership, exhausted sessions) rolls everything back
  and the record's status never implies a consumption that wasn't recorded.

SEE ALSO:
  - transition.go: Step 3
  - ledger.go:     Step 4's first half
  - gate.go:       Step 2 and the submit/review operations
*/
package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service exposes the attendance engine's operations.
type Service struct {
	Stores Stores
	Tx     TxRunner
	Gate   *Gate
	Clock  func() time.Time
}

func NewService(stores Stores, tx TxRunner) *Service {
	return &Service{
		Stores: stores,
		Tx:     tx,
		Gate:   NewGate(stores.Submissions),
		Clock:  time.Now,
	}
}

// =============================================================================
// RECORD MUTATIONS - All gate-checked inside the transaction
// =============================================================================

// ChangeStatus applies an attendance status change to one record,
// settling the member's session ledger in the same transaction.
func (s *Service) ChangeStatus(ctx context.Context, id RecordID, requested Status) (*ClassRecord, error) {
	var updated *ClassRecord
	err := s.Tx.WithTx(ctx, func(st Stores) error {
		rec, err := s.loadLocked(ctx, st, id)
		if err != nil {
			return err
		}

		if _, err := ApplyTransition(rec, requested); err != nil {
			return err
		}

		// Ledger first. A failed charge aborts before any status persist.
		engine := NewLedgerEngine(st.Ledgers)
		if err := engine.Settle(ctx, rec, requested); err != nil {
			return err
		}

		rec.Status = requested
		rec.UpdatedAt = s.Clock()
		if err := st.Records.Save(ctx, rec); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Reclassify changes the SubType of a Consulting/Personal block.
func (s *Service) Reclassify(ctx context.Context, id RecordID, subType string) (*ClassRecord, error) {
	var updated *ClassRecord
	err := s.Tx.WithTx(ctx, func(st Stores) error {
		rec, err := s.loadLocked(ctx, st, id)
		if err != nil {
			return err
		}
		if err := ValidateReclassify(rec); err != nil {
			return err
		}

		rec.SubType = subType
		rec.UpdatedAt = s.Clock()
		if err := st.Records.Save(ctx, rec); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateRecord validates and stores a new schedule entry. New PT/OT records
// start reserved unless the caller sets a status explicitly.
func (s *Service) CreateRecord(ctx context.Context, rec *ClassRecord) (*ClassRecord, error) {
	if rec.ID == "" {
		rec.ID = RecordID(uuid.NewString())
	}
	if rec.Discipline.HasAttendance() && rec.Status == StatusNone {
		rec.Status = StatusReserved
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	// Creating a record whose status bills immediately (e.g. importing a
	// past completed class) still settles the ledger.
	wantStatus := rec.Status
	rec.LastChargedConsumed = false

	err := s.Tx.WithTx(ctx, func(st Stores) error {
		if err := s.checkMonth(ctx, st, rec.StaffID, rec.Month(), rec.ID); err != nil {
			return err
		}
		if rec.Discipline.HasAttendance() {
			engine := NewLedgerEngine(st.Ledgers)
			if err := engine.Settle(ctx, rec, wantStatus); err != nil {
				return err
			}
		}
		now := s.Clock()
		rec.CreatedAt = now
		rec.UpdatedAt = now
		return st.Records.Save(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateRecord reschedules a record (times, member, sub type). Status
// changes go through ChangeStatus; this operation rejects them. Reassigning
// a charged record to another member moves the charge between ledgers.
func (s *Service) UpdateRecord(ctx context.Context, rec *ClassRecord) (*ClassRecord, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	var updated *ClassRecord
	err := s.Tx.WithTx(ctx, func(st Stores) error {
		existing, err := s.loadLocked(ctx, st, rec.ID)
		if err != nil {
			return err
		}
		if existing.Locked {
			return &LockedRecordError{RecordID: rec.ID, StaffID: existing.StaffID, YearMonth: existing.Month()}
		}
		if rec.Status != existing.Status {
			return &InvalidTransitionError{
				RecordID:   rec.ID,
				Discipline: existing.Discipline,
				From:       existing.Status,
				To:         rec.Status,
			}
		}
		// A reschedule may move the record into a different month; that
		// month must be open too.
		if rec.Month() != existing.Month() {
			if err := s.checkMonth(ctx, st, existing.StaffID, rec.Month(), rec.ID); err != nil {
				return err
			}
		}
		// Moving a charged record to another member moves the charge with
		// it: refund the old member's ledger, bill the new one. Both in
		// this transaction, so a failed re-charge aborts the edit.
		if rec.MemberID != existing.MemberID && existing.LastChargedConsumed {
			engine := NewLedgerEngine(st.Ledgers)
			if err := engine.Release(ctx, existing); err != nil {
				return err
			}
			existing.MemberID = rec.MemberID
			if err := engine.Settle(ctx, existing, existing.Status); err != nil {
				return err
			}
		}

		existing.MemberID = rec.MemberID
		existing.SubType = rec.SubType
		existing.StartTime = rec.StartTime
		existing.EndTime = rec.EndTime
		existing.UpdatedAt = s.Clock()
		if err := st.Records.Save(ctx, existing); err != nil {
			return err
		}
		updated = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRecord removes a record from an open month. A record that has
// charged a session refunds it in the same transaction.
func (s *Service) DeleteRecord(ctx context.Context, id RecordID) error {
	return s.Tx.WithTx(ctx, func(st Stores) error {
		rec, err := s.loadLocked(ctx, st, id)
		if err != nil {
			return err
		}
		if rec.Locked {
			return &LockedRecordError{RecordID: id, StaffID: rec.StaffID, YearMonth: rec.Month()}
		}

		engine := NewLedgerEngine(st.Ledgers)
		if err := engine.Release(ctx, rec); err != nil {
			return err
		}
		return st.Records.Delete(ctx, id)
	})
}

// =============================================================================
// READS
// =============================================================================

// ListWithSessionNumbers returns the staff's records annotated with session
// numbers. Numbering is computed over the staff's full record set and only
// then filtered to [from, to), so a window never restarts the counters.
// Zero times mean no bound. Recomputed on every call.
func (s *Service) ListWithSessionNumbers(ctx context.Context, staffID StaffID, from, to time.Time) ([]IndexedRecord, error) {
	records, err := s.Stores.Records.ListByStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}

	// Derive each record's lock state, one submission lookup per distinct
	// month in the set.
	lockedMonths := make(map[YearMonth]bool)
	for i := range records {
		ym := records[i].Month()
		locked, seen := lockedMonths[ym]
		if !seen {
			locked, err = monthLocked(ctx, s.Stores.Submissions, staffID, ym)
			if err != nil {
				return nil, err
			}
			lockedMonths[ym] = locked
		}
		records[i].Locked = locked
	}

	indexed := IndexSessions(records)
	if from.IsZero() && to.IsZero() {
		return indexed, nil
	}

	filtered := indexed[:0]
	for _, rec := range indexed {
		if !from.IsZero() && rec.StartTime.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.StartTime.Before(to) {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered, nil
}

// GetRecord returns one record with its lock state populated.
func (s *Service) GetRecord(ctx context.Context, id RecordID) (*ClassRecord, error) {
	return s.loadLocked(ctx, s.Stores, id)
}

// =============================================================================
// MONTHLY SUBMISSION
// =============================================================================

func (s *Service) SubmitMonth(ctx context.Context, staffID StaffID, ym YearMonth) (*MonthlySubmission, error) {
	return s.Gate.Submit(ctx, staffID, ym)
}

func (s *Service) ReviewMonth(ctx context.Context, staffID StaffID, ym YearMonth, decision ReviewDecision, memo, reviewerID string) (*MonthlySubmission, error) {
	return s.Gate.Review(ctx, staffID, ym, decision, memo, reviewerID)
}

func (s *Service) MonthStatus(ctx context.Context, staffID StaffID, ym YearMonth) (*MonthlySubmission, error) {
	return s.Gate.Status(ctx, staffID, ym)
}

// =============================================================================
// INTERNAL
// =============================================================================

// loadLocked fetches a record and populates its derived Locked flag from
// the submission store in st - inside WithTx that is the transactional
// view, so the lock check and the mutation see the same state.
func (s *Service) loadLocked(ctx context.Context, st Stores, id RecordID) (*ClassRecord, error) {
	rec, err := st.Records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	locked, err := monthLocked(ctx, st.Submissions, rec.StaffID, rec.Month())
	if err != nil {
		return nil, err
	}
	rec.Locked = locked
	return rec, nil
}

// checkMonth fails with LockedRecordError when (staffID, ym) is locked.
func (s *Service) checkMonth(ctx context.Context, st Stores, staffID StaffID, ym YearMonth, id RecordID) error {
	locked, err := monthLocked(ctx, st.Submissions, staffID, ym)
	if err != nil {
		return err
	}
	if locked {
		return &LockedRecordError{RecordID: id, StaffID: staffID, YearMonth: ym}
	}
	return nil
}
