/*
transition.go - Attendance state machine

PURPOSE:
  Validates a (ClassRecord, requestedStatus) pair and computes what the
  transition means for the session ledger. Pure: no store access, no side
  effects. The orchestrator in service.go is responsible for applying the
  ledger delta first and persisting the new status second, so a ledger
  failure leaves the record untouched.

TRANSITION MODEL:
  Any current status may move to any other status within the discipline's
  domain. What matters downstream is not the edge taken but whether the
  consumed-fact (ConsumesSession) flips:

    reserved -> completed          delta +1 (session billed)
    completed -> no_show_deducted  delta  0 (both bill; nothing changes)
    no_show_deducted -> cancelled  delta -1 (session refunded)
*/
package schedule

// Transition is the validated outcome of a status-change request.
type Transition struct {
	From Status
	To   Status

	// LedgerDelta is ConsumesSession(To) - ConsumesSession(From), one of
	// -1, 0, +1. The ledger engine re-derives the authoritative delta from
	// the record's persisted LastChargedConsumed; this value exists for
	// callers and tests to reason about the request.
	LedgerDelta int
}

// ApplyTransition validates a requested status against the record's current
// state and returns the resulting transition.
//
// Fails with:
//   - LockedRecordError when the record's month is submitted/approved
//   - InvalidTransitionError when requested is outside the discipline domain
//     (including any attendance status on a Consulting/Personal block)
func ApplyTransition(rec *ClassRecord, requested Status) (Transition, error) {
	if rec.Locked {
		return Transition{}, &LockedRecordError{
			RecordID:  rec.ID,
			StaffID:   rec.StaffID,
			YearMonth: rec.Month(),
		}
	}
	if !rec.Discipline.HasAttendance() || !rec.Discipline.InDomain(requested) {
		return Transition{}, &InvalidTransitionError{
			RecordID:   rec.ID,
			Discipline: rec.Discipline,
			From:       rec.Status,
			To:         requested,
		}
	}

	return Transition{
		From:        rec.Status,
		To:          requested,
		LedgerDelta: consumedInt(requested) - consumedInt(rec.Status),
	}, nil
}

// ValidateReclassify checks that a SubType change is legal: Consulting and
// Personal blocks only, and never on a locked month.
func ValidateReclassify(rec *ClassRecord) error {
	if rec.Locked {
		return &LockedRecordError{
			RecordID:  rec.ID,
			StaffID:   rec.StaffID,
			YearMonth: rec.Month(),
		}
	}
	if rec.Discipline.HasAttendance() {
		return &InvalidTransitionError{
			RecordID:   rec.ID,
			Discipline: rec.Discipline,
			From:       rec.Status,
			To:         rec.Status,
		}
	}
	return nil
}

func consumedInt(s Status) int {
	if ConsumesSession(s) {
		return 1
	}
	return 0
}
