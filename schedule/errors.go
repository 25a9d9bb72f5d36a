/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All domain error types in one place for consistency and discoverability.
  Callers (API layer, tests) match with errors.Is/errors.As; structured
  variants carry the context needed to render an actionable message.

ERROR CATEGORIES:
  1. Lock errors      - Month is submitted/approved, record is immutable
  2. Transition errors - Requested status outside the discipline's domain
  3. Ledger errors     - No active membership, counter bounds, races
  4. Gate errors       - Submit/review lifecycle violations

USAGE:
  if errors.Is(err, schedule.ErrRecordLocked) {
      // render "this month is locked"
  }
  var oc *schedule.OverconsumptionError
  if errors.As(err, &oc) {
      // oc.Used, oc.Total explain the rejection
  }
*/
package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRecordLocked is returned when mutating a record whose month has
	// been submitted or approved.
	ErrRecordLocked = errors.New("record locked by monthly submission")

	// ErrInvalidTransition is returned when the requested status is not in
	// the record's discipline domain.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoActiveMembership is returned when a ledger adjustment finds no
	// active membership for the member.
	ErrNoActiveMembership = errors.New("no active membership")

	// ErrOverconsumption is returned when a debit would push UsedSessions
	// past TotalSessions.
	ErrOverconsumption = errors.New("membership sessions exhausted")

	// ErrAlreadySubmitted is returned when submitting a month that is
	// already submitted or approved.
	ErrAlreadySubmitted = errors.New("month already submitted")

	// ErrNotSubmitted is returned when reviewing a month that is not in the
	// submitted state.
	ErrNotSubmitted = errors.New("month not submitted")

	// ErrConcurrentModification is returned when an optimistic version
	// check detects a conflicting writer. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrRecordNotFound is returned when a referenced class record doesn't exist.
	ErrRecordNotFound = errors.New("class record not found")

	// ErrMemberRequired is returned for a PT/OT record with no member.
	ErrMemberRequired = errors.New("PT/OT record requires a member")

	// ErrInvalidTimeRange is returned when EndTime is not after StartTime.
	ErrInvalidTimeRange = errors.New("end time must be after start time")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LockedRecordError identifies which record and month blocked a mutation.
type LockedRecordError struct {
	RecordID  RecordID
	StaffID   StaffID
	YearMonth YearMonth
}

func (e *LockedRecordError) Error() string {
	return fmt.Sprintf("record %s locked: month %s is under review", e.RecordID, e.YearMonth)
}

func (e *LockedRecordError) Unwrap() error { return ErrRecordLocked }

// InvalidTransitionError describes a status outside the discipline domain.
type InvalidTransitionError struct {
	RecordID   RecordID
	Discipline Discipline
	From       Status
	To         Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s record %s: %q -> %q",
		e.Discipline, e.RecordID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NoActiveMembershipError identifies the member with nothing to charge.
type NoActiveMembershipError struct {
	MemberID MemberID
}

func (e *NoActiveMembershipError) Error() string {
	return fmt.Sprintf("member %s has no active membership to deduct from", e.MemberID)
}

func (e *NoActiveMembershipError) Unwrap() error { return ErrNoActiveMembership }

// OverconsumptionError reports a debit past the purchased session count.
type OverconsumptionError struct {
	LedgerID LedgerID
	Used     int
	Total    int
	Delta    int
}

func (e *OverconsumptionError) Error() string {
	return fmt.Sprintf("ledger %s: adjustment %+d would exceed %d/%d sessions",
		e.LedgerID, e.Delta, e.Used, e.Total)
}

func (e *OverconsumptionError) Unwrap() error { return ErrOverconsumption }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input or
// state, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRecordLocked) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNoActiveMembership) ||
		errors.Is(err, ErrOverconsumption) ||
		errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrNotSubmitted) ||
		errors.Is(err, ErrMemberRequired) ||
		errors.Is(err, ErrInvalidTimeRange)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
