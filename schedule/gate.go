/*
gate.go - Monthly submission gate

PURPOSE:
  Tracks the per-(staff, month) submission lifecycle and answers the one
  question every mutating operation must ask first: is this month locked?

LIFECYCLE:
  none --submit--> submitted --approve--> approved
                   submitted --reject---> rejected --submit--> submitted

  submitted and approved both lock every ClassRecord the staff owns inside
  that month. approved is terminal here; reopening an approved month is an
  explicit admin workflow outside this engine.

ENFORCEMENT:
  The gate's lock state is re-validated by the service inside the same
  transaction that performs a record mutation (see service.go), never only
  in the calling UI. A submit racing with a review resolves through the
  submission's optimistic version: the loser gets
  ErrConcurrentModification and submit retries once against fresh state.
*/
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gate manages MonthlySubmission records.
type Gate struct {
	Submissions MonthlySubmissionStore

	// Clock is stubbed in tests.
	Clock func() time.Time
}

func NewGate(subs MonthlySubmissionStore) *Gate {
	return &Gate{Submissions: subs, Clock: time.Now}
}

// Status returns the submission record for (staffID, ym), synthesizing a
// SubmissionNone record when the month has never been submitted.
func (g *Gate) Status(ctx context.Context, staffID StaffID, ym YearMonth) (*MonthlySubmission, error) {
	sub, err := g.Submissions.Get(ctx, staffID, ym)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &MonthlySubmission{StaffID: staffID, YearMonth: ym, Status: SubmissionNone}, nil
	}
	return sub, nil
}

// IsLocked reports whether the month's records are immutable.
func (g *Gate) IsLocked(ctx context.Context, staffID StaffID, ym YearMonth) (bool, error) {
	return monthLocked(ctx, g.Submissions, staffID, ym)
}

// monthLocked is the shared lock check; the service calls it against the
// transactional submission store so the check and the mutation see the same
// state.
func monthLocked(ctx context.Context, subs MonthlySubmissionStore, staffID StaffID, ym YearMonth) (bool, error) {
	sub, err := subs.Get(ctx, staffID, ym)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.Status.Locks(), nil
}

// Submit moves a month from none/rejected to submitted. The submission row
// is created implicitly on first submit.
//
// Fails with ErrAlreadySubmitted when the month is submitted or approved.
// A version conflict (review racing the submit) is retried once against
// fresh state; if the month locked in the meantime the retry reports
// ErrAlreadySubmitted rather than a spurious conflict.
func (g *Gate) Submit(ctx context.Context, staffID StaffID, ym YearMonth) (*MonthlySubmission, error) {
	sub, err := g.trySubmit(ctx, staffID, ym)
	if errors.Is(err, ErrConcurrentModification) {
		sub, err = g.trySubmit(ctx, staffID, ym)
	}
	return sub, err
}

func (g *Gate) trySubmit(ctx context.Context, staffID StaffID, ym YearMonth) (*MonthlySubmission, error) {
	sub, err := g.Status(ctx, staffID, ym)
	if err != nil {
		return nil, err
	}
	if sub.Status.Locks() {
		return nil, fmt.Errorf("%w: %s %s is %s", ErrAlreadySubmitted, staffID, ym, sub.Status)
	}

	sub.Status = SubmissionSubmitted
	sub.SubmittedAt = g.Clock()
	if err := g.Submissions.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Review records an admin decision on a submitted month.
// Fails with ErrNotSubmitted unless the month is currently submitted.
func (g *Gate) Review(ctx context.Context, staffID StaffID, ym YearMonth, decision ReviewDecision, memo, reviewerID string) (*MonthlySubmission, error) {
	sub, err := g.Status(ctx, staffID, ym)
	if err != nil {
		return nil, err
	}
	if sub.Status != SubmissionSubmitted {
		return nil, fmt.Errorf("%w: %s %s is %s", ErrNotSubmitted, staffID, ym, sub.Status)
	}

	switch decision {
	case DecisionApprove:
		sub.Status = SubmissionApproved
	case DecisionReject:
		sub.Status = SubmissionRejected
	default:
		return nil, fmt.Errorf("unknown review decision %q", decision)
	}

	sub.ReviewedAt = g.Clock()
	sub.ReviewedBy = reviewerID
	sub.AdminMemo = memo
	if err := g.Submissions.Upsert(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}
