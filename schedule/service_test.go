package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitdesk/gym-engine/schedule"
	"github.com/fitdesk/gym-engine/schedule/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*schedule.Service, schedule.Stores) {
	t.Helper()
	mem := store.NewMemory()
	stores := mem.Stores()
	svc := schedule.NewService(stores, mem)
	svc.Clock = func() time.Time {
		return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	}
	svc.Gate.Clock = svc.Clock
	return svc, stores
}

func mustCreate(t *testing.T, svc *schedule.Service, rec *schedule.ClassRecord) *schedule.ClassRecord {
	t.Helper()
	created, err := svc.CreateRecord(context.Background(), rec)
	require.NoError(t, err)
	return created
}

// =============================================================================
// STATUS CHANGE TESTS
// =============================================================================

func TestService_ChangeStatus_ChargesLedger(t *testing.T) {
	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-1", 30, 10)
	ctx := context.Background()

	rec := mustCreate(t, svc, ptRecord("rec-1", schedule.StatusReserved))
	assert.Equal(t, schedule.StatusReserved, rec.Status)

	rec, err := svc.ChangeStatus(ctx, "rec-1", schedule.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, rec.Status)
	assert.Equal(t, 11, currentUsed(t, stores, "member-1"))

	// Walking it back refunds
	rec, err = svc.ChangeStatus(ctx, "rec-1", schedule.StatusReserved)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusReserved, rec.Status)
	assert.Equal(t, 10, currentUsed(t, stores, "member-1"))
}

func TestService_ChangeStatus_LedgerFailureLeavesStatusUnchanged(t *testing.T) {
	// GIVEN: A reserved class for a member with no active membership
	// WHEN: The class is marked completed
	// THEN: The whole operation aborts and the record stays reserved

	svc, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, ptRecord("rec-1", schedule.StatusReserved))

	_, err := svc.ChangeStatus(ctx, "rec-1", schedule.StatusCompleted)
	assert.ErrorIs(t, err, schedule.ErrNoActiveMembership)

	rec, err := svc.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusReserved, rec.Status)
	assert.False(t, rec.LastChargedConsumed)
}

func TestService_ChangeStatus_ExhaustedLedgerAborts(t *testing.T) {
	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-1", 10, 10)
	ctx := context.Background()

	mustCreate(t, svc, ptRecord("rec-1", schedule.StatusReserved))

	_, err := svc.ChangeStatus(ctx, "rec-1", schedule.StatusCompleted)
	assert.ErrorIs(t, err, schedule.ErrOverconsumption)

	rec, err := svc.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusReserved, rec.Status)
	assert.Equal(t, 10, currentUsed(t, stores, "member-1"))
}

func TestService_ChangeStatus_UnknownRecord(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ChangeStatus(context.Background(), "nope", schedule.StatusCompleted)
	assert.ErrorIs(t, err, schedule.ErrRecordNotFound)
}

// =============================================================================
// MONTHLY LOCK TESTS
// =============================================================================

func TestService_SubmittedMonthBlocksMutations(t *testing.T) {
	// GIVEN: A May record and a submitted May
	// WHEN: Any mutation targets that record
	// THEN: It fails locked; after an admin rejection it succeeds again

	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-1", 30, 0)
	ctx := context.Background()

	mustCreate(t, svc, ptRecord("rec-1", schedule.StatusReserved))

	may := schedule.YearMonth{Year: 2024, Month: time.May}
	_, err := svc.SubmitMonth(ctx, "staff-1", may)
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, "rec-1", schedule.StatusCompleted)
	assert.ErrorIs(t, err, schedule.ErrRecordLocked)

	err = svc.DeleteRecord(ctx, "rec-1")
	assert.ErrorIs(t, err, schedule.ErrRecordLocked)

	// Creating into the submitted month is blocked too
	_, err = svc.CreateRecord(ctx, ptRecord("rec-2", schedule.StatusReserved))
	assert.ErrorIs(t, err, schedule.ErrRecordLocked)

	// Rejection reopens the month for correction
	_, err = svc.ReviewMonth(ctx, "staff-1", may, schedule.DecisionReject, "missing session 4", "admin-1")
	require.NoError(t, err)

	rec, err := svc.ChangeStatus(ctx, "rec-1", schedule.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCompleted, rec.Status)
	assert.Equal(t, 1, currentUsed(t, stores, "member-1"))
}

func TestService_LockIsPerStaffAndMonth(t *testing.T) {
	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-1", 30, 0)
	ctx := context.Background()

	mustCreate(t, svc, ptRecord("rec-1", schedule.StatusReserved))

	june := ptRecord("rec-2", schedule.StatusReserved)
	june.StartTime = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)
	june.EndTime = june.StartTime.Add(time.Hour)
	mustCreate(t, svc, june)

	_, err := svc.SubmitMonth(ctx, "staff-1", schedule.YearMonth{Year: 2024, Month: time.May})
	require.NoError(t, err)

	// June stays mutable
	_, err = svc.ChangeStatus(ctx, "rec-2", schedule.StatusCompleted)
	require.NoError(t, err)
}

func TestService_UpdateCannotMoveIntoLockedMonth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec := ptRecord("rec-1", schedule.StatusReserved)
	rec.StartTime = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)
	rec.EndTime = rec.StartTime.Add(time.Hour)
	mustCreate(t, svc, rec)

	_, err := svc.SubmitMonth(ctx, "staff-1", schedule.YearMonth{Year: 2024, Month: time.May})
	require.NoError(t, err)

	moved := *rec
	moved.StartTime = time.Date(2024, time.May, 20, 9, 0, 0, 0, time.UTC)
	moved.EndTime = moved.StartTime.Add(time.Hour)
	_, err = svc.UpdateRecord(ctx, &moved)
	assert.ErrorIs(t, err, schedule.ErrRecordLocked)
}

// =============================================================================
// CREATE / UPDATE / DELETE TESTS
// =============================================================================

func TestService_CreateRecord_Defaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec := ptRecord("", schedule.StatusNone)
	created, err := svc.CreateRecord(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, schedule.StatusReserved, created.Status)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestService_CreateRecord_ChargingStatusSettlesImmediately(t *testing.T) {
	// Importing a past class straight in as completed bills on create.
	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-1", 30, 0)

	created := mustCreate(t, svc, ptRecord("rec-1", schedule.StatusCompleted))
	assert.True(t, created.LastChargedConsumed)
	assert.Equal(t, 1, currentUsed(t, stores, "member-1"))
}

func TestService_UpdateRecord_MovesChargeWithMember(t *testing.T) {
	// GIVEN: A completed PT record charged against member-a's ledger
	// WHEN: The record is reassigned to member-b
	// THEN: member-a is refunded, member-b is billed, and a later cancel
	//       refunds member-b

	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-a", 30, 0)
	seedLedger(t, stores, "member-b", 30, 5)
	ctx := context.Background()

	rec := ptRecord("rec-1", schedule.StatusCompleted)
	rec.MemberID = "member-a"
	mustCreate(t, svc, rec)
	require.Equal(t, 1, currentUsed(t, stores, "member-a"))

	moved := ptRecord("rec-1", schedule.StatusCompleted)
	moved.MemberID = "member-b"
	updated, err := svc.UpdateRecord(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, schedule.MemberID("member-b"), updated.MemberID)
	assert.Equal(t, 0, currentUsed(t, stores, "member-a"))
	assert.Equal(t, 6, currentUsed(t, stores, "member-b"))

	_, err = svc.ChangeStatus(ctx, "rec-1", schedule.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 0, currentUsed(t, stores, "member-a"))
	assert.Equal(t, 5, currentUsed(t, stores, "member-b"))
}

func TestService_UpdateRecord_MemberChangeAbortsWithoutNewMembership(t *testing.T) {
	// Reassigning a charged record to a member with no active membership
	// rolls the whole edit back, refund included.
	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-a", 30, 0)
	ctx := context.Background()

	rec := ptRecord("rec-1", schedule.StatusCompleted)
	rec.MemberID = "member-a"
	mustCreate(t, svc, rec)

	moved := ptRecord("rec-1", schedule.StatusCompleted)
	moved.MemberID = "member-x"
	_, err := svc.UpdateRecord(ctx, moved)
	assert.ErrorIs(t, err, schedule.ErrNoActiveMembership)

	got, err := svc.GetRecord(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, schedule.MemberID("member-a"), got.MemberID)
	assert.Equal(t, 1, currentUsed(t, stores, "member-a"))
}

func TestService_UpdateRecord_RejectsStatusChange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, svc, ptRecord("rec-1", schedule.StatusReserved))

	edited := ptRecord("rec-1", schedule.StatusCompleted)
	_, err := svc.UpdateRecord(ctx, edited)
	assert.ErrorIs(t, err, schedule.ErrInvalidTransition)
}

func TestService_DeleteRecord_RefundsChargedSession(t *testing.T) {
	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-1", 30, 0)
	ctx := context.Background()

	mustCreate(t, svc, ptRecord("rec-1", schedule.StatusCompleted))
	assert.Equal(t, 1, currentUsed(t, stores, "member-1"))

	require.NoError(t, svc.DeleteRecord(ctx, "rec-1"))
	assert.Equal(t, 0, currentUsed(t, stores, "member-1"))

	rec, err := svc.GetRecord(ctx, "rec-1")
	assert.ErrorIs(t, err, schedule.ErrRecordNotFound)
	assert.Nil(t, rec)
}

func TestService_ListedRecordsCarryLockState(t *testing.T) {
	// GIVEN: A May record and a June record, May submitted
	// THEN: The listing reports the May record locked and the June one open

	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-1", 30, 0)
	ctx := context.Background()

	mustCreate(t, svc, ptRecord("rec-may", schedule.StatusReserved))

	june := ptRecord("rec-june", schedule.StatusReserved)
	june.StartTime = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)
	june.EndTime = june.StartTime.Add(time.Hour)
	mustCreate(t, svc, june)

	_, err := svc.SubmitMonth(ctx, "staff-1", schedule.YearMonth{Year: 2024, Month: time.May})
	require.NoError(t, err)

	listed, err := svc.ListWithSessionNumbers(ctx, "staff-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	byID := map[schedule.RecordID]schedule.IndexedRecord{}
	for _, rec := range listed {
		byID[rec.ID] = rec
	}
	assert.True(t, byID["rec-may"].Locked, "submitted month's records should read as locked")
	assert.False(t, byID["rec-june"].Locked, "open month's records should not")
}

// =============================================================================
// RECLASSIFY TESTS
// =============================================================================

func TestService_Reclassify(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	block := &schedule.ClassRecord{
		ID:         "blk-1",
		StaffID:    "staff-1",
		Discipline: schedule.DisciplineConsulting,
		SubType:    "consult",
		StartTime:  time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2024, time.May, 10, 10, 0, 0, 0, time.UTC),
	}
	mustCreate(t, svc, block)

	updated, err := svc.Reclassify(ctx, "blk-1", "inbody")
	require.NoError(t, err)
	assert.Equal(t, "inbody", updated.SubType)

	// PT records are attendance-tracked, not reclassifiable
	mustCreate(t, svc, ptRecord("rec-1", schedule.StatusReserved))
	_, err = svc.Reclassify(ctx, "rec-1", "inbody")
	assert.ErrorIs(t, err, schedule.ErrInvalidTransition)
}

// =============================================================================
// WINDOWED LISTING TESTS
// =============================================================================

func TestService_ListWithSessionNumbers_WindowKeepsGlobalNumbering(t *testing.T) {
	// Three completed May classes; asking for a window containing only the
	// third must still number it 3.
	svc, stores := newTestService(t)
	seedLedger(t, stores, "member-1", 30, 0)
	ctx := context.Background()

	for i, day := range []int{5, 12, 19} {
		rec := ptRecord("", schedule.StatusCompleted)
		rec.ID = schedule.RecordID([]string{"rec-1", "rec-2", "rec-3"}[i])
		rec.StartTime = time.Date(2024, time.May, day, 9, 0, 0, 0, time.UTC)
		rec.EndTime = rec.StartTime.Add(time.Hour)
		mustCreate(t, svc, rec)
	}

	from := time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	indexed, err := svc.ListWithSessionNumbers(ctx, "staff-1", from, to)
	require.NoError(t, err)
	require.Len(t, indexed, 1)
	assert.Equal(t, schedule.RecordID("rec-3"), indexed[0].ID)
	assert.Equal(t, 3, indexed[0].SessionNumber)
	assert.False(t, indexed[0].Pending)
}
