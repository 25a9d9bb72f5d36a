/*
ledger.go - Session ledger engine

PURPOSE:
  Applies the consumed-fact of a status change to the member's current
  membership counter, atomically and idempotently.

IDEMPOTENCE:
  The engine never trusts a caller-supplied delta. Each ClassRecord carries
  LastChargedConsumed - the consumed-fact it last charged against a ledger.
  Settling compares that persisted fact with the consumed-fact of the new
  status; if they already match, the retry (or a completed<->no_show_deducted
  move) writes nothing. When they differ, exactly one +1/-1 adjustment is
  applied and the record's fact is flipped in the same transaction by the
  caller persisting the record.

ATOMICITY:
  AdjustUsed is a conditional update keyed on the ledger Version. On
  ErrConcurrentModification the engine re-reads the ledger and retries a
  bounded number of times; two trainers recording attendance for the same
  member serialize instead of racing.

FAILURE SEMANTICS:
  NoActiveMembershipError and OverconsumptionError abort the enclosing
  status change: the service runs Settle before persisting the new status,
  inside one transaction, so a failed charge leaves the record's status
  unchanged.

SEE ALSO:
  - transition.go: Computes the requested consumed-fact change
  - service.go:    Orders ledger-then-status inside WithTx
*/
package schedule

import (
	"context"
	"errors"
	"fmt"
)

// adjustRetries bounds the optimistic-lock retry loop. Conflicts are
// short-lived (a single counter update), so a small number suffices.
const adjustRetries = 3

// LedgerEngine settles consumed-fact changes against membership ledgers.
type LedgerEngine struct {
	Ledgers MembershipLedgerStore
}

func NewLedgerEngine(ledgers MembershipLedgerStore) *LedgerEngine {
	return &LedgerEngine{Ledgers: ledgers}
}

// Settle charges or refunds one session on the member's current ledger so
// that the ledger agrees with newStatus. On success it updates
// rec.LastChargedConsumed in memory; the caller persists the record in the
// same transaction.
//
// Settle is a no-op when the record's persisted consumed-fact already
// matches newStatus - which covers both zero-delta transitions and retries
// of a transition that already charged.
func (e *LedgerEngine) Settle(ctx context.Context, rec *ClassRecord, newStatus Status) error {
	newConsumed := ConsumesSession(newStatus)
	if newConsumed == rec.LastChargedConsumed {
		return nil
	}

	delta := -1
	if newConsumed {
		delta = +1
	}

	if err := e.apply(ctx, rec.MemberID, delta); err != nil {
		return err
	}

	rec.LastChargedConsumed = newConsumed
	return nil
}

// Release refunds a previously charged session, used when a charged record
// is deleted outright. No-op for records that never charged.
func (e *LedgerEngine) Release(ctx context.Context, rec *ClassRecord) error {
	if !rec.LastChargedConsumed {
		return nil
	}
	if err := e.apply(ctx, rec.MemberID, -1); err != nil {
		return err
	}
	rec.LastChargedConsumed = false
	return nil
}

// apply performs one signed adjustment with the optimistic-lock retry loop.
func (e *LedgerEngine) apply(ctx context.Context, memberID MemberID, delta int) error {
	var lastErr error
	for attempt := 0; attempt < adjustRetries; attempt++ {
		led, err := e.Ledgers.ActiveForMember(ctx, memberID)
		if err != nil {
			return fmt.Errorf("looking up active membership: %w", err)
		}
		if led == nil {
			return &NoActiveMembershipError{MemberID: memberID}
		}

		_, err = e.Ledgers.AdjustUsed(ctx, led.ID, delta, led.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("ledger adjustment for member %s: %w", memberID, lastErr)
}
