/*
members.go - Member and payment persistence

PURPOSE:
  CRUD for the gym's member roster and captured payments. These sit outside
  the attendance core (which only ever sees MemberIDs) but the application
  needs somewhere to hang membership purchases and payment records.

MONEY:
  Payment amounts are decimal.Decimal stored as TEXT. Floats corrupt money.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fitdesk/gym-engine/schedule"
)

// Member is one gym member.
type Member struct {
	ID        schedule.MemberID
	Name      string
	Phone     string
	JoinedAt  time.Time
	CreatedAt time.Time
}

// Payment is one captured payment. Capture is a bookkeeping fact here;
// processing correctness belongs to the payment provider.
type Payment struct {
	ID         string
	MemberID   schedule.MemberID
	LedgerID   schedule.LedgerID // empty unless tied to a membership purchase
	Amount     decimal.Decimal
	Method     string
	Memo       string
	CapturedAt time.Time
}

// =============================================================================
// MEMBERS
// =============================================================================

func (s *Store) SaveMember(ctx context.Context, m Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, phone, joined_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			joined_at = excluded.joined_at`,
		m.ID, m.Name, m.Phone, formatTime(m.JoinedAt), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id schedule.MemberID) (*Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, joined_at, created_at FROM members WHERE id = ?`, id)

	var (
		m                   Member
		joinedAt, createdAt string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Phone, &joinedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	m.JoinedAt = parseTime(joinedAt)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, joined_at, created_at FROM members ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var (
			m                   Member
			joinedAt, createdAt string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &joinedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.JoinedAt = parseTime(joinedAt)
		m.CreatedAt = parseTime(createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) DeleteMember(ctx context.Context, id schedule.MemberID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	return err
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Store) SavePayment(ctx context.Context, p Payment) error {
	return savePayment(ctx, s.db, p)
}

func savePayment(ctx context.Context, q dbtx, p Payment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, member_id, ledger_id, amount, method, memo, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MemberID, p.LedgerID, p.Amount.String(), p.Method, p.Memo,
		formatTime(p.CapturedAt))
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (s *Store) ListPaymentsByMember(ctx context.Context, memberID schedule.MemberID) ([]Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, ledger_id, amount, method, memo, captured_at
		FROM payments WHERE member_id = ? ORDER BY captured_at DESC, id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var (
			p                  Payment
			amount, capturedAt string
		)
		if err := rows.Scan(&p.ID, &p.MemberID, &p.LedgerID, &amount, &p.Method,
			&p.Memo, &capturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt payment amount %q: %w", amount, err)
		}
		p.CapturedAt = parseTime(capturedAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// MEMBERSHIP PURCHASE - Ledger + payment in one transaction
// =============================================================================

// PurchaseMembership creates a new active membership ledger together with
// its payment record. Either both rows land or neither does.
func (s *Store) PurchaseMembership(ctx context.Context, led *schedule.MembershipLedger, pay *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ledgers := &ledgerStore{tx}
	if err := ledgers.Save(ctx, led); err != nil {
		return err
	}
	if pay != nil {
		pay.LedgerID = led.ID
		if err := savePayment(ctx, tx, *pay); err != nil {
			return err
		}
	}
	return tx.Commit()
}
