/*
members.go - Member, membership and payment handlers

PURPOSE:
  CRUD for the member roster plus the two money-adjacent operations the
  front desk needs: purchasing a membership (ledger + payment in one
  transaction) and capturing a standalone payment. Amounts are decimal
  strings end to end; no floats.
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fitdesk/gym-engine/schedule"
	"github.com/fitdesk/gym-engine/store/sqlite"
)

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = memberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns a single member with their ledgers.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := schedule.MemberID(chi.URLParam(r, "id"))
	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		notFound(w, "member", string(id))
		return
	}

	ledgers, err := h.Store.Stores().Ledgers.ListByMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list memberships", err)
		return
	}
	ledgerDTOs := make([]LedgerDTO, len(ledgers))
	for i, l := range ledgers {
		ledgerDTOs[i] = ledgerDTO(l)
	}

	writeJSON(w, http.StatusOK, struct {
		MemberDTO
		Memberships []LedgerDTO `json:"memberships"`
	}{memberDTO(*m), ledgerDTOs})
}

// CreateMember registers a new member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !h.decode(w, r, &req) {
		return
	}

	joined := time.Now().UTC()
	if req.JoinedAt != "" {
		var err error
		if joined, err = time.Parse(dateLayout, req.JoinedAt); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid joined_at (use YYYY-MM-DD)", err)
			return
		}
	}

	m := sqlite.Member{
		ID:        schedule.MemberID(req.ID),
		Name:      req.Name,
		Phone:     req.Phone,
		JoinedAt:  joined,
		CreatedAt: time.Now().UTC(),
	}
	if m.ID == "" {
		m.ID = schedule.MemberID(uuid.NewString())
	}

	if err := h.Store.SaveMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, memberDTO(m))
}

// =============================================================================
// MEMBERSHIP PURCHASE
// =============================================================================

// PurchaseMembership creates a new active session ledger for a member and
// captures its payment atomically.
func (h *Handler) PurchaseMembership(w http.ResponseWriter, r *http.Request) {
	memberID := schedule.MemberID(chi.URLParam(r, "id"))
	var req PurchaseMembershipRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	m, err := h.Store.GetMember(r.Context(), memberID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		notFound(w, "member", string(memberID))
		return
	}

	led := &schedule.MembershipLedger{
		ID:            schedule.LedgerID(uuid.NewString()),
		MemberID:      memberID,
		TotalSessions: req.TotalSessions,
		Status:        schedule.LedgerActive,
		CreatedAt:     time.Now().UTC(),
	}
	pay := &sqlite.Payment{
		ID:         uuid.NewString(),
		MemberID:   memberID,
		Amount:     amount,
		Method:     req.Method,
		Memo:       req.Memo,
		CapturedAt: time.Now().UTC(),
	}

	if err := h.Store.PurchaseMembership(r.Context(), led, pay); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to purchase membership", err)
		return
	}
	writeJSON(w, http.StatusCreated, ledgerDTO(*led))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CapturePayment records a standalone payment (e.g. merchandise, PT top-up).
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	memberID := schedule.MemberID(chi.URLParam(r, "id"))
	var req CapturePaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	p := sqlite.Payment{
		ID:         uuid.NewString(),
		MemberID:   memberID,
		Amount:     amount,
		Method:     req.Method,
		Memo:       req.Memo,
		CapturedAt: time.Now().UTC(),
	}
	if err := h.Store.SavePayment(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to capture payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentDTO(p))
}

// ListPayments returns a member's captured payments, newest first.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	memberID := schedule.MemberID(chi.URLParam(r, "id"))
	payments, err := h.Store.ListPaymentsByMember(r.Context(), memberID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = paymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}
