/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing field
  renaming without breaking clients, API-specific validation, and version
  evolution.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  them through Handler.validate before touching the domain.

SEE ALSO:
  - handlers.go: Uses these types
  - members.go:  Member/payment handlers
*/
package api

import (
	"github.com/fitdesk/gym-engine/schedule"
	"github.com/fitdesk/gym-engine/store/sqlite"
)

// =============================================================================
// CLASS RECORDS
// =============================================================================

// RecordDTO represents a class record in API responses.
type RecordDTO struct {
	ID            string `json:"id"`
	StaffID       string `json:"staff_id"`
	MemberID      string `json:"member_id,omitempty"`
	Discipline    string `json:"discipline"`
	Status        string `json:"status,omitempty"`
	SubType       string `json:"sub_type,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Locked        bool   `json:"locked"`
	SessionNumber int    `json:"session_number,omitempty"`
	Pending       bool   `json:"pending,omitempty"`
}

type CreateRecordRequest struct {
	StaffID    string `json:"staff_id" validate:"required"`
	MemberID   string `json:"member_id"`
	Discipline string `json:"discipline" validate:"required,oneof=PT OT Consulting Personal"`
	Status     string `json:"status"`
	SubType    string `json:"sub_type"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time" validate:"required"`
}

type UpdateRecordRequest struct {
	MemberID  string `json:"member_id"`
	SubType   string `json:"sub_type"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type ReclassifyRequest struct {
	SubType string `json:"sub_type" validate:"required"`
}

// =============================================================================
// MONTHLY SUBMISSIONS
// =============================================================================

type SubmissionDTO struct {
	StaffID     string `json:"staff_id"`
	YearMonth   string `json:"year_month"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at,omitempty"`
	ReviewedAt  string `json:"reviewed_at,omitempty"`
	ReviewedBy  string `json:"reviewed_by,omitempty"`
	AdminMemo   string `json:"admin_memo,omitempty"`
}

type ReviewMonthRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Memo     string `json:"memo"`
}

// =============================================================================
// MEMBERS / MEMBERSHIPS / PAYMENTS
// =============================================================================

type MemberDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	JoinedAt string `json:"joined_at"`
}

type CreateMemberRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone"`
	JoinedAt string `json:"joined_at"`
}

type LedgerDTO struct {
	ID            string `json:"id"`
	MemberID      string `json:"member_id"`
	TotalSessions int    `json:"total_sessions"`
	UsedSessions  int    `json:"used_sessions"`
	Remaining     int    `json:"remaining"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
}

type PurchaseMembershipRequest struct {
	TotalSessions int    `json:"total_sessions" validate:"required,gt=0"`
	Amount        string `json:"amount" validate:"required"`
	Method        string `json:"method"`
	Memo          string `json:"memo"`
}

type PaymentDTO struct {
	ID         string `json:"id"`
	MemberID   string `json:"member_id"`
	LedgerID   string `json:"ledger_id,omitempty"`
	Amount     string `json:"amount"`
	Method     string `json:"method,omitempty"`
	Memo       string `json:"memo,omitempty"`
	CapturedAt string `json:"captured_at"`
}

type CapturePaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method"`
	Memo   string `json:"memo"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func recordDTO(rec *schedule.ClassRecord) RecordDTO {
	return RecordDTO{
		ID:         string(rec.ID),
		StaffID:    string(rec.StaffID),
		MemberID:   string(rec.MemberID),
		Discipline: string(rec.Discipline),
		Status:     string(rec.Status),
		SubType:    rec.SubType,
		StartTime:  rec.StartTime.UTC().Format(timeLayout),
		EndTime:    rec.EndTime.UTC().Format(timeLayout),
		Locked:     rec.Locked,
	}
}

func indexedDTO(rec schedule.IndexedRecord) RecordDTO {
	dto := recordDTO(&rec.ClassRecord)
	dto.SessionNumber = rec.SessionNumber
	dto.Pending = rec.Pending
	return dto
}

func submissionDTO(sub *schedule.MonthlySubmission) SubmissionDTO {
	dto := SubmissionDTO{
		StaffID:    string(sub.StaffID),
		YearMonth:  sub.YearMonth.String(),
		Status:     string(sub.Status),
		ReviewedBy: sub.ReviewedBy,
		AdminMemo:  sub.AdminMemo,
	}
	if !sub.SubmittedAt.IsZero() {
		dto.SubmittedAt = sub.SubmittedAt.UTC().Format(timeLayout)
	}
	if !sub.ReviewedAt.IsZero() {
		dto.ReviewedAt = sub.ReviewedAt.UTC().Format(timeLayout)
	}
	return dto
}

func ledgerDTO(l schedule.MembershipLedger) LedgerDTO {
	return LedgerDTO{
		ID:            string(l.ID),
		MemberID:      string(l.MemberID),
		TotalSessions: l.TotalSessions,
		UsedSessions:  l.UsedSessions,
		Remaining:     l.Remaining(),
		Status:        string(l.Status),
		CreatedAt:     l.CreatedAt.UTC().Format(timeLayout),
	}
}

func memberDTO(m sqlite.Member) MemberDTO {
	return MemberDTO{
		ID:       string(m.ID),
		Name:     m.Name,
		Phone:    m.Phone,
		JoinedAt: m.JoinedAt.UTC().Format(dateLayout),
	}
}

func paymentDTO(p sqlite.Payment) PaymentDTO {
	return PaymentDTO{
		ID:         p.ID,
		MemberID:   string(p.MemberID),
		LedgerID:   string(p.LedgerID),
		Amount:     p.Amount.String(),
		Method:     p.Method,
		Memo:       p.Memo,
		CapturedAt: p.CapturedAt.UTC().Format(timeLayout),
	}
}
