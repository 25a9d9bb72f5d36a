/*
handlers.go - HTTP handlers for the scheduling core

PURPOSE:
  Thin translation layer between HTTP and schedule.Service: decode + validate
  the request, call the one service operation, map domain errors to status
  codes. No business logic lives here.

ERROR MAPPING:
  locked / version conflict        409 Conflict
  invalid transition / bad input   400 Bad Request
  no membership / overconsumption  422 Unprocessable Entity
  missing record/member            404 Not Found
  everything else                  500 Internal Server Error

SEE ALSO:
  - dto.go:      Request/response shapes
  - members.go:  Member and payment handlers
  - server.go:   Routing
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fitdesk/gym-engine/schedule"
	"github.com/fitdesk/gym-engine/store/sqlite"
)

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Svc      *schedule.Service
	validate *validator.Validate
}

// NewHandler creates a new handler backed by the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:    store,
		Svc:      schedule.NewService(store.Stores(), store),
		validate: validator.New(),
	}
}

// =============================================================================
// CLASS RECORD HANDLERS
// =============================================================================

// CreateRecord creates a new schedule entry.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, err := time.Parse(timeLayout, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_time (use RFC3339)", err)
		return
	}
	end, err := time.Parse(timeLayout, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_time (use RFC3339)", err)
		return
	}

	rec := &schedule.ClassRecord{
		StaffID:    schedule.StaffID(req.StaffID),
		MemberID:   schedule.MemberID(req.MemberID),
		Discipline: schedule.Discipline(req.Discipline),
		Status:     schedule.Status(req.Status),
		SubType:    req.SubType,
		StartTime:  start,
		EndTime:    end,
	}

	created, err := h.Svc.CreateRecord(r.Context(), rec)
	if err != nil {
		writeDomainError(w, "Failed to create record", err)
		return
	}
	writeJSON(w, http.StatusCreated, recordDTO(created))
}

// GetRecord returns one record with its lock state.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := schedule.RecordID(chi.URLParam(r, "id"))
	rec, err := h.Svc.GetRecord(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get record", err)
		return
	}
	writeJSON(w, http.StatusOK, recordDTO(rec))
}

// ChangeStatus applies an attendance status transition.
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := schedule.RecordID(chi.URLParam(r, "id"))
	rec, err := h.Svc.ChangeStatus(r.Context(), id, schedule.Status(req.Status))
	if err != nil {
		writeDomainError(w, "Failed to change status", err)
		return
	}
	writeJSON(w, http.StatusOK, recordDTO(rec))
}

// Reclassify changes the sub type of a Consulting/Personal block.
func (h *Handler) Reclassify(w http.ResponseWriter, r *http.Request) {
	var req ReclassifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	id := schedule.RecordID(chi.URLParam(r, "id"))
	rec, err := h.Svc.Reclassify(r.Context(), id, req.SubType)
	if err != nil {
		writeDomainError(w, "Failed to reclassify record", err)
		return
	}
	writeJSON(w, http.StatusOK, recordDTO(rec))
}

// UpdateRecord reschedules a record.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req UpdateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, err := time.Parse(timeLayout, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_time (use RFC3339)", err)
		return
	}
	end, err := time.Parse(timeLayout, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_time (use RFC3339)", err)
		return
	}

	id := schedule.RecordID(chi.URLParam(r, "id"))
	existing, err := h.Svc.GetRecord(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get record", err)
		return
	}

	updated := *existing
	updated.StartTime = start
	updated.EndTime = end
	updated.SubType = req.SubType
	if req.MemberID != "" {
		updated.MemberID = schedule.MemberID(req.MemberID)
	}

	rec, err := h.Svc.UpdateRecord(r.Context(), &updated)
	if err != nil {
		writeDomainError(w, "Failed to update record", err)
		return
	}
	writeJSON(w, http.StatusOK, recordDTO(rec))
}

// DeleteRecord removes a record from an open month.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := schedule.RecordID(chi.URLParam(r, "id"))
	if err := h.Svc.DeleteRecord(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListStaffRecords returns a staff's records with session numbers.
// Optional from/to query params (RFC3339) window the result; numbering is
// computed over the full set regardless.
func (h *Handler) ListStaffRecords(w http.ResponseWriter, r *http.Request) {
	staffID := schedule.StaffID(chi.URLParam(r, "id"))

	var from, to time.Time
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(timeLayout, v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from (use RFC3339)", err)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(timeLayout, v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to (use RFC3339)", err)
			return
		}
	}

	indexed, err := h.Svc.ListWithSessionNumbers(r.Context(), staffID, from, to)
	if err != nil {
		writeDomainError(w, "Failed to list records", err)
		return
	}

	dtos := make([]RecordDTO, len(indexed))
	for i, rec := range indexed {
		dtos[i] = indexedDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MONTHLY SUBMISSION HANDLERS
// =============================================================================

// SubmitMonth submits a staff's month for admin review.
func (h *Handler) SubmitMonth(w http.ResponseWriter, r *http.Request) {
	staffID, ym, ok := monthParams(w, r)
	if !ok {
		return
	}
	sub, err := h.Svc.SubmitMonth(r.Context(), staffID, ym)
	if err != nil {
		writeDomainError(w, "Failed to submit month", err)
		return
	}
	writeJSON(w, http.StatusOK, submissionDTO(sub))
}

// ReviewMonth records an admin approve/reject decision.
func (h *Handler) ReviewMonth(w http.ResponseWriter, r *http.Request) {
	staffID, ym, ok := monthParams(w, r)
	if !ok {
		return
	}
	var req ReviewMonthRequest
	if !h.decode(w, r, &req) {
		return
	}

	sub, err := h.Svc.ReviewMonth(r.Context(), staffID, ym,
		schedule.ReviewDecision(req.Decision), req.Memo, actorID(r))
	if err != nil {
		writeDomainError(w, "Failed to review month", err)
		return
	}
	writeJSON(w, http.StatusOK, submissionDTO(sub))
}

// GetMonth returns the submission state for a (staff, month).
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	staffID, ym, ok := monthParams(w, r)
	if !ok {
		return
	}
	sub, err := h.Svc.MonthStatus(r.Context(), staffID, ym)
	if err != nil {
		writeDomainError(w, "Failed to get month", err)
		return
	}
	writeJSON(w, http.StatusOK, submissionDTO(sub))
}

func monthParams(w http.ResponseWriter, r *http.Request) (schedule.StaffID, schedule.YearMonth, bool) {
	staffID := schedule.StaffID(chi.URLParam(r, "id"))
	ym, err := schedule.ParseYearMonth(chi.URLParam(r, "yearMonth"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year-month", err)
		return "", schedule.YearMonth{}, false
	}
	return staffID, ym, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// decode parses and validates a JSON request body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a domain error to its HTTP status. The detail keeps
// the specific error kind so the UI can render an actionable message.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	writeError(w, domainStatus(err), msg, err)
}

func domainStatus(err error) int {
	switch {
	case errors.Is(err, schedule.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrRecordLocked),
		errors.Is(err, schedule.ErrAlreadySubmitted),
		errors.Is(err, schedule.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrNoActiveMembership),
		errors.Is(err, schedule.ErrOverconsumption):
		return http.StatusUnprocessableEntity
	case schedule.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func notFound(w http.ResponseWriter, what, id string) {
	writeError(w, http.StatusNotFound, fmt.Sprintf("%s not found", what),
		fmt.Errorf("%s %q does not exist", what, id))
}
