// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librocirc/internal/apperr"
	"librocirc/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/loans", h.HandleIssue)
	r.Post("/loans/return", h.HandleReturn)
	r.Post("/loans/renew", h.HandleRenew)
	r.Get("/loans", h.HandleListByMember)
	r.Get("/loans/{id}", h.HandleGetLoan)
	r.Get("/loans/{id}/events", h.HandleLoanEvents)
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.MemberID == uuid.Nil || req.BookID == uuid.Nil {
		httpx.RespondError(w, apperr.Validation("missing_fields", "member_id and book_id are required"))
		return
	}
	loan, err := h.service.Issue(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, loan)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(req.LoanIDs) == 0 {
		httpx.RespondError(w, apperr.Validation("missing_loan_ids", "loan_ids must not be empty"))
		return
	}
	result, err := h.service.Return(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	var req RenewRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(req.LoanIDs) == 0 {
		httpx.RespondError(w, apperr.Validation("missing_loan_ids", "loan_ids must not be empty"))
		return
	}
	result, err := h.service.Renew(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleListByMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuid.Parse(r.URL.Query().Get("member_id"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_member_id", "member_id must be a UUID"))
		return
	}
	loans, err := h.service.ListByMember(r.Context(), memberID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, loans)
}

func (h *Handler) HandleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_id", "id must be a UUID"))
		return
	}
	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, loan)
}

func (h *Handler) HandleLoanEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_id", "id must be a UUID"))
		return
	}
	events, err := h.service.LoanEvents(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, events)
}
