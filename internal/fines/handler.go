// internal/fines/handler.go
package fines

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
	r.Post("/fines", h.HandleCreateFine)
	r.Get("/fines", h.HandleListFines)
	r.Post("/fines/{id}/pay", h.HandleMarkPaid)
}

// HandleCreateFine records a manual fine (no loan attached).
func (h *Handler) HandleCreateFine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID uuid.UUID `json:"member_id"`
		Amount   float64   `json:"amount"`
		Reason   string    `json:"reason"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	fine, err := h.service.CreateFine(r.Context(), req.MemberID, uuid.NullUUID{}, req.Amount, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, fine)
}

func (h *Handler) HandleListFines(w http.ResponseWriter, r *http.Request) {
	memberID, err := uuid.Parse(r.URL.Query().Get("member_id"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_member_id", "member_id must be a UUID"))
		return
	}
	list, err := h.service.ListByMember(r.Context(), memberID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, list)
}

func (h *Handler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_id", "id must be a UUID"))
		return
	}
	fine, err := h.service.MarkPaid(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, fine)
}
