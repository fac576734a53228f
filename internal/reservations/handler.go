// internal/reservations/handler.go
package reservations

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
	r.Post("/reservations", h.HandleReserve)
	r.Get("/reservations", h.HandleListByBook)
	r.Delete("/reservations/{id}", h.HandleCancel)
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.MemberID == uuid.Nil || req.BookID == uuid.Nil {
		httpx.RespondError(w, apperr.Validation("missing_fields", "member_id and book_id are required"))
		return
	}
	reservation, err := h.service.Reserve(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, reservation)
}

func (h *Handler) HandleListByBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := uuid.Parse(r.URL.Query().Get("book_id"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_book_id", "book_id must be a UUID"))
		return
	}
	list, err := h.service.ListByBook(r.Context(), bookID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, list)
}

// HandleCancel cancels a reservation. The acting member comes from the
// request body; staff may cancel on anyone's behalf.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_id", "id must be a UUID"))
		return
	}
	var req struct {
		MemberID uuid.UUID `json:"member_id"`
		Staff    bool      `json:"staff"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Cancel(r.Context(), id, req.MemberID, req.Staff); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
