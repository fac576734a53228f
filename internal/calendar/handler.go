// internal/calendar/handler.go
package calendar

import (
	"net/http"
	"strconv"
	"time"

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
	r.Post("/holidays", h.HandleAddHoliday)
	r.Get("/holidays", h.HandleListHolidays)
	r.Delete("/holidays/{id}", h.HandleRemoveHoliday)
	r.Get("/calendar/due-date", h.HandleDueDate)
}

func (h *Handler) HandleAddHoliday(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date      string `json:"date"`
		Name      string `json:"name"`
		Recurring bool   `json:"recurring"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_date", "date must be YYYY-MM-DD"))
		return
	}
	holiday, err := h.service.AddHoliday(r.Context(), date, req.Name, req.Recurring)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, holiday)
}

func (h *Handler) HandleListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.service.ListHolidays(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, holidays)
}

func (h *Handler) HandleRemoveHoliday(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_id", "id must be a UUID"))
		return
	}
	if err := h.service.RemoveHoliday(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDueDate exposes the lending-day walker:
// GET /calendar/due-date?start=2026-01-05&days=14
func (h *Handler) HandleDueDate(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		httpx.RespondError(w, apperr.Validation("bad_date", "start must be YYYY-MM-DD"))
		return
	}
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days < 0 {
		httpx.RespondError(w, apperr.Validation("bad_days", "days must be a non-negative integer"))
		return
	}
	due, err := h.service.AddLendingDays(r.Context(), start, days)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, map[string]string{
		"start":    DateOnly(start).Format("2006-01-02"),
		"due_date": due.Format("2006-01-02"),
	})
}
