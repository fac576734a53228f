// internal/overdue/handler.go
package overdue

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"librocirc/internal/httpx"
)

type Handler struct {
	sweeper *Sweeper
}

func NewHandler(sweeper *Sweeper) *Handler {
	return &Handler{sweeper: sweeper}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/sweep", h.HandleSweep)
}

// HandleSweep runs an on-demand sweep.
func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context(), time.Now().UTC())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, report)
}
