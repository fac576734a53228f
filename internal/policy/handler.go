// internal/policy/handler.go
package policy

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"librocirc/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/settings", h.HandleList)
	r.Put("/settings/{key}", h.HandleSet)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, settings)
}

func (h *Handler) HandleSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := chi.URLParam(r, "key")
	if err := h.service.Set(r.Context(), key, req.Value); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, Setting{Key: key, Value: req.Value, Default: Default(key)})
}
