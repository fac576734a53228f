// internal/httpx/httpx.go
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"librocirc/internal/apperr"
)

// RespondJSON writes v as a JSON response body.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Error().Err(err).Msg("encode response")
		}
	}
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// RespondError translates an error through the taxonomy. Internal causes
// are logged, not exposed.
func RespondError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{
		Error: apperr.KindOf(err).String(),
		Code:  apperr.CodeOf(err),
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		body.Message = ae.Message
		body.Details = ae.Details
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	RespondJSON(w, status, body)
}

// Decode parses a JSON request body into dst.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("malformed_body", "request body is not valid JSON")
	}
	return nil
}
