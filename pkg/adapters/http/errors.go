package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/formbridge"
	"github.com/aretw0/formbridge/pkg/client"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/schema"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		te     *domain.TransformError
		apiErr *client.APIError
	)
	switch {
	case errors.Is(err, domain.ErrMappingNotFound), errors.Is(err, domain.ErrDraftNotFound):
		return http.StatusNotFound
	case len(schema.ValidationErrors(err)) > 0, errors.As(err, &te):
		return http.StatusUnprocessableEntity
	case errors.Is(err, formbridge.ErrMappingRequired):
		return http.StatusBadRequest
	case errors.Is(err, formbridge.ErrNoDispatcher):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "status", status, "err", err)
	} else {
		logger.Debug("Request rejected", "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Fields: schema.FieldMessages(err)})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
