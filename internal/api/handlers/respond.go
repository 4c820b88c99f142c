package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/pkg/logger"
)

// maxBodyBytes bounds request bodies of solve and import endpoints
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps a domain error to its HTTP status and public message.
// Unexpected errors never leak their text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, contracts.ErrInvalidProblem):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, contracts.ErrPriceNotAvailable), errors.Is(err, contracts.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, contracts.ErrSolveInFlight):
		return http.StatusConflict, err.Error()
	case errors.Is(err, contracts.ErrSolveTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Solve timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondErr writes err with its mapped status; server-side failures are logged
func respondErr(w http.ResponseWriter, log *logger.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	respondError(w, status, message)
}
