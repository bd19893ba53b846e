package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"bilisub/internal/artifacts"
	"bilisub/internal/logging"
	"bilisub/internal/queue"
	"bilisub/internal/services"
	"bilisub/internal/workflow"
)

var (
	errUnauthorized = errors.New("missing or invalid api key")
	errForbidden    = errors.New("no access to this task")
	errAdminOnly    = errors.New("admin access required")
	errNotReady     = errors.New("task has not completed")
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err onto a status code and writes the error body. Server
// side failures are logged; the client only sees a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, kind := statusFor(err)
	message := err.Error()
	var rl *queue.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), logger), "request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the daemon log around this request"),
		)
		message = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errUnauthorized), errors.Is(err, errInvalidToken):
		return http.StatusUnauthorized, ""
	case errors.Is(err, errForbidden), errors.Is(err, errAdminOnly):
		return http.StatusForbidden, ""
	case errors.Is(err, queue.ErrRateLimited):
		return http.StatusTooManyRequests, string(services.KindRateLimited)
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, artifacts.ErrNotFound):
		return http.StatusNotFound, string(services.KindNotFound)
	case errors.Is(err, queue.ErrAlreadyTerminal), errors.Is(err, workflow.ErrTaskActive), errors.Is(err, errNotReady):
		return http.StatusConflict, ""
	}
	switch kind := services.KindOf(err); kind {
	case services.KindInvalidInput:
		return http.StatusBadRequest, string(kind)
	case services.KindCancelled:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusInternalServerError, string(services.KindInternal)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.Classify(services.KindInvalidInput, "decode request", err)
	}
	return nil
}
