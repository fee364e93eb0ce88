package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/iotflow/connectivity/internal/apierr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is IoTFlow's error envelope: kind, message, and enough
// context (timestamp, path, request ID) to correlate a client report with
// server-side logs.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
	RequestID string `json:"request_id,omitempty"`

	// ExistingID is populated only for Conflict responses to device
	// registration, naming the device that already holds the requested name.
	ExistingID int64 `json:"existing_id,omitempty"`
}

// RespondError writes a JSON error response with the given kind/message.
func RespondError(w http.ResponseWriter, r *http.Request, status int, kind apierr.Kind, message string) {
	Respond(w, status, ErrorResponse{
		Error:     string(kind),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// RespondAPIError maps a typed *apierr.Error to its HTTP status and renders
// the standard envelope. Unrecognized error values (not *apierr.Error) are
// treated as Internal and never leak their underlying message to the caller.
func RespondAPIError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		slog.Error("unclassified error reached the http boundary", "error", err, "path", r.URL.Path)
		RespondError(w, r, http.StatusInternalServerError, apierr.KindInternal, "internal error")
		return
	}

	status := statusForKind(ae.Kind)
	message := ae.Message
	if ae.Kind == apierr.KindInternal || ae.Kind == apierr.KindStoreUnavailable {
		if ae.Cause != nil {
			slog.Error("request failed", "kind", ae.Kind, "cause", ae.Cause, "path", r.URL.Path)
		}
	}

	if ae.Kind == apierr.KindConflict {
		Respond(w, status, ErrorResponse{
			Error:      string(ae.Kind),
			Message:    message,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Path:       r.URL.Path,
			RequestID:  RequestIDFromContext(r.Context()),
			ExistingID: ae.ExistingID,
		})
		return
	}

	RespondError(w, r, status, ae.Kind, message)
}

func statusForKind(k apierr.Kind) int {
	switch k {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindAuthRequired:
		return http.StatusUnauthorized
	case apierr.KindAuthFailed:
		return http.StatusForbidden
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindConflict:
		return http.StatusConflict
	case apierr.KindRateLimited:
		return http.StatusTooManyRequests
	case apierr.KindPartialWrite:
		return http.StatusMultiStatus
	case apierr.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
