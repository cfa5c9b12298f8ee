package web

// errors.go provides unified error response handling for the API.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via engine.ForUser to get a user-friendly message
//  4. Technical error + context is logged with request ID for correlation

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/casewise/migrator/internal/engine"
	"github.com/casewise/migrator/internal/job"
	"github.com/casewise/migrator/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses. It carries
// both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and returns the sanitized user
// message with a status derived from the error kind.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	userMsg := engine.ForUser(err)
	status := statusForError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", chimw.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// respondBadRequest reports a client-input problem verbatim, without the
// engine's error mapping. Only for messages safe to show as-is.
func respondBadRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Message: message,
		Code:    "REQ400",
	})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, job.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, engine.ErrConfirmationRequired),
		errors.Is(err, engine.ErrMappingIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrRollbackWindowExpired):
		return http.StatusConflict
	case errors.Is(err, engine.ErrTooManyImports):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
