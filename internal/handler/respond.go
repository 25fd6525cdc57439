package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/errand/internal/task"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, task.KindInvalidInput.Code(), message)
}

func internalError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, task.KindUnknown.Code(), task.KindUnknown.Message())
}

var kindStatus = map[task.Kind]int{
	task.KindAlreadyAccepted:   http.StatusConflict,
	task.KindOwnTask:           http.StatusForbidden,
	task.KindNotAuthorized:     http.StatusForbidden,
	task.KindNotFound:          http.StatusNotFound,
	task.KindTerminal:          http.StatusConflict,
	task.KindInvalidTransition: http.StatusConflict,
	task.KindInvalidState:      http.StatusConflict,
	task.KindUnauthenticated:   http.StatusUnauthorized,
	task.KindInvalidInput:      http.StatusBadRequest,
	task.KindTransient:         http.StatusServiceUnavailable,
}

// writeTaskError maps a lifecycle error to its HTTP status and wire code.
func writeTaskError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := task.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		logger.Error("task operation failed", "kind", kind, "error", err)
	}

	msg := kind.Message()
	var te *task.Error
	if kind == task.KindInvalidInput && errors.As(err, &te) && te.Detail != "" {
		msg = te.Detail
	}
	if kind.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, kind.Code(), msg)
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON")
		return false
	}
	return true
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// queryLimit reads ?limit=, clamped to [1, max].
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
