package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/errand/internal/task"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestWriteTaskError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{task.Errorf(task.KindAlreadyAccepted, "t1", "lost race"), http.StatusConflict, "TASK_ALREADY_ACCEPTED"},
		{task.Errorf(task.KindOwnTask, "t1", ""), http.StatusForbidden, "CANNOT_ACCEPT_OWN_TASK"},
		{task.Errorf(task.KindNotFound, "t1", ""), http.StatusNotFound, "TASK_NOT_FOUND"},
		{task.Errorf(task.KindInvalidTransition, "t1", ""), http.StatusConflict, "INVALID_TRANSITION"},
		{task.Errorf(task.KindUnauthenticated, "", ""), http.StatusUnauthorized, "USER_NOT_AUTHENTICATED"},
		{task.Wrap(task.KindTransient, "t1", errors.New("database is locked")), http.StatusServiceUnavailable, "TRANSIENT"},
		{errors.New("boom"), http.StatusInternalServerError, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeTaskError(rec, discard, tt.err)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body map[string]errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"].Code != tt.code {
				t.Errorf("code = %q, want %q", body["error"].Code, tt.code)
			}
			if body["error"].Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestWriteTaskErrorRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeTaskError(rec, discard, task.Wrap(task.KindTransient, "t1", errors.New("busy")))
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
}

func TestWriteTaskErrorInputDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeTaskError(rec, discard, task.Errorf(task.KindInvalidInput, "", "title is required"))
	if !strings.Contains(rec.Body.String(), "title is required") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Code string `json:"code"`
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"code":"1234"}`))
	if !decodeJSON(rec, req, &v) || v.Code != "1234" {
		t.Errorf("decode ok = false or code = %q", v.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/", strings.NewReader(`{`))
	if decodeJSON(rec, req, &v) {
		t.Error("malformed body should fail")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	big := `{"code":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	req = httptest.NewRequest("POST", "/", strings.NewReader(big))
	if decodeJSON(rec, req, &v) {
		t.Error("oversized body should fail")
	}
}

func TestQueryLimit(t *testing.T) {
	tests := map[string]int{
		"/":            50,
		"/?limit=10":   10,
		"/?limit=0":    50,
		"/?limit=-3":   50,
		"/?limit=abc":  50,
		"/?limit=5000": 200,
	}
	for url, want := range tests {
		if got := queryLimit(httptest.NewRequest("GET", url, nil), 50, 200); got != want {
			t.Errorf("queryLimit(%s) = %d, want %d", url, got, want)
		}
	}
}
