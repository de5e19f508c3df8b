package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newTestLogger returns a JSON logger writing into buf.
func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLogging_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"clients":[]}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry["method"] != "GET" {
		t.Errorf("expected method GET, got %v", entry["method"])
	}
	if entry["path"] != "/clients" {
		t.Errorf("expected path /clients, got %v", entry["path"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("expected status 200, got %v", entry["status"])
	}
	if entry["size"] != float64(len(`{"clients":[]}`)) {
		t.Errorf("expected size %d, got %v", len(`{"clients":[]}`), entry["size"])
	}
}

func TestLogging_ErrorCodeViaUpdateResponseContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "not_found")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/clients/999", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if entry["error_code"] != "not_found" {
		t.Errorf("expected error_code not_found, got %v", entry["error_code"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("expected WARN level for 404, got %v", entry["level"])
	}
}

func TestLogging_ServerErrorLogsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/clients", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("expected ERROR level entry, got %s", buf.String())
	}
}

func TestResponseWriter_OnlyFirstStatusCounts(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := newResponseWriter(rr)

	rw.WriteHeader(http.StatusBadRequest)
	rw.WriteHeader(http.StatusOK)

	if rw.statusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rw.statusCode)
	}
}

func TestUpdateResponseContext_NoOpOnPlainWriter(t *testing.T) {
	// Must not panic when the writer does not support context updates.
	rr := httptest.NewRecorder()
	UpdateResponseContext(rr, SetErrorCode(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "x"))
}

func TestNewLogger_EnvironmentSelectsHandler(t *testing.T) {
	if NewLogger("production") == nil {
		t.Fatal("expected production logger")
	}
	if NewLogger("development") == nil {
		t.Fatal("expected development logger")
	}
}
