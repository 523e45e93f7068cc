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

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggerRequestFields(t *testing.T) {
	buf := captureLogs(t)

	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader("{}"))
	req.RemoteAddr = "203.0.113.9:4242"
	req.Header.Set("X-Account-Id", "acct_1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if line["level"] != "INFO" {
		t.Errorf("level = %v", line["level"])
	}
	if line["method"] != "POST" || line["path"] != "/api/v1/projects" {
		t.Errorf("method/path = %v %v", line["method"], line["path"])
	}
	if got, _ := line["status"].(float64); int(got) != http.StatusCreated {
		t.Errorf("status = %v", line["status"])
	}
	if got, _ := line["bytes"].(float64); int(got) != 2 {
		t.Errorf("bytes = %v", line["bytes"])
	}
	if line["remote_addr"] != "203.0.113.9:4242" {
		t.Errorf("remote_addr = %v", line["remote_addr"])
	}
	if line["account_id"] != "acct_1" {
		t.Errorf("account_id = %v", line["account_id"])
	}
}

func TestLoggerServerErrorsLogAtErrorLevel(t *testing.T) {
	buf := captureLogs(t)

	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if line["level"] != "ERROR" {
		t.Errorf("level = %v", line["level"])
	}
	if _, ok := line["account_id"]; ok {
		t.Error("account_id must be omitted when the header is absent")
	}
}
