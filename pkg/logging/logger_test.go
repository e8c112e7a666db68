package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVerboseLevel(t *testing.T) {
	if got := VerboseLevel(slog.LevelInfo, 1); got != slog.LevelDebug {
		t.Errorf("one -v = %v, want DEBUG", got)
	}
	if got := VerboseLevel(slog.LevelInfo, 5); got != LevelTrace {
		t.Errorf("many -v = %v, want TRACE", got)
	}
}

func TestCompactHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))

	l.With("structure", "basic").Log(context.Background(), LevelTrace, "views refreshed",
		"stale", []int64{4, 7}, "title", "Copy number")

	line := buf.String()
	for _, want := range []string{"[TRACE] ", "views refreshed | ", "structure=basic", "stale=4,7", `title="Copy number"`} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q does not contain %q", line, want)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/nodes", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc" {
		t.Errorf("request ID in context = %q, want abc", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("response header = %q, want abc", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}
