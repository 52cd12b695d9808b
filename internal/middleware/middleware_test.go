package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDAssigned(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" || seen == "-" {
		t.Errorf("handler saw request ID %q", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header ID = %q, handler saw %q", got, seen)
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "upstream-id-42" {
		t.Errorf("request ID = %q, want the upstream one", seen)
	}
}

func TestRequestIDRejectsOversized(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(seen) > 64 {
		t.Errorf("oversized upstream ID passed through (%d chars)", len(seen))
	}
}

func TestGetRequestIDOutsideMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "-" {
		t.Errorf("GetRequestID() = %q, want -", got)
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1 line2"},
		{"cr\rhere", "cr here"},
		{"nul\x00byte", "nulbyte"},
		{"esc\x1b[31mred", "esc[31mred"},
		{"tab\tok", "tab\tok"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShouldSkip(t *testing.T) {
	config := LoggingConfig{SkipPaths: []string{"/static/"}, LogHealthChecks: false}

	if !shouldSkip("/static/app.css", config) {
		t.Error("static path not skipped")
	}
	if !shouldSkip("/healthz", config) {
		t.Error("health check not skipped")
	}
	if shouldSkip("/api/browse", config) {
		t.Error("API path skipped")
	}

	config.LogHealthChecks = true
	if shouldSkip("/healthz", config) {
		t.Error("health check skipped with LogHealthChecks on")
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := getClientIP(req); got != "10.0.0.1" {
		t.Errorf("getClientIP() = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := getClientIP(req); got != "203.0.113.9" {
		t.Errorf("getClientIP() with XFF = %q", got)
	}
}

func TestNormalizeMetricPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/browse", "/api/browse"},
		{"/api/thumb/photo.jpg", "/api/thumb/{path}"},
		{"/api/thumb/deep/nested/photo.jpg", "/api/thumb/{path}"},
		{"/healthz", "/healthz"},
	}
	for _, tt := range tests {
		if got := normalizeMetricPath(tt.in); got != tt.want {
			t.Errorf("normalizeMetricPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCompressionCompressesLargeJSON(t *testing.T) {
	body := strings.Repeat(`{"key":"value"},`, 500)
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}

	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	decompressed, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(decompressed) != body {
		t.Error("decompressed body does not match original")
	}
}

func TestCompressionSkipsSmallResponses(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got == "gzip" {
		t.Error("small response was compressed")
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestCompressionSkipsImages(t *testing.T) {
	big := make([]byte, 10_000)
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(big)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got == "gzip" {
		t.Error("image response was compressed")
	}
	if rec.Body.Len() != len(big) {
		t.Errorf("body length = %d, want %d", rec.Body.Len(), len(big))
	}
}

func TestCompressionRespectsAcceptEncoding(t *testing.T) {
	body := strings.Repeat("compressible text ", 200)
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(body))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("Content-Encoding"); got == "gzip" {
		t.Error("compressed for a client that never asked for gzip")
	}
	if rec.Body.String() != body {
		t.Error("body altered without compression")
	}
}

func TestCompressionPreservesStatusCode(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
