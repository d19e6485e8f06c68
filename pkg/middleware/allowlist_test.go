package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIPAllowlist(t *testing.T) {
	mw := IPAllowlist([]string{"10.0.0.0/8", "127.0.0.0/8", "::1/128"}, discardLogger())
	handler := mw(okHandler())

	tests := []struct {
		name       string
		remoteAddr string
		status     int
	}{
		{"loopback allowed", "127.0.0.1:12345", http.StatusOK},
		{"private range allowed", "10.1.2.3:1234", http.StatusOK},
		{"ipv6 loopback allowed", "[::1]:9999", http.StatusOK},
		{"public denied", "8.8.8.8:1234", http.StatusForbidden},
		{"unparseable denied", "not-an-ip", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestIPAllowlist_IgnoresForwardedFor(t *testing.T) {
	handler := IPAllowlist([]string{"127.0.0.0/8"}, discardLogger())(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/v1/credentials", nil)
	req.RemoteAddr = "203.0.113.7:443"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "FORBIDDEN", body["error"]["code"])
}

func TestIPAllowlist_InvalidCIDRSkipped(t *testing.T) {
	nets := ParseCIDRs([]string{"garbage", "192.168.0.0/16"}, discardLogger())
	assert.Len(t, nets, 1)
}

func TestRegisterPprof_Denied(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, []string{"10.0.0.0/8"}, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "192.0.2.1:1000"
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterPprof_Allowed(t *testing.T) {
	r := chi.NewRouter()
	RegisterPprof(r, []string{"127.0.0.0/8"}, discardLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.RemoteAddr = "127.0.0.1:1000"
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
