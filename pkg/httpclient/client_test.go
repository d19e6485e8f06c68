package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/tenantgate/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(retries int) Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      retries,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    5 * time.Millisecond,
		MaxConnsPerHost: 10,
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := New(fastConfig(2)).Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_NoRetryWhenDisabled(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	resp, err := New(fastConfig(0)).Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_StreamingBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	body := io.NopCloser(bytes.NewBufferString(`{"a":1}`))
	req, err := http.NewRequest(http.MethodPost, server.URL, body)
	require.NoError(t, err)

	resp, err := New(fastConfig(3)).Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_RedirectsReturnedWhenNotFollowing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer server.Close()

	cfg := fastConfig(0)
	cfg.FollowRedirects = false
	resp, err := New(cfg).Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/elsewhere", resp.Header.Get("Location"))
}

func TestClient_ContextDeadlineIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(fastConfig(2)).Get(ctx, server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	assert.False(t, isRetryableError(errors.New("plain")))
}

func testCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func TestCircuitBreaker_TripsOnServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastConfig(0)), testCBConfig("test-trip"), testLogger())

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
		_, err := cb.Do(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	req, _ := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	_, err := cb.Do(context.Background(), req)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(fastConfig(0)), testCBConfig("test-4xx"), testLogger())

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
		resp, err := cb.Do(context.Background(), req)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantIs   error
	}{
		{"structured unauthorized", http.StatusUnauthorized, `{"error":{"code":"SESSION_EXPIRED","message":"expired"}}`, "UNAUTHORIZED", apperrors.ErrUnauthorized},
		{"plain not found", http.StatusNotFound, `nope`, "NOT_FOUND", apperrors.ErrNotFound},
		{"server error", http.StatusInternalServerError, ``, "BAD_GATEWAY", apperrors.ErrBadGateway},
		{"unavailable", http.StatusServiceUnavailable, ``, "SERVICE_UNAVAILABLE", apperrors.ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(bytes.NewBufferString(tt.body))}
			err := ParseResponseError(resp, "auth-provider")

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.ErrorIs(t, err, tt.wantIs)
		})
	}
}
