package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo, *fakeAccounts) {
	t.Helper()
	in, repo, accounts, _ := newTestIngestor(Config{})
	r := chi.NewRouter()
	r.Route("/webhooks", NewHandler(in, testLogger()).Routes)
	return r, repo, accounts
}

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCallback_JSONBody(t *testing.T) {
	h, repo, _ := newTestRouter(t)
	sr := signed(t, testSecret, map[string]any{"user_id": "fb-1"})

	rec := postJSON(h, "/webhooks/facebook/deauthorize", `{"signed_request":"`+sr+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body CallbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Regexp(t, codePattern, body.ConfirmationCode)
	assert.True(t, strings.HasSuffix(body.URL, "?code="+body.ConfirmationCode))
	assert.Len(t, repo.events, 1)
}

func TestCallback_FormBody(t *testing.T) {
	h, _, accounts := newTestRouter(t)
	sr := signed(t, testSecret, map[string]any{"user_id": "ig-1"})

	form := url.Values{"signed_request": {sr}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/instagram/data_deletion", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, accounts.deleted, 1)
}

func TestCallback_MissingSignedRequest(t *testing.T) {
	h, repo, _ := newTestRouter(t)

	for _, body := range []string{`{}`, `{"signed_request":""}`, `not json`, ``} {
		rec := postJSON(h, "/webhooks/facebook/deauthorize", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Missing signed_request"}`, rec.Body.String())
	}
	assert.Empty(t, repo.events)
}

func TestCallback_InvalidSignedRequest(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := postJSON(h, "/webhooks/facebook/deauthorize", `{"signed_request":"no-dot-here"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid signed_request"}`, rec.Body.String())
}

func TestCallback_InvalidSignature(t *testing.T) {
	h, repo, accounts := newTestRouter(t)
	sr := signed(t, "wrong", map[string]any{"user_id": "fb-1"})

	rec := postJSON(h, "/webhooks/facebook/deauthorize", `{"signed_request":"`+sr+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid signature"}`, rec.Body.String())
	assert.Len(t, repo.events, 1)
	assert.Equal(t, 0, accounts.calls)
}

func TestCallback_UnknownRoute(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := postJSON(h, "/webhooks/myspace/deauthorize", `{"signed_request":"a.b"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(h, "/webhooks/facebook/unsubscribe", `{"signed_request":"a.b"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletionStatus(t *testing.T) {
	h, _, _ := newTestRouter(t)
	sr := signed(t, testSecret, map[string]any{"user_id": "fb-1"})

	rec := postJSON(h, "/webhooks/facebook/data_deletion", `{"signed_request":"`+sr+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var ack CallbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))

	req := httptest.NewRequest(http.MethodGet, "/webhooks/deletion-status?code="+ack.ConfirmationCode, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data StatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusProcessed, body.Data.Status)
	assert.Equal(t, "facebook.data_deletion", body.Data.EventType)
}

func TestDeletionStatus_Errors(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/deletion-status", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/deletion-status?code=ffffffffffffffff", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
