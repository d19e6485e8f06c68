package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connectRequest struct {
	Provider string `json:"provider" validate:"required,oneof=facebook instagram whatsapp"`
	Token    string `json:"access_token" validate:"required,min=8"`
}

func TestValidate_Valid(t *testing.T) {
	err := Validate(connectRequest{Provider: "facebook", Token: "EAAB-token-value"})
	assert.NoError(t, err)
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := Validate(connectRequest{Provider: "myspace", Token: "short"})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	fields := valErr.Fields()
	assert.Equal(t, "must be one of: facebook instagram whatsapp", fields["provider"])
	assert.Equal(t, "must be at least 8 characters", fields["access_token"])
	assert.Contains(t, valErr.Error(), "field 'provider'")
}

func TestDecodeAndValidate_UnknownField(t *testing.T) {
	body := `{"provider":"facebook","access_token":"EAAB-token","extra":true}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst connectRequest
	err := DecodeAndValidate(req, &dst, 1<<10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_BodyLimit(t *testing.T) {
	body := `{"provider":"facebook","access_token":"` + strings.Repeat("x", 100) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst connectRequest
	err := DecodeAndValidate(req, &dst, 32)
	require.Error(t, err)
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"provider":"whatsapp","access_token":"EAAB-token"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst connectRequest
	require.NoError(t, DecodeAndValidate(req, &dst, 1<<10))
	assert.Equal(t, "whatsapp", dst.Provider)
}
