package credential

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/tenantgate/pkg/errors"
	"github.com/utafrali/tenantgate/pkg/httputil"
	"github.com/utafrali/tenantgate/pkg/validator"
)

const maxConnectBody = 64 << 10

// ConnectRequest is the JSON body for connecting an account.
type ConnectRequest struct {
	TenantID       string   `json:"tenant_id" validate:"required,max=128"`
	Provider       string   `json:"provider" validate:"required,oneof=facebook instagram whatsapp"`
	ProviderUserID string   `json:"provider_user_id" validate:"required,max=128"`
	AccessToken    string   `json:"access_token" validate:"required,max=4096"`
	Scopes         []string `json:"scopes" validate:"omitempty,max=64,dive,required,max=128"`
}

// TokenResponse carries a decrypted access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// MutationResponse reports how many accounts a revoke or anonymize changed.
type MutationResponse struct {
	Affected int64 `json:"affected"`
}

// Handler serves the internal credential endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the endpoints. The caller restricts access by network.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Connect)
	r.Get("/tenants/{tenantID}", h.List)
	r.Get("/tenants/{tenantID}/{provider}/token", h.AccessToken)
	r.Post("/providers/{provider}/{providerUserID}/revoke", h.Revoke)
	r.Post("/providers/{provider}/{providerUserID}/anonymize", h.Anonymize)
}

// Connect handles POST /internal/v1/credentials.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := validator.DecodeAndValidate(r, &req, maxConnectBody); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	a, err := h.service.Connect(r.Context(), ConnectInput{
		TenantID:       req.TenantID,
		Provider:       Provider(req.Provider),
		ProviderUserID: req.ProviderUserID,
		AccessToken:    req.AccessToken,
		Scopes:         req.Scopes,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: a})
}

// List handles GET /internal/v1/credentials/tenants/{tenantID}.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: accounts})
}

// AccessToken handles GET /internal/v1/credentials/tenants/{tenantID}/{provider}/token.
func (h *Handler) AccessToken(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	token, err := h.service.AccessToken(r.Context(), chi.URLParam(r, "tenantID"), provider)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: TokenResponse{AccessToken: token}})
}

// Revoke handles POST /internal/v1/credentials/providers/{provider}/{providerUserID}/revoke.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	n, err := h.service.Revoke(r.Context(), provider, chi.URLParam(r, "providerUserID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: MutationResponse{Affected: n}})
}

// Anonymize handles POST /internal/v1/credentials/providers/{provider}/{providerUserID}/anonymize.
func (h *Handler) Anonymize(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	n, err := h.service.Anonymize(r.Context(), provider, chi.URLParam(r, "providerUserID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: MutationResponse{Affected: n}})
}

func (h *Handler) provider(w http.ResponseWriter, r *http.Request) (Provider, bool) {
	p, err := ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput(err.Error()), h.logger)
		return "", false
	}
	return p, true
}
