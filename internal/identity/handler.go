package identity

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/tenantgate/pkg/errors"
	"github.com/utafrali/tenantgate/pkg/httputil"
)

// SyncResponse is returned by the sync endpoint.
type SyncResponse struct {
	Subject  string   `json:"subject"`
	TenantID string   `json:"tenant_id"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Handler exposes the identity endpoints.
type Handler struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(resolver *Resolver, logger *slog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// Sync handles POST /api/v1/identity/sync. It refreshes the caller's profile
// from the provider and replaces the cached entry.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	p, ok := FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	profile, err := h.resolver.Sync(r.Context(), &p.Claims)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
			return
		}
		httputil.WriteError(w, r, apperrors.BadGateway("IDENTITY_UNAVAILABLE", "identity provider unavailable", err), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: toSyncResponse(profile)})
}

// Me handles GET /api/v1/identity/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}
	resp := toSyncResponse(p.Profile)
	resp.TenantID = p.TenantID()
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

func toSyncResponse(p Profile) SyncResponse {
	return SyncResponse{
		Subject:  p.Subject,
		TenantID: p.TenantID,
		Email:    p.Email,
		Name:     p.Name,
		Roles:    p.Roles,
	}
}
