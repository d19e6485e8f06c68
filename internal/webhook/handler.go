package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/tenantgate/internal/credential"
	apperrors "github.com/utafrali/tenantgate/pkg/errors"
	"github.com/utafrali/tenantgate/pkg/httputil"
)

const maxCallbackBody = 64 << 10

// CallbackResponse is the provider acknowledgement.
type CallbackResponse struct {
	URL              string `json:"url"`
	ConfirmationCode string `json:"confirmation_code"`
}

// StatusResponse describes the processing state of a callback.
type StatusResponse struct {
	ConfirmationCode string     `json:"confirmation_code"`
	EventType        string     `json:"event_type"`
	Status           Status     `json:"status"`
	ReceivedAt       time.Time  `json:"received_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler serves provider callbacks.
type Handler struct {
	ingestor *Ingestor
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(ingestor *Ingestor, logger *slog.Logger) *Handler {
	return &Handler{ingestor: ingestor, logger: logger}
}

// Routes mounts the webhook endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/deletion-status", h.DeletionStatus)
	r.Post("/{provider}/{kind}", h.Callback)
}

// Callback handles POST /webhooks/{provider}/{kind}.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, perr := credential.ParseProvider(chi.URLParam(r, "provider"))
	kind, kerr := ParseKind(chi.URLParam(r, "kind"))
	if perr != nil || kerr != nil {
		httputil.WriteJSON(w, http.StatusNotFound, errorBody{Error: "Unknown callback"})
		return
	}

	res, err := h.ingestor.Handle(r.Context(), provider, kind, readSignedRequest(r))
	switch {
	case errors.Is(err, ErrMissingSignedRequest):
		httputil.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "Missing signed_request"})
		return
	case errors.Is(err, ErrInvalidPayload):
		httputil.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid signed_request"})
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "webhook callback failed", slog.String("error", err.Error()))
		httputil.WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal error"})
		return
	}

	if res.Rejected() {
		httputil.WriteJSON(w, http.StatusUnauthorized, errorBody{Error: "Invalid signature"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CallbackResponse{
		URL:              res.URL,
		ConfirmationCode: res.ConfirmationCode,
	})
}

// DeletionStatus handles GET /webhooks/deletion-status?code=.
func (h *Handler) DeletionStatus(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("code is required"), h.logger)
		return
	}

	ev, err := h.ingestor.DeletionStatus(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: StatusResponse{
		ConfirmationCode: ev.ConfirmationCode,
		EventType:        ev.EventType,
		Status:           ev.Status,
		ReceivedAt:       ev.ReceivedAt,
		ProcessedAt:      ev.ProcessedAt,
	}})
}

// readSignedRequest extracts signed_request from a JSON or form body. Any
// unreadable body yields "".
func readSignedRequest(r *http.Request) string {
	r.Body = http.MaxBytesReader(nil, r.Body, maxCallbackBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxCallbackBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return ""
		}
		return r.PostFormValue("signed_request")
	default:
		var body struct {
			SignedRequest string `json:"signed_request"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		return body.SignedRequest
	}
}
