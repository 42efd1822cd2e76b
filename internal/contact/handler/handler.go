package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reconciler/internal/contact/models"
	id "reconciler/pkg/domain"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/httputil"
	"reconciler/pkg/requestcontext"
)

// Service defines the reconciliation operations exposed over HTTP.
type Service interface {
	Identify(ctx context.Context, obs models.Observation) (*models.IdentifyResult, error)
	Lookup(ctx context.Context, contactID id.ContactID) (*models.IdentityView, error)
}

// Handler serves the identify and contact lookup endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New creates a contact Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register registers the contact routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identify", h.HandleIdentify)
	r.Get("/contacts/{id}", h.HandleGetContact)
}

// HandleIdentify reconciles the posted email and phone number and responds
// with the consolidated contact.
func (h *Handler) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IdentifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Identify(ctx, req.Observation())
	if err != nil {
		h.writeServiceError(ctx, w, err, "identify failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toContactEnvelope(result.View))
}

// HandleGetContact responds with the consolidated contact of the group the
// given contact id belongs to.
func (h *Handler) HandleGetContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	contactID, err := id.ParseContactID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(ctx, w, err, "invalid contact id")
		return
	}

	view, err := h.service.Lookup(ctx, contactID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "contact lookup failed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toContactEnvelope(view))
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	level := slog.LevelWarn
	if dErrors.HTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
