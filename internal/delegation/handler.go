package delegation

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/platform/httpx"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Handler exposes delegation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers delegation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createDelegation)
	r.Post("/{delegationID}/revoke", h.revokeDelegation)
	r.Get("/issued", h.listIssued)
	r.Get("/received", h.listReceived)
}

type createDelegationRequest struct {
	DelegateID  string   `json:"delegateId" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
	Type        string   `json:"type" validate:"required,oneof=temporary standing conditional"`
	Reason      string   `json:"reason" validate:"required"`
	Duration    string   `json:"duration"`
	Context     string   `json:"context"`
}

func (h *Handler) createDelegation(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind == shared.ActorAnonymous {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createDelegationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	var duration *time.Duration
	if req.Duration != "" {
		parsed, err := time.ParseDuration(req.Duration)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "duration must be a Go duration string")
			return
		}
		duration = &parsed
	}
	perms := make([]shared.Permission, len(req.Permissions))
	for i, p := range req.Permissions {
		perms[i] = shared.Permission(p)
	}
	d, err := h.service.Create(r.Context(), CreateRequest{
		DelegatorID: actor.UserID,
		DelegateID:  req.DelegateID,
		Permissions: perms,
		Type:        authz.DelegationType(req.Type),
		Reason:      req.Reason,
		Duration:    duration,
		Context:     req.Context,
	})
	if err != nil {
		h.logger.Warn("create delegation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"delegationId": d.ID,
		"expiresAt":    d.ExpiresAt,
	})
}

type revokeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) revokeDelegation(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind == shared.ActorAnonymous {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	delegationID := chi.URLParam(r, "delegationID")
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	if err := h.service.Revoke(r.Context(), delegationID, actor.UserID, req.Reason); err != nil {
		h.logger.Warn("revoke delegation", slog.String("delegation_id", delegationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handler) listIssued(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind == shared.ActorAnonymous {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	rows, err := h.service.ListActive(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Warn("list issued delegations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"delegations": rows})
}

func (h *Handler) listReceived(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind == shared.ActorAnonymous {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	rows, err := h.service.ListDelegated(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Warn("list received delegations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"delegations": rows})
}
