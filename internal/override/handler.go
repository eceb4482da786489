package override

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

// Handler exposes override and emergency elevation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers override routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createOverride)
	r.Post("/emergency", h.createEmergencyElevation)
}

type createOverrideRequest struct {
	UserID     string     `json:"userId" validate:"required"`
	Type       string     `json:"type" validate:"required,oneof=grant deny"`
	Permission string     `json:"permission" validate:"required"`
	Reason     string     `json:"reason" validate:"required"`
	Context    string     `json:"context"`
	ExpiresAt  *time.Time `json:"expiresAt"`
}

func (h *Handler) createOverride(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind == shared.ActorAnonymous {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	o, err := h.service.Create(r.Context(), CreateRequest{
		UserID:     req.UserID,
		Type:       authz.OverrideType(req.Type),
		Permission: shared.Permission(req.Permission),
		Reason:     req.Reason,
		GrantedBy:  actor.UserID,
		Context:    req.Context,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.logger.Warn("create override", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"overrideId": o.ID})
}

type elevationHTTPRequest struct {
	UserID      string   `json:"userId" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
	Reason      string   `json:"reason" validate:"required"`
	Duration    string   `json:"duration"`
	Context     string   `json:"context"`
}

func (h *Handler) createEmergencyElevation(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind == shared.ActorAnonymous {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req elevationHTTPRequest
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
	elevation, err := h.service.CreateEmergencyElevation(r.Context(), ElevationRequest{
		UserID:      req.UserID,
		Permissions: perms,
		Reason:      req.Reason,
		Duration:    duration,
		ElevatedBy:  actor.UserID,
		Context:     req.Context,
	})
	if err != nil {
		h.logger.Warn("create emergency elevation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"elevationId": elevation.ID,
		"expiresAt":   elevation.ExpiresAt,
	})
}
