package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/voyagedesk/voyagedesk/internal/platform/httpx"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Handler exposes permission check endpoints.
type Handler struct {
	logger    *slog.Logger
	resolver  *Resolver
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	return &Handler{logger: logger, resolver: resolver, validator: validator.New()}
}

// MountRoutes registers authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.checkPermission)
	r.Get("/permissions", h.effectivePermissions)
}

type checkPermissionRequest struct {
	UserID     string `json:"userId" validate:"required"`
	Permission string `json:"permission" validate:"required"`
	Context    string `json:"context"`
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req checkPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	granted, err := h.resolver.HasPermission(r.Context(), req.UserID, shared.Permission(req.Permission), req.Context)
	if err != nil {
		h.logger.Warn("permission check", slog.String("user_id", req.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"hasPermission": granted})
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "userId is required")
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), userID, r.URL.Query().Get("context"))
	if err != nil {
		h.logger.Warn("effective permissions", slog.String("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}
