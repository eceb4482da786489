package sessctx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/voyagedesk/voyagedesk/internal/platform/httpx"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// Handler exposes context listing and switching.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	validator  *validator.Validate
	cookieName string
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cookieName string) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), cookieName: cookieName}
}

// MountRoutes registers context routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listAvailable)
	r.Post("/switch", h.switchContext)
}

func (h *Handler) listAvailable(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind != shared.ActorUser {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	contexts, err := h.service.AvailableContexts(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Warn("list available contexts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"contexts": contexts})
}

type switchRequest struct {
	Context string `json:"context" validate:"required"`
}

func (h *Handler) switchContext(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind != shared.ActorUser {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	cookie, err := r.Cookie(h.cookieName)
	if err != nil || cookie.Value == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req switchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	result, err := h.service.SwitchContext(r.Context(), cookie.Value, actor.UserID, req.Context)
	if err != nil {
		h.logger.Warn("switch context", slog.String("context", req.Context), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"previousContext":    result.PreviousContext,
		"activeContext":      result.ActiveContext,
		"appliedPermissions": result.AppliedPermissions,
	})
}
