package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/platform/httpx"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// HistorySource pages through the persisted trail of a single entity.
type HistorySource interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]audit.Entry, int, error)
}

// Handler exposes compliance reporting endpoints.
type Handler struct {
	logger   *slog.Logger
	reporter *audit.Reporter
	history  HistorySource
	guard    authz.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, reporter *audit.Reporter, history HistorySource, guard authz.Middleware) *Handler {
	return &Handler{logger: logger, reporter: reporter, history: history, guard: guard}
}

// MountRoutes registers compliance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermAuditView))
		r.Get("/compliance/report", h.complianceReport)
		r.Get("/statistics", h.statistics)
		r.Get("/entries", h.entityHistory)
	})
}

func (h *Handler) complianceReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, err := time.Parse(time.RFC3339, query.Get("startDate"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "startDate must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, query.Get("endDate"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "endDate must be RFC3339")
		return
	}
	includeMetadata, _ := strconv.ParseBool(query.Get("includeMetadata"))

	report, err := h.reporter.GenerateComplianceReport(r.Context(), start, end,
		query.Get("userId"), query.Get("framework"), includeMetadata,
		audit.ReportFormat(query.Get("format")))
	if err != nil {
		h.logger.Warn("compliance report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"report": report})
}

func (h *Handler) entityHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entityType := query.Get("entityType")
	entityID := query.Get("entityId")
	if entityType == "" || entityID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "entityType and entityId are required")
		return
	}
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("perPage"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 20
	}

	entries, total, err := h.history.ListByEntity(r.Context(), entityType, entityID, perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Warn("entity history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reporter.GetAuditStatistics(r.Context(), r.URL.Query().Get("timeFrame"), r.URL.Query().Get("framework"))
	if err != nil {
		h.logger.Warn("audit statistics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": stats})
}
