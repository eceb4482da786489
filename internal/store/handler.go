package store

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/platform/httpx"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// PermissionChecker decides whether a user holds a permission in a context.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID string, perm shared.Permission, contextID string) (bool, error)
}

// classPolicy names the permissions guarding one record class.
type classPolicy struct {
	view shared.Permission
	edit shared.Permission
}

// policies is the closed set of classes the record API serves. A class absent
// here is not reachable over HTTP even if rows for it exist.
var policies = map[string]classPolicy{
	"Booking":        {view: shared.PermBookingsViewAll, edit: shared.PermBookingsEdit},
	"Client":         {view: shared.PermClientsView, edit: shared.PermClientsEdit},
	"PaymentProfile": {view: shared.PermClientsView, edit: shared.PermClientsEdit},
	"Tour":           {view: shared.PermToursView, edit: shared.PermToursEdit},
	"Rate":           {view: shared.PermRatesView, edit: shared.PermRatesEdit},
	"Quote":          {view: shared.PermQuotesView, edit: shared.PermQuotesEdit},
}

// Handler exposes the audited record store over HTTP. The permission to
// check depends on the class in the URL, so the check runs inside the
// handler instead of as route middleware.
type Handler struct {
	logger  *slog.Logger
	store   *Store
	checker PermissionChecker
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *Store, checker PermissionChecker) *Handler {
	return &Handler{logger: logger, store: store, checker: checker}
}

// MountRoutes registers record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{class}", h.find)
	r.Get("/{class}/{recordID}", h.get)
	r.Put("/{class}/{recordID}", h.save)
	r.Delete("/{class}/{recordID}", h.remove)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	if !h.allow(w, r, class, false) {
		return
	}
	rec, err := h.store.Get(r.Context(), class, chi.URLParam(r, "recordID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"record": recordView(*rec)})
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	if !h.allow(w, r, class, false) {
		return
	}
	field := r.URL.Query().Get("field")
	if field == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", "field query parameter is required")
		return
	}
	records, err := h.store.FindByField(r.Context(), class, field, r.URL.Query().Get("value"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		views = append(views, recordView(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": views})
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	if !h.allow(w, r, class, true) {
		return
	}
	var fields map[string]any
	if err := httpx.DecodeJSON(r, &fields); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Argument", err.Error())
		return
	}
	rec := Record{Class: class, ID: chi.URLParam(r, "recordID"), Fields: fields}
	if err := h.store.Save(r.Context(), rec); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"record": recordView(rec)})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	if !h.allow(w, r, class, true) {
		return
	}
	if err := h.store.Delete(r.Context(), class, chi.URLParam(r, "recordID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// allow resolves the class policy and checks the acting user. It writes the
// response on failure and reports whether the request may proceed.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, class string, write bool) bool {
	policy, ok := policies[class]
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown record class")
		return false
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.Kind == shared.ActorAnonymous {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return false
	}
	if actor.Kind == shared.ActorSystem {
		return true
	}
	perm := policy.view
	if write {
		perm = policy.edit
	}
	granted, err := h.checker.HasPermission(r.Context(), actor.UserID, perm, authz.ActiveContextFromContext(r.Context()))
	if err != nil {
		h.logger.Error("record permission check",
			slog.String("class", class),
			slog.String("permission", string(perm)),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "permission denied")
		return false
	}
	if !granted {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "permission denied")
		return false
	}
	return true
}

// recordView shapes a record for the wire. Denylisted fields stay out of
// responses just as they stay out of the audit trail.
func recordView(rec Record) map[string]any {
	return map[string]any{
		"class":  rec.Class,
		"id":     rec.ID,
		"fields": audit.ScrubRecord(rec.Fields),
	}
}
