package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/voyagedesk/voyagedesk/internal/audit/http"
	"github.com/voyagedesk/voyagedesk/internal/auth"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/delegation"
	"github.com/voyagedesk/voyagedesk/internal/observability"
	"github.com/voyagedesk/voyagedesk/internal/override"
	"github.com/voyagedesk/voyagedesk/internal/sessctx"
	"github.com/voyagedesk/voyagedesk/internal/shared"
	"github.com/voyagedesk/voyagedesk/internal/store"
	"github.com/voyagedesk/voyagedesk/internal/users"
	"github.com/voyagedesk/voyagedesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Sessions          *shared.SessionStore
	AuthHandler       *auth.Handler
	AuthzHandler      *authz.Handler
	UsersHandler      *users.Handler
	DelegationHandler *delegation.Handler
	OverrideHandler   *override.Handler
	ContextHandler    *sessctx.Handler
	AuditHandler      *audithttp.Handler
	RecordHandler     *store.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with VoyageDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Sessions: params.Sessions,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/authz", params.AuthzHandler.MountRoutes)
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.DelegationHandler != nil {
			r.Route("/delegations", params.DelegationHandler.MountRoutes)
		}
		if params.OverrideHandler != nil {
			r.Route("/overrides", params.OverrideHandler.MountRoutes)
		}
		if params.ContextHandler != nil {
			r.Route("/contexts", params.ContextHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.RecordHandler != nil {
			r.Route("/records", params.RecordHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
