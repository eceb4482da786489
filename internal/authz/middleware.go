package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// PermissionMetrics counts route-guard outcomes.
type PermissionMetrics interface {
	PermissionCheck(granted bool)
}

// Middleware wires permission checks for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Metrics  PermissionMetrics
}

// Require ensures the resolved actor holds the permission in their active
// context. System actors pass; anonymous actors are rejected outright.
func (m Middleware) Require(perm shared.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok || actor.Kind == shared.ActorAnonymous {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if actor.Kind == shared.ActorSystem {
				next.ServeHTTP(w, r)
				return
			}
			granted, err := m.Resolver.HasPermission(r.Context(), actor.UserID, perm, activeContext(r))
			if m.Metrics != nil {
				m.Metrics.PermissionCheck(err == nil && granted)
			}
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("require permission",
						slog.String("user_id", actor.UserID),
						slog.String("permission", string(perm)),
						slog.Any("error", err))
				}
				// Denials stay generic: the caller learns nothing about which
				// rule or configuration produced the outcome.
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type activeContextKey struct{}

// ContextWithActiveContext records the session's active permission context.
func ContextWithActiveContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, activeContextKey{}, id)
}

// ActiveContextFromContext returns the session's active permission context.
func ActiveContextFromContext(ctx context.Context) string {
	id, _ := ctx.Value(activeContextKey{}).(string)
	return id
}

func activeContext(r *http.Request) string {
	return ActiveContextFromContext(r.Context())
}
