package shared

import (
	"context"
	"net/http"
	"strings"
)

// ActorKind distinguishes how an actor was resolved.
type ActorKind string

const (
	// ActorUser is a regular authenticated user.
	ActorUser ActorKind = "user"
	// ActorSystem marks internal calls made with elevated credentials. Callers
	// that cannot supply a real user must pass this marker explicitly instead
	// of silently falling back to anonymous.
	ActorSystem ActorKind = "system"
	// ActorAnonymous is the final fallback when nothing else resolves.
	ActorAnonymous ActorKind = "anonymous"
)

// Actor identifies who performs an operation, for authorization and auditing.
type Actor struct {
	Kind     ActorKind
	UserID   string
	Username string
	IP       string
}

// SystemActor returns the elevated-privilege marker actor.
func SystemActor() Actor {
	return Actor{Kind: ActorSystem, UserID: "system", Username: "system"}
}

// AnonymousActor returns the explicit anonymous fallback.
func AnonymousActor() Actor {
	return Actor{Kind: ActorAnonymous, Username: "anonymous"}
}

type actorContextKey struct{}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The second return is false
// when no actor was attached.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

type requestMethodKey struct{}

// ContextWithRequestMethod records the HTTP method for audit metadata.
func ContextWithRequestMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, requestMethodKey{}, method)
}

// RequestMethodFromContext returns the recorded HTTP method, if any.
func RequestMethodFromContext(ctx context.Context) string {
	method, _ := ctx.Value(requestMethodKey{}).(string)
	return method
}

// Trust headers set by an upstream authentication gateway.
const (
	TrustHeaderUserID   = "X-Trusted-User-Id"
	TrustHeaderUsername = "X-Trusted-Username"
	// SystemTokenHeader carries the shared secret for internal service calls.
	SystemTokenHeader = "X-System-Token"
)

// SessionLookup resolves the user bound to a session token.
type SessionLookup interface {
	UserForToken(ctx context.Context, token string) (userID, username string, err error)
}

// ResolveActor walks the fallback chain for the acting user: the propagated
// context value, gateway trust headers, the session cookie, the system marker,
// and finally anonymous. Trigger points that never see the original request
// rely on the earlier ContextWithActor step; the chain exists because not
// every internal call has one.
func ResolveActor(r *http.Request, sessions SessionLookup, cookieName, systemToken string) Actor {
	if actor, ok := ActorFromContext(r.Context()); ok {
		if actor.IP == "" {
			actor.IP = remoteIP(r)
		}
		return actor
	}

	if id := strings.TrimSpace(r.Header.Get(TrustHeaderUserID)); id != "" {
		return Actor{
			Kind:     ActorUser,
			UserID:   id,
			Username: strings.TrimSpace(r.Header.Get(TrustHeaderUsername)),
			IP:       remoteIP(r),
		}
	}

	if sessions != nil && cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
			if id, name, err := sessions.UserForToken(r.Context(), cookie.Value); err == nil && id != "" {
				return Actor{Kind: ActorUser, UserID: id, Username: name, IP: remoteIP(r)}
			}
		}
	}

	if systemToken != "" && r.Header.Get(SystemTokenHeader) == systemToken {
		actor := SystemActor()
		actor.IP = remoteIP(r)
		return actor
	}

	actor := AnonymousActor()
	actor.IP = remoteIP(r)
	return actor
}

func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		addr = addr[:idx]
	}
	return addr
}
