package middleware

import (
	"context"
	"net/http"
	"strings"

	apperrors "course-marketplace/errors"
	"course-marketplace/http/response"
	"course-marketplace/models"
	"course-marketplace/utils"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Identity reads the caller forwarded by the auth gateway and stores it on
// the request context. Requests without X-User-ID pass through anonymous.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(utils.HeaderUserID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor := models.Actor{
			ID:    id,
			Role:  strings.ToLower(strings.TrimSpace(r.Header.Get(utils.HeaderUserRole))),
			Email: strings.TrimSpace(r.Header.Get(utils.HeaderUserEmail)),
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFrom returns the caller stored by Identity.
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(models.Actor)
	return actor, ok
}

// RequireRole rejects anonymous callers with 401 and callers outside
// allowedRoles with 403.
func RequireRole(allowedRoles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				response.Error(w, r, apperrors.NewUnauthorizedError("authentication required"))
				return
			}

			for _, role := range allowedRoles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, r, apperrors.NewForbiddenError("insufficient role for this resource"))
		})
	}
}
