package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/joao-fontenele/foodorder/internal/domain"
)

type ctxKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(domain.Actor)
	return actor, ok
}

// Middleware resolves the actor once at the request boundary. Requests
// without a valid token never reach next.
func Middleware(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := v.VerifyRequest(r, false)
			if err != nil {
				logger.Debug("rejected request", "error", err, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func RequireRole(actor domain.Actor, roles ...domain.Role) error {
	if slices.Contains(roles, actor.Role) {
		return nil
	}
	return domain.ErrForbidden
}

func RequireOwner(actor domain.Actor, ownerID string) error {
	if actor.ID != "" && actor.ID == ownerID {
		return nil
	}
	return domain.ErrForbidden
}
