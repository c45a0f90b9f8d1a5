package auth

import (
	"context"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type contextKey struct{}

// WithIdentity кладёт личность пользователя в контекст.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// IdentityFromContext достаёт личность; ok=false для неаутентифицированного запроса.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	if ctx == nil {
		return domain.Identity{}, false
	}
	identity, ok := ctx.Value(contextKey{}).(domain.Identity)
	return identity, ok
}
