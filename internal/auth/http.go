package auth

import (
	"net/http"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

// Middleware требует валидный Bearer-токен одной из ролей roles.
func Middleware(secret []byte, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := ParseToken(BearerToken(r.Header.Get("Authorization")), secret)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			allowed := len(roles) == 0
			for _, role := range roles {
				if identity.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
