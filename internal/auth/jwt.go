package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

var (
	// ErrMissingToken — в запросе нет Bearer-токена.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken — подпись, срок или claims не прошли проверку.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims — содержимое токена: роль, субъект (sub) и отображаемое имя.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken проверяет HS256-токен и возвращает личность пользователя.
func ParseToken(tokenString string, secret []byte) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, ErrMissingToken
	}
	if len(secret) == 0 {
		return domain.Identity{}, fmt.Errorf("%w: empty secret", ErrInvalidToken)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if role != domain.RoleAdmin && claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return domain.Identity{Role: role, SubjectID: claims.Subject, Name: claims.Name}, nil
}

// IssueToken подписывает токен для identity. Используется в тестах и для сервисных токенов.
func IssueToken(identity domain.Identity, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: identity.Role.String(),
		Name: identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// BearerToken извлекает токен из значения заголовка Authorization.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
