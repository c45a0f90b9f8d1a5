package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

var secret = []byte("test-secret")

func mustToken(t *testing.T, identity domain.Identity) string {
	t.Helper()
	token, err := IssueToken(identity, secret, time.Hour)
	require.NoError(t, err)
	return token
}

func TestParseTokenRoundTrip(t *testing.T) {
	token := mustToken(t, domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-1", Name: "Rahul"})

	identity, err := ParseToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-1", Name: "Rahul"}, identity)
}

func TestParseTokenRejects(t *testing.T) {
	_, err := ParseToken("", secret)
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = ParseToken(mustToken(t, domain.Identity{Role: domain.RoleAdmin}), []byte("other"))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(mustToken(t, domain.Identity{Role: domain.RoleShop}), secret)
	require.ErrorIs(t, err, ErrInvalidToken, "shop token without sub")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(signed, secret)
	require.ErrorIs(t, err, ErrInvalidToken)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "admin"})
	signed, err = noExp.SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(signed, secret)
	require.ErrorIs(t, err, ErrInvalidToken)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "superuser",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err = badRole.SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(signed, secret)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("bearer  abc "))
	require.Empty(t, BearerToken("Basic abc"))
	require.Empty(t, BearerToken(""))
}

func TestUnaryServerInterceptor(t *testing.T) {
	const method = "/creditmarket.v1.CreditMarketService/Checkout"
	policy := NewPolicy().Allow(method, domain.RoleCustomer).Public("/grpc.health.v1.Health/Check")
	interceptor := UnaryServerInterceptor(secret, policy, nil)

	var seen domain.Identity
	handler := func(ctx context.Context, _ any) (any, error) {
		seen, _ = IdentityFromContext(ctx)
		return "ok", nil
	}
	call := func(ctx context.Context, fullMethod string) error {
		_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: fullMethod}, handler)
		return err
	}
	withToken := func(token string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	}

	require.NoError(t, call(context.Background(), "/grpc.health.v1.Health/Check"))
	require.Equal(t, codes.Unauthenticated, status.Code(call(context.Background(), method)))

	customer := mustToken(t, domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-1"})
	require.NoError(t, call(withToken(customer), method))
	require.Equal(t, "cust-1", seen.SubjectID)

	shop := mustToken(t, domain.Identity{Role: domain.RoleShop, SubjectID: "shop-1"})
	require.Equal(t, codes.PermissionDenied, status.Code(call(withToken(shop), method)))
}

func TestHTTPMiddleware(t *testing.T) {
	handler := Middleware(secret, domain.RoleAdmin, domain.RoleCustomer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(identity.SubjectID))
	}))

	serve := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/statements/st-1/export.pdf", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusUnauthorized, serve("").Code)
	require.Equal(t, http.StatusForbidden, serve(mustToken(t, domain.Identity{Role: domain.RoleShop, SubjectID: "shop-1"})).Code)

	rec := serve(mustToken(t, domain.Identity{Role: domain.RoleCustomer, SubjectID: "cust-1"}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "cust-1", rec.Body.String())
}
