package auth

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor проверяет токен из metadata `authorization` и роль по политике.
func UnaryServerInterceptor(secret []byte, policy *Policy, logger *log.Entry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.WithField("component", "auth")
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if policy.IsPublic(info.FullMethod) || strings.HasPrefix(info.FullMethod, "/grpc.reflection.") {
			return handler(ctx, req)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}

		identity, err := ParseToken(BearerToken(header), secret)
		if err != nil {
			if !errors.Is(err, ErrMissingToken) {
				logger.WithError(err).WithField("method", info.FullMethod).Debug("token rejected")
			}
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		if !policy.Permits(info.FullMethod, identity.Role) {
			logger.WithFields(log.Fields{
				"method": info.FullMethod,
				"role":   identity.Role.String(),
			}).Warn("method not allowed for role")
			return nil, status.Errorf(codes.PermissionDenied, "role %s cannot call %s", identity.Role, info.FullMethod)
		}
		return handler(WithIdentity(ctx, identity), req)
	}
}
