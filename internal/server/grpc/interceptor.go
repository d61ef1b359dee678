package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/tokengate/internal/common"
	pb "github.com/dmitrijs2005/tokengate/internal/proto"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const UserKey ctxKey = "user"

// authorizationMetadataKey is the lower-cased Authorization header, the
// way HTTP/2 carries it.
const authorizationMetadataKey = "authorization"

const healthServicePrefix = "/grpc.health.v1.Health/"

// UserFromContext returns the user an interceptor attached to ctx.
func UserFromContext(ctx context.Context) *models.PublicUser {
	u, _ := ctx.Value(UserKey).(*models.PublicUser)
	return u
}

func exempt(fullMethod string) bool {
	return fullMethod == pb.AuthService_Login_FullMethodName ||
		strings.HasPrefix(fullMethod, healthServicePrefix)
}

func (s *GRPCServer) authenticate(ctx context.Context) (context.Context, error) {
	var raw string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(authorizationMetadataKey)
		if len(values) > 0 {
			raw = values[0]
		}
	}

	user, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return nil, status.Error(codeFor(err), messageFor(err))
	}

	return context.WithValue(ctx, UserKey, user), nil
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if exempt(info.FullMethod) {
		return handler(ctx, req)
	}

	ctx, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	return handler(ctx, req)
}

// codeFor maps token service errors to gRPC status codes.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrMissingToken),
		errors.Is(err, common.ErrMalformedToken),
		errors.Is(err, common.ErrBadSignature),
		errors.Is(err, common.ErrTokenExpired):
		return codes.Unauthenticated
	case errors.Is(err, common.ErrUserNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrStoreUnavailable):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func messageFor(err error) string {
	for _, known := range []error{
		common.ErrInvalidCredentials,
		common.ErrMissingToken,
		common.ErrMalformedToken,
		common.ErrBadSignature,
		common.ErrTokenExpired,
		common.ErrUserNotFound,
		common.ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}
