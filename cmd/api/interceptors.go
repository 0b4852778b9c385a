package main

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/relaychat/internal/apperr"
	"github.com/PaulBabatuyi/relaychat/internal/chatrpc"
	"github.com/PaulBabatuyi/relaychat/internal/data"
)

// context key type for storing the authenticated user in context
type userContextKey struct{}

// userFromContext extracts the caller attached by authUnaryInterceptor.
func userFromContext(ctx context.Context) (*data.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*data.User)
	return u, ok
}

// keyResolver is the part of chat.Service the interceptor needs.
type keyResolver interface {
	UserByAPIKey(ctx context.Context, key string) (*data.User, error)
}

// apiKeyFromMetadata reads "authorization: Bearer <key>" or "x-api-key".
func apiKeyFromMetadata(md metadata.MD) string {
	if v := md.Get("authorization"); len(v) > 0 {
		raw := strings.TrimSpace(v[0])
		if len(raw) > len("bearer ") && strings.EqualFold(raw[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(raw[len("bearer "):])
		}
	}
	if v := md.Get("x-api-key"); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// authUnaryInterceptor returns a UnaryServerInterceptor that resolves the
// caller's api key for every chat method except Authenticate. Other
// services (health) are left alone.
func authUnaryInterceptor(users keyResolver) grpc.UnaryServerInterceptor {
	// methods that don't require authentication
	allowed := map[string]bool{
		chatrpc.MethodAuthenticate: true,
	}
	guarded := "/" + chatrpc.ServiceName + "/"

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if allowed[info.FullMethod] || !strings.HasPrefix(info.FullMethod, guarded) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		user, err := users.UserByAPIKey(ctx, apiKeyFromMetadata(md))
		if err != nil {
			return nil, toStatus(err)
		}
		return handler(context.WithValue(ctx, userContextKey{}, user), req)
	}
}

// toStatus renders an apperr as a gRPC status. Errors that are already
// statuses pass through. The cause of an internal error never reaches the
// client, so it is logged here.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if apperr.CodeOf(err) == apperr.CodeInternal {
		log.Error().Err(err).Msg("internal error")
	}
	return status.Error(apperr.GRPCCode(err), apperr.MessageOf(err))
}

// loggingUnaryInterceptor logs every call once, with its outcome. It runs
// outermost so rejected calls are logged too.
func loggingUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		ev := log.Info()
		switch code {
		case codes.OK:
		case codes.Internal, codes.Unknown, codes.Unavailable:
			ev = log.Error().Err(err)
		default:
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("grpc request")
		return resp, err
	}
}
