package main

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/PaulBabatuyi/relaychat/internal/chat"
	"github.com/PaulBabatuyi/relaychat/internal/chatrpc"
	"github.com/PaulBabatuyi/relaychat/internal/middleware"
)

// Server implements chat.v1.ChatService on top of the chat service.
type Server struct {
	svc *chat.Service
}

var _ chatrpc.ChatServiceServer = (*Server)(nil)

// newServer returns a ready-to-use Server.
func newServer(svc *chat.Service) *Server {
	return &Server{svc: svc}
}

// newGRPCServer builds the gRPC server with the interceptor chain
// logging -> rate limit -> auth, and registers the chat and health
// services. creds may be nil for plaintext.
func newGRPCServer(svc *chat.Service, limiter *middleware.LimiterStore, creds credentials.TransportCredentials) (*grpc.Server, *health.Server) {
	limited := map[string]bool{
		chatrpc.MethodAuthenticate: true,
	}

	var opts []grpc.ServerOption
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(
		loggingUnaryInterceptor(),
		middleware.RateLimitUnaryInterceptor(limiter, limited),
		authUnaryInterceptor(svc),
	))

	s := grpc.NewServer(opts...)
	chatrpc.RegisterChatServiceServer(s, newServer(svc))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(chatrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
