package admin

import (
	"context"
	"crypto/subtle"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"accessdash/internal/cache"
)

const authorizationKey = "authorization"

type Server struct {
	cache  *cache.Cache
	logger *zap.Logger
}

func NewServer(c *cache.Cache, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cache: c, logger: logger}
}

func (s *Server) Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	stats := s.cache.Stats()
	out, err := structpb.NewStruct(map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"size":     stats.Size,
		"hit_rate": stats.HitRate,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) Clear(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	s.cache.Clear()
	s.logger.Info("cache cleared", zap.String("via", "grpc"))
	return &emptypb.Empty{}, nil
}

func (s *Server) Delete(_ context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	key := req.GetValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}
	return wrapperspb.Bool(s.cache.Delete(key)), nil
}

// NewGRPCServer registers the cache admin and health services. Stats is
// open; Clear and Delete need the bearer token and are refused outright
// when token is empty.
func NewGRPCServer(srv *Server, token string, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		logInterceptor(srv.logger),
		authInterceptor(strings.TrimSpace(token)),
	))
	grpcServer := grpc.NewServer(opts...)
	RegisterCacheAdminServer(grpcServer, srv)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return grpcServer, healthServer
}

func authInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod != clearMethod && info.FullMethod != deleteMethod {
			return handler(ctx, req)
		}
		if token == "" {
			return nil, status.Error(codes.PermissionDenied, "admin token not configured")
		}
		provided, ok := bearerFromContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "token required")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			return nil, status.Error(codes.Unauthenticated, "token invalid")
		}
		return handler(ctx, req)
	}
}

func logInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("admin call failed", zap.String("method", info.FullMethod), zap.String("code", status.Code(err).String()))
			return resp, err
		}
		logger.Debug("admin call", zap.String("method", info.FullMethod))
		return resp, nil
	}
}

func bearerFromContext(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	for _, value := range md.Get(authorizationKey) {
		parts := strings.Fields(value)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1], true
		}
	}
	return "", false
}
