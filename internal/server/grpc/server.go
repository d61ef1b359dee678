// Package grpc exposes the token service over gRPC. Login and the health
// service are open; every other call needs a valid token.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/tokengate/internal/logging"
	pb "github.com/dmitrijs2005/tokengate/internal/proto"
	"github.com/dmitrijs2005/tokengate/internal/server/models"
	"github.com/dmitrijs2005/tokengate/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultHealthInterval = 10 * time.Second

// Tokens issues tokens and turns a presented token into the user it was
// issued to.
type Tokens interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Validate(ctx context.Context, raw string) (*models.PublicUser, error)
}

// HealthChecker reports whether the secret backend answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type GRPCServer struct {
	pb.UnimplementedAuthServiceServer
	address        string
	tokens         Tokens
	checker        HealthChecker
	health         *health.Server
	healthInterval time.Duration
	logger         logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, tokens Tokens, checker HealthChecker) *GRPCServer {
	return &GRPCServer{
		address:        a,
		tokens:         tokens,
		checker:        checker,
		health:         health.NewServer(),
		healthInterval: defaultHealthInterval,
		logger:         l.With("module", "grpc_server"),
	}
}

// NewServer builds the grpc.Server with interceptors and services registered.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	pb.RegisterAuthServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.NewServer()

	s.updateHealth(ctx)
	go s.watchHealth(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateHealth(ctx)
		}
	}
}

func (s *GRPCServer) updateHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.checker.Ping(ctx); err != nil {
		s.logger.Warn(ctx, "health check failed", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
}
