// Package httpapi is the HTTP boundary of the token service: login,
// validation, the administrative secret endpoints and a health check.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/logging"
)

const shutdownTimeout = 10 * time.Second

type HTTPServer struct {
	address string
	tokens  Tokens
	admin   SecretAdmin
	health  HealthChecker
	logger  logging.Logger
}

func NewHTTPServer(a string, l logging.Logger, tokens Tokens, admin SecretAdmin, health HealthChecker) *HTTPServer {
	return &HTTPServer{
		address: a,
		tokens:  tokens,
		admin:   admin,
		health:  health,
		logger:  l.With("module", "http_server"),
	}
}

// Handler returns the routed handler with request ids and access logging.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, prefix := range []string{"/auth", common.APINamespace} {
		mux.HandleFunc("POST "+prefix+"/login", s.handleLogin)
		mux.HandleFunc("GET "+prefix+"/validate", s.handleValidate)
	}

	mux.Handle("GET /admin/secret", authenticated(s.tokens, http.HandlerFunc(s.handleCurrentSecret)))
	mux.Handle("GET /admin/secret/nonce", authenticated(s.tokens, http.HandlerFunc(s.handleNonce)))
	mux.Handle("POST /admin/secret/rotate", authenticated(s.tokens, http.HandlerFunc(s.handleRotateSecret)))

	mux.HandleFunc("GET /healthz", s.handleHealth)

	return requestID(accessLog(s.logger)(mux))
}

func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *HTTPServer) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
