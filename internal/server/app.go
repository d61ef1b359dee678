// Package server initializes and runs the token service: it opens the
// configured secret and user backends, wires the services and runs the HTTP
// and gRPC endpoints until a termination signal arrives.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tokengate/internal/common"
	"github.com/dmitrijs2005/tokengate/internal/logging"
	"github.com/dmitrijs2005/tokengate/internal/server/config"
	"github.com/dmitrijs2005/tokengate/internal/server/directory"
	"github.com/dmitrijs2005/tokengate/internal/server/httpapi"
	"github.com/dmitrijs2005/tokengate/internal/server/services"

	gs "github.com/dmitrijs2005/tokengate/internal/server/grpc"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	resources    *Resources
	tokenService *services.TokenService
	adminService *services.AdminService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	res, err := OpenResources(ctx, c, logger, true)
	if err != nil {
		return nil, err
	}

	return newApp(c, logger, res)
}

func newApp(c *config.Config, logger logging.Logger, res *Resources) (*App, error) {
	nonceKey := []byte(c.NonceKey)
	if len(nonceKey) == 0 {
		k, err := common.MakeRandHexString(32)
		if err != nil {
			return nil, fmt.Errorf("nonce key: %w", err)
		}
		nonceKey = []byte(k)
	}

	dir := directory.New(res.Users)
	ts := services.NewTokenService(res.Secrets, dir, dir, c.TokenTTL, logger)
	as := services.NewAdminService(res.Secrets, services.NewNonces(nonceKey, c.NonceLifetime), c.AdminRole, c.PublicBaseURL, logger)

	return &App{config: c, logger: logger, resources: res, tokenService: ts, adminService: as}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.tokenService, app.adminService, app.resources.Secrets)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.tokenService, app.resources.Secrets)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a termination signal arrives or one of
// the servers fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	// Create the secret up front so the first login does not pay for it.
	if _, err := app.resources.Secrets.Get(ctx); err != nil {
		app.logger.Error(ctx, "secret not available at startup", "error", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.EndpointAddrGRPC != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	if err := app.resources.Close(); err != nil {
		app.logger.Error(context.Background(), "closing resources", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
