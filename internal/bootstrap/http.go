package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/mmk-inference/config"
	"github.com/target/mmk-inference/internal/core"
	httpx "github.com/target/mmk-inference/internal/http"
)

const shutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Pipeline *Pipeline
	Resolver core.PrincipalResolver
	Logger   *slog.Logger
}

// NewHTTPServer builds the API server without starting it.
func NewHTTPServer(cfg HTTPServerConfig) (*http.Server, error) {
	if cfg.Config == nil || cfg.Pipeline == nil || cfg.Resolver == nil {
		return nil, errors.New("http server requires config, pipeline and resolver")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := cfg.Config
	p := cfg.Pipeline

	handler := httpx.NewRouter(httpx.RouterServices{
		Gate:           p.Gate,
		Scheduler:      p.Scheduler,
		Hub:            p.Hub,
		Channel:        p.Channel,
		Catalog:        p.Registry,
		History:        p.History,
		Resolver:       cfg.Resolver,
		CookieName:     app.Auth.Session.CookieName,
		MaxBodyBytes:   app.HTTP.MaxBodyBytes,
		PingInterval:   app.Hub.PingInterval,
		WriteTimeout:   app.Hub.WriteTimeout,
		AllowedOrigins: app.Hub.AllowedOrigins,
		Logger:         logger,
	})

	addr := app.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	// No WriteTimeout: synchronous waits and streams outlive any fixed bound.
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: app.HTTP.ReadHeaderTimeout,
		IdleTimeout:       app.HTTP.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}, nil
}

// RunHTTPServer listens until ctx is done and then shuts the server down
// gracefully. WebSocket connections are hijacked, so they end when the hub
// closes their subscriptions.
func RunHTTPServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting HTTP server", "addr", ln.Addr().String())
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.InfoContext(ctx, "shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.InfoContext(ctx, "HTTP server stopped")
	return nil
}
