package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ruteri/bank-session-client/common"
	"github.com/ruteri/bank-session-client/metrics"
	"go.uber.org/atomic"
)

// HTTPServerConfig contains all configuration parameters for the HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the API address. Port 0 picks a free port, see Server.Addr.
	ListenAddr string

	// MetricsAddr is where /metrics is served. Empty disables the listener,
	// request metrics are still collected.
	MetricsAddr string

	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long Shutdown keeps serving with /readyz failing.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds in-flight requests once draining ends.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RouteRegistrar mounts application routes on the server's router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Server serves application routes next to operational endpoints. Only the
// application routes are logged and counted.
type Server struct {
	cfg     *HTTPServerConfig
	log     *slog.Logger
	isReady atomic.Bool

	api      *http.Server
	listener net.Listener
	metrics  *metrics.MetricsServer
}

func New(cfg *HTTPServerConfig, routes RouteRegistrar) (*Server, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	srv := &Server{
		cfg:     cfg,
		log:     cfg.Log,
		metrics: metricsSrv,
	}
	srv.isReady.Store(true)

	srv.api = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.router(routes),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return srv, nil
}

func (srv *Server) router(routes RouteRegistrar) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	if routes != nil {
		mux.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return httplogger.LoggingMiddlewareSlog(srv.log, next)
			})
			r.Use(srv.metrics.Middleware)
			routes.RegisterRoutes(r)
		})
	}

	srv.mountOps(mux)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

// Handler returns the root handler, for embedding the server in tests.
func (srv *Server) Handler() http.Handler {
	return srv.api.Handler
}

// Metrics returns the metrics server backing the request instruments.
func (srv *Server) Metrics() *metrics.MetricsServer {
	return srv.metrics
}

// Start binds the API listener and serves in the background. Bind errors are
// returned; errors while serving are logged.
func (srv *Server) Start() error {
	listener, err := net.Listen("tcp", srv.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.cfg.ListenAddr, err)
	}
	srv.listener = listener

	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", listener.Addr().String())
		if err := srv.api.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()

	if srv.cfg.MetricsAddr != "" {
		go func() {
			srv.log.Info("Starting metrics server", "metricsAddress", srv.cfg.MetricsAddr)
			if err := srv.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srv.log.Error("Metrics server failed", "err", err)
			}
		}()
	}
	return nil
}

// Addr is the bound API address, or the configured one before Start.
func (srv *Server) Addr() string {
	if srv.listener != nil {
		return srv.listener.Addr().String()
	}
	return srv.cfg.ListenAddr
}

// Shutdown fails readiness, keeps serving for DrainDuration, then stops both
// listeners. A cancelled ctx cuts the drain short.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.setReady(false) && srv.cfg.DrainDuration > 0 {
		srv.log.Info("Draining before shutdown", slog.Duration("duration", srv.cfg.DrainDuration))
		select {
		case <-time.After(srv.cfg.DrainDuration):
		case <-ctx.Done():
			srv.log.Warn("Drain cut short", "err", ctx.Err())
		}
	}

	shutdownCtx := context.WithoutCancel(ctx)
	if srv.cfg.GracefulShutdownDuration > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, srv.cfg.GracefulShutdownDuration)
		defer cancel()
	}

	var errs []error
	if srv.listener != nil {
		if err := srv.api.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		} else {
			srv.log.Info("HTTP server gracefully stopped")
		}
	}
	if srv.cfg.MetricsAddr != "" {
		if err := srv.metrics.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		} else {
			srv.log.Info("Metrics server gracefully stopped")
		}
	}
	return errors.Join(errs...)
}
