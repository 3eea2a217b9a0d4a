package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-translingo-backend/internal/app"
	"github.com/tbourn/go-translingo-backend/internal/config"
	httpapi "github.com/tbourn/go-translingo-backend/internal/http"
	"github.com/tbourn/go-translingo-backend/internal/observability"
	"github.com/tbourn/go-translingo-backend/internal/sysutil"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

func newServeCmd(r *runner) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := r.config()
			if err != nil {
				return err
			}
			sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", sysutil.FirstNonEmpty(addr, ":"+cfg.Port))
			if err != nil {
				return err
			}
			return serve(ctx, cfg, r.version, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}

// serve runs the API on ln until ctx is done, then drains in-flight
// requests. Live sessions are disposed first so open streams end.
func serve(ctx context.Context, cfg config.Config, version string, ln net.Listener) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(version, "dev"))
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("app close")
		}
	}()

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	httpapi.RegisterRoutes(router, a, cfg)

	srv := &http.Server{
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	srv.RegisterOnShutdown(a.Sessions.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", ln.Addr().String()).
			Str("engine", a.Engine.Name()).
			Str("version", version).
			Msg("http server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		a.PurgeIdempotency(gctx, purgeInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
