package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/youruser/avatarframe/internal/api"
	"github.com/youruser/avatarframe/internal/config"
	"github.com/youruser/avatarframe/internal/eventlog"
	imagepkg "github.com/youruser/avatarframe/internal/image"
	"github.com/youruser/avatarframe/internal/logging"
	"github.com/youruser/avatarframe/internal/render"
	"github.com/youruser/avatarframe/internal/stats"
	"github.com/youruser/avatarframe/internal/templates"
)

func newServeCmd(opts *options) *cobra.Command {
	var preload bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, preload)
		},
	}
	cmd.Flags().BoolVar(&preload, "preload", false, "decode every template and mask before listening")
	return cmd
}

func runServe(ctx context.Context, opts *options, preload bool) error {
	logger := logging.FromContext(ctx)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		return err
	}
	catalog, err := templates.Load(cfg.TemplatesFile, cfg.TemplatesPrefix)
	if err != nil {
		logger.Error("load templates", "file", cfg.TemplatesFile, "err", err)
		return err
	}
	if preload {
		if err := catalog.Preload(); err != nil {
			logger.Error("preload templates", "err", err)
			return err
		}
	}
	logger.Info("templates loaded", "count", catalog.Len())

	renderer := render.New(catalog,
		imagepkg.NewHTTPFetcher(cfg.FetchTimeout.Duration),
		render.WithWorkers(cfg.Workers),
		render.WithTimeout(cfg.RequestTimeout.Duration))
	events := eventlog.NewWriter(cfg.EventLog, logger)
	reporter := stats.NewReporter(cfg.EventLog, stats.NewChartWriter(cfg.ChartFile))

	gin.SetMode(gin.ReleaseMode)
	engine := api.NewEngine(api.NewHandlers(renderer, events, reporter, cfg.InviteLink, logger))
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
