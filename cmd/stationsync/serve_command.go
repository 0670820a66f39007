package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stationsync/internal/api"
	"github.com/sydlexius/stationsync/internal/config"
	"github.com/sydlexius/stationsync/internal/version"
	"github.com/sydlexius/stationsync/internal/watcher"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review server",
		Long: "Serve the review pages and the JSON API. With --watch (or reconcile.watch)\n" +
			"the library file is reconciled again whenever it changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("watch") {
				cfg.Reconcile.Watch = watch
			}
			return serve(cmd.Context(), ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Reconcile the library file again when it changes")
	return cmd
}

func serve(parent context.Context, cc *commandContext, cfg *config.Config) error {
	logger := cc.logger()
	logger.Info("starting stationsync",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reloadLoggingOnHangup(ctx, cc)

	hist, err := cc.history()
	if err != nil {
		return err
	}
	bus, drain := cc.events()
	defer drain()

	cache, _ := cc.stores()
	engine := cc.engine(hist, bus, 0)
	reviewSvc := cc.reviewService(hist, bus)

	if cfg.Review.PasswordHash == "" {
		logger.Warn("review.password_hash is empty; the review server accepts anonymous requests")
	}

	router := api.NewRouter(api.RouterDeps{
		ReviewService: reviewSvc,
		Engine:        engine,
		Cache:         cache,
		History:       hist,
		Logger:        logger,
		BasePath:      cfg.Server.BasePath,
		LibraryPath:   cfg.Reconcile.LibraryPath,
		MediaDir:      cfg.Media.Dir,
		Username:      cfg.Review.Username,
		PasswordHash:  cfg.Review.PasswordHash,
	})

	if cfg.Reconcile.Watch && cfg.Reconcile.LibraryPath != "" {
		path := cfg.Reconcile.LibraryPath
		runFn := func(ctx context.Context) error {
			_, err := engine.RunFile(ctx, path)
			return err
		}
		w := watcher.NewService(path, runFn, logger)
		w.SetDebounce(cfg.Reconcile.WatchDebounce)
		go w.Start(ctx)
	}

	if err := startSchedulers(ctx, cc, cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", srv.Addr), slog.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listening on %s: %w", srv.Addr, err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startSchedulers launches periodic snapshots and history maintenance when
// they are configured. Both stop with ctx.
func startSchedulers(ctx context.Context, cc *commandContext, cfg *config.Config) error {
	if cfg.Store.BackupInterval > 0 {
		backups, err := cc.backups()
		if err != nil {
			return err
		}
		if backups != nil {
			go backups.StartScheduler(ctx, cfg.Store.BackupInterval)
		}
	}

	if cfg.Database.Path != "" && cfg.Database.MaintenanceInterval > 0 {
		maint, _, err := cc.maintenance()
		if err != nil {
			return err
		}
		go maint.StartScheduler(ctx, cfg.Database.MaintenanceInterval)
	}
	return nil
}

// reloadLoggingOnHangup re-reads the configuration file on SIGHUP and
// applies its logging section. Other settings need a restart.
func reloadLoggingOnHangup(ctx context.Context, cc *commandContext) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(cc.configPath)
			if err != nil {
				cc.logger().Error("reloading configuration", "path", cc.configPath, "error", err)
				continue
			}
			cc.logManager.Reconfigure(cfg.Logging)
			cc.logger().Info("logging reconfigured", "config", cfg.Logging.String())
		}
	}
}
