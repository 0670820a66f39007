package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/stationsync/internal/backup"
	"github.com/sydlexius/stationsync/internal/catalog"
	"github.com/sydlexius/stationsync/internal/config"
	"github.com/sydlexius/stationsync/internal/database"
	"github.com/sydlexius/stationsync/internal/event"
	"github.com/sydlexius/stationsync/internal/history"
	"github.com/sydlexius/stationsync/internal/logging"
	"github.com/sydlexius/stationsync/internal/maintenance"
	"github.com/sydlexius/stationsync/internal/reconcile"
	"github.com/sydlexius/stationsync/internal/review"
	"github.com/sydlexius/stationsync/internal/store"
	"github.com/sydlexius/stationsync/internal/webhook"
)

const defaultConfigPath = "stationsync.yaml"

var errHistoryDisabled = errors.New("history is disabled; set database.path")

// commandContext loads configuration and builds shared services lazily, so
// each command only opens what it uses.
type commandContext struct {
	configFlag *string
	envFlag    *string

	configOnce sync.Once
	configPath string
	config     *config.Config
	configErr  error

	logOnce    sync.Once
	logManager *logging.Manager
	log        *slog.Logger

	db *sql.DB
}

func newCommandContext(configFlag, envFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.envFlag != nil {
			if err := config.LoadEnvFile(strings.TrimSpace(*c.envFlag)); err != nil {
				c.configErr = err
				return
			}
		}
		c.configPath = c.resolveConfigPath()
		cfg, err := config.Load(c.configPath)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) resolveConfigPath() string {
	if c.configFlag != nil {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			return p
		}
	}
	if p := os.Getenv("SS_CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// logger returns the process logger, building it from the logging section
// on first use. Logs go to stderr so command output stays on stdout.
func (c *commandContext) logger() *slog.Logger {
	c.logOnce.Do(func() {
		cfg := logging.DefaultConfig()
		if c.config != nil {
			cfg = c.config.Logging
		}
		c.logManager, c.log = logging.NewManager(cfg, os.Stderr)
		slog.SetDefault(c.log)
	})
	return c.log
}

// history opens the audit database, or returns nil when no path is
// configured.
func (c *commandContext) history() (*history.Service, error) {
	if c.config.Database.Path == "" {
		return nil, nil
	}
	if c.db == nil {
		db, err := database.OpenAndMigrate(c.config.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening history database: %w", err)
		}
		c.db = db
		c.logger().Debug("history database ready", "path", c.config.Database.Path)
	}
	return history.NewService(c.db), nil
}

// backups returns the snapshot service, or nil when no backup directory is
// configured. The history database is included when history is enabled.
func (c *commandContext) backups() (*backup.Service, error) {
	sc := c.config.Store
	if sc.BackupDir == "" {
		return nil, nil
	}
	if _, err := c.history(); err != nil {
		return nil, err
	}
	svc := backup.NewService(sc.BackupDir, []backup.Document{
		{Name: "cache", Path: sc.CachePath},
		{Name: "queue", Path: sc.QueuePath},
	}, c.db, sc.BackupRetention, c.logger())
	svc.SetMaxAgeDays(sc.BackupMaxAgeDays)
	return svc, nil
}

// snapshot backs up the store documents before a command rewrites them. It
// does nothing when backups are not configured.
func (c *commandContext) snapshot(ctx context.Context, reason string) error {
	svc, err := c.backups()
	if err != nil || svc == nil {
		return err
	}
	if _, err := svc.Backup(ctx); err != nil {
		return fmt.Errorf("snapshot before %s: %w", reason, err)
	}
	if _, err := svc.Prune(); err != nil {
		c.logger().Warn("pruning snapshots", "error", err)
	}
	return nil
}

// maintenance returns the history database maintenance service. History
// must be configured.
func (c *commandContext) maintenance() (*maintenance.Service, *history.Service, error) {
	hist, err := c.history()
	if err != nil {
		return nil, nil, err
	}
	if hist == nil {
		return nil, nil, errHistoryDisabled
	}
	svc := maintenance.NewService(c.db, c.config.Database.Path, hist, c.config.Database.HistoryRetention, c.logger())
	return svc, hist, nil
}

func (c *commandContext) stores() (*store.FileCache, *store.FileQueue) {
	logger := c.logger()
	return store.NewFileCache(c.config.Store.CachePath, logger),
		store.NewFileQueue(c.config.Store.QueuePath, logger)
}

func (c *commandContext) reviewService(hist *history.Service, bus event.Publisher) *review.Service {
	cache, queue := c.stores()
	svc := review.NewService(cache, queue, c.logger())
	if bus != nil {
		svc.SetEventBus(bus)
	}
	if hist != nil {
		svc.SetHistory(hist)
	}
	return svc
}

func (c *commandContext) engine(hist *history.Service, bus event.Publisher, workers int) *reconcile.Engine {
	cfg := c.config
	logger := c.logger()

	client := catalog.New(catalog.Options{
		LookupURL:         cfg.Catalog.LookupURL,
		SearchURL:         cfg.Catalog.SearchURL,
		Country:           cfg.Catalog.Country,
		Timeout:           cfg.Catalog.Timeout,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
		Burst:             cfg.Catalog.Burst,
	}, logger)
	resolver := catalog.NewResolver(client, cfg.Catalog.SearchLimit, logger)

	if workers <= 0 {
		workers = cfg.Reconcile.MaxWorkers
	}
	cache, queue := c.stores()
	e := reconcile.NewEngine(resolver, cache, queue, workers, logger)
	if bus != nil {
		e.SetEventBus(bus)
	}
	if hist != nil {
		e.SetHistory(hist)
	}
	return e
}

// events starts an event bus that forwards every event to the configured
// webhooks. The returned function drains the bus and waits for deliveries
// in flight; short-lived commands call it before exiting.
func (c *commandContext) events() (*event.Bus, func()) {
	logger := c.logger()
	bus := event.NewBus(logger, 256)
	dispatcher := webhook.NewDispatcher(webhook.Static(c.config.Webhooks), logger)
	bus.SubscribeAll(dispatcher.HandleEvent)
	go bus.Start()

	return bus, func() {
		bus.Stop()
		if !bus.Wait(5 * time.Second) {
			logger.Warn("event bus did not drain before exit")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := dispatcher.Wait(ctx); err != nil {
			logger.Warn("webhook deliveries still in flight at exit", "error", err)
		}
	}
}

func (c *commandContext) close() error {
	var err error
	if c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	if c.logManager != nil {
		if cerr := c.logManager.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
