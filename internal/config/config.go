package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/stationsync/internal/encryption"
	"github.com/sydlexius/stationsync/internal/logging"
	"github.com/sydlexius/stationsync/internal/webhook"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Catalog   CatalogConfig     `yaml:"catalog"`
	Reconcile ReconcileConfig   `yaml:"reconcile"`
	Store     StoreConfig       `yaml:"store"`
	Media     MediaConfig       `yaml:"media"`
	Database  DatabaseConfig    `yaml:"database"`
	Review    ReviewConfig      `yaml:"review"`
	Notify    NotifyConfig      `yaml:"notify"`
	Webhooks  []webhook.Webhook `yaml:"webhooks"`
	Logging   logging.Config    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// CatalogConfig holds catalog API settings.
type CatalogConfig struct {
	LookupURL         string        `yaml:"lookup_url"`
	SearchURL         string        `yaml:"search_url"`
	Country           string        `yaml:"country"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	SearchLimit       int           `yaml:"search_limit"`
}

// ReconcileConfig holds engine settings.
type ReconcileConfig struct {
	LibraryPath   string        `yaml:"library_path"`
	MaxWorkers    int           `yaml:"max_workers"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// StoreConfig holds the JSON document paths and their snapshot settings.
// An empty BackupDir disables snapshots.
type StoreConfig struct {
	CachePath        string        `yaml:"cache_path"`
	QueuePath        string        `yaml:"queue_path"`
	BackupDir        string        `yaml:"backup_dir"`
	BackupRetention  int           `yaml:"backup_retention"`
	BackupMaxAgeDays int           `yaml:"backup_max_age_days"`
	BackupInterval   time.Duration `yaml:"backup_interval"`
}

// MediaConfig holds downloaded asset settings.
type MediaConfig struct {
	Dir         string `yaml:"dir"`
	ArtworkSize int    `yaml:"artwork_size"`
}

// DatabaseConfig holds the history database settings. An empty path
// disables history.
type DatabaseConfig struct {
	Path                string        `yaml:"path"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	HistoryRetention    time.Duration `yaml:"history_retention"`
}

// ReviewConfig holds the review surface credential. Basic auth is enforced
// only when PasswordHash is set.
type ReviewConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// NotifyConfig holds missing-media report delivery settings.
type NotifyConfig struct {
	From string     `yaml:"from"`
	To   []string   `yaml:"to"`
	SMTP SMTPConfig `yaml:"smtp"`
}

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8000,
			BasePath: "/",
		},
		Catalog: CatalogConfig{
			LookupURL:         "https://itunes.apple.com/lookup",
			SearchURL:         "https://itunes.apple.com/search",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 0.33,
			Burst:             1,
			SearchLimit:       5,
		},
		Reconcile: ReconcileConfig{
			LibraryPath:   "station_library.xlsx",
			MaxWorkers:    10,
			WatchDebounce: 2 * time.Second,
		},
		Store: StoreConfig{
			CachePath: "media_lookup_cache.json",
			QueuePath:       "manual_review_queue.json",
			BackupRetention: 10,
		},
		Media: MediaConfig{
			Dir:         "media/music",
			ArtworkSize: 600,
		},
		Database: DatabaseConfig{
			MaintenanceInterval: 24 * time.Hour,
		},
		Review: ReviewConfig{
			Username: "admin",
		},
		Notify: NotifyConfig{
			SMTP: SMTPConfig{Port: 587},
		},
		Logging: logging.DefaultConfig(),
	}
}

// LoadEnvFile loads KEY=value pairs from a dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.openSecrets(os.Getenv("SS_SECRET_KEY")); err != nil {
		return nil, fmt.Errorf("opening secrets: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SS_HOST", &c.Server.Host)
	num("SS_PORT", &c.Server.Port)
	str("SS_BASE_PATH", &c.Server.BasePath)

	str("SS_CATALOG_COUNTRY", &c.Catalog.Country)
	str("SS_CATALOG_LOOKUP_URL", &c.Catalog.LookupURL)
	str("SS_CATALOG_SEARCH_URL", &c.Catalog.SearchURL)
	if v := os.Getenv("SS_CATALOG_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SS_CATALOG_RPS: %w", err))
		} else {
			c.Catalog.RequestsPerSecond = f
		}
	}
	num("SS_SEARCH_LIMIT", &c.Catalog.SearchLimit)

	str("SS_LIBRARY_PATH", &c.Reconcile.LibraryPath)
	num("SS_MAX_WORKERS", &c.Reconcile.MaxWorkers)
	if v := os.Getenv("SS_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SS_WATCH: %w", err))
		} else {
			c.Reconcile.Watch = b
		}
	}

	str("SS_CACHE_PATH", &c.Store.CachePath)
	str("SS_QUEUE_PATH", &c.Store.QueuePath)
	str("SS_MEDIA_DIR", &c.Media.Dir)
	str("SS_BACKUP_DIR", &c.Store.BackupDir)
	num("SS_BACKUP_RETENTION", &c.Store.BackupRetention)
	dur("SS_BACKUP_INTERVAL", &c.Store.BackupInterval)
	str("SS_DB_PATH", &c.Database.Path)
	dur("SS_HISTORY_RETENTION", &c.Database.HistoryRetention)

	str("SS_REVIEW_USER", &c.Review.Username)
	str("SS_REVIEW_PASSWORD_HASH", &c.Review.PasswordHash)

	str("SS_NOTIFY_FROM", &c.Notify.From)
	if v := os.Getenv("SS_NOTIFY_TO"); v != "" {
		c.Notify.To = splitList(v)
	}
	str("SS_SMTP_HOST", &c.Notify.SMTP.Host)
	num("SS_SMTP_PORT", &c.Notify.SMTP.Port)
	str("SS_SMTP_USER", &c.Notify.SMTP.Username)
	str("SS_SMTP_PASSWORD", &c.Notify.SMTP.Password)

	str("SS_LOG_LEVEL", &c.Logging.Level)
	str("SS_LOG_FORMAT", &c.Logging.Format)
	str("SS_LOG_FILE", &c.Logging.FilePath)

	return errors.Join(errs...)
}

// openSecrets decrypts "enc:" values in the SMTP password and webhook URLs.
func (c *Config) openSecrets(key string) error {
	var sealer *encryption.Sealer
	if key != "" {
		s, err := encryption.NewSealer(key)
		if err != nil {
			return fmt.Errorf("SS_SECRET_KEY: %w", err)
		}
		sealer = s
	}
	fields := map[string]*string{
		"notify.smtp.password": &c.Notify.SMTP.Password,
	}
	for i := range c.Webhooks {
		fields[fmt.Sprintf("webhooks[%d].url", i)] = &c.Webhooks[i].URL
	}
	return encryption.OpenAll(sealer, fields)
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")

	if c.Store.CachePath == "" || c.Store.QueuePath == "" {
		return fmt.Errorf("store cache_path and queue_path are required")
	}
	if c.Store.CachePath == c.Store.QueuePath {
		return fmt.Errorf("store cache_path and queue_path must differ")
	}
	if c.Store.BackupRetention < 0 || c.Store.BackupMaxAgeDays < 0 {
		return fmt.Errorf("store backup retention and max age must not be negative")
	}
	if c.Store.BackupInterval < 0 || c.Database.MaintenanceInterval < 0 || c.Database.HistoryRetention < 0 {
		return fmt.Errorf("intervals and retention durations must not be negative")
	}
	if c.Reconcile.MaxWorkers < 1 {
		return fmt.Errorf("reconcile max_workers must be at least 1, got %d", c.Reconcile.MaxWorkers)
	}
	if c.Catalog.SearchLimit < 1 || c.Catalog.SearchLimit > 200 {
		return fmt.Errorf("catalog search_limit must be between 1 and 200, got %d", c.Catalog.SearchLimit)
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive")
	}
	if c.Catalog.RequestsPerSecond < 0 {
		return fmt.Errorf("catalog requests_per_second must not be negative")
	}
	if c.Media.ArtworkSize < 0 {
		return fmt.Errorf("media artwork_size must not be negative")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	for _, w := range c.Webhooks {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
