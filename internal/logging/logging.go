// Package logging builds the process logger: log/slog with a runtime
// adjustable level, JSON or text output, and optional rotated file output.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the desired logging configuration.
type Config struct {
	Level          string `yaml:"level" json:"level"`
	Format         string `yaml:"format" json:"format"`
	FilePath       string `yaml:"file_path" json:"file_path,omitempty"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb" json:"file_max_size_mb,omitempty"`
	FileMaxFiles   int    `yaml:"file_max_files" json:"file_max_files,omitempty"`
	FileMaxAgeDays int    `yaml:"file_max_age_days" json:"file_max_age_days,omitempty"`
}

// DefaultConfig returns the logging defaults.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "text",
		FileMaxSizeMB:  100,
		FileMaxFiles:   3,
		FileMaxAgeDays: 30,
	}
}

// Validate reports an unknown level or format.
func (c Config) Validate() error {
	if !ValidLevel(c.Level) {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	if !ValidFormat(c.Format) {
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	return nil
}

// String returns a human-readable summary of the config.
func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return s
}

// SwappableHandler is a thread-safe slog.Handler that delegates to an inner
// handler which can be atomically swapped at runtime.
type SwappableHandler struct {
	inner atomic.Pointer[slog.Handler]
}

// NewSwappableHandler creates a SwappableHandler wrapping h.
func NewSwappableHandler(h slog.Handler) *SwappableHandler {
	s := &SwappableHandler{}
	s.inner.Store(&h)
	return s
}

// Swap replaces the inner handler.
func (s *SwappableHandler) Swap(h slog.Handler) {
	s.inner.Store(&h)
}

func (s *SwappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*s.inner.Load()).Enabled(ctx, level)
}

func (s *SwappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return (*s.inner.Load()).Handle(ctx, r)
}

func (s *SwappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewSwappableHandler((*s.inner.Load()).WithAttrs(attrs))
}

func (s *SwappableHandler) WithGroup(name string) slog.Handler {
	return NewSwappableHandler((*s.inner.Load()).WithGroup(name))
}

// Manager owns the logger lifecycle and supports runtime reconfiguration.
type Manager struct {
	levelVar *slog.LevelVar
	handler  *SwappableHandler
	console  io.Writer
	config   Config
	mu       sync.Mutex
	closer   io.Closer
}

// NewManager creates a Manager and the logger it controls. Log lines go to
// console (stderr when nil) so command output on stdout stays clean, and
// also to the rotated file when one is configured.
func NewManager(cfg Config, console io.Writer) (*Manager, *slog.Logger) {
	if console == nil {
		console = os.Stderr
	}
	lvl := &slog.LevelVar{}
	lvl.Set(ParseLevel(cfg.Level))

	m := &Manager{
		levelVar: lvl,
		console:  console,
		config:   cfg,
	}
	writer, closer := m.buildWriter(cfg)
	m.closer = closer
	m.handler = NewSwappableHandler(buildHandler(writer, lvl, cfg.Format))

	return m, slog.New(m.handler)
}

// Reconfigure applies a new configuration at runtime. Level-only changes
// are instant via LevelVar; format or output changes rebuild the handler.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levelVar.Set(ParseLevel(cfg.Level))

	needSwap := cfg.Format != m.config.Format ||
		cfg.FilePath != m.config.FilePath ||
		cfg.FileMaxSizeMB != m.config.FileMaxSizeMB ||
		cfg.FileMaxFiles != m.config.FileMaxFiles ||
		cfg.FileMaxAgeDays != m.config.FileMaxAgeDays

	if needSwap {
		if m.closer != nil {
			m.closer.Close() //nolint:errcheck
			m.closer = nil
		}
		writer, closer := m.buildWriter(cfg)
		m.handler.Swap(buildHandler(writer, m.levelVar, cfg.Format))
		m.closer = closer
	}

	m.config = cfg
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Close releases the log file writer, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer != nil {
		err := m.closer.Close()
		m.closer = nil
		return err
	}
	return nil
}

func (m *Manager) buildWriter(cfg Config) (io.Writer, io.Closer) {
	if cfg.FilePath == "" {
		return m.console, nil
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    orDefault(cfg.FileMaxSizeMB, 100),
		MaxBackups: orDefault(cfg.FileMaxFiles, 3),
		MaxAge:     orDefault(cfg.FileMaxAgeDays, 30),
	}
	return io.MultiWriter(m.console, lj), lj
}

func buildHandler(w io.Writer, leveler slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: leveler}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel converts a level name to slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel returns true if s is a recognized log level.
func ValidLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat returns true if s is a recognized log format.
func ValidFormat(s string) bool {
	switch s {
	case "text", "json":
		return true
	}
	return false
}
